package exchange

import (
	"errors"
	"net/http"

	"bridgeme/internal/apperr"
	myMiddleware "bridgeme/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/requests", h.Browse)
	r.Post("/requests", h.Post)
	r.Get("/requests/{requestID}", h.Get)
}

func write(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		apperr.Write(w, apperr.NotFound("Request not found"))
	case errors.Is(err, ErrInvalidRequest):
		apperr.Write(w, apperr.BadRequest(err.Error()))
	default:
		apperr.Write(w, err)
	}
}

func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.service.Browse(r.Context(), q.Get("category"), q.Get("q"))
	if err != nil {
		write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.Get(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, l)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	var in PostInput
	if err := apperr.DecodeJSON(w, r, apperr.DefaultBodyLimit, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	l, err := h.service.Post(r.Context(), myMiddleware.UserID(r.Context()), in)
	if err != nil {
		write(w, err)
		return
	}
	apperr.JSON(w, http.StatusCreated, l)
}
