package user

import (
	"net/http"

	"bridgeme/internal/apperr"
	"bridgeme/internal/media"
	myMiddleware "bridgeme/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := apperr.DecodeJSON(w, r, apperr.DefaultBodyLimit, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	res, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	apperr.JSON(w, http.StatusCreated, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := apperr.DecodeJSON(w, r, apperr.DefaultBodyLimit, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	apperr.JSON(w, http.StatusOK, res)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, users)
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Member(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, p)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := myMiddleware.UserID(r.Context())
	p, found, err := h.Service.Profile(r.Context(), userID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	if !found {
		apperr.Write(w, apperr.NotFound("profile not created yet"))
		return
	}
	apperr.JSON(w, http.StatusOK, p)
}

func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var in ProfileInput
	if err := apperr.DecodeJSON(w, r, media.MaxUploadBodyBytes, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	p, err := h.Service.SaveProfile(r.Context(), myMiddleware.UserID(r.Context()), in)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, p)
}

func (h *Handler) SaveAvatar(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Avatar string `json:"avatar"`
	}
	if err := apperr.DecodeJSON(w, r, media.MaxUploadBodyBytes, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	if in.Avatar == "" {
		apperr.Write(w, apperr.ErrInvalidRequest)
		return
	}
	p, err := h.Service.SaveAvatar(r.Context(), myMiddleware.UserID(r.Context()), in.Avatar)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, p)
}
