package draft

import (
	"net/http"
	"time"

	"bridgeme/internal/apperr"
	"bridgeme/internal/media"
	myMiddleware "bridgeme/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// MaxBodyBytes fits a form carrying five full size images and a video.
const MaxBodyBytes = 6 * media.MaxUploadBodyBytes

type Handler struct {
	drafts *Manager
}

func NewHandler(drafts *Manager) *Handler {
	return &Handler{drafts: drafts}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/draft", h.Get)
	r.Put("/draft", h.Update)
	r.Post("/draft/flush", h.Flush)
	r.Delete("/draft", h.Clear)
}

type view struct {
	Draft     Draft      `json:"draft"`
	LastSaved *time.Time `json:"lastSaved"`
}

func viewOf(a *Autosaver) view {
	v := view{Draft: a.Current()}
	if t := a.LastSaved(); !t.IsZero() {
		v.LastSaved = &t
	}
	return v
}

func (h *Handler) saver(w http.ResponseWriter, r *http.Request) *Autosaver {
	a, err := h.drafts.For(r.Context(), myMiddleware.UserID(r.Context()))
	if err != nil {
		apperr.Write(w, apperr.Wrap(http.StatusInternalServerError, "Could not load draft", err))
		return nil
	}
	return a
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a := h.saver(w, r)
	if a == nil {
		return
	}
	apperr.JSON(w, http.StatusOK, viewOf(a))
}

// Update accepts the whole form; the write happens after the quiet period.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var d Draft
	if err := apperr.DecodeJSON(w, r, MaxBodyBytes, &d); err != nil {
		apperr.Write(w, err)
		return
	}
	a := h.saver(w, r)
	if a == nil {
		return
	}
	a.Update(d)
	apperr.JSON(w, http.StatusAccepted, viewOf(a))
}

func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	a := h.saver(w, r)
	if a == nil {
		return
	}
	a.Flush(r.Context())
	apperr.JSON(w, http.StatusOK, viewOf(a))
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	a := h.saver(w, r)
	if a == nil {
		return
	}
	if err := a.Clear(r.Context()); err != nil {
		apperr.Write(w, apperr.Wrap(http.StatusInternalServerError, "Could not clear draft", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
