package market

import (
	"net/http"

	"bridgeme/internal/apperr"
	"bridgeme/internal/draft"
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
	r.Route("/market", func(r chi.Router) {
		r.Get("/items", h.Browse)
		r.Post("/items", h.Publish)
		r.Get("/items/{itemID}", h.View)
		r.Post("/items/{itemID}/like", h.ToggleLike)
		r.Post("/items/{itemID}/report", h.Report)
		r.Get("/recent", h.Recent)
		r.Get("/favorites", h.Favorites)

		r.Get("/cart", h.Cart)
		r.Post("/cart/{itemID}", h.AddToCart)
		r.Delete("/cart/{itemID}", h.RemoveFromCart)
		r.Get("/checkout", h.CheckoutInfo)
		r.Post("/checkout", h.Checkout)

		r.Get("/purchases", h.Purchases)
		r.Post("/reviews", h.Review)
		r.Get("/sellers/{sellerID}", h.Seller)

		r.Post("/draft/images", h.AttachImages)
		r.Post("/draft/video", h.GenerateVideo)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return apperr.DecodeJSON(w, r, draft.MaxBodyBytes, v)
}

func uid(r *http.Request) string {
	return myMiddleware.UserID(r.Context())
}

func respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, status, v)
}

func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.service.Browse(r.Context(), Query{
		Category:  q.Get("category"),
		Condition: q.Get("condition"),
		Search:    q.Get("q"),
		Sort:      Sort(q.Get("sort")),
	})
	respond(w, http.StatusOK, items, err)
}

func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	it, err := h.service.View(r.Context(), uid(r), chi.URLParam(r, "itemID"))
	respond(w, http.StatusOK, it, err)
}

func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.RecentlyViewed(r.Context(), uid(r))
	respond(w, http.StatusOK, items, err)
}

func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Favorites(r.Context(), uid(r))
	respond(w, http.StatusOK, items, err)
}

func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	it, liked, err := h.service.ToggleLike(r.Context(), uid(r), chi.URLParam(r, "itemID"))
	respond(w, http.StatusOK, map[string]any{"item": it, "liked": liked}, err)
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	msg, err := h.service.Report(r.Context(), uid(r), chi.URLParam(r, "itemID"))
	respond(w, http.StatusOK, map[string]string{"message": msg}, err)
}

func (h *Handler) Cart(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Cart(r.Context(), uid(r))
	respond(w, http.StatusOK, c, err)
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.AddToCart(r.Context(), uid(r), chi.URLParam(r, "itemID"))
	respond(w, http.StatusOK, c, err)
}

func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.RemoveFromCart(r.Context(), uid(r), chi.URLParam(r, "itemID"))
	respond(w, http.StatusOK, c, err)
}

func (h *Handler) CheckoutInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	card, err := h.service.SavedCard(ctx, uid(r))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	first, err := h.service.FirstTimeBuyer(ctx, uid(r))
	respond(w, http.StatusOK, map[string]any{"savedCard": card, "firstTimeBuyer": first}, err)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decode(w, r, &req); err != nil {
		apperr.Write(w, err)
		return
	}
	ps, err := h.service.Checkout(r.Context(), uid(r), req)
	respond(w, http.StatusCreated, ps, err)
}

func (h *Handler) Purchases(w http.ResponseWriter, r *http.Request) {
	ps, err := h.service.Purchases(r.Context(), uid(r))
	respond(w, http.StatusOK, ps, err)
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	var in ReviewInput
	if err := decode(w, r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	rv, err := h.service.Review(r.Context(), uid(r), in)
	respond(w, http.StatusCreated, rv, err)
}

func (h *Handler) Seller(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Seller(r.Context(), chi.URLParam(r, "sellerID"))
	respond(w, http.StatusOK, sum, err)
}

func (h *Handler) AttachImages(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Images []string `json:"images"`
	}
	if err := decode(w, r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	d, skipped, err := h.service.AttachImages(r.Context(), uid(r), in.Images)
	body := map[string]any{"draft": d, "skipped": skipped}
	if skipped > 0 {
		body["message"] = "Some files were ignored because they are not images."
	}
	respond(w, http.StatusOK, body, err)
}

func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GenerateVideo(r.Context(), uid(r))
	respond(w, http.StatusOK, d, err)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	it, err := h.service.PublishDraft(r.Context(), uid(r))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusCreated, map[string]any{"item": it, "message": "Your item has been listed successfully!"})
}
