package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bridgeme/internal/apperr"
	"bridgeme/internal/media"
	myMiddleware "bridgeme/internal/middleware"
	"bridgeme/internal/user"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// Profiles is the part of user.Service the handler needs.
type Profiles interface {
	Profile(ctx context.Context, userID string) (*user.Profile, bool, error)
	SaveAvatar(ctx context.Context, userID, avatar string) (*user.Profile, error)
}

type Handler struct {
	ai        Service
	directory user.Directory
	profiles  Profiles
	store     media.ObjectStore
	newID     func() string
}

// NewHandler wires the smart match and avatar studio endpoints. store may be
// nil, in which case generated avatars stay data URLs.
func NewHandler(svc Service, directory user.Directory, profiles Profiles, store media.ObjectStore, newID func() string) *Handler {
	return &Handler{ai: svc, directory: directory, profiles: profiles, store: store, newID: newID}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/match", h.Match)
	r.Get("/avatar/options", h.AvatarOptions)
	r.Post("/avatar", h.GenerateAvatar)
}

func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Bio  string `json:"bio"`
		Need string `json:"need"`
	}
	if err := apperr.DecodeJSON(w, r, apperr.DefaultBodyLimit, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	if strings.TrimSpace(in.Bio) == "" || strings.TrimSpace(in.Need) == "" {
		apperr.Write(w, apperr.BadRequest("Please describe yourself and what you need."))
		return
	}

	userID := myMiddleware.UserID(r.Context())
	req := MatchRequest{Bio: in.Bio, Need: in.Need}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		all, err := h.directory.List(ctx)
		for _, p := range all {
			if p.ID != userID {
				req.Candidates = append(req.Candidates, p)
			}
		}
		return err
	})
	g.Go(func() error {
		p, _, err := h.profiles.Profile(ctx, userID)
		req.Seeker = p
		return err
	})
	if err := g.Wait(); err != nil {
		apperr.Write(w, err)
		return
	}

	m, err := h.ai.SmartMatch(r.Context(), req)
	if err != nil {
		apperr.Write(w, apperr.Unavailable("Could not find a match right now. Please try again.", err))
		return
	}
	apperr.JSON(w, http.StatusOK, m)
}

func (h *Handler) AvatarOptions(w http.ResponseWriter, r *http.Request) {
	apperr.JSON(w, http.StatusOK, map[string][]string{
		"styles":      AvatarStyles,
		"moods":       AvatarMoods,
		"palettes":    AvatarPalettes,
		"hairStyles":  AvatarHairStyles,
		"clothing":    AvatarClothing,
		"accessories": AvatarAccessories,
	})
}

// GenerateAvatar renders an avatar from the studio options. With save set
// the result also becomes the caller's profile picture.
func (h *Handler) GenerateAvatar(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AvatarOptions
		Save bool `json:"save"`
	}
	if err := apperr.DecodeJSON(w, r, apperr.DefaultBodyLimit, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	prompt, err := in.Prompt()
	if err != nil {
		apperr.Write(w, apperr.BadRequest(err.Error()))
		return
	}

	ctx := r.Context()
	userID := myMiddleware.UserID(ctx)
	avatar, err := h.ai.GenerateAvatar(ctx, prompt)
	if err != nil {
		apperr.Write(w, apperr.Unavailable("Could not generate avatar. Please try again.", err))
		return
	}
	if avatar, err = h.upload(ctx, userID, avatar); err != nil {
		apperr.Write(w, err)
		return
	}

	out := map[string]any{"avatar": avatar, "prompt": prompt}
	if in.Save {
		p, err := h.profiles.SaveAvatar(ctx, userID, avatar)
		if err != nil {
			apperr.Write(w, err)
			return
		}
		out["profile"] = p
	}
	apperr.JSON(w, http.StatusOK, out)
}

func (h *Handler) upload(ctx context.Context, userID, dataURL string) (string, error) {
	if h.store == nil {
		return dataURL, nil
	}
	d, err := media.ParseDataURL(dataURL)
	if errors.Is(err, media.ErrNotDataURL) {
		return dataURL, nil
	}
	if err != nil {
		return "", err
	}
	ext := d.MIMEType[strings.LastIndex(d.MIMEType, "/")+1:]
	url, err := h.store.Put(ctx, fmt.Sprintf("avatars/%s/%s.%s", userID, h.newID(), ext), d.MIMEType, d.Data)
	if err != nil {
		return "", apperr.Unavailable("Could not upload file. Please try again.", err)
	}
	return url, nil
}
