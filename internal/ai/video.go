package ai

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"bridgeme/internal/logger"
	"bridgeme/internal/media"

	"google.golang.org/genai"
)

// GenerateShowcaseVideo starts a video operation from a product photo and
// polls it until a download link is available. Polling stops at the first of
// ctx cancellation, the configured timeout, or MaxPolls.
func (g *Gemini) GenerateShowcaseVideo(ctx context.Context, imageDataURL, title, description string) (link string, err error) {
	defer func() { observe("showcase_video", err) }()

	img, err := media.ParseDataURL(imageDataURL)
	if err != nil {
		return "", err
	}
	if !img.IsImage() {
		return "", media.ErrNotImage
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	prompt := fmt.Sprintf("Cinematic product showcase video of %s. %s. Professional lighting, 4k, slow motion pan, highly detailed.", title, description)
	op, err := g.models.GenerateVideos(ctx, g.cfg.VideoModel, prompt,
		&genai.Image{ImageBytes: img.Data, MIMEType: img.MIMEType},
		&genai.GenerateVideosConfig{NumberOfVideos: 1, Resolution: "720p", AspectRatio: "1:1"})
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for polls := 0; !op.Done; polls++ {
		if polls >= g.cfg.MaxPolls {
			return "", ErrVideoTimeout
		}
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return "", ErrVideoTimeout
			}
			return "", ctx.Err()
		case <-ticker.C:
		}
		logger.Debug().Str("operation", op.Name).Int("poll", polls+1).Msg("Polling video operation")
		if op, err = g.operations.GetVideosOperation(ctx, op, nil); err != nil {
			return "", err
		}
	}

	if op.Error != nil {
		return "", fmt.Errorf("%w: %v", ErrVideoFailed, op.Error["message"])
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0].Video == nil || op.Response.GeneratedVideos[0].Video.URI == "" {
		return "", ErrEmptyResult
	}
	return withKey(op.Response.GeneratedVideos[0].Video.URI, g.cfg.APIKey), nil
}

// withKey appends the API key so the link is directly downloadable.
func withKey(uri, key string) string {
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "key=" + url.QueryEscape(key)
}
