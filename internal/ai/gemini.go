package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bridgeme/internal/logger"
	"bridgeme/internal/metrics"

	"google.golang.org/genai"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

type operationPoller interface {
	GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

type Config struct {
	APIKey     string
	TextModel  string
	ImageModel string
	VideoModel string

	// Video operations are polled every PollInterval until done, for at most
	// MaxPolls polls and Timeout overall.
	PollInterval time.Duration
	Timeout      time.Duration
	MaxPolls     int
}

func (c *Config) withDefaults() {
	if c.TextModel == "" {
		c.TextModel = "gemini-2.5-flash"
	}
	if c.ImageModel == "" {
		c.ImageModel = "gemini-2.5-flash-image"
	}
	if c.VideoModel == "" {
		c.VideoModel = "veo-3.1-fast-generate-preview"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 120
	}
}

type Gemini struct {
	cfg        Config
	models     contentGenerator
	operations operationPoller
}

// New returns a Gemini backed service, or Disabled when no key is configured.
func New(ctx context.Context, cfg Config) (Service, error) {
	if cfg.APIKey == "" {
		logger.Warn().Msg("No API Key provided for Gemini, AI features use fallbacks")
		return Disabled{}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGemini(cfg, client.Models, client.Operations), nil
}

func newGemini(cfg Config, models contentGenerator, ops operationPoller) *Gemini {
	cfg.withDefaults()
	return &Gemini{cfg: cfg, models: models, operations: ops}
}

func observe(op string, err error) {
	metrics.AICalls.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil {
		logger.Error().Err(err).Str("operation", op).Msg("Gemini call failed")
	}
}

func (g *Gemini) Translate(ctx context.Context, text, targetLang string) (out string, err error) {
	defer func() { observe("translate", err) }()

	if targetLang == "" {
		targetLang = "English"
	}
	prompt := fmt.Sprintf("Translate the following text to %s. Only return the translated text, nothing else. Text: %q", targetLang, text)
	resp, err := g.models.GenerateContent(ctx, g.cfg.TextModel, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	translated := strings.TrimSpace(resp.Text())
	if translated == "" {
		return text, nil
	}
	return translated, nil
}

// ConversationStarters always yields three suggestions; failures fall back to
// friendly defaults instead of an error.
func (g *Gemini) ConversationStarters(ctx context.Context, about string) ([]string, error) {
	prompt := fmt.Sprintf("Generate 3 distinct, engaging, and friendly conversation starters for a user to send to a person described as: %q. "+
		"The messages should be personal, relevant to their profile/interests, and invite response. Return ONLY a JSON array of strings.", about)

	resp, err := g.models.GenerateContent(ctx, g.cfg.TextModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	})
	if err == nil {
		var starters []string
		if err = json.Unmarshal([]byte(resp.Text()), &starters); err == nil {
			observe("starters", nil)
			return exactlyThree(starters), nil
		}
	}
	observe("starters", err)
	return append([]string(nil), fallbackStarters...), nil
}

func exactlyThree(in []string) []string {
	out := make([]string, 0, 3)
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" && len(out) < 3 {
			out = append(out, s)
		}
	}
	for i := 0; len(out) < 3; i++ {
		out = append(out, fallbackStarters[i])
	}
	return out
}

// GenerateAvatar returns the first inline image as a data URL.
func (g *Gemini) GenerateAvatar(ctx context.Context, prompt string) (out string, err error) {
	defer func() { observe("avatar", err) }()

	contents := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf("Generate a creative, high-quality avatar image based on: %s.", prompt), genai.RoleUser),
	}
	resp, err := g.models.GenerateContent(ctx, g.cfg.ImageModel, contents, &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: "1:1"},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResult
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return "data:" + part.InlineData.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
		}
	}
	return "", ErrEmptyResult
}
