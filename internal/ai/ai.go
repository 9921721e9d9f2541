// Package ai is the façade over the generative-AI service used for smart
// matching, translation, conversation starters and media generation.
// Every operation is a single attempt: no retry, no caching.
package ai

import (
	"context"
	"errors"

	"bridgeme/internal/user"
)

var (
	ErrDisabled     = errors.New("ai: no API key configured")
	ErrEmptyResult  = errors.New("ai: empty result")
	ErrVideoTimeout = errors.New("ai: video generation did not finish in time")
	ErrVideoFailed  = errors.New("ai: video generation failed")
)

type Service interface {
	SmartMatch(ctx context.Context, req MatchRequest) (*Match, error)
	Translate(ctx context.Context, text, targetLang string) (string, error)
	ConversationStarters(ctx context.Context, about string) ([]string, error)
	GenerateAvatar(ctx context.Context, prompt string) (string, error)
	GenerateShowcaseVideo(ctx context.Context, imageDataURL, title, description string) (string, error)
}

// MatchRequest describes who is looking and for what. Seeker is optional;
// when known it lets the ranking prefer a different generation.
type MatchRequest struct {
	Bio        string
	Need       string
	Seeker     *user.Profile
	Candidates []user.Profile
}

type Match struct {
	Profile  user.Profile `json:"match"`
	Reason   string       `json:"reason"`
	Existing bool         `json:"existing"`
}

var SupportedLanguages = []string{"English", "Japanese", "Spanish", "French", "German", "Chinese", "Italian", "Portuguese", "Hindi", "Arabic", "Korean", "Russian"}

// IsSupportedLanguage reports whether lang is offered in the chat language picker.
func IsSupportedLanguage(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

var fallbackStarters = []string{"Hello!", "Nice to meet you.", "I'd love to connect!"}

// Disabled answers with neutral fallbacks when no API key is configured.
type Disabled struct{}

func (Disabled) SmartMatch(_ context.Context, req MatchRequest) (*Match, error) {
	best, ok := BestCandidate(req)
	if !ok {
		return nil, ErrDisabled
	}
	return &Match{Profile: best, Reason: localReason(best, NeededSkills(req.Need)), Existing: true}, nil
}

func (Disabled) Translate(context.Context, string, string) (string, error) {
	return "Simulation: Translation unavailable without API Key.", nil
}

func (Disabled) ConversationStarters(context.Context, string) ([]string, error) {
	return []string{"Tell me about your day.", "What is your favorite food?", "How is the weather?"}, nil
}

func (Disabled) GenerateAvatar(context.Context, string) (string, error) {
	return "", ErrDisabled
}

func (Disabled) GenerateShowcaseVideo(context.Context, string, string, string) (string, error) {
	return "", ErrDisabled
}
