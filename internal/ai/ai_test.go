package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bridgeme/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	mu      sync.Mutex
	text    string
	parts   []*genai.Part
	err     error
	prompts []string
	configs []*genai.GenerateContentConfig

	videoOp  *genai.GenerateVideosOperation
	videoErr error
	image    *genai.Image
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range contents {
		for _, p := range c.Parts {
			f.prompts = append(f.prompts, p.Text)
		}
	}
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	parts := f.parts
	if parts == nil {
		parts = []*genai.Part{{Text: f.text}}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: genai.RoleModel, Parts: parts}}},
	}, nil
}

func (f *fakeModels) GenerateVideos(_ context.Context, _ string, _ string, image *genai.Image, _ *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	f.image = image
	return f.videoOp, f.videoErr
}

type fakeOperations struct {
	doneAfter int
	polls     int
	uri       string
	opErr     map[string]any
}

func (f *fakeOperations) GetVideosOperation(_ context.Context, op *genai.GenerateVideosOperation, _ *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	f.polls++
	if f.doneAfter < 0 || f.polls < f.doneAfter {
		return &genai.GenerateVideosOperation{Name: op.Name}, nil
	}
	out := &genai.GenerateVideosOperation{Name: op.Name, Done: true, Error: f.opErr}
	if f.opErr == nil {
		out.Response = &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{{Video: &genai.Video{URI: f.uri}}},
		}
	}
	return out, nil
}

var community = []user.Profile{
	{ID: "u1", Name: "Kenji Tanaka", Role: user.Boomer, Offers: []user.Skill{user.SkillLanguage, user.SkillCooking}, Needs: []user.Skill{user.SkillTech}, Bio: "Retired history teacher"},
	{ID: "u2", Name: "Sarah Jenkins", Role: user.GenZ, Offers: []user.Skill{user.SkillTech}, Needs: []user.Skill{user.SkillCooking}, Bio: "CS Student"},
	{ID: "u3", Name: "Maria Garcia", Role: user.Millennial, Offers: []user.Skill{user.SkillCooking, user.SkillCulture}, Needs: []user.Skill{user.SkillCareer}},
}

var seeker = &user.Profile{ID: "me", Role: user.GenZ, Offers: []user.Skill{user.SkillTech}}

func TestNeededSkills(t *testing.T) {
	assert.Equal(t, []user.Skill{user.SkillTech}, NeededSkills("Help me set up Zoom on my tablet"))
	assert.Equal(t, []user.Skill{user.SkillCooking}, NeededSkills("I want to learn how to cook miso soup"))
	assert.Equal(t, []user.Skill{user.SkillLanguage, user.SkillCooking}, NeededSkills("Japanese phrases and a few recipes"))
	assert.Empty(t, NeededSkills("I am happy"))
}

func TestBestCandidatePrefersGenerationGap(t *testing.T) {
	best, ok := BestCandidate(MatchRequest{Need: "cooking lessons", Seeker: seeker, Candidates: community})
	require.True(t, ok)
	assert.Equal(t, "u1", best.ID)

	_, ok = BestCandidate(MatchRequest{Need: "cooking", Seeker: &community[0], Candidates: community[:1]})
	assert.False(t, ok)
}

func TestSmartMatchExistingCandidate(t *testing.T) {
	models := &fakeModels{text: `{"match":{"id":"u1","name":"Someone Else"},"reason":"Kenji loves to cook."}`}
	g := newGemini(Config{APIKey: "k"}, models, &fakeOperations{})

	m, err := g.SmartMatch(context.Background(), MatchRequest{Bio: "student", Need: "cooking", Seeker: seeker, Candidates: community})
	require.NoError(t, err)
	assert.True(t, m.Existing)
	assert.Equal(t, community[0], m.Profile)
	assert.Equal(t, "Kenji loves to cook.", m.Reason)

	require.Len(t, models.configs, 1)
	assert.Equal(t, "application/json", models.configs[0].ResponseMIMEType)
	assert.Contains(t, models.prompts[0], `"id":"u2"`)
}

func TestSmartMatchOverridesPickWithoutSkill(t *testing.T) {
	models := &fakeModels{text: `{"match":{"id":"u2"},"reason":"Sarah is great."}`}
	g := newGemini(Config{APIKey: "k"}, models, &fakeOperations{})

	m, err := g.SmartMatch(context.Background(), MatchRequest{Need: "cooking", Seeker: seeker, Candidates: community})
	require.NoError(t, err)
	assert.Equal(t, "u1", m.Profile.ID)
	assert.Contains(t, m.Reason, "Cooking")
}

func TestSmartMatchSynthesizedProfile(t *testing.T) {
	models := &fakeModels{text: `{"match":{"name":"Ruth","role":"Grandparent","offers":["Religion","Juggling"],"avatar":"placeholder.png"},"reason":"Ruth is wise."}`}
	g := newGemini(Config{APIKey: "k"}, models, &fakeOperations{})

	m, err := g.SmartMatch(context.Background(), MatchRequest{Need: "faith questions", Candidates: community})
	require.NoError(t, err)
	assert.False(t, m.Existing)
	assert.Equal(t, "ai_4", m.Profile.ID)
	assert.Equal(t, user.Boomer, m.Profile.Role)
	assert.Equal(t, []user.Skill{user.SkillReligion}, m.Profile.Offers)
	assert.Contains(t, m.Profile.Avatar, "picsum.photos")
}

func TestSmartMatchErrors(t *testing.T) {
	g := newGemini(Config{APIKey: "k"}, &fakeModels{err: errors.New("boom")}, &fakeOperations{})
	_, err := g.SmartMatch(context.Background(), MatchRequest{Need: "x"})
	assert.Error(t, err)

	g = newGemini(Config{APIKey: "k"}, &fakeModels{text: ""}, &fakeOperations{})
	_, err = g.SmartMatch(context.Background(), MatchRequest{Need: "x"})
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestTranslate(t *testing.T) {
	models := &fakeModels{text: " こんにちは \n"}
	g := newGemini(Config{APIKey: "k"}, models, &fakeOperations{})

	out, err := g.Translate(context.Background(), "Hello", "Japanese")
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", out)
	assert.Contains(t, models.prompts[0], "to Japanese")

	models.err = errors.New("quota")
	_, err = g.Translate(context.Background(), "Hello", "Japanese")
	assert.Error(t, err)
}

func TestConversationStartersAlwaysThree(t *testing.T) {
	g := newGemini(Config{APIKey: "k"}, &fakeModels{text: `["Ask about soba", "  "]`}, &fakeOperations{})
	out, err := g.ConversationStarters(context.Background(), "a retired teacher")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ask about soba", "Hello!", "Nice to meet you."}, out)

	g = newGemini(Config{APIKey: "k"}, &fakeModels{text: `["a","b","c","d"]`}, &fakeOperations{})
	out, _ = g.ConversationStarters(context.Background(), "x")
	assert.Equal(t, []string{"a", "b", "c"}, out)

	g = newGemini(Config{APIKey: "k"}, &fakeModels{err: errors.New("down")}, &fakeOperations{})
	out, err = g.ConversationStarters(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, fallbackStarters, out)
}

func TestGenerateAvatar(t *testing.T) {
	models := &fakeModels{parts: []*genai.Part{
		{Text: "here you go"},
		{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("png")}},
	}}
	g := newGemini(Config{APIKey: "k"}, models, &fakeOperations{})

	out, err := g.GenerateAvatar(context.Background(), "a wise owl")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,cG5n", out)
	assert.Equal(t, "1:1", models.configs[0].ImageConfig.AspectRatio)

	models.parts = []*genai.Part{{Text: "no image today"}}
	_, err = g.GenerateAvatar(context.Background(), "a wise owl")
	assert.ErrorIs(t, err, ErrEmptyResult)
}

const photo = "data:image/jpeg;base64,aGVsbG8="

func TestShowcaseVideoPollsUntilDone(t *testing.T) {
	models := &fakeModels{videoOp: &genai.GenerateVideosOperation{Name: "operations/1"}}
	ops := &fakeOperations{doneAfter: 3, uri: "https://example.com/v?alt=media"}
	g := newGemini(Config{APIKey: "secret", PollInterval: time.Millisecond}, models, ops)

	link, err := g.GenerateShowcaseVideo(context.Background(), photo, "Vase", "Blue ceramic")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v?alt=media&key=secret", link)
	assert.Equal(t, 3, ops.polls)
	assert.Equal(t, "image/jpeg", models.image.MIMEType)
	assert.Equal(t, []byte("hello"), models.image.ImageBytes)
}

func TestShowcaseVideoBounded(t *testing.T) {
	models := &fakeModels{videoOp: &genai.GenerateVideosOperation{Name: "operations/2"}}
	ops := &fakeOperations{doneAfter: -1}
	g := newGemini(Config{APIKey: "k", PollInterval: time.Millisecond, MaxPolls: 4}, models, ops)

	_, err := g.GenerateShowcaseVideo(context.Background(), photo, "Vase", "")
	assert.ErrorIs(t, err, ErrVideoTimeout)
	assert.Equal(t, 4, ops.polls)

	g = newGemini(Config{APIKey: "k", PollInterval: time.Hour, Timeout: 10 * time.Millisecond}, models, &fakeOperations{doneAfter: -1})
	_, err = g.GenerateShowcaseVideo(context.Background(), photo, "Vase", "")
	assert.ErrorIs(t, err, ErrVideoTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g = newGemini(Config{APIKey: "k", PollInterval: time.Hour}, models, &fakeOperations{doneAfter: -1})
	_, err = g.GenerateShowcaseVideo(ctx, photo, "Vase", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShowcaseVideoFailures(t *testing.T) {
	models := &fakeModels{videoOp: &genai.GenerateVideosOperation{Name: "operations/3"}}
	g := newGemini(Config{APIKey: "k", PollInterval: time.Millisecond}, models, &fakeOperations{doneAfter: 1, opErr: map[string]any{"message": "blocked"}})
	_, err := g.GenerateShowcaseVideo(context.Background(), photo, "Vase", "")
	assert.ErrorIs(t, err, ErrVideoFailed)

	_, err = g.GenerateShowcaseVideo(context.Background(), "data:text/plain;base64,aGk=", "Vase", "")
	assert.Error(t, err)
}

func TestDisabledFallbacks(t *testing.T) {
	ctx := context.Background()
	var s Service = Disabled{}

	out, err := s.Translate(ctx, "hi", "French")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Simulation:"))

	starters, _ := s.ConversationStarters(ctx, "x")
	assert.Len(t, starters, 3)

	_, err = s.GenerateAvatar(ctx, "x")
	assert.ErrorIs(t, err, ErrDisabled)

	m, err := s.SmartMatch(ctx, MatchRequest{Need: "tech help", Seeker: &community[0], Candidates: community})
	require.NoError(t, err)
	assert.Equal(t, "u2", m.Profile.ID)

	svc, err := New(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, Disabled{}, svc)
}

func TestAvatarPrompt(t *testing.T) {
	p, err := AvatarOptions{Description: "A friendly owl", Style: "Watercolor", Mood: "Calm", Accessory: "None", Refinement: "blue background"}.Prompt()
	require.NoError(t, err)
	assert.Equal(t, "A friendly owl, Watercolor style, Calm mood. Refinements: blue background", p)

	p, err = AvatarOptions{Description: "Me", Hair: "Curly", Clothing: "Hoodie", Accessory: "Glasses", Palette: "Neon"}.Prompt()
	require.NoError(t, err)
	assert.Equal(t, "Me, Neon color palette, Curly hair, wearing Hoodie, with Glasses", p)

	_, err = AvatarOptions{}.Prompt()
	assert.ErrorIs(t, err, ErrEmptyAvatarPrompt)

	_, err = AvatarOptions{Description: "x", Mood: "Angry"}.Prompt()
	assert.Error(t, err)
}
