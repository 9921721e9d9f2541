package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"bridgeme/internal/ai"
	"bridgeme/internal/apperr"
	"bridgeme/internal/call"
	"bridgeme/internal/kv"
	"bridgeme/internal/media"
	"bridgeme/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, userID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// stubAI lets a test hold a translation until it decides to release it.
type stubAI struct {
	ai.Disabled
	release chan struct{}
	result  string
	err     error
	about   string
}

func (s *stubAI) Translate(ctx context.Context, text, lang string) (string, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubAI) ConversationStarters(_ context.Context, about string) ([]string, error) {
	s.about = about
	return []string{"a", "b", "c"}, nil
}

var members = []user.Profile{
	{ID: "u1", Name: "Kenji Tanaka", Role: user.Boomer, Location: "Kyoto, Japan", Offers: []user.Skill{user.SkillCooking}, Needs: []user.Skill{user.SkillTech}, Bio: "Retired history teacher"},
}

type fixture struct {
	svc   *Service
	pub   *recorder
	ai    *stubAI
	repo  *MemoryRepository
	store *media.MemoryStore
}

func newFixture(t *testing.T, delay time.Duration) *fixture {
	f := &fixture{
		pub:   &recorder{},
		ai:    &stubAI{result: "Hello"},
		repo:  NewMemoryRepository([]CallLog{{ID: "c1", ParticipantID: "u1", Duration: "15:30", Medium: call.Video, Outcome: call.Completed, Direction: call.Outgoing, Timestamp: time.Now().Add(-48 * time.Hour)}}),
		store: media.NewMemoryStore("http://media.test"),
	}
	svc, err := NewService(Options{
		Directory:      user.NewMemoryRepository(members),
		AI:             f.ai,
		Docs:           kv.NewMemoryStore(),
		Archive:        f.repo,
		Publisher:      f.pub,
		Media:          f.store,
		AutoReplyDelay: delay,
		CallTick:       time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

func TestOpenGreetsAndRestores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	msgs, err := f.svc.History(ctx, "me", "u1", false, "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, Greeting, msgs[0].Text)
	assert.Equal(t, "u1", msgs[0].SenderID)

	_, err = f.svc.Send(ctx, "me", "u1", SendInput{Text: "Hi Kenji"})
	require.NoError(t, err)

	// a fresh service over the same archive picks the conversation up again
	svc2, err := NewService(Options{Archive: f.repo, NodeID: 2})
	require.NoError(t, err)
	defer svc2.Close()
	restored, err := svc2.History(ctx, "me", "u1", false, "")
	require.NoError(t, err)
	require.Len(t, restored, 2)
	assert.Equal(t, "Hi Kenji", restored[1].Text)

	_, err = f.svc.Open(ctx, "me", "me")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
}

func TestSendPublishesAndAutoReplies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5*time.Millisecond)

	_, err := f.svc.Send(ctx, "me", "u1", SendInput{Text: "  "})
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	m, err := f.svc.Send(ctx, "me", "u1", SendInput{Text: "Can you teach me soba?"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)

	assert.Eventually(t, func() bool { return len(f.pub.ofType(EventMessage)) == 2 }, time.Second, 5*time.Millisecond)
	msgs, _ := f.svc.History(ctx, "me", "u1", false, "")
	require.Len(t, msgs, 3)
	assert.Equal(t, AutoReply, msgs[2].Text)
	assert.Equal(t, "u1", msgs[2].SenderID)
	assert.NotEmpty(t, f.pub.ofType(EventTyping))
}

func TestStaleTranslationIsDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.ai.release = make(chan struct{})

	m, err := f.svc.Send(ctx, "me", "u1", SendInput{Text: "Hola"})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := f.svc.Translate(ctx, "me", "u1", m.ID, "English")
		errc <- err
	}()

	// wait until the message is pending, then unsend it
	assert.Eventually(t, func() bool {
		msgs, _ := f.svc.History(ctx, "me", "u1", false, "")
		return msgs[len(msgs)-1].Translation.Status == TranslationActive
	}, time.Second, time.Millisecond)
	require.NoError(t, f.svc.Unsend(ctx, "me", "u1", m.ID))
	close(f.ai.release)

	err = <-errc
	assert.ErrorIs(t, err, ErrStaleTranslation)
	assert.Equal(t, http.StatusConflict, apperr.StatusOf(err))

	msgs, _ := f.svc.History(ctx, "me", "u1", false, "")
	assert.Len(t, msgs, 1)
	assert.Len(t, f.pub.ofType(EventMessageRemoved), 1)
}

func TestTranslateSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	msgs, _ := f.svc.History(ctx, "me", "u1", false, "")
	greeting := msgs[0]

	_, err := f.svc.Translate(ctx, "me", "u1", greeting.ID, "Klingon")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	f.ai.err = errors.New("quota")
	_, err = f.svc.Translate(ctx, "me", "u1", greeting.ID, "Japanese")
	assert.Equal(t, http.StatusBadGateway, apperr.StatusOf(err))
	msgs, _ = f.svc.History(ctx, "me", "u1", false, "")
	assert.Equal(t, TranslationFailed, msgs[0].Translation.Status)

	f.ai.err = nil
	f.ai.result = "こんにちは！"
	out, err := f.svc.Translate(ctx, "me", "u1", greeting.ID, "Japanese")
	require.NoError(t, err)
	assert.Equal(t, "こんにちは！", out.Text)

	original, _ := f.svc.History(ctx, "me", "u1", true, "")
	assert.Equal(t, Greeting, original[0].Text)

	found, _ := f.svc.History(ctx, "me", "u1", true, "saw your profile")
	require.Len(t, found, 1)
	assert.Equal(t, Greeting, found[0].Text)
}

func TestReactAndUnsend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	m, _ := f.svc.Send(ctx, "me", "u1", SendInput{Text: "See you Sunday"})

	got, err := f.svc.React(ctx, "me", "u1", m.ID, "🎉")
	require.NoError(t, err)
	assert.Len(t, got.Reactions, 1)

	_, err = f.svc.React(ctx, "me", "u1", "nope", "🎉")
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))

	f.svc.now = func() time.Time { return time.Now().Add(time.Minute) }
	err = f.svc.Unsend(ctx, "me", "u1", m.ID)
	assert.Equal(t, http.StatusForbidden, apperr.StatusOf(err))
	assert.ErrorIs(t, err, ErrUnsendWindowClosed)
}

func TestSendImageUploads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	m, err := f.svc.SendImage(ctx, "me", "u1", "data:image/png;base64,iVBORw0K")
	require.NoError(t, err)
	assert.Contains(t, m.ImageURL, "http://media.test/chat/me/")

	_, err = f.svc.SendImage(ctx, "me", "u1", "data:text/plain;base64,aGk=")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	_, err = f.svc.SendAudio(ctx, "me", "u1", "data:image/png;base64,iVBORw0K", 3)
	assert.ErrorIs(t, err, ErrNotAudio)

	voice, err := f.svc.SendAudio(ctx, "me", "u1", "data:audio/webm;base64,GkXfow==", 3)
	require.NoError(t, err)
	assert.Contains(t, voice.AudioURL, ".webm")
}

func TestCallEndsWithLogAndSystemMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	st, err := f.svc.StartCall(ctx, "me", "u1", call.Video)
	require.NoError(t, err)
	assert.Equal(t, "active", st.StateName)

	_, err = f.svc.StartCall(ctx, "me", "u1", call.Audio)
	assert.Equal(t, http.StatusConflict, apperr.StatusOf(err))

	muted := true
	st, err = f.svc.ControlCall("me", "u1", CallControl{Muted: &muted})
	require.NoError(t, err)
	assert.True(t, st.Muted)

	_, err = f.svc.StartRecording("me", "u1")
	require.NoError(t, err)

	ev, err := f.svc.EndCall(ctx, "me", "u1", call.Completed)
	require.NoError(t, err)
	assert.Contains(t, ev.Summary, "⏺️ Recorded")

	_, err = f.svc.EndCall(ctx, "me", "u1", call.Completed)
	assert.Equal(t, http.StatusConflict, apperr.StatusOf(err))

	msgs, _ := f.svc.History(ctx, "me", "u1", false, "")
	last := msgs[len(msgs)-1]
	assert.Equal(t, KindCallLog, last.Kind)
	assert.Equal(t, "Video Call ended • 0:00 • ⏺️ Recorded", last.Text)
	assert.Len(t, f.pub.ofType(EventCallEnded), 1)

	logs, err := f.svc.CallHistory(ctx, "me", "u1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, ev.Log.ID, logs[0].ID)
	assert.Equal(t, "c1", logs[1].ID)
}

func TestStartersSettingsAndReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	out, err := f.svc.Starters(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Contains(t, f.ai.about, "User Name: Kenji Tanaka")
	assert.Contains(t, f.ai.about, "Skills Offered: Cooking")

	st, err := f.svc.Settings(ctx, "me")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), st)

	st.Theme = "dark"
	st.Notifications.Sound = false
	_, err = f.svc.SaveSettings(ctx, "me", st)
	require.NoError(t, err)
	loaded, _ := f.svc.Settings(ctx, "me")
	assert.Equal(t, "dark", loaded.Theme)
	assert.False(t, loaded.Notifications.Sound)

	st.FontSize = "huge"
	_, err = f.svc.SaveSettings(ctx, "me", st)
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))

	ack, err := f.svc.Report(ctx, "me", "u1", "spam")
	require.NoError(t, err)
	assert.Equal(t, "Report submitted for Kenji Tanaka. We will review this shortly.", ack)

	p, err := f.svc.Peer(ctx, "ai_7")
	require.NoError(t, err)
	assert.Equal(t, "New Connection", p.Name)
}

func TestHistoryOffersUnsendForLatestOwnMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return clock }

	first, err := f.svc.Send(ctx, "me", "u1", SendInput{Text: "Hello Kenji"})
	require.NoError(t, err)
	assert.True(t, first.CanUnsend)
	second, err := f.svc.Send(ctx, "me", "u1", SendInput{Text: "Second thought"})
	require.NoError(t, err)

	clock = clock.Add(10 * time.Second)
	msgs, err := f.svc.History(ctx, "me", "u1", false, "")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.False(t, msgs[0].CanUnsend, "greeting belongs to the peer")
	assert.False(t, msgs[1].CanUnsend, "only the latest own message")
	assert.True(t, msgs[2].CanUnsend)
	assert.Equal(t, second.ID, msgs[2].ID)

	found, err := f.svc.History(ctx, "me", "u1", false, "second")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].CanUnsend)

	peerView, err := f.svc.History(ctx, "u1", "me", false, "")
	require.NoError(t, err)
	for _, m := range peerView {
		assert.False(t, m.CanUnsend, m.ID)
	}

	clock = clock.Add(21 * time.Second)
	msgs, err = f.svc.History(ctx, "me", "u1", false, "")
	require.NoError(t, err)
	for _, m := range msgs {
		assert.False(t, m.CanUnsend, m.ID)
	}
	assert.Error(t, f.svc.Unsend(ctx, "me", "u1", second.ID))
}
