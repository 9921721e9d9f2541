package chat

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"bridgeme/internal/call"
	"bridgeme/internal/media"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestConversation() (*Conversation, *clock) {
	clk := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
	return NewConversation("me", "u1", ids, clk.now), clk
}

func TestSendAndReply(t *testing.T) {
	c, _ := newTestConversation()

	_, err := c.Send(SendInput{SenderID: "me", Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, c.Messages())

	first, err := c.Send(SendInput{SenderID: "u1", Text: "Hello!"})
	require.NoError(t, err)
	reply, err := c.Send(SendInput{SenderID: "me", Text: "Hi Kenji", ReplyTo: first.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, ReplyRef{ID: first.ID, Text: "Hello!", SenderID: "u1"}, *reply.ReplyTo)

	_, err = c.Send(SendInput{SenderID: "me", Text: "x", ReplyTo: "nope"})
	assert.ErrorIs(t, err, ErrMessageNotFound)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{first.ID, reply.ID}, []string{msgs[0].ID, msgs[1].ID})
}

func TestSnapshotIsACopy(t *testing.T) {
	c, _ := newTestConversation()
	m, _ := c.Send(SendInput{SenderID: "me", Text: "hello"})
	_, err := c.ToggleReaction(m.ID, "👍", "me")
	require.NoError(t, err)

	msgs := c.Messages()
	msgs[0].Text = "changed"
	msgs[0].Reactions[0].Emoji = "🔥"

	again := c.Messages()
	assert.Equal(t, "hello", again[0].Text)
	assert.Equal(t, "👍", again[0].Reactions[0].Emoji)
}

func TestToggleReactionIsASet(t *testing.T) {
	c, _ := newTestConversation()
	m, _ := c.Send(SendInput{SenderID: "u1", Text: "Soba tonight?"})

	got, err := c.ToggleReaction(m.ID, "❤️", "me")
	require.NoError(t, err)
	assert.Equal(t, []Reaction{{Emoji: "❤️", UserID: "me"}}, got.Reactions)

	got, _ = c.ToggleReaction(m.ID, "❤️", "u1")
	assert.Len(t, got.Reactions, 2)

	got, _ = c.ToggleReaction(m.ID, "❤️", "me")
	assert.Equal(t, []Reaction{{Emoji: "❤️", UserID: "u1"}}, got.Reactions)

	got, _ = c.ToggleReaction(m.ID, "❤️", "u1")
	assert.Empty(t, got.Reactions)

	_, err = c.ToggleReaction(m.ID, "🦄", "me")
	assert.ErrorIs(t, err, ErrUnsupportedEmoji)
	_, err = c.ToggleReaction("missing", "👍", "me")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestUnsendRules(t *testing.T) {
	c, clk := newTestConversation()
	older, _ := c.Send(SendInput{SenderID: "me", Text: "first"})
	latest, _ := c.Send(SendInput{SenderID: "me", Text: "second"})
	theirs, _ := c.Send(SendInput{SenderID: "u1", Text: "reply"})

	assert.False(t, c.CanUnsend(older.ID, "me", clk.now()))
	assert.ErrorIs(t, c.Unsend(older.ID, "me", clk.now()), ErrNotUnsendable)
	assert.ErrorIs(t, c.Unsend(theirs.ID, "me", clk.now()), ErrNotUnsendable)
	assert.True(t, c.CanUnsend(latest.ID, "me", clk.now()))

	clk.advance(UnsendWindow)
	assert.False(t, c.CanUnsend(latest.ID, "me", clk.now()))
	assert.ErrorIs(t, c.Unsend(latest.ID, "me", clk.now()), ErrUnsendWindowClosed)
	assert.Len(t, c.Messages(), 3)

	fresh, _ := c.Send(SendInput{SenderID: "me", Text: "third"})
	clk.advance(29 * time.Second)
	require.NoError(t, c.Unsend(fresh.ID, "me", clk.now()))
	assert.Len(t, c.Messages(), 3)

	// the previous message is now the latest one, but its window has closed
	assert.False(t, c.CanUnsend(latest.ID, "me", clk.now()))
}

func TestTranslationLifecycle(t *testing.T) {
	c, _ := newTestConversation()
	m, _ := c.Send(SendInput{SenderID: "u1", Text: "こんにちは"})

	token, text, err := c.BeginTranslation(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", text)

	_, _, err = c.BeginTranslation(m.ID)
	assert.ErrorIs(t, err, ErrTranslationPending)

	_, err = c.CompleteTranslation(m.ID, token+1, "wrong")
	assert.ErrorIs(t, err, ErrStaleTranslation)

	done, err := c.CompleteTranslation(m.ID, token, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello", done.Text)
	assert.Equal(t, Translated, done.Translation.Status)
	assert.Equal(t, "こんにちは", done.Translation.Original)

	assert.Equal(t, "Hello", c.View(false)[0].Text)
	assert.Equal(t, "こんにちは", c.View(true)[0].Text)
	assert.Equal(t, "Hello", c.Messages()[0].Text, "View must not mutate")

	_, _, err = c.BeginTranslation(m.ID)
	assert.ErrorIs(t, err, ErrAlreadyTranslated)

	assert.Len(t, c.Search("HELLO"), 1)
	assert.Len(t, c.Search("こんにちは"), 1)
	assert.Empty(t, c.Search("bonjour"))
}

func TestTranslationFailureAndRetry(t *testing.T) {
	c, _ := newTestConversation()
	m, _ := c.Send(SendInput{SenderID: "u1", Text: "Ciao"})

	token, _, _ := c.BeginTranslation(m.ID)
	failed, err := c.FailTranslation(m.ID, token, errors.New("quota"))
	require.NoError(t, err)
	assert.Equal(t, TranslationFailed, failed.Translation.Status)
	assert.Equal(t, "Ciao", failed.Text)

	// a late success for the failed attempt is ignored
	_, err = c.CompleteTranslation(m.ID, token, "Hi")
	assert.ErrorIs(t, err, ErrStaleTranslation)

	retry, _, err := c.BeginTranslation(m.ID)
	require.NoError(t, err)
	assert.NotEqual(t, token, retry)
	_, err = c.CompleteTranslation(m.ID, retry, "Hi")
	require.NoError(t, err)
}

func TestTranslationOfUnsentMessageIsDropped(t *testing.T) {
	c, clk := newTestConversation()
	m, _ := c.Send(SendInput{SenderID: "me", Text: "Hola"})

	token, _, err := c.BeginTranslation(m.ID)
	require.NoError(t, err)
	require.NoError(t, c.Unsend(m.ID, "me", clk.now()))

	_, err = c.CompleteTranslation(m.ID, token, "Hello")
	assert.ErrorIs(t, err, ErrStaleTranslation)
	assert.Empty(t, c.Messages())
}

func TestMediaAndSystemMessages(t *testing.T) {
	c, clk := newTestConversation()

	big := "data:image/png;base64," + strings.Repeat("A", (media.MaxUploadBytes/3+10)*4)
	_, err := c.SendImage("me", big)
	assert.ErrorIs(t, err, media.ErrTooLarge)
	assert.Empty(t, c.Messages())

	img, err := c.SendImage("me", "data:image/png;base64,iVBORw0K")
	require.NoError(t, err)
	assert.Equal(t, KindImage, img.Kind)
	assert.Equal(t, "Image Upload", img.Text)

	_, _, err = c.BeginTranslation(img.ID)
	assert.ErrorIs(t, err, ErrNotTranslatable)

	voice, err := c.SendAudio("me", "https://media.test/a.webm", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, voice.AudioDuration)

	when := clk.now().Add(24 * time.Hour)
	sched, err := c.ScheduleCall("me", call.Video, when)
	require.NoError(t, err)
	assert.Equal(t, "Video Call Scheduled", sched.Text)
	assert.Equal(t, KindScheduledCall, sched.Kind)
	assert.Equal(t, when, *sched.ScheduledTime)

	_, err = c.ScheduleCall("me", call.Medium("carrier pigeon"), when)
	assert.ErrorIs(t, err, call.ErrInvalidMedium)

	sys := c.AppendSystem("Audio Call ended • 0:42", KindCallLog, call.Audio)
	assert.Equal(t, SystemSender, sys.SenderID)
	assert.Equal(t, call.Audio, sys.CallType)
	assert.Len(t, c.Messages(), 4)
}

func TestRestoreResetsPendingTranslation(t *testing.T) {
	c, _ := newTestConversation()
	c.Restore([]Message{{ID: "old", SenderID: "u1", Text: "hi", Kind: KindText, Translation: Translation{Status: TranslationActive, Token: 9}}})

	m, ok := c.Message("old")
	require.True(t, ok)
	assert.Equal(t, Untranslated, m.Translation.Status)
	_, _, err := c.BeginTranslation("old")
	assert.NoError(t, err)
}
