package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bridgeme/internal/call"
	"bridgeme/internal/media"
)

const UnsendWindow = 30 * time.Second

var (
	ErrEmptyMessage       = errors.New("message text is empty")
	ErrMessageNotFound    = errors.New("message not found")
	ErrUnsupportedEmoji   = errors.New("unsupported reaction")
	ErrNotUnsendable      = errors.New("only your most recent message can be unsent")
	ErrUnsendWindowClosed = errors.New("messages can only be unsent within 30 seconds")
	ErrAlreadyTranslated  = errors.New("message already translated")
	ErrTranslationPending = errors.New("translation already in progress")
	ErrNotTranslatable    = errors.New("only text messages can be translated")
	ErrStaleTranslation   = errors.New("translation result no longer applies")
)

// Conversation is the ordered message list between the local member and one
// counterpart. Messages keep insertion order.
type Conversation struct {
	LocalID string
	PeerID  string

	mu       sync.Mutex
	messages []Message
	token    uint64

	newID func() string
	now   func() time.Time
}

func NewConversation(localID, peerID string, newID func() string, now func() time.Time) *Conversation {
	if now == nil {
		now = time.Now
	}
	return &Conversation{LocalID: localID, PeerID: peerID, newID: newID, now: now}
}

func (c *Conversation) indexOf(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) appendLocked(m Message) Message {
	if m.ID == "" {
		m.ID = c.newID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = c.now()
	}
	if m.Kind == "" {
		m.Kind = KindText
	}
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}
	c.messages = append(c.messages, m)
	return m.clone()
}

// Restore appends already persisted messages without touching ids or times.
func (c *Conversation) Restore(msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		m = m.clone()
		// A pending request did not survive the restart.
		if m.Translation.Status == TranslationActive {
			m.Translation = Translation{}
		}
		c.appendLocked(m)
	}
}

type SendInput struct {
	SenderID string `json:"-"`
	Text     string `json:"text"`
	ReplyTo  string `json:"replyTo,omitempty"`
}

func (c *Conversation) Send(in SendInput) (Message, error) {
	if strings.TrimSpace(in.Text) == "" {
		return Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m := Message{SenderID: in.SenderID, Text: in.Text, Kind: KindText}
	if in.ReplyTo != "" {
		i := c.indexOf(in.ReplyTo)
		if i < 0 {
			return Message{}, ErrMessageNotFound
		}
		ref := c.messages[i]
		m.ReplyTo = &ReplyRef{ID: ref.ID, Text: ref.Text, SenderID: ref.SenderID}
	}
	return c.appendLocked(m), nil
}

// SendImage appends an image message. Oversized or non-image payloads are
// rejected before anything changes.
func (c *Conversation) SendImage(senderID, imageURL string) (Message, error) {
	if strings.HasPrefix(imageURL, "data:") {
		if _, err := media.ValidateImageUpload(imageURL); err != nil {
			return Message{}, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(Message{SenderID: senderID, Text: "Image Upload", Kind: KindImage, ImageURL: imageURL}), nil
}

func (c *Conversation) SendAudio(senderID, audioURL string, seconds int) (Message, error) {
	if audioURL == "" {
		return Message{}, ErrEmptyMessage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(Message{SenderID: senderID, Kind: KindAudio, AudioURL: audioURL, AudioDuration: seconds}), nil
}

func (c *Conversation) ScheduleCall(senderID string, medium call.Medium, when time.Time) (Message, error) {
	if !medium.Valid() {
		return Message{}, call.ErrInvalidMedium
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(Message{
		SenderID:      senderID,
		Text:          fmt.Sprintf("%s Call Scheduled", medium.Title()),
		Kind:          KindScheduledCall,
		CallType:      medium,
		ScheduledTime: &when,
	}), nil
}

// AppendSystem adds an app generated line such as a call summary.
func (c *Conversation) AppendSystem(text string, kind Kind, medium call.Medium) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(Message{SenderID: SystemSender, Text: text, Kind: kind, CallType: medium})
}

// ToggleReaction adds the (emoji, user) pair if absent and removes it
// otherwise.
func (c *Conversation) ToggleReaction(msgID, emoji, userID string) (Message, error) {
	if !isReactionEmoji(emoji) {
		return Message{}, ErrUnsupportedEmoji
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(msgID)
	if i < 0 {
		return Message{}, ErrMessageNotFound
	}
	m := &c.messages[i]
	for j, r := range m.Reactions {
		if r.Emoji == emoji && r.UserID == userID {
			m.Reactions = append(m.Reactions[:j:j], m.Reactions[j+1:]...)
			return m.clone(), nil
		}
	}
	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, UserID: userID})
	return m.clone(), nil
}

func (c *Conversation) unsendCheck(msgID, userID string, now time.Time) error {
	i := c.indexOf(msgID)
	if i < 0 {
		return ErrMessageNotFound
	}
	for j := len(c.messages) - 1; j >= 0; j-- {
		if c.messages[j].SenderID != userID {
			continue
		}
		if j != i {
			return ErrNotUnsendable
		}
		if now.Sub(c.messages[i].Timestamp) >= UnsendWindow {
			return ErrUnsendWindowClosed
		}
		return nil
	}
	return ErrNotUnsendable
}

// CanUnsend reports whether msgID is userID's latest message and still
// inside the unsend window.
func (c *Conversation) CanUnsend(msgID, userID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsendCheck(msgID, userID, now) == nil
}

// MarkUnsendable flags the message in msgs that userID may still unsend.
// msgs may be any subset of the conversation, such as search results.
func (c *Conversation) MarkUnsendable(msgs []Message, userID string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var id string
	for j := len(c.messages) - 1; j >= 0; j-- {
		if c.messages[j].SenderID == userID {
			if c.unsendCheck(c.messages[j].ID, userID, now) == nil {
				id = c.messages[j].ID
			}
			break
		}
	}
	for i := range msgs {
		msgs[i].CanUnsend = id != "" && msgs[i].ID == id
	}
}

func (c *Conversation) Unsend(msgID, userID string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.unsendCheck(msgID, userID, now); err != nil {
		return err
	}
	i := c.indexOf(msgID)
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
	return nil
}

// BeginTranslation marks a text message pending and returns the token the
// result must carry along with the text to translate.
func (c *Conversation) BeginTranslation(msgID string) (uint64, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(msgID)
	if i < 0 {
		return 0, "", ErrMessageNotFound
	}
	m := &c.messages[i]
	if m.Kind != KindText {
		return 0, "", ErrNotTranslatable
	}
	switch m.Translation.Status {
	case Translated:
		return 0, "", ErrAlreadyTranslated
	case TranslationActive:
		return 0, "", ErrTranslationPending
	}
	c.token++
	m.Translation = Translation{Status: TranslationActive, Token: c.token}
	return c.token, m.Text, nil
}

func (c *Conversation) pendingLocked(msgID string, token uint64) (*Message, error) {
	i := c.indexOf(msgID)
	if i < 0 {
		return nil, ErrStaleTranslation
	}
	m := &c.messages[i]
	if m.Translation.Status != TranslationActive || m.Translation.Token != token {
		return nil, ErrStaleTranslation
	}
	return m, nil
}

func (c *Conversation) CompleteTranslation(msgID string, token uint64, translated string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.pendingLocked(msgID, token)
	if err != nil {
		return Message{}, err
	}
	m.Translation = Translation{Status: Translated, Original: m.Text}
	m.Text = translated
	return m.clone(), nil
}

func (c *Conversation) FailTranslation(msgID string, token uint64, cause error) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.pendingLocked(msgID, token)
	if err != nil {
		return Message{}, err
	}
	m.Translation = Translation{Status: TranslationFailed}
	if cause != nil {
		m.Translation.Error = cause.Error()
	}
	return m.clone(), nil
}

// Messages returns a snapshot copy.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.clone()
	}
	return out
}

// View renders the conversation with the original text of translated
// messages when showOriginal is set.
func (c *Conversation) View(showOriginal bool) []Message {
	out := c.Messages()
	if showOriginal {
		for i := range out {
			if out[i].Translation.Status == Translated {
				out[i].Text = out[i].Translation.Original
			}
		}
	}
	return out
}

// Search matches the displayed or the original text, ignoring case.
func (c *Conversation) Search(query string) []Message {
	q := strings.ToLower(query)
	var out []Message
	for _, m := range c.Messages() {
		if strings.Contains(strings.ToLower(m.Text), q) ||
			(m.Translation.Original != "" && strings.Contains(strings.ToLower(m.Translation.Original), q)) {
			out = append(out, m)
		}
	}
	return out
}

// Message returns a copy of one message.
func (c *Conversation) Message(id string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(id)
	if i < 0 {
		return Message{}, false
	}
	return c.messages[i].clone(), true
}
