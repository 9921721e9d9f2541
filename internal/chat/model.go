package chat

import (
	"time"

	"bridgeme/internal/call"
)

// ---------------------------------------------
// 🗄️ Conversation Models
// ---------------------------------------------

type Kind string

const (
	KindText          Kind = "text"
	KindImage         Kind = "image"
	KindAudio         Kind = "audio"
	KindCallLog       Kind = "call_log"
	KindScheduledCall Kind = "scheduled_call"
)

// SystemSender marks messages produced by the app rather than a member.
const SystemSender = "system"

type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"userId"`
}

var ReactionEmojis = []string{"👍", "❤️", "😂", "😮", "😢", "🙏", "🎉", "🔥"}

func isReactionEmoji(e string) bool {
	for _, r := range ReactionEmojis {
		if r == e {
			return true
		}
	}
	return false
}

// ReplyRef is a copy of the quoted message taken when the reply was sent.
type ReplyRef struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	SenderID string `json:"senderId"`
}

type TranslationStatus string

const (
	Untranslated      TranslationStatus = ""
	TranslationActive TranslationStatus = "pending"
	Translated        TranslationStatus = "translated"
	TranslationFailed TranslationStatus = "failed"
)

// Translation is the per-message translation state. Token identifies the
// request that owns a pending translation; results carrying any other token
// are dropped.
type Translation struct {
	Status   TranslationStatus `json:"status,omitempty"`
	Token    uint64            `json:"-"`
	Original string            `json:"originalText,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type Message struct {
	ID            string      `json:"id"`
	SenderID      string      `json:"senderId"`
	Text          string      `json:"text"`
	Timestamp     time.Time   `json:"timestamp"`
	Kind          Kind        `json:"type"`
	Translation   Translation `json:"translation"`
	Reactions     []Reaction  `json:"reactions"`
	ReplyTo       *ReplyRef   `json:"replyTo,omitempty"`
	ImageURL      string      `json:"imageUrl,omitempty"`
	AudioURL      string      `json:"audioUrl,omitempty"`
	AudioDuration int         `json:"audioDuration,omitempty"`
	CallType      call.Medium `json:"callType,omitempty"`
	ScheduledTime *time.Time  `json:"scheduledTime,omitempty"`

	// CanUnsend is computed for the member reading the message and never stored.
	CanUnsend bool `json:"canUnsend"`
}

func (m Message) clone() Message {
	m.Reactions = append([]Reaction{}, m.Reactions...)
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		m.ReplyTo = &r
	}
	if m.ScheduledTime != nil {
		t := *m.ScheduledTime
		m.ScheduledTime = &t
	}
	return m
}

type CallLog = call.Log

// Settings is the per-member chat appearance document.
type Settings struct {
	Theme         string        `json:"theme"`
	FontSize      string        `json:"fontSize"`
	Notifications Notifications `json:"notifications"`
}

type Notifications struct {
	Sound     bool `json:"sound"`
	Vibration bool `json:"vibration"`
}

func DefaultSettings() Settings {
	return Settings{Theme: "light", FontSize: "medium", Notifications: Notifications{Sound: true, Vibration: true}}
}

// ---------------------------------------------
// ⚡ Internal Hub Models
// ---------------------------------------------

type EventType string

const (
	EventMessage        EventType = "message"
	EventMessageUpdated EventType = "message_updated"
	EventMessageRemoved EventType = "message_removed"
	EventTyping         EventType = "typing"
	EventCallEnded      EventType = "call_ended"
	EventError          EventType = "error"
)

// Event is what connected clients receive.
type Event struct {
	Type      EventType `json:"type"`
	PeerID    string    `json:"peerId"`
	Message   *Message  `json:"message,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Call      *CallLog  `json:"call,omitempty"`
	Typing    bool      `json:"typing,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// envelope is the payload carried over Redis between instances.
type envelope struct {
	UserID string `json:"userId"`
	Event  Event  `json:"event"`
}

// WSMessage is the command JSON the frontend SENDS over the socket.
type WSMessage struct {
	Action   string `json:"action"` // send, react, unsend, translate
	PeerID   string `json:"peerId"`
	Text     string `json:"text,omitempty"`
	ReplyTo  string `json:"replyTo,omitempty"`
	ID       string `json:"messageId,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
	Language string `json:"language,omitempty"`
}
