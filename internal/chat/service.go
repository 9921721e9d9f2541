package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"bridgeme/internal/ai"
	"bridgeme/internal/apperr"
	"bridgeme/internal/call"
	"bridgeme/internal/kv"
	"bridgeme/internal/logger"
	"bridgeme/internal/media"
	"bridgeme/internal/metrics"
	"bridgeme/internal/user"

	"github.com/bwmarrin/snowflake"
)

const (
	Greeting     = "Hello! I saw your profile. I would love to connect."
	AutoReply    = "That sounds wonderful! Tell me more about it."
	historyLimit = 200
)

var ErrNotAudio = errors.New("voice message must be audio")

// Publisher delivers events to the member's connected clients.
type Publisher interface {
	Publish(ctx context.Context, userID string, ev Event)
}

type Options struct {
	Directory user.Directory
	AI        ai.Service
	Docs      kv.Store
	Archive   Repository
	Publisher Publisher
	Media     media.ObjectStore
	Devices   call.Devices
	Recorder  call.Recorder

	// AutoReplyDelay is how long the simulated counterpart takes to answer.
	// Zero disables the auto reply.
	AutoReplyDelay time.Duration
	CallTick       time.Duration
	NodeID         int64
}

type Service struct {
	opts Options
	node *snowflake.Node

	mu       sync.Mutex
	convs    map[string]*Conversation
	calls    map[string]*call.Controller
	timers   map[uint64]*time.Timer
	timerSeq uint64
	closed   bool

	now func() time.Time
}

func NewService(opts Options) (*Service, error) {
	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	if opts.Archive == nil {
		opts.Archive = NewMemoryRepository(nil)
	}
	if opts.AI == nil {
		opts.AI = ai.Disabled{}
	}
	if opts.Docs == nil {
		opts.Docs = kv.NewMemoryStore()
	}
	if opts.Devices == nil {
		opts.Devices = &call.SimulatedDevices{}
	}
	if opts.Recorder == nil {
		opts.Recorder = call.SimulatedRecorder{}
	}
	return &Service{
		opts:   opts,
		node:   node,
		convs:  make(map[string]*Conversation),
		calls:  make(map[string]*call.Controller),
		timers: make(map[uint64]*time.Timer),
		now:    time.Now,
	}, nil
}

func (s *Service) newID() string { return s.node.Generate().String() }

// toAppErr maps domain errors to their HTTP meaning.
func toAppErr(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return err
	}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrUnsupportedEmoji), errors.Is(err, ErrNotTranslatable),
		errors.Is(err, ErrNotAudio), errors.Is(err, call.ErrInvalidMedium), errors.Is(err, call.ErrVideoOnly),
		errors.Is(err, media.ErrTooLarge), errors.Is(err, media.ErrNotImage), errors.Is(err, media.ErrNotDataURL):
		code = http.StatusBadRequest
	case errors.Is(err, ErrMessageNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrNotUnsendable), errors.Is(err, ErrUnsendWindowClosed):
		code = http.StatusForbidden
	case errors.Is(err, ErrAlreadyTranslated), errors.Is(err, ErrTranslationPending), errors.Is(err, ErrStaleTranslation),
		errors.Is(err, call.ErrCallActive), errors.Is(err, call.ErrNoActiveCall), errors.Is(err, call.ErrAlreadyRecording),
		errors.Is(err, call.ErrNotRecording), errors.Is(err, call.ErrPermissionDenied):
		code = http.StatusConflict
	default:
		return err
	}
	return apperr.Wrap(code, err.Error(), err)
}

// Peer returns the counterpart profile. Members that only exist as AI
// suggestions get a generic placeholder.
func (s *Service) Peer(ctx context.Context, peerID string) (*user.Profile, error) {
	if s.opts.Directory != nil {
		p, err := s.opts.Directory.Get(ctx, peerID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, user.ErrNotFound) {
			return nil, err
		}
	}
	return &user.Profile{
		ID:       peerID,
		Name:     "New Connection",
		Age:      50,
		Role:     user.GenX,
		Location: "Global",
		Avatar:   "https://picsum.photos/200/200?random=" + peerID,
		Offers:   []user.Skill{},
		Needs:    []user.Skill{},
		Bio:      "A new friend found via AI.",
	}, nil
}

// Open returns the conversation with peerID, restoring it from the archive
// or starting it with the counterpart's greeting.
func (s *Service) Open(ctx context.Context, userID, peerID string) (*Conversation, error) {
	if peerID == "" || peerID == userID {
		return nil, apperr.BadRequest("choose someone else to chat with")
	}
	k := pairKey(userID, peerID)

	s.mu.Lock()
	c, ok := s.convs[k]
	s.mu.Unlock()
	if ok {
		return c, nil
	}

	history, err := s.opts.Archive.RecentMessages(ctx, userID, peerID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	c = NewConversation(userID, peerID, s.newID, s.now)
	var greeting *Message
	if len(history) > 0 {
		c.Restore(history)
	} else {
		g := Message{ID: s.newID(), SenderID: peerID, Text: Greeting, Timestamp: s.now().Add(-10 * time.Second), Kind: KindText}
		c.Restore([]Message{g})
		greeting = &g
	}

	s.mu.Lock()
	if existing, ok := s.convs[k]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.convs[k] = c
	s.mu.Unlock()

	if greeting != nil {
		s.archive(ctx, userID, peerID, *greeting)
	}
	return c, nil
}

func (s *Service) archive(ctx context.Context, userID, peerID string, m Message) {
	if err := s.opts.Archive.SaveMessage(ctx, userID, peerID, m); err != nil {
		logger.Error().Err(err).Str("message", m.ID).Msg("❌ DB Error: archive message")
	}
}

func (s *Service) publish(ctx context.Context, userID string, ev Event) {
	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(ctx, userID, ev)
	}
}

func (s *Service) appended(ctx context.Context, userID, peerID string, m Message) {
	metrics.ChatMessages.WithLabelValues(string(m.Kind)).Inc()
	s.archive(ctx, userID, peerID, m)
	s.publish(ctx, userID, Event{Type: EventMessage, PeerID: peerID, Message: &m})
}

func (s *Service) updated(ctx context.Context, userID, peerID string, m Message) {
	s.archive(ctx, userID, peerID, m)
	s.publish(ctx, userID, Event{Type: EventMessageUpdated, PeerID: peerID, Message: &m})
}

// History returns the conversation, optionally filtered by query and with
// translated messages shown in their original language.
func (s *Service) History(ctx context.Context, userID, peerID string, showOriginal bool, query string) ([]Message, error) {
	c, err := s.Open(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if query == "" {
		msgs = c.View(showOriginal)
	} else {
		msgs = c.Search(query)
		if showOriginal {
			for i := range msgs {
				if msgs[i].Translation.Status == Translated {
					msgs[i].Text = msgs[i].Translation.Original
				}
			}
		}
	}
	c.MarkUnsendable(msgs, userID, s.now())
	return msgs, nil
}

func (s *Service) Send(ctx context.Context, userID, peerID string, in SendInput) (Message, error) {
	c, err := s.Open(ctx, userID, peerID)
	if err != nil {
		return Message{}, err
	}
	in.SenderID = userID
	m, err := c.Send(in)
	if err != nil {
		return Message{}, toAppErr(err)
	}
	s.appended(ctx, userID, peerID, m)
	s.scheduleAutoReply(userID, peerID, c)
	m.CanUnsend = c.CanUnsend(m.ID, userID, s.now())
	return m, nil
}

func (s *Service) scheduleAutoReply(userID, peerID string, c *Conversation) {
	if s.opts.AutoReplyDelay <= 0 {
		return
	}
	s.publish(context.Background(), userID, Event{Type: EventTyping, PeerID: peerID, Typing: true})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.timerSeq++
	id := s.timerSeq
	s.timers[id] = time.AfterFunc(s.opts.AutoReplyDelay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		ctx := context.Background()
		m, err := c.Send(SendInput{SenderID: peerID, Text: AutoReply})
		if err != nil {
			return
		}
		s.appended(ctx, userID, peerID, m)
		s.publish(ctx, userID, Event{Type: EventTyping, PeerID: peerID, Typing: false})
	})
}

func (s *Service) upload(ctx context.Context, userID string, d media.DataURL) (string, error) {
	if s.opts.Media == nil {
		return d.String(), nil
	}
	ext := d.MIMEType[strings.LastIndex(d.MIMEType, "/")+1:]
	key := fmt.Sprintf("chat/%s/%s.%s", userID, s.newID(), ext)
	url, err := s.opts.Media.Put(ctx, key, d.MIMEType, d.Data)
	if err != nil {
		return "", apperr.Unavailable("Could not upload file. Please try again.", err)
	}
	return url, nil
}

func (s *Service) SendImage(ctx context.Context, userID, peerID, dataURL string) (Message, error) {
	d, err := media.ValidateImageUpload(dataURL)
	if err != nil {
		if errors.Is(err, media.ErrTooLarge) {
			return Message{}, apperr.Wrap(http.StatusBadRequest, "File size too large. Please upload an image under 5MB.", err)
		}
		return Message{}, toAppErr(err)
	}
	c, err := s.Open(ctx, userID, peerID)
	if err != nil {
		return Message{}, err
	}
	url, err := s.upload(ctx, userID, d)
	if err != nil {
		return Message{}, err
	}
	m, err := c.SendImage(userID, url)
	if err != nil {
		return Message{}, toAppErr(err)
	}
	s.appended(ctx, userID, peerID, m)
	return m, nil
}

func (s *Service) SendAudio(ctx context.Context, userID, peerID, dataURL string, seconds int) (Message, error) {
	if media.DecodedSize(dataURL) > media.MaxUploadBytes {
		return Message{}, toAppErr(media.ErrTooLarge)
	}
	d, err := media.ParseDataURL(dataURL)
	if err != nil {
		return Message{}, toAppErr(err)
	}
	if !strings.HasPrefix(d.MIMEType, "audio/") {
		return Message{}, toAppErr(ErrNotAudio)
	}
	c, err := s.Open(ctx, userID, peerID)
	if err != nil {
		return Message{}, err
	}
	url, err := s.upload(ctx, userID, d)
	if err != nil {
		return Message{}, err
	}
	m, err := c.SendAudio(userID, url, seconds)
	if err != nil {
		return Message{}, toAppErr(err)
	}
	s.appended(ctx, userID, peerID, m)
	return m, nil
}

func (s *Service) ScheduleCall(ctx context.Context, userID, peerID string, medium call.Medium, when time.Time) (Message, error) {
	c, err := s.Open(ctx, userID, peerID)
	if err != nil {
		return Message{}, err
	}
	m, err := c.ScheduleCall(userID, medium, when)
	if err != nil {
		return Message{}, toAppErr(err)
	}
	s.appended(ctx, userID, peerID, m)
	return m, nil
}

func (s *Service) React(ctx context.Context, userID, peerID, msgID, emoji string) (Message, error) {
	c, err := s.Open(ctx, userID, peerID)
	if err != nil {
		return Message{}, err
	}
	m, err := c.ToggleReaction(msgID, emoji, userID)
	if err != nil {
		return Message{}, toAppErr(err)
	}
	s.updated(ctx, userID, peerID, m)
	return m, nil
}

func (s *Service) Unsend(ctx context.Context, userID, peerID, msgID string) error {
	c, err := s.Open(ctx, userID, peerID)
	if err != nil {
		return err
	}
	if err := c.Unsend(msgID, userID, s.now()); err != nil {
		return toAppErr(err)
	}
	if err := s.opts.Archive.DeleteMessage(ctx, userID, peerID, msgID); err != nil {
		logger.Error().Err(err).Str("message", msgID).Msg("❌ DB Error: delete message")
	}
	s.publish(ctx, userID, Event{Type: EventMessageRemoved, PeerID: peerID, MessageID: msgID})
	return nil
}

// Translate runs the translation outside the conversation lock. A result
// that arrives after the message was unsent or retranslated is dropped.
func (s *Service) Translate(ctx context.Context, userID, peerID, msgID, lang string) (Message, error) {
	if lang == "" {
		lang = "English"
	}
	if !ai.IsSupportedLanguage(lang) {
		return Message{}, apperr.BadRequest(fmt.Sprintf("unsupported language %q", lang))
	}
	c, err := s.Open(ctx, userID, peerID)
	if err != nil {
		return Message{}, err
	}
	token, text, err := c.BeginTranslation(msgID)
	if err != nil {
		return Message{}, toAppErr(err)
	}
	if pending, ok := c.Message(msgID); ok {
		s.publish(ctx, userID, Event{Type: EventMessageUpdated, PeerID: peerID, Message: &pending})
	}

	translated, err := s.opts.AI.Translate(ctx, text, lang)
	if err != nil {
		m, ferr := c.FailTranslation(msgID, token, err)
		if ferr == nil {
			s.updated(context.WithoutCancel(ctx), userID, peerID, m)
		}
		return Message{}, apperr.Unavailable("Could not translate message. Please try again.", err)
	}

	m, err := c.CompleteTranslation(msgID, token, translated)
	if err != nil {
		logger.Debug().Str("message", msgID).Msg("Dropped late translation")
		return Message{}, toAppErr(err)
	}
	s.updated(ctx, userID, peerID, m)
	return m, nil
}

// Starters suggests three openers for the conversation with peerID.
func (s *Service) Starters(ctx context.Context, peerID string) ([]string, error) {
	p, err := s.Peer(ctx, peerID)
	if err != nil {
		return nil, err
	}
	about := fmt.Sprintf(`
User Name: %s
Generation/Role: %s
Location: %s
Skills Offered: %s
Skills Needed: %s
Bio: %s
App Context: BridgeMe (Intergenerational skill swap & connection)`,
		p.Name, p.Role, p.Location, joinSkills(p.Offers), joinSkills(p.Needs), p.Bio)
	return s.opts.AI.ConversationStarters(ctx, about)
}

func joinSkills(skills []user.Skill) string {
	parts := make([]string, len(skills))
	for i, sk := range skills {
		parts[i] = string(sk)
	}
	return strings.Join(parts, ", ")
}

func (s *Service) Settings(ctx context.Context, userID string) (Settings, error) {
	st := DefaultSettings()
	if _, err := kv.Load(ctx, s.opts.Docs, kv.DocChatSettings, userID, &st); err != nil {
		return DefaultSettings(), err
	}
	return st, nil
}

func (s *Service) SaveSettings(ctx context.Context, userID string, st Settings) (Settings, error) {
	if st.Theme != "light" && st.Theme != "dark" {
		return Settings{}, apperr.BadRequest("theme must be light or dark")
	}
	switch st.FontSize {
	case "small", "medium", "large":
	default:
		return Settings{}, apperr.BadRequest("font size must be small, medium or large")
	}
	if err := kv.Save(ctx, s.opts.Docs, kv.DocChatSettings, userID, st); err != nil {
		return Settings{}, fmt.Errorf("save chat settings: %w", err)
	}
	return st, nil
}

// Report records a complaint about a member.
func (s *Service) Report(ctx context.Context, userID, peerID, reason string) (string, error) {
	p, err := s.Peer(ctx, peerID)
	if err != nil {
		return "", err
	}
	logger.Warn().Str("reporter", userID).Str("reported", peerID).Str("reason", reason).Msg("⚠️ User reported")
	return fmt.Sprintf("Report submitted for %s. We will review this shortly.", p.Name), nil
}

// Close stops pending auto replies and hangs up every active call.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	ctrls := make([]*call.Controller, 0, len(s.calls))
	for _, c := range s.calls {
		ctrls = append(ctrls, c)
	}
	s.mu.Unlock()

	for _, c := range ctrls {
		c.End(context.Background(), call.Completed)
	}
}
