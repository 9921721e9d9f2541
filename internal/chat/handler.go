package chat

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"bridgeme/internal/apperr"
	"bridgeme/internal/call"
	"bridgeme/internal/logger"
	"bridgeme/internal/media"
	myMiddleware "bridgeme/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	hub     *Hub
	service *Service
}

func NewHandler(hub *Hub, service *Service) *Handler {
	return &Handler{hub: hub, service: service}
}

// Routes mounts the conversation endpoints under /chats/{peerID}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/chats/settings", h.GetSettings)
	r.Put("/chats/settings", h.SaveSettings)
	r.Route("/chats/{peerID}", func(r chi.Router) {
		r.Get("/messages", h.History)
		r.Post("/messages", h.Send)
		r.Post("/images", h.SendImage)
		r.Post("/audio", h.SendAudio)
		r.Post("/scheduled-calls", h.ScheduleCall)
		r.Post("/messages/{msgID}/reactions", h.React)
		r.Post("/messages/{msgID}/translation", h.Translate)
		r.Delete("/messages/{msgID}", h.Unsend)
		r.Get("/starters", h.Starters)
		r.Post("/report", h.Report)

		r.Get("/calls", h.CallHistory)
		r.Post("/call", h.StartCall)
		r.Get("/call", h.CallStatus)
		r.Patch("/call", h.ControlCall)
		r.Post("/call/recording", h.StartRecording)
		r.Delete("/call/recording", h.StopRecording)
		r.Delete("/call", h.EndCall)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return apperr.DecodeJSON(w, r, media.MaxUploadBodyBytes, v)
}

func ids(r *http.Request) (string, string) {
	return myMiddleware.UserID(r.Context()), chi.URLParam(r, "peerID")
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	showOriginal, _ := strconv.ParseBool(r.URL.Query().Get("original"))
	msgs, err := h.service.History(r.Context(), userID, peerID, showOriginal, r.URL.Query().Get("q"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, msgs)
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	var in SendInput
	if err := decode(w, r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	m, err := h.service.Send(r.Context(), userID, peerID, in)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusCreated, m)
}

func (h *Handler) SendImage(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	var in struct {
		Image string `json:"image"`
	}
	if err := decode(w, r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	m, err := h.service.SendImage(r.Context(), userID, peerID, in.Image)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusCreated, m)
}

func (h *Handler) SendAudio(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	var in struct {
		Audio    string `json:"audio"`
		Duration int    `json:"duration"`
	}
	if err := decode(w, r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	m, err := h.service.SendAudio(r.Context(), userID, peerID, in.Audio, in.Duration)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusCreated, m)
}

func (h *Handler) ScheduleCall(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	var in struct {
		Type call.Medium `json:"type"`
		When time.Time   `json:"scheduledTime"`
	}
	if err := decode(w, r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	m, err := h.service.ScheduleCall(r.Context(), userID, peerID, in.Type, in.When)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusCreated, m)
}

func (h *Handler) React(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	var in struct {
		Emoji string `json:"emoji"`
	}
	if err := decode(w, r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	m, err := h.service.React(r.Context(), userID, peerID, chi.URLParam(r, "msgID"), in.Emoji)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, m)
}

func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	var in struct {
		Language string `json:"language"`
	}
	if err := decode(w, r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	m, err := h.service.Translate(r.Context(), userID, peerID, chi.URLParam(r, "msgID"), in.Language)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, m)
}

func (h *Handler) Unsend(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	if err := h.service.Unsend(r.Context(), userID, peerID, chi.URLParam(r, "msgID")); err != nil {
		apperr.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Starters(w http.ResponseWriter, r *http.Request) {
	_, peerID := ids(r)
	out, err := h.service.Starters(r.Context(), peerID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, out)
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	var in struct {
		Reason string `json:"reason"`
	}
	// the reason is optional
	if err := decode(w, r, &in); apperr.StatusOf(err) == http.StatusRequestEntityTooLarge {
		apperr.Write(w, err)
		return
	}
	msg, err := h.service.Report(r.Context(), userID, peerID, in.Reason)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusAccepted, map[string]string{"message": msg})
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Settings(r.Context(), myMiddleware.UserID(r.Context()))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, st)
}

func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var st Settings
	if err := decode(w, r, &st); err != nil {
		apperr.Write(w, err)
		return
	}
	out, err := h.service.SaveSettings(r.Context(), myMiddleware.UserID(r.Context()), st)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, out)
}

func (h *Handler) CallHistory(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	logs, err := h.service.CallHistory(r.Context(), userID, peerID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, logs)
}

func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	var in struct {
		Type call.Medium `json:"type"`
	}
	if err := decode(w, r, &in); err != nil {
		apperr.Write(w, err)
		return
	}
	st, err := h.service.StartCall(r.Context(), userID, peerID, in.Type)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusCreated, st)
}

func (h *Handler) CallStatus(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	apperr.JSON(w, http.StatusOK, h.service.CallStatus(userID, peerID))
}

func (h *Handler) ControlCall(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	var ctl CallControl
	if err := decode(w, r, &ctl); err != nil {
		apperr.Write(w, err)
		return
	}
	st, err := h.service.ControlCall(userID, peerID, ctl)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, st)
}

func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	st, err := h.service.StartRecording(userID, peerID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, st)
}

func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	url, err := h.service.StopRecording(r.Context(), userID, peerID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, map[string]string{"recordingUrl": url})
}

func (h *Handler) EndCall(w http.ResponseWriter, r *http.Request) {
	userID, peerID := ids(r)
	outcome := call.Outcome(r.URL.Query().Get("outcome"))
	ev, err := h.service.EndCall(r.Context(), userID, peerID, outcome)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	apperr.JSON(w, http.StatusOK, map[string]any{"call": ev.Log, "summary": ev.Summary})
}

// ServeWs upgrades the connection and streams this member's chat events.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID := myMiddleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		Hub:      h.hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		UserID:   userID,
		Username: myMiddleware.Username(r.Context()),
		handle:   h.command,
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// command runs a websocket command. Results reach the client as hub events;
// failures are answered to the sending client only.
func (h *Handler) command(c *Client, msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch msg.Action {
	case "send":
		_, err = h.service.Send(ctx, c.UserID, msg.PeerID, SendInput{Text: msg.Text, ReplyTo: msg.ReplyTo})
	case "react":
		_, err = h.service.React(ctx, c.UserID, msg.PeerID, msg.ID, msg.Emoji)
	case "unsend":
		err = h.service.Unsend(ctx, c.UserID, msg.PeerID, msg.ID)
	case "translate":
		// translation can take a while, keep reading meanwhile
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := h.service.Translate(ctx, c.UserID, msg.PeerID, msg.ID, msg.Language); err != nil {
				c.reply(Event{Type: EventError, PeerID: msg.PeerID, MessageID: msg.ID, Error: err.Error()})
			}
		}()
	default:
		err = apperr.BadRequest("unknown action " + strconv.Quote(msg.Action))
	}
	if err != nil {
		c.reply(Event{Type: EventError, PeerID: msg.PeerID, MessageID: msg.ID, Error: err.Error()})
	}
}
