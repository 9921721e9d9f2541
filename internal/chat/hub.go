package chat

import (
	"context"
	"encoding/json"

	"bridgeme/internal/logger"
	"bridgeme/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const eventsChannel = "bridgeme-events"

// Hub keeps the websocket clients of this instance. Events go out through
// Redis so every instance delivers them to its own clients; without Redis
// they are delivered locally.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope  // From Redis -> Clients
	Register   chan *Client   // New client joins
	Unregister chan *Client   // Client leaves
	direct     chan directMsg // Reply to a single client
	redis      *redis.Client
	done       chan struct{}
}

type directMsg struct {
	client  *Client
	payload []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		broadcast:  make(chan envelope, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		direct:     make(chan directMsg),
		clients:    make(map[*Client]bool),
		redis:      redisClient,
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.Register:
			h.clients[client] = true
			metrics.WSClients.Inc()

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}

		case d := <-h.direct:
			if _, ok := h.clients[d.client]; ok {
				select {
				case d.client.Send <- d.payload:
				default:
					h.drop(d.client)
				}
			}

		case env := <-h.broadcast:
			payload, err := json.Marshal(env.Event)
			if err != nil {
				continue
			}
			for client := range h.clients {
				if client.UserID != env.UserID {
					continue
				}
				select {
				case client.Send <- payload:
				default:
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	metrics.WSClients.Dec()
}

// Publish sends ev to every connected client of userID on any instance.
func (h *Hub) Publish(ctx context.Context, userID string, ev Event) {
	env := envelope{UserID: userID, Event: ev}
	if h.redis == nil {
		h.deliver(ctx, env)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error().Err(err).Msg("encode event")
		return
	}
	if err := h.redis.Publish(ctx, eventsChannel, data).Err(); err != nil {
		logger.Error().Err(err).Msg("❌ Redis publish failed, delivering locally")
		h.deliver(ctx, env)
	}
}

func (h *Hub) deliver(ctx context.Context, env envelope) {
	select {
	case h.broadcast <- env:
	case <-h.done:
	case <-ctx.Done():
	}
}

// SubscribeToRedis listens for events published by any instance.
func (h *Hub) SubscribeToRedis(ctx context.Context) {
	if h.redis == nil {
		return
	}
	pubsub := h.redis.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Warn().Err(err).Msg("bad event on redis")
				continue
			}
			h.deliver(ctx, env)
		}
	}
}
