// notes/hub/hub.go

// Package hub fans engine notifications out to every connected client of a
// user.
package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ViniZap4/lumi-notes/domain"
)

const (
	TypeTreeChanged = "tree_changed"
	TypeOpResult    = "op_result"
)

type Message struct {
	Type  string           `json:"type"`
	Tree  *domain.TreeView `json:"tree,omitempty"`
	OpID  string           `json:"op_id,omitempty"`
	Error string           `json:"error,omitempty"`
}

func TreeChanged(view domain.TreeView) Message {
	return Message{Type: TypeTreeChanged, Tree: &view}
}

func OpResult(opID string, err error) Message {
	m := Message{Type: TypeOpResult, OpID: opID}
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

// Client is one connected stream. Messages that do not fit its buffer are
// dropped; the next tree_changed carries the full state anyway.
type Client struct {
	userID string
	send   chan Message
}

func (c *Client) UserID() string { return c.userID }

// Messages is closed when the client is unsubscribed or the hub stops.
func (c *Client) Messages() <-chan Message { return c.send }

type envelope struct {
	userID string
	msg    Message
}

type Hub struct {
	clients    map[string]map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	bufferSize int
	logger     zerolog.Logger
}

func New() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		bufferSize: 64,
		logger:     zerolog.Nop(),
	}
}

func (h *Hub) SetLogger(logger zerolog.Logger) {
	h.logger = logger.With().Str("component", "hub").Logger()
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*Client]bool)
			}
			h.clients[c.userID][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.userID]; ok && set[c] {
				delete(set, c)
				close(c.send)
				if len(set) == 0 {
					delete(h.clients, c.userID)
				}
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients[env.userID] {
				select {
				case c.send <- env.msg:
				default:
					h.logger.Debug().Str("user_id", env.userID).Str("type", env.msg.Type).Msg("client buffer full, dropping message")
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Subscribe registers a new client for userID. It returns nil once the hub
// has stopped.
func (h *Hub) Subscribe(userID string) *Client {
	c := &Client{userID: userID, send: make(chan Message, h.bufferSize)}
	select {
	case h.register <- c:
		return c
	case <-h.done:
		return nil
	}
}

func (h *Hub) Unsubscribe(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues msg for every client of userID.
func (h *Hub) Publish(userID string, msg Message) {
	select {
	case h.broadcast <- envelope{userID: userID, msg: msg}:
	case <-h.done:
	}
}

func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
