// Package live pushes progress updates to connected dashboards over
// WebSocket.
package live

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

// Message is the envelope written to subscribers.
type Message struct {
	Type      string    `json:"type"`
	Owner     string    `json:"profileOwner"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

type subscriber struct {
	send chan Message
}

// Hub fans updates out to the subscribers of each profile owner.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
	now  func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*subscriber]struct{}),
		now:  time.Now,
	}
}

// Publish queues v for every subscriber of owner. A subscriber whose buffer
// is full misses the update.
func (h *Hub) Publish(_ context.Context, owner string, v any) {
	msg := Message{Type: "progress", Owner: owner, Timestamp: h.now(), Data: v}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[owner] {
		select {
		case s.send <- msg:
		default:
			slog.Warn("dropping progress update for slow subscriber", "user", owner)
		}
	}
}

// Subscribe registers a subscriber for owner. The returned func removes it.
func (h *Hub) Subscribe(owner string) (<-chan Message, func()) {
	s := &subscriber{send: make(chan Message, sendBuffer)}

	h.mu.Lock()
	if h.subs[owner] == nil {
		h.subs[owner] = make(map[*subscriber]struct{})
	}
	h.subs[owner][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.send, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[owner], s)
			if len(h.subs[owner]) == 0 {
				delete(h.subs, owner)
			}
		})
	}
}

// Subscribers returns the number of subscribers of owner.
func (h *Hub) Subscribers(owner string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[owner])
}

// Handler upgrades the request to a WebSocket and streams owner's updates
// until the client goes away. ownerOf resolves the owner of a request; an
// empty owner is rejected.
func (h *Hub) Handler(ownerOf func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := ownerOf(r)
		if owner == "" {
			http.Error(w, `{"error":"no active session"}`, http.StatusConflict)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Warn("websocket accept failed", "user", owner, "error", err)
			return
		}
		defer conn.CloseNow()

		msgs, unsubscribe := h.Subscribe(owner)
		defer unsubscribe()

		ctx := conn.CloseRead(r.Context())
		slog.Debug("progress subscriber connected", "user", owner)

		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				wctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := wsjson.Write(wctx, conn, msg)
				cancel()
				if err != nil {
					slog.Debug("progress subscriber gone", "user", owner, "error", err)
					return
				}
			}
		}
	})
}
