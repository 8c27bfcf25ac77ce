// Package events fans prediction events out to the streams a session has open.
package events

import (
	"sync"
	"time"

	"biomark/domain/prediction"
	"biomark/internal"
)

// ClientBuffer is how many undelivered messages a subscriber may hold before
// new ones are dropped for it
const ClientBuffer = 16

// Message is one notification delivered to a session's subscribers
type Message struct {
	SessionID string           `json:"session_id"`
	Type      string           `json:"event_type"`
	Event     prediction.Event `json:"event"`
	Timestamp time.Time        `json:"timestamp"`
}

// Hub manages subscriptions per session. Publishing never blocks: a
// subscriber whose buffer is full misses the message.
type Hub struct {
	clients   map[string]map[chan Message]struct{}
	clientsMu sync.RWMutex
	logger    *internal.Logger
}

// NewHub creates an empty hub
func NewHub(logger *internal.Logger) *Hub {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Hub{
		clients: make(map[string]map[chan Message]struct{}),
		logger:  logger,
	}
}

// Subscribe registers a new stream for sessionID. The returned function
// unsubscribes and is safe to call more than once.
func (h *Hub) Subscribe(sessionID string) (<-chan Message, func()) {
	ch := make(chan Message, ClientBuffer)

	h.clientsMu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[chan Message]struct{})
	}
	h.clients[sessionID][ch] = struct{}{}
	total := len(h.clients[sessionID])
	h.clientsMu.Unlock()

	h.logger.Debug("[Events] client registered for session %s (total clients: %d)", sessionID, total)
	return ch, func() { h.unsubscribe(sessionID, ch) }
}

func (h *Hub) unsubscribe(sessionID string, ch chan Message) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	clients, ok := h.clients[sessionID]
	if !ok {
		return
	}
	if _, ok := clients[ch]; !ok {
		return
	}
	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(h.clients, sessionID)
	}
}

// PublishPrediction sends e to every subscriber of sessionID
func (h *Hub) PublishPrediction(sessionID string, e prediction.Event) {
	msg := Message{
		SessionID: sessionID,
		Type:      "prediction",
		Event:     e.Clone(),
		Timestamp: time.Now().UTC(),
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for ch := range h.clients[sessionID] {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("[Events] client channel full for session %s, skipping event %s", sessionID, e.ID)
		}
	}
}

// CloseSession ends every stream of sessionID
func (h *Hub) CloseSession(sessionID string) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for ch := range h.clients[sessionID] {
		close(ch)
	}
	delete(h.clients, sessionID)
}

// CloseAll ends every open stream of every session
func (h *Hub) CloseAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	n := 0
	for sessionID, clients := range h.clients {
		for ch := range clients {
			close(ch)
			n++
		}
		delete(h.clients, sessionID)
	}
	if n > 0 {
		h.logger.Debug("[Events] closed %d open streams", n)
	}
}

// ClientCount returns the number of open streams for sessionID
func (h *Hub) ClientCount(sessionID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[sessionID])
}
