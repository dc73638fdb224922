// Package live implements the push channel that replaces the document
// store's snapshot listeners: a WebSocket hub keyed by poll ID. Page views
// subscribe once, receive poll-update and vote events as they happen, and
// tear the connection down on navigation. Ordering is whatever the hub
// delivers; clients re-sort vote lists by timestamp where it matters.
package live

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types pushed to subscribers.
const (
	EventPollUpdated = "poll.updated"
	EventVoteCast    = "vote.cast"
	EventPollDeleted = "poll.deleted"
)

// Event is one message pushed to every subscriber of a poll.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub fans events out to the WebSocket connections subscribed to each poll.
// All methods are safe for concurrent use.
type Hub struct {
	mu    sync.RWMutex
	polls map[string]map[*websocket.Conn]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{polls: make(map[string]map[*websocket.Conn]struct{})}
}

// Subscribe registers a connection for a poll's events.
func (h *Hub) Subscribe(pollID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.polls[pollID] == nil {
		h.polls[pollID] = make(map[*websocket.Conn]struct{})
	}
	h.polls[pollID][conn] = struct{}{}
	log.Debug().Str("poll_id", pollID).Int("subscribers", len(h.polls[pollID])).Msg("live: subscribed")
}

// Unsubscribe removes a connection and closes it. Removing the last
// subscriber drops the poll's bucket entirely.
func (h *Hub) Unsubscribe(pollID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.polls[pollID]; ok {
		delete(conns, conn)
		_ = conn.Close()
		if len(conns) == 0 {
			delete(h.polls, pollID)
		}
	}
}

// Subscribers returns the current number of connections for a poll.
func (h *Hub) Subscribers(pollID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.polls[pollID])
}

// Broadcast pushes an event to every subscriber of the poll. Connections
// that fail to write are closed and dropped.
func (h *Hub) Broadcast(pollID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.polls[pollID]
	if !ok {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("poll_id", pollID).Msg("live: marshal event")
		return
	}

	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("poll_id", pollID).Msg("live: dropping subscriber")
			_ = conn.Close()
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(h.polls, pollID)
	}
}
