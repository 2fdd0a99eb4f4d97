// Package realtime implements the best-effort broadcast channel: connected
// clients receive events over Server-Sent Events, and a Redis relay can fan
// the same events out across several server instances.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrInvalidEvent is returned for event names that are empty, too long or
// contain line breaks (which would corrupt the SSE framing).
var ErrInvalidEvent = errors.New("invalid event name")

const maxEventNameLength = 64

// Broadcaster sends an event to every connected client.
// There is no acknowledgement and no persistence: the returned count is how
// many receivers the event was handed to, not how many processed it.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any) (int, error)
}

// Hub keeps track of the SSE clients connected to this process.
type Hub struct {
	clients map[string]chan SSEEvent
	mu      sync.RWMutex
	buffer  int
	seq     atomic.Uint64
	closed  bool
	logger  *slog.Logger
}

// NewHub creates a hub whose clients each buffer up to `buffer` events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]chan SSEEvent),
		buffer:  buffer,
		logger:  logger,
	}
}

// NewClient registers a client and returns its id and event channel.
// The channel is closed by RemoveClient.
func (h *Hub) NewClient() (string, <-chan SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clientID := uuid.NewString()
	ch := make(chan SSEEvent, h.buffer)
	if h.closed {
		close(ch)
		return clientID, ch
	}
	h.clients[clientID] = ch
	h.logger.Debug("sse client registered", slog.String("client_id", clientID))
	return clientID, ch
}

// RemoveClient unregisters a client and closes its channel.
// Removing an unknown client is a no-op.
func (h *Hub) RemoveClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
		h.logger.Debug("sse client removed", slog.String("client_id", clientID))
	}
}

// Close disconnects every client and makes later clients end immediately.
// Streams see their channel close and return, which lets server shutdown finish.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for clientID, ch := range h.clients {
		close(ch)
		delete(h.clients, clientID)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast implements Broadcaster for the clients of this process.
func (h *Hub) Broadcast(ctx context.Context, event string, payload any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := encodeEvent(event, payload)
	if err != nil {
		return 0, err
	}
	return h.Deliver(NewSSEEvent(event, string(data))), nil
}

// Deliver hands evt to every client without blocking. Clients whose buffer is
// full miss the event. It returns the number of clients that got it.
func (h *Hub) Deliver(evt SSEEvent) int {
	if evt.ID == "" {
		evt.ID = strconv.FormatUint(h.seq.Add(1), 10)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for clientID, ch := range h.clients {
		select {
		case ch <- evt:
			delivered++
		default:
			h.logger.Warn("dropping event for slow sse client",
				slog.String("client_id", clientID),
				slog.String("event", evt.Event),
			)
		}
	}
	return delivered
}

// ValidateEventName checks that name can be used as an SSE event type.
func ValidateEventName(name string) error {
	if name == "" || len(name) > maxEventNameLength || strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidEvent, name)
	}
	return nil
}

func encodeEvent(event string, payload any) ([]byte, error) {
	if err := ValidateEventName(event); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return data, nil
}

var _ Broadcaster = (*Hub)(nil)
