// Package hub fans out engine events to connected subscribers.
//
// Every publish is serialized, so all subscribers observe one global order.
// A subscriber whose Send fails is evicted and closed; the failure never
// reaches the publisher.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/untoldecay/mission-control/internal/types"
)

// Subscriber receives encoded envelopes.
type Subscriber interface {
	// Send queues msg for delivery. It must not block.
	Send(msg []byte) error
	Close() error
}

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("hub: closed")

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used for connection and eviction messages.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithQueueSize bounds the outbound queue of each websocket subscriber.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithPingPeriod sets the websocket keepalive interval.
func WithPingPeriod(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingPeriod = d
		}
	}
}

// WithClock overrides the clock used for acknowledgement timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// Hub tracks subscribers and broadcasts envelopes to them.
type Hub struct {
	publishMu sync.Mutex

	mu     sync.RWMutex
	subs   map[Subscriber]struct{}
	closed bool

	log        *slog.Logger
	now        func() time.Time
	queueSize  int
	writeWait  time.Duration
	pingPeriod time.Duration
	upgrader   websocket.Upgrader
}

// New creates an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		subs:       make(map[Subscriber]struct{}),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
		queueSize:  256,
		writeWait:  10 * time.Second,
		pingPeriod: 30 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Viewers are served from other origins during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds s and sends it the connected acknowledgement before any
// other event.
func (h *Hub) Register(s Subscriber) error {
	ack, err := encode(types.EventConnected, map[string]any{"timestamp": h.now().UTC()})
	if err != nil {
		return err
	}

	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = s.Close()
		return ErrClosed
	}
	h.mu.Unlock()

	if err := s.Send(ack); err != nil {
		_ = s.Close()
		return fmt.Errorf("hub: send acknowledgement: %w", err)
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.log.Debug("subscriber connected", "subscribers", n)
	return nil
}

// Unregister removes and closes s. Unknown subscribers are ignored.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	if ok {
		_ = s.Close()
		h.log.Debug("subscriber disconnected", "subscribers", n)
	}
}

// Publish encodes one envelope and sends it to every subscriber. It returns
// an error only when the payload cannot be encoded.
func (h *Hub) Publish(eventType types.EventType, payload any) error {
	msg, err := encode(eventType, payload)
	if err != nil {
		return err
	}

	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	for _, s := range h.snapshot() {
		if err := s.Send(msg); err != nil {
			h.log.Warn("evicting subscriber", "event", eventType, "error", err)
			h.Unregister(s)
		}
	}
	return nil
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Later registrations fail.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[Subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		_ = s.Close()
	}
}

func (h *Hub) snapshot() []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Subscriber, 0, len(h.subs))
	for s := range h.subs {
		out = append(out, s)
	}
	return out
}

func encode(eventType types.EventType, payload any) ([]byte, error) {
	msg, err := json.Marshal(types.Envelope{Type: eventType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("hub: encode %s: %w", eventType, err)
	}
	return msg, nil
}
