package hub

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrQueueFull is returned by a websocket subscriber that cannot keep up.
	ErrQueueFull = errors.New("hub: subscriber queue full")
	// ErrSubscriberClosed is returned when sending to a closed subscriber.
	ErrSubscriberClosed = errors.New("hub: subscriber closed")
)

const maxMessageSize = 4096

// wsSubscriber delivers messages to one websocket connection through a
// bounded queue drained by its own writer goroutine.
type wsSubscriber struct {
	conn       *websocket.Conn
	queue      chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	writeWait  time.Duration
	pingPeriod time.Duration
}

func newWSSubscriber(conn *websocket.Conn, queueSize int, writeWait, pingPeriod time.Duration) *wsSubscriber {
	return &wsSubscriber{
		conn:       conn,
		queue:      make(chan []byte, queueSize),
		done:       make(chan struct{}),
		writeWait:  writeWait,
		pingPeriod: pingPeriod,
	}
}

func (s *wsSubscriber) Send(msg []byte) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	default:
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *wsSubscriber) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// writeLoop drains the queue and keeps the connection alive with pings.
// It owns all writes to the connection and closes it on exit.
func (s *wsSubscriber) writeLoop() {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.Close()
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ServeHTTP upgrades the request to a websocket and registers it until the
// peer disconnects. Messages from the peer are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub := newWSSubscriber(conn, h.queueSize, h.writeWait, h.pingPeriod)
	go sub.writeLoop()

	if err := h.Register(sub); err != nil {
		h.log.Warn("websocket register failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer h.Unregister(sub)

	pongWait := h.pingPeriod * 2
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		select {
		case <-sub.done:
			return
		default:
		}
	}
}
