package hub

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/untoldecay/mission-control/internal/types"
)

type fakeSubscriber struct {
	mu      sync.Mutex
	msgs    [][]byte
	failing bool
	closed  bool
}

func (f *fakeSubscriber) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("broken pipe")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSubscriber) eventTypes(t *testing.T) []types.EventType {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.EventType
	for _, raw := range f.msgs {
		var env struct {
			Type types.EventType `json:"type"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("bad envelope %s: %v", raw, err)
		}
		out = append(out, env.Type)
	}
	return out
}

func TestRegisterSendsConnectedFirst(t *testing.T) {
	h := New()
	sub := &fakeSubscriber{}
	if err := h.Register(sub); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := h.Publish(types.EventMissionNew, map[string]string{"id": "a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := sub.eventTypes(t)
	if len(got) != 2 || got[0] != types.EventConnected || got[1] != types.EventMissionNew {
		t.Errorf("unexpected sequence %v", got)
	}
}

func TestPublishEvictsFailingSubscriber(t *testing.T) {
	h := New()
	good, bad := &fakeSubscriber{}, &fakeSubscriber{}
	if err := h.Register(good); err != nil {
		t.Fatal(err)
	}
	if err := h.Register(bad); err != nil {
		t.Fatal(err)
	}
	bad.mu.Lock()
	bad.failing = true
	bad.mu.Unlock()

	if err := h.Publish(types.EventStatsUpdate, types.Stats{}); err != nil {
		t.Fatalf("Publish should not surface subscriber failures: %v", err)
	}
	if h.Count() != 1 {
		t.Errorf("Count = %d, want 1", h.Count())
	}
	if !bad.closed {
		t.Error("failing subscriber should be closed")
	}
	if got := good.eventTypes(t); len(got) != 2 {
		t.Errorf("healthy subscriber should still receive events, got %v", got)
	}
}

func TestPublishOrderIsGlobal(t *testing.T) {
	h := New()
	subs := []*fakeSubscriber{{}, {}, {}}
	for _, s := range subs {
		if err := h.Register(s); err != nil {
			t.Fatal(err)
		}
	}
	order := []types.EventType{types.EventMissionNew, types.EventFeedActivity, types.EventMissionUpdate, types.EventMissionComplete}
	for _, et := range order {
		if err := h.Publish(et, nil); err != nil {
			t.Fatal(err)
		}
	}
	for i, s := range subs {
		got := s.eventTypes(t)[1:]
		for j := range order {
			if got[j] != order[j] {
				t.Fatalf("subscriber %d saw %v, want %v", i, got, order)
			}
		}
	}
}

func TestPublishUnencodablePayload(t *testing.T) {
	h := New()
	if err := h.Publish(types.EventMissionNew, make(chan int)); err == nil {
		t.Error("expected encode error")
	}
}

func TestCloseDisconnectsAll(t *testing.T) {
	h := New()
	sub := &fakeSubscriber{}
	if err := h.Register(sub); err != nil {
		t.Fatal(err)
	}
	h.Close()
	if !sub.closed || h.Count() != 0 {
		t.Error("Close should disconnect subscribers")
	}
	if err := h.Register(&fakeSubscriber{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Register after Close = %v, want ErrClosed", err)
	}
}

func TestWSSubscriberQueueFull(t *testing.T) {
	s := newWSSubscriber(nil, 1, time.Second, time.Minute)
	if err := s.Send([]byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Send([]byte("b")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Send on full queue = %v, want ErrQueueFull", err)
	}
	_ = s.Close()
	if err := s.Send([]byte("c")); !errors.Is(err, ErrSubscriberClosed) {
		t.Errorf("Send after Close = %v, want ErrSubscriberClosed", err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) types.EventType {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env struct {
		Type types.EventType `json:"type"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return env.Type
}

func TestServeHTTPWebsocket(t *testing.T) {
	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if got := readEnvelope(t, conn); got != types.EventConnected {
		t.Fatalf("first message = %s, want connected", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := h.Publish(types.EventMissionUpdate, map[string]string{"id": "x"}); err != nil {
		t.Fatal(err)
	}
	if got := readEnvelope(t, conn); got != types.EventMissionUpdate {
		t.Fatalf("second message = %s, want mission:update", got)
	}

	_ = conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for h.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.Count() != 0 {
		t.Errorf("Count = %d after client disconnect, want 0", h.Count())
	}
}
