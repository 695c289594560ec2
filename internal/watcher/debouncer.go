package watcher

import (
	"sync"
	"time"
)

// KeyedDebouncer coalesces bursts of events per path. Each Trigger cancels
// the path's pending timer and arms a new one, so only an uninterrupted quiet
// period of the configured delay emits an event.
type KeyedDebouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	fire     func(Event)
	pending  map[string]*pendingEvent
	inflight sync.WaitGroup
	closed   bool
}

type pendingEvent struct {
	timer *time.Timer
	kind  Kind
}

// NewKeyedDebouncer creates a debouncer that calls fire once per path after
// delay has passed without another Trigger for that path.
func NewKeyedDebouncer(delay time.Duration, fire func(Event)) *KeyedDebouncer {
	return &KeyedDebouncer{
		delay:   delay,
		fire:    fire,
		pending: make(map[string]*pendingEvent),
	}
}

// Trigger records an event for path, merging it with any pending one.
func (d *KeyedDebouncer) Trigger(path string, kind Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if prev, ok := d.pending[path]; ok {
		prev.timer.Stop()
		kind = mergeKinds(prev.kind, kind)
	}

	p := &pendingEvent{kind: kind}
	p.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.closed || d.pending[path] != p {
			d.mu.Unlock()
			return
		}
		delete(d.pending, path)
		d.inflight.Add(1)
		d.mu.Unlock()

		defer d.inflight.Done()
		d.fire(Event{Kind: p.kind, Path: path})
	})
	d.pending[path] = p
}

// Pending returns the number of paths with an armed timer.
func (d *KeyedDebouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Cancel stops every pending timer and waits for callbacks already running.
// No event fires after Cancel returns, and later Triggers are ignored.
func (d *KeyedDebouncer) Cancel() {
	d.mu.Lock()
	d.closed = true
	for path, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, path)
	}
	d.mu.Unlock()

	d.inflight.Wait()
}

// mergeKinds folds a new event into a pending one. A file created and then
// written is still new; a file removed and recreated has changed.
func mergeKinds(prev, next Kind) Kind {
	switch {
	case prev == Added && next == Changed:
		return Added
	case prev == Removed && next == Added:
		return Changed
	default:
		return next
	}
}
