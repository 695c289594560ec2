// Package feed keeps the bounded, newest-first activity log.
package feed

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/untoldecay/mission-control/internal/types"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 100

// Feed is a bounded activity log. The newest entry is always first.
type Feed struct {
	mu       sync.Mutex
	capacity int
	entries  []types.ActivityEvent

	// Now is the clock used for timestamps and relative times.
	Now func() time.Time
}

// New creates a feed keeping at most capacity entries.
func New(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{
		capacity: capacity,
		entries:  make([]types.ActivityEvent, 0, capacity),
		Now:      time.Now,
	}
}

// Append assigns an id and timestamp when absent, prepends e and evicts the
// oldest entries beyond capacity. It returns the stored entry.
func (f *Feed) Append(e types.ActivityEvent) types.ActivityEvent {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = f.Now().UTC()
	}
	if e.Agent == "" {
		e.Agent = types.AgentSystem
	}
	e.Time = ""

	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, types.ActivityEvent{})
	copy(f.entries[1:], f.entries)
	f.entries[0] = e
	if len(f.entries) > f.capacity {
		f.entries = f.entries[:f.capacity]
	}
	return e
}

// Replay returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (f *Feed) Replay(limit int) []types.ActivityEvent {
	f.mu.Lock()
	n := len(f.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.ActivityEvent, n)
	copy(out, f.entries[:n])
	f.mu.Unlock()

	return f.annotate(out)
}

// Since returns entries with a timestamp at or after t, newest first.
func (f *Feed) Since(t time.Time) []types.ActivityEvent {
	f.mu.Lock()
	var out []types.ActivityEvent
	for _, e := range f.entries {
		if e.Timestamp.Before(t) {
			break
		}
		out = append(out, e)
	}
	f.mu.Unlock()

	return f.annotate(out)
}

// Len returns the number of stored entries.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *Feed) annotate(events []types.ActivityEvent) []types.ActivityEvent {
	now := f.Now()
	for i := range events {
		events[i].Time = RelativeTime(events[i].Timestamp, now)
	}
	return events
}

// RelativeTime renders t relative to now ("just now", "5 minutes ago").
func RelativeTime(t, now time.Time) string {
	if now.Sub(t) < time.Minute {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
