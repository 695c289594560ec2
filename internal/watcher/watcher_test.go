package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func waitEvent(t *testing.T, w *Watcher, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectNoEvent(t *testing.T, w *Watcher, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(wait):
	}
}

func mdOnly(path string) bool { return strings.HasSuffix(path, ".md") }

func runWatcherScenario(t *testing.T, opts Options) {
	dir := t.TempDir()
	opts.Dirs = []string{dir}
	opts.Filter = mdOnly
	opts.FollowDir = func(string) bool { return true }

	w, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	path := filepath.Join(dir, "mission.md")
	if err := os.WriteFile(path, []byte("# one"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ev := waitEvent(t, w, 3*time.Second); ev.Kind != Added || ev.Path != path {
		t.Fatalf("expected added %s, got %+v", path, ev)
	}

	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectNoEvent(t, w, 300*time.Millisecond)

	if err := os.WriteFile(path, []byte("# one, edited"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ev := waitEvent(t, w, 3*time.Second); ev.Kind != Changed {
		t.Fatalf("expected changed, got %+v", ev)
	}

	sub := filepath.Join(dir, "forge")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if ev := waitEvent(t, w, 3*time.Second); ev.Kind != Added || ev.Path != sub {
		t.Fatalf("expected added dir %s, got %+v", sub, ev)
	}
	nested := filepath.Join(sub, "WORKING.md")
	if err := os.WriteFile(nested, []byte("busy"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ev := waitEvent(t, w, 3*time.Second); ev.Path != nested {
		t.Fatalf("expected event for followed directory file, got %+v", ev)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if ev := waitEvent(t, w, 3*time.Second); ev.Kind != Removed || ev.Path != path {
		t.Fatalf("expected removed %s, got %+v", path, ev)
	}
}

func TestWatcherFsnotify(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watcher integration test in short mode")
	}
	runWatcherScenario(t, Options{Debounce: 50 * time.Millisecond})
}

func TestWatcherPolling(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping polling watcher integration test in short mode")
	}
	runWatcherScenario(t, Options{
		Debounce:     20 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		ForcePolling: true,
	})
}

func TestCloseClosesEvents(t *testing.T) {
	w, err := New(Options{Dirs: []string{t.TempDir()}, ForcePolling: true, PollInterval: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start(context.Background())
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("expected closed channel")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func collectPaths(t *testing.T, w *Watcher, want ...string) {
	t.Helper()
	pending := map[string]bool{}
	for _, p := range want {
		pending[p] = true
	}
	deadline := time.After(5 * time.Second)
	for len(pending) > 0 {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				t.Fatal("event channel closed")
			}
			delete(pending, ev.Path)
		case <-deadline:
			t.Fatalf("timed out waiting for events on %v", pending)
		}
	}
}

func TestWatcherRootCreatedAfterStart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watcher integration test in short mode")
	}
	parent := t.TempDir()
	memory := filepath.Join(parent, "memory")

	w, err := New(Options{
		Dirs:         []string{memory},
		Filter:       mdOnly,
		FollowDir:    func(string) bool { return true },
		Debounce:     50 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	// The agent directory and its marker exist before the root is watched.
	agent := filepath.Join(memory, "forge")
	if err := os.MkdirAll(agent, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(agent, "WORKING.md")
	if err := os.WriteFile(marker, []byte("busy"), 0o644); err != nil {
		t.Fatal(err)
	}
	collectPaths(t, w, agent, marker)

	if err := os.WriteFile(marker, []byte("still busy"), 0o644); err != nil {
		t.Fatal(err)
	}
	collectPaths(t, w, marker)
}

func TestWatcherBackfillsFollowedDirectory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watcher integration test in short mode")
	}
	dir := t.TempDir()
	w, err := New(Options{
		Dirs:      []string{dir},
		Filter:    mdOnly,
		FollowDir: func(string) bool { return true },
		Debounce:  50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	// Created in one step so the file can land before the watch is added.
	nested := filepath.Join(dir, "scout", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(nested, "WORKING.md")
	if err := os.WriteFile(marker, []byte("busy"), 0o644); err != nil {
		t.Fatal(err)
	}
	collectPaths(t, w, filepath.Join(dir, "scout"), nested, marker)
}
