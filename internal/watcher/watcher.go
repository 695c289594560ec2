// Package watcher turns filesystem activity under a set of directories into
// a debounced stream of added, changed and removed events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a debounced event.
type Kind int

const (
	Added Kind = iota + 1
	Changed
	Removed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one debounced filesystem change.
type Event struct {
	Kind Kind
	Path string
}

// Filter reports whether a file path is relevant.
type Filter func(path string) bool

// ErrNoBackend is returned when fsnotify is unavailable and polling is
// disabled.
var ErrNoBackend = errors.New("watcher: fsnotify unavailable and polling fallback disabled")

// Options configures a Watcher.
type Options struct {
	// Dirs are watched non-recursively. Directories missing at Start are
	// retried every PollInterval until they appear.
	Dirs []string
	// Filter selects the files that produce events. Nil accepts all.
	Filter Filter
	// FollowDir reports whether a subdirectory appearing under a watched
	// directory should itself be watched. Followed directories also produce
	// an Added event.
	FollowDir func(path string) bool

	Debounce     time.Duration
	PollInterval time.Duration
	// Fallback allows polling when fsnotify cannot be initialized.
	Fallback bool
	// ForcePolling skips fsnotify entirely.
	ForcePolling bool

	Logger *slog.Logger
}

// Watcher monitors directories using filesystem events or polling.
type Watcher struct {
	opts      Options
	log       *slog.Logger
	fs        *fsnotify.Watcher
	debouncer *KeyedDebouncer
	events    chan Event

	pollingMode bool
	roots       map[string]bool

	mu      sync.Mutex
	watched map[string]bool
	state   map[string]fileState

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logMu           sync.Mutex
	lastChangeLog   time.Time
	logDedupeWindow time.Duration
}

type fileState struct {
	modTime time.Time
	size    int64
	dir     bool
}

// New creates a watcher. It falls back to polling when fsnotify fails and
// opts.Fallback is set.
func New(opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Filter == nil {
		opts.Filter = func(string) bool { return true }
	}
	if opts.FollowDir == nil {
		opts.FollowDir = func(string) bool { return false }
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	w := &Watcher{
		opts:            opts,
		log:             log,
		events:          make(chan Event, 256),
		roots:           make(map[string]bool),
		watched:         make(map[string]bool),
		state:           make(map[string]fileState),
		done:            make(chan struct{}),
		logDedupeWindow: 500 * time.Millisecond,
	}
	w.debouncer = NewKeyedDebouncer(opts.Debounce, w.emit)
	for _, d := range opts.Dirs {
		w.roots[filepath.Clean(d)] = true
	}

	if opts.ForcePolling {
		w.pollingMode = true
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		if !opts.Fallback {
			return nil, fmt.Errorf("%w: %v", ErrNoBackend, err)
		}
		log.Warn("fsnotify unavailable, falling back to polling", "error", err, "interval", opts.PollInterval)
		w.pollingMode = true
		return w, nil
	}
	w.fs = fsw

	for d := range w.roots {
		w.addDir(d)
	}
	return w, nil
}

// Events returns the debounced event stream. It is closed by Close.
func (w *Watcher) Events() <-chan Event { return w.events }

// Polling reports whether the watcher runs in polling mode.
func (w *Watcher) Polling() bool { return w.pollingMode }

// Start begins monitoring in a background goroutine until ctx is canceled
// or Close is called. It must be called at most once.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if w.pollingMode {
		w.startPolling(ctx)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.awaitRoots(ctx)
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case ev, ok := <-w.fs.Events:
				if !ok {
					return
				}
				w.handle(ctx, ev)
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				w.log.Warn("watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)

	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.opts.FollowDir(path) {
				w.log.Debug("following new directory", "path", path)
				w.addDir(path)
				w.debouncer.Trigger(path, Added)
				w.backfill(path)
			}
			return
		}
		w.trigger(path, Added)

	case ev.Op&fsnotify.Write != 0, ev.Op&fsnotify.Chmod != 0:
		w.trigger(path, Changed)

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if w.isWatched(path) {
			w.forget(path)
			if w.roots[path] {
				w.log.Info("watched directory removed, re-establishing", "path", path)
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					w.reEstablishWatch(ctx, path)
				}()
			}
			return
		}
		w.trigger(path, Removed)
	}
}

func (w *Watcher) trigger(path string, kind Kind) {
	if !w.opts.Filter(path) {
		return
	}
	if w.shouldLogChange() {
		w.log.Debug("change detected", "path", path, "kind", kind)
	}
	w.debouncer.Trigger(path, kind)
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *Watcher) addDir(dir string) {
	if err := w.fs.Add(dir); err != nil {
		if os.IsNotExist(err) {
			w.log.Debug("directory does not exist yet, not watching", "path", dir)
		} else {
			w.log.Warn("failed to watch directory", "path", dir, "error", err)
		}
		return
	}
	w.mu.Lock()
	w.watched[dir] = true
	w.mu.Unlock()
}

// backfill reports entries created in dir before its watch was added.
// Duplicates with live events merge in the debouncer.
func (w *Watcher) backfill(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			w.trigger(path, Added)
			continue
		}
		if w.opts.FollowDir(path) && !w.isWatched(path) {
			w.addDir(path)
			w.debouncer.Trigger(path, Added)
			w.backfill(path)
		}
	}
}

// awaitRoots adds root directories that did not exist when the watcher was
// created, checking every PollInterval until all of them are watched.
func (w *Watcher) awaitRoots(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		pending := 0
		for dir := range w.roots {
			if w.isWatched(dir) {
				continue
			}
			if _, err := os.Stat(dir); err != nil {
				pending++
				continue
			}
			w.addDir(dir)
			if !w.isWatched(dir) {
				pending++
				continue
			}
			w.log.Info("watching directory created after start", "path", dir)
			w.backfill(dir)
		}
		if pending == 0 {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) isWatched(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched[dir]
}

func (w *Watcher) forget(dir string) {
	w.mu.Lock()
	delete(w.watched, dir)
	w.mu.Unlock()
	_ = w.fs.Remove(dir)
}

// shouldLogChange limits change logging to one line per dedupe window.
func (w *Watcher) shouldLogChange() bool {
	w.logMu.Lock()
	defer w.logMu.Unlock()
	now := time.Now()
	if now.Sub(w.lastChangeLog) >= w.logDedupeWindow {
		w.lastChangeLog = now
		return true
	}
	return false
}

// reEstablishWatch re-adds a removed root directory with backoff.
func (w *Watcher) reEstablishWatch(ctx context.Context, dir string) {
	delays := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}

	for _, delay := range delays {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
			if err := w.fs.Add(dir); err != nil {
				if os.IsNotExist(err) {
					continue
				}
				w.log.Warn("failed to re-watch directory", "path", dir, "error", err)
				return
			}
			w.mu.Lock()
			w.watched[dir] = true
			w.mu.Unlock()
			w.log.Info("re-established directory watch", "path", dir, "after", delay)
			return
		}
	}
	w.log.Warn("gave up re-establishing directory watch", "path", dir)
}

// startPolling scans the watched directories on a ticker and feeds
// differences into the same debouncer.
func (w *Watcher) startPolling(ctx context.Context) {
	w.log.Info("starting polling mode", "interval", w.opts.PollInterval)
	for d := range w.roots {
		w.mu.Lock()
		w.watched[d] = true
		w.mu.Unlock()
	}
	w.state = w.scan()

	ticker := time.NewTicker(w.opts.PollInterval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.poll()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Watcher) poll() {
	next := w.scan()
	for path, cur := range next {
		prev, existed := w.state[path]
		switch {
		case cur.dir:
			if !existed {
				w.debouncer.Trigger(path, Added)
			}
		case !existed:
			w.trigger(path, Added)
		case !cur.modTime.Equal(prev.modTime) || cur.size != prev.size:
			w.trigger(path, Changed)
		}
	}
	for path, prev := range w.state {
		if _, ok := next[path]; ok {
			continue
		}
		if prev.dir {
			w.mu.Lock()
			if !w.roots[path] {
				delete(w.watched, path)
			}
			w.mu.Unlock()
			continue
		}
		w.trigger(path, Removed)
	}
	w.state = next
}

// scan lists every file in the watched directories. Followed
// subdirectories are added to the watched set as they are found.
func (w *Watcher) scan() map[string]fileState {
	w.mu.Lock()
	dirs := make([]string, 0, len(w.watched))
	for d := range w.watched {
		dirs = append(dirs, d)
	}
	w.mu.Unlock()

	out := make(map[string]fileState)
	for i := 0; i < len(dirs); i++ {
		entries, err := os.ReadDir(dirs[i])
		if err != nil {
			if !os.IsNotExist(err) {
				w.log.Debug("polling error", "path", dirs[i], "error", err)
			}
			continue
		}
		for _, e := range entries {
			path := filepath.Join(dirs[i], e.Name())
			if e.IsDir() {
				if !w.opts.FollowDir(path) {
					continue
				}
				out[path] = fileState{dir: true}
				w.mu.Lock()
				if !w.watched[path] {
					w.watched[path] = true
					dirs = append(dirs, path)
				}
				w.mu.Unlock()
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			out[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	}
	return out
}

// Close stops the watcher, cancels pending debounced events and closes the
// event channel. No event is delivered after Close returns.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.cancel != nil {
			w.cancel()
		}
		if w.fs != nil {
			err = w.fs.Close()
		}
		w.wg.Wait()
		w.debouncer.Cancel()
		close(w.events)
	})
	return err
}
