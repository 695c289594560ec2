// Package hooks runs user scripts after mission lifecycle events.
// Hooks are executables in the hooks directory named after the event
// (on_new, on_update, on_complete, on_removed). Each receives the storage
// key and event type as arguments and the mission JSON on stdin.
package hooks

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/untoldecay/mission-control/internal/types"
)

// Hook file names
const (
	HookOnNew      = "on_new"
	HookOnUpdate   = "on_update"
	HookOnComplete = "on_complete"
	HookOnRemoved  = "on_removed"
)

// Events lists the mission events that can carry a hook, in lifecycle order.
var Events = []types.EventType{
	types.EventMissionNew,
	types.EventMissionUpdate,
	types.EventMissionComplete,
	types.EventMissionRemoved,
}

// DefaultTimeout bounds a single hook execution.
const DefaultTimeout = 10 * time.Second

// Runner handles hook execution
type Runner struct {
	hooksDir string
	timeout  time.Duration
	log      *slog.Logger

	wg sync.WaitGroup
}

// NewRunner creates a hook runner over hooksDir. A non-positive timeout
// uses DefaultTimeout.
func NewRunner(hooksDir string, timeout time.Duration, log *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		hooksDir: hooksDir,
		timeout:  timeout,
		log:      log,
	}
}

// Run executes the hook for event in the background, if one exists.
// Call Wait before exiting to let running hooks finish.
func (r *Runner) Run(event types.EventType, m *types.Mission) {
	path, ok := r.lookup(event)
	if !ok || m == nil {
		return
	}
	snapshot := m.Clone()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.runHook(path, event, snapshot); err != nil {
			r.log.Warn("hook failed", "hook", filepath.Base(path), "key", snapshot.StorageKey, "error", err)
		}
	}()
}

// RunSync executes the hook for event and waits for it. A missing or
// non-executable hook is not an error.
func (r *Runner) RunSync(event types.EventType, m *types.Mission) error {
	path, ok := r.lookup(event)
	if !ok || m == nil {
		return nil
	}
	return r.runHook(path, event, m)
}

// Wait blocks until every hook started by Run has exited.
func (r *Runner) Wait() { r.wg.Wait() }

// HookExists reports whether an executable hook is installed for event.
func (r *Runner) HookExists(event types.EventType) bool {
	_, ok := r.lookup(event)
	return ok
}

// Installed returns the names of the executable hooks present.
func (r *Runner) Installed() []string {
	var names []string
	for _, event := range Events {
		if r.HookExists(event) {
			names = append(names, eventToHook(event))
		}
	}
	return names
}

// ParseEvent accepts either a hook name (on_complete) or an event type
// (mission:complete).
func ParseEvent(name string) (types.EventType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, event := range Events {
		if name == string(event) || name == eventToHook(event) {
			return event, true
		}
	}
	return "", false
}

func (r *Runner) lookup(event types.EventType) (string, bool) {
	if r == nil || r.hooksDir == "" {
		return "", false
	}
	name := eventToHook(event)
	if name == "" {
		return "", false
	}
	path := filepath.Join(r.hooksDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	if info.Mode()&0o111 == 0 {
		return "", false
	}
	return path, true
}

func eventToHook(event types.EventType) string {
	switch event {
	case types.EventMissionNew:
		return HookOnNew
	case types.EventMissionUpdate:
		return HookOnUpdate
	case types.EventMissionComplete:
		return HookOnComplete
	case types.EventMissionRemoved:
		return HookOnRemoved
	default:
		return ""
	}
}
