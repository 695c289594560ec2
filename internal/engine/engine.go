// Package engine is the mission synchronization engine. It turns workspace
// changes into mission board updates for the hub's subscribers.
//
// All filesystem events are handled by one goroutine. Write operations
// issued through the API take the same lock, so handlers never interleave.
package engine

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/untoldecay/mission-control/internal/agents"
	"github.com/untoldecay/mission-control/internal/codec"
	"github.com/untoldecay/mission-control/internal/feed"
	"github.com/untoldecay/mission-control/internal/hub"
	"github.com/untoldecay/mission-control/internal/storage"
	"github.com/untoldecay/mission-control/internal/storage/memory"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/utils"
	"github.com/untoldecay/mission-control/internal/watcher"
	"github.com/untoldecay/mission-control/internal/workspace"
)

var (
	// ErrMissionNotFound is returned when no active mission has the key.
	ErrMissionNotFound = errors.New("engine: mission not found")
	// ErrInvalidMission is returned for drafts that cannot be written.
	ErrInvalidMission = errors.New("engine: invalid mission")
	// ErrMissionExists is returned when a draft would overwrite a document.
	ErrMissionExists = errors.New("engine: mission already exists")
	// ErrAgentNotFound is returned for agents with no roster entry, directory
	// or snapshot entry.
	ErrAgentNotFound = errors.New("engine: agent not found")
)

// DefaultStatsInterval is the period of stats:update broadcasts.
const DefaultStatsInterval = 10 * time.Second

const suggestionLimit = 3

// expectedWriteTTL bounds how long a self-written document is remembered.
const expectedWriteTTL = time.Minute

// Options configures an Engine.
type Options struct {
	Layout    workspace.Layout
	Roster    []string
	AgentMeta map[string]types.AgentMeta

	WorkingThreshold time.Duration
	StandbyThreshold time.Duration

	Debounce     time.Duration
	PollInterval time.Duration
	Fallback     bool
	ForcePolling bool

	FeedCapacity  int
	StatsInterval time.Duration

	// Active and Archived hold the mission records. Nil means an
	// in-memory cache.
	Active   storage.MissionStore
	Archived storage.MissionStore

	HubOptions []hub.Option
	Hooks      HookRunner
	Logger     *slog.Logger
	Now        func() time.Time
}

// HookRunner is notified after mission lifecycle events are published.
type HookRunner interface {
	Run(event types.EventType, m *types.Mission)
}

// Engine owns the mission caches, the activity feed and the broadcast hub.
type Engine struct {
	opts   Options
	layout workspace.Layout
	log    *slog.Logger
	now    func() time.Time

	active   storage.MissionStore
	archived storage.MissionStore
	feed     *feed.Feed
	hub      *hub.Hub
	agents   *agents.Tracker

	// procMu serializes event handling with API writes.
	procMu sync.Mutex

	expectMu sync.Mutex
	expected map[string]expectedWrite
}

type expectedWrite struct {
	digest [sha256.Size]byte
	at     time.Time
}

// New creates an engine. It does not touch the filesystem until Load or
// Run is called.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = DefaultStatsInterval
	}
	if opts.Active == nil {
		opts.Active = memory.New()
	}
	if opts.Archived == nil {
		opts.Archived = memory.New()
	}

	f := feed.New(opts.FeedCapacity)
	f.Now = now
	hubOpts := append([]hub.Option{hub.WithLogger(log), hub.WithClock(now)}, opts.HubOptions...)

	return &Engine{
		opts:     opts,
		layout:   opts.Layout,
		log:      log,
		now:      now,
		active:   opts.Active,
		archived: opts.Archived,
		feed:     f,
		hub:      hub.New(hubOpts...),
		agents: agents.New(agents.Options{
			Layout:           opts.Layout,
			Roster:           opts.Roster,
			Meta:             opts.AgentMeta,
			WorkingThreshold: opts.WorkingThreshold,
			StandbyThreshold: opts.StandbyThreshold,
			Now:              now,
		}),
		expected: make(map[string]expectedWrite),
	}
}

// Load reads both mission areas into the caches without publishing
// anything.
func (e *Engine) Load() error {
	if err := e.layout.Ensure(); err != nil {
		return fmt.Errorf("create mission directories: %w", err)
	}
	active, err := e.readArea(e.layout.ActiveDir, false)
	if err != nil {
		return err
	}
	archived, err := e.readArea(e.layout.ArchiveDir, true)
	if err != nil {
		return err
	}
	e.active.Replace(active)
	e.archived.Replace(archived)
	e.log.Info("loaded missions", "active", len(active), "archived", len(archived))
	return nil
}

func (e *Engine) readArea(dir string, archived bool) ([]*types.Mission, error) {
	keys, err := workspace.MissionFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	missions := make([]*types.Mission, 0, len(keys))
	for _, key := range keys {
		raw, err := os.ReadFile(filepath.Join(dir, key))
		if err != nil {
			e.log.Debug("skipping unreadable mission", "key", key, "error", err)
			continue
		}
		m := codec.Decode(raw, key)
		m.Archived = archived
		missions = append(missions, m)
	}
	return missions, nil
}

// Run loads the workspace, starts the watcher and the stats aggregator and
// processes events until ctx is canceled. Subscribers are disconnected
// before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	defer e.hub.Close()

	if err := e.Load(); err != nil {
		return err
	}

	w, err := watcher.New(watcher.Options{
		Dirs:         e.layout.WatchDirs(),
		Filter:       e.relevant,
		FollowDir:    e.followDir,
		Debounce:     e.opts.Debounce,
		PollInterval: e.opts.PollInterval,
		Fallback:     e.opts.Fallback,
		ForcePolling: e.opts.ForcePolling,
		Logger:       e.log,
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runAggregator(ctx)
	}()

	e.log.Info("engine started", "root", e.layout.Root, "polling", w.Polling())
	defer func() {
		_ = w.Close()
		cancel()
		wg.Wait()
		e.log.Info("engine stopped")
	}()

	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			e.handleEvent(ev)
		case <-ctx.Done():
			return nil
		}
	}
}

func (e *Engine) relevant(path string) bool {
	area, _ := e.layout.Classify(path)
	return area != workspace.AreaNone && area != workspace.AreaAgentDir
}

func (e *Engine) followDir(path string) bool {
	area, _ := e.layout.Classify(path)
	return area == workspace.AreaAgentDir
}

// handleEvent routes one debounced event to its area handler.
func (e *Engine) handleEvent(ev watcher.Event) {
	e.procMu.Lock()
	defer e.procMu.Unlock()

	area, key := e.layout.Classify(ev.Path)
	switch area {
	case workspace.AreaActive:
		e.handleActive(ev.Kind, key)
	case workspace.AreaArchive:
		e.handleArchive(ev.Kind, key)
	case workspace.AreaMarker:
		e.handleMarker(ev.Kind, key)
	case workspace.AreaAgentDir:
		if ev.Kind == watcher.Added {
			e.log.Info("agent directory added", "agent", key)
			e.publish(types.EventAgentsRefresh, nil)
		}
	case workspace.AreaSnapshot:
		e.publish(types.EventAgentsRefresh, nil)
	}
}

func (e *Engine) handleActive(kind watcher.Kind, key string) {
	if kind == watcher.Removed {
		removed := e.active.Delete(key)
		if removed == nil {
			return
		}
		if archived, ok := e.movedToArchive(key); ok {
			e.observeCompletion(archived)
			return
		}
		e.log.Info("mission removed", "key", key)
		e.record(types.ActivityEvent{
			Agent:      types.AgentSystem,
			Action:     types.ActionRemoved,
			Target:     removed.Title,
			TargetType: types.TargetMission,
			MissionID:  removed.ID,
			StorageKey: key,
		})
		e.publish(types.EventMissionRemoved, types.MissionRef{ID: removed.ID, StorageKey: key})
		e.runHook(types.EventMissionRemoved, removed)
		return
	}

	path := e.layout.ActivePath(key)
	raw, ok := e.read(path)
	if !ok || e.consumeExpected(path, raw) {
		return
	}

	m := codec.Decode(raw, key)
	prev := e.active.Upsert(key, m)
	if prev == nil {
		e.observeNew(m, raw)
		return
	}
	e.observeChange(prev, m, raw)
}

func (e *Engine) observeNew(m *types.Mission, raw []byte) {
	e.log.Info("mission added", "key", m.StorageKey, "status", m.Status)
	e.publish(types.EventMissionNew, m)
	e.record(types.ActivityEvent{
		Agent:      actor(m.AssignedTo),
		Action:     types.ActionCreated,
		Target:     m.Title,
		TargetType: types.TargetMission,
		Status:     string(m.Status),
		MissionID:  m.ID,
		StorageKey: m.StorageKey,
	})
	if ShouldAutoArchive("", m.Status) {
		e.autoArchive(m, raw)
	}
}

// observeChange applies the changed-event ordering: activity for status or
// assignment changes, then either archival or a generic update.
func (e *Engine) observeChange(prev, m *types.Mission, raw []byte) {
	if action := Classify(prev.Status, m.Status); action != "" {
		e.log.Info("mission status changed", "key", m.StorageKey, "from", prev.Status, "to", m.Status)
		e.record(types.ActivityEvent{
			Agent:      actor(m.AssignedTo),
			Action:     action,
			Target:     m.Title,
			TargetType: types.TargetMission,
			Status:     string(m.Status),
			MissionID:  m.ID,
			StorageKey: m.StorageKey,
		})
	} else if action := ClassifyAssignment(prev.AssignedTo, m.AssignedTo); action != "" {
		agent := m.AssignedTo
		if agent == "" {
			agent = prev.AssignedTo
		}
		e.record(types.ActivityEvent{
			Agent:      agent,
			Action:     action,
			Target:     m.Title,
			TargetType: types.TargetMission,
			MissionID:  m.ID,
			StorageKey: m.StorageKey,
		})
	}

	if ShouldAutoArchive(prev.Status, m.Status) {
		e.autoArchive(m, raw)
		return
	}
	e.publish(types.EventMissionUpdate, m)
}

// autoArchive archives m, publishing mission:complete on success and
// mission:update with the cached done status on failure.
func (e *Engine) autoArchive(m *types.Mission, raw []byte) {
	archived, err := e.archive(m, raw)
	if err != nil {
		e.log.Error("archival failed, keeping mission active", "key", m.StorageKey, "error", err)
		e.publish(types.EventMissionUpdate, m)
		return
	}
	e.publish(types.EventMissionComplete, archived)
}

func (e *Engine) handleArchive(kind watcher.Kind, key string) {
	if kind == watcher.Removed {
		if e.archived.Delete(key) != nil {
			e.log.Debug("archived mission removed", "key", key)
		}
		return
	}

	path := e.layout.ArchivePath(key)
	raw, ok := e.read(path)
	if !ok || e.consumeExpected(path, raw) {
		return
	}
	m := codec.Decode(raw, key)
	m.Archived = true
	e.archived.Upsert(key, m)
	if _, err := os.Stat(e.layout.ActivePath(key)); errors.Is(err, fs.ErrNotExist) && e.active.Delete(key) != nil {
		e.observeCompletion(m)
		return
	}
	e.log.Info("mission archived externally", "key", key)
	e.publish(types.EventMissionComplete, m)
}

// movedToArchive reports whether the active document key just reappeared in
// the archive area, as when another process completed it. The archive copy
// is cached and its pending watcher event suppressed.
func (e *Engine) movedToArchive(key string) (*types.Mission, bool) {
	path := e.layout.ArchivePath(key)
	info, err := os.Stat(path)
	if err != nil || info.ModTime().Before(e.now().Add(-expectedWriteTTL)) {
		return nil, false
	}
	raw, ok := e.read(path)
	if !ok {
		return nil, false
	}
	m := codec.Decode(raw, key)
	m.Archived = true
	e.archived.Upsert(key, m)
	e.expect(path, raw)
	return m, true
}

// observeCompletion records a completion performed outside this engine and
// publishes mission:complete in place of mission:removed.
func (e *Engine) observeCompletion(m *types.Mission) {
	e.log.Info("mission completed externally", "key", m.StorageKey)
	e.record(types.ActivityEvent{
		Agent:      actor(m.AssignedTo),
		Action:     types.ActionCompleted,
		Target:     m.Title,
		TargetType: types.TargetMission,
		Status:     string(types.StatusDone),
		MissionID:  m.ID,
		StorageKey: m.StorageKey,
	})
	e.publish(types.EventMissionComplete, m)
}

func (e *Engine) handleMarker(kind watcher.Kind, agent string) {
	l := e.agents.Liveness(agent)
	e.publish(types.EventAgentStatus, l)
	if kind == watcher.Removed {
		return
	}

	action := types.ActionUpdated
	if l.Status == types.LivenessWorking {
		action = types.ActionIsWorking
	}
	target := l.CurrentTask
	if target == "" {
		target = "status"
	}
	e.record(types.ActivityEvent{
		Agent:      l.Name,
		Action:     action,
		Target:     target,
		TargetType: types.TargetStatus,
		Status:     string(l.Status),
	})
}

// read returns the document at path. A document that vanished between the
// event and the read is a benign miss.
func (e *Engine) read(path string) ([]byte, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.log.Debug("document vanished before read", "path", path)
		} else {
			e.log.Warn("failed to read document", "path", path, "error", err)
		}
		return nil, false
	}
	return raw, true
}

// record appends to the feed and publishes the stored entry.
func (e *Engine) record(ev types.ActivityEvent) {
	stored := e.feed.Append(ev)
	stored.Time = feed.RelativeTime(stored.Timestamp, e.now())
	e.publish(types.EventFeedActivity, stored)
}

func (e *Engine) publish(eventType types.EventType, payload any) {
	if err := e.hub.Publish(eventType, payload); err != nil {
		e.log.Error("publish failed", "event", eventType, "error", err)
	}
	if m, ok := payload.(*types.Mission); ok {
		e.runHook(eventType, m)
	}
}

func (e *Engine) runHook(eventType types.EventType, m *types.Mission) {
	if e.opts.Hooks != nil {
		e.opts.Hooks.Run(eventType, m)
	}
}

// expect remembers a document the engine is about to write so the watcher
// event it causes is not processed as an external change.
func (e *Engine) expect(path string, data []byte) {
	e.expectMu.Lock()
	e.expected[path] = expectedWrite{digest: sha256.Sum256(data), at: e.now()}
	e.expectMu.Unlock()
}

func (e *Engine) forget(path string) {
	e.expectMu.Lock()
	delete(e.expected, path)
	e.expectMu.Unlock()
}

func (e *Engine) consumeExpected(path string, data []byte) bool {
	e.expectMu.Lock()
	defer e.expectMu.Unlock()

	exp, ok := e.expected[path]
	if !ok {
		return false
	}
	delete(e.expected, path)
	return exp.digest == sha256.Sum256(data) && e.now().Sub(exp.at) < expectedWriteTTL
}

func actor(agent string) string {
	if agent == "" {
		return types.AgentSystem
	}
	return agent
}

// ListActiveMissions returns copies of every active mission, most urgent
// first, then oldest first.
func (e *Engine) ListActiveMissions() []*types.Mission {
	missions := e.active.List()
	sort.SliceStable(missions, func(i, j int) bool {
		a, b := missions[i], missions[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return missions
}

// ListArchivedMissions returns up to limit archived missions, most recently
// updated first. A limit of zero or less returns all of them.
func (e *Engine) ListArchivedMissions(limit int) []*types.Mission {
	missions := e.archived.List()
	sort.SliceStable(missions, func(i, j int) bool {
		return missions[i].UpdatedAt.After(missions[j].UpdatedAt)
	})
	if limit > 0 && len(missions) > limit {
		missions = missions[:limit]
	}
	return missions
}

// GetMission returns the active mission stored under key.
func (e *Engine) GetMission(key string) (*types.Mission, error) {
	m, ok := e.active.Get(normalizeKey(key))
	if !ok {
		return nil, ErrMissionNotFound
	}
	return m, nil
}

// GetFeed returns up to limit activity entries, newest first.
func (e *Engine) GetFeed(limit int) []types.ActivityEvent {
	return e.feed.Replay(limit)
}

// FeedSince returns activity entries recorded at or after t.
func (e *Engine) FeedSince(t time.Time) []types.ActivityEvent {
	return e.feed.Since(t)
}

// GetAgentLiveness computes the liveness of one known agent.
func (e *Engine) GetAgentLiveness(id string) (types.AgentLiveness, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, known := range e.agents.IDs() {
		if known == id {
			return e.agents.Liveness(id), nil
		}
	}
	return types.AgentLiveness{}, ErrAgentNotFound
}

// ListAgents computes liveness for every known agent.
func (e *Engine) ListAgents() []types.AgentLiveness {
	return e.agents.All()
}

// SuggestMissions returns active mission keys resembling key, for
// not-found hints.
func (e *Engine) SuggestMissions(key string) []string {
	var keys []string
	for _, m := range e.active.List() {
		keys = append(keys, m.StorageKey)
	}
	return utils.Suggest(filepath.Base(key), keys, suggestionLimit)
}

// SuggestAgents returns known agent ids resembling id.
func (e *Engine) SuggestAgents(id string) []string {
	return utils.Suggest(id, e.agents.IDs(), suggestionLimit)
}

// Subscribe registers a subscriber with the hub.
func (e *Engine) Subscribe(s hub.Subscriber) error { return e.hub.Register(s) }

// Unsubscribe removes a subscriber from the hub.
func (e *Engine) Unsubscribe(s hub.Subscriber) { e.hub.Unregister(s) }

// Subscribers returns the number of connected subscribers.
func (e *Engine) Subscribers() int { return e.hub.Count() }

// ServeWS upgrades an HTTP request into a websocket subscriber.
func (e *Engine) ServeWS(w http.ResponseWriter, r *http.Request) { e.hub.ServeHTTP(w, r) }

// normalizeKey accepts a storage key with or without its extension. Any
// directory component is dropped.
func normalizeKey(key string) string {
	key = filepath.Base(strings.TrimSpace(key))
	if !strings.HasSuffix(strings.ToLower(key), ".md") {
		key += ".md"
	}
	return key
}
