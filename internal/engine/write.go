package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/untoldecay/mission-control/internal/codec"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/workspace"
)

// MissionDraft describes a mission to create.
type MissionDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	AssignedTo  string   `json:"assigned_to"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags"`

	// Actor is recorded in the activity feed. Defaults to HUMAN.
	Actor string `json:"-"`
}

// DraftMission normalizes d into a mission and the storage key it would be
// written under. It does not touch the filesystem.
func (e *Engine) DraftMission(d MissionDraft) (*types.Mission, string, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return nil, "", fmt.Errorf("%w: title is required", ErrInvalidMission)
	}

	now := e.now().UTC()
	m := &types.Mission{
		ID:           uuid.NewString(),
		Title:        truncate(title, types.MaxTitleLength),
		Description:  truncate(strings.TrimSpace(d.Description), types.MaxDescriptionLength),
		AssignedTo:   types.NormalizeAgent(d.AssignedTo),
		Status:       types.StatusQueue,
		Priority:     types.NormalizePriority(d.Priority),
		CreatedAt:    now,
		UpdatedAt:    now,
		HasHeader:    true,
		HeaderFormat: types.HeaderYAML,
		Extra:        map[string]any{"created_by": "human"},
	}
	if d.Status != "" {
		status, blocked := types.NormalizeStatus(d.Status)
		m.Status = status
		if blocked {
			m.AddTag(types.TagBlocked)
		}
	}
	for _, tag := range d.Tags {
		m.AddTag(tag)
	}

	prefix := "task"
	if m.AssignedTo != "" {
		prefix = strings.ToLower(m.AssignedTo)
	}
	slug := codec.Slugify(title)
	if slug == "" {
		slug = "mission"
	}
	m.StorageKey = prefix + "-" + slug + ".md"
	return m, m.StorageKey, nil
}

// CreateMission writes a new structured document into the active area and
// publishes it without waiting for the watcher.
func (e *Engine) CreateMission(d MissionDraft) (*types.Mission, error) {
	m, key, err := e.DraftMission(d)
	if err != nil {
		return nil, err
	}
	out, err := codec.Serialize(m, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}

	e.procMu.Lock()
	defer e.procMu.Unlock()

	path := e.layout.ActivePath(key)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissionExists, key)
	}
	if err := e.layout.Ensure(); err != nil {
		return nil, fmt.Errorf("create mission directories: %w", err)
	}
	e.expect(path, out)
	if err := workspace.WriteFileAtomic(path, out, 0o644); err != nil {
		e.forget(path)
		return nil, fmt.Errorf("write %s: %w", key, err)
	}

	e.active.Upsert(key, m)
	e.log.Info("mission created", "key", key, "id", m.ID)
	e.publish(types.EventMissionNew, m)
	e.record(types.ActivityEvent{
		Agent:      draftActor(d.Actor),
		Action:     types.ActionCreated,
		Target:     m.Title,
		TargetType: types.TargetMission,
		Status:     string(m.Status),
		MissionID:  m.ID,
		StorageKey: key,
	})
	if ShouldAutoArchive("", m.Status) {
		e.autoArchive(m, out)
		if archived, ok := e.archived.Get(key); ok {
			return archived, nil
		}
	}
	return m.Clone(), nil
}

// CompleteMission archives the active mission stored under key and
// publishes mission:complete. The key may omit its extension.
func (e *Engine) CompleteMission(key, actor string) (*types.Mission, error) {
	key = normalizeKey(key)

	e.procMu.Lock()
	defer e.procMu.Unlock()

	raw, err := os.ReadFile(e.layout.ActivePath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissionNotFound, key)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	m := codec.Decode(raw, key)

	archived, err := e.archive(m, raw)
	if err != nil {
		return nil, err
	}
	e.record(types.ActivityEvent{
		Agent:      draftActor(actor),
		Action:     types.ActionCompleted,
		Target:     archived.Title,
		TargetType: types.TargetMission,
		Status:     string(types.StatusDone),
		MissionID:  archived.ID,
		StorageKey: key,
	})
	e.publish(types.EventMissionComplete, archived)
	return archived, nil
}

func draftActor(actor string) string {
	if a := strings.ToUpper(strings.TrimSpace(actor)); a != "" {
		return a
	}
	return types.AgentHuman
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
