// Package agents derives agent liveness from marker documents and the
// optional dashboard state snapshot.
package agents

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/workspace"
)

const (
	DefaultWorkingThreshold = 5 * time.Minute
	DefaultStandbyThreshold = 30 * time.Minute

	maxTaskLength = 60
)

var taskLineRe = regexp.MustCompile(`(?i)^\s*[-*]*\s*\**(current task|current|status)\**\s*:\**\s*(.+)$`)

// Options configures a Tracker.
type Options struct {
	Layout           workspace.Layout
	Roster           []string
	Meta             map[string]types.AgentMeta
	WorkingThreshold time.Duration
	StandbyThreshold time.Duration
	Now              func() time.Time
}

// Tracker computes liveness on demand. It holds no state between calls.
type Tracker struct {
	layout  workspace.Layout
	roster  []string
	meta    map[string]types.AgentMeta
	working time.Duration
	standby time.Duration
	now     func() time.Time
}

// New creates a tracker.
func New(opts Options) *Tracker {
	t := &Tracker{
		layout:  opts.Layout,
		working: opts.WorkingThreshold,
		standby: opts.StandbyThreshold,
		now:     opts.Now,
	}
	if t.working <= 0 {
		t.working = DefaultWorkingThreshold
	}
	if t.standby <= t.working {
		t.standby = DefaultStandbyThreshold
		if t.standby <= t.working {
			t.standby = t.working * 6
		}
	}
	if t.now == nil {
		t.now = time.Now
	}
	t.meta = make(map[string]types.AgentMeta, len(opts.Meta))
	for id, m := range opts.Meta {
		t.meta[strings.ToLower(strings.TrimSpace(id))] = m
	}
	for _, id := range opts.Roster {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			t.roster = append(t.roster, id)
		}
	}
	return t
}

// IDs returns the configured roster merged with every agent directory and
// every agent listed in the state snapshot.
func (t *Tracker) IDs() []string {
	snap, _, _ := t.readSnapshot()
	return t.ids(snap)
}

func (t *Tracker) ids(snap map[string]snapshotEntry) []string {
	candidates := append([]string(nil), t.roster...)
	candidates = append(candidates, t.layout.AgentDirs()...)
	for id := range snap {
		candidates = append(candidates, strings.ToLower(id))
	}

	seen := map[string]bool{}
	var ids []string
	for _, id := range candidates {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Bucket maps the age of a marker onto a liveness value.
func (t *Tracker) Bucket(age time.Duration) types.Liveness {
	switch {
	case age < t.working:
		return types.LivenessWorking
	case age < t.standby:
		return types.LivenessStandby
	default:
		return types.LivenessOffline
	}
}

// Liveness computes the liveness of one agent. Any read failure yields
// offline.
func (t *Tracker) Liveness(id string) types.AgentLiveness {
	snap, snapTime, _ := t.readSnapshot()
	return t.liveness(strings.ToLower(id), snap, snapTime)
}

// All computes liveness for every known agent, ordered working, blocked,
// standby, offline, then by id.
func (t *Tracker) All() []types.AgentLiveness {
	snap, snapTime, _ := t.readSnapshot()
	ids := t.ids(snap)
	out := make([]types.AgentLiveness, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.liveness(id, snap, snapTime))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Status.SortOrder() < out[j].Status.SortOrder()
	})
	return out
}

func (t *Tracker) liveness(id string, snap map[string]snapshotEntry, snapTime time.Time) types.AgentLiveness {
	l := types.AgentLiveness{
		ID:     id,
		Name:   strings.ToUpper(id),
		Status: types.LivenessOffline,
		Source: types.SourceMissing,
	}
	l.AgentMeta = t.Meta(id)

	var markerTime time.Time
	info, err := os.Stat(t.layout.MarkerPath(id))
	if err == nil {
		markerTime = info.ModTime()
		seen := markerTime.UTC()
		l.LastSeen = &seen
		l.Status = t.Bucket(t.now().Sub(markerTime))
		l.Source = types.SourceMarker
		l.CurrentTask = t.markerTask(id)
	}

	entry, ok := lookupEntry(snap, id)
	if !ok {
		return l
	}
	entryTime := parseTime(entry.UpdatedAt)
	if entryTime.IsZero() {
		entryTime = snapTime
	}
	if task := strings.TrimSpace(entry.CurrentTask); task != "" {
		l.CurrentTask = truncate(task, maxTaskLength)
	}
	if !markerTime.IsZero() && entryTime.Before(markerTime) {
		return l
	}
	if status, ok := snapshotStatus(entry.Status); ok {
		l.Status = status
		l.Source = types.SourceSnapshot
		if l.LastSeen == nil && !entryTime.IsZero() {
			seen := entryTime.UTC()
			l.LastSeen = &seen
		}
	}
	return l
}

// snapshotStatus maps a snapshot status onto liveness. Unknown values
// defer to the marker.
func snapshotStatus(raw string) (types.Liveness, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "working":
		return types.LivenessWorking, true
	case "blocked":
		return types.LivenessBlocked, true
	case "idle":
		return types.LivenessStandby, true
	}
	return "", false
}

func (t *Tracker) markerTask(id string) string {
	data, err := os.ReadFile(t.layout.MarkerPath(id))
	if err != nil {
		return ""
	}
	return ExtractTask(data)
}

// ExtractTask returns the first "Current Task:", "Current:" or "Status:"
// value in a marker document.
func ExtractTask(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if m := taskLineRe.FindStringSubmatch(scanner.Text()); m != nil {
			return truncate(strings.TrimSpace(strings.Trim(m[2], "* ")), maxTaskLength)
		}
	}
	return ""
}

type snapshotEntry struct {
	Status      string `json:"status"`
	CurrentTask string `json:"currentTask"`
	UpdatedAt   string `json:"updated_at"`
}

type snapshotFile struct {
	Agents map[string]snapshotEntry `json:"agents"`
}

// readSnapshot loads the state snapshot. A missing file is not an error.
func (t *Tracker) readSnapshot() (map[string]snapshotEntry, time.Time, error) {
	if t.layout.StateFile == "" {
		return nil, time.Time{}, nil
	}
	info, err := os.Stat(t.layout.StateFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(t.layout.StateFile)
	if err != nil {
		return nil, time.Time{}, err
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, time.Time{}, fmt.Errorf("parse %s: %w", t.layout.StateFile, err)
	}
	return snap.Agents, info.ModTime(), nil
}

func lookupEntry(snap map[string]snapshotEntry, id string) (snapshotEntry, bool) {
	if e, ok := snap[id]; ok {
		return e, true
	}
	for k, e := range snap {
		if strings.EqualFold(k, id) {
			return e, true
		}
	}
	return snapshotEntry{}, false
}

func parseTime(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
