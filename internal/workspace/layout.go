// Package workspace maps the on-disk directory tree to mission and agent
// locations.
package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Area identifies which part of the tree a path belongs to.
type Area int

const (
	AreaNone Area = iota
	AreaActive
	AreaArchive
	AreaMarker
	AreaSnapshot
	// AreaAgentDir is an agent directory directly under the memory directory.
	AreaAgentDir
)

func (a Area) String() string {
	switch a {
	case AreaActive:
		return "active"
	case AreaArchive:
		return "archive"
	case AreaMarker:
		return "marker"
	case AreaSnapshot:
		return "snapshot"
	case AreaAgentDir:
		return "agent-dir"
	default:
		return "none"
	}
}

// Layout holds the absolute locations of every watched area.
type Layout struct {
	Root       string
	ActiveDir  string
	ArchiveDir string
	MemoryDir  string
	MarkerName string
	StateFile  string
}

// New resolves relative directories against root.
func New(root, active, archive, memory, marker, state string) Layout {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(root, p)
	}
	if marker == "" {
		marker = "WORKING.md"
	}
	return Layout{
		Root:       filepath.Clean(root),
		ActiveDir:  abs(active),
		ArchiveDir: abs(archive),
		MemoryDir:  abs(memory),
		MarkerName: marker,
		StateFile:  abs(state),
	}
}

// IsMissionFile reports whether name looks like a mission document.
func IsMissionFile(name string) bool {
	base := filepath.Base(name)
	return strings.EqualFold(filepath.Ext(base), ".md") && !strings.HasPrefix(base, ".")
}

// Classify reports the area of path and its key within that area: the
// storage key for missions, the agent id for markers and agent directories.
func (l Layout) Classify(path string) (Area, string) {
	path = filepath.Clean(path)
	dir, base := filepath.Dir(path), filepath.Base(path)

	switch {
	case l.StateFile != "" && path == l.StateFile:
		return AreaSnapshot, ""
	case dir == l.ActiveDir && IsMissionFile(base):
		return AreaActive, base
	case dir == l.ArchiveDir && IsMissionFile(base):
		return AreaArchive, base
	case dir == l.MemoryDir && !strings.HasPrefix(base, "."):
		return AreaAgentDir, base
	case base == l.MarkerName && filepath.Dir(dir) == l.MemoryDir:
		return AreaMarker, filepath.Base(dir)
	}
	return AreaNone, ""
}

// ActivePath returns the active-area path for key.
func (l Layout) ActivePath(key string) string { return filepath.Join(l.ActiveDir, key) }

// ArchivePath returns the archive-area path for key.
func (l Layout) ArchivePath(key string) string { return filepath.Join(l.ArchiveDir, key) }

// MarkerPath returns the liveness marker document of agent.
func (l Layout) MarkerPath(agent string) string {
	return filepath.Join(l.MemoryDir, agent, l.MarkerName)
}

// WatchDirs lists the directories a watcher must subscribe to, including
// every existing agent directory.
func (l Layout) WatchDirs() []string {
	seen := map[string]bool{}
	var dirs []string
	add := func(d string) {
		if d == "" || d == "." || seen[d] {
			return
		}
		seen[d] = true
		dirs = append(dirs, d)
	}
	add(l.ActiveDir)
	add(l.ArchiveDir)
	add(l.MemoryDir)
	for _, agent := range l.AgentDirs() {
		add(filepath.Join(l.MemoryDir, agent))
	}
	if l.StateFile != "" {
		add(filepath.Dir(l.StateFile))
	}
	return dirs
}

// AgentDirs lists agent ids that have a directory under the memory area.
func (l Layout) AgentDirs() []string {
	entries, err := os.ReadDir(l.MemoryDir)
	if err != nil {
		return nil
	}
	var agents []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			agents = append(agents, e.Name())
		}
	}
	sort.Strings(agents)
	return agents
}

// MissionFiles lists the mission documents in dir, sorted by name.
// A missing directory yields no files.
func MissionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() && IsMissionFile(e.Name()) {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ensure creates the mission areas, the memory directory and the directory
// of the agent snapshot so all of them can be watched from the start.
func (l Layout) Ensure() error {
	dirs := []string{l.ActiveDir, l.ArchiveDir, l.MemoryDir}
	if l.StateFile != "" {
		dirs = append(dirs, filepath.Dir(l.StateFile))
	}
	for _, d := range dirs {
		if d == "" || d == "." {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
