// Package daemon tracks running mc serve instances so one-shot commands can
// find the server for a workspace.
package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// RegistryEntry represents a daemon entry in the registry
type RegistryEntry struct {
	Root      string    `json:"root"`
	URL       string    `json:"url"`
	PID       int       `json:"pid"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// Registry manages the per-user daemon registry file
type Registry struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex // in-process mutex (cross-process uses file lock)

	// alive reports whether a registered PID still runs.
	alive func(pid int) bool
}

// NewRegistry opens the registry in the user config directory
// (~/.config/mc/registry.json on Linux).
func NewRegistry() (*Registry, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return NewRegistryAt(filepath.Join(dir, "mc"))
}

// NewRegistryAt opens a registry stored in dir.
func NewRegistryAt(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	return &Registry{
		path:  filepath.Join(dir, "registry.json"),
		lock:  flock.New(filepath.Join(dir, "registry.lock")),
		alive: isProcessAlive,
	}, nil
}

// withFileLock executes fn while holding an exclusive file lock on the registry.
func (r *Registry) withFileLock(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire registry lock: %w", err)
	}
	defer func() { _ = r.lock.Unlock() }()

	return fn()
}

// readEntriesLocked reads all entries from the registry file.
// Caller must hold the file lock. A missing, empty or corrupted file reads
// as an empty registry.
func (r *Registry) readEntriesLocked() ([]RegistryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RegistryEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []RegistryEntry{}, nil
	}

	var entries []RegistryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupted registry only means running daemons re-register.
		return []RegistryEntry{}, nil
	}
	return entries, nil
}

// writeEntriesLocked writes all entries to the registry file atomically.
// Caller must hold the file lock.
func (r *Registry) writeEntriesLocked(entries []RegistryEntry) error {
	if entries == nil {
		entries = []RegistryEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(r.path), "registry-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Register adds a daemon to the registry, replacing any entry for the same
// workspace root or PID.
func (r *Registry) Register(entry RegistryEntry) error {
	entry.Root = filepath.Clean(entry.Root)
	return r.withFileLock(func() error {
		entries, err := r.readEntriesLocked()
		if err != nil {
			return err
		}
		filtered := []RegistryEntry{}
		for _, e := range entries {
			if !pathsEqual(e.Root, entry.Root) && e.PID != entry.PID {
				filtered = append(filtered, e)
			}
		}
		filtered = append(filtered, entry)
		return r.writeEntriesLocked(filtered)
	})
}

// Unregister removes the daemon serving root with the given PID.
func (r *Registry) Unregister(root string, pid int) error {
	return r.withFileLock(func() error {
		entries, err := r.readEntriesLocked()
		if err != nil {
			return err
		}
		filtered := []RegistryEntry{}
		for _, e := range entries {
			if !pathsEqual(e.Root, root) && e.PID != pid {
				filtered = append(filtered, e)
			}
		}
		return r.writeEntriesLocked(filtered)
	})
}

// List returns the running daemons, dropping entries whose process is gone.
func (r *Registry) List() ([]RegistryEntry, error) {
	var alive []RegistryEntry
	err := r.withFileLock(func() error {
		entries, err := r.readEntriesLocked()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if r.alive(e.PID) {
				alive = append(alive, e)
			}
		}
		if len(alive) != len(entries) {
			if err := r.writeEntriesLocked(alive); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to cleanup stale registry entries: %v\n", err)
			}
		}
		return nil
	})
	return alive, err
}

// FindByRoot returns the running daemon serving root, or nil.
func (r *Registry) FindByRoot(root string) (*RegistryEntry, error) {
	entries, err := r.List()
	if err != nil {
		return nil, err
	}
	root = filepath.Clean(root)
	for i := range entries {
		if pathsEqual(entries[i].Root, root) {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// pathsEqual compares workspace roots, ignoring case where the filesystem
// usually does.
func pathsEqual(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}
