package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/untoldecay/mission-control/internal/daemon"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/workspace"
)

// Settings is the typed view of the configuration consumed by the daemon.
type Settings struct {
	Root       string
	ActiveDir  string
	ArchiveDir string
	MemoryDir  string
	MarkerFile string
	StateFile  string
	Roster     []string
	AgentMeta  map[string]types.AgentMeta

	WorkingThreshold time.Duration
	StandbyThreshold time.Duration

	Debounce     time.Duration
	PollInterval time.Duration
	Fallback     bool
	ForcePolling bool

	FeedCapacity  int
	StatsInterval time.Duration

	ServerAddr string
	ServerURL  string
	QueueSize  int
	PingPeriod time.Duration

	RegistryDir string

	HooksDir     string
	HooksTimeout time.Duration

	Log LogSettings
}

// LogSettings configures the daemon logger and its rotation.
type LogSettings struct {
	File       string
	Level      string
	Format     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load reads the current configuration into Settings and validates it.
func Load() (Settings, error) {
	root, err := expandHome(GetString("root"))
	if err != nil {
		return Settings{}, err
	}
	s := Settings{
		Root:             root,
		ActiveDir:        GetString("missions.active-dir"),
		ArchiveDir:       GetString("missions.archive-dir"),
		MemoryDir:        GetString("agents.memory-dir"),
		MarkerFile:       GetString("agents.marker-file"),
		StateFile:        GetString("agents.state-file"),
		Roster:           GetStringSlice("agents.roster"),
		WorkingThreshold: GetDuration("agents.working-threshold"),
		StandbyThreshold: GetDuration("agents.standby-threshold"),
		Debounce:         GetDuration("watch.debounce"),
		PollInterval:     GetDuration("watch.poll-interval"),
		Fallback:         GetBool("watch.fallback"),
		ForcePolling:     GetBool("watch.polling"),
		FeedCapacity:     GetInt("feed.capacity"),
		StatsInterval:    GetDuration("stats.interval"),
		ServerAddr:       GetString("server.addr"),
		ServerURL:        strings.TrimRight(GetString("server.url"), "/"),
		QueueSize:        GetInt("server.queue-size"),
		PingPeriod:       GetDuration("server.ping-period"),
		RegistryDir:      GetString("daemon.registry-dir"),
		HooksDir:         GetString("hooks.dir"),
		HooksTimeout:     GetDuration("hooks.timeout"),
		Log: LogSettings{
			File:       GetString("log.file"),
			Level:      GetString("log.level"),
			Format:     GetString("log.format"),
			MaxSizeMB:  GetInt("log.max-size-mb"),
			MaxBackups: GetInt("log.max-backups"),
			MaxAgeDays: GetInt("log.max-age-days"),
		},
	}
	if s.AgentMeta, err = GetAgentMeta(); err != nil {
		return Settings{}, fmt.Errorf("config: agents.meta: %w", err)
	}
	if s.HooksDir == "" && s.Root != "" {
		s.HooksDir = filepath.Join(s.Root, ProjectDir, "hooks")
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the daemon cannot run with.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Root) == "" {
		return fmt.Errorf("config: root is required (set CLAWD_PATH or --root)")
	}
	if s.ActiveDir == "" || s.ArchiveDir == "" {
		return fmt.Errorf("config: missions.active-dir and missions.archive-dir are required")
	}
	if filepath.Clean(s.ActiveDir) == filepath.Clean(s.ArchiveDir) {
		return fmt.Errorf("config: active and archive directories must differ")
	}
	if s.WorkingThreshold <= 0 || s.StandbyThreshold <= s.WorkingThreshold {
		return fmt.Errorf("config: agents.standby-threshold (%v) must exceed agents.working-threshold (%v)",
			s.StandbyThreshold, s.WorkingThreshold)
	}
	if s.FeedCapacity <= 0 {
		return fmt.Errorf("config: feed.capacity must be positive, got %d", s.FeedCapacity)
	}
	switch strings.ToLower(s.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", s.Log.Format)
	}
	return nil
}

// Registry opens the daemon registry.
func (s Settings) Registry() (*daemon.Registry, error) {
	if s.RegistryDir != "" {
		return daemon.NewRegistryAt(s.RegistryDir)
	}
	return daemon.NewRegistry()
}

// Layout resolves the workspace directories against the root.
func (s Settings) Layout() workspace.Layout {
	return workspace.New(s.Root, s.ActiveDir, s.ArchiveDir, s.MemoryDir, s.MarkerFile, s.StateFile)
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: expand %s: %w", path, err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	if path == "" {
		return "", nil
	}
	return filepath.Abs(path)
}
