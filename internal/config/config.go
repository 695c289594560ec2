// Package config holds the process-wide viper configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/untoldecay/mission-control/internal/types"
)

var v *viper.Viper

// EnvPrefix prefixes every environment override (MC_SERVER_ADDR, ...).
const EnvPrefix = "MC"

// ProjectDir is the directory searched for config.yaml while walking up
// from the working directory.
const ProjectDir = ".mission-control"

// Initialize sets up the viper configuration singleton. An explicit path
// takes precedence over the search.
// Should be called once at application startup.
func Initialize(explicitPath string) error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: --config > project .mission-control/config.yaml > ~/.config/mc/config.yaml
	configFile := explicitPath
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Environment variables take precedence over the config file.
	// MC_WATCH_DEBOUNCE maps to "watch.debounce".
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// The workspace root keeps the variable name agents already export.
	_ = v.BindEnv("root", "CLAWD_PATH", EnvPrefix+"_ROOT")

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", defaultRoot())
	v.SetDefault("json", false)
	v.SetDefault("verbose", false)

	v.SetDefault("missions.active-dir", "mission-control/active")
	v.SetDefault("missions.archive-dir", "mission-control/completed")

	v.SetDefault("agents.memory-dir", "memory")
	v.SetDefault("agents.marker-file", "WORKING.md")
	v.SetDefault("agents.state-file", "dashboard/state.json")
	v.SetDefault("agents.roster", []string{})
	// agents.meta.<id> overrides emoji, role, color and type per agent.
	v.SetDefault("agents.meta", map[string]any{})
	v.SetDefault("agents.working-threshold", "5m")
	v.SetDefault("agents.standby-threshold", "30m")

	// Watcher: fallback=true polls when fsnotify is unavailable.
	v.SetDefault("watch.debounce", "500ms")
	v.SetDefault("watch.poll-interval", "2s")
	v.SetDefault("watch.fallback", true)
	v.SetDefault("watch.polling", false)

	v.SetDefault("feed.capacity", 100)
	v.SetDefault("stats.interval", "10s")

	v.SetDefault("server.addr", ":8888")
	v.SetDefault("server.url", "http://localhost:8888")
	v.SetDefault("server.queue-size", 256)
	v.SetDefault("server.ping-period", "30s")

	// Daemon registry: empty uses the user config directory.
	v.SetDefault("daemon.registry-dir", "")

	// Empty means <root>/.mission-control/hooks.
	v.SetDefault("hooks.dir", "")
	v.SetDefault("hooks.timeout", "10s")

	// Logging: an empty log.file writes to stderr.
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max-size-mb", 10)
	v.SetDefault("log.max-backups", 3)
	v.SetDefault("log.max-age-days", 7)
}

// findConfigFile walks up from the working directory looking for the
// project config, then falls back to the user config directory.
func findConfigFile() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ProjectDir, "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				return configPath
			}
		}
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		configPath := filepath.Join(configDir, "mc", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

func defaultRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "clawd")
	}
	return "."
}

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
)

// GetValueSource returns the source of a configuration value.
// Priority (highest to lowest): env var > config file > default.
// Flags are bound through BindPFlag and are not reported here.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}
	if os.Getenv(EnvKey(key)) != "" {
		return SourceEnvVar
	}
	if key == "root" && os.Getenv("CLAWD_PATH") != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// EnvKey returns the environment variable that overrides key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// GetAgentMeta returns the agents.meta table keyed by lower-case agent id.
func GetAgentMeta() (map[string]types.AgentMeta, error) {
	if v == nil {
		return nil, nil
	}
	var raw map[string]types.AgentMeta
	if err := v.UnmarshalKey("agents.meta", &raw); err != nil {
		return nil, err
	}
	meta := make(map[string]types.AgentMeta, len(raw))
	for id, m := range raw {
		meta[strings.ToLower(strings.TrimSpace(id))] = m
	}
	return meta, nil
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// BindPFlag makes a cobra flag override key when the flag is set.
func BindPFlag(key string, flag *pflag.Flag) error {
	if v == nil {
		return fmt.Errorf("viper not initialized")
	}
	return v.BindPFlag(key, flag)
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}
