package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/mission-control/internal/config"
	"github.com/untoldecay/mission-control/internal/daemon"
	"github.com/untoldecay/mission-control/internal/hooks"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/ui"
)

// StatusReport is the JSON shape of mc status.
type StatusReport struct {
	Stats    types.Stats           `json:"stats"`
	Agents   []types.AgentLiveness `json:"agents"`
	Missions []*types.Mission      `json:"missions"`
	Daemon   *daemon.RegistryEntry `json:"daemon,omitempty"`
	Config   []ConfigValue         `json:"config"`
	Hooks    []string              `json:"hooks"`
}

// ConfigValue is one effective setting and where it came from.
type ConfigValue struct {
	Key    string              `json:"key"`
	Value  string              `json:"value"`
	Source config.ConfigSource `json:"source"`
}

// configValues reports the settings that decide what mc watches and serves.
func configValues(s config.Settings) []ConfigValue {
	values := []struct{ key, value string }{
		{"root", s.Root},
		{"server.addr", s.ServerAddr},
		{"hooks.dir", s.HooksDir},
	}
	out := make([]ConfigValue, 0, len(values))
	for _, kv := range values {
		out = append(out, ConfigValue{Key: kv.key, Value: kv.value, Source: config.GetValueSource(kv.key)})
	}
	return out
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent liveness and the active missions",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := openEngine()
		if err != nil {
			return err
		}
		report := StatusReport{
			Stats:    eng.Stats(),
			Agents:   eng.ListAgents(),
			Missions: eng.ListActiveMissions(),
			Config:   configValues(settings),
			Hooks:    hooks.NewRunner(settings.HooksDir, settings.HooksTimeout, nil).Installed(),
		}
		if reg, err := settings.Registry(); err == nil {
			report.Daemon, _ = reg.FindByRoot(settings.Root)
		}
		if jsonOutput {
			outputJSON(report)
			return nil
		}

		width := ui.GetWidth()
		if report.Daemon != nil {
			fmt.Printf("%s daemon running at %s (pid %d)\n\n", ui.RenderPass("●"), report.Daemon.URL, report.Daemon.PID)
		} else {
			fmt.Printf("%s daemon not running (start with 'mc serve')\n\n", ui.RenderMuted("○"))
		}
		fmt.Println(ui.RenderAccent(fmt.Sprintf("Agents (%d/%d working)", report.Stats.ActiveAgents, report.Stats.TotalAgents)))
		fmt.Println(ui.RenderAgentTable(report.Agents, time.Now(), width))
		fmt.Println()
		fmt.Println(ui.RenderAccent(fmt.Sprintf("Missions (%d active)", len(report.Missions))))
		fmt.Println(ui.RenderMissionTable(report.Missions, width))
		fmt.Println()
		fmt.Println(ui.RenderAccent("Config"))
		if path := config.ConfigFileUsed(); path != "" {
			fmt.Printf("  file: %s\n", path)
		}
		for _, cv := range report.Config {
			fmt.Printf("  %s: %s %s\n", cv.Key, cv.Value, ui.RenderMuted("("+string(cv.Source)+")"))
		}
		if len(report.Hooks) > 0 {
			fmt.Printf("  hooks: %s\n", strings.Join(report.Hooks, ", "))
		} else {
			fmt.Printf("  hooks: %s\n", ui.RenderMuted("none installed"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
