package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/mission-control/internal/config"
	"github.com/untoldecay/mission-control/internal/engine"
	"github.com/untoldecay/mission-control/internal/hooks"
	"github.com/untoldecay/mission-control/internal/ui"
)

var (
	configFile string
	rootDir    string
	jsonOutput bool
	verbose    bool

	// settings is populated by PersistentPreRunE for every command.
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "mc",
	Short: "Mission control - keep the mission board in sync with the workspace",
	Long: `mc watches a workspace of markdown mission documents and agent memory
directories, keeps an in-memory board of missions, derives agent liveness and
pushes every change to connected dashboards over a websocket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(configFile); err != nil {
			return err
		}
		if cmd.Flags().Changed("root") {
			config.Set("root", rootDir)
		}
		if cmd.Flags().Changed("verbose") && verbose {
			config.Set("log.level", "debug")
		}
		s, err := config.Load()
		if err != nil {
			return err
		}
		settings = s
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: .mission-control/config.yaml, then ~/.config/mc/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Workspace root (overrides CLAWD_PATH)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// engineOptions builds engine options from the loaded settings.
func engineOptions(s config.Settings) engine.Options {
	return engine.Options{
		Layout:           s.Layout(),
		Roster:           s.Roster,
		AgentMeta:        s.AgentMeta,
		WorkingThreshold: s.WorkingThreshold,
		StandbyThreshold: s.StandbyThreshold,
		Debounce:         s.Debounce,
		PollInterval:     s.PollInterval,
		Fallback:         s.Fallback,
		ForcePolling:     s.ForcePolling,
		FeedCapacity:     s.FeedCapacity,
		StatsInterval:    s.StatsInterval,
	}
}

// openEngine loads the workspace for one-shot commands that do not watch.
// Callers wait on the returned runner before exiting so hooks fired by
// their writes can finish. When a daemon serves the root it observes those
// writes and runs the hooks itself, so the runner is left without a
// directory.
func openEngine() (*engine.Engine, *hooks.Runner, error) {
	hooksDir := settings.HooksDir
	if daemonServing(settings) {
		hooksDir = ""
	}
	runner := hooks.NewRunner(hooksDir, settings.HooksTimeout, nil)
	opts := engineOptions(settings)
	opts.Hooks = runner
	eng := engine.New(opts)
	if err := eng.Load(); err != nil {
		return nil, nil, fmt.Errorf("loading workspace %s: %w", settings.Root, err)
	}
	return eng, runner, nil
}

func daemonServing(s config.Settings) bool {
	reg, err := s.Registry()
	if err != nil {
		return false
	}
	entry, err := reg.FindByRoot(s.Root)
	return err == nil && entry != nil
}

// printMissionError adds a hint for the engine sentinels users run into.
func printMissionError(err error, suggestions ...string) error {
	switch {
	case errors.Is(err, engine.ErrMissionNotFound):
		if len(suggestions) > 0 {
			fmt.Fprintf(os.Stderr, "Did you mean: %s\n", strings.Join(suggestions, ", "))
		}
		fmt.Fprintf(os.Stderr, "Hint: run '%s' to list active missions\n", ui.RenderAccent("mc status"))
	case errors.Is(err, engine.ErrMissionExists):
		fmt.Fprintln(os.Stderr, "Hint: pick a different title or complete the existing mission first")
	}
	return err
}
