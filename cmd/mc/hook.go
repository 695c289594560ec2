package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/mission-control/internal/engine"
	"github.com/untoldecay/mission-control/internal/hooks"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/ui"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Inspect and exercise lifecycle hooks",
}

var hookRunCmd = &cobra.Command{
	Use:   "run <event> <key>",
	Short: "Run one hook against a mission and wait for it",
	Long: `Run the hook installed for event against the mission stored under key.

The event is a hook name (on_complete) or an event type (mission:complete).
The mission is looked up in the active area first, then the archive.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := openEngine()
		if err != nil {
			return err
		}
		runner := hooks.NewRunner(settings.HooksDir, settings.HooksTimeout, nil)
		m, err := runHookFor(eng, runner, args[0], args[1])
		if err != nil {
			if errors.Is(err, engine.ErrMissionNotFound) {
				return printMissionError(err, eng.SuggestMissions(args[1])...)
			}
			return err
		}
		fmt.Printf("%s Ran %s for %s\n", ui.RenderPass("✓"), args[0], m.StorageKey)
		return nil
	},
}

// runHookFor resolves eventName and key and runs the matching hook
// synchronously.
func runHookFor(eng *engine.Engine, runner *hooks.Runner, eventName, key string) (*types.Mission, error) {
	event, ok := hooks.ParseEvent(eventName)
	if !ok {
		return nil, fmt.Errorf("unknown hook event %q", eventName)
	}
	if !runner.HookExists(event) {
		return nil, fmt.Errorf("no executable hook for %s", event)
	}
	m, err := findMission(eng, key)
	if err != nil {
		return nil, err
	}
	if err := runner.RunSync(event, m); err != nil {
		return nil, fmt.Errorf("hook for %s: %w", event, err)
	}
	return m, nil
}

func findMission(eng *engine.Engine, key string) (*types.Mission, error) {
	if m, err := eng.GetMission(key); err == nil {
		return m, nil
	}
	want := strings.TrimSuffix(strings.TrimSpace(key), ".md")
	for _, m := range eng.ListArchivedMissions(0) {
		if strings.TrimSuffix(m.StorageKey, ".md") == want {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", engine.ErrMissionNotFound, key)
}

func init() {
	hookCmd.AddCommand(hookRunCmd)
	rootCmd.AddCommand(hookCmd)
}
