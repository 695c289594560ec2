package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/mission-control/internal/engine"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/ui"
)

var createCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new mission in the active area",
	Long: `Create a new mission document with a structured header.

Without a title on an interactive terminal, a form asks for the mission
fields. The document is written as <agent>-<slug>.md, or task-<slug>.md
when unassigned. A running daemon picks it up like any other change.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := ui.MissionFormInput{}
		in.Description, _ = cmd.Flags().GetString("description")
		in.AssignedTo, _ = cmd.Flags().GetString("assign")
		in.Priority, _ = cmd.Flags().GetString("priority")
		in.Tags, _ = cmd.Flags().GetString("tags")
		status, _ := cmd.Flags().GetString("status")
		if len(args) == 1 {
			in.Title = args[0]
		}

		if strings.TrimSpace(in.Title) == "" {
			if !ui.IsInteractive() {
				return fmt.Errorf("a title is required when not running in a terminal")
			}
			if err := ui.RunMissionForm(&in, settings.Roster); err != nil {
				if errors.Is(err, ui.ErrFormAborted) {
					fmt.Fprintln(os.Stderr, "Mission creation canceled.")
					return nil
				}
				return err
			}
		}

		eng, runner, err := openEngine()
		if err != nil {
			return err
		}
		defer runner.Wait()
		m, err := eng.CreateMission(draftFromInput(in, status))
		if err != nil {
			return printMissionError(err)
		}

		if jsonOutput {
			outputJSON(m)
			return nil
		}
		printCreatedMission(m)
		return nil
	},
}

func init() {
	createCmd.Flags().StringP("description", "d", "", "Mission description")
	createCmd.Flags().StringP("assign", "a", "", "Agent to assign the mission to")
	createCmd.Flags().StringP("priority", "p", "medium", "Priority (critical, high, medium, low)")
	createCmd.Flags().String("status", "queue", "Initial status (queue, progress, review, done)")
	createCmd.Flags().String("tags", "", "Comma-separated tags")
	rootCmd.AddCommand(createCmd)
}

func draftFromInput(in ui.MissionFormInput, status string) engine.MissionDraft {
	return engine.MissionDraft{
		Title:       in.Title,
		Description: in.Description,
		AssignedTo:  in.AssignedTo,
		Priority:    in.Priority,
		Status:      status,
		Tags:        in.ParseTags(),
		Actor:       types.AgentHuman,
	}
}

func printCreatedMission(m *types.Mission) {
	fmt.Printf("\n%s Created mission: %s\n", ui.RenderPass("✓"), m.StorageKey)
	fmt.Printf("  Title:    %s\n", m.Title)
	fmt.Printf("  Status:   %s\n", ui.RenderStatus(m.Status))
	fmt.Printf("  Priority: %s\n", m.Priority)
	if m.AssignedTo != "" {
		fmt.Printf("  Agent:    %s\n", m.AssignedTo)
	}
	if len(m.Tags) > 0 {
		fmt.Printf("  Tags:     %s\n", strings.Join(m.Tags, ", "))
	}
}
