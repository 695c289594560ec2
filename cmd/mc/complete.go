package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/mission-control/internal/ui"
)

var completeCmd = &cobra.Command{
	Use:   "complete <key>...",
	Short: "Mark missions done and move them to the archive area",
	Long: `Mark one or more active missions as done.

Each document is stamped done, gets a completion note and is moved to the
archive area. The key is the document file name, with or without .md.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")

		eng, runner, err := openEngine()
		if err != nil {
			return err
		}
		defer runner.Wait()

		var results []interface{}
		for _, key := range args {
			m, err := eng.CompleteMission(key, actor)
			if err != nil {
				return printMissionError(err, eng.SuggestMissions(key)...)
			}
			if jsonOutput {
				results = append(results, m)
				continue
			}
			fmt.Printf("%s Completed %s (%s)\n", ui.RenderPass("✓"), m.StorageKey, m.Title)
		}
		if jsonOutput {
			outputJSON(results)
		}
		return nil
	},
}

func init() {
	completeCmd.Flags().String("actor", "HUMAN", "Actor recorded in the activity feed")
	rootCmd.AddCommand(completeCmd)
}
