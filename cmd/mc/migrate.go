package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/untoldecay/mission-control/internal/codec"
	"github.com/untoldecay/mission-control/internal/config"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/ui"
	"github.com/untoldecay/mission-control/internal/workspace"
)

// migrateResult describes what happened to one document.
type migrateResult struct {
	Key      string         `json:"key"`
	Area     string         `json:"area"`
	Skipped  bool           `json:"skipped,omitempty"`
	Written  bool           `json:"written,omitempty"`
	Mission  *types.Mission `json:"mission,omitempty"`
	ErrorMsg string         `json:"error,omitempty"`
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Add structured headers to legacy mission documents",
	Long: `Rewrite legacy mission documents with a structured YAML header.

Fields are recovered with the same heuristics the daemon uses to read
legacy documents. The document body is kept as is. Documents in the archive
area are stamped done. Documents that already have a header are skipped
unless --force is given, in which case their header is normalized.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		force, _ := cmd.Flags().GetBool("force")
		yes, _ := cmd.Flags().GetBool("yes")
		layout := settings.Layout()

		lockPath := filepath.Join(layout.Root, config.ProjectDir, "migrate.lock")
		if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
			return fmt.Errorf("creating lock directory: %w", err)
		}
		lock := flock.New(lockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquiring migrate lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another migration is in progress")
		}
		defer func() { _ = lock.Unlock() }()

		plan, err := migrateDocuments(layout, force, true)
		if err != nil {
			return err
		}
		pending := 0
		for _, r := range plan {
			if !r.Skipped && r.ErrorMsg == "" {
				pending++
			}
		}

		results := plan
		if !dryRun && pending > 0 {
			if !yes && !jsonOutput && !ui.PromptYesNo(fmt.Sprintf("Rewrite %d mission documents?", pending), true) {
				fmt.Println("Migration canceled.")
				return nil
			}
			results, err = migrateDocuments(layout, force, false)
			if err != nil {
				return err
			}
		}

		if jsonOutput {
			outputJSON(results)
			return nil
		}
		printMigrateResults(results, dryRun)
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "Show what would change without writing files")
	migrateCmd.Flags().Bool("force", false, "Re-migrate documents that already have a header")
	migrateCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(migrateCmd)
}

// migrateDocuments rewrites every legacy document in the active and archive
// areas. With dryRun nothing is written.
func migrateDocuments(layout workspace.Layout, force, dryRun bool) ([]migrateResult, error) {
	var results []migrateResult
	for _, area := range []workspace.Area{workspace.AreaActive, workspace.AreaArchive} {
		dir := layout.ActiveDir
		if area == workspace.AreaArchive {
			dir = layout.ArchiveDir
		}
		keys, err := workspace.MissionFiles(dir)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, key := range keys {
			results = append(results, migrateDocument(filepath.Join(dir, key), key, area, force, dryRun))
		}
	}
	return results, nil
}

func migrateDocument(path, key string, area workspace.Area, force, dryRun bool) migrateResult {
	res := migrateResult{Key: key, Area: area.String()}
	raw, err := os.ReadFile(path)
	if err != nil {
		res.ErrorMsg = err.Error()
		return res
	}
	if _, ok := codec.Parse(raw).Header(); ok && !force {
		res.Skipped = true
		return res
	}

	out, m, err := codec.Rewrite(raw, key, func(m *types.Mission) {
		if area == workspace.AreaArchive {
			m.Status = types.StatusDone
		}
	})
	if err != nil {
		res.ErrorMsg = err.Error()
		return res
	}
	res.Mission = m
	if dryRun {
		return res
	}
	info, err := os.Stat(path)
	if err != nil {
		res.ErrorMsg = err.Error()
		return res
	}
	if err := workspace.WriteFileAtomic(path, out, info.Mode().Perm()); err != nil {
		res.ErrorMsg = err.Error()
		return res
	}
	res.Written = true
	return res
}

func printMigrateResults(results []migrateResult, dryRun bool) {
	migrated, skipped, failed := 0, 0, 0
	for _, r := range results {
		switch {
		case r.ErrorMsg != "":
			failed++
			fmt.Printf("%s %s: %s\n", ui.RenderFail("✗"), r.Key, r.ErrorMsg)
		case r.Skipped:
			skipped++
			fmt.Printf("%s %s %s\n", ui.RenderMuted("-"), r.Key, ui.RenderMuted("(has header)"))
		default:
			migrated++
			m := r.Mission
			agent := m.AssignedTo
			if agent == "" {
				agent = "unassigned"
			}
			fmt.Printf("%s %s\n", ui.RenderPass("✓"), r.Key)
			fmt.Printf("    title: %s  status: %s  priority: %s  agent: %s\n", m.Title, m.Status, m.Priority, agent)
		}
	}
	verb := "Migrated"
	if dryRun {
		verb = "Would migrate"
	}
	fmt.Printf("\n%s %d, skipped %d, failed %d\n", verb, migrated, skipped, failed)
}
