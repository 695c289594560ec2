package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/untoldecay/mission-control/internal/codec"
	"github.com/untoldecay/mission-control/internal/types"
	"github.com/untoldecay/mission-control/internal/workspace"
)

const legacyMission = `# FORGE: Fix login redirect

**Status:** In Progress
Priority: high

Users bounce back to the login page after signing in.
`

const structuredMission = `---
id: ship-docs
title: Ship docs
status: queue
priority: low
---

# Ship docs
`

func setupMigrateLayout(t *testing.T) workspace.Layout {
	t.Helper()
	layout := workspace.New(t.TempDir(), "mission-control/active", "mission-control/completed", "memory", "WORKING.md", "dashboard/state.json")
	if err := layout.Ensure(); err != nil {
		t.Fatal(err)
	}
	write := func(path, content string) {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(layout.ActivePath("forge-fix-login.md"), legacyMission)
	write(layout.ActivePath("ship-docs.md"), structuredMission)
	write(layout.ArchivePath("old-report.md"), "# Old report\n\nStatus: waiting on data\n")
	return layout
}

func TestMigrateDryRunWritesNothing(t *testing.T) {
	layout := setupMigrateLayout(t)

	results, err := migrateDocuments(layout, false, true)
	if err != nil {
		t.Fatalf("migrateDocuments: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, r := range results {
		if r.Written {
			t.Errorf("%s written during dry run", r.Key)
		}
	}
	data, _ := os.ReadFile(layout.ActivePath("forge-fix-login.md"))
	if string(data) != legacyMission {
		t.Error("legacy document changed during dry run")
	}
}

func TestMigrateRewritesLegacyDocuments(t *testing.T) {
	layout := setupMigrateLayout(t)

	results, err := migrateDocuments(layout, false, false)
	if err != nil {
		t.Fatalf("migrateDocuments: %v", err)
	}
	byKey := map[string]migrateResult{}
	for _, r := range results {
		byKey[r.Key] = r
	}

	if r := byKey["ship-docs.md"]; !r.Skipped {
		t.Errorf("structured document not skipped: %+v", r)
	}
	if r := byKey["forge-fix-login.md"]; !r.Written || r.Area != "active" {
		t.Errorf("legacy document result = %+v", r)
	}

	raw, err := os.ReadFile(layout.ActivePath("forge-fix-login.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), "---\n") {
		t.Fatalf("migrated document has no header:\n%s", raw)
	}
	if !strings.Contains(string(raw), "Users bounce back to the login page") {
		t.Error("body not preserved")
	}
	m := codec.Decode(raw, "forge-fix-login.md")
	if !m.HasHeader || m.Status != types.StatusProgress || m.Priority != types.PriorityHigh || m.AssignedTo != "FORGE" {
		t.Errorf("decoded = %+v", m)
	}
	if m.Title != "Fix login redirect" {
		t.Errorf("title = %q", m.Title)
	}

	archived := codec.Decode(mustRead(t, layout.ArchivePath("old-report.md")), "old-report.md")
	if archived.Status != types.StatusDone {
		t.Errorf("archived status = %q, want done", archived.Status)
	}

	again, err := migrateDocuments(layout, false, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range again {
		if !r.Skipped {
			t.Errorf("second run touched %s", r.Key)
		}
	}
}

func TestMigrateForceNormalizesHeaders(t *testing.T) {
	layout := setupMigrateLayout(t)

	results, err := migrateDocuments(layout, true, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Skipped || !r.Written {
			t.Errorf("%s not rewritten with force: %+v", r.Key, r)
		}
	}
	m := codec.Decode(mustRead(t, layout.ActivePath("ship-docs.md")), "ship-docs.md")
	if m.ID != "ship-docs" || m.Priority != types.PriorityLow {
		t.Errorf("forced rewrite lost fields: %+v", m)
	}
}

func TestMigrateMissingDirectories(t *testing.T) {
	root := t.TempDir()
	layout := workspace.New(root, "nope/active", "nope/done", "memory", "", "")
	results, err := migrateDocuments(layout, false, true)
	if err != nil {
		t.Fatalf("migrateDocuments: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for empty workspace", len(results))
	}
	if _, err := os.Stat(filepath.Join(root, "nope")); !os.IsNotExist(err) {
		t.Error("migrate created directories")
	}
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
