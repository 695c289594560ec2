//go:build unix

package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/untoldecay/mission-control/internal/engine"
	"github.com/untoldecay/mission-control/internal/hooks"
)

func TestRunHookFor(t *testing.T) {
	s := testSettings(t)
	layout := s.Layout()
	if err := layout.Ensure(); err != nil {
		t.Fatal(err)
	}
	doc := "---\nid: build\ntitle: Build\nassigned_to: FORGE\nstatus: %s\n---\n\n# Build\n"
	if err := os.WriteFile(layout.ActivePath("forge-build.md"), []byte(strings.Replace(doc, "%s", "progress", 1)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.ArchivePath("scout-old.md"), []byte(strings.Replace(doc, "%s", "done", 1)), 0o644); err != nil {
		t.Fatal(err)
	}
	eng := engine.New(engineOptions(s))
	if err := eng.Load(); err != nil {
		t.Fatal(err)
	}

	hooksDir := t.TempDir()
	out := filepath.Join(hooksDir, "out.txt")
	script := "#!/bin/sh\necho \"$1 $2\" >> " + out + "\n"
	if err := os.WriteFile(filepath.Join(hooksDir, hooks.HookOnComplete), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	runner := hooks.NewRunner(hooksDir, 0, nil)

	if _, err := runHookFor(eng, runner, "on_complete", "forge-build"); err != nil {
		t.Fatalf("active mission: %v", err)
	}
	if _, err := runHookFor(eng, runner, "mission:complete", "scout-old"); err != nil {
		t.Fatalf("archived mission: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if want := "forge-build.md mission:complete\nscout-old.md mission:complete\n"; string(data) != want {
		t.Errorf("hook output = %q, want %q", data, want)
	}

	if _, err := runHookFor(eng, runner, "agent:status", "forge-build"); err == nil {
		t.Error("expected error for an event without hooks")
	}
	if _, err := runHookFor(eng, runner, "on_new", "forge-build"); err == nil {
		t.Error("expected error for a missing hook")
	}
	if _, err := runHookFor(eng, runner, "on_complete", "ghost"); !errors.Is(err, engine.ErrMissionNotFound) {
		t.Errorf("unknown mission err = %v, want ErrMissionNotFound", err)
	}
}
