package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func testLayout(t *testing.T) Layout {
	t.Helper()
	root := t.TempDir()
	return New(root, "mission-control/active", "mission-control/completed", "memory", "", "dashboard/state.json")
}

func TestClassify(t *testing.T) {
	l := testLayout(t)
	tests := []struct {
		path     string
		wantArea Area
		wantKey  string
	}{
		{filepath.Join(l.ActiveDir, "forge-build.md"), AreaActive, "forge-build.md"},
		{filepath.Join(l.ArchiveDir, "old.md"), AreaArchive, "old.md"},
		{filepath.Join(l.ActiveDir, "notes.txt"), AreaNone, ""},
		{filepath.Join(l.ActiveDir, ".hidden.md"), AreaNone, ""},
		{filepath.Join(l.MemoryDir, "forge", "WORKING.md"), AreaMarker, "forge"},
		{filepath.Join(l.MemoryDir, "forge", "notes.md"), AreaNone, ""},
		{filepath.Join(l.MemoryDir, "scout"), AreaAgentDir, "scout"},
		{filepath.Join(l.Root, "dashboard", "state.json"), AreaSnapshot, ""},
		{filepath.Join(l.Root, "elsewhere.md"), AreaNone, ""},
	}
	for _, tt := range tests {
		area, key := l.Classify(tt.path)
		if area != tt.wantArea || key != tt.wantKey {
			t.Errorf("Classify(%s) = %v, %q; want %v, %q", tt.path, area, key, tt.wantArea, tt.wantKey)
		}
	}
}

func TestWatchDirsIncludesAgents(t *testing.T) {
	l := testLayout(t)
	for _, agent := range []string{"forge", "scout"} {
		if err := os.MkdirAll(filepath.Join(l.MemoryDir, agent), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	dirs := l.WatchDirs()
	want := map[string]bool{}
	for _, d := range []string{
		l.ActiveDir,
		l.ArchiveDir,
		l.MemoryDir,
		filepath.Join(l.MemoryDir, "forge"),
		filepath.Join(l.MemoryDir, "scout"),
		filepath.Join(l.Root, "dashboard"),
	} {
		want[d] = true
	}
	if len(dirs) != len(want) {
		t.Fatalf("WatchDirs = %v", dirs)
	}
	for _, d := range dirs {
		if !want[d] {
			t.Errorf("unexpected watch dir %s", d)
		}
	}
}

func TestMissionFiles(t *testing.T) {
	l := testLayout(t)
	if keys, err := MissionFiles(l.ActiveDir); err != nil || keys != nil {
		t.Fatalf("missing dir: keys=%v err=%v", keys, err)
	}
	if err := l.Ensure(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b.md", "a.md", "c.txt"} {
		if err := os.WriteFile(filepath.Join(l.ActiveDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := MissionFiles(l.ActiveDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "a.md" || keys[1] != "b.md" {
		t.Errorf("MissionFiles = %v", keys)
	}
}

func TestEnsureCreatesWatchedDirs(t *testing.T) {
	l := testLayout(t)
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	for _, d := range []string{l.ActiveDir, l.ArchiveDir, l.MemoryDir, filepath.Join(l.Root, "dashboard")} {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", d, err)
		}
	}
	if _, err := os.Stat(l.StateFile); !os.IsNotExist(err) {
		t.Errorf("Ensure must not create the snapshot file itself, stat err = %v", err)
	}

	// Layouts without a snapshot skip its directory.
	bare := New(t.TempDir(), "active", "done", "memory", "", "")
	if err := bare.Ensure(); err != nil {
		t.Fatalf("Ensure without snapshot: %v", err)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge-task.md")
	if err := WriteFileAtomic(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic overwrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "two" {
		t.Fatalf("content = %q, %v", data, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
	if err := WriteFileAtomic(filepath.Join(dir, "missing", "x.md"), []byte("x"), 0o644); err == nil {
		t.Error("expected error for missing directory")
	}
}
