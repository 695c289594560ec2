package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/mission-control/internal/types"
)

func TestPromptYesNo(t *testing.T) {
	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"maybe\n", true, true},
		{"", false, false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := promptYesNo(strings.NewReader(tt.input), &out, "Proceed?", tt.defaultYes)
		if got != tt.want {
			t.Errorf("promptYesNo(%q, %t) = %t, want %t", tt.input, tt.defaultYes, got, tt.want)
		}
		if !strings.HasPrefix(out.String(), "Proceed?") {
			t.Errorf("prompt not written: %q", out.String())
		}
	}
}

func TestParseTags(t *testing.T) {
	in := MissionFormInput{Tags: " backend, ,blocked ,"}
	got := in.ParseTags()
	if strings.Join(got, "|") != "backend|blocked" {
		t.Errorf("ParseTags() = %v", got)
	}
	if tags := (MissionFormInput{}).ParseTags(); tags != nil {
		t.Errorf("ParseTags() on empty = %v, want nil", tags)
	}
}

func TestRenderMissionTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	m := &types.Mission{
		Title:      "Fix login",
		Status:     types.StatusQueue,
		Priority:   types.PriorityHigh,
		StorageKey: "forge-fix-login.md",
		Tags:       []string{types.TagBlocked},
	}
	out := RenderMissionTable([]*types.Mission{m}, 0)
	for _, want := range []string{"forge-fix-login.md", "Fix login", "queue", "(blocked)", "high", "-"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if got := RenderMissionTable(nil, 0); !strings.Contains(got, "No missions") {
		t.Errorf("empty table = %q", got)
	}
}

func TestRenderAgentTable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	seen := now.Add(-3 * time.Minute)
	agents := []types.AgentLiveness{
		{ID: "forge", Name: "FORGE", Status: types.LivenessWorking, CurrentTask: "Refactor API", LastSeen: &seen},
		{ID: "scout", Name: "SCOUT", Status: types.LivenessOffline},
	}
	out := RenderAgentTable(agents, now, 0)
	for _, want := range []string{"FORGE", "working", "Refactor API", "3 minutes ago", "SCOUT", "never"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderFeed(t *testing.T) {
	entries := []types.ActivityEvent{
		{Agent: "FORGE", Action: types.ActionStarted, Target: "Fix login", Status: string(types.StatusProgress), Time: "just now"},
	}
	out := RenderFeed(entries)
	for _, want := range []string{"just now", "FORGE started Fix login", "[progress]"} {
		if !strings.Contains(out, want) {
			t.Errorf("feed missing %q:\n%s", want, out)
		}
	}
}
