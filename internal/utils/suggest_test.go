package utils

import (
	"strings"
	"testing"
)

func TestComputeDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"forge", "", 5},
		{"", "scout", 5},
		{"forge", "FORGE", 0},
		{"forge", "forje", 1},
		{"kitten", "sitting", 3},
		{"héllo", "hello", 1},
	}
	for _, tt := range tests {
		if got := ComputeDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("ComputeDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFuzzyMatch(t *testing.T) {
	if !FuzzyMatch("fxlgn", "forge-fix-login") {
		t.Error("in-order characters should match")
	}
	if FuzzyMatch("ngl", "login") {
		t.Error("out-of-order characters should not match")
	}
	if !FuzzyMatch("", "anything") {
		t.Error("empty source matches everything")
	}
}

func TestSuggest(t *testing.T) {
	keys := []string{"forge-fix-login.md", "scout-research-vendors.md", "task-ship-docs.md"}

	tests := []struct {
		input string
		want  string
	}{
		{"fix-login", "forge-fix-login.md"},
		{"forge-fix-logn", "forge-fix-login.md"},
		{"task-ship-docs.md", "task-ship-docs.md"},
		{"shp-dcs", "task-ship-docs.md"},
		{"zzzzzz", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := strings.Join(Suggest(tt.input, keys, 1), ",")
		if got != tt.want {
			t.Errorf("Suggest(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if got := Suggest("forj", []string{"forge", "scout", "forde"}, 5); strings.Join(got, ",") != "forde,forge" {
		t.Errorf("Suggest ranking = %v", got)
	}
}
