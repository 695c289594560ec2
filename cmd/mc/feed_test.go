package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/untoldecay/mission-control/internal/types"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2h", now.Add(-2 * time.Hour)},
		{"90m", now.Add(-90 * time.Minute)},
		{"2026-03-09T08:00:00Z", time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseSince(tt.input, now)
		if err != nil {
			t.Errorf("parseSince(%q) error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseSince(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	got, err := parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parseSince(yesterday) error: %v", err)
	}
	if !got.Before(now) || got.Before(now.Add(-48*time.Hour)) {
		t.Errorf("parseSince(yesterday) = %v, want within the previous two days", got)
	}

	if _, err := parseSince("flibbertigibbet", now); err == nil {
		t.Error("expected error for unparseable input")
	}
}

func TestFetchFeed(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/feed" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{"feed": []types.ActivityEvent{
			{ID: "1", Agent: "FORGE", Action: types.ActionStarted, Target: "Fix login"},
			{ID: "2", Agent: "HUMAN", Action: types.ActionCreated, Target: "Ship docs"},
		}})
	}))
	defer srv.Close()

	entries, err := fetchFeed(context.Background(), srv.Client(), srv.URL+"/", 5, time.Time{})
	if err != nil {
		t.Fatalf("fetchFeed: %v", err)
	}
	if gotQuery != "limit=5" {
		t.Errorf("query = %q, want limit=5", gotQuery)
	}
	if len(entries) != 2 || entries[0].Agent != "FORGE" {
		t.Errorf("entries = %+v", entries)
	}

	since := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	entries, err = fetchFeed(context.Background(), srv.Client(), srv.URL, 1, since)
	if err != nil {
		t.Fatalf("fetchFeed since: %v", err)
	}
	if gotQuery != "since=2026-03-10T14%3A00%3A00Z" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(entries) != 1 {
		t.Errorf("limit not applied to since results: %d entries", len(entries))
	}
}

func TestFetchFeedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "limit must be a non-negative integer"})
	}))
	defer srv.Close()

	if _, err := fetchFeed(context.Background(), srv.Client(), srv.URL, 5, time.Time{}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}
