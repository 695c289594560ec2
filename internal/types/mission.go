// Package types defines the canonical mission, activity and agent records
// shared by the codec, the engine and the HTTP surface.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// MaxIDLength bounds mission identifiers.
	MaxIDLength = 50
	// MaxTitleLength bounds mission titles (in runes).
	MaxTitleLength = 80
	// MaxDescriptionLength bounds extracted descriptions (in runes).
	MaxDescriptionLength = 100

	// TagBlocked marks a mission that is waiting on something. Blocking is
	// tracked as a tag; the mission keeps a canonical status.
	TagBlocked = "blocked"
	// TagUrgent is synthesized for high and critical legacy missions.
	TagUrgent = "urgent"
)

// Status is the canonical mission column.
type Status string

const (
	StatusQueue    Status = "queue"
	StatusProgress Status = "progress"
	StatusReview   Status = "review"
	StatusDone     Status = "done"
)

// Statuses lists the canonical statuses in board order.
var Statuses = []Status{StatusQueue, StatusProgress, StatusReview, StatusDone}

// IsValid reports whether s is one of the canonical statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueue, StatusProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

var statusAliases = map[string]Status{
	"queue":       StatusQueue,
	"queued":      StatusQueue,
	"todo":        StatusQueue,
	"in_progress": StatusProgress,
	"progress":    StatusProgress,
	"working":     StatusProgress,
	"active":      StatusProgress,
	"review":      StatusReview,
	"reviewing":   StatusReview,
	"in_review":   StatusReview,
	"done":        StatusDone,
	"complete":    StatusDone,
	"completed":   StatusDone,
	"closed":      StatusDone,
	"blocked":     StatusQueue,
	"waiting":     StatusQueue,
}

// NormalizeStatus maps any recognized spelling onto a canonical status.
// The second result is true when the raw value denoted a blocked mission;
// callers record that as TagBlocked. Unknown input maps to queue.
func NormalizeStatus(raw string) (Status, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if key == "" {
		return StatusQueue, false
	}
	status, ok := statusAliases[key]
	if !ok {
		return StatusQueue, false
	}
	return status, key == "blocked" || key == "waiting"
}

// Priority is the canonical mission priority.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// IsValid reports whether p is one of the canonical priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// NormalizePriority maps free-form priority text onto a canonical priority.
// Unrecognized input defaults to medium.
func NormalizePriority(raw string) Priority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "urgent", "crit", "p0":
		return PriorityCritical
	case "high", "important", "p1":
		return PriorityHigh
	case "low", "minor", "p3", "p4":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Rank orders priorities for display, most urgent first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// NormalizeAgent uppercases an agent identifier. Empty input and the
// literal "unassigned" yield the empty string.
func NormalizeAgent(raw string) string {
	agent := strings.TrimSpace(raw)
	if agent == "" || strings.EqualFold(agent, "unassigned") || strings.EqualFold(agent, "none") {
		return ""
	}
	return strings.ToUpper(agent)
}

// HeaderFormat identifies the syntax of a document header block.
type HeaderFormat string

const (
	HeaderNone HeaderFormat = ""
	HeaderYAML HeaderFormat = "yaml"
	HeaderTOML HeaderFormat = "toml"
)

// Mission is the canonical form of one mission document.
type Mission struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	AssignedTo   string       `json:"assigned_to"`
	Status       Status       `json:"status"`
	Priority     Priority     `json:"priority"`
	Tags         []string     `json:"tags"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	StorageKey   string       `json:"storage_key"`
	HasHeader    bool         `json:"has_header"`
	HeaderFormat HeaderFormat `json:"header_format,omitempty"`
	Archived     bool         `json:"archived,omitempty"`

	// Extra carries header keys that have no canonical field so they
	// survive a rewrite.
	Extra map[string]any `json:"-"`
}

// HasTag reports whether the mission carries tag (case-insensitive).
func (m *Mission) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag appends tag unless already present.
func (m *Mission) AddTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" || m.HasTag(tag) {
		return
	}
	m.Tags = append(m.Tags, tag)
}

// Blocked reports whether the mission is marked blocked.
func (m *Mission) Blocked() bool {
	return m.HasTag(TagBlocked)
}

// Clone returns a deep copy so cached state is never shared with callers.
func (m *Mission) Clone() *Mission {
	if m == nil {
		return nil
	}
	c := *m
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	if m.Extra != nil {
		c.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// MarshalJSON renders an unassigned mission with a null assigned_to.
func (m Mission) MarshalJSON() ([]byte, error) {
	type plain Mission
	out := struct {
		plain
		AssignedTo *string  `json:"assigned_to"`
		Tags       []string `json:"tags"`
	}{plain: plain(m)}
	if m.AssignedTo != "" {
		agent := m.AssignedTo
		out.AssignedTo = &agent
	}
	out.Tags = m.Tags
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return json.Marshal(out)
}
