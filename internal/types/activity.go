package types

import "time"

const (
	// AgentSystem is the actor recorded for events with no responsible agent.
	AgentSystem = "SYSTEM"
	// AgentHuman is the actor recorded for changes made through the API or CLI.
	AgentHuman = "HUMAN"
)

// TargetType says what an activity entry refers to.
type TargetType string

const (
	TargetMission TargetType = "mission"
	TargetStatus  TargetType = "status"
)

// Activity actions.
const (
	ActionCreated            = "created"
	ActionStarted            = "started"
	ActionSubmittedForReview = "submitted for review"
	ActionReturnedToProgress = "returned to progress"
	ActionCompleted          = "completed"
	ActionMoved              = "moved"
	ActionAssignedToSelf     = "assigned to self"
	ActionUnassigned         = "unassigned"
	ActionReassigned         = "reassigned"
	ActionRemoved            = "removed"
	ActionArchived           = "archived"
	ActionIsWorking          = "is working"
	ActionUpdated            = "updated"
)

// ActivityEvent is one immutable entry of the activity feed.
type ActivityEvent struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Agent      string     `json:"agent"`
	Action     string     `json:"action"`
	Target     string     `json:"target"`
	TargetType TargetType `json:"target_type"`
	Status     string     `json:"status,omitempty"`
	MissionID  string     `json:"mission_id,omitempty"`
	StorageKey string     `json:"storage_key,omitempty"`

	// Time is a human relative time computed when the entry is read.
	Time string `json:"time,omitempty"`
}
