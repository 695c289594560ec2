package types

import "time"

// Liveness is the derived availability bucket of an agent.
type Liveness string

const (
	LivenessWorking Liveness = "working"
	LivenessBlocked Liveness = "blocked"
	LivenessStandby Liveness = "standby"
	LivenessOffline Liveness = "offline"
)

// SortOrder ranks liveness buckets for listing: working agents first.
func (l Liveness) SortOrder() int {
	switch l {
	case LivenessWorking:
		return 0
	case LivenessBlocked:
		return 1
	case LivenessStandby:
		return 2
	default:
		return 3
	}
}

// AgentLiveness is computed on demand from an agent's marker document and
// the optional agent state snapshot. It is never stored.
type AgentLiveness struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Liveness   `json:"status"`
	CurrentTask string     `json:"currentTask,omitempty"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	Source      string     `json:"source"`
	AgentMeta
}

// AgentMeta is display metadata for an agent.
type AgentMeta struct {
	Emoji string `json:"emoji,omitempty"`
	Role  string `json:"role,omitempty"`
	Color string `json:"color,omitempty"`
	// Type is EXEC for the orchestrating agent and SPC for specialists.
	Type string `json:"type,omitempty"`
}

// Agent types.
const (
	AgentTypeExec       = "EXEC"
	AgentTypeSpecialist = "SPC"
)

// Liveness sources.
const (
	SourceMarker   = "marker"
	SourceSnapshot = "snapshot"
	SourceMissing  = "missing"
)

// Stats is the periodic aggregate pushed to subscribers.
type Stats struct {
	ActiveAgents   int       `json:"activeAgents"`
	TotalAgents    int       `json:"totalAgents"`
	QueuedMissions int       `json:"queuedMissions"`
	Timestamp      time.Time `json:"timestamp"`
}
