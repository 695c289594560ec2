package types

// EventType names an envelope pushed to subscribers.
type EventType string

const (
	EventConnected       EventType = "connected"
	EventMissionNew      EventType = "mission:new"
	EventMissionUpdate   EventType = "mission:update"
	EventMissionComplete EventType = "mission:complete"
	EventMissionRemoved  EventType = "mission:removed"
	EventAgentStatus     EventType = "agent:status"
	EventFeedActivity    EventType = "feed:activity"
	EventStatsUpdate     EventType = "stats:update"
	EventAgentsRefresh   EventType = "agents:refresh"
)

// Envelope is the transport-agnostic event frame.
type Envelope struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// MissionRef identifies a mission that no longer has a full record.
type MissionRef struct {
	ID         string `json:"id"`
	StorageKey string `json:"storage_key"`
}
