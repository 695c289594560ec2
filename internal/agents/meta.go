package agents

import (
	"strings"

	"github.com/untoldecay/mission-control/internal/types"
)

// fallbackMeta describes agents nobody configured.
var fallbackMeta = types.AgentMeta{
	Emoji: "🤖",
	Role:  "Agent",
	Color: "#6b7280",
	Type:  types.AgentTypeSpecialist,
}

// DefaultMeta is the built-in squad. Configured metadata overrides it
// field by field.
var DefaultMeta = map[string]types.AgentMeta{
	"jarvis":   {Emoji: "🎯", Role: "Chief Orchestrator", Color: "#6366f1", Type: types.AgentTypeExec},
	"hunter":   {Emoji: "🎯", Role: "Sales & Relationships", Color: "#f97316"},
	"inbox":    {Emoji: "📧", Role: "Email Intelligence", Color: "#06b6d4"},
	"money":    {Emoji: "💰", Role: "Revenue Intelligence", Color: "#22c55e"},
	"linkedin": {Emoji: "💼", Role: "LinkedIn Growth", Color: "#0077b5"},
	"xpert":    {Emoji: "🐦", Role: "X/Twitter", Color: "#000000"},
	"dispatch": {Emoji: "📰", Role: "Newsletter", Color: "#8b5cf6"},
	"scout":    {Emoji: "🔍", Role: "Research & Intel", Color: "#eab308"},
	"forge":    {Emoji: "🔨", Role: "Builder/Developer", Color: "#ef4444"},
	"oracle":   {Emoji: "🔮", Role: "Trading Intelligence", Color: "#a855f7"},
	"vibe":     {Emoji: "🎨", Role: "Marketing Systems", Color: "#ec4899"},
	"sentinel": {Emoji: "🛡️", Role: "Security & Ops", Color: "#6b7280"},
	"nexus":    {Emoji: "🔗", Role: "System Intelligence", Color: "#14b8a6"},
	"claw":     {Emoji: "🦀", Role: "OpenClaw Specialist", Color: "#f43f5e"},
	"critic":   {Emoji: "🎭", Role: "Quality Control", Color: "#84cc16"},
}

// Meta returns the display metadata for id: configured fields first, then
// the built-in table, then the fallback.
func (t *Tracker) Meta(id string) types.AgentMeta {
	id = strings.ToLower(strings.TrimSpace(id))
	m := t.meta[id]
	for _, base := range []types.AgentMeta{DefaultMeta[id], fallbackMeta} {
		m = mergeMeta(m, base)
	}
	m.Type = strings.ToUpper(m.Type)
	return m
}

func mergeMeta(m, base types.AgentMeta) types.AgentMeta {
	if m.Emoji == "" {
		m.Emoji = base.Emoji
	}
	if m.Role == "" {
		m.Role = base.Role
	}
	if m.Color == "" {
		m.Color = base.Color
	}
	if m.Type == "" {
		m.Type = base.Type
	}
	return m
}
