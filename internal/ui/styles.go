package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/untoldecay/mission-control/internal/types"
)

// Palette. Adaptive colors pick a shade for light and dark terminals.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"}
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
)

func init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderStatus colors a mission status the way the board columns do.
func RenderStatus(s types.Status) string {
	switch s {
	case types.StatusDone:
		return RenderPass(string(s))
	case types.StatusReview:
		return RenderAccent(string(s))
	case types.StatusProgress:
		return RenderWarn(string(s))
	default:
		return RenderMuted(string(s))
	}
}

// RenderLiveness colors an agent liveness bucket.
func RenderLiveness(l types.Liveness) string {
	label := string(l)
	if ShouldUseEmoji() {
		label = livenessDot(l) + " " + label
	}
	switch l {
	case types.LivenessWorking:
		return RenderPass(label)
	case types.LivenessBlocked:
		return RenderFail(label)
	case types.LivenessStandby:
		return RenderWarn(label)
	default:
		return RenderMuted(label)
	}
}

func livenessDot(l types.Liveness) string {
	switch l {
	case types.LivenessWorking:
		return "🟢"
	case types.LivenessBlocked:
		return "🔴"
	case types.LivenessStandby:
		return "🟡"
	default:
		return "⚫"
	}
}
