package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/untoldecay/mission-control/internal/types"
)

// ErrFormAborted is returned when the user cancels the mission form.
var ErrFormAborted = errors.New("mission creation canceled")

// MissionFormInput holds the raw values collected by the mission form.
type MissionFormInput struct {
	Title       string
	Description string
	AssignedTo  string
	Priority    string
	Tags        string // Comma-separated
}

// ParseTags splits the comma-separated tag field, dropping blanks.
func (in MissionFormInput) ParseTags() []string {
	var tags []string
	for _, t := range strings.Split(in.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// RunMissionForm prompts for a new mission. Fields already set on in are
// used as defaults. roster populates the agent select when non-empty.
func RunMissionForm(in *MissionFormInput, roster []string) error {
	if in.Priority == "" {
		in.Priority = string(types.PriorityMedium)
	}

	priorityOptions := []huh.Option[string]{
		huh.NewOption("Critical", string(types.PriorityCritical)),
		huh.NewOption("High", string(types.PriorityHigh)),
		huh.NewOption("Medium (default)", string(types.PriorityMedium)),
		huh.NewOption("Low", string(types.PriorityLow)),
	}

	var agentField huh.Field
	if len(roster) > 0 {
		options := []huh.Option[string]{huh.NewOption("Unassigned", "")}
		for _, name := range roster {
			options = append(options, huh.NewOption(strings.ToUpper(name), strings.ToUpper(name)))
		}
		agentField = huh.NewSelect[string]().
			Title("Agent").
			Description("Who should pick this up?").
			Options(options...).
			Value(&in.AssignedTo)
	} else {
		agentField = huh.NewInput().
			Title("Agent").
			Description("Who should pick this up? (optional)").
			Placeholder("e.g., FORGE").
			Value(&in.AssignedTo)
	}

	confirmed := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Description("Brief summary of the mission (required)").
				Placeholder("e.g., Fix login redirect loop").
				Value(&in.Title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					return nil
				}),

			huh.NewText().
				Title("Description").
				Description("What needs to be done?").
				CharLimit(2000).
				Value(&in.Description),

			huh.NewSelect[string]().
				Title("Priority").
				Options(priorityOptions...).
				Value(&in.Priority),
		),
		huh.NewGroup(
			agentField,

			huh.NewInput().
				Title("Tags").
				Description("Comma-separated (optional)").
				Placeholder("e.g., backend, blocked").
				Value(&in.Tags),

			huh.NewConfirm().
				Title("Create this mission?").
				Affirmative("Create").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrFormAborted
		}
		return fmt.Errorf("form error: %w", err)
	}
	if !confirmed {
		return ErrFormAborted
	}
	return nil
}
