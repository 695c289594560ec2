package engine

import (
	"github.com/untoldecay/mission-control/internal/types"
)

type transition struct {
	from, to types.Status
}

var transitionActions = map[transition]string{
	{types.StatusQueue, types.StatusProgress}:  types.ActionStarted,
	{types.StatusProgress, types.StatusReview}: types.ActionSubmittedForReview,
	{types.StatusReview, types.StatusProgress}: types.ActionReturnedToProgress,
}

// Classify names the activity for a status change. Equal statuses yield
// the empty string; any move into done is "completed"; transitions without
// a specific label are "moved".
func Classify(from, to types.Status) string {
	if from == to {
		return ""
	}
	if to == types.StatusDone {
		return types.ActionCompleted
	}
	if action, ok := transitionActions[transition{from, to}]; ok {
		return action
	}
	return types.ActionMoved
}

// ClassifyAssignment names the activity for an assignment change.
func ClassifyAssignment(from, to string) string {
	switch {
	case from == to:
		return ""
	case from == "":
		return types.ActionAssignedToSelf
	case to == "":
		return types.ActionUnassigned
	default:
		return types.ActionReassigned
	}
}

// ShouldAutoArchive reports whether a status change moves a mission into
// done.
func ShouldAutoArchive(from, to types.Status) bool {
	return to == types.StatusDone && from != types.StatusDone
}
