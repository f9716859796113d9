// Package reflection implements the per-run plan/progress state and the
// reflection toolset (finish_task, update_plan) the autonomous loop
// injects into every iteration.
package reflection

import (
	"fmt"
	"sort"
	"strings"
)

// Plan step statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
)

var validStepStatuses = map[string]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusFailed:     true,
	StatusSkipped:    true,
}

// Run outcome statuses (ReflectionState.Status once Completed is true).
const (
	OutcomeCompleted = "completed"
	OutcomeBlocked   = "blocked"
	OutcomeFailed    = "failed"
)

// PlanStep is one step of the agent's self-reported plan.
type PlanStep struct {
	Description string
	Status      string
	Notes       string
}

// State is the mutable per-autonomous-run reflection state. Never shared
// across autonomous invocations: construct a fresh State per run and close
// the reflection toolset over it.
type State struct {
	Completed bool
	Summary   string
	Status    string // completed | blocked | failed
	Steps     []PlanStep
}

// New returns a fresh State: completed=false, no steps.
func New() *State {
	return &State{Status: OutcomeCompleted}
}

var planStepIcons = map[string]string{
	StatusCompleted: "x",
	StatusFailed:    "!",
	StatusSkipped:   "-",
}

// FormatState renders the current plan/progress into the text block every
// continuation prompt embeds under "CURRENT STATUS:".
func FormatState(s *State) string {
	if len(s.Steps) == 0 {
		return "(No plan created yet)"
	}

	lines := []string{"Current Plan:"}
	for i, step := range s.Steps {
		icon, ok := planStepIcons[step.Status]
		if !ok {
			icon = " "
		}
		lines = append(lines, fmt.Sprintf("  %d. [%s] %s (%s)", i+1, icon, step.Description, step.Status))
		if step.Notes != "" {
			lines = append(lines, "       "+step.Notes)
		}
	}
	return strings.Join(lines, "\n")
}

// tally produces the sorted-by-status-name "N status" summary used by
// update_plan's confirmation string.
func tally(steps []PlanStep) string {
	counts := map[string]int{}
	for _, s := range steps {
		counts[s.Status]++
	}
	if len(counts) == 0 {
		return ""
	}
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	parts := make([]string, 0, len(statuses))
	for _, status := range statuses {
		parts = append(parts, fmt.Sprintf("%d %s", counts[status], status))
	}
	return strings.Join(parts, ", ")
}
