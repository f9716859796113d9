package reflection

import (
	"context"

	"github.com/nextlevelbuilder/agentdaemon/pkg/agent"
)

// ToolSet exposes finish_task and update_plan, closed over a single run's
// State. Construct one ToolSet per autonomous run, never reuse across
// runs.
type ToolSet struct {
	state        *State
	maxPlanSteps int
}

// NewToolSet builds a reflection toolset bound to state, truncating
// update_plan submissions to maxPlanSteps.
func NewToolSet(state *State, maxPlanSteps int) *ToolSet {
	if maxPlanSteps <= 0 {
		maxPlanSteps = 20
	}
	return &ToolSet{state: state, maxPlanSteps: maxPlanSteps}
}

func (t *ToolSet) Name() string { return "reflection" }

func (t *ToolSet) Definitions() []agent.ToolDefinition {
	return []agent.ToolDefinition{
		{
			Name: "finish_task",
			Description: "Signal that the current task is done. Call this when you have " +
				"completed the task, are blocked and cannot proceed, or have failed.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"summary": map[string]interface{}{"type": "string"},
					"status":  map[string]interface{}{"type": "string", "enum": []string{OutcomeCompleted, OutcomeBlocked, OutcomeFailed}},
				},
				"required": []string{"summary"},
			},
		},
		{
			Name: "update_plan",
			Description: "Replace the current plan with a new list of steps. Each step has a " +
				"description and optionally status (pending/in_progress/completed/failed/skipped) and notes.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"steps": map[string]interface{}{"type": "array"},
				},
				"required": []string{"steps"},
			},
		},
	}
}

func (t *ToolSet) Call(_ context.Context, toolName string, args map[string]interface{}) agent.ToolResult {
	switch toolName {
	case "finish_task":
		return t.finishTask(args)
	case "update_plan":
		return t.updatePlan(args)
	default:
		return agent.ToolResult{ForLLM: "unknown tool: " + toolName, IsError: true}
	}
}

func (t *ToolSet) finishTask(args map[string]interface{}) agent.ToolResult {
	summary, _ := args["summary"].(string)
	status, _ := args["status"].(string)
	if status == "" {
		status = OutcomeCompleted
	}
	if status != OutcomeCompleted && status != OutcomeBlocked && status != OutcomeFailed {
		status = OutcomeCompleted
	}

	t.state.Completed = true
	t.state.Summary = summary
	t.state.Status = status

	return agent.ToolResult{ForLLM: "Task finished (" + status + ")."}
}

func (t *ToolSet) updatePlan(args map[string]interface{}) agent.ToolResult {
	raw, _ := args["steps"].([]interface{})
	if len(raw) > t.maxPlanSteps {
		raw = raw[:t.maxPlanSteps]
	}

	var newSteps []PlanStep
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		desc, _ := m["description"].(string)
		if desc == "" {
			continue
		}
		status, _ := m["status"].(string)
		if !validStepStatuses[status] {
			status = StatusPending
		}
		notes, _ := m["notes"].(string)
		newSteps = append(newSteps, PlanStep{Description: desc, Status: status, Notes: notes})
	}
	t.state.Steps = newSteps

	summary := tally(newSteps)
	if summary == "" {
		return agent.ToolResult{ForLLM: "Plan cleared."}
	}
	return agent.ToolResult{ForLLM: "Plan updated: " + summary}
}
