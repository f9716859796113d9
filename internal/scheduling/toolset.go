// Package scheduling implements the scheduling toolset (schedule_followup,
// schedule_followup_at) an autonomous run uses to self-schedule follow-up
// triggers. Validation failures are returned as strings, never thrown, so
// the model can react.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/agentdaemon/internal/schedule"
	"github.com/nextlevelbuilder/agentdaemon/pkg/agent"
)

// daemonRunID is the run_id every self-scheduled follow-up is recorded
// under.
const daemonRunID = "daemon"

// ToolSet exposes schedule_followup and schedule_followup_at bound to a
// shared Queue. A fresh ToolSet must be constructed per autonomous run:
// its scheduled counter is per-binding, not per-process, so the per-run
// quota resets correctly on each run.
type ToolSet struct {
	queue     *schedule.Queue
	maxPerRun int
	maxDelay  int
	scheduled int
	clock     func() time.Time
}

// NewToolSet builds a scheduling toolset bound to queue, enforcing
// maxPerRun (quota per autonomous run) and maxDelaySeconds (the furthest
// out a follow-up may be scheduled).
func NewToolSet(queue *schedule.Queue, maxPerRun, maxDelaySeconds int) *ToolSet {
	return &ToolSet{
		queue:     queue,
		maxPerRun: maxPerRun,
		maxDelay:  maxDelaySeconds,
		clock:     time.Now,
	}
}

func (t *ToolSet) Name() string { return "scheduling" }

func (t *ToolSet) Definitions() []agent.ToolDefinition {
	return []agent.ToolDefinition{
		{
			Name:        "schedule_followup",
			Description: "Schedule a follow-up agent run after a delay.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt":        map[string]interface{}{"type": "string"},
					"delay_seconds": map[string]interface{}{"type": "integer"},
				},
				"required": []string{"prompt", "delay_seconds"},
			},
		},
		{
			Name:        "schedule_followup_at",
			Description: "Schedule a follow-up agent run at a specific ISO-8601 time.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"prompt":       map[string]interface{}{"type": "string"},
					"iso_datetime": map[string]interface{}{"type": "string"},
				},
				"required": []string{"prompt", "iso_datetime"},
			},
		},
	}
}

func (t *ToolSet) Call(_ context.Context, toolName string, args map[string]interface{}) agent.ToolResult {
	switch toolName {
	case "schedule_followup":
		return t.scheduleFollowup(args)
	case "schedule_followup_at":
		return t.scheduleFollowupAt(args)
	default:
		return agent.ToolResult{ForLLM: "unknown tool: " + toolName, IsError: true}
	}
}

func (t *ToolSet) scheduleFollowup(args map[string]interface{}) agent.ToolResult {
	prompt, _ := args["prompt"].(string)
	delaySeconds := intArg(args["delay_seconds"])

	if t.scheduled >= t.maxPerRun {
		return refusal(fmt.Sprintf("Cannot schedule: per-run limit (%d) reached.", t.maxPerRun))
	}
	if delaySeconds < 1 {
		return refusal("Cannot schedule: delay must be at least 1 second.")
	}
	if delaySeconds > t.maxDelay {
		return refusal(fmt.Sprintf("Cannot schedule: delay exceeds maximum (%ds).", t.maxDelay))
	}

	taskID, err := t.queue.Schedule(prompt, time.Duration(delaySeconds)*time.Second, daemonRunID)
	if err != nil {
		return refusal(err.Error())
	}

	t.scheduled++
	return agent.ToolResult{ForLLM: fmt.Sprintf("Scheduled follow-up in %ds (task_id=%s).", delaySeconds, taskID)}
}

func (t *ToolSet) scheduleFollowupAt(args map[string]interface{}) agent.ToolResult {
	prompt, _ := args["prompt"].(string)
	isoDatetime, _ := args["iso_datetime"].(string)

	if t.scheduled >= t.maxPerRun {
		return refusal(fmt.Sprintf("Cannot schedule: per-run limit (%d) reached.", t.maxPerRun))
	}

	target, err := parseISODatetime(isoDatetime)
	if err != nil {
		return refusal(fmt.Sprintf("Invalid ISO datetime: %s", isoDatetime))
	}

	delay := target.Sub(t.clock().UTC())
	if delay < time.Second {
		return refusal("Cannot schedule: target time is in the past.")
	}
	if delay > time.Duration(t.maxDelay)*time.Second {
		return refusal(fmt.Sprintf("Cannot schedule: delay exceeds maximum (%ds).", t.maxDelay))
	}

	taskID, err := t.queue.Schedule(prompt, delay, daemonRunID)
	if err != nil {
		return refusal(err.Error())
	}

	t.scheduled++
	return agent.ToolResult{ForLLM: fmt.Sprintf("Scheduled follow-up at %s (task_id=%s).", isoDatetime, taskID)}
}

// parseISODatetime parses an ISO-8601 timestamp, assuming UTC when the
// string carries no zone offset.
func parseISODatetime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 datetime: %s", s)
}

func intArg(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func refusal(message string) agent.ToolResult {
	return agent.ToolResult{ForLLM: message, IsError: true}
}
