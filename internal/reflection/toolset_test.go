package reflection

import (
	"context"
	"testing"
)

func TestFinishTaskSetsCompletedAndDefaultsStatus(t *testing.T) {
	state := New()
	ts := NewToolSet(state, 20)

	res := ts.Call(context.Background(), "finish_task", map[string]interface{}{
		"summary": "done with it",
	})
	if res.IsError {
		t.Fatalf("finish_task returned IsError, ForLLM=%q", res.ForLLM)
	}
	if !state.Completed {
		t.Error("state.Completed = false, want true")
	}
	if state.Status != OutcomeCompleted {
		t.Errorf("state.Status = %q, want %q", state.Status, OutcomeCompleted)
	}
	if state.Summary != "done with it" {
		t.Errorf("state.Summary = %q", state.Summary)
	}
	if res.ForLLM != "Task finished (completed)." {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestFinishTaskRejectsUnknownStatus(t *testing.T) {
	state := New()
	ts := NewToolSet(state, 20)

	ts.Call(context.Background(), "finish_task", map[string]interface{}{
		"summary": "x",
		"status":  "nonsense",
	})
	if state.Status != OutcomeCompleted {
		t.Errorf("state.Status = %q, want default %q for unknown status", state.Status, OutcomeCompleted)
	}
}

func TestUpdatePlanTruncatesDropsEmptyAndCoercesStatus(t *testing.T) {
	state := New()
	ts := NewToolSet(state, 3)

	steps := []interface{}{
		map[string]interface{}{"description": "a", "status": "completed"},
		map[string]interface{}{"description": ""}, // dropped: empty description
		map[string]interface{}{"description": "b", "status": "bogus"}, // coerced to pending
		map[string]interface{}{"description": "c"},                   // cut: beyond max_plan_steps=3
	}

	res := ts.Call(context.Background(), "update_plan", map[string]interface{}{"steps": steps})
	if res.IsError {
		t.Fatalf("update_plan returned IsError, ForLLM=%q", res.ForLLM)
	}

	if len(state.Steps) != 2 {
		t.Fatalf("state.Steps = %v, want 2 entries (truncated to max_plan_steps, then empty dropped)", state.Steps)
	}
	if state.Steps[0].Status != StatusCompleted {
		t.Errorf("steps[0].Status = %q, want %q", state.Steps[0].Status, StatusCompleted)
	}
}

func TestUpdatePlanClearedWhenEmpty(t *testing.T) {
	state := New()
	ts := NewToolSet(state, 20)

	res := ts.Call(context.Background(), "update_plan", map[string]interface{}{"steps": []interface{}{}})
	if res.ForLLM != "Plan cleared." {
		t.Errorf("ForLLM = %q, want %q", res.ForLLM, "Plan cleared.")
	}
}

func TestCallUnknownTool(t *testing.T) {
	ts := NewToolSet(New(), 20)
	res := ts.Call(context.Background(), "nope", nil)
	if !res.IsError {
		t.Error("expected IsError for unknown tool")
	}
}
