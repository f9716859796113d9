package scheduling

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/schedule"
)

func newTestQueue(maxTotal int) *schedule.Queue {
	return schedule.New(maxTotal, func(bus.TriggerEvent) {})
}

func TestScheduleFollowupHappyPath(t *testing.T) {
	q := newTestQueue(10)
	ts := NewToolSet(q, 3, 86400)

	res := ts.Call(context.Background(), "schedule_followup", map[string]interface{}{
		"prompt":        "check in",
		"delay_seconds": 30,
	})
	if res.IsError {
		t.Fatalf("unexpected refusal: %q", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "Scheduled follow-up in 30s") {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestScheduleFollowupEnforcesPerRunQuota(t *testing.T) {
	q := newTestQueue(10)
	ts := NewToolSet(q, 1, 86400)

	ts.Call(context.Background(), "schedule_followup", map[string]interface{}{"prompt": "a", "delay_seconds": 10})
	res := ts.Call(context.Background(), "schedule_followup", map[string]interface{}{"prompt": "b", "delay_seconds": 10})

	if !res.IsError || !strings.Contains(res.ForLLM, "per-run limit") {
		t.Errorf("expected per-run quota refusal, got %q (isError=%v)", res.ForLLM, res.IsError)
	}
}

func TestScheduleFollowupRejectsDelayBelowOneSecond(t *testing.T) {
	q := newTestQueue(10)
	ts := NewToolSet(q, 3, 86400)

	res := ts.Call(context.Background(), "schedule_followup", map[string]interface{}{"prompt": "a", "delay_seconds": 0})
	if !res.IsError || !strings.Contains(res.ForLLM, "at least 1 second") {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestScheduleFollowupRejectsDelayAboveMax(t *testing.T) {
	q := newTestQueue(10)
	ts := NewToolSet(q, 3, 100)

	res := ts.Call(context.Background(), "schedule_followup", map[string]interface{}{"prompt": "a", "delay_seconds": 200})
	if !res.IsError || !strings.Contains(res.ForLLM, "exceeds maximum") {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestScheduleFollowupRespectsQueueCapacity(t *testing.T) {
	q := newTestQueue(1)
	ts := NewToolSet(q, 5, 86400)

	ts.Call(context.Background(), "schedule_followup", map[string]interface{}{"prompt": "a", "delay_seconds": 10})
	res := ts.Call(context.Background(), "schedule_followup", map[string]interface{}{"prompt": "b", "delay_seconds": 10})
	if !res.IsError {
		t.Error("expected refusal when queue is at capacity")
	}
}

func TestScheduleFollowupAtRejectsPastTimestamp(t *testing.T) {
	q := newTestQueue(10)
	ts := NewToolSet(q, 3, 86400)
	ts.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	res := ts.Call(context.Background(), "schedule_followup_at", map[string]interface{}{
		"prompt":       "a",
		"iso_datetime": "2020-01-01T00:00:00Z",
	})
	if !res.IsError || !strings.Contains(res.ForLLM, "in the past") {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestScheduleFollowupAtRejectsInvalidTimestamp(t *testing.T) {
	q := newTestQueue(10)
	ts := NewToolSet(q, 3, 86400)

	res := ts.Call(context.Background(), "schedule_followup_at", map[string]interface{}{
		"prompt":       "a",
		"iso_datetime": "not-a-date",
	})
	if !res.IsError || !strings.Contains(res.ForLLM, "Invalid ISO datetime") {
		t.Errorf("ForLLM = %q", res.ForLLM)
	}
}

func TestScheduleFollowupAtAssumesUTCWhenNaive(t *testing.T) {
	q := newTestQueue(10)
	ts := NewToolSet(q, 3, 86400)
	ts.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	res := ts.Call(context.Background(), "schedule_followup_at", map[string]interface{}{
		"prompt":       "a",
		"iso_datetime": "2026-01-01T00:05:00",
	})
	if res.IsError {
		t.Fatalf("unexpected refusal: %q", res.ForLLM)
	}
}
