package reflection

import "testing"

func TestFormatStateEmptyPlan(t *testing.T) {
	s := New()
	if got := FormatState(s); got != "(No plan created yet)" {
		t.Errorf("FormatState() = %q, want %q", got, "(No plan created yet)")
	}
}

func TestFormatStateRendersIconsAndNotes(t *testing.T) {
	s := &State{Steps: []PlanStep{
		{Description: "write code", Status: StatusCompleted},
		{Description: "run tests", Status: StatusInProgress, Notes: "flaky on CI"},
		{Description: "deploy", Status: StatusFailed},
		{Description: "cleanup", Status: StatusSkipped},
		{Description: "announce", Status: StatusPending},
	}}

	got := FormatState(s)
	want := "Current Plan:\n" +
		"  1. [x] write code (completed)\n" +
		"  2. [ ] run tests (in_progress)\n" +
		"       flaky on CI\n" +
		"  3. [!] deploy (failed)\n" +
		"  4. [-] cleanup (skipped)\n" +
		"  5. [ ] announce (pending)"

	if got != want {
		t.Errorf("FormatState() =\n%q\nwant\n%q", got, want)
	}
}

func TestTallySortedByStatusName(t *testing.T) {
	steps := []PlanStep{
		{Status: StatusCompleted},
		{Status: StatusPending},
		{Status: StatusCompleted},
		{Status: StatusFailed},
	}
	if got := tally(steps); got != "2 completed, 1 failed, 1 pending" {
		t.Errorf("tally() = %q", got)
	}
}

func TestTallyEmpty(t *testing.T) {
	if got := tally(nil); got != "" {
		t.Errorf("tally(nil) = %q, want empty", got)
	}
}
