package triggers

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

func TestNewCronDriverRejectsInvalidSchedule(t *testing.T) {
	_, err := NewCronDriver(role.CronTrigger{Schedule: "not a cron expression"}, func(bus.TriggerEvent) {}, testLogger())
	if err == nil {
		t.Error("expected an error for an invalid cron schedule")
	}
}

func TestNewCronDriverRejectsInvalidTimezone(t *testing.T) {
	cfg := role.CronTrigger{Schedule: "*/5 * * * *", Timezone: "Not/A_Zone"}
	_, err := NewCronDriver(cfg, func(bus.TriggerEvent) {}, testLogger())
	if err == nil {
		t.Error("expected an error for an invalid timezone")
	}
}

func TestNewCronDriverAcceptsValidSchedule(t *testing.T) {
	d, err := NewCronDriver(role.CronTrigger{Schedule: "*/5 * * * *"}, func(bus.TriggerEvent) {}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if d.loc == nil {
		t.Error("expected a resolved time.Location")
	}
}

func TestCronSleepUntilReturnsTrueOncePastTarget(t *testing.T) {
	d, err := NewCronDriver(role.CronTrigger{Schedule: "*/5 * * * *"}, func(bus.TriggerEvent) {}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	d.stop = make(chan struct{})

	target := time.Now().Add(50 * time.Millisecond)
	if !d.sleepUntil(target) {
		t.Error("sleepUntil() = false, want true once target has passed")
	}
}

func TestCronSleepUntilInterruptedByStop(t *testing.T) {
	d, err := NewCronDriver(role.CronTrigger{Schedule: "*/5 * * * *"}, func(bus.TriggerEvent) {}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	d.stop = make(chan struct{})

	target := time.Now().Add(time.Hour)
	done := make(chan bool, 1)
	go func() {
		done <- d.sleepUntil(target)
	}()

	close(d.stop)

	select {
	case result := <-done:
		if result {
			t.Error("sleepUntil() = true, want false when stopped before target")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sleepUntil did not observe the stop signal")
	}
}
