package triggers

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

func TestDispatcherBuildSkipsConstructionFailures(t *testing.T) {
	d := New(testLogger())
	// A telegram trigger with an unset token env var fails to construct;
	// the webhook trigger alongside it must still build successfully.
	d.Build([]role.TriggerConfig{
		role.TelegramTrigger{TokenEnv: "AGENTDAEMON_TEST_UNSET_TOKEN_ENV"},
		role.WebhookTrigger{Path: "/hook", Port: 0},
	}, func(bus.TriggerEvent) {})

	if len(d.drivers) != 1 {
		t.Fatalf("drivers built = %d, want 1 (webhook only)", len(d.drivers))
	}
}

type fakeDriver struct {
	startErr error
	started  bool
	stopped  bool
}

func (f *fakeDriver) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeDriver) Stop() error {
	f.stopped = true
	return nil
}

func TestDispatcherStartAllStopsAlreadyStartedOnFailure(t *testing.T) {
	d := New(testLogger())
	first := &fakeDriver{}
	second := &fakeDriver{startErr: errors.New("boom")}
	d.drivers = []Driver{first, second}

	err := d.StartAll(context.Background())
	if err == nil {
		t.Fatal("expected StartAll to propagate the second driver's start error")
	}
	if !first.started {
		t.Error("expected the first driver to have started before the second failed")
	}
	if !first.stopped {
		t.Error("expected the already-started first driver to be stopped on rollback")
	}
}

func TestDispatcherStopAllStopsEveryDriver(t *testing.T) {
	d := New(testLogger())
	a := &fakeDriver{}
	b := &fakeDriver{}
	d.drivers = []Driver{a, b}

	d.StopAll()

	if !a.stopped || !b.stopped {
		t.Error("expected StopAll to stop every registered driver")
	}
}
