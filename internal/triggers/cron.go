package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

// pollInterval is the slice the cron driver's sleep loop observes the stop
// flag at, bounding its shutdown latency to about a second.
const pollInterval = 1 * time.Second

// CronDriver fires an event each time its cron schedule elapses. No
// catch-up: if the daemon slept through a fire, only the next upcoming
// tick triggers.
type CronDriver struct {
	cfg     role.CronTrigger
	handler bus.Handler
	logger  *slog.Logger

	loc *time.Location

	stop chan struct{}
	done chan struct{}
}

// NewCronDriver validates cfg.Schedule and builds a CronDriver.
func NewCronDriver(cfg role.CronTrigger, handler bus.Handler, logger *slog.Logger) (*CronDriver, error) {
	if !gronx.New().IsValid(cfg.Schedule) {
		return nil, fmt.Errorf("invalid cron schedule %q", cfg.Schedule)
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid cron timezone %q: %w", tz, err)
	}
	return &CronDriver{cfg: cfg, handler: handler, logger: logger, loc: loc}, nil
}

func (d *CronDriver) Start(_ context.Context) error {
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run()
	return nil
}

func (d *CronDriver) Stop() error {
	close(d.stop)
	<-d.done
	return nil
}

func (d *CronDriver) run() {
	defer close(d.done)
	for {
		next, err := gronx.NextTickAfter(d.cfg.Schedule, time.Now().In(d.loc), false)
		if err != nil {
			d.logger.Error("cron: failed to compute next tick", slog.Any("error", err))
			return
		}

		if !d.sleepUntil(next) {
			return
		}

		d.handler(bus.TriggerEvent{
			TriggerType: bus.TriggerCron,
			Prompt:      d.cfg.Prompt,
			Timestamp:   time.Now().UTC(),
			Metadata:    map[string]string{"schedule": d.cfg.Schedule},
		})
	}
}

// sleepUntil sleeps in pollInterval slices until target, returning false
// if the stop flag fires first.
func (d *CronDriver) sleepUntil(target time.Time) bool {
	for {
		remaining := time.Until(target)
		if remaining <= 0 {
			return true
		}
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-d.stop:
			return false
		case <-time.After(wait):
		}
	}
}
