// Package triggers implements the trigger dispatcher and its five driver
// kinds: cron, file-watch, webhook, telegram, discord. Each driver runs as
// a background worker observing a cooperative stop flag at least once a
// second, and calls a single shared callback synchronously when it has an
// event to deliver.
package triggers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

// Driver is one running trigger source. Start begins its worker loop in
// the background (returning once it has begun, not once it has stopped);
// Stop requests shutdown and blocks until the worker has observed it.
type Driver interface {
	Start(ctx context.Context) error
	Stop() error
}

// Dispatcher owns a registry mapping each trigger-config variant to a
// constructor, and the lifecycle of the drivers it builds. It holds no
// business policy of its own.
type Dispatcher struct {
	logger  *slog.Logger
	drivers []Driver
}

// New constructs a Dispatcher with no drivers; the handler every driver
// emits through is supplied later to Build. A nil logger defaults to
// slog.Default().
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Build constructs one driver per trigger config, sharing handler as the
// callback. Driver construction failures are logged and that driver is
// omitted; the others still start.
func (d *Dispatcher) Build(configs []role.TriggerConfig, handler bus.Handler) {
	for _, cfg := range configs {
		driver, err := buildDriver(cfg, handler, d.logger)
		if err != nil {
			d.logger.Error("trigger driver failed to build, skipping", slog.String("type", cfg.TriggerType()), slog.Any("error", err))
			continue
		}
		if driver == nil {
			continue
		}
		d.drivers = append(d.drivers, driver)
	}
}

func buildDriver(cfg role.TriggerConfig, handler bus.Handler, logger *slog.Logger) (Driver, error) {
	switch c := cfg.(type) {
	case role.CronTrigger:
		return NewCronDriver(c, handler, logger)
	case role.FileWatchTrigger:
		return NewFileWatchDriver(c, handler, logger)
	case role.WebhookTrigger:
		return NewWebhookDriver(c, handler, logger)
	case role.TelegramTrigger:
		return NewTelegramDriver(c, handler, logger)
	case role.DiscordTrigger:
		return NewDiscordDriver(c, handler, logger)
	default:
		return nil, fmt.Errorf("unknown trigger config type %T", cfg)
	}
}

// StartAll starts every built driver, stopping any already-started drivers
// and returning the first error if one fails.
func (d *Dispatcher) StartAll(ctx context.Context) error {
	started := make([]Driver, 0, len(d.drivers))
	for _, driver := range d.drivers {
		if err := driver.Start(ctx); err != nil {
			d.logger.Error("trigger driver failed to start", slog.Any("error", err))
			for _, s := range started {
				_ = s.Stop()
			}
			return fmt.Errorf("start trigger driver: %w", err)
		}
		started = append(started, driver)
	}
	return nil
}

// StopAll stops every driver, collecting but not short-circuiting on
// individual errors, so shutdown always completes in bounded time.
func (d *Dispatcher) StopAll() {
	for _, driver := range d.drivers {
		if err := driver.Stop(); err != nil {
			d.logger.Warn("trigger driver stop failed", slog.Any("error", err))
		}
	}
}
