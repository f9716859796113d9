package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nextlevelbuilder/agentdaemon/internal/budget"
	"github.com/nextlevelbuilder/agentdaemon/internal/conversation"
	"github.com/nextlevelbuilder/agentdaemon/internal/daemon"
	"github.com/nextlevelbuilder/agentdaemon/internal/memory"
	"github.com/nextlevelbuilder/agentdaemon/internal/providers"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
	"github.com/nextlevelbuilder/agentdaemon/internal/schedule"
	"github.com/nextlevelbuilder/agentdaemon/internal/scheduling"
	"github.com/nextlevelbuilder/agentdaemon/internal/shutdown"
	"github.com/nextlevelbuilder/agentdaemon/internal/sink"
	"github.com/nextlevelbuilder/agentdaemon/internal/triggers"
)

// drainTimeout caps how long shutdown waits for in-flight runs before
// giving up and exiting anyway.
const drainTimeout = 30 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the daemon against the configured role",
		Run: func(cmd *cobra.Command, args []string) {
			runDaemon()
		},
	}
}

func runDaemon() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Tracing spans (internal/daemon, internal/autonomous) always emit;
	// exporter wiring is a deployment's own bootstrap concern. With no span
	// processor attached, spans are created and discarded.
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer provider shutdown failed", slog.Any("error", err))
		}
	}()

	path := resolveRolePath()
	def, err := role.Load(path)
	if err != nil {
		logger.Error("failed to load role file", slog.String("path", path), slog.Any("error", err))
		os.Exit(1)
	}

	provider, err := buildProvider(def)
	if err != nil {
		logger.Error("failed to build LLM provider", slog.Any("error", err))
		os.Exit(1)
	}

	memStore, err := buildMemoryStore(def)
	if err != nil {
		logger.Error("failed to build memory store", slog.Any("error", err))
		os.Exit(1)
	}

	guardrails := def.Spec.Guardrails
	if guardrails.MaxIterations <= 0 {
		guardrails = role.DefaultGuardrails()
	}
	autonomy := def.Spec.AutonomyOrDefault()

	tracker := budget.New(guardrails.DaemonTokenBudget, guardrails.DaemonDailyTokenBudget)
	convStore := conversation.New(conversation.DefaultMax, conversation.DefaultTTL)

	runner := daemon.NewRunner(daemon.Config{
		Role:         def,
		Logger:       logger,
		Provider:     provider,
		Tracker:      tracker,
		ConvStore:    convStore,
		MemoryStore:  memStore,
		Consolidator: memory.NoopConsolidator{},
		Sink:         sink.NewSlogSink(logger),
	})

	queue := schedule.New(autonomy.MaxScheduledTotal, runner.OnTrigger)
	runner.SetScheduleQueue(scheduling.NewToolSetFactory(queue))

	dispatcher := triggers.New(logger)
	dispatcher.Build(def.Spec.Triggers, runner.OnTrigger)

	sh := shutdown.Install(logger)

	ctx := context.Background()
	if err := dispatcher.StartAll(ctx); err != nil {
		logger.Error("failed to start trigger drivers", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("daemon started", slog.String("role", def.Metadata.Name), slog.Int("triggers", len(def.Spec.Triggers)))

	<-sh.Done()

	dispatcher.StopAll()

	cancelled := queue.CancelAll()
	logger.Info("cancelled pending scheduled tasks", slog.Int("count", cancelled))

	drained := waitForDrain(runner, drainTimeout)
	if !drained {
		logger.Warn("shutdown: in-flight work did not drain within timeout", slog.Duration("timeout", drainTimeout))
	}

	logger.Info("daemon stopped")

	if err := memStore.Close(); err != nil {
		logger.Warn("memory store close failed", slog.Any("error", err))
	}
}

// waitForDrain polls the runner's in-flight counter until it reaches zero
// or timeout elapses, returning whether it drained cleanly.
func waitForDrain(runner *daemon.Runner, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if runner.InFlight() == 0 {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return runner.InFlight() == 0
}

func buildProvider(def *role.Definition) (providers.Provider, error) {
	switch def.Spec.Model.Provider {
	case "anthropic", "":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		return providers.NewAnthropicProvider(apiKey, def.Spec.Model.Name), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", def.Spec.Model.Provider)
	}
}

func buildMemoryStore(def *role.Definition) (memory.Store, error) {
	cfg := def.Spec.Memory
	driver := "sqlite"
	path := "agentdaemon.db"
	if cfg != nil {
		if cfg.Driver != "" {
			driver = cfg.Driver
		}
		if cfg.Path != "" {
			path = cfg.Path
		}
	}

	switch driver {
	case "sqlite":
		return memory.NewSQLiteMemory(path)
	case "postgres":
		if cfg == nil || cfg.DSNEnv == "" {
			return nil, fmt.Errorf("memory.dsn_env is required for the postgres driver")
		}
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("env var %s is not set", cfg.DSNEnv)
		}
		return memory.NewPostgresMemory(context.Background(), dsn, "internal/memory/migrations")
	default:
		return nil, fmt.Errorf("unsupported memory driver %q", driver)
	}
}
