package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/agentdaemon/internal/autonomous"
	"github.com/nextlevelbuilder/agentdaemon/internal/budget"
	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/conversation"
	"github.com/nextlevelbuilder/agentdaemon/internal/memory"
	"github.com/nextlevelbuilder/agentdaemon/internal/providers"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
	"github.com/nextlevelbuilder/agentdaemon/internal/scheduling"
	"github.com/nextlevelbuilder/agentdaemon/internal/sink"
	"github.com/nextlevelbuilder/agentdaemon/pkg/agent"
)

// maxConcurrent caps how many trigger events may be dispatched at once.
const maxConcurrent = 4

// tracer emits one span per dispatched trigger event, the daemon-level
// counterpart to the autonomous package's per-iteration spans.
var tracer = otel.Tracer("agentdaemon/daemon")

// Runner is the single callback bound to every trigger driver: the
// execution dispatcher. One Runner is constructed per daemon process,
// closing over the role definition and every ambient collaborator
// (executor, budget tracker, conversation store, memory store, sink,
// scheduling queue).
type Runner struct {
	role   *role.Definition
	logger *slog.Logger

	executor agent.Executor
	loop     *autonomous.Loop

	tracker      *budget.Tracker
	convStore    *conversation.Store
	memoryStore  memory.Store
	consolidator memory.Consolidator
	consolidate  bool
	sink         sink.Sink
	scheduleQ    *scheduling.ToolSetFactory

	autonomousTriggers map[string]bool

	sem *semaphore.Weighted

	inFlightMu sync.Mutex
	inFlight   int
}

// Config bundles everything Runner needs beyond the role definition.
type Config struct {
	Role         *role.Definition
	Logger       *slog.Logger
	Provider     providers.Provider
	Tracker      *budget.Tracker
	ConvStore    *conversation.Store
	MemoryStore  memory.Store
	Consolidator memory.Consolidator
	Sink         sink.Sink
	ScheduleQ    *scheduling.ToolSetFactory
}

// NewRunner builds a Runner, deriving the autonomous-trigger-type set from
// the role's triggers (autonomous: true flags) and always including
// "scheduled".
func NewRunner(cfg Config) *Runner {
	executor := NewExecutor(cfg.Provider, cfg.Role.Spec.Model.Name, cfg.Logger)

	autonomousTriggers := map[string]bool{bus.TriggerScheduled: true}
	for _, t := range cfg.Role.Spec.Triggers {
		if isAutonomous(t) {
			autonomousTriggers[t.TriggerType()] = true
		}
	}

	consolidator := cfg.Consolidator
	if consolidator == nil {
		consolidator = memory.NoopConsolidator{}
	}
	consolidate := cfg.Role.Spec.Memory != nil && cfg.Role.Spec.Memory.Consolidate

	return &Runner{
		role:               cfg.Role,
		logger:             cfg.Logger,
		executor:           executor,
		loop:               autonomous.New(executor),
		tracker:            cfg.Tracker,
		convStore:          cfg.ConvStore,
		memoryStore:        cfg.MemoryStore,
		consolidator:       consolidator,
		consolidate:        consolidate,
		sink:               cfg.Sink,
		scheduleQ:          cfg.ScheduleQ,
		autonomousTriggers: autonomousTriggers,
		sem:                semaphore.NewWeighted(maxConcurrent),
	}
}

func isAutonomous(t role.TriggerConfig) bool {
	switch cfg := t.(type) {
	case role.CronTrigger:
		return cfg.Autonomous
	case role.FileWatchTrigger:
		return cfg.Autonomous
	case role.WebhookTrigger:
		return cfg.Autonomous
	case role.TelegramTrigger:
		return cfg.Autonomous
	case role.DiscordTrigger:
		return cfg.Autonomous
	default:
		return false
	}
}

// OnTrigger is the bus.Handler bound to every trigger driver.
func (r *Runner) OnTrigger(event bus.TriggerEvent) {
	ctx, span := tracer.Start(context.Background(), "daemon.dispatch", trace.WithAttributes(
		attribute.String("trigger_type", event.TriggerType),
	))
	defer span.End()

	// 1. Admission.
	if !r.sem.TryAcquire(1) {
		r.logger.Warn("dispatcher: admission refused, dropping event",
			slog.String("trigger", event.TriggerType))
		span.SetStatus(codes.Error, "admission refused")
		return
	}
	defer r.sem.Release(1)

	r.inFlightMu.Lock()
	r.inFlight++
	r.inFlightMu.Unlock()
	defer func() {
		r.inFlightMu.Lock()
		r.inFlight--
		r.inFlightMu.Unlock()
	}()

	// 2. Budget check.
	allowed, reason := r.tracker.CheckBeforeRun()
	if !allowed {
		r.logger.Warn("dispatcher: budget check refused event",
			slog.String("trigger", event.TriggerType), slog.String("reason", reason))
		return
	}

	// 3. Routing. Conversational UIs always get one reply per user turn,
	// regardless of the trigger's autonomous flag.
	useAutonomous := r.autonomousTriggers[event.TriggerType] && r.role.Spec.Autonomy != nil
	if bus.Conversational[event.TriggerType] {
		useAutonomous = false
	}

	// 4. History lookup. The conversation store is the fast path; when it
	// has nothing for this key (evicted, expired, or a fresh process), fall
	// back to the persisted session so a later trigger on the same key
	// resumes instead of starting cold.
	convKey := event.ConversationKey()
	var history []providers.Message
	if convKey != "" {
		if stored, ok := r.convStore.Get(convKey); ok {
			history = fromConversationMessages(stored)
		} else if r.memoryStore != nil {
			if resumed, ok, err := r.memoryStore.LoadSession(ctx, convKey); err != nil {
				r.logger.Warn("dispatcher: session resume failed", slog.String("conversation_key", convKey), slog.Any("error", err))
			} else if ok {
				history = resumed
			}
		}
	}

	// 5. Execute.
	autonomy := r.role.Spec.AutonomyOrDefault()
	guardrails := r.role.Spec.Guardrails
	if guardrails.MaxIterations <= 0 {
		guardrails = role.DefaultGuardrails()
	}

	var finalOutput string
	var totalTokens int64
	var finalMessages []providers.Message
	var finishSummary string
	var finalStatus string

	if useAutonomous {
		extraToolSets := r.extraToolSets()
		result := r.loop.Run(ctx, autonomous.Config{
			MaxIterations:           guardrails.MaxIterations,
			TokenBudget:             guardrails.AutonomousTokenBudget,
			TimeoutSeconds:          guardrails.AutonomousTimeoutSeconds,
			ContinuationPrompt:      autonomy.ContinuationPrompt,
			MaxHistoryMessages:      autonomy.MaxHistoryMessages,
			MaxPlanSteps:            autonomy.MaxPlanSteps,
			IterationDelaySeconds:   autonomy.IterationDelaySeconds,
			MaxNoToolCallIterations: autonomy.MaxNoToolCallIterations,
		}, r.role.Spec.Role, event.Prompt, event.TriggerType, event.Metadata, history, extraToolSets)

		totalTokens = result.Totals.TotalTokens
		finalMessages = result.FinalMessages
		finishSummary = result.FinishSummary
		finalStatus = result.FinalStatus

		if bus.Conversational[event.TriggerType] {
			finalOutput = result.FinalOutput
		} else {
			finalOutput = concatenateNonEmpty(result.Iterations)
		}

		// Per-iteration side effects for the autonomous path are the
		// loop's own concern; this Runner still dispatches the sink and
		// captures the episode below, since those are dispatcher-level
		// concerns independent of which path ran.
	} else {
		result, newMessages, err := r.executor.Execute(ctx, agent.RunRequest{
			RolePrompt:      r.role.Spec.Role,
			Prompt:          event.Prompt,
			MessageHistory:  history,
			TriggerType:     event.TriggerType,
			TriggerMetadata: event.Metadata,
		})
		if err != nil {
			r.logger.Error("dispatcher: single-iteration execute failed",
				slog.String("trigger", event.TriggerType), slog.Any("error", err))
			return
		}
		finalOutput = result.Output
		totalTokens = result.TotalTokens
		finalMessages = newMessages
		finalStatus = resultStatus(result)
	}

	span.SetAttributes(
		attribute.Bool("autonomous", useAutonomous),
		attribute.Int64("tokens_total", totalTokens),
		attribute.String("final_status", finalStatus),
	)
	if finalStatus == autonomous.StatusError {
		span.SetStatus(codes.Error, finalOutput)
	}

	// 6. Reconcile tokens.
	r.tracker.RecordUsage(totalTokens)

	// 7. Reply fan-out.
	if event.ReplyFn != nil && finalOutput != "" {
		if err := event.ReplyFn(finalOutput); err != nil {
			r.logger.Error("dispatcher: reply_fn failed",
				slog.String("trigger", event.TriggerType), slog.Any("error", err))
		}
	}

	// 8. Side effects.
	if r.sink != nil && finalOutput != "" {
		if err := r.sink.Notify(ctx, event.TriggerType, finalOutput); err != nil {
			r.logger.Warn("dispatcher: sink notify failed", slog.Any("error", err))
		}
	}
	if r.memoryStore != nil {
		summary := finishSummary
		if summary == "" {
			summary = finalOutput
		}
		ep := memory.Episode{
			TriggerType:     event.TriggerType,
			ConversationKey: convKey,
			Summary:         summary,
			FinalStatus:     finalStatus,
			TotalTokens:     totalTokens,
			Timestamp:       time.Now().UTC(),
		}
		if err := r.memoryStore.CaptureEpisode(ctx, ep); err != nil {
			r.logger.Warn("dispatcher: episode capture failed", slog.Any("error", err))
		}
	}

	// 9. History update.
	if convKey != "" {
		trimmed := autonomous.TrimHistory(finalMessages, autonomy.MaxHistoryMessages, false)
		r.convStore.Put(convKey, toConversationMessages(trimmed))

		if r.memoryStore != nil {
			if err := r.memoryStore.SaveSession(ctx, convKey, trimmed); err != nil {
				r.logger.Warn("dispatcher: session save failed", slog.String("conversation_key", convKey), slog.Any("error", err))
			} else if r.consolidate {
				if err := r.consolidator.Consolidate(ctx); err != nil {
					r.logger.Warn("dispatcher: consolidation failed", slog.Any("error", err))
				}
			}
		}
	}

	// 10. Release happens via the deferred semaphore/in-flight decrements above.
}

// SetScheduleQueue late-binds the scheduling toolset factory. The schedule
// queue's own emit callback is this Runner's OnTrigger method, so the two
// can't be constructed in a single pass; callers build the Runner first,
// then the queue/factory bound to r.OnTrigger, then call this.
func (r *Runner) SetScheduleQueue(factory *scheduling.ToolSetFactory) {
	r.scheduleQ = factory
}

// InFlight returns the current in-flight run count (shutdown accounting).
func (r *Runner) InFlight() int {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	return r.inFlight
}

func (r *Runner) extraToolSets() []agent.ToolSet {
	if r.scheduleQ == nil {
		return nil
	}
	autonomy := r.role.Spec.AutonomyOrDefault()
	return []agent.ToolSet{r.scheduleQ.New(autonomy.MaxScheduledPerRun, autonomy.MaxScheduleDelaySeconds)}
}

func concatenateNonEmpty(iterations []agent.RunResult) string {
	var parts []string
	for _, it := range iterations {
		if it.Output != "" {
			parts = append(parts, it.Output)
		}
	}
	return strings.Join(parts, "\n\n")
}

func resultStatus(result agent.RunResult) string {
	if result.Success {
		return autonomous.StatusCompleted
	}
	return autonomous.StatusError
}

func toConversationMessages(messages []providers.Message) []conversation.Message {
	out := make([]conversation.Message, len(messages))
	for i, m := range messages {
		out[i] = m
	}
	return out
}

func fromConversationMessages(stored []conversation.Message) []providers.Message {
	out := make([]providers.Message, 0, len(stored))
	for _, v := range stored {
		if m, ok := v.(providers.Message); ok {
			out = append(out, m)
		}
	}
	return out
}
