// Package autonomous implements the iterative autonomous agent driver:
// plan/finish reflection state, continuation prompting, spin guard, token
// and wall-clock budgets, and conversational early-exit.
package autonomous

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/providers"
	"github.com/nextlevelbuilder/agentdaemon/internal/reflection"
	"github.com/nextlevelbuilder/agentdaemon/pkg/agent"
)

// tracer emits one span per iteration. Exporter wiring is the operator's
// bootstrap concern; absent a span processor these spans are dropped.
var tracer = otel.Tracer("agentdaemon/autonomous")

// Config parameterizes one autonomous run: the role's autonomy policy
// plus the two guardrail ceilings the loop enforces itself.
type Config struct {
	MaxIterations           int
	TokenBudget             *int64
	TimeoutSeconds          *int
	ContinuationPrompt      string
	MaxHistoryMessages      int
	MaxPlanSteps            int
	IterationDelaySeconds   float64
	MaxNoToolCallIterations int
}

func (c Config) historyLimit() int {
	if c.MaxHistoryMessages <= 0 {
		return 40
	}
	return c.MaxHistoryMessages
}

func (c Config) noToolCallLimit() int {
	if c.MaxNoToolCallIterations <= 0 {
		return 3
	}
	return c.MaxNoToolCallIterations
}

// Loop drives one autonomous run to completion against an Executor
// collaborator.
type Loop struct {
	executor agent.Executor
	clock    func() time.Time
	sleep    func(time.Duration)
}

// New constructs a Loop bound to executor.
func New(executor agent.Executor) *Loop {
	return &Loop{executor: executor, clock: time.Now, sleep: time.Sleep}
}

// Run iterates the agent until it declares completion (finish_task) or a
// guardrail fires, returning the aggregate Result.
func (l *Loop) Run(
	ctx context.Context,
	cfg Config,
	rolePrompt, prompt, triggerType string,
	triggerMetadata map[string]string,
	history []providers.Message,
	extraToolSets []agent.ToolSet,
) Result {
	runID := uuid.NewString()
	state := reflection.New()
	toolSets := append([]agent.ToolSet{reflection.NewToolSet(state, cfg.MaxPlanSteps)}, extraToolSets...)

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 10
	}

	start := l.clock()
	messageHistory := history
	var iterations []agent.RunResult
	var cumulativeTokens int64
	var consecutiveNoToolCalls int
	previousHadNoToolCalls := false

	finalStatus := StatusMaxIterations
	var runErr string

iterationLoop:
	for iteration := 1; iteration <= maxIterations; iteration++ {
		if cfg.TimeoutSeconds != nil && *cfg.TimeoutSeconds > 0 {
			if l.clock().Sub(start) >= time.Duration(*cfg.TimeoutSeconds)*time.Second {
				finalStatus = StatusTimeout
				break iterationLoop
			}
		}
		if cfg.TokenBudget != nil && cumulativeTokens >= *cfg.TokenBudget {
			finalStatus = StatusBudgetExceeded
			break iterationLoop
		}

		iterPrompt := buildPrompt(cfg, prompt, iteration, state, triggerType, previousHadNoToolCalls)

		iterMetadata := cloneMetadata(triggerMetadata)
		iterMetadata["autonomous_run_id"] = runID
		iterMetadata["iteration"] = fmt.Sprintf("%d", iteration)

		iterCtx, span := tracer.Start(ctx, "autonomous.iteration", trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("iteration", iteration),
			attribute.String("trigger_type", triggerType),
		))

		result, newHistory, err := l.executor.Execute(iterCtx, agent.RunRequest{
			RolePrompt:      rolePrompt,
			Prompt:          iterPrompt,
			MessageHistory:  messageHistory,
			TriggerType:     triggerType,
			TriggerMetadata: iterMetadata,
			ExtraToolSets:   toolSets,
		})
		if err != nil {
			result.Success = false
			result.Error = err.Error()
		}
		if result.RunID == "" {
			result.RunID = runID
		}

		span.SetAttributes(
			attribute.Int64("tokens_total", result.TotalTokens),
			attribute.Int("tool_calls", result.ToolCalls),
			attribute.Bool("success", result.Success),
		)
		if !result.Success {
			span.SetStatus(codes.Error, result.Error)
		}
		span.End()

		iterations = append(iterations, result)
		cumulativeTokens += result.TotalTokens
		// The executor prepends the role prompt as a system turn; drop system
		// turns so the first kept message is the original task.
		kept := make([]providers.Message, 0, len(newHistory))
		for _, m := range newHistory {
			if m.Role != "system" {
				kept = append(kept, m)
			}
		}
		messageHistory = TrimHistory(kept, cfg.historyLimit(), true)

		if state.Completed {
			finalStatus = state.Status
			break iterationLoop
		}

		if !result.Success {
			finalStatus = StatusError
			runErr = result.Error
			break iterationLoop
		}

		if bus.Conversational[triggerType] {
			finalStatus = StatusCompleted
			break iterationLoop
		}

		if result.ToolCalls == 0 {
			consecutiveNoToolCalls++
			previousHadNoToolCalls = true
			if consecutiveNoToolCalls >= cfg.noToolCallLimit() {
				state.Completed = true
				state.Status = reflection.OutcomeBlocked
				state.Summary = fmt.Sprintf(
					"Autonomous run stopped: no tool calls for %d consecutive iterations.",
					consecutiveNoToolCalls,
				)
				finalStatus = StatusBlocked
				break iterationLoop
			}
		} else {
			consecutiveNoToolCalls = 0
			previousHadNoToolCalls = false
		}

		if cfg.IterationDelaySeconds > 0 && iteration < maxIterations {
			l.sleep(time.Duration(cfg.IterationDelaySeconds * float64(time.Second)))
		}
	}

	return buildResult(runID, iterations, finalStatus, runErr, state, l.clock().Sub(start), messageHistory)
}

// buildPrompt renders the prompt for one iteration. Iteration 1 uses the
// original prompt verbatim; later iterations render
// the continuation prompt followed by the current plan/status block, with
// a nudge appended when the previous iteration produced no tool calls on a
// conversational trigger.
func buildPrompt(cfg Config, originalPrompt string, iteration int, state *reflection.State, triggerType string, previousHadNoToolCalls bool) string {
	if iteration == 1 {
		return originalPrompt
	}

	var b strings.Builder
	b.WriteString(cfg.ContinuationPrompt)
	b.WriteString("\n\nCURRENT STATUS:\n")
	b.WriteString(reflection.FormatState(state))

	if previousHadNoToolCalls && bus.Conversational[triggerType] {
		b.WriteString("\n\nYour last response made no tool calls. The user will never see a " +
			"clarifying question asked this way — call finish_task(status='blocked') instead of " +
			"asking again.")
	}

	return b.String()
}

func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func buildResult(runID string, iterations []agent.RunResult, finalStatus, runErr string, state *reflection.State, duration time.Duration, finalMessages []providers.Message) Result {
	var totals Totals
	for _, it := range iterations {
		totals.TokensIn += it.TokensIn
		totals.TokensOut += it.TokensOut
		totals.TotalTokens += it.TotalTokens
		totals.ToolCalls += it.ToolCalls
	}
	totals.DurationMS = duration.Milliseconds()

	var finalOutput string
	if len(iterations) > 0 {
		finalOutput = iterations[len(iterations)-1].Output
	}

	success := finalStatus == StatusCompleted || finalStatus == StatusMaxIterations

	return Result{
		RunID:          runID,
		Iterations:     iterations,
		FinalOutput:    finalOutput,
		FinalStatus:    finalStatus,
		FinishSummary:  state.Summary,
		Totals:         totals,
		IterationCount: len(iterations),
		Success:        success,
		Error:          runErr,
		FinalMessages:  finalMessages,
	}
}
