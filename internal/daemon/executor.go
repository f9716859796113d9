// Package daemon wires the execution dispatcher: the concrete
// agent.Executor that drives one round of LLM/tool-call traffic
// against a providers.Provider, and the Runner that sits between the
// trigger bus and the autonomous loop / single-shot executor, enforcing
// concurrency admission, budget checks, conversation-affinity history, and
// reply/side-effect fan-out.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentdaemon/internal/providers"
	"github.com/nextlevelbuilder/agentdaemon/pkg/agent"
)

// maxToolRounds bounds the number of LLM<->tool round trips a single
// Execute call will drive before giving up and returning whatever content
// the model last produced. This keeps one iteration from spinning forever
// on a model that never stops requesting tools; it is an internal safety
// valve, generous relative to max_iterations.
const maxToolRounds = 25

// Executor is the concrete agent.Executor: it calls a providers.Provider,
// merges the tool definitions of every bound ToolSet, executes requested
// tool calls (single calls inline, multiple calls in parallel, sorted back
// into deterministic order), and feeds results back to the model until it
// stops requesting tools or maxToolRounds is hit.
type Executor struct {
	provider providers.Provider
	model    string
	logger   *slog.Logger
}

// NewExecutor binds an Executor to provider. Every Chat request it sends
// carries model; an empty model leaves the choice to the provider's own
// default.
func NewExecutor(provider providers.Provider, model string, logger *slog.Logger) *Executor {
	return &Executor{provider: provider, model: model, logger: logger}
}

// Execute implements agent.Executor.
func (e *Executor) Execute(ctx context.Context, req agent.RunRequest) (agent.RunResult, []providers.Message, error) {
	runID := uuid.NewString()

	messages := buildMessages(req)
	toolSets := req.ExtraToolSets
	toolDefs := mergedToolDefinitions(toolSets)

	var totalUsage providers.Usage
	var toolCallCount int
	var finalContent string

	for round := 0; round < maxToolRounds; round++ {
		resp, err := e.provider.Chat(ctx, providers.ChatRequest{
			Model:    e.model,
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return agent.RunResult{
				RunID:       runID,
				TokensIn:    totalUsage.PromptTokens,
				TokensOut:   totalUsage.CompletionTokens,
				TotalTokens: totalUsage.TotalTokens,
				ToolCalls:   toolCallCount,
				Success:     false,
				Error:       fmt.Sprintf("LLM call failed: %s", err),
			}, messages, nil
		}

		totalUsage.PromptTokens += resp.Usage.PromptTokens
		totalUsage.CompletionTokens += resp.Usage.CompletionTokens
		totalUsage.TotalTokens += resp.Usage.TotalTokens

		if len(resp.ToolCalls) == 0 {
			finalContent = resp.Content
			break
		}

		toolCallCount += len(resp.ToolCalls)
		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		toolMessages := e.runToolCalls(ctx, toolSets, resp.ToolCalls)
		messages = append(messages, toolMessages...)

		finalContent = resp.Content
	}

	return agent.RunResult{
		RunID:       runID,
		Output:      finalContent,
		TokensIn:    totalUsage.PromptTokens,
		TokensOut:   totalUsage.CompletionTokens,
		TotalTokens: totalUsage.TotalTokens,
		ToolCalls:   toolCallCount,
		Success:     true,
	}, messages, nil
}

// buildMessages composes the request's system prompt, trimmed history, and
// new user prompt into the message slice handed to the provider.
func buildMessages(req agent.RunRequest) []providers.Message {
	messages := make([]providers.Message, 0, len(req.MessageHistory)+2)
	if req.RolePrompt != "" {
		messages = append(messages, providers.Message{Role: "system", Content: req.RolePrompt})
	}
	messages = append(messages, req.MessageHistory...)
	messages = append(messages, providers.Message{Role: "user", Content: req.Prompt})
	return messages
}

func mergedToolDefinitions(toolSets []agent.ToolSet) []providers.ToolDefinition {
	var defs []providers.ToolDefinition
	for _, ts := range toolSets {
		for _, d := range ts.Definitions() {
			defs = append(defs, providers.ToolDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			})
		}
	}
	return defs
}

// runToolCalls executes calls against the matching ToolSet: one call
// inline, several in parallel, re-sorted to the model's original order
// before being appended as tool messages.
func (e *Executor) runToolCalls(ctx context.Context, toolSets []agent.ToolSet, calls []providers.ToolCall) []providers.Message {
	if len(calls) == 1 {
		return []providers.Message{e.callOne(ctx, toolSets, calls[0])}
	}

	type indexed struct {
		idx int
		msg providers.Message
	}
	resultCh := make(chan indexed, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(idx int, tc providers.ToolCall) {
			defer wg.Done()
			resultCh <- indexed{idx: idx, msg: e.callOne(ctx, toolSets, tc)}
		}(i, tc)
	}
	go func() { wg.Wait(); close(resultCh) }()

	collected := make([]indexed, 0, len(calls))
	for r := range resultCh {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })

	out := make([]providers.Message, len(collected))
	for i, r := range collected {
		out[i] = r.msg
	}
	return out
}

func (e *Executor) callOne(ctx context.Context, toolSets []agent.ToolSet, tc providers.ToolCall) providers.Message {
	for _, ts := range toolSets {
		for _, def := range ts.Definitions() {
			if def.Name != tc.Name {
				continue
			}
			result := ts.Call(ctx, tc.Name, tc.Arguments)
			if result.IsError {
				argsJSON, _ := json.Marshal(tc.Arguments)
				e.logger.Warn("tool call refused or errored",
					slog.String("tool", tc.Name), slog.String("args", string(argsJSON)))
			}
			return providers.Message{Role: "tool", Content: result.ForLLM, ToolCallID: tc.ID}
		}
	}
	return providers.Message{
		Role:       "tool",
		Content:    fmt.Sprintf("unknown tool: %s", tc.Name),
		ToolCallID: tc.ID,
	}
}
