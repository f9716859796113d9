// Package agent defines the executor contract shared by the autonomous
// loop and the execution dispatcher, plus the data types those components
// pass across it. How the model is actually called, how prompts are
// composed, and how tools are wired are collaborator concerns; this
// package only names the shapes.
package agent

import (
	"context"

	"github.com/nextlevelbuilder/agentdaemon/internal/providers"
)

// RunResult is the outcome of one LLM iteration.
type RunResult struct {
	RunID       string
	Output      string
	TokensIn    int64
	TokensOut   int64
	TotalTokens int64
	ToolCalls   int
	Success     bool
	Error       string
}

// ToolResult is what a tool call returns to the executor: text for the
// model, optionally marked as a refusal/validation failure rather than a
// hard error.
type ToolResult struct {
	ForLLM  string
	IsError bool
}

// ToolDefinition describes one callable tool's name, description, and JSON
// Schema-shaped parameters, independent of any one provider's wire format.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolSet is a named, closed-over group of agent-callable tools a
// collaborator merges into a request's available tools. The reflection and
// scheduling toolsets (internal/reflection, internal/scheduling) are the
// two concrete implementations this module ships.
type ToolSet interface {
	Name() string
	Definitions() []ToolDefinition
	Call(ctx context.Context, toolName string, args map[string]interface{}) ToolResult
}

// RunRequest is everything the executor contract needs to run a single LLM
// iteration.
type RunRequest struct {
	RolePrompt      string
	Prompt          string
	MessageHistory  []providers.Message
	TriggerType     string
	TriggerMetadata map[string]string
	ExtraToolSets   []ToolSet
}

// Executor runs a single LLM iteration and returns its result along with
// the full updated message history. Implementations are synchronous.
type Executor interface {
	Execute(ctx context.Context, req RunRequest) (RunResult, []providers.Message, error)
}
