package autonomous

import (
	"github.com/nextlevelbuilder/agentdaemon/internal/providers"
	"github.com/nextlevelbuilder/agentdaemon/pkg/agent"
)

// Final run statuses.
const (
	StatusCompleted      = "completed"
	StatusBlocked        = "blocked"
	StatusFailed         = "failed"
	StatusTimeout        = "timeout"
	StatusBudgetExceeded = "budget_exceeded"
	StatusMaxIterations  = "max_iterations"
	StatusError          = "error"
)

// Totals aggregates token and tool-call counts across all iterations of a run.
type Totals struct {
	TokensIn    int64
	TokensOut   int64
	TotalTokens int64
	ToolCalls   int
	DurationMS  int64
}

// Result is the aggregate outcome of one autonomous run.
type Result struct {
	RunID          string
	Iterations     []agent.RunResult
	FinalOutput    string
	FinalStatus    string
	FinishSummary  string
	Totals         Totals
	IterationCount int
	Success        bool
	Error          string
	FinalMessages  []providers.Message
}
