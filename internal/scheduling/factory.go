package scheduling

import "github.com/nextlevelbuilder/agentdaemon/internal/schedule"

// ToolSetFactory constructs a fresh ToolSet bound to the same shared Queue
// for every autonomous run. A scheduling ToolSet must not be reused across
// runs (its per-run scheduled counter would leak quota between them), so
// the dispatcher holds a factory rather than a ToolSet.
type ToolSetFactory struct {
	queue *schedule.Queue
}

// NewToolSetFactory binds a factory to queue.
func NewToolSetFactory(queue *schedule.Queue) *ToolSetFactory {
	return &ToolSetFactory{queue: queue}
}

// New builds a ToolSet for one autonomous run, enforcing maxPerRun and
// maxDelaySeconds.
func (f *ToolSetFactory) New(maxPerRun, maxDelaySeconds int) *ToolSet {
	return NewToolSet(f.queue, maxPerRun, maxDelaySeconds)
}
