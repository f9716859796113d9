// Package memory implements episodic-memory capture and session resume:
// the interfaces the daemon's dispatcher consumes plus two backing
// stores (sqlite default, postgres alternate). It is record-keeping, not a
// retrieval or embedding engine.
package memory

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/agentdaemon/internal/providers"
)

// Episode is one captured record of a completed run.
type Episode struct {
	TriggerType     string
	ConversationKey string
	Summary         string
	FinalStatus     string
	TotalTokens     int64
	Timestamp       time.Time
}

// Store is the episodic-memory and session-resume contract the dispatcher
// depends on.
type Store interface {
	CaptureEpisode(ctx context.Context, ep Episode) error
	SaveSession(ctx context.Context, conversationKey string, messages []providers.Message) error
	LoadSession(ctx context.Context, conversationKey string) ([]providers.Message, bool, error)
	Close() error
}

// Consolidator is an optional post-run hook; a no-op satisfies it when the
// role does not configure consolidation.
type Consolidator interface {
	Consolidate(ctx context.Context) error
}

// NoopConsolidator never does anything; it is the default when
// memory.consolidate is false or memory is unconfigured.
type NoopConsolidator struct{}

func (NoopConsolidator) Consolidate(context.Context) error { return nil }
