// Package schedule implements the in-memory schedule queue: one-shot timers
// for agent-initiated follow-ups, capped globally, race-safe between a
// timer firing and a bulk cancellation.
package schedule

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
)

// ErrCapacityExceeded is returned by Schedule when the queue already holds
// MaxTotal pending tasks.
var ErrCapacityExceeded = errors.New("schedule queue: capacity exceeded")

type task struct {
	id        string
	prompt    string
	runID     string
	timer     *time.Timer
	cancelled bool
}

// Queue holds pending scheduled tasks under a single mutex. Pending tasks
// are in-memory only and are lost on process restart; this is a documented
// limitation, not a bug.
type Queue struct {
	mu       sync.Mutex
	pending  map[string]*task
	maxTotal int
	emit     bus.Handler
}

// New constructs a Queue with the given global capacity and the shared
// callback used to emit "scheduled" TriggerEvents when a task fires.
func New(maxTotal int, emit bus.Handler) *Queue {
	return &Queue{
		pending:  make(map[string]*task),
		maxTotal: maxTotal,
		emit:     emit,
	}
}

// PendingCount returns the number of tasks currently pending.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Schedule arms a one-shot timer that fires after delay, emitting a
// TriggerEvent of type "scheduled" carrying prompt and metadata identifying
// the task and the run that scheduled it. Returns ErrCapacityExceeded if
// the queue is already at maxTotal.
func (q *Queue) Schedule(prompt string, delay time.Duration, runID string) (string, error) {
	q.mu.Lock()
	if len(q.pending) >= q.maxTotal {
		q.mu.Unlock()
		return "", ErrCapacityExceeded
	}

	id := newTaskID()
	t := &task{id: id, prompt: prompt, runID: runID}
	q.pending[id] = t
	t.timer = time.AfterFunc(delay, func() { q.fire(id) })
	q.mu.Unlock()

	return id, nil
}

// fire runs when a task's timer elapses. It races against CancelAll: the
// side that removes the map entry first wins; the loser is a no-op.
func (q *Queue) fire(id string) {
	q.mu.Lock()
	t, ok := q.pending[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	delete(q.pending, id)
	cancelled := t.cancelled
	q.mu.Unlock()

	if cancelled {
		return
	}

	if q.emit != nil {
		q.emit(bus.TriggerEvent{
			TriggerType: bus.TriggerScheduled,
			Prompt:      t.prompt,
			Timestamp:   time.Now().UTC(),
			Metadata: map[string]string{
				"scheduled_task_id": t.id,
				"scheduled_by_run":  t.runID,
			},
		})
	}
}

// CancelAll marks every pending task cancelled, stops its timer, clears the
// map, and returns the count it drained.
func (q *Queue) CancelAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := len(q.pending)
	for id, t := range q.pending {
		t.cancelled = true
		t.timer.Stop()
		delete(q.pending, id)
	}
	return count
}

func newTaskID() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is unrecoverable; fall back to a
		// time-derived id rather than panicking the daemon.
		return fmt.Sprintf("%012x", time.Now().UnixNano())[:12]
	}
	return hex.EncodeToString(buf[:]) // 12 hex chars
}
