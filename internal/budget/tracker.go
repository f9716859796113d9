// Package budget implements the thread-safe token budget tracker: optional
// lifetime and daily ceilings, reconciled across admission (a tentative
// reservation) and actual usage recording.
package budget

import (
	"fmt"
	"sync"
	"time"
)

// reservation is the tentative amount added to both counters at admission
// time and reconciled away once actual usage is recorded.
const reservation = 1

// Tracker holds optional lifetime and daily budgets and the counters used
// to enforce them. All fields are guarded by mu.
type Tracker struct {
	mu sync.Mutex

	lifetimeBudget *int64
	dailyBudget    *int64

	totalConsumed       int64
	dailyConsumed       int64
	lastResetDate       string
	pendingReservations int

	now func() time.Time
}

// New constructs a Tracker with the given optional ceilings (nil means
// unbounded).
func New(lifetimeBudget, dailyBudget *int64) *Tracker {
	return &Tracker{
		lifetimeBudget: lifetimeBudget,
		dailyBudget:    dailyBudget,
		lastResetDate:  time.Now().UTC().Format("2006-01-02"),
		now:            time.Now,
	}
}

// CheckBeforeRun is the admission check: roll the daily counter over on a
// UTC calendar-date change, reject if either ceiling is already met,
// otherwise reserve capacity and accept.
func (t *Tracker) CheckBeforeRun() (allowed bool, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.now().UTC().Format("2006-01-02")
	if today > t.lastResetDate {
		t.dailyConsumed = 0
		t.lastResetDate = today
	}

	if t.lifetimeBudget != nil && t.totalConsumed >= *t.lifetimeBudget {
		return false, fmt.Sprintf("lifetime token budget exhausted (%d/%d)", t.totalConsumed, *t.lifetimeBudget)
	}
	if t.dailyBudget != nil && t.dailyConsumed >= *t.dailyBudget {
		return false, fmt.Sprintf("daily token budget exhausted (%d/%d)", t.dailyConsumed, *t.dailyBudget)
	}

	t.totalConsumed += reservation
	t.dailyConsumed += reservation
	t.pendingReservations++
	return true, ""
}

// RecordUsage reconciles actual token usage against an outstanding
// reservation (if any), then applies the net delta to both counters. This
// prevents double-counting the reservation once the real number is known.
func (t *Tracker) RecordUsage(tokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	actual := tokens
	if t.pendingReservations > 0 {
		// CheckBeforeRun already added `reservation` to both counters at
		// admission time; adding back (tokens - reservation) here brings
		// the net total to exactly `tokens`, so two concurrently admitted
		// runs can't both clear a near-full budget check before either
		// reconciles.
		actual = tokens - reservation
		t.pendingReservations--
	}
	t.totalConsumed += actual
	t.dailyConsumed += actual
}

// TotalConsumed returns the current lifetime-consumed counter (test/diagnostic use).
func (t *Tracker) TotalConsumed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalConsumed
}

// DailyConsumed returns the current daily-consumed counter (test/diagnostic use).
func (t *Tracker) DailyConsumed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dailyConsumed
}

// PendingReservations returns the number of admitted-but-not-yet-reconciled runs.
func (t *Tracker) PendingReservations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingReservations
}
