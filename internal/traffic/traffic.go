// Package traffic keeps sliding windows of request outcomes. Health reporting
// reads them to decide whether the service is overloaded or degraded.
package traffic

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// maxAge bounds how long outcomes are kept; windows longer than this undercount.
const maxAge = 5 * time.Minute

// Outcome classifies one series lookup or rate-limited request.
type Outcome int

const (
	// OutcomeSuccess is a full answer from both stores, or a clean not-found.
	OutcomeSuccess Outcome = iota
	// OutcomePartial is an answer served while one store was failing.
	OutcomePartial
	// OutcomeError is a lookup that failed because the stores did.
	OutcomeError
	// OutcomeDenied is a 429 from the rate limiter.
	OutcomeDenied
)

var defaultTracker = NewTracker(clockwork.NewRealClock())

// Record records an outcome on the process-wide tracker.
func Record(o Outcome) { defaultTracker.Record(o) }

// RecordSuccess records a successful request outcome.
func RecordSuccess() { defaultTracker.Record(OutcomeSuccess) }

// RecordError records a failed request outcome.
func RecordError() { defaultTracker.Record(OutcomeError) }

// RecordDenied records a rate-limit denial (429).
func RecordDenied() { defaultTracker.Record(OutcomeDenied) }

// RequestCount returns the number of outcomes of any kind within the window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.DenialCount(window) }

// PartialCount returns the number of partial answers within the window.
func PartialCount(window time.Duration) int { return defaultTracker.PartialCount(window) }

// ErrorRate returns (errorCount, totalCount) within the window. Denials are
// excluded from totalCount; partial answers count toward it but not as errors.
func ErrorRate(window time.Duration) (errors, total int) { return defaultTracker.ErrorRate(window) }

// Reset clears all recorded outcomes. For tests only.
func Reset() { defaultTracker.Reset() }

// Tracker maintains per-outcome sliding windows of timestamps.
type Tracker struct {
	clock clockwork.Clock

	mu    sync.Mutex
	times map[Outcome][]time.Time
}

// NewTracker returns a Tracker reading time from clock.
func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock, times: make(map[Outcome][]time.Time)}
}

// Record appends the current time under o and prunes entries older than maxAge.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// RequestCount returns the number of outcomes of any kind within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	return t.count(window, OutcomeSuccess, OutcomePartial, OutcomeError, OutcomeDenied)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	return t.count(window, OutcomeDenied)
}

// PartialCount returns the number of partial answers within the window.
func (t *Tracker) PartialCount(window time.Duration) int {
	return t.count(window, OutcomePartial)
}

// ErrorRate returns (errorCount, totalCount) within the window.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	errors = t.count(window, OutcomeError)
	return errors, errors + t.count(window, OutcomeSuccess, OutcomePartial)
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.times = make(map[Outcome][]time.Time)
}

func (t *Tracker) count(window time.Duration, outcomes ...Outcome) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	n := 0
	for _, o := range outcomes {
		for _, ts := range t.times[o] {
			if !ts.Before(cutoff) {
				n++
			}
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	for o, times := range t.times {
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}

// Overloaded reports whether requests in window exceed pct percent of what
// the rate limiter admits over that window (rps * window).
func Overloaded(requests int, rps float64, window time.Duration, pct int) bool {
	if rps <= 0 || window <= 0 || pct <= 0 {
		return false
	}
	threshold := rps * window.Seconds() * float64(pct) / 100
	return float64(requests) > threshold
}

// Degraded reports whether errors/total meets or exceeds pct percent.
func Degraded(errors, total, pct int) bool {
	if total == 0 || pct <= 0 {
		return false
	}
	return float64(errors)*100/float64(total) >= float64(pct)
}
