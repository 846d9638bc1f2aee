package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amartel/anota/internal/action"
	"github.com/amartel/anota/internal/llm"
)

// QuotaCooldown is how long the primary interpreter is skipped after the
// completion service reports exhausted quota.
const QuotaCooldown = 5 * time.Minute

// Primary is the external-service-backed interpreter.
type Primary interface {
	Interpret(ctx context.Context, text string, ref time.Time) (action.Interpretation, error)
}

// HeuristicFunc is the deterministic safety-net interpreter.
type HeuristicFunc func(text string, ref time.Time) action.Interpretation

// Source identifies which interpreter produced a result.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceHeuristic Source = "heuristic"
)

// FallbackResult carries the interpretation together with the primary
// call's outcome, so the orchestrator can feed the circuit breaker.
type FallbackResult struct {
	Interpretation action.Interpretation
	Source         Source
	// PrimaryAttempted is false when the primary was skipped entirely
	// (sticky quota cooldown).
	PrimaryAttempted bool
	// PrimaryErr is the primary's failure, if it was attempted and failed.
	PrimaryErr error
}

// Fallback tries the primary interpreter and falls back to the heuristic.
// A quota-exhaustion signal from the primary sets a sticky flag: until the
// cooldown elapses, every call skips the primary entirely. Any other
// primary failure routes only that single call to the heuristic.
type Fallback struct {
	primary   Primary
	heuristic HeuristicFunc

	mu         sync.Mutex
	quotaUntil time.Time
	now        func() time.Time
}

// NewFallback composes the primary and heuristic interpreters.
func NewFallback(primary Primary, heuristic HeuristicFunc) *Fallback {
	return &Fallback{
		primary:   primary,
		heuristic: heuristic,
		now:       time.Now,
	}
}

// Interpret resolves text via the primary interpreter when available,
// degrading to the heuristic. It never fails: the heuristic always
// produces a result.
func (f *Fallback) Interpret(ctx context.Context, text string, ref time.Time) FallbackResult {
	if f.quotaActive() {
		return FallbackResult{
			Interpretation: f.heuristic(text, ref),
			Source:         SourceHeuristic,
		}
	}

	interp, err := f.primary.Interpret(ctx, text, ref)
	if err == nil {
		f.clearQuota()
		return FallbackResult{
			Interpretation:   interp,
			Source:           SourcePrimary,
			PrimaryAttempted: true,
		}
	}

	if llm.IsQuota(err) {
		f.setQuota()
		slog.Warn("primary interpreter quota exhausted, entering cooldown",
			"cooldown", QuotaCooldown, "error", err)
	} else {
		slog.Warn("primary interpreter failed, using heuristic for this call", "error", err)
	}

	return FallbackResult{
		Interpretation:   f.heuristic(text, ref),
		Source:           SourceHeuristic,
		PrimaryAttempted: true,
		PrimaryErr:       err,
	}
}

func (f *Fallback) quotaActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.quotaUntil.IsZero() && f.now().Before(f.quotaUntil)
}

func (f *Fallback) setQuota() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotaUntil = f.now().Add(QuotaCooldown)
}

func (f *Fallback) clearQuota() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotaUntil = time.Time{}
}
