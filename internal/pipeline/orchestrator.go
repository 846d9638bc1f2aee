// Package pipeline orchestrates one interpret call: cache, quota, circuit
// breaker, primary/heuristic fallback, audit trail, and auto-execution.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amartel/anota/internal/action"
	"github.com/amartel/anota/internal/storage"
)

// UnavailableMessage is returned while the circuit breaker is open.
const UnavailableMessage = "O serviço de interpretação está temporariamente indisponível. Tente novamente em instantes."

// GenericErrorMessage covers unexpected interpreter failures.
const GenericErrorMessage = "Algo deu errado ao interpretar sua mensagem. Tente novamente."

// AuditStore persists the interaction audit trail.
type AuditStore interface {
	SaveInteraction(i storage.Interaction) error
}

// ActionStore creates the entity described by a confirmed or
// auto-executable interpretation.
type ActionStore interface {
	CreateAction(userID string, interp action.Interpretation) (action.Entity, error)
}

// Limiter is the per-user daily quota.
type Limiter interface {
	CanMakeRequest(userID string) bool
	RecordRequest(userID string)
	Limit() int
}

// Breaker gates calls to the external completion service.
type Breaker interface {
	CanAttempt() bool
	RecordSuccess()
	RecordFailure()
}

// Cache stores successful interpretations keyed by normalized text.
type Cache interface {
	Get(text string) (action.Interpretation, bool)
	Put(text string, interp action.Interpretation)
}

// Interpreter is the fallback composition of primary and heuristic.
type Interpreter interface {
	Interpret(ctx context.Context, text string, ref time.Time) FallbackResult
}

// Result is the outcome of one interpret call.
type Result struct {
	Interpretation action.Interpretation `json:"interpretation"`
	InteractionID  string                `json:"interaction_id"`
	Executed       bool                  `json:"executed"`
	Entity         *action.Entity        `json:"created_entity,omitempty"`
}

// Orchestrator runs the full interpretation pipeline. It never returns an
// error to its caller: every failure path converges to a safe unknown
// interpretation.
type Orchestrator struct {
	cache    Cache
	quota    Limiter
	breaker  Breaker
	fallback Interpreter
	audit    AuditStore
	actions  ActionStore
	now      func() time.Time
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(cache Cache, quota Limiter, breaker Breaker, fallback Interpreter, audit AuditStore, actions ActionStore) *Orchestrator {
	return &Orchestrator{
		cache:    cache,
		quota:    quota,
		breaker:  breaker,
		fallback: fallback,
		audit:    audit,
		actions:  actions,
		now:      time.Now,
	}
}

// Interpret resolves text for userID. One interaction record is persisted
// on every path; auto-execution happens only for fresh, confident,
// non-unknown results.
func (o *Orchestrator) Interpret(ctx context.Context, userID, text string) Result {
	now := o.now()

	// Cache hit: audit only. No quota, breaker, or auto-execution.
	if interp, ok := o.cache.Get(text); ok {
		id := o.persist(userID, text, interp, now)
		return Result{Interpretation: interp, InteractionID: id}
	}

	if !o.quota.CanMakeRequest(userID) {
		interp := action.Unknown(fmt.Sprintf(
			"Você atingiu o limite diário de %d interpretações. Tente novamente amanhã.", o.quota.Limit()))
		id := o.persist(userID, text, interp, now)
		return Result{Interpretation: interp, InteractionID: id}
	}

	if !o.breaker.CanAttempt() {
		interp := action.Unknown(UnavailableMessage)
		id := o.persist(userID, text, interp, now)
		return Result{Interpretation: interp, InteractionID: id}
	}

	interp := o.invoke(ctx, userID, text, now)

	id := o.persist(userID, text, interp, now)
	res := Result{Interpretation: interp, InteractionID: id}

	if !interp.NeedsConfirmation && interp.Type != action.TypeUnknown {
		ent, err := o.actions.CreateAction(userID, interp)
		if err != nil {
			// The user's text is never lost: the interaction is already
			// persisted, so the failure downgrades to executed=false.
			slog.Error("auto-execution failed", "user_id", userID, "action_type", interp.Type, "error", err)
		} else {
			res.Executed = true
			res.Entity = &ent
		}
	}

	return res
}

// invoke runs the fallback interpreter, feeding the circuit breaker and
// quota, and converts any panic into the generic-error interpretation.
func (o *Orchestrator) invoke(ctx context.Context, userID, text string, now time.Time) (interp action.Interpretation) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("interpreter panicked", "user_id", userID, "panic", r)
			interp = action.Unknown(GenericErrorMessage)
		}
	}()

	fr := o.fallback.Interpret(ctx, text, now)

	if fr.PrimaryAttempted {
		if fr.PrimaryErr != nil {
			o.breaker.RecordFailure()
		} else {
			o.breaker.RecordSuccess()
		}
	}
	o.quota.RecordRequest(userID)
	o.cache.Put(text, fr.Interpretation)

	return fr.Interpretation
}

// persist writes the audit record. Audit failures are logged, never
// surfaced: interpret must not fail its caller.
func (o *Orchestrator) persist(userID, text string, interp action.Interpretation, now time.Time) string {
	id := uuid.New().String()

	payload, err := json.Marshal(interp)
	if err != nil {
		slog.Error("serializing interpretation", "error", err)
		payload = nil
	}

	rec := storage.Interaction{
		ID:                id,
		UserID:            userID,
		UserInput:         text,
		Interpretation:    string(payload),
		NeedsConfirmation: interp.NeedsConfirmation,
		ConfirmationState: storage.StateUndetermined,
		CreatedAt:         now.UTC(),
	}
	if err := o.audit.SaveInteraction(rec); err != nil {
		slog.Error("persisting interaction", "interaction_id", id, "error", err)
	}
	return id
}
