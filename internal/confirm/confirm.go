// Package confirm manages the lifecycle of interpretations that await
// user confirmation before execution.
package confirm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amartel/anota/internal/action"
	"github.com/amartel/anota/internal/storage"
)

// ErrForbidden is returned when a user addresses an interaction that
// belongs to someone else.
var ErrForbidden = errors.New("interaction belongs to another user")

// CorruptMessage replaces interpretations that can no longer be decoded.
const CorruptMessage = "Não foi possível recuperar esta interpretação."

// Store is the persistence surface the service needs.
type Store interface {
	GetInteraction(id string) (storage.Interaction, error)
	ListPendingInteractions(userID string) ([]storage.Interaction, error)
	RejectInteraction(id string) error
	ConfirmInteraction(id, userID string, interp action.Interpretation) (action.Entity, error)
}

// Pending is one interaction awaiting the user's decision.
type Pending struct {
	ID             string                `json:"id"`
	UserInput      string                `json:"user_input"`
	Interpretation action.Interpretation `json:"interpretation"`
	CreatedAt      time.Time             `json:"created_at"`
}

// Service resolves pending interactions into executed entities or
// rejections.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Confirm executes the interpretation stored under id on behalf of
// userID. It returns storage.ErrNotFound for unknown ids, ErrForbidden
// for foreign interactions, and storage.ErrInvalidState when the
// interaction is not awaiting confirmation.
func (s *Service) Confirm(id, userID string) (action.Entity, error) {
	rec, err := s.load(id, userID)
	if err != nil {
		return action.Entity{}, err
	}

	interp, err := decode(rec.Interpretation)
	if err != nil {
		return action.Entity{}, fmt.Errorf("decoding stored interpretation %s: %w", id, err)
	}

	ent, err := s.store.ConfirmInteraction(id, userID, interp)
	if err != nil {
		return action.Entity{}, err
	}
	slog.Info("interaction confirmed", "interaction_id", id, "user_id", userID,
		"action_type", ent.Type, "entity_id", ent.ID)
	return ent, nil
}

// Reject discards the interpretation stored under id. The error contract
// matches Confirm.
func (s *Service) Reject(id, userID string) error {
	rec, err := s.load(id, userID)
	if err != nil {
		return err
	}
	if err := s.store.RejectInteraction(rec.ID); err != nil {
		return err
	}
	slog.Info("interaction rejected", "interaction_id", id, "user_id", userID)
	return nil
}

// ListPending returns the user's undecided interactions, oldest first.
// Records whose stored interpretation no longer decodes are kept in the
// list with a generic unknown, so the user can still reject them.
func (s *Service) ListPending(userID string) ([]Pending, error) {
	recs, err := s.store.ListPendingInteractions(userID)
	if err != nil {
		return nil, err
	}

	pending := make([]Pending, 0, len(recs))
	for _, rec := range recs {
		interp, err := decode(rec.Interpretation)
		if err != nil {
			slog.Warn("stored interpretation is corrupt", "interaction_id", rec.ID, "error", err)
			interp = action.Unknown(CorruptMessage)
		}
		pending = append(pending, Pending{
			ID:             rec.ID,
			UserInput:      rec.UserInput,
			Interpretation: interp,
			CreatedAt:      rec.CreatedAt,
		})
	}
	return pending, nil
}

// load fetches the interaction and checks ownership and state. Ownership
// is checked before state so a foreign id never leaks lifecycle details.
func (s *Service) load(id, userID string) (storage.Interaction, error) {
	rec, err := s.store.GetInteraction(id)
	if err != nil {
		return storage.Interaction{}, err
	}
	if rec.UserID != userID {
		return storage.Interaction{}, ErrForbidden
	}
	if !rec.NeedsConfirmation || rec.ConfirmationState != storage.StateUndetermined {
		return storage.Interaction{}, storage.ErrInvalidState
	}
	return rec, nil
}

func decode(raw string) (action.Interpretation, error) {
	var interp action.Interpretation
	if err := json.Unmarshal([]byte(raw), &interp); err != nil {
		return action.Interpretation{}, err
	}
	if err := interp.Validate(); err != nil {
		return action.Interpretation{}, err
	}
	return interp, nil
}
