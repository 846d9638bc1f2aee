package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidState is returned when a confirmation transition is attempted
// on an interaction that is no longer undetermined.
var ErrInvalidState = errors.New("interaction already settled")

// ConfirmationState tracks the lifecycle of an interaction that awaits
// user confirmation. It transitions exactly once, from undetermined to
// confirmed or rejected.
type ConfirmationState string

const (
	StateUndetermined ConfirmationState = "undetermined"
	StateConfirmed    ConfirmationState = "confirmed"
	StateRejected     ConfirmationState = "rejected"
)

// Interaction is the audit record of one interpret call. Interpretation
// holds the serialized structured result as an opaque JSON string.
type Interaction struct {
	ID                string
	UserID            string
	UserInput         string
	Interpretation    string
	NeedsConfirmation bool
	ConfirmationState ConfirmationState
	CreatedAt         time.Time
}
