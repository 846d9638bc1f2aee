// Package action defines the structured interpretation produced from
// free-form user text and the payload types attached to it.
package action

import (
	"errors"
	"fmt"
	"time"
)

// Type tags an Interpretation with the kind of action it describes.
type Type string

const (
	TypeTask     Type = "task"
	TypeNote     Type = "note"
	TypeReminder Type = "reminder"
	TypeUnknown  Type = "unknown"
)

// Priority levels for tasks. Absent priority is the empty string.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Recurrence rules for reminders.
const (
	RecurDaily   = "daily"
	RecurWeekly  = "weekly"
	RecurMonthly = "monthly"
	RecurYearly  = "yearly"
)

// TaskPayload describes a task to be created.
type TaskPayload struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
}

// NotePayload describes a note to be created.
type NotePayload struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// ReminderPayload describes a reminder to be created.
type ReminderPayload struct {
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	ReminderDate   time.Time `json:"reminder_date"`
	IsRecurring    bool      `json:"is_recurring,omitempty"`
	RecurrenceRule string    `json:"recurrence_rule,omitempty"`
}

// Interpretation is the structured classification of a user utterance.
// Exactly one payload field is populated, matching Type; TypeUnknown
// carries no payload.
type Interpretation struct {
	NeedsConfirmation   bool             `json:"needs_confirmation"`
	Type                Type             `json:"action_type"`
	Task                *TaskPayload     `json:"task,omitempty"`
	Note                *NotePayload     `json:"note,omitempty"`
	Reminder            *ReminderPayload `json:"reminder,omitempty"`
	ConfirmationMessage string           `json:"confirmation_message,omitempty"`
}

// Unknown returns the safe fallback interpretation carrying msg as the
// confirmation message. Unknown results always require confirmation.
func Unknown(msg string) Interpretation {
	return Interpretation{
		NeedsConfirmation:   true,
		Type:                TypeUnknown,
		ConfirmationMessage: msg,
	}
}

// Validate checks that the populated payload matches the action type.
func (i Interpretation) Validate() error {
	switch i.Type {
	case TypeTask:
		if i.Task == nil {
			return fmt.Errorf("action_type %q without task payload", i.Type)
		}
		if i.Note != nil || i.Reminder != nil {
			return fmt.Errorf("action_type %q with extra payload", i.Type)
		}
	case TypeNote:
		if i.Note == nil {
			return fmt.Errorf("action_type %q without note payload", i.Type)
		}
		if i.Task != nil || i.Reminder != nil {
			return fmt.Errorf("action_type %q with extra payload", i.Type)
		}
	case TypeReminder:
		if i.Reminder == nil {
			return fmt.Errorf("action_type %q without reminder payload", i.Type)
		}
		if i.Task != nil || i.Note != nil {
			return fmt.Errorf("action_type %q with extra payload", i.Type)
		}
	case TypeUnknown:
		if i.Task != nil || i.Note != nil || i.Reminder != nil {
			return errors.New(`action_type "unknown" must not carry a payload`)
		}
	default:
		return fmt.Errorf("invalid action_type %q", i.Type)
	}
	return nil
}

// Entity identifies a persisted task, note, or reminder created from an
// interpretation.
type Entity struct {
	Type Type   `json:"type"`
	ID   string `json:"id"`
}
