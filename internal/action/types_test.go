package action

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValidateMatchingPayload(t *testing.T) {
	due := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   Interpretation
	}{
		{"task", Interpretation{Type: TypeTask, Task: &TaskPayload{Title: "Pagar internet", DueDate: &due}}},
		{"note", Interpretation{Type: TypeNote, Note: &NotePayload{Content: "ideia de presente"}}},
		{"reminder", Interpretation{Type: TypeReminder, Reminder: &ReminderPayload{Title: "Consulta", ReminderDate: due}}},
		{"unknown", Unknown("não entendi, pode reformular?")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.in.Validate(); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestValidateMismatchedPayload(t *testing.T) {
	cases := []struct {
		name string
		in   Interpretation
	}{
		{"task without payload", Interpretation{Type: TypeTask}},
		{"note with task payload", Interpretation{Type: TypeNote, Note: &NotePayload{Content: "x"}, Task: &TaskPayload{Title: "y"}}},
		{"unknown with payload", Interpretation{Type: TypeUnknown, Note: &NotePayload{Content: "x"}}},
		{"empty type", Interpretation{}},
		{"invalid type", Interpretation{Type: Type("alarm")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.in.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

// TestWireShape verifies the JSON field names the API and audit store rely on.
func TestWireShape(t *testing.T) {
	due := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	in := Interpretation{
		NeedsConfirmation:   true,
		Type:                TypeReminder,
		Reminder:            &ReminderPayload{Title: "Pagar internet", ReminderDate: due, IsRecurring: true, RecurrenceRule: RecurMonthly},
		ConfirmationMessage: "Criar lembrete?",
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	for _, key := range []string{"needs_confirmation", "action_type", "reminder", "confirmation_message"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("wire JSON missing key %q", key)
		}
	}
	if _, ok := raw["task"]; ok {
		t.Error("wire JSON carries empty task payload")
	}

	var out Interpretation
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Reminder == nil || !out.Reminder.ReminderDate.Equal(due) {
		t.Errorf("reminder_date did not survive round-trip: %+v", out.Reminder)
	}
	if out.Reminder.RecurrenceRule != RecurMonthly {
		t.Errorf("recurrence_rule = %q, want %q", out.Reminder.RecurrenceRule, RecurMonthly)
	}
}
