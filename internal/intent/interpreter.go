// Package intent is the primary interpreter: it extracts a structured
// action from user text via an external completion service and validates
// the response against a strict schema.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amartel/anota/internal/action"
	"github.com/amartel/anota/internal/llm"
)

// ReformulateMessage is attached to unknown results mapped from the
// completion service.
const ReformulateMessage = "Não consegui identificar uma ação na sua mensagem. Pode reformular?"

const (
	maxTokens   = 500
	temperature = 0.1
)

// ValidationError describes a completion response that violates the
// intermediate schema, naming the failing field path.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid completion response: field %q: %s", e.Field, e.Reason)
}

// Chatter is the completion call the interpreter depends on.
type Chatter interface {
	ChatCompletion(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Interpreter extracts structured intent from user text via a completion
// service. Failures are returned to the caller, which falls back to the
// heuristic interpreter; the quota signal (llm.QuotaError) passes through
// untouched.
type Interpreter struct {
	client      Chatter
	model       string
	maxInputLen int
}

// NewInterpreter creates an Interpreter using the given completion client
// and model. A non-positive maxInputLen falls back to
// DefaultMaxInputLength.
func NewInterpreter(client Chatter, model string, maxInputLen int) *Interpreter {
	if maxInputLen <= 0 {
		maxInputLen = DefaultMaxInputLength
	}
	return &Interpreter{client: client, model: model, maxInputLen: maxInputLen}
}

// Interpret issues one completion call for text and maps the validated
// response to an Interpretation.
func (p *Interpreter) Interpret(ctx context.Context, text string, ref time.Time) (action.Interpretation, error) {
	raw, err := p.client.ChatCompletion(ctx, llm.ChatRequest{
		Model:          p.model,
		Messages:       BuildPrompt(text, ref, p.maxInputLen),
		MaxTokens:      maxTokens,
		Temperature:    temperature,
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return action.Interpretation{}, err
	}

	result, err := parseResult(raw)
	if err != nil {
		return action.Interpretation{}, err
	}
	return mapResult(result), nil
}

// result is the validated intermediate shape returned by the completion
// service.
type result struct {
	Intent      string
	Title       string
	Description string
	Priority    action.Priority
	DueDate     *time.Time
}

var validIntents = map[string]struct{}{
	"create_task": {},
	"update_task": {},
	"delete_task": {},
	"query_task":  {},
	"unknown":     {},
}

// parseResult strips markdown fences, parses the JSON, and validates it
// field by field.
func parseResult(raw string) (result, error) {
	raw = stripFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return result{}, &ValidationError{Field: "$", Reason: "not a JSON object"}
	}

	var r result

	intent, err := requireString(fields, "intent")
	if err != nil {
		return result{}, err
	}
	if _, ok := validIntents[intent]; !ok {
		return result{}, &ValidationError{Field: "intent", Reason: fmt.Sprintf("unexpected value %q", intent)}
	}
	r.Intent = intent

	if r.Title, err = optionalString(fields, "title"); err != nil {
		return result{}, err
	}
	if r.Description, err = optionalString(fields, "description"); err != nil {
		return result{}, err
	}

	priority, err := optionalString(fields, "priority")
	if err != nil {
		return result{}, err
	}
	switch action.Priority(priority) {
	case "", action.PriorityLow, action.PriorityMedium, action.PriorityHigh:
		r.Priority = action.Priority(priority)
	default:
		return result{}, &ValidationError{Field: "priority", Reason: fmt.Sprintf("unexpected value %q", priority)}
	}

	due, err := optionalString(fields, "dueDate")
	if err != nil {
		return result{}, err
	}
	if due != "" {
		t, err := parseISODate(due)
		if err != nil {
			return result{}, &ValidationError{Field: "dueDate", Reason: fmt.Sprintf("not an ISO-8601 date: %q", due)}
		}
		r.DueDate = &t
	}

	return r, nil
}

// mapResult converts the intermediate shape to the public Interpretation.
// Only create_task becomes a concrete action; everything else maps to a
// safe unknown.
func mapResult(r result) action.Interpretation {
	if r.Intent != "create_task" {
		return action.Unknown(ReformulateMessage)
	}

	needsConfirmation := len([]rune(r.Title)) < 3
	interp := action.Interpretation{
		NeedsConfirmation: needsConfirmation,
		Type:              action.TypeTask,
		Task: &action.TaskPayload{
			Title:       r.Title,
			Description: r.Description,
			DueDate:     r.DueDate,
			Priority:    r.Priority,
		},
	}
	if needsConfirmation {
		interp.ConfirmationMessage = "Não entendi bem o título. Confirma a criação?"
	}
	return interp
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

func requireString(fields map[string]json.RawMessage, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", &ValidationError{Field: key, Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &ValidationError{Field: key, Reason: "not a string"}
	}
	return s, nil
}

// optionalString accepts an absent field, JSON null, or a string.
func optionalString(fields map[string]json.RawMessage, key string) (string, error) {
	v, ok := fields[key]
	if !ok || string(v) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &ValidationError{Field: key, Reason: "not a string or null"}
	}
	return s, nil
}

func parseISODate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format %q", s)
}
