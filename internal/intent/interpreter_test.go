package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/amartel/anota/internal/action"
	"github.com/amartel/anota/internal/llm"
)

var refDate = time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	response string
	err      error
	lastReq  llm.ChatRequest
	calls    int
}

func (m *mockChatter) ChatCompletion(ctx context.Context, req llm.ChatRequest) (string, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func TestInterpretCreateTask(t *testing.T) {
	m := &mockChatter{response: `{"intent":"create_task","title":"Comprar pão","description":null,"priority":"high","dueDate":"2026-02-05T15:00:00Z"}`}
	p := NewInterpreter(m, "gpt-4o-mini", 0)

	got, err := p.Interpret(context.Background(), "preciso comprar pão amanhã às 15h, urgente", refDate)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if got.Type != action.TypeTask || got.Task == nil {
		t.Fatalf("unexpected interpretation: %+v", got)
	}
	if got.Task.Title != "Comprar pão" || got.Task.Priority != action.PriorityHigh {
		t.Errorf("task payload = %+v", got.Task)
	}
	if got.Task.DueDate == nil || !got.Task.DueDate.Equal(time.Date(2026, 2, 5, 15, 0, 0, 0, time.UTC)) {
		t.Errorf("due_date = %v", got.Task.DueDate)
	}
	if got.NeedsConfirmation {
		t.Error("clear task should not need confirmation")
	}
}

func TestInterpretStripsMarkdownFences(t *testing.T) {
	m := &mockChatter{response: "```json\n{\"intent\":\"create_task\",\"title\":\"Pagar boleto\"}\n```"}
	p := NewInterpreter(m, "m", 0)

	got, err := p.Interpret(context.Background(), "pagar boleto", refDate)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if got.Task == nil || got.Task.Title != "Pagar boleto" {
		t.Errorf("interpretation = %+v", got)
	}
}

func TestNonCreateIntentsMapToUnknown(t *testing.T) {
	for _, intent := range []string{"update_task", "delete_task", "query_task", "unknown"} {
		m := &mockChatter{response: `{"intent":"` + intent + `","title":"x"}`}
		p := NewInterpreter(m, "m", 0)

		got, err := p.Interpret(context.Background(), "alguma coisa", refDate)
		if err != nil {
			t.Fatalf("Interpret(%s): %v", intent, err)
		}
		if got.Type != action.TypeUnknown {
			t.Errorf("intent %q mapped to %q, want unknown", intent, got.Type)
		}
		if !got.NeedsConfirmation || got.ConfirmationMessage != ReformulateMessage {
			t.Errorf("intent %q: %+v", intent, got)
		}
	}
}

func TestShortTitleForcesConfirmation(t *testing.T) {
	m := &mockChatter{response: `{"intent":"create_task","title":"ir"}`}
	p := NewInterpreter(m, "m", 0)

	got, err := p.Interpret(context.Background(), "ir", refDate)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if !got.NeedsConfirmation {
		t.Error("title under 3 chars must force confirmation")
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name     string
		response string
		field    string
	}{
		{"not json", "I think this is a task", "$"},
		{"missing intent", `{"title":"x"}`, "intent"},
		{"bad intent", `{"intent":"make_coffee"}`, "intent"},
		{"intent wrong type", `{"intent":42}`, "intent"},
		{"title wrong type", `{"intent":"create_task","title":7}`, "title"},
		{"bad priority", `{"intent":"create_task","title":"x","priority":"maximum"}`, "priority"},
		{"bad dueDate", `{"intent":"create_task","title":"x","dueDate":"next tuesday"}`, "dueDate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &mockChatter{response: tc.response}
			p := NewInterpreter(m, "m", 0)

			_, err := p.Interpret(context.Background(), "texto", refDate)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tc.field {
				t.Errorf("Field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

func TestNullableFieldsAccepted(t *testing.T) {
	m := &mockChatter{response: `{"intent":"create_task","title":"Comprar pão","description":null,"priority":null,"dueDate":null}`}
	p := NewInterpreter(m, "m", 0)

	got, err := p.Interpret(context.Background(), "comprar pão", refDate)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if got.Task.DueDate != nil || got.Task.Priority != "" {
		t.Errorf("null fields not mapped to zero values: %+v", got.Task)
	}
}

func TestQuotaErrorPassesThrough(t *testing.T) {
	m := &mockChatter{err: &llm.QuotaError{Status: 429, Code: "insufficient_quota"}}
	p := NewInterpreter(m, "m", 0)

	_, err := p.Interpret(context.Background(), "texto", refDate)
	if !llm.IsQuota(err) {
		t.Fatalf("err = %v, want quota signal to pass through", err)
	}
}

// TestPromptTruncation: a 3000-char input is embedded truncated to the cap.
func TestPromptTruncation(t *testing.T) {
	m := &mockChatter{response: `{"intent":"unknown"}`}
	p := NewInterpreter(m, "m", 0)

	long := strings.Repeat("a", 3000)
	if _, err := p.Interpret(context.Background(), long, refDate); err != nil {
		t.Fatalf("Interpret: %v", err)
	}

	userMsg := m.lastReq.Messages[1].Content
	if strings.Contains(userMsg, strings.Repeat("a", 2001)) {
		t.Error("prompt contains more than 2000 chars of user input")
	}
	if !strings.Contains(userMsg, strings.Repeat("a", 2000)) {
		t.Error("prompt does not contain the truncated input")
	}
}

func TestPromptShape(t *testing.T) {
	m := &mockChatter{response: `{"intent":"unknown"}`}
	p := NewInterpreter(m, "gpt-4o-mini", 0)

	if _, err := p.Interpret(context.Background(), "comprar pão", refDate); err != nil {
		t.Fatalf("Interpret: %v", err)
	}

	req := m.lastReq
	if req.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v", req.ResponseFormat)
	}
	if req.MaxTokens == 0 {
		t.Error("max_tokens not set")
	}
	if !strings.Contains(req.Messages[1].Content, "2026-02-04") {
		t.Error("reference date not embedded in user prompt")
	}
}
