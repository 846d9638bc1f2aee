package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func completionServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithBaseURL("test-key", 5*time.Second, srv.URL)
}

func TestChatCompletion(t *testing.T) {
	var gotReq ChatRequest
	c := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"intent\":\"create_task\"}"}}]}`))
	})

	got, err := c.ChatCompletion(context.Background(), ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []Message{
			{Role: "system", Content: "extract"},
			{Role: "user", Content: "comprar pão"},
		},
		MaxTokens:      500,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if got != `{"intent":"create_task"}` {
		t.Errorf("content = %q", got)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("request messages = %+v", gotReq.Messages)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v", gotReq.ResponseFormat)
	}
}

func TestQuotaExceededSignal(t *testing.T) {
	c := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	})

	_, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	if !IsQuota(err) {
		t.Fatalf("err = %v, want QuotaError", err)
	}
	var qe *QuotaError
	errors.As(err, &qe)
	if qe.Code != "insufficient_quota" {
		t.Errorf("Code = %q", qe.Code)
	}
}

// TestPlainRateLimitIsNotQuota: a 429 without a quota code is a generic
// error, not the quota signal.
func TestPlainRateLimitIsNotQuota(t *testing.T) {
	c := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_error","code":"rate_limit_exceeded"}}`))
	})

	_, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsQuota(err) {
		t.Errorf("plain 429 classified as quota: %v", err)
	}
}

func TestTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(func() { close(block); srv.Close() })

	c := NewClientWithBaseURL("k", 50*time.Millisecond, srv.URL)
	_, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestServerError(t *testing.T) {
	c := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if _, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "m"}); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}

func TestEmptyChoices(t *testing.T) {
	c := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})
	if _, err := c.ChatCompletion(context.Background(), ChatRequest{Model: "m"}); err == nil {
		t.Fatal("expected error on empty choices")
	}
}
