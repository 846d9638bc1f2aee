// Package llm talks to an OpenAI-compatible chat completion endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds a single completion call; the request is
	// cancelled when it elapses.
	DefaultTimeout = 30 * time.Second
)

// ErrTimeout is wrapped into the error returned when the completion call
// exceeds its deadline.
var ErrTimeout = errors.New("completion request timed out")

// quotaErrorCodes are the upstream error codes that mark an HTTP 429 as a
// quota exhaustion rather than transient throttling.
var quotaErrorCodes = map[string]struct{}{
	"insufficient_quota":         {},
	"quota_exceeded":             {},
	"billing_hard_limit_reached": {},
}

// QuotaError is returned when the upstream reports exhausted quota
// (HTTP 429 with a quota-specific error code). Callers use it to switch
// to the fallback interpreter for a cool-down period.
type QuotaError struct {
	Status int
	Code   string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("completion quota exhausted (HTTP %d, code %q)", e.Status, e.Code)
}

// IsQuota reports whether err carries a QuotaError.
func IsQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// Message is a chat message in the OpenAI wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests structured output from the completion endpoint.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is the chat completion request body.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Client is an OpenAI-compatible completion client.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a Client with the given API key and per-request
// timeout. A non-positive timeout falls back to DefaultTimeout.
func NewClient(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		timeout: timeout,
		// Timeout comes from the per-request context, not the transport.
		httpClient: &http.Client{Timeout: 0},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL
// (used by tests and alternative providers).
func NewClientWithBaseURL(apiKey string, timeout time.Duration, baseURL string) *Client {
	c := NewClient(apiKey, timeout)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// ChatCompletion sends one completion request and returns
// choices[0].message.content. The call is cancelled after the client's
// timeout; quota exhaustion surfaces as *QuotaError.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", fmt.Errorf("chat completion after %v: %w", c.timeout, ErrTimeout)
		}
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		var er errorResponse
		_ = json.Unmarshal(respBody, &er)
		code := er.Error.Code
		if code == "" {
			code = er.Error.Type
		}
		if _, ok := quotaErrorCodes[code]; ok {
			return "", &QuotaError{Status: resp.StatusCode, Code: code}
		}
		return "", fmt.Errorf("rate limited (HTTP %d): %s", resp.StatusCode, er.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}
