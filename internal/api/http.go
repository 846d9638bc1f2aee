// Package api exposes the interpretation pipeline over HTTP and MCP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/amartel/anota/internal/action"
	"github.com/amartel/anota/internal/confirm"
	"github.com/amartel/anota/internal/pipeline"
	"github.com/amartel/anota/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// InterpretService runs one interpret call end to end.
type InterpretService interface {
	Interpret(ctx context.Context, userID, text string) pipeline.Result
}

// ConfirmService settles pending interactions.
type ConfirmService interface {
	Confirm(id, userID string) (action.Entity, error)
	Reject(id, userID string) error
	ListPending(userID string) ([]confirm.Pending, error)
}

// NewHandler returns the REST API router. An empty token disables bearer
// auth (local single-user mode).
func NewHandler(interp InterpretService, confirms ConfirmService, token string) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if token != "" {
			r.Use(bearerAuth(token))
		}
		r.Post("/v1/interpret", handleInterpret(interp))
		r.Post("/v1/interactions/{id}/confirm", handleConfirm(confirms))
		r.Post("/v1/interactions/{id}/reject", handleReject(confirms))
		r.Get("/v1/interactions/pending", handleListPending(confirms))
	})

	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type interpretRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func handleInterpret(interp InterpretService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req interpretRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		res := interp.Interpret(r.Context(), req.UserID, req.Text)
		writeJSON(w, http.StatusOK, res)
	}
}

type userRequest struct {
	UserID string `json:"user_id"`
}

func handleConfirm(confirms ConfirmService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		id := chi.URLParam(r, "id")
		var req userRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		ent, err := confirms.Confirm(id, req.UserID)
		if err != nil {
			confirmError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"executed":       true,
			"created_entity": ent,
		})
	}
}

func handleReject(confirms ConfirmService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		id := chi.URLParam(r, "id")
		var req userRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		if err := confirms.Reject(id, req.UserID); err != nil {
			confirmError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rejected": true})
	}
}

func handleListPending(confirms ConfirmService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id query parameter is required")
			return
		}

		pending, err := confirms.ListPending(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing pending interactions: %v", err)
			return
		}
		if pending == nil {
			pending = []confirm.Pending{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
	}
}

// confirmError maps the confirmation lifecycle errors onto HTTP statuses.
func confirmError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "interaction not found")
	case errors.Is(err, confirm.ErrForbidden):
		httpError(w, http.StatusForbidden, "forbidden_error", "interaction belongs to another user")
	case errors.Is(err, storage.ErrInvalidState):
		httpError(w, http.StatusConflict, "conflict_error", "interaction is not awaiting confirmation")
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
