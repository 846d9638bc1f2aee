package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/amartel/anota/internal/action"
	"github.com/amartel/anota/internal/confirm"
	"github.com/amartel/anota/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Interpreter InterpretService
	Confirms    ConfirmService
}

// NewMCPServer creates an MCP server exposing the interpretation pipeline
// as tools, for use from chat assistants over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"anota",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("anota — turns free-form Portuguese text into tasks, notes, and reminders."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("interpret",
			mcp.WithDescription("Interpret a free-form Portuguese message as a task, note, or reminder. Confident results are executed immediately; ambiguous ones are stored pending confirmation."),
			mcp.WithString("user_id", mcp.Description("Identifier of the user the message belongs to"), mcp.Required()),
			mcp.WithString("text", mcp.Description("The message to interpret"), mcp.Required()),
		),
		mcpInterpret(deps),
	)

	s.AddTool(
		mcp.NewTool("confirm_interaction",
			mcp.WithDescription("Confirm a pending interpretation, creating the task, note, or reminder it describes."),
			mcp.WithString("user_id", mcp.Description("Identifier of the requesting user"), mcp.Required()),
			mcp.WithString("interaction_id", mcp.Description("Identifier of the pending interaction"), mcp.Required()),
		),
		mcpConfirm(deps),
	)

	s.AddTool(
		mcp.NewTool("reject_interaction",
			mcp.WithDescription("Reject a pending interpretation without creating anything."),
			mcp.WithString("user_id", mcp.Description("Identifier of the requesting user"), mcp.Required()),
			mcp.WithString("interaction_id", mcp.Description("Identifier of the pending interaction"), mcp.Required()),
		),
		mcpReject(deps),
	)

	s.AddTool(
		mcp.NewTool("list_pending",
			mcp.WithDescription("List the user's interpretations that still await confirmation, oldest first."),
			mcp.WithString("user_id", mcp.Description("Identifier of the user"), mcp.Required()),
		),
		mcpListPending(deps),
	)

	return s
}

func mcpInterpret(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		if text == "" {
			return mcpError("text must not be empty"), nil
		}

		res := deps.Interpreter.Interpret(ctx, userID, text)
		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpConfirm(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		id, err := req.RequireString("interaction_id")
		if err != nil {
			return mcpError("interaction_id is required"), nil
		}

		ent, err := deps.Confirms.Confirm(id, userID)
		if err != nil {
			return mcpError(confirmErrorMessage(err)), nil
		}
		return mcpText(fmt.Sprintf("Created %s %s", ent.Type, ent.ID)), nil
	}
}

func mcpReject(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		id, err := req.RequireString("interaction_id")
		if err != nil {
			return mcpError("interaction_id is required"), nil
		}

		if err := deps.Confirms.Reject(id, userID); err != nil {
			return mcpError(confirmErrorMessage(err)), nil
		}
		return mcpText(fmt.Sprintf("Rejected interaction %s", id)), nil
	}
}

func mcpListPending(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		pending, err := deps.Confirms.ListPending(userID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing pending interactions: %v", err)), nil
		}
		if len(pending) == 0 {
			return mcpText("[]"), nil
		}

		type pendingSummary struct {
			ID                  string      `json:"id"`
			UserInput           string      `json:"user_input"`
			ActionType          action.Type `json:"action_type"`
			ConfirmationMessage string      `json:"confirmation_message,omitempty"`
			CreatedAt           string      `json:"created_at"`
		}

		summaries := make([]pendingSummary, len(pending))
		for i, p := range pending {
			input := p.UserInput
			if utf8.RuneCountInString(input) > 200 {
				runes := []rune(input)
				input = string(runes[:200]) + "..."
			}
			summaries[i] = pendingSummary{
				ID:                  p.ID,
				UserInput:           input,
				ActionType:          p.Interpretation.Type,
				ConfirmationMessage: p.Interpretation.ConfirmationMessage,
				CreatedAt:           p.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func confirmErrorMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "interaction not found"
	case errors.Is(err, confirm.ErrForbidden):
		return "interaction belongs to another user"
	case errors.Is(err, storage.ErrInvalidState):
		return "interaction is not awaiting confirmation"
	default:
		return err.Error()
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
