package intent

import (
	"fmt"
	"time"

	"github.com/amartel/anota/internal/llm"
)

// DefaultMaxInputLength caps how much user text is embedded in the prompt.
const DefaultMaxInputLength = 2000

const systemPrompt = `You are an intent extraction engine for a personal assistant that manages tasks in Brazilian Portuguese. Analyze the user's message and output ONLY a single valid JSON object with this exact shape:

{
  "intent": "create_task" | "update_task" | "delete_task" | "query_task" | "unknown",
  "title": string | null,
  "description": string | null,
  "priority": "low" | "medium" | "high" | null,
  "dueDate": string | null
}

Rules:
- "intent" must be exactly one of the five listed values.
- "title" is a short imperative summary of the action, without dates.
- "dueDate" must be an ISO-8601 datetime resolved against the reference date, or null.
- When the message does not clearly ask to create a task, use "unknown".
- Do not include any other text, prose, or markdown.`

// BuildPrompt constructs the [system, user] message pair for one
// extraction call. The user text is truncated to maxLen runes before
// being embedded.
func BuildPrompt(text string, ref time.Time, maxLen int) []llm.Message {
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLength
	}
	if runes := []rune(text); len(runes) > maxLen {
		text = string(runes[:maxLen])
	}

	user := fmt.Sprintf("Reference date: %s\n\nUser message:\n%s",
		ref.Format(time.RFC3339), text)

	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}
