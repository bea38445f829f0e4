package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
)

// Plan is the model's proposed steps and tool calls for a task.
type Plan struct {
	Steps     []string   `json:"plan"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

// planSystemPrompt asks for a strict JSON envelope. Models at this size
// frequently decorate the JSON with prose, so extraction is best-effort
// and a deterministic fallback always exists.
const planSystemPrompt = "You are a planning assistant. Reply with a single JSON object and " +
	"nothing else: {\"plan\": [\"step\", ...], \"tool_calls\": [{\"name\": \"...\", " +
	"\"args\": {...}}, ...]}. The only available tools are search_docs(query, top_k), " +
	"write_note(title, content), and make_todo_from_answer(text). Never invent other tool names."

// parsePlan extracts the JSON object from raw model output. It takes
// the slice from the first '{' to the last '}' and unmarshals it.
// Missing or malformed JSON is ErrPlanParse; an envelope with empty
// lists is a valid plan with nothing to execute.
func parsePlan(raw string) (Plan, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return Plan{}, fmt.Errorf("%w: no JSON object in output", apperr.ErrPlanParse)
	}

	var plan Plan
	if err := json.Unmarshal([]byte(raw[start:end+1]), &plan); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", apperr.ErrPlanParse, err)
	}
	return plan, nil
}

// fallbackPlan is the deterministic plan used when the model's output
// is unusable: one retrieval pass over the task text, then answer.
func fallbackPlan(task string, topK int) Plan {
	return Plan{
		Steps: []string{"Search docs for relevant info", "Answer with citations"},
		ToolCalls: []ToolCall{
			{Name: ToolSearchDocs, Args: map[string]any{"query": task, "top_k": topK}},
		},
	}
}
