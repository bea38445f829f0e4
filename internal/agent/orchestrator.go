package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/audit"
	"github.com/starford/ansuz/internal/ollama"
	"github.com/starford/ansuz/internal/rag"
)

// ChatClient produces chat completions.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []ollama.Message) (string, error)
}

// Auditor records tool invocation attempts.
type Auditor interface {
	Append(rec audit.Record) error
}

// Notifier publishes activity events. May be nil.
type Notifier interface {
	PublishTool(tool, errStr string)
	PublishAnswer(task string)
}

// Request is one agent task.
type Request struct {
	Task  string `json:"task"`
	TopK  int    `json:"top_k"`
	Model string `json:"model"`
}

// Result is the full outcome of an agent run.
type Result struct {
	Plan      []string       `json:"plan"`
	ToolCalls []ToolCall     `json:"tool_calls"`
	Answer    string         `json:"answer"`
	Citations []rag.Citation `json:"citations"`
	NotePath  string         `json:"note_path,omitempty"`
	Todos     []Todo         `json:"todos,omitempty"`
}

// Orchestrator drives the plan → tools → answer → auto-tools loop.
type Orchestrator struct {
	chat     ChatClient
	registry *Registry
	auditor  Auditor
	notifier Notifier
	log      *slog.Logger
}

// NewOrchestrator wires the loop's collaborators. notifier may be nil.
func NewOrchestrator(chat ChatClient, registry *Registry, auditor Auditor, notifier Notifier, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{chat: chat, registry: registry, auditor: auditor, notifier: notifier, log: log}
}

// Run executes one task end to end. Planning failures fall back to a
// deterministic plan; individual tool failures are audited and skipped;
// only transport-level chat failures abort the run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Task) == "" {
		return Result{}, fmt.Errorf("%w: task must not be empty", apperr.ErrValidation)
	}
	topK := req.TopK
	if topK == 0 {
		topK = defaultSearchTopK
	}
	if topK < 1 || topK > 10 {
		return Result{}, fmt.Errorf("%w: top_k must be between 1 and 10, got %d", apperr.ErrValidation, topK)
	}

	plan, err := o.makePlan(ctx, req.Task, req.Model, topK)
	if err != nil {
		return Result{}, err
	}

	result := Result{Plan: plan.Steps, ToolCalls: make([]ToolCall, 0, len(plan.ToolCalls))}

	// Execute planned tools. Only calls that actually ran make it into
	// the result; the hits from the last successful search_docs call
	// become the answer's context.
	var hits []rag.Hit
	for _, call := range plan.ToolCalls {
		out, execErr := o.execAudited(ctx, req.Task, call.Name, call.Args)
		if execErr != nil {
			o.log.Warn("tool failed", "tool", call.Name, "error", execErr)
			continue
		}
		result.ToolCalls = append(result.ToolCalls, call)
		if sr, ok := out.(SearchResult); ok {
			hits = sr.Hits
		}
	}

	answer, err := o.answer(ctx, req.Task, req.Model, hits)
	if err != nil {
		return Result{}, err
	}
	result.Answer = answer
	result.Citations = rag.CitationsOf(hits)

	o.runAutoTools(ctx, req.Task, answer, &result)

	_ = o.auditor.Append(audit.Record{
		Question: req.Task,
		Tool:     "final",
		ToolArgs: map[string]any{"top_k": topK},
		ToolOut: audit.Summarize(map[string]any{
			"answer":    answer,
			"citations": result.Citations,
			"note_path": result.NotePath,
			"todos":     result.Todos,
		}, 0),
	})
	if o.notifier != nil {
		o.notifier.PublishAnswer(req.Task)
	}
	return result, nil
}

// makePlan asks the model for a plan and falls back deterministically
// when the reply has no usable JSON envelope. Transport errors from the
// model service propagate to the caller.
func (o *Orchestrator) makePlan(ctx context.Context, task, model string, topK int) (Plan, error) {
	raw, err := o.chat.Chat(ctx, model, []ollama.Message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: task},
	})
	if err != nil {
		return Plan{}, err
	}

	plan, err := parsePlan(raw)
	if err != nil {
		if !errors.Is(err, apperr.ErrPlanParse) {
			return Plan{}, err
		}
		o.log.Debug("plan parse failed, using fallback", "error", err)
		return fallbackPlan(task, topK), nil
	}
	return plan, nil
}

// answer asks the model to answer the task over the retrieved sources.
// With no hits, the model is told no sources were found.
func (o *Orchestrator) answer(ctx context.Context, task, model string, hits []rag.Hit) (string, error) {
	sources := rag.SourcesBlock(hits)
	if sources == "" {
		sources = "(no sources retrieved)"
	}
	return o.chat.Chat(ctx, model, []ollama.Message{
		{Role: "system", Content: rag.AnswerSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Sources:\n\n%s\n\nQuestion: %s", sources, task)},
	})
}

// runAutoTools triggers side-effect tools off keywords in the task.
// Failures are audited but never fail the run.
func (o *Orchestrator) runAutoTools(ctx context.Context, task, answer string, result *Result) {
	lower := strings.ToLower(task)

	if containsAny(lower, "note", "markdown", "save", "write_note") {
		title := truncateRunes(task, 60)
		out, err := o.execAuditedAs(ctx, task, ToolWriteNote, "write_note(auto)", map[string]any{
			"title":   title,
			"content": answer,
		})
		if err == nil {
			if nr, ok := out.(NoteResult); ok {
				result.NotePath = nr.Path
			}
		}
	}

	if containsAny(lower, "todo", "to-do", "action items") {
		out, err := o.execAuditedAs(ctx, task, ToolMakeTodo, "make_todo_from_answer(auto)", map[string]any{
			"text": answer,
		})
		if err == nil {
			if tr, ok := out.(TodoResult); ok {
				result.Todos = tr.Todos
			}
		}
	}
}

// execAudited runs one tool call and writes exactly one audit record
// for the attempt, success or failure.
func (o *Orchestrator) execAudited(ctx context.Context, task, name string, args map[string]any) (any, error) {
	return o.execAuditedAs(ctx, task, name, name, args)
}

func (o *Orchestrator) execAuditedAs(ctx context.Context, task, name, recordedName string, args map[string]any) (any, error) {
	out, err := o.registry.Execute(ctx, name, args)

	rec := audit.Record{Question: task, Tool: recordedName, ToolArgs: args}
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.ToolOut = audit.Summarize(out, 0)
	}
	if auditErr := o.auditor.Append(rec); auditErr != nil {
		o.log.Error("audit append failed", "tool", recordedName, "error", auditErr)
	}

	if o.notifier != nil {
		o.notifier.PublishTool(recordedName, rec.Error)
	}
	return out, err
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// truncateRunes caps s at max bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
