// Package agent implements the orchestration loop: plan a task with the
// model, execute allowlisted tools, answer over retrieved sources, and
// audit every tool attempt.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/rag"
)

// Tool names form a closed allowlist. Anything else is rejected before
// validation runs.
const (
	ToolSearchDocs    = "search_docs"
	ToolWriteNote     = "write_note"
	ToolMakeTodo      = "make_todo_from_answer"
	defaultSearchTopK = 5
)

// ToolCall is one planned tool invocation with raw arguments.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// SearchDocsArgs are the arguments for search_docs.
type SearchDocsArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (a SearchDocsArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Query, validation.Required),
		validation.Field(&a.TopK, validation.Required, validation.Min(1), validation.Max(10)),
	)
}

// WriteNoteArgs are the arguments for write_note.
type WriteNoteArgs struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (a WriteNoteArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Title, validation.Required, validation.Length(1, 120)),
		validation.Field(&a.Content, validation.Required),
	)
}

// MakeTodoArgs are the arguments for make_todo_from_answer.
type MakeTodoArgs struct {
	Text string `json:"text"`
}

func (a MakeTodoArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Text, validation.Required),
	)
}

// decodeArgs re-encodes the raw argument map into the typed struct,
// rejecting unknown fields so misspelled or injected keys fail loudly.
func decodeArgs(raw map[string]any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

// Searcher retrieves chunks for a query.
type Searcher interface {
	Retrieve(ctx context.Context, query string, topK int) ([]rag.Hit, rag.Stats, error)
}

// NoteWriter persists a note and returns the path written.
type NoteWriter interface {
	Write(title, content string) (string, error)
}

// SearchResult is the output of search_docs.
type SearchResult struct {
	Hits      []rag.Hit      `json:"hits"`
	Citations []rag.Citation `json:"citations"`
}

// NoteResult is the output of write_note.
type NoteResult struct {
	Path string `json:"path"`
}

// TodoResult is the output of make_todo_from_answer.
type TodoResult struct {
	Todos []Todo `json:"todos"`
}

// Registry executes tool calls against the closed allowlist.
type Registry struct {
	searcher Searcher
	notes    NoteWriter
}

// NewRegistry creates a registry over its tool backends.
func NewRegistry(searcher Searcher, notes NoteWriter) *Registry {
	return &Registry{searcher: searcher, notes: notes}
}

// Execute validates args for the named tool and runs it. Unknown names
// are rejected with ErrUnknownTool; argument failures with ErrValidation.
func (r *Registry) Execute(ctx context.Context, name string, raw map[string]any) (any, error) {
	switch name {
	case ToolSearchDocs:
		var args SearchDocsArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		// The default applies only when the key is absent; an explicit
		// zero is invalid and must fail validation.
		if _, present := raw["top_k"]; !present {
			args.TopK = defaultSearchTopK
		}
		if err := args.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		hits, _, err := r.searcher.Retrieve(ctx, args.Query, args.TopK)
		if err != nil {
			return nil, err
		}
		return SearchResult{Hits: hits, Citations: rag.CitationsOf(hits)}, nil

	case ToolWriteNote:
		var args WriteNoteArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if err := args.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		path, err := r.notes.Write(args.Title, args.Content)
		if err != nil {
			return nil, err
		}
		return NoteResult{Path: path}, nil

	case ToolMakeTodo:
		var args MakeTodoArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if err := args.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		return TodoResult{Todos: ExtractTodos(args.Text)}, nil

	default:
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownTool, name)
	}
}
