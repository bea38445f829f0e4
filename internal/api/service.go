// Package api implements the Ansuz REST API using chi.
package api

import (
	"context"

	"github.com/starford/ansuz/internal/agent"
	"github.com/starford/ansuz/internal/ingest"
	"github.com/starford/ansuz/internal/ollama"
	"github.com/starford/ansuz/internal/rag"
)

// Agent runs one orchestrated task.
type Agent interface {
	Run(ctx context.Context, req agent.Request) (agent.Result, error)
}

// Retriever performs semantic search over the index.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]rag.Hit, rag.Stats, error)
}

// Ingestor runs the full ingestion pipeline over a directory.
type Ingestor interface {
	IngestDirectory(ctx context.Context, root string) (ingest.Result, error)
}

// Chatter produces chat completions, plain and streaming.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message) (string, error)
	ChatStream(ctx context.Context, model string, messages []ollama.Message, fn func(chunk string) error) error
}

// Service bundles the collaborators the HTTP handlers need.
type Service struct {
	agent       Agent
	retriever   Retriever
	ingestor    Ingestor
	chat        Chatter
	docsPath    string
	defaultTopK int
}

// NewService creates a Service.
func NewService(a Agent, r Retriever, i Ingestor, c Chatter, docsPath string, defaultTopK int) *Service {
	if defaultTopK < 1 || defaultTopK > 10 {
		defaultTopK = 5
	}
	return &Service{
		agent:       a,
		retriever:   r,
		ingestor:    i,
		chat:        c,
		docsPath:    docsPath,
		defaultTopK: defaultTopK,
	}
}
