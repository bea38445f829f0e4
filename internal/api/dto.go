package api

import "github.com/starford/ansuz/internal/rag"

// ChatRequest is the body for POST /api/chat and POST /api/chat_rag.
type ChatRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	TopK   int    `json:"top_k"`
}

// ChatResponse is the non-streaming chat reply.
type ChatResponse struct {
	Response string `json:"response"`
}

// ChatRAGResponse is the retrieval-grounded chat reply.
type ChatRAGResponse struct {
	Response  string         `json:"response"`
	Citations []rag.Citation `json:"citations"`
	Stats     rag.Stats      `json:"stats"`
}

// SearchResponse is the body for GET /api/search.
type SearchResponse struct {
	Hits  []rag.Hit `json:"hits"`
	Stats rag.Stats `json:"stats"`
}
