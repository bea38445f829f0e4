package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	dh := NewDocumentHandler(svc.docsPath)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Agent loop.
	r.Post("/agent", h.Agent)

	// Chat: raw and retrieval-grounded.
	r.Post("/chat", h.Chat)
	r.Post("/chat_rag", h.ChatRAG)

	// Search.
	r.Get("/search", h.Search)

	// Ingestion.
	r.Post("/ingest", h.Ingest)
	r.Post("/documents", dh.Upload)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
