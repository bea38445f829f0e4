package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/starford/ansuz/internal/agent"
	"github.com/starford/ansuz/internal/ollama"
	"github.com/starford/ansuz/internal/rag"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Agent handles POST /api/agent: one full plan → tools → answer run.
func (h *Handler) Agent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req agent.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("task is required"))
		return
	}
	if req.TopK == 0 {
		req.TopK = h.svc.defaultTopK
	}

	result, err := h.svc.agent.Run(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Chat handles POST /api/chat: a raw model completion with no
// retrieval. With ?stream=true the reply is streamed as it is
// generated.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("prompt is required"))
		return
	}

	messages := []ollama.Message{{Role: "user", Content: req.Prompt}}

	if r.URL.Query().Get("stream") == "true" {
		h.chatStream(w, r, req.Model, messages)
		return
	}

	reply, err := h.svc.chat.Chat(r.Context(), req.Model, messages)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: reply})
}

func (h *Handler) chatStream(w http.ResponseWriter, r *http.Request, model string, messages []ollama.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	err := h.svc.chat.ChatStream(r.Context(), model, messages, func(chunk string) error {
		if _, werr := w.Write([]byte(chunk)); werr != nil {
			return werr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are already out; all we can do is drop the connection.
		return
	}
}

// ChatRAG handles POST /api/chat_rag: retrieve, then answer over the
// boundary-delimited sources.
func (h *Handler) ChatRAG(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("prompt is required"))
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = h.svc.defaultTopK
	}

	hits, stats, err := h.svc.retriever.Retrieve(r.Context(), req.Prompt, topK)
	if err != nil {
		writeError(w, err)
		return
	}

	sources := rag.SourcesBlock(hits)
	if sources == "" {
		sources = "(no sources retrieved)"
	}
	reply, err := h.svc.chat.Chat(r.Context(), req.Model, []ollama.Message{
		{Role: "system", Content: rag.AnswerSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Sources:\n\n%s\n\nQuestion: %s", sources, req.Prompt)},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatRAGResponse{
		Response:  reply,
		Citations: rag.CitationsOf(hits),
		Stats:     stats,
	})
}

// Search handles GET /api/search: semantic search without a model pass.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	topK := h.svc.defaultTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("top_k must be an integer"))
			return
		}
		topK = n
	}

	hits, stats, err := h.svc.retriever.Retrieve(r.Context(), q, topK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Hits: hits, Stats: stats})
}

// Ingest handles POST /api/ingest: re-embed and re-upsert every
// document in the configured directory.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ingestor.IngestDirectory(r.Context(), h.svc.docsPath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
