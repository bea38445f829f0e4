// Package ollama provides a client for the Ollama HTTP API covering
// embeddings and chat completion (single-shot and streaming).
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

const serviceName = "ollama"

// embedBatchSize bounds the number of texts per embed request to keep
// request size and latency in check.
const embedBatchSize = 32

// Config holds client settings.
type Config struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
	// EmbedTimeout bounds bulk embedding calls; QueryTimeout bounds
	// single-vector and metadata calls. Streaming chat uses no timeout
	// and is bounded only by the caller's context.
	EmbedTimeout time.Duration
	QueryTimeout time.Duration
}

// Client talks to one Ollama server.
type Client struct {
	baseURL      string
	chatModel    string
	embedModel   string
	embedTimeout time.Duration
	queryTimeout time.Duration
	httpClient   *http.Client
}

// New creates a client. Zero timeouts fall back to defaults.
func New(cfg Config) *Client {
	embedTimeout := cfg.EmbedTimeout
	if embedTimeout == 0 {
		embedTimeout = 120 * time.Second
	}
	queryTimeout := cfg.QueryTimeout
	if queryTimeout == 0 {
		queryTimeout = 15 * time.Second
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		chatModel:    cfg.ChatModel,
		embedModel:   cfg.EmbedModel,
		embedTimeout: embedTimeout,
		queryTimeout: queryTimeout,
		// No Timeout on the client itself: streaming responses are
		// open-ended. Bounded calls wrap their context instead.
		httpClient: &http.Client{},
	}
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns one vector per input text, in input order. Inputs are
// sent in batches of at most 32 texts per request; batch results are
// concatenated in order. An empty input returns nil without a call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("ollama: embed returned %d vectors for %d inputs", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	timeout := c.embedTimeout
	if len(texts) == 1 {
		timeout = c.queryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp embedResponse
	if err := c.postJSON(ctx, "/api/embed", embedRequest{Model: c.embedModel, Input: texts}, &resp); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// EmbedSingle embeds one text. Used for query embedding and for the
// dimension probe at the start of an ingestion run.
func (c *Client) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("ollama: no embedding returned")
	}
	return vecs[0], nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Chat sends a non-streaming chat completion and returns the assistant
// message content. An empty model falls back to the configured default.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	if model == "" {
		model = c.chatModel
	}
	ctx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	var resp chatResponse
	if err := c.postJSON(ctx, "/api/chat", chatRequest{Model: model, Messages: messages}, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// ChatStream sends a streaming chat completion. Ollama streams JSON
// lines; each line's incremental content is passed to fn. Streaming
// stops when the server signals done, fn returns an error, or ctx is
// cancelled. No timeout is applied beyond ctx.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, fn func(chunk string) error) error {
	if model == "" {
		model = c.chatModel
	}

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return fmt.Errorf("ollama: marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.RemoteWrap(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return apperr.Remote(serviceName, resp.StatusCode, b)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			if err := fn(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	return scanner.Err()
}

// Ping checks server reachability via the model listing endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: build ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.RemoteWrap(serviceName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return apperr.Remote(serviceName, resp.StatusCode, b)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.RemoteWrap(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return apperr.Remote(serviceName, resp.StatusCode, b)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("ollama: decode response: %w", err)
		}
	}
	return nil
}
