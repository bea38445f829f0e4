// Package qdrant is a minimal REST client for the Qdrant vector index:
// idempotent collection creation, point upsert, and similarity search.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

const serviceName = "qdrant"

// Config holds client settings.
type Config struct {
	URL    string
	APIKey string
	// QueryTimeout bounds search and metadata calls; BulkTimeout bounds
	// upserts, which carry whole file batches.
	QueryTimeout time.Duration
	BulkTimeout  time.Duration
}

// Client talks to one Qdrant server.
type Client struct {
	baseURL      string
	apiKey       string
	queryTimeout time.Duration
	bulkTimeout  time.Duration
	httpClient   *http.Client
}

// New creates a client. Zero timeouts fall back to defaults.
func New(cfg Config) *Client {
	queryTimeout := cfg.QueryTimeout
	if queryTimeout == 0 {
		queryTimeout = 15 * time.Second
	}
	bulkTimeout := cfg.BulkTimeout
	if bulkTimeout == 0 {
		bulkTimeout = 60 * time.Second
	}
	return &Client{
		baseURL:      cfg.URL,
		apiKey:       cfg.APIKey,
		queryTimeout: queryTimeout,
		bulkTimeout:  bulkTimeout,
		httpClient:   &http.Client{},
	}
}

// Point is the persisted unit: a deterministic id, a fixed-dimension
// vector, and a payload carried back verbatim by search.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// ScoredPoint is one search hit, ranked by decreasing cosine similarity.
type ScoredPoint struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// EnsureCollection creates the named collection with cosine distance
// and the given dimension if it does not exist yet. Existing
// collections are left untouched; the caller is responsible for using
// a consistent dimension for the collection's lifetime.
func (c *Client) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid vector dimension %d", apperr.ErrValidation, dim)
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	status, _, err := c.do(ctx, http.MethodGet, "/collections/"+name, nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	status, respBody, err := c.do(ctx, http.MethodPut, "/collections/"+name, body, nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return apperr.Remote(serviceName, status, respBody)
	}
	return nil
}

// Upsert writes points into the collection, replacing any existing
// point with the same id. The call waits for the write to be applied.
// Partial failure is retryable by re-upserting: ids are deterministic,
// so a repeat is an overwrite, not a duplicate.
func (c *Client) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.bulkTimeout)
	defer cancel()

	body := map[string]any{"points": points}
	status, respBody, err := c.do(ctx, http.MethodPut, "/collections/"+name+"/points?wait=true", body, nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return apperr.Remote(serviceName, status, respBody)
	}
	return nil
}

// Search returns up to limit points ranked by decreasing cosine
// similarity to vector. Tie order among equal scores is index-internal
// and must not be relied upon.
func (c *Client) Search(ctx context.Context, name string, vector []float32, limit int, withPayload bool) ([]ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": withPayload,
	}
	var resp struct {
		Result []ScoredPoint `json:"result"`
	}
	status, respBody, err := c.do(ctx, http.MethodPost, "/collections/"+name+"/points/search", req, &resp)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, apperr.Remote(serviceName, status, respBody)
	}
	return resp.Result, nil
}

// Ready checks the readiness endpoint.
func (c *Client) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	status, respBody, err := c.do(ctx, http.MethodGet, "/readyz", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apperr.Remote(serviceName, status, respBody)
	}
	return nil
}

// do executes one request. It returns the status and raw body for the
// caller to interpret; transport failures become RemoteError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, []byte, error) {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("qdrant: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("qdrant: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, apperr.RemoteWrap(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, apperr.RemoteWrap(serviceName, err)
	}
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, body, fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}
