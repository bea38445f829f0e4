package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, ChatModel: "chat-model", EmbedModel: "embed-model"})
}

func TestEmbed_Empty(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	})
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("Embed(nil) = %v, %v", vecs, err)
	}
}

func TestEmbed_BatchesAndPreservesOrder(t *testing.T) {
	var batchSizes []int
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "embed-model" {
			t.Errorf("model = %q", req.Model)
		}
		batchSizes = append(batchSizes, len(req.Input))

		// Encode each text's length into its vector so order is checkable.
		resp := embedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i, text := range req.Input {
			resp.Embeddings[i] = []float32{float32(len(text))}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	texts := make([]string, 70)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	vecs, err := c.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != 70 {
		t.Fatalf("got %d vectors, want 70", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i+1) {
			t.Fatalf("vector %d out of order: %v", i, v)
		}
	}
	want := []int{32, 32, 6}
	if len(batchSizes) != 3 || batchSizes[0] != want[0] || batchSizes[1] != want[1] || batchSizes[2] != want[2] {
		t.Errorf("batch sizes = %v, want %v", batchSizes, want)
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	})
	_, err := c.Embed(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "2 inputs") {
		t.Errorf("err = %v, want count mismatch", err)
	}
}

func TestEmbed_RemoteError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})
	_, err := c.Embed(context.Background(), []string{"a"})
	if !apperr.IsRemote(err) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	var remote *apperr.RemoteError
	if !errors.As(err, &remote) {
		t.Fatal("cannot extract RemoteError")
	}
	if remote.Status != http.StatusNotFound || !strings.Contains(remote.Body, "model not found") {
		t.Errorf("remote = %+v", remote)
	}
}

func TestEmbedSingle(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 2, 3}}})
	})
	vec, err := c.EmbedSingle(context.Background(), "probe")
	if err != nil {
		t.Fatalf("EmbedSingle failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("dim = %d, want 3", len(vec))
	}
}

func TestChat_UsesDefaultModel(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "chat-model" {
			t.Errorf("model = %q, want configured default", req.Model)
		}
		if req.Stream {
			t.Error("non-streaming call sent stream=true")
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: "hi"}, Done: true})
	})
	out, err := c.Chat(context.Background(), "", []Message{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if out != "hi" {
		t.Errorf("out = %q", out)
	}
}

func TestChat_ExplicitModelOverrides(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "other-model" {
			t.Errorf("model = %q, want other-model", req.Model)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: Message{Content: "ok"}, Done: true})
	})
	if _, err := c.Chat(context.Background(), "other-model", nil); err != nil {
		t.Fatal(err)
	}
}

func TestChatStream_ConcatenatesChunks(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			`{"message": {"role": "assistant", "content": "Hel"}, "done": false}`,
			`not valid json, skipped`,
			`{"message": {"role": "assistant", "content": "lo"}, "done": false}`,
			`{"message": {"role": "assistant", "content": ""}, "done": true}`,
		}
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
		}
	})

	var sb strings.Builder
	err := c.ChatStream(context.Background(), "", nil, func(chunk string) error {
		sb.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if sb.String() != "Hello" {
		t.Errorf("streamed = %q, want Hello", sb.String())
	}
}

func TestChatStream_CallbackErrorStops(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": {"content": "x"}, "done": false}` + "\n"))
		_, _ = w.Write([]byte(`{"message": {"content": "y"}, "done": true}` + "\n"))
	})
	wantErr := context.Canceled
	err := c.ChatStream(context.Background(), "", nil, func(string) error { return wantErr })
	if err != wantErr {
		t.Errorf("err = %v, want callback error", err)
	}
}

func TestPing(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestPing_Down(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Config{BaseURL: srv.URL})
	if err := c.Ping(context.Background()); !apperr.IsRemote(err) {
		t.Errorf("err = %v, want RemoteError", err)
	}
}
