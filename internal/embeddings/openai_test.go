package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type openaiEmbedding struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type openaiEmbedResponse struct {
	Object string            `json:"object"`
	Data   []openaiEmbedding `json:"data"`
	Model  string            `json:"model"`
}

func newTestOpenAI(t *testing.T, handler http.Handler) Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := newOpenAIProvider(Config{
		Model:         "text-embedding-3-small",
		Dimensions:    4,
		Timeout:       5 * time.Second,
		OpenAIAPIKey:  "sk-test",
		OpenAIBaseURL: srv.URL + "/v1",
	}, true)
	if err != nil {
		t.Fatalf("newOpenAIProvider() error: %v", err)
	}
	return p
}

func embedResponse(n int) openaiEmbedResponse {
	resp := openaiEmbedResponse{Object: "list", Model: "text-embedding-3-small"}
	for i := 0; i < n; i++ {
		resp.Data = append(resp.Data, openaiEmbedding{
			Object:    "embedding",
			Embedding: []float32{float32(i), 1, 2, 3},
			Index:     i,
		})
	}
	return resp
}

func TestOpenAI_Embed(t *testing.T) {
	p := newTestOpenAI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %q, want /v1/embeddings", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "text-embedding-3-small" {
			t.Errorf("model = %v", body["model"])
		}
		if dims, ok := body["dimensions"].(float64); !ok || int(dims) != 4 {
			t.Errorf("dimensions = %v, want 4", body["dimensions"])
		}
		_ = json.NewEncoder(w).Encode(embedResponse(1))
	}))

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("Embed() = %d values, want 4", len(vec))
	}
}

func TestOpenAI_EmbedWhitespace(t *testing.T) {
	p := newTestOpenAI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("whitespace-only input must not hit the server")
	}))

	vec, err := p.Embed(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if vec != nil {
		t.Errorf("Embed() = %v, want nil", vec)
	}
}

func TestOpenAI_EmbedBatch(t *testing.T) {
	p := newTestOpenAI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		// Whitespace-only entries are filtered before the API call.
		if len(body.Input) != 2 {
			t.Errorf("input = %v, want 2 entries", body.Input)
		}
		_ = json.NewEncoder(w).Encode(embedResponse(len(body.Input)))
	}))

	vectors, err := p.EmbedBatch(context.Background(), []string{"one", "  ", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("EmbedBatch() = %d entries, want 3", len(vectors))
	}
	if vectors[0] == nil || vectors[2] == nil {
		t.Error("non-empty entries should have vectors")
	}
	if vectors[1] != nil {
		t.Error("whitespace entry should be nil")
	}
}

func TestOpenAI_EmbedBatchFallsBack(t *testing.T) {
	calls := 0
	p := newTestOpenAI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if calls == 1 {
			// Fail the batch call; sequential retries embed one at a time.
			http.Error(w, `{"error":{"message":"too large"}}`, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(embedResponse(len(body.Input)))
	}))

	vectors, err := p.EmbedBatch(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}
	if calls != 3 {
		t.Errorf("server saw %d calls, want 1 batch + 2 sequential", calls)
	}
	if vectors[0] == nil || vectors[1] == nil {
		t.Errorf("fallback vectors = %v", vectors)
	}
}

func TestOpenAI_Ping(t *testing.T) {
	p := newTestOpenAI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse(1))
	}))

	msg, err := p.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if !strings.Contains(msg, "4 dimensions") {
		t.Errorf("Ping() = %q, want dimension count", msg)
	}
}
