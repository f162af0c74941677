package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"knowledgebase/internal/logging"
)

const ollamaMaxChars = 3000

// ollamaProvider talks to a local Ollama server's embeddings API.
type ollamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

func newOllamaProvider(cfg Config) (Provider, error) {
	if cfg.OllamaURL == "" {
		return nil, fmt.Errorf("ollama provider requires an ollama URL")
	}
	return &ollamaProvider{
		baseURL: strings.TrimSuffix(cfg.OllamaURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *ollamaProvider) Name() string  { return "Ollama" }
func (p *ollamaProvider) MaxChars() int { return ollamaMaxChars }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *ollamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	text = truncate(text, p.MaxChars())
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama bad status %d: %s", resp.StatusCode, string(raw))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return out.Embedding, nil
}

// EmbedBatch embeds texts one at a time; the Ollama embeddings endpoint
// takes a single prompt per call. A failed text yields a nil entry.
func (p *ollamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	logger := logging.FromContext(ctx)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WarnContext(ctx, "embedding failed", "provider", p.Name(), "index", i, "error", err)
			continue
		}
		vectors[i] = vec
	}
	return vectors, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Ping checks the server is reachable and the configured model is pulled.
func (p *ollamaProvider) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cannot connect to ollama at %s: %w", p.baseURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama bad status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", fmt.Errorf("failed to decode ollama tags: %w", err)
	}

	want, _, _ := strings.Cut(p.model, ":")
	for _, m := range tags.Models {
		name, _, _ := strings.Cut(m.Name, ":")
		if name == want {
			return fmt.Sprintf("Ollama OK, model %q available", p.model), nil
		}
	}
	return "", fmt.Errorf("model %q not found; run: ollama pull %s", p.model, p.model)
}
