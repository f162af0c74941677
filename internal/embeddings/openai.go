package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"knowledgebase/internal/logging"
)

const openaiMaxChars = 30000

// openaiProvider embeds through the OpenAI embeddings API or any
// OpenAI-compatible endpoint (the "custom" provider).
type openaiProvider struct {
	name       string
	model      string
	dimensions int
	client     *openai.Client
}

func newOpenAIProvider(cfg Config, custom bool) (Provider, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai provider requires an API key")
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	name := "OpenAI"
	if custom {
		if cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("custom provider requires a base URL")
		}
		name = "Custom (OpenAI-compatible)"
	}
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.OpenAIBaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &openaiProvider{
		name:       name,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     openai.NewClientWithConfig(clientCfg),
	}, nil
}

func (p *openaiProvider) Name() string  { return p.name }
func (p *openaiProvider) MaxChars() int { return openaiMaxChars }

func (p *openaiProvider) embedStrings(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      inputs,
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: p.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(inputs))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("openai returned out-of-range embedding index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (p *openaiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	text = truncate(text, p.MaxChars())
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vectors, err := p.embedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds all non-empty texts in a single API call, falling back
// to sequential Embed calls when the batch request fails.
func (p *openaiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		text = truncate(text, p.MaxChars())
		if strings.TrimSpace(text) == "" {
			continue
		}
		inputs = append(inputs, text)
		positions = append(positions, i)
	}

	vectors := make([][]float32, len(texts))
	if len(inputs) == 0 {
		return vectors, nil
	}

	batched, err := p.embedStrings(ctx, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger := logging.FromContext(ctx)
		logger.WarnContext(ctx, "batch embedding failed, falling back to sequential",
			"provider", p.name, "error", err)
		return p.embedSequential(ctx, texts)
	}

	for i, vec := range batched {
		vectors[positions[i]] = vec
	}
	return vectors, nil
}

func (p *openaiProvider) embedSequential(ctx context.Context, texts []string) ([][]float32, error) {
	logger := logging.FromContext(ctx)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WarnContext(ctx, "embedding failed", "provider", p.name, "index", i, "error", err)
			continue
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Ping embeds a short probe string and reports the resulting vector size.
func (p *openaiProvider) Ping(ctx context.Context) (string, error) {
	vec, err := p.Embed(ctx, "test")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s OK, model %q (%d dimensions)", p.name, p.model, len(vec)), nil
}
