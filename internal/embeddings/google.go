package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"knowledgebase/internal/logging"
)

const googleMaxChars = 10000

// googleProvider embeds through the Google Generative AI API.
type googleProvider struct {
	model  string
	client *genai.Client
}

func newGoogleProvider(cfg Config) (Provider, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("google provider requires an API key")
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GoogleAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return &googleProvider{model: cfg.Model, client: client}, nil
}

func (p *googleProvider) Name() string  { return "Google AI" }
func (p *googleProvider) MaxChars() int { return googleMaxChars }

func (p *googleProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	text = truncate(text, p.MaxChars())
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	res, err := p.client.EmbeddingModel(p.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("google embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("google returned an empty embedding")
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds all non-empty texts in one batch request, falling back
// to sequential Embed calls when the batch request fails.
func (p *googleProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := p.client.EmbeddingModel(p.model)
	batch := em.NewBatch()

	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		text = truncate(text, p.MaxChars())
		if strings.TrimSpace(text) == "" {
			continue
		}
		batch = batch.AddContent(genai.Text(text))
		positions = append(positions, i)
	}

	vectors := make([][]float32, len(texts))
	if len(positions) == 0 {
		return vectors, nil
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger := logging.FromContext(ctx)
		logger.WarnContext(ctx, "batch embedding failed, falling back to sequential",
			"provider", p.Name(), "error", err)
		return p.embedSequential(ctx, texts)
	}
	if len(res.Embeddings) != len(positions) {
		return nil, fmt.Errorf("google returned %d embeddings for %d inputs", len(res.Embeddings), len(positions))
	}

	for i, emb := range res.Embeddings {
		if emb != nil {
			vectors[positions[i]] = emb.Values
		}
	}
	return vectors, nil
}

func (p *googleProvider) embedSequential(ctx context.Context, texts []string) ([][]float32, error) {
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

// Ping embeds a short probe string and reports the resulting vector size.
func (p *googleProvider) Ping(ctx context.Context) (string, error) {
	vec, err := p.Embed(ctx, "test")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Google AI OK, model %q (%d dimensions)", p.model, len(vec)), nil
}
