package cli

import (
	"fmt"
	"strings"

	"knowledgebase/internal/chunker"
	"knowledgebase/internal/config"
	"knowledgebase/internal/crawler"
	"knowledgebase/internal/embeddings"
	"knowledgebase/internal/ingest"
	"knowledgebase/internal/kb"
	"knowledgebase/internal/memory"
)

// app wires configuration into the clients the commands use. Each command
// builds only the dependencies it needs.
type app struct {
	cfg      *config.Config
	registry embeddings.Registry
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, registry: embeddings.NewRegistry()}, nil
}

// requireDatabase fails fast with the configuration problems Validate
// reports, so commands do not surface them as opaque HTTP errors later.
func (a *app) requireDatabase() error {
	if problems := a.cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("configuration invalid:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

func (a *app) provider() (embeddings.Provider, error) {
	return a.registry.New(a.cfg.EmbeddingProvider, embeddings.Config{
		Model:         a.cfg.EmbeddingModel,
		Dimensions:    a.cfg.EmbeddingDimensions,
		Timeout:       a.cfg.EmbeddingTimeout,
		OllamaURL:     a.cfg.OllamaURL,
		GoogleAPIKey:  a.cfg.GoogleAPIKey,
		OpenAIAPIKey:  a.cfg.OpenAIAPIKey,
		OpenAIBaseURL: a.cfg.OpenAIBaseURL,
	})
}

func (a *app) client(embedder kb.Embedder) (*kb.Client, error) {
	if err := a.requireDatabase(); err != nil {
		return nil, err
	}
	return kb.NewClient(kb.Config{
		BaseURL:             a.cfg.DatabaseURL,
		APIKey:              a.cfg.DatabaseKey,
		TablePrefix:         a.cfg.TablePrefix,
		DefaultMatchCount:   a.cfg.DefaultMatchCount,
		SimilarityThreshold: a.cfg.SimilarityThreshold,
		SemanticWeight:      a.cfg.SemanticWeight,
	}, embedder), nil
}

// searchClient builds a kb client with the configured embedding provider
// attached for query embedding.
func (a *app) searchClient() (*kb.Client, embeddings.Provider, error) {
	provider, err := a.provider()
	if err != nil {
		return nil, nil, err
	}
	client, err := a.client(provider)
	if err != nil {
		return nil, nil, err
	}
	return client, provider, nil
}

func (a *app) splitter() (*chunker.Splitter, error) {
	return chunker.New(chunker.Config{
		ChunkSize:       a.cfg.ChunkSize,
		ChunkOverlap:    a.cfg.ChunkOverlap,
		PreserveHeaders: true,
	})
}

func (a *app) pipeline() (*ingest.Pipeline, *kb.Client, error) {
	client, provider, err := a.searchClient()
	if err != nil {
		return nil, nil, err
	}
	splitter, err := a.splitter()
	if err != nil {
		return nil, nil, err
	}
	return ingest.New(client, provider, splitter), client, nil
}

func (a *app) fetcher() *crawler.Fetcher {
	return crawler.NewFetcher()
}

// memoryClient builds the agent memory layer from OPENCLAW_AGENT_NAME and
// OPENCLAW_AGENT_KEY.
func (a *app) memoryClient() (*memory.AgentMemory, error) {
	if a.cfg.AgentName == "" || a.cfg.AgentAPIKey == "" {
		return nil, fmt.Errorf("agent memory requires OPENCLAW_AGENT_NAME and OPENCLAW_AGENT_KEY")
	}
	client, provider, err := a.searchClient()
	if err != nil {
		return nil, err
	}
	return memory.New(a.cfg.AgentName, a.cfg.AgentAPIKey, client, provider), nil
}
