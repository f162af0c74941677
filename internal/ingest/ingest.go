// Package ingest turns crawled pages and parsed documents into stored,
// embedded chunks. The Pipeline splits content on markdown structure, embeds
// the chunks in batches, and writes everything through the knowledgebase
// store.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"knowledgebase/internal/chunker"
	"knowledgebase/internal/crawler"
	"knowledgebase/internal/kb"
	"knowledgebase/internal/logging"
	"knowledgebase/internal/parser"
)

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_ingest.go -package=mocks knowledgebase/internal/ingest Store,Embedder

// Store is the slice of the knowledgebase client the pipeline writes
// through.
type Store interface {
	GetSource(ctx context.Context, sourceURL string) (*kb.Source, error)
	AddSource(ctx context.Context, sourceURL, title, sourceType string, metadata map[string]any) (*kb.Source, error)
	AddChunksBatch(ctx context.Context, chunks []kb.NewChunk) (int, error)
	ChunksWithoutEmbeddings(ctx context.Context, limit int) ([]kb.StoredChunk, error)
	UpdateChunkEmbedding(ctx context.Context, id kb.ID, embedding []float32) error
	CountChunks(ctx context.Context, filter kb.CountFilter) (int, error)
}

// Embedder generates embedding vectors for chunk content.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline ingests pages and documents into the knowledgebase.
type Pipeline struct {
	store    Store
	embedder Embedder
	splitter *chunker.Splitter
}

// New builds a Pipeline. A nil embedder stores chunks without embeddings;
// EmbedMissing can backfill them later.
func New(store Store, embedder Embedder, splitter *chunker.Splitter) *Pipeline {
	return &Pipeline{store: store, embedder: embedder, splitter: splitter}
}

// IngestPage stores one crawled page: the source row is created if the URL
// is new, the markdown is chunked, chunks are embedded, and everything is
// written in one batch. Returns the number of chunks stored.
func (p *Pipeline) IngestPage(ctx context.Context, page *crawler.Page) (int, error) {
	source, err := p.ensureSource(ctx, page.URL, page.Title, "web", map[string]any{
		"content_hash": page.ContentHash,
	})
	if err != nil {
		return 0, err
	}
	return p.ingestContent(ctx, source, page.Content, map[string]any{
		"url":   page.URL,
		"title": page.Title,
	})
}

// IngestDocument stores one parsed document under a file:// URL.
func (p *Pipeline) IngestDocument(ctx context.Context, doc *parser.Document) (int, error) {
	sourceURL := "file://" + doc.Path
	source, err := p.ensureSource(ctx, sourceURL, doc.Title, "document", map[string]any{
		"format":        doc.Format,
		"original_path": doc.Path,
	})
	if err != nil {
		return 0, err
	}
	return p.ingestContent(ctx, source, doc.Content, map[string]any{
		"title": doc.Title,
		"path":  doc.Path,
	})
}

func (p *Pipeline) ensureSource(ctx context.Context, sourceURL, title, sourceType string, metadata map[string]any) (*kb.Source, error) {
	logger := logging.FromContext(ctx)

	existing, err := p.store.GetSource(ctx, sourceURL)
	if err == nil {
		logger.InfoContext(ctx, "reusing existing source", "url", sourceURL, "source_id", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, kb.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up source %s: %w", sourceURL, err)
	}

	if title == "" {
		title = sourceURL
	}
	source, err := p.store.AddSource(ctx, sourceURL, title, sourceType, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create source for %s: %w", sourceURL, err)
	}
	logger.InfoContext(ctx, "created source", "url", sourceURL, "source_id", source.ID)
	return source, nil
}

func (p *Pipeline) ingestContent(ctx context.Context, source *kb.Source, content string, baseMetadata map[string]any) (int, error) {
	logger := logging.FromContext(ctx)

	chunks := p.splitter.SplitMarkdown(content)
	if len(chunks) == 0 {
		logger.InfoContext(ctx, "nothing to ingest", "source_id", source.ID)
		return 0, nil
	}

	embeddings := p.embedChunks(ctx, chunks)

	rows := make([]kb.NewChunk, 0, len(chunks))
	for i, ch := range chunks {
		metadata := make(map[string]any, len(baseMetadata)+1)
		for k, v := range baseMetadata {
			metadata[k] = v
		}
		if len(ch.HeaderPath) > 0 {
			metadata["header_path"] = ch.HeaderPath
		}
		rows = append(rows, kb.NewChunk{
			SourceID:   source.ID,
			Content:    ch.Content,
			ChunkIndex: ch.Index,
			Metadata:   metadata,
			Embedding:  embeddings[i],
		})
	}

	stored, err := p.store.AddChunksBatch(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to store chunks for source %s: %w", source.ID, err)
	}
	logger.InfoContext(ctx, "ingested content",
		"source_id", source.ID,
		"chunks", stored,
	)
	return stored, nil
}

// embedChunks returns one embedding per chunk, nil where embedding failed or
// no embedder is configured. EmbedMissing picks up the nil ones later.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunker.Chunk) [][]float32 {
	if p.embedder == nil {
		return make([][]float32, len(chunks))
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(embeddings) != len(chunks) {
		logging.FromContext(ctx).WarnContext(ctx, "batch embedding failed, storing chunks without embeddings", "error", err)
		return make([][]float32, len(chunks))
	}
	return embeddings
}

// EmbedMissing backfills embeddings for stored chunks that have none,
// fetching batchSize chunks at a time. The optional progress callback gets
// (done, total) after every chunk. Returns the number of chunks embedded.
func (p *Pipeline) EmbedMissing(ctx context.Context, batchSize int, progress func(done, total int)) (int, error) {
	if p.embedder == nil {
		return 0, fmt.Errorf("no embedding provider configured")
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	logger := logging.FromContext(ctx)

	total, err := p.store.CountChunks(ctx, kb.CountWithoutEmbeddings)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	done := 0
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		chunks, err := p.store.ChunksWithoutEmbeddings(ctx, batchSize)
		if err != nil {
			return done, fmt.Errorf("failed to fetch chunks: %w", err)
		}
		if len(chunks) == 0 {
			return done, nil
		}

		progressed := false
		for _, ch := range chunks {
			if err := ctx.Err(); err != nil {
				return done, err
			}

			embedding, err := p.embedder.Embed(ctx, ch.Content)
			if err != nil {
				logger.WarnContext(ctx, "failed to embed chunk", "chunk_id", ch.ID, "error", err)
				continue
			}
			if embedding == nil {
				continue
			}
			if err := p.store.UpdateChunkEmbedding(ctx, ch.ID, embedding); err != nil {
				logger.WarnContext(ctx, "failed to store embedding", "chunk_id", ch.ID, "error", err)
				continue
			}

			done++
			progressed = true
			if progress != nil {
				progress(done, total)
			}
		}

		// Every chunk in the batch failed. Stop rather than refetch the
		// same rows forever.
		if !progressed {
			return done, fmt.Errorf("embedding stalled after %d of %d chunks", done, total)
		}
		if done >= total {
			return done, nil
		}
	}
}
