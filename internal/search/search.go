// Package search is a thin convenience layer over the knowledgebase client
// for querying stored chunks.
package search

import (
	"context"
	"fmt"
	"strings"

	"knowledgebase/internal/kb"
)

// Searcher is the slice of the knowledgebase client search needs.
type Searcher interface {
	SearchSemantic(ctx context.Context, query string, opts kb.SearchOptions) ([]kb.StoredChunk, error)
	SearchHybrid(ctx context.Context, query string, opts kb.SearchOptions) ([]kb.StoredChunk, error)
}

// Result is one search hit.
type Result struct {
	ID         kb.ID   `json:"id"`
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	ChunkIndex int     `json:"chunk_index"`
	SourceType string  `json:"source_type"`
}

// Search runs a semantic similarity search.
func Search(ctx context.Context, s Searcher, query string, opts kb.SearchOptions) ([]Result, error) {
	chunks, err := s.SearchSemantic(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return toResults(chunks), nil
}

// SearchHybrid combines semantic similarity with keyword matching.
func SearchHybrid(ctx context.Context, s Searcher, query string, opts kb.SearchOptions) ([]Result, error) {
	chunks, err := s.SearchHybrid(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return toResults(chunks), nil
}

func toResults(chunks []kb.StoredChunk) []Result {
	results := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		similarity := 0.0
		if c.Similarity != nil {
			similarity = *c.Similarity
		}
		results = append(results, Result{
			ID:         c.ID,
			URL:        c.URL,
			Title:      c.Title,
			Content:    c.Content,
			Similarity: similarity,
			ChunkIndex: c.ChunkIndex,
			SourceType: "web",
		})
	}
	return results
}

// Format renders results for terminal display, truncating content to
// maxContent runes.
func Format(results []Result, maxContent int) string {
	if len(results) == 0 {
		return "No results found."
	}
	if maxContent <= 0 {
		maxContent = 200
	}

	var b strings.Builder
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		if title == "" {
			title = "Unknown"
		}

		content := r.Content
		if runes := []rune(content); len(runes) > maxContent {
			content = string(runes[:maxContent]) + "..."
		}

		fmt.Fprintf(&b, "%d. [%.2f] %s\n", i+1, r.Similarity, title)
		fmt.Fprintf(&b, "   %s\n\n", content)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
