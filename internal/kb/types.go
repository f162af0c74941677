package kb

import (
	"encoding/json"
	"fmt"
	"time"
)

// ID is a row identifier. Deployed schemas key rows with either integer
// sequences or UUIDs, so it accepts both JSON forms and carries the value
// as a string.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty id")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Source is a knowledge source: a crawled URL or an ingested document.
type Source struct {
	ID          ID             `json:"id"`
	URL         string         `json:"url"`
	Title       string         `json:"title,omitempty"`
	SourceType  string         `json:"source_type,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}

// StoredChunk is a chunk row, possibly joined with source fields and a
// similarity score when it comes from a search.
type StoredChunk struct {
	ID         ID             `json:"id"`
	SourceID   ID             `json:"source_id"`
	Content    string         `json:"content"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Similarity *float64       `json:"similarity,omitempty"`
	URL        string         `json:"url,omitempty"`
	Title      string         `json:"title,omitempty"`
}

// NewChunk is the insert payload for a chunk row.
type NewChunk struct {
	SourceID   ID             `json:"source_id"`
	Content    string         `json:"content"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   map[string]any `json:"metadata"`
	Embedding  []float32      `json:"embedding,omitempty"`
}

// Stats summarizes knowledgebase contents.
type Stats struct {
	TotalSources            int `json:"total_sources"`
	TotalChunks             int `json:"total_chunks"`
	ChunksWithEmbeddings    int `json:"chunks_with_embeddings"`
	ChunksWithoutEmbeddings int `json:"chunks_without_embeddings"`
}

// CountFilter selects which chunks CountChunks counts.
type CountFilter int

const (
	CountAll CountFilter = iota
	CountWithEmbeddings
	CountWithoutEmbeddings
)
