// Package memory is the multi-agent memory layer on top of the
// knowledgebase database. Agents register with API keys, store typed and
// scoped memories with embeddings, and recall them by similarity alongside
// RAG chunks.
package memory

import (
	"time"

	"github.com/google/uuid"

	"knowledgebase/internal/kb"
)

// MemoryType classifies what kind of knowledge an entry holds.
type MemoryType string

const (
	// Episodic memories are events and observations.
	Episodic MemoryType = "episodic"
	// Semantic memories are facts and learnings.
	Semantic MemoryType = "semantic"
	// Procedural memories are workflows and how-tos.
	Procedural MemoryType = "procedural"
)

// Scope controls which agents can see an entry.
type Scope string

const (
	// ScopePrivate restricts an entry to the owning agent.
	ScopePrivate Scope = "private"
	// ScopeTeam shares an entry with the owner's teams.
	ScopeTeam Scope = "team"
	// ScopeGlobal shares an entry with all agents.
	ScopeGlobal Scope = "global"
)

// Agent is a registered consumer of the memory layer.
type Agent struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name,omitempty"`
	AgentType   string         `json:"agent_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	LastSeenAt  *time.Time     `json:"last_seen_at,omitempty"`
}

// Entry is one stored memory.
type Entry struct {
	ID          uuid.UUID      `json:"id"`
	AgentID     uuid.UUID      `json:"agent_id"`
	AgentName   string         `json:"agent_name,omitempty"`
	Type        MemoryType     `json:"memory_type"`
	Scope       Scope          `json:"scope"`
	Content     string         `json:"content"`
	Summary     string         `json:"summary,omitempty"`
	Embedding   []float32      `json:"embedding,omitempty"`
	SourceID    *kb.ID         `json:"source_id,omitempty"`
	ChunkID     *kb.ID         `json:"chunk_id,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Namespace   string         `json:"namespace,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Importance  float64        `json:"importance"`
	Similarity  *float64       `json:"similarity,omitempty"`
	AccessCount int            `json:"access_count,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

// Team groups agents for team-scoped sharing.
type Team struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// UnifiedResult is one hit from a search spanning both agent memories and
// RAG chunks.
type UnifiedResult struct {
	// ResultType is "memory" or "rag".
	ResultType string         `json:"result_type"`
	ResultID   string         `json:"result_id"`
	AgentName  string         `json:"agent_name,omitempty"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
