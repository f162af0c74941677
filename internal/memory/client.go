package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"knowledgebase/internal/kb"
	"knowledgebase/internal/logging"
)

// ErrNotAuthenticated indicates an operation that needs an agent identity
// was called before Register or Authenticate.
var ErrNotAuthenticated = errors.New("agent not authenticated")

// Embedder turns memory content into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AgentMemory is one agent's handle on the memory layer. It wraps the
// knowledgebase client for transport and an embedder for content vectors.
// Call Register once per agent, then Authenticate on later sessions.
type AgentMemory struct {
	name     string
	apiKey   string
	db       *kb.Client
	embedder Embedder
	agent    *Agent
}

// New returns an unauthenticated AgentMemory for the named agent.
func New(name, apiKey string, db *kb.Client, embedder Embedder) *AgentMemory {
	return &AgentMemory{name: name, apiKey: apiKey, db: db, embedder: embedder}
}

// Agent returns the authenticated agent identity.
func (m *AgentMemory) Agent() (*Agent, error) {
	if m.agent == nil {
		return nil, fmt.Errorf("agent %q: %w", m.name, ErrNotAuthenticated)
	}
	return m.agent, nil
}

// Register creates the agent server-side. The API key is hashed by the SQL
// function; the raw key never lands in a table.
func (m *AgentMemory) Register(ctx context.Context, displayName, agentType string, metadata map[string]any) (*Agent, error) {
	if agentType == "" {
		agentType = "openclaw"
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	var rawID json.RawMessage
	err := m.db.RPC(ctx, "mb_register_agent", map[string]any{
		"p_name":         m.name,
		"p_api_key":      m.apiKey,
		"p_display_name": displayName,
		"p_agent_type":   agentType,
		"p_metadata":     metadata,
	}, &rawID)
	if err != nil {
		return nil, fmt.Errorf("register agent %q: %w", m.name, err)
	}

	var idStr string
	if err := json.Unmarshal(rawID, &idStr); err != nil {
		return nil, fmt.Errorf("register agent %q: unexpected id %s", m.name, rawID)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("register agent %q: bad id: %w", m.name, err)
	}

	m.agent = &Agent{
		ID:          id,
		Name:        m.name,
		DisplayName: displayName,
		AgentType:   agentType,
		Metadata:    metadata,
		IsActive:    true,
	}
	logging.FromContext(ctx).InfoContext(ctx, "registered agent", "agent", m.name, "id", id)
	return m.agent, nil
}

// Authenticate verifies the API key and loads the agent identity.
func (m *AgentMemory) Authenticate(ctx context.Context) (*Agent, error) {
	var rows []struct {
		AgentID   uuid.UUID `json:"agent_id"`
		AgentName string    `json:"agent_name"`
		AgentType string    `json:"agent_type"`
	}
	err := m.db.RPC(ctx, "mb_authenticate_agent", map[string]any{"p_api_key": m.apiKey}, &rows)
	if err != nil {
		return nil, fmt.Errorf("authenticate agent %q: %w", m.name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("authenticate agent %q: invalid API key", m.name)
	}

	m.agent = &Agent{
		ID:        rows[0].AgentID,
		Name:      rows[0].AgentName,
		AgentType: rows[0].AgentType,
		IsActive:  true,
	}
	logging.FromContext(ctx).InfoContext(ctx, "authenticated agent", "agent", m.agent.Name, "id", m.agent.ID)
	return m.agent, nil
}

// RememberOptions tunes a stored memory. Zero values select semantic type,
// private scope, the "default" namespace, and importance 0.5.
type RememberOptions struct {
	Type       MemoryType
	Scope      Scope
	Tags       []string
	Namespace  string
	Importance float64
	Summary    string
	Metadata   map[string]any
	SourceID   *kb.ID
	ChunkID    *kb.ID
	ExpiresAt  *time.Time
}

// Remember stores a memory entry, embedding the content first.
func (m *AgentMemory) Remember(ctx context.Context, content string, opts RememberOptions) (*Entry, error) {
	agent, err := m.Agent()
	if err != nil {
		return nil, err
	}

	if opts.Type == "" {
		opts.Type = Semantic
	}
	if opts.Scope == "" {
		opts.Scope = ScopePrivate
	}
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if opts.Importance == 0 {
		opts.Importance = 0.5
	}
	if opts.Tags == nil {
		opts.Tags = []string{}
	}
	if opts.Metadata == nil {
		opts.Metadata = map[string]any{}
	}

	embedding, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("remember: embed content: %w", err)
	}

	payload := map[string]any{
		"agent_id":    agent.ID.String(),
		"memory_type": opts.Type,
		"scope":       opts.Scope,
		"content":     content,
		"summary":     opts.Summary,
		"embedding":   embedding,
		"tags":        opts.Tags,
		"namespace":   opts.Namespace,
		"importance":  opts.Importance,
		"metadata":    opts.Metadata,
	}
	if opts.SourceID != nil {
		payload["source_id"] = *opts.SourceID
	}
	if opts.ChunkID != nil {
		payload["chunk_id"] = *opts.ChunkID
	}
	if opts.ExpiresAt != nil {
		payload["expires_at"] = opts.ExpiresAt.Format(time.RFC3339)
	}

	var rows []Entry
	if err := m.db.Rest(ctx, http.MethodPost, "mb_memory", nil, payload, &rows); err != nil {
		return nil, fmt.Errorf("remember: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("remember: no row returned")
	}

	entry := rows[0]
	entry.AgentName = agent.Name
	entry.Embedding = embedding
	return &entry, nil
}

// Learn stores a semantic memory (fact, learning, insight).
func (m *AgentMemory) Learn(ctx context.Context, fact string, opts RememberOptions) (*Entry, error) {
	opts.Type = Semantic
	return m.Remember(ctx, fact, opts)
}

// LogEvent stores an episodic memory (event, observation).
func (m *AgentMemory) LogEvent(ctx context.Context, event string, opts RememberOptions) (*Entry, error) {
	opts.Type = Episodic
	return m.Remember(ctx, event, opts)
}

// SaveProcedure stores a procedural memory (workflow, how-to).
func (m *AgentMemory) SaveProcedure(ctx context.Context, howto string, opts RememberOptions) (*Entry, error) {
	opts.Type = Procedural
	return m.Remember(ctx, howto, opts)
}

// RecallOptions filters a memory search. Zero Limit means 10 and zero
// Threshold means 0.5.
type RecallOptions struct {
	Limit     int
	Types     []MemoryType
	Scopes    []Scope
	Namespace string
	Tags      []string
	Threshold float64
}

// Recall searches the agent's accessible memories by similarity. Each hit
// is access-logged server-side; logging failures never fail the recall.
func (m *AgentMemory) Recall(ctx context.Context, query string, opts RecallOptions) ([]Entry, error) {
	agent, err := m.Agent()
	if err != nil {
		return nil, err
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("recall: embed query: %w", err)
	}
	if embedding == nil {
		return nil, nil
	}

	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.Threshold == 0 {
		opts.Threshold = 0.5
	}

	params := map[string]any{
		"p_agent_id":             agent.ID.String(),
		"p_query_embedding":      embedding,
		"p_match_count":          opts.Limit,
		"p_similarity_threshold": opts.Threshold,
	}
	if len(opts.Types) > 0 {
		params["p_memory_types"] = opts.Types
	}
	if len(opts.Scopes) > 0 {
		params["p_scopes"] = opts.Scopes
	}
	if opts.Namespace != "" {
		params["p_namespace"] = opts.Namespace
	}
	if len(opts.Tags) > 0 {
		params["p_tags"] = opts.Tags
	}

	var entries []Entry
	if err := m.db.RPC(ctx, "mb_search_memory", params, &entries); err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}

	for _, entry := range entries {
		m.logAccess(ctx, entry.ID)
	}
	return entries, nil
}

// RecallAll searches agent memories and RAG chunks together, sorted by
// similarity server-side.
func (m *AgentMemory) RecallAll(ctx context.Context, query string, limit int, threshold float64) ([]UnifiedResult, error) {
	agent, err := m.Agent()
	if err != nil {
		return nil, err
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("recall all: embed query: %w", err)
	}
	if embedding == nil {
		return nil, nil
	}

	if limit <= 0 {
		limit = 10
	}
	if threshold == 0 {
		threshold = 0.5
	}

	var results []UnifiedResult
	err = m.db.RPC(ctx, "mb_search_all", map[string]any{
		"p_agent_id":             agent.ID.String(),
		"p_query_embedding":      embedding,
		"p_match_count":          limit,
		"p_similarity_threshold": threshold,
	}, &results)
	if err != nil {
		return nil, fmt.Errorf("recall all: %w", err)
	}
	return results, nil
}

// Forget deletes one of the agent's own memories.
func (m *AgentMemory) Forget(ctx context.Context, memoryID uuid.UUID) error {
	agent, err := m.Agent()
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("id", "eq."+memoryID.String())
	params.Set("agent_id", "eq."+agent.ID.String())

	if err := m.db.Rest(ctx, http.MethodDelete, "mb_memory", params, nil, nil); err != nil {
		return fmt.Errorf("forget %s: %w", memoryID, err)
	}
	return nil
}

// UpdateOptions carries the fields UpdateMemory changes. Nil fields are
// left untouched.
type UpdateOptions struct {
	Content    *string
	Summary    *string
	Importance *float64
	Tags       []string
	Scope      *Scope
	Metadata   map[string]any
	ExpiresAt  *time.Time
}

// UpdateMemory patches one of the agent's own memories. Changing the
// content re-embeds it.
func (m *AgentMemory) UpdateMemory(ctx context.Context, memoryID uuid.UUID, opts UpdateOptions) error {
	agent, err := m.Agent()
	if err != nil {
		return err
	}

	payload := map[string]any{"updated_at": "now()"}
	if opts.Content != nil {
		embedding, err := m.embedder.Embed(ctx, *opts.Content)
		if err != nil {
			return fmt.Errorf("update memory: embed content: %w", err)
		}
		payload["content"] = *opts.Content
		payload["embedding"] = embedding
	}
	if opts.Summary != nil {
		payload["summary"] = *opts.Summary
	}
	if opts.Importance != nil {
		payload["importance"] = *opts.Importance
	}
	if opts.Tags != nil {
		payload["tags"] = opts.Tags
	}
	if opts.Scope != nil {
		payload["scope"] = *opts.Scope
	}
	if opts.Metadata != nil {
		payload["metadata"] = opts.Metadata
	}
	if opts.ExpiresAt != nil {
		payload["expires_at"] = opts.ExpiresAt.Format(time.RFC3339)
	}

	params := url.Values{}
	params.Set("id", "eq."+memoryID.String())
	params.Set("agent_id", "eq."+agent.ID.String())

	if err := m.db.Rest(ctx, http.MethodPatch, "mb_memory", params, payload, nil); err != nil {
		return fmt.Errorf("update memory %s: %w", memoryID, err)
	}
	return nil
}

// ShareSource shares a RAG source with other agents, globally or with one
// team.
func (m *AgentMemory) ShareSource(ctx context.Context, sourceID kb.ID, scope Scope, teamID *uuid.UUID) error {
	agent, err := m.Agent()
	if err != nil {
		return err
	}

	payload := map[string]any{
		"source_id":  sourceID,
		"scope":      scope,
		"permission": "read",
		"granted_by": agent.ID.String(),
	}
	if scope == ScopeTeam && teamID != nil {
		payload["team_id"] = teamID.String()
	}

	if err := m.db.Rest(ctx, http.MethodPost, "mb_kb_access", nil, payload, nil); err != nil {
		return fmt.Errorf("share source %s: %w", sourceID, err)
	}
	return nil
}

// GrantSourceAccess grants one agent access to a RAG source.
func (m *AgentMemory) GrantSourceAccess(ctx context.Context, sourceID kb.ID, agentID uuid.UUID, permission string) error {
	agent, err := m.Agent()
	if err != nil {
		return err
	}
	if permission == "" {
		permission = "read"
	}

	payload := map[string]any{
		"source_id":  sourceID,
		"agent_id":   agentID.String(),
		"scope":      ScopePrivate,
		"permission": permission,
		"granted_by": agent.ID.String(),
	}
	if err := m.db.Rest(ctx, http.MethodPost, "mb_kb_access", nil, payload, nil); err != nil {
		return fmt.Errorf("grant access to source %s: %w", sourceID, err)
	}
	return nil
}

// BootstrapAccess grants the agent global access to all existing sources
// and returns how many were granted. Intended for initial migration.
func (m *AgentMemory) BootstrapAccess(ctx context.Context) (int, error) {
	agent, err := m.Agent()
	if err != nil {
		return 0, err
	}

	var granted int
	err = m.db.RPC(ctx, "mb_bootstrap_agent_access", map[string]any{
		"p_agent_id": agent.ID.String(),
	}, &granted)
	if err != nil {
		return 0, fmt.Errorf("bootstrap access: %w", err)
	}
	return granted, nil
}

// CreateTeam creates a team and joins it as admin.
func (m *AgentMemory) CreateTeam(ctx context.Context, name, description string) (*Team, error) {
	agent, err := m.Agent()
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"name":        name,
		"description": description,
		"created_by":  agent.ID.String(),
	}
	var rows []Team
	if err := m.db.Rest(ctx, http.MethodPost, "mb_teams", nil, payload, &rows); err != nil {
		return nil, fmt.Errorf("create team %q: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create team %q: no row returned", name)
	}
	team := rows[0]

	if err := m.JoinTeam(ctx, team.ID, "admin"); err != nil {
		return nil, fmt.Errorf("create team %q: join as admin: %w", name, err)
	}
	return &team, nil
}

// JoinTeam adds the agent to an existing team.
func (m *AgentMemory) JoinTeam(ctx context.Context, teamID uuid.UUID, role string) error {
	agent, err := m.Agent()
	if err != nil {
		return err
	}
	if role == "" {
		role = "member"
	}

	payload := map[string]any{
		"team_id":  teamID.String(),
		"agent_id": agent.ID.String(),
		"role":     role,
	}
	if err := m.db.Rest(ctx, http.MethodPost, "mb_team_members", nil, payload, nil); err != nil {
		return fmt.Errorf("join team %s: %w", teamID, err)
	}
	return nil
}

// ListTeams returns the teams this agent belongs to, resolved through the
// membership table's embedded join.
func (m *AgentMemory) ListTeams(ctx context.Context) ([]Team, error) {
	agent, err := m.Agent()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("agent_id", "eq."+agent.ID.String())
	params.Set("select", "team_id,role,mb_teams(id,name,description,created_at)")

	var rows []struct {
		Team *Team `json:"mb_teams"`
	}
	if err := m.db.Rest(ctx, http.MethodGet, "mb_team_members", params, nil, &rows); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	teams := make([]Team, 0, len(rows))
	for _, row := range rows {
		if row.Team != nil {
			teams = append(teams, *row.Team)
		}
	}
	return teams, nil
}

// Stats returns the agent's memory statistics from the stats SQL function.
func (m *AgentMemory) Stats(ctx context.Context) (map[string]any, error) {
	agent, err := m.Agent()
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	err = m.db.RPC(ctx, "mb_agent_stats", map[string]any{
		"p_agent_id": agent.ID.String(),
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("agent stats: %w", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err == nil {
		if len(rows) == 0 {
			return map[string]any{}, nil
		}
		return rows[0], nil
	}
	var stats map[string]any
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("agent stats: failed to decode %s", strings.TrimSpace(string(raw)))
	}
	return stats, nil
}

// logAccess records a memory hit in the append-only access log. Failures
// are logged and dropped so recall never breaks on bookkeeping.
func (m *AgentMemory) logAccess(ctx context.Context, memoryID uuid.UUID) {
	err := m.db.RPC(ctx, "mb_log_access", map[string]any{
		"p_memory_id": memoryID.String(),
		"p_agent_id":  m.agent.ID.String(),
	}, nil)
	if err != nil {
		logging.FromContext(ctx).DebugContext(ctx, "memory access log failed", "memory", memoryID, "error", err)
	}
}
