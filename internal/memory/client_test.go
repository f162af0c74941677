package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"knowledgebase/internal/kb"
)

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func newTestMemory(t *testing.T, handler http.Handler, embedder Embedder) *AgentMemory {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	db := kb.NewClient(kb.Config{
		BaseURL:     srv.URL,
		APIKey:      "svc-key",
		TablePrefix: "kb",
	}, nil)
	return New("test-agent", "kb_sk_secret", db, embedder)
}

func authenticate(t *testing.T, m *AgentMemory, agentID uuid.UUID) {
	t.Helper()
	m.agent = &Agent{ID: agentID, Name: "test-agent", AgentType: "openclaw", IsActive: true}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey("kb")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error: %v", err)
	}
	if !strings.HasPrefix(key, "kb_sk_") {
		t.Errorf("key = %q, want kb_sk_ prefix", key)
	}
	if got := len(strings.TrimPrefix(key, "kb_sk_")); got != 43 {
		t.Errorf("token length = %d, want 43", got)
	}

	other, err := GenerateAPIKey("kb")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error: %v", err)
	}
	if key == other {
		t.Error("two generated keys are identical")
	}
}

func TestAgentMemory_RequiresAuth(t *testing.T) {
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unauthenticated calls must not hit the server")
	}), &stubEmbedder{vec: []float32{1}})

	if _, err := m.Agent(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Agent() error = %v, want ErrNotAuthenticated", err)
	}
	if _, err := m.Remember(context.Background(), "x", RememberOptions{}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Remember() error = %v, want ErrNotAuthenticated", err)
	}
	if _, err := m.Recall(context.Background(), "x", RecallOptions{}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Recall() error = %v, want ErrNotAuthenticated", err)
	}
	if err := m.Forget(context.Background(), uuid.New()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Forget() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestAgentMemory_Register(t *testing.T) {
	agentID := uuid.New()
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/mb_register_agent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var params map[string]any
		_ = json.NewDecoder(r.Body).Decode(&params)
		if params["p_name"] != "test-agent" || params["p_api_key"] != "kb_sk_secret" {
			t.Errorf("params = %v", params)
		}
		fmt.Fprintf(w, "%q", agentID.String())
	}), nil)

	agent, err := m.Register(context.Background(), "Test Agent", "", nil)
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if agent.ID != agentID {
		t.Errorf("agent ID = %s, want %s", agent.ID, agentID.String())
	}
	if agent.AgentType != "openclaw" {
		t.Errorf("agent type = %q, want default openclaw", agent.AgentType)
	}
}

func TestAgentMemory_Authenticate(t *testing.T) {
	agentID := uuid.New()
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/mb_authenticate_agent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprintf(w, `[{"agent_id": %q, "agent_name": "test-agent", "agent_type": "openclaw"}]`, agentID.String())
	}), nil)

	agent, err := m.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if agent.ID != agentID || agent.Name != "test-agent" {
		t.Errorf("agent = %+v", agent)
	}

	if _, err := m.Agent(); err != nil {
		t.Errorf("Agent() after authenticate error: %v", err)
	}
}

func TestAgentMemory_AuthenticateInvalidKey(t *testing.T) {
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}), nil)

	if _, err := m.Authenticate(context.Background()); err == nil {
		t.Fatal("Authenticate() with invalid key succeeded")
	}
}

func TestAgentMemory_Remember(t *testing.T) {
	agentID := uuid.New()
	entryID := uuid.New()
	embedder := &stubEmbedder{vec: []float32{0.1, 0.2}}

	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/mb_memory" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["memory_type"] != "semantic" || payload["scope"] != "private" {
			t.Errorf("defaults not applied: %v", payload)
		}
		if payload["namespace"] != "default" {
			t.Errorf("namespace = %v", payload["namespace"])
		}
		if payload["embedding"] == nil {
			t.Error("embedding missing from payload")
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `[{"id": %q, "agent_id": %q, "memory_type": "semantic", "scope": "private", "content": "the fact"}]`, entryID.String(), agentID.String())
	}), embedder)
	authenticate(t, m, agentID)

	entry, err := m.Remember(context.Background(), "the fact", RememberOptions{})
	if err != nil {
		t.Fatalf("Remember() error: %v", err)
	}
	if entry.ID != entryID || entry.AgentName != "test-agent" {
		t.Errorf("entry = %+v", entry)
	}
	if embedder.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", embedder.calls)
	}
}

func TestAgentMemory_Recall(t *testing.T) {
	agentID := uuid.New()
	entryID := uuid.New()
	var accessLogged int

	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/rpc/mb_search_memory":
			var params map[string]any
			_ = json.NewDecoder(r.Body).Decode(&params)
			if mc, _ := params["p_match_count"].(float64); int(mc) != 10 {
				t.Errorf("p_match_count = %v, want default 10", params["p_match_count"])
			}
			if params["p_namespace"] != "project-x" {
				t.Errorf("p_namespace = %v", params["p_namespace"])
			}
			fmt.Fprintf(w, `[{"id": %q, "agent_id": %q, "memory_type": "semantic", "scope": "private", "content": "found", "similarity": 0.88}]`, entryID.String(), agentID.String())
		case "/rest/v1/rpc/mb_log_access":
			accessLogged++
			fmt.Fprint(w, `null`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}), &stubEmbedder{vec: []float32{0.5}})
	authenticate(t, m, agentID)

	entries, err := m.Recall(context.Background(), "what did I learn", RecallOptions{Namespace: "project-x"})
	if err != nil {
		t.Fatalf("Recall() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "found" {
		t.Errorf("entries = %+v", entries)
	}
	if accessLogged != 1 {
		t.Errorf("access logged %d times, want 1", accessLogged)
	}
}

func TestAgentMemory_RecallAccessLogFailureIgnored(t *testing.T) {
	agentID := uuid.New()
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/rpc/mb_search_memory":
			fmt.Fprintf(w, `[{"id": %q, "agent_id": %q, "memory_type": "episodic", "scope": "private", "content": "x"}]`, uuid.NewString(), agentID.String())
		case "/rest/v1/rpc/mb_log_access":
			http.Error(w, "locked", http.StatusConflict)
		}
	}), &stubEmbedder{vec: []float32{0.5}})
	authenticate(t, m, agentID)

	entries, err := m.Recall(context.Background(), "q", RecallOptions{})
	if err != nil {
		t.Fatalf("Recall() error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestAgentMemory_RecallAll(t *testing.T) {
	agentID := uuid.New()
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/mb_search_all" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `[
			{"result_type": "memory", "result_id": "m1", "content": "remembered", "similarity": 0.9},
			{"result_type": "rag", "result_id": "42", "content": "documented", "similarity": 0.8}
		]`)
	}), &stubEmbedder{vec: []float32{0.5}})
	authenticate(t, m, agentID)

	results, err := m.RecallAll(context.Background(), "q", 0, 0)
	if err != nil {
		t.Fatalf("RecallAll() error: %v", err)
	}
	if len(results) != 2 || results[0].ResultType != "memory" || results[1].ResultType != "rag" {
		t.Errorf("results = %+v", results)
	}
}

func TestAgentMemory_Forget(t *testing.T) {
	agentID := uuid.New()
	memoryID := uuid.New()
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("id") != "eq."+memoryID.String() {
			t.Errorf("id filter = %q", q.Get("id"))
		}
		// Scoped to the caller's own rows.
		if q.Get("agent_id") != "eq."+agentID.String() {
			t.Errorf("agent_id filter = %q", q.Get("agent_id"))
		}
		w.WriteHeader(http.StatusNoContent)
	}), nil)
	authenticate(t, m, agentID)

	if err := m.Forget(context.Background(), memoryID); err != nil {
		t.Fatalf("Forget() error: %v", err)
	}
}

func TestAgentMemory_UpdateMemoryReembedsContent(t *testing.T) {
	agentID := uuid.New()
	embedder := &stubEmbedder{vec: []float32{0.7}}
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["content"] != "new content" {
			t.Errorf("content = %v", payload["content"])
		}
		if payload["embedding"] == nil {
			t.Error("updated content must carry a fresh embedding")
		}
		w.WriteHeader(http.StatusNoContent)
	}), embedder)
	authenticate(t, m, agentID)

	content := "new content"
	if err := m.UpdateMemory(context.Background(), uuid.New(), UpdateOptions{Content: &content}); err != nil {
		t.Fatalf("UpdateMemory() error: %v", err)
	}
	if embedder.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", embedder.calls)
	}
}

func TestAgentMemory_CreateTeamJoinsAsAdmin(t *testing.T) {
	agentID := uuid.New()
	teamID := uuid.New()
	var joinedRole string

	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/mb_teams":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `[{"id": %q, "name": "research", "description": "the team"}]`, teamID.String())
		case "/rest/v1/mb_team_members":
			var payload map[string]any
			_ = json.NewDecoder(r.Body).Decode(&payload)
			joinedRole, _ = payload["role"].(string)
			if payload["team_id"] != teamID.String() {
				t.Errorf("team_id = %v", payload["team_id"])
			}
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}), nil)
	authenticate(t, m, agentID)

	team, err := m.CreateTeam(context.Background(), "research", "the team")
	if err != nil {
		t.Fatalf("CreateTeam() error: %v", err)
	}
	if team.ID != teamID {
		t.Errorf("team ID = %s, want %s", team.ID, teamID)
	}
	if joinedRole != "admin" {
		t.Errorf("joined role = %q, want admin", joinedRole)
	}
}

func TestAgentMemory_ListTeams(t *testing.T) {
	agentID := uuid.New()
	teamID := uuid.New()
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("select"); !strings.Contains(got, "mb_teams(") {
			t.Errorf("select = %q, want embedded team join", got)
		}
		fmt.Fprintf(w, `[{"team_id": %q, "role": "member", "mb_teams": {"id": %q, "name": "research"}}]`, teamID.String(), teamID.String())
	}), nil)
	authenticate(t, m, agentID)

	teams, err := m.ListTeams(context.Background())
	if err != nil {
		t.Fatalf("ListTeams() error: %v", err)
	}
	if len(teams) != 1 || teams[0].Name != "research" {
		t.Errorf("teams = %+v", teams)
	}
}

func TestAgentMemory_BootstrapAccess(t *testing.T) {
	agentID := uuid.New()
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/mb_bootstrap_agent_access" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `17`)
	}), nil)
	authenticate(t, m, agentID)

	n, err := m.BootstrapAccess(context.Background())
	if err != nil {
		t.Fatalf("BootstrapAccess() error: %v", err)
	}
	if n != 17 {
		t.Errorf("BootstrapAccess() = %d, want 17", n)
	}
}

func TestAgentMemory_Stats(t *testing.T) {
	agentID := uuid.New()
	m := newTestMemory(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"total_memories": 12, "episodic": 3}]`)
	}), nil)
	authenticate(t, m, agentID)

	stats, err := m.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats["total_memories"].(float64) != 12 {
		t.Errorf("stats = %v", stats)
	}
}
