package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"knowledgebase/internal/kb"
	"knowledgebase/internal/logging"
	"knowledgebase/internal/search"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := "ok"
	provider := map[string]any{"ok": false, "message": "no embedding provider configured"}

	if s.pinger != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		msg, err := s.pinger.Ping(checkCtx)
		if err != nil {
			status = "degraded"
			provider = map[string]any{"ok": false, "message": err.Error()}
		} else {
			provider = map[string]any{"ok": true, "message": msg}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"provider": provider,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "failed to load stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.runSearch(r)
	if err != nil {
		if errors.Is(err, errMissingQuery) {
			writeError(w, http.StatusBadRequest, "query parameter q is required")
			return
		}
		ctx := r.Context()
		logging.FromContext(ctx).ErrorContext(ctx, "search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

var errMissingQuery = errors.New("missing query")

// runSearch parses the shared search query parameters and executes the
// search. Used by both the search and export endpoints.
func (s *Server) runSearch(r *http.Request) ([]search.Result, error) {
	q := r.URL.Query().Get("q")
	if q == "" {
		return nil, errMissingQuery
	}

	opts := kb.SearchOptions{
		Limit:     queryInt(r, "limit", 10),
		Threshold: queryFloat(r, "threshold", 0),
	}

	if r.URL.Query().Get("hybrid") == "true" {
		return search.SearchHybrid(r.Context(), s.searcher, q, opts)
	}
	return search.Search(r.Context(), s.searcher, q, opts)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sources, err := s.store.ListSources(ctx, queryInt(r, "limit", 100))
	if err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "failed to list sources", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}

	type sourceResponse struct {
		ID         kb.ID  `json:"id"`
		URL        string `json:"url"`
		Title      string `json:"title"`
		SourceType string `json:"source_type"`
	}
	out := make([]sourceResponse, 0, len(sources))
	for _, src := range sources {
		out = append(out, sourceResponse{ID: src.ID, URL: src.URL, Title: src.Title, SourceType: src.SourceType})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := kb.ID(chi.URLParam(r, "id"))

	if err := s.store.DeleteSource(ctx, id); err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "failed to delete source", "source_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete source")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "source_id": id})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.List())
}

// --- Tags ---

type tagsResponse struct {
	Tags []string `json:"tags"`
}

// sourceTags pulls the tag list out of a source's metadata.
func sourceTags(src *kb.Source) []string {
	raw, ok := src.Metadata["tags"].([]any)
	if !ok {
		return []string{}
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

func (s *Server) loadSource(w http.ResponseWriter, r *http.Request) (*kb.Source, bool) {
	ctx := r.Context()
	id := kb.ID(chi.URLParam(r, "id"))

	src, err := s.store.GetSourceByID(ctx, id)
	if err != nil {
		if errors.Is(err, kb.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
		} else {
			logging.FromContext(ctx).ErrorContext(ctx, "failed to load source", "source_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load source")
		}
		return nil, false
	}
	return src, true
}

func (s *Server) saveTags(w http.ResponseWriter, r *http.Request, src *kb.Source, tags []string) {
	ctx := r.Context()

	metadata := src.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["tags"] = tags

	if err := s.store.UpdateSourceMetadata(ctx, src.ID, metadata); err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "failed to update tags", "source_id", src.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update tags")
		return
	}
	writeJSON(w, http.StatusOK, tagsResponse{Tags: tags})
}

func (s *Server) handleGetTags(w http.ResponseWriter, r *http.Request) {
	src, ok := s.loadSource(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tagsResponse{Tags: sourceTags(src)})
}

func (s *Server) handleSetTags(w http.ResponseWriter, r *http.Request) {
	src, ok := s.loadSource(w, r)
	if !ok {
		return
	}

	var req tagsResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}
	s.saveTags(w, r, src, req.Tags)
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	src, ok := s.loadSource(w, r)
	if !ok {
		return
	}

	var req struct {
		Tag string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tag == "" {
		writeError(w, http.StatusBadRequest, "tag is required")
		return
	}

	tags := sourceTags(src)
	for _, t := range tags {
		if t == req.Tag {
			writeJSON(w, http.StatusOK, tagsResponse{Tags: tags})
			return
		}
	}
	s.saveTags(w, r, src, append(tags, req.Tag))
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	src, ok := s.loadSource(w, r)
	if !ok {
		return
	}

	remove := chi.URLParam(r, "tag")
	tags := sourceTags(src)
	kept := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != remove {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(tags) {
		writeJSON(w, http.StatusOK, tagsResponse{Tags: tags})
		return
	}
	s.saveTags(w, r, src, kept)
}

func (s *Server) handleListAllTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sources, err := s.store.ListSources(ctx, 500)
	if err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "failed to list sources", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tags")
		return
	}

	seen := map[string]bool{}
	var tags []string
	for i := range sources {
		for _, t := range sourceTags(&sources[i]) {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	sort.Strings(tags)
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, tagsResponse{Tags: tags})
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func queryFloat(r *http.Request, name string, fallback float64) float64 {
	if v := r.URL.Query().Get(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
