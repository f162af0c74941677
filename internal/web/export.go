package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"knowledgebase/internal/logging"
	"knowledgebase/internal/search"
)

// handleExportSearch runs a search and returns the results as a download in
// json, markdown, or html format.
func (s *Server) handleExportSearch(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	results, err := s.runSearch(r)
	if err != nil {
		if errors.Is(err, errMissingQuery) {
			writeError(w, http.StatusBadRequest, "query parameter q is required")
			return
		}
		ctx := r.Context()
		logging.FromContext(ctx).ErrorContext(ctx, "export search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	q := r.URL.Query().Get("q")
	switch format {
	case "json":
		writeJSON(w, http.StatusOK, results)
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.md", exportFilename(q)))
		_, _ = w.Write([]byte(exportMarkdown(q, results)))
	case "html":
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(exportMarkdown(q, results)), &buf); err != nil {
			ctx := r.Context()
			logging.FromContext(ctx).ErrorContext(ctx, "failed to render export", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to render export")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = buf.WriteTo(w)
	default:
		writeError(w, http.StatusBadRequest, "unknown format, use: json, markdown, html")
	}
}

func exportMarkdown(query string, results []search.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Search Results: %s\n\n", query)
	fmt.Fprintf(&b, "Found %d results\n\n", len(results))

	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "## %d. [%.0f%%] %s\n", i+1, r.Similarity*100, title)
		if r.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", r.URL)
		}
		b.WriteString("\n")

		content := r.Content
		if runes := []rune(content); len(runes) > 500 {
			content = string(runes[:500])
		}
		b.WriteString(content)
		b.WriteString("\n\n---\n\n")
	}
	return b.String()
}

// exportFilename derives a short, safe filename stem from the query.
func exportFilename(query string) string {
	if runes := []rune(query); len(runes) > 20 {
		query = string(runes[:20])
	}
	query = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, query)
	return "search-" + strings.Trim(query, "-")
}
