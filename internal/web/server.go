// Package web serves the HTTP API and dashboard for the knowledgebase:
// search, source management, tags, exports, and background crawl and upload
// jobs.
package web

import (
	"context"
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"knowledgebase/internal/crawler"
	"knowledgebase/internal/kb"
	"knowledgebase/internal/parser"
	"knowledgebase/internal/search"
)

//go:embed dashboard.html
var dashboardHTML string

// Store is the slice of the knowledgebase client the server reads and
// writes.
type Store interface {
	Stats(ctx context.Context) (*kb.Stats, error)
	ListSources(ctx context.Context, limit int) ([]kb.Source, error)
	GetSourceByID(ctx context.Context, id kb.ID) (*kb.Source, error)
	UpdateSourceMetadata(ctx context.Context, id kb.ID, metadata map[string]any) error
	DeleteSource(ctx context.Context, id kb.ID) error
}

// Ingestor stores crawled pages and uploaded documents.
type Ingestor interface {
	IngestPage(ctx context.Context, page *crawler.Page) (int, error)
	IngestDocument(ctx context.Context, doc *parser.Document) (int, error)
}

// Crawler fetches pages for ingestion jobs.
type Crawler interface {
	FetchPage(ctx context.Context, pageURL string) (*crawler.Page, error)
	CrawlSite(ctx context.Context, startURL string, opts crawler.CrawlOptions, visit func(crawler.Page) error) (int, error)
}

// Pinger reports embedding provider availability for health checks.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) (string, error)
}

// Server holds the HTTP API dependencies.
type Server struct {
	store    Store
	searcher search.Searcher
	ingestor Ingestor
	crawler  Crawler
	pinger   Pinger
	jobs     *JobRegistry
}

// NewServer wires the API. pinger may be nil when no embedding provider is
// configured.
func NewServer(store Store, searcher search.Searcher, ingestor Ingestor, crawl Crawler, pinger Pinger) *Server {
	return &Server{
		store:    store,
		searcher: searcher,
		ingestor: ingestor,
		crawler:  crawl,
		pinger:   pinger,
		jobs:     NewJobRegistry(),
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors)

	r.Get("/", s.handleDashboard)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/search", s.handleSearch)
		r.Get("/export/search", s.handleExportSearch)

		r.Get("/sources", s.handleListSources)
		r.Delete("/sources/{id}", s.handleDeleteSource)
		r.Get("/sources/{id}/tags", s.handleGetTags)
		r.Put("/sources/{id}/tags", s.handleSetTags)
		r.Post("/sources/{id}/tags", s.handleAddTag)
		r.Delete("/sources/{id}/tags/{tag}", s.handleRemoveTag)
		r.Get("/tags", s.handleListAllTags)

		r.Post("/crawl", s.handleCrawl)
		r.Post("/upload", s.handleUpload)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleJobStatus)
	})

	return r
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(dashboardHTML))
}
