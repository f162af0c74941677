package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"knowledgebase/internal/crawler"
	"knowledgebase/internal/kb"
	"knowledgebase/internal/parser"
)

type stubStore struct {
	stats      *kb.Stats
	sources    []kb.Source
	sourceByID map[kb.ID]*kb.Source
	updated    map[string]map[string]any
	deleted    []kb.ID
	err        error
}

func (s *stubStore) Stats(ctx context.Context) (*kb.Stats, error) {
	return s.stats, s.err
}

func (s *stubStore) ListSources(ctx context.Context, limit int) ([]kb.Source, error) {
	return s.sources, s.err
}

func (s *stubStore) GetSourceByID(ctx context.Context, id kb.ID) (*kb.Source, error) {
	if src, ok := s.sourceByID[id]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("get source %s: %w", id, kb.ErrNotFound)
}

func (s *stubStore) UpdateSourceMetadata(ctx context.Context, id kb.ID, metadata map[string]any) error {
	if s.updated == nil {
		s.updated = map[string]map[string]any{}
	}
	s.updated[id.String()] = metadata
	return s.err
}

func (s *stubStore) DeleteSource(ctx context.Context, id kb.ID) error {
	s.deleted = append(s.deleted, id)
	return s.err
}

type stubSearcher struct {
	results  []kb.StoredChunk
	err      error
	gotQuery string
	gotOpts  kb.SearchOptions
	hybrid   bool
}

func (s *stubSearcher) SearchSemantic(ctx context.Context, query string, opts kb.SearchOptions) ([]kb.StoredChunk, error) {
	s.gotQuery, s.gotOpts, s.hybrid = query, opts, false
	return s.results, s.err
}

func (s *stubSearcher) SearchHybrid(ctx context.Context, query string, opts kb.SearchOptions) ([]kb.StoredChunk, error) {
	s.gotQuery, s.gotOpts, s.hybrid = query, opts, true
	return s.results, s.err
}

type stubIngestor struct {
	pages     []string
	documents []string
	chunks    int
	err       error
}

func (s *stubIngestor) IngestPage(ctx context.Context, page *crawler.Page) (int, error) {
	s.pages = append(s.pages, page.URL)
	return s.chunks, s.err
}

func (s *stubIngestor) IngestDocument(ctx context.Context, doc *parser.Document) (int, error) {
	s.documents = append(s.documents, doc.Title)
	return s.chunks, s.err
}

type stubCrawler struct {
	page  *crawler.Page
	pages []crawler.Page
	err   error
}

func (s *stubCrawler) FetchPage(ctx context.Context, pageURL string) (*crawler.Page, error) {
	return s.page, s.err
}

func (s *stubCrawler) CrawlSite(ctx context.Context, startURL string, opts crawler.CrawlOptions, visit func(crawler.Page) error) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	for _, p := range s.pages {
		if err := visit(p); err != nil {
			return 0, err
		}
	}
	return len(s.pages), nil
}

type stubPinger struct {
	msg string
	err error
}

func (s *stubPinger) Name() string { return "Stub" }

func (s *stubPinger) Ping(ctx context.Context) (string, error) {
	return s.msg, s.err
}

func newTestServer(t *testing.T, store *stubStore, searcher *stubSearcher, ingestor *stubIngestor, crawl *stubCrawler, pinger Pinger) (*Server, *httptest.Server) {
	t.Helper()
	if store == nil {
		store = &stubStore{stats: &kb.Stats{}}
	}
	if searcher == nil {
		searcher = &stubSearcher{}
	}
	if ingestor == nil {
		ingestor = &stubIngestor{}
	}
	if crawl == nil {
		crawl = &stubCrawler{}
	}
	srv := NewServer(store, searcher, ingestor, crawl, pinger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func waitForJob(t *testing.T, s *Server, jobID string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := s.jobs.Get(jobID)
		if !ok {
			t.Fatalf("job %s not found", jobID)
		}
		if job.Status == JobCompleted || job.Status == JobError {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return Job{}
}

func TestDashboard(t *testing.T) {
	_, ts := newTestServer(t, nil, nil, nil, nil, nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Knowledgebase") {
		t.Error("dashboard body missing title")
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pinger     Pinger
		wantStatus string
		wantOK     bool
	}{
		{"provider up", &stubPinger{msg: "Ollama OK"}, "ok", true},
		{"provider down", &stubPinger{err: errors.New("connection refused")}, "degraded", false},
		{"no provider", nil, "ok", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, nil, nil, nil, nil, tt.pinger)

			var body struct {
				Status   string         `json:"status"`
				Provider map[string]any `json:"provider"`
			}
			getJSON(t, ts.URL+"/api/health", &body)

			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if ok, _ := body.Provider["ok"].(bool); ok != tt.wantOK {
				t.Errorf("provider.ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestStats(t *testing.T) {
	store := &stubStore{stats: &kb.Stats{TotalSources: 3, TotalChunks: 40, ChunksWithEmbeddings: 35, ChunksWithoutEmbeddings: 5}}
	_, ts := newTestServer(t, store, nil, nil, nil, nil)

	var stats kb.Stats
	getJSON(t, ts.URL+"/api/stats", &stats)
	if stats.TotalChunks != 40 || stats.ChunksWithoutEmbeddings != 5 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSearch(t *testing.T) {
	sim := 0.9
	searcher := &stubSearcher{results: []kb.StoredChunk{{ID: "1", Title: "Hit", Content: "match", Similarity: &sim}}}
	_, ts := newTestServer(t, nil, searcher, nil, nil, nil)

	var results []map[string]any
	resp := getJSON(t, ts.URL+"/api/search?q=widgets&limit=5&threshold=0.4", &results)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if searcher.gotQuery != "widgets" || searcher.gotOpts.Limit != 5 || searcher.gotOpts.Threshold != 0.4 {
		t.Errorf("forwarded query %q opts %+v", searcher.gotQuery, searcher.gotOpts)
	}
	if searcher.hybrid {
		t.Error("hybrid search used without hybrid=true")
	}
	if len(results) != 1 || results[0]["title"] != "Hit" {
		t.Errorf("results = %v", results)
	}
}

func TestSearch_Hybrid(t *testing.T) {
	searcher := &stubSearcher{}
	_, ts := newTestServer(t, nil, searcher, nil, nil, nil)

	getJSON(t, ts.URL+"/api/search?q=widgets&hybrid=true", nil)
	if !searcher.hybrid {
		t.Error("hybrid=true should use hybrid search")
	}
}

func TestSearch_MissingQuery(t *testing.T) {
	_, ts := newTestServer(t, nil, nil, nil, nil, nil)

	resp := getJSON(t, ts.URL+"/api/search", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListSources(t *testing.T) {
	store := &stubStore{sources: []kb.Source{
		{ID: "1", URL: "https://example.com", Title: "Example", SourceType: "web"},
	}}
	_, ts := newTestServer(t, store, nil, nil, nil, nil)

	var sources []map[string]any
	getJSON(t, ts.URL+"/api/sources", &sources)
	if len(sources) != 1 || sources[0]["source_type"] != "web" {
		t.Errorf("sources = %v", sources)
	}
}

func TestDeleteSource(t *testing.T) {
	store := &stubStore{}
	_, ts := newTestServer(t, store, nil, nil, nil, nil)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sources/42", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "42" {
		t.Errorf("deleted = %v", store.deleted)
	}
}

func TestTags_Get(t *testing.T) {
	store := &stubStore{sourceByID: map[kb.ID]*kb.Source{
		"9": {ID: "9", Metadata: map[string]any{"tags": []any{"go", "docs"}}},
	}}
	_, ts := newTestServer(t, store, nil, nil, nil, nil)

	var body tagsResponse
	getJSON(t, ts.URL+"/api/sources/9/tags", &body)
	if len(body.Tags) != 2 || body.Tags[0] != "go" {
		t.Errorf("tags = %v", body.Tags)
	}
}

func TestTags_GetNotFound(t *testing.T) {
	_, ts := newTestServer(t, &stubStore{}, nil, nil, nil, nil)

	resp := getJSON(t, ts.URL+"/api/sources/404/tags", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestTags_Set(t *testing.T) {
	store := &stubStore{sourceByID: map[kb.ID]*kb.Source{"9": {ID: "9"}}}
	_, ts := newTestServer(t, store, nil, nil, nil, nil)

	body := bytes.NewBufferString(`{"tags":["a","b"]}`)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/sources/9/tags", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	meta := store.updated["9"]
	if meta == nil {
		t.Fatal("metadata not updated")
	}
	tags, _ := meta["tags"].([]string)
	if len(tags) != 2 {
		t.Errorf("stored tags = %v", meta["tags"])
	}
}

func TestTags_AddDeduplicates(t *testing.T) {
	store := &stubStore{sourceByID: map[kb.ID]*kb.Source{
		"9": {ID: "9", Metadata: map[string]any{"tags": []any{"go"}}},
	}}
	_, ts := newTestServer(t, store, nil, nil, nil, nil)

	resp, err := http.Post(ts.URL+"/api/sources/9/tags", "application/json", strings.NewReader(`{"tag":"go"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if store.updated != nil {
		t.Error("duplicate tag should not trigger an update")
	}
}

func TestTags_Remove(t *testing.T) {
	store := &stubStore{sourceByID: map[kb.ID]*kb.Source{
		"9": {ID: "9", Metadata: map[string]any{"tags": []any{"go", "docs"}}},
	}}
	_, ts := newTestServer(t, store, nil, nil, nil, nil)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sources/9/tags/go", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	meta := store.updated["9"]
	if meta == nil {
		t.Fatal("metadata not updated")
	}
	tags, _ := meta["tags"].([]string)
	if len(tags) != 1 || tags[0] != "docs" {
		t.Errorf("stored tags = %v", meta["tags"])
	}
}

func TestTags_ListAll(t *testing.T) {
	store := &stubStore{sources: []kb.Source{
		{ID: "1", Metadata: map[string]any{"tags": []any{"go", "docs"}}},
		{ID: "2", Metadata: map[string]any{"tags": []any{"go", "api"}}},
		{ID: "3"},
	}}
	_, ts := newTestServer(t, store, nil, nil, nil, nil)

	var body tagsResponse
	getJSON(t, ts.URL+"/api/tags", &body)
	want := []string{"api", "docs", "go"}
	if len(body.Tags) != 3 || body.Tags[0] != want[0] || body.Tags[2] != want[2] {
		t.Errorf("tags = %v, want %v", body.Tags, want)
	}
}

func TestCrawl_SinglePage(t *testing.T) {
	ingestor := &stubIngestor{chunks: 4}
	crawl := &stubCrawler{page: &crawler.Page{URL: "https://example.com", Title: "Example", Content: "body"}}
	srv, ts := newTestServer(t, nil, nil, ingestor, crawl, nil)

	resp, err := http.Post(ts.URL+"/api/crawl", "application/json",
		strings.NewReader(`{"url":"https://example.com","max_depth":0}`))
	if err != nil {
		t.Fatal(err)
	}
	var started map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()

	jobID, _ := started["job_id"].(string)
	if jobID == "" {
		t.Fatalf("response = %v", started)
	}

	job := waitForJob(t, srv, jobID)
	if job.Status != JobCompleted {
		t.Fatalf("job = %+v", job)
	}
	if job.Result["chunks_created"] != 4 {
		t.Errorf("result = %v", job.Result)
	}
	if len(ingestor.pages) != 1 {
		t.Errorf("ingested pages = %v", ingestor.pages)
	}
}

func TestCrawl_Recursive(t *testing.T) {
	ingestor := &stubIngestor{chunks: 2}
	crawl := &stubCrawler{pages: []crawler.Page{
		{URL: "https://example.com/", Content: "a"},
		{URL: "https://example.com/b", Content: "b"},
	}}
	srv, ts := newTestServer(t, nil, nil, ingestor, crawl, nil)

	resp, err := http.Post(ts.URL+"/api/crawl", "application/json",
		strings.NewReader(`{"url":"https://example.com","max_depth":2}`))
	if err != nil {
		t.Fatal(err)
	}
	var started map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()

	job := waitForJob(t, srv, started["job_id"].(string))
	if job.Status != JobCompleted {
		t.Fatalf("job = %+v", job)
	}
	if job.Result["pages_crawled"] != 2 || job.Result["chunks_created"] != 4 {
		t.Errorf("result = %v", job.Result)
	}
}

func TestCrawl_InvalidURL(t *testing.T) {
	_, ts := newTestServer(t, nil, nil, nil, nil, nil)

	resp, err := http.Post(ts.URL+"/api/crawl", "application/json",
		strings.NewReader(`{"url":"ftp://example.com"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCrawl_FetchError(t *testing.T) {
	crawl := &stubCrawler{err: errors.New("unreachable")}
	srv, ts := newTestServer(t, nil, nil, nil, crawl, nil)

	resp, err := http.Post(ts.URL+"/api/crawl", "application/json",
		strings.NewReader(`{"url":"https://example.com","max_depth":0}`))
	if err != nil {
		t.Fatal(err)
	}
	var started map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()

	job := waitForJob(t, srv, started["job_id"].(string))
	if job.Status != JobError || !strings.Contains(job.Error, "unreachable") {
		t.Errorf("job = %+v", job)
	}
}

func TestUpload(t *testing.T) {
	ingestor := &stubIngestor{chunks: 3}
	srv, ts := newTestServer(t, nil, nil, ingestor, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "notes.md")
	_, _ = fw.Write([]byte("# Notes\n\nUploaded body text.\n"))
	_ = mw.WriteField("title", "My Notes")
	_ = mw.Close()

	resp, err := http.Post(ts.URL+"/api/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	var started map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()

	job := waitForJob(t, srv, started["job_id"].(string))
	if job.Status != JobCompleted {
		t.Fatalf("job = %+v", job)
	}
	if job.Result["chunks_created"] != 3 {
		t.Errorf("result = %v", job.Result)
	}
	if len(ingestor.documents) != 1 || ingestor.documents[0] != "My Notes" {
		t.Errorf("documents = %v", ingestor.documents)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	_, ts := newTestServer(t, nil, nil, nil, nil, nil)

	resp, err := http.Post(ts.URL+"/api/upload", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	_, ts := newTestServer(t, nil, nil, nil, nil, nil)

	resp := getJSON(t, ts.URL+"/api/jobs/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestExportSearch_Markdown(t *testing.T) {
	sim := 0.8
	searcher := &stubSearcher{results: []kb.StoredChunk{
		{ID: "1", Title: "Hit", URL: "https://example.com/a", Content: "match content", Similarity: &sim},
	}}
	_, ts := newTestServer(t, nil, searcher, nil, nil, nil)

	resp, err := http.Get(ts.URL + "/api/export/search?q=widgets&format=markdown")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/markdown") {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	if !strings.Contains(text, "# Search Results: widgets") {
		t.Errorf("body missing header:\n%s", text)
	}
	if !strings.Contains(text, "[80%] Hit") {
		t.Errorf("body missing result line:\n%s", text)
	}
}

func TestExportSearch_HTML(t *testing.T) {
	sim := 0.8
	searcher := &stubSearcher{results: []kb.StoredChunk{{ID: "1", Title: "Hit", Content: "x", Similarity: &sim}}}
	_, ts := newTestServer(t, nil, searcher, nil, nil, nil)

	resp, err := http.Get(ts.URL + "/api/export/search?q=widgets&format=html")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "<h1") {
		t.Errorf("body not rendered to HTML:\n%s", body)
	}
}

func TestExportSearch_UnknownFormat(t *testing.T) {
	_, ts := newTestServer(t, nil, &stubSearcher{}, nil, nil, nil)

	resp := getJSON(t, ts.URL+"/api/export/search?q=x&format=xml", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestJobRegistry(t *testing.T) {
	r := NewJobRegistry()

	id := r.Create(Job{Type: "crawl", URL: "https://example.com"})
	if id == "" {
		t.Fatal("empty job id")
	}

	job, ok := r.Get(id)
	if !ok || job.Status != JobPending || job.Type != "crawl" {
		t.Errorf("job = %+v", job)
	}

	r.Update(id, func(j *Job) { j.Status = JobRunning; j.Progress = 3 })
	job, _ = r.Get(id)
	if job.Status != JobRunning || job.Progress != 3 {
		t.Errorf("job after update = %+v", job)
	}

	if jobs := r.List(); len(jobs) != 1 {
		t.Errorf("List() = %v", jobs)
	}
}
