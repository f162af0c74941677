package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"knowledgebase/internal/crawler"
	"knowledgebase/internal/logging"
	"knowledgebase/internal/parser"
)

const crawlJobMaxPages = 50

type crawlRequest struct {
	URL      string `json:"url"`
	MaxDepth int    `json:"max_depth"`
	Title    string `json:"title"`
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeError(w, http.StatusBadRequest, "url must start with http:// or https://")
		return
	}

	jobID := s.jobs.Create(Job{Type: "crawl", URL: req.URL})

	// The job outlives the request; keep only the logger from its context.
	jobCtx := logging.WithLogger(context.Background(), logging.FromContext(r.Context()))
	go s.runCrawlJob(jobCtx, jobID, req)

	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "status": "started"})
}

func (s *Server) runCrawlJob(ctx context.Context, jobID string, req crawlRequest) {
	logger := logging.FromContext(ctx)
	s.jobs.Update(jobID, func(j *Job) { j.Status = JobRunning })

	fail := func(err error) {
		logger.ErrorContext(ctx, "crawl job failed", "job_id", jobID, "url", req.URL, "error", err)
		s.jobs.Update(jobID, func(j *Job) {
			j.Status = JobError
			j.Error = err.Error()
		})
	}

	pages := 0
	chunks := 0
	ingestPage := func(page *crawler.Page) error {
		if req.Title != "" && pages == 0 {
			page.Title = req.Title
		}
		n, err := s.ingestor.IngestPage(ctx, page)
		if err != nil {
			return err
		}
		pages++
		chunks += n
		s.jobs.Update(jobID, func(j *Job) {
			j.Progress = pages
			j.Current = page.URL
		})
		return nil
	}

	if req.MaxDepth == 0 {
		page, err := s.crawler.FetchPage(ctx, req.URL)
		if err != nil {
			fail(err)
			return
		}
		if err := ingestPage(page); err != nil {
			fail(err)
			return
		}
	} else {
		opts := crawler.CrawlOptions{
			MaxDepth:       req.MaxDepth,
			MaxPages:       crawlJobMaxPages,
			SameDomainOnly: true,
		}
		_, err := s.crawler.CrawlSite(ctx, req.URL, opts, func(page crawler.Page) error {
			return ingestPage(&page)
		})
		if err != nil {
			fail(err)
			return
		}
		if pages == 0 {
			fail(fmt.Errorf("no pages crawled from %s", req.URL))
			return
		}
	}

	logger.InfoContext(ctx, "crawl job completed", "job_id", jobID, "pages", pages, "chunks", chunks)
	s.jobs.Update(jobID, func(j *Job) {
		j.Status = JobCompleted
		j.Result = map[string]any{
			"pages_crawled":  pages,
			"chunks_created": chunks,
		}
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	suffix := filepath.Ext(header.Filename)
	if suffix == "" {
		suffix = ".txt"
	}
	tmp, err := os.CreateTemp("", "kb-upload-*"+suffix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	_ = tmp.Close()

	title := r.FormValue("title")
	jobID := s.jobs.Create(Job{Type: "upload", Filename: header.Filename, Total: 1})

	jobCtx := logging.WithLogger(context.Background(), logging.FromContext(r.Context()))
	go s.runUploadJob(jobCtx, jobID, tmp.Name(), title)

	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "status": "started"})
}

func (s *Server) runUploadJob(ctx context.Context, jobID, path, title string) {
	logger := logging.FromContext(ctx)
	s.jobs.Update(jobID, func(j *Job) {
		j.Status = JobRunning
		j.Current = "parsing document"
	})
	defer func() {
		_ = os.Remove(path)
	}()

	fail := func(err error) {
		logger.ErrorContext(ctx, "upload job failed", "job_id", jobID, "error", err)
		s.jobs.Update(jobID, func(j *Job) {
			j.Status = JobError
			j.Error = err.Error()
		})
	}

	doc, err := parser.ParseFile(path)
	if err != nil {
		fail(err)
		return
	}
	if title != "" {
		doc.Title = title
	}

	s.jobs.Update(jobID, func(j *Job) { j.Current = "storing chunks" })
	chunks, err := s.ingestor.IngestDocument(ctx, doc)
	if err != nil {
		fail(err)
		return
	}

	logger.InfoContext(ctx, "upload job completed", "job_id", jobID, "chunks", chunks)
	s.jobs.Update(jobID, func(j *Job) {
		j.Status = JobCompleted
		j.Progress = 1
		j.Result = map[string]any{"chunks_created": chunks}
	})
}
