// Package kb is the client for the hosted knowledgebase database. It talks
// to the database's REST interface (PostgREST conventions) for table access
// and to SQL functions through the RPC endpoint for vector search.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"knowledgebase/internal/logging"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Embedder turns query text into a vector for search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config carries the connection settings for a Client.
type Config struct {
	// BaseURL is the database project URL, without a trailing slash.
	BaseURL string
	// APIKey is sent as both the apikey header and the bearer token.
	APIKey string
	// TablePrefix namespaces the tables and SQL functions, e.g. "kb".
	TablePrefix string

	// DefaultMatchCount is the search result limit when the caller passes 0.
	DefaultMatchCount int
	// SimilarityThreshold is the default minimum similarity for semantic
	// search.
	SimilarityThreshold float64
	// SemanticWeight is the default semantic-vs-keyword weight for hybrid
	// search.
	SemanticWeight float64
}

// Client accesses the knowledgebase tables and search functions.
// Safe for concurrent use.
type Client struct {
	cfg      Config
	embedder Embedder
	client   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient returns a Client for the given database. embedder is used to
// embed search queries; it may be nil when only non-search operations are
// needed.
func NewClient(cfg Config, embedder Embedder, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	c := &Client{
		cfg:      cfg,
		embedder: embedder,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) sourcesTable() string { return c.cfg.TablePrefix + "_sources" }
func (c *Client) chunksTable() string  { return c.cfg.TablePrefix + "_chunks" }

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// Rest sends a request against a table endpoint. When out is non-nil the
// response body is decoded into it and, for writes, the representation is
// requested back. The memory layer builds on this for its own tables.
func (c *Client) Rest(ctx context.Context, method, table string, params url.Values, payload, out any) error {
	endpoint := c.cfg.BaseURL + "/rest/v1/" + table
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	if out != nil && (method == http.MethodPost || method == http.MethodPatch) {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("database request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// RPC calls a SQL function through the REST RPC endpoint and decodes the
// result into out (which may be nil). The function name is used as given,
// without the table prefix.
func (c *Client) RPC(ctx context.Context, fn string, params, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal rpc params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/rest/v1/rpc/"+fn, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s failed: %w", fn, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("rpc %s: %w", fn, httpError(resp))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode rpc %s response: %w", fn, err)
		}
	}
	return nil
}

// prefixedRPC calls a SQL function namespaced by the table prefix.
func (c *Client) prefixedRPC(ctx context.Context, suffix string, params, out any) error {
	return c.RPC(ctx, c.cfg.TablePrefix+suffix, params, out)
}

func httpError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return fmt.Errorf("bad status %d", resp.StatusCode)
	}
	return fmt.Errorf("bad status %d: %s", resp.StatusCode, text)
}

// AddSource inserts a source row and returns it.
func (c *Client) AddSource(ctx context.Context, sourceURL, title, sourceType string, metadata map[string]any) (*Source, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload := map[string]any{
		"url":         sourceURL,
		"title":       title,
		"source_type": sourceType,
		"metadata":    metadata,
	}

	var rows []Source
	if err := c.Rest(ctx, http.MethodPost, c.sourcesTable(), nil, payload, &rows); err != nil {
		return nil, fmt.Errorf("add source: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("add source: no row returned")
	}
	return &rows[0], nil
}

// GetSource fetches a source by URL. Returns ErrNotFound when absent.
func (c *Client) GetSource(ctx context.Context, sourceURL string) (*Source, error) {
	params := url.Values{}
	params.Set("url", "eq."+sourceURL)

	var rows []Source
	if err := c.Rest(ctx, http.MethodGet, c.sourcesTable(), params, nil, &rows); err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("get source %q: %w", sourceURL, ErrNotFound)
	}
	return &rows[0], nil
}

// ListSources returns up to limit sources.
func (c *Client) ListSources(ctx context.Context, limit int) ([]Source, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("order", "created_at.desc")

	var rows []Source
	if err := c.Rest(ctx, http.MethodGet, c.sourcesTable(), params, nil, &rows); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return rows, nil
}

// GetSourceByID fetches a source by id. Returns ErrNotFound when absent.
func (c *Client) GetSourceByID(ctx context.Context, id ID) (*Source, error) {
	params := url.Values{}
	params.Set("id", "eq."+id.String())

	var rows []Source
	if err := c.Rest(ctx, http.MethodGet, c.sourcesTable(), params, nil, &rows); err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("get source %s: %w", id, ErrNotFound)
	}
	return &rows[0], nil
}

// UpdateSourceMetadata replaces a source's metadata object.
func (c *Client) UpdateSourceMetadata(ctx context.Context, id ID, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	params := url.Values{}
	params.Set("id", "eq."+id.String())

	payload := map[string]any{"metadata": metadata}
	if err := c.Rest(ctx, http.MethodPatch, c.sourcesTable(), params, payload, nil); err != nil {
		return fmt.Errorf("update source %s metadata: %w", id, err)
	}
	return nil
}

// DeleteSource removes a source row and its chunks.
func (c *Client) DeleteSource(ctx context.Context, id ID) error {
	params := url.Values{}
	params.Set("source_id", "eq."+id.String())
	if err := c.Rest(ctx, http.MethodDelete, c.chunksTable(), params, nil, nil); err != nil {
		return fmt.Errorf("delete chunks for source %s: %w", id, err)
	}

	params = url.Values{}
	params.Set("id", "eq."+id.String())
	if err := c.Rest(ctx, http.MethodDelete, c.sourcesTable(), params, nil, nil); err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	return nil
}

// AddChunk inserts a single chunk row.
func (c *Client) AddChunk(ctx context.Context, chunk NewChunk) error {
	if chunk.Metadata == nil {
		chunk.Metadata = map[string]any{}
	}
	if err := c.Rest(ctx, http.MethodPost, c.chunksTable(), nil, chunk, nil); err != nil {
		return fmt.Errorf("add chunk: %w", err)
	}
	return nil
}

// AddChunksBatch inserts chunks in one request and returns the number
// inserted.
func (c *Client) AddChunksBatch(ctx context.Context, chunks []NewChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = map[string]any{}
		}
	}
	if err := c.Rest(ctx, http.MethodPost, c.chunksTable(), nil, chunks, nil); err != nil {
		return 0, fmt.Errorf("add chunks batch: %w", err)
	}
	return len(chunks), nil
}

// ChunksWithoutEmbeddings returns up to limit chunks whose embedding column
// is null, oldest first.
func (c *Client) ChunksWithoutEmbeddings(ctx context.Context, limit int) ([]StoredChunk, error) {
	if limit <= 0 {
		limit = 50
	}
	params := url.Values{}
	params.Set("embedding", "is.null")
	params.Set("select", "id,source_id,chunk_index,content,metadata")
	params.Set("order", "id.asc")
	params.Set("limit", strconv.Itoa(limit))

	var rows []StoredChunk
	if err := c.Rest(ctx, http.MethodGet, c.chunksTable(), params, nil, &rows); err != nil {
		return nil, fmt.Errorf("chunks without embeddings: %w", err)
	}
	return rows, nil
}

// UpdateChunkEmbedding sets the embedding column for one chunk.
func (c *Client) UpdateChunkEmbedding(ctx context.Context, id ID, embedding []float32) error {
	params := url.Values{}
	params.Set("id", "eq."+id.String())

	payload := map[string]any{"embedding": embedding}
	if err := c.Rest(ctx, http.MethodPatch, c.chunksTable(), params, payload, nil); err != nil {
		return fmt.Errorf("update chunk embedding %s: %w", id, err)
	}
	return nil
}

// CountChunks counts chunk rows using a HEAD request with an exact count,
// parsed from the Content-Range header.
func (c *Client) CountChunks(ctx context.Context, filter CountFilter) (int, error) {
	params := url.Values{}
	params.Set("select", "id")
	switch filter {
	case CountWithEmbeddings:
		params.Set("embedding", "not.is.null")
	case CountWithoutEmbeddings:
		params.Set("embedding", "is.null")
	}

	endpoint := c.cfg.BaseURL + "/rest/v1/" + c.chunksTable() + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "count=exact")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("count chunks: bad status %d", resp.StatusCode)
	}
	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

// parseContentRangeTotal extracts the total from a "lo-hi/total" header.
func parseContentRangeTotal(header string) (int, error) {
	_, total, found := strings.Cut(header, "/")
	if !found {
		return 0, fmt.Errorf("malformed content-range %q", header)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("malformed content-range %q: %w", header, err)
	}
	return n, nil
}

// SearchOptions tunes a search call. Zero values select the configured
// defaults.
type SearchOptions struct {
	Limit int
	// Threshold is the minimum similarity for semantic search.
	Threshold float64
	// SemanticWeight is the semantic-vs-keyword weight for hybrid search.
	SemanticWeight float64
}

// SearchSemantic embeds the query and ranks chunks by vector similarity.
func (c *Client) SearchSemantic(ctx context.Context, query string, opts SearchOptions) ([]StoredChunk, error) {
	embedding, err := c.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if embedding == nil {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = c.cfg.DefaultMatchCount
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = c.cfg.SimilarityThreshold
	}

	var rows []StoredChunk
	err = c.prefixedRPC(ctx, "_search_semantic", map[string]any{
		"query_embedding":      embedding,
		"match_count":          limit,
		"similarity_threshold": threshold,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return rows, nil
}

// SearchHybrid embeds the query and ranks chunks by a weighted blend of
// vector similarity and keyword match. The combined score is surfaced as
// Similarity.
func (c *Client) SearchHybrid(ctx context.Context, query string, opts SearchOptions) ([]StoredChunk, error) {
	embedding, err := c.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if embedding == nil {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = c.cfg.DefaultMatchCount
	}
	weight := opts.SemanticWeight
	if weight == 0 {
		weight = c.cfg.SemanticWeight
	}

	var rows []hybridResult
	err = c.prefixedRPC(ctx, "_search_hybrid", map[string]any{
		"query_embedding": embedding,
		"query_text":      query,
		"match_count":     limit,
		"semantic_weight": weight,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	chunks := make([]StoredChunk, len(rows))
	for i, r := range rows {
		chunks[i] = r.StoredChunk
		chunks[i].Similarity = r.CombinedScore
	}
	return chunks, nil
}

type hybridResult struct {
	StoredChunk
	CombinedScore *float64 `json:"combined_score"`
}

func (c *Client) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("search requires an embedding provider")
	}
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return embedding, nil
}

// Stats returns knowledgebase statistics. It asks the stats SQL function
// first and falls back to counting through the table endpoints when the
// function is not installed.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	if stats, err := c.statsRPC(ctx); err == nil && stats != nil {
		return stats, nil
	} else if err != nil {
		logger := logging.FromContext(ctx)
		logger.DebugContext(ctx, "stats function unavailable, counting manually", "error", err)
	}

	total, err := c.CountChunks(ctx, CountAll)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	embedded, err := c.CountChunks(ctx, CountWithEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	sources, err := c.ListSources(ctx, 1000)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	return &Stats{
		TotalSources:            len(sources),
		TotalChunks:             total,
		ChunksWithEmbeddings:    embedded,
		ChunksWithoutEmbeddings: total - embedded,
	}, nil
}

// statsRPC calls the stats SQL function, tolerating both the single-object
// and single-row-array response shapes.
func (c *Client) statsRPC(ctx context.Context) (*Stats, error) {
	var raw json.RawMessage
	if err := c.prefixedRPC(ctx, "_stats", nil, &raw); err != nil {
		return nil, err
	}

	var rows []Stats
	if err := json.Unmarshal(raw, &rows); err == nil {
		if len(rows) == 0 {
			return nil, nil
		}
		return &rows[0], nil
	}

	var stats Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &stats, nil
}
