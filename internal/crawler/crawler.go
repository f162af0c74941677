// Package crawler fetches web pages and converts them to markdown for
// ingestion. It extracts the readable main content of each page, the page
// title, and the outgoing links, and can walk whole sites or sitemaps.
package crawler

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// DefaultUserAgent identifies the crawler to servers.
const DefaultUserAgent = "OpenClaw-Knowledgebase/1.0"

const maxBodyBytes = 10 << 20

// Page is one fetched web page, with its content converted to markdown.
type Page struct {
	URL     string
	Title   string
	// Content is the readable main content as markdown.
	Content string
	// HTML is the raw page HTML.
	HTML string
	// ContentHash is the md5 hex digest of Content, used to detect
	// unchanged pages across crawls.
	ContentHash string
	// Links are the absolute outgoing links, deduplicated, fragments
	// stripped.
	Links    []string
	Metadata map[string]any
}

// Fetcher retrieves and parses single pages. The zero value is not usable;
// call NewFetcher.
type Fetcher struct {
	userAgent string
	client    *http.Client
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = hc }
}

// NewFetcher returns a Fetcher with a 30 second request timeout.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		userAgent: DefaultUserAgent,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchPage fetches one URL and converts it to a Page. Non-HTML responses
// return an error.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: bad status %d", pageURL, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("fetch %s: not HTML (%s)", pageURL, contentType)
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", pageURL, err)
	}

	page, err := parsePage(html, resp.Request.URL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	page.Metadata["content_type"] = contentType
	return page, nil
}

// parsePage extracts title, markdown content, and links from raw HTML.
func parsePage(html []byte, pageURL *url.URL) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := extractTitle(doc)
	mainHTML := ""

	article, err := readability.FromReader(strings.NewReader(string(html)), pageURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		mainHTML = article.Content
		if article.Title != "" {
			title = article.Title
		}
	} else {
		mainHTML = extractMainContent(doc)
	}

	markdown, err := htmltomarkdown.ConvertString(
		mainHTML,
		converter.WithDomain(pageURL.Scheme+"://"+pageURL.Host),
	)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)

	page := &Page{
		URL:         pageURL.String(),
		Title:       title,
		Content:     markdown,
		HTML:        string(html),
		ContentHash: fmt.Sprintf("%x", md5.Sum([]byte(markdown))),
		Links:       extractLinks(doc, pageURL),
		Metadata: map[string]any{
			"content_length": len(markdown),
		},
	}
	return page, nil
}

func extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("head title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// extractMainContent returns the most content-like region of the page,
// with boilerplate elements removed. Fallback for pages readability
// cannot handle.
func extractMainContent(doc *goquery.Document) string {
	for _, tag := range []string{"script", "style", "nav", "header", "footer", "aside", "noscript"} {
		doc.Find(tag).Remove()
	}
	for _, selector := range []string{"main", "article", "#content", ".content", "body"} {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 {
			if inner, err := sel.Html(); err == nil && strings.TrimSpace(inner) != "" {
				return inner
			}
		}
	}
	inner, _ := doc.Html()
	return inner
}

// extractLinks collects absolute http(s) links, skipping anchors and
// javascript/mailto/tel schemes, stripping fragments, deduplicating in
// document order.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := map[string]bool{}
	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		for _, scheme := range []string{"javascript:", "mailto:", "tel:"} {
			if strings.HasPrefix(lower, scheme) {
				return
			}
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""

		link := abs.String()
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})

	return links
}
