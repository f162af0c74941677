package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"knowledgebase/internal/logging"
)

// CrawlOptions bounds a site or sitemap crawl.
type CrawlOptions struct {
	// MaxDepth is how many link levels to follow from the start page.
	// 0 crawls only the start page.
	MaxDepth int
	// MaxPages caps the number of pages visited. 0 means 100.
	MaxPages int
	// SameDomainOnly restricts the crawl to the start URL's host.
	SameDomainOnly bool
	// Delay is the pause between requests.
	Delay time.Duration
}

func (o *CrawlOptions) withDefaults() CrawlOptions {
	out := *o
	if out.MaxPages <= 0 {
		out.MaxPages = 100
	}
	return out
}

// CrawlSite walks a website breadth-first from startURL, calling visit for
// every successfully parsed HTML page. A visit error stops the crawl and is
// returned. Returns the number of pages visited.
func (f *Fetcher) CrawlSite(ctx context.Context, startURL string, opts CrawlOptions, visit func(Page) error) (int, error) {
	opts = opts.withDefaults()
	logger := logging.FromContext(ctx)

	start, err := url.Parse(startURL)
	if err != nil {
		return 0, fmt.Errorf("crawl site: bad start url %q: %w", startURL, err)
	}

	collectorOpts := []colly.CollectorOption{
		colly.UserAgent(f.userAgent),
		// Depth 1 is the start page itself.
		colly.MaxDepth(opts.MaxDepth + 1),
	}
	if opts.SameDomainOnly {
		collectorOpts = append(collectorOpts, colly.AllowedDomains(start.Hostname()))
	}
	c := colly.NewCollector(collectorOpts...)
	c.SetClient(f.client)

	if opts.Delay > 0 {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: opts.Delay}); err != nil {
			return 0, fmt.Errorf("crawl site: %w", err)
		}
	}

	var (
		mu       sync.Mutex
		visited  int
		visitErr error
	)

	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		stop := visitErr != nil || visited >= opts.MaxPages || ctx.Err() != nil
		mu.Unlock()
		if stop {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		contentType := strings.ToLower(r.Headers.Get("Content-Type"))
		if !strings.Contains(contentType, "text/html") {
			return
		}

		mu.Lock()
		if visitErr != nil || visited >= opts.MaxPages {
			mu.Unlock()
			return
		}
		mu.Unlock()

		page, err := parsePage(r.Body, r.Request.URL)
		if err != nil {
			logger.WarnContext(ctx, "failed to parse page", "url", r.Request.URL, "error", err)
			return
		}
		page.Metadata["content_type"] = contentType
		page.Metadata["depth"] = r.Request.Depth - 1

		mu.Lock()
		defer mu.Unlock()
		if err := visit(*page); err != nil {
			visitErr = err
			return
		}
		visited++
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		lower := strings.ToLower(strings.TrimSpace(href))
		if lower == "" || strings.HasPrefix(lower, "#") ||
			strings.HasPrefix(lower, "javascript:") ||
			strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") {
			return
		}
		_ = e.Request.Visit(href)
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.WarnContext(ctx, "request failed", "url", r.Request.URL, "error", err)
	})

	if err := c.Visit(start.String()); err != nil {
		return 0, fmt.Errorf("crawl site %s: %w", startURL, err)
	}
	c.Wait()

	if visitErr != nil {
		return visited, visitErr
	}
	if err := ctx.Err(); err != nil {
		return visited, err
	}
	return visited, nil
}
