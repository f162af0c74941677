package crawler

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"knowledgebase/internal/logging"
)

type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// CrawlSitemap fetches a sitemap.xml, then visits up to MaxPages of its
// URLs in order, paced by Delay. Pages that fail to fetch or parse are
// skipped with a warning. A visit error stops the crawl and is returned.
// Returns the number of pages visited.
func (f *Fetcher) CrawlSitemap(ctx context.Context, sitemapURL string, opts CrawlOptions, visit func(Page) error) (int, error) {
	opts = opts.withDefaults()
	logger := logging.FromContext(ctx)

	urls, err := f.fetchSitemap(ctx, sitemapURL)
	if err != nil {
		return 0, err
	}
	if len(urls) > opts.MaxPages {
		urls = urls[:opts.MaxPages]
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}

	visited := 0
	for _, pageURL := range urls {
		if err := limiter.Wait(ctx); err != nil {
			return visited, err
		}

		page, err := f.FetchPage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return visited, ctx.Err()
			}
			logger.WarnContext(ctx, "failed to fetch sitemap page", "url", pageURL, "error", err)
			continue
		}

		if err := visit(*page); err != nil {
			return visited, err
		}
		visited++
	}
	return visited, nil
}

func (f *Fetcher) fetchSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", sitemapURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sitemap %s: bad status %d", sitemapURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: read body: %w", sitemapURL, err)
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}

	urls := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		if u.Loc != "" {
			urls = append(urls, u.Loc)
		}
	}
	return urls, nil
}
