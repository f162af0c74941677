package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"knowledgebase/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	var (
		maxDepth int
		maxPages int
		delay    time.Duration
		sitemap  bool
	)

	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a website and ingest its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startURL := args[0]
			if !strings.HasPrefix(startURL, "http://") && !strings.HasPrefix(startURL, "https://") {
				return fmt.Errorf("url must start with http:// or https://")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			pipeline, _, err := a.pipeline()
			if err != nil {
				return err
			}
			fetcher := a.fetcher()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			chunks := 0

			visit := func(page crawler.Page) error {
				n, err := pipeline.IngestPage(ctx, &page)
				if err != nil {
					return err
				}
				chunks += n
				fmt.Fprintf(out, "  %s %s (%d chunks)\n", okStyle.Render("✓"), page.URL, n)
				return nil
			}

			opts := crawler.CrawlOptions{
				MaxDepth:       maxDepth,
				MaxPages:       maxPages,
				SameDomainOnly: true,
				Delay:          delay,
			}

			fmt.Fprintf(out, "\nCrawling %s\n\n", accentStyle.Render(startURL))

			var pages int
			if sitemap {
				pages, err = fetcher.CrawlSitemap(ctx, startURL, opts, visit)
			} else if maxDepth == 0 {
				var page *crawler.Page
				page, err = fetcher.FetchPage(ctx, startURL)
				if err == nil {
					err = visit(*page)
					pages = 1
				}
			} else {
				pages, err = fetcher.CrawlSite(ctx, startURL, opts, visit)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%s\n", okStyle.Render(fmt.Sprintf("Ingested %d pages, %d chunks.", pages, chunks)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxDepth, "depth", "d", 1, "crawl depth (0 = single page)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 50, "maximum pages to crawl")
	cmd.Flags().DurationVar(&delay, "delay", 0, "delay between requests")
	cmd.Flags().BoolVar(&sitemap, "sitemap", false, "treat the url as a sitemap.xml")
	return cmd
}
