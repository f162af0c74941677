package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"knowledgebase/internal/logging"
	"knowledgebase/internal/web"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			pipeline, client, err := a.pipeline()
			if err != nil {
				return err
			}
			provider, err := a.provider()
			if err != nil {
				return err
			}

			if addr == "" {
				addr = a.cfg.WebAddr
			}

			server := web.NewServer(client, client, pipeline, a.fetcher(), provider)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger := logging.FromContext(ctx)

			errCh := make(chan error, 1)
			go func() {
				logger.InfoContext(ctx, "web server listening", "addr", addr)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				logger.InfoContext(ctx, "shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from WEB_ADDR)")
	return cmd
}
