package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docpack-go/internal/logging"
	"github.com/54b3r/docpack-go/internal/server"
)

// drainTimeout bounds how long serve waits for queued enrichment on exit.
const drainTimeout = 30 * time.Second

// NewServeCmd constructs the `docpack serve` command, which starts the HTTP
// API over an in-process pack cache.
func NewServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docpack HTTP API",
		Long: `Start the docpack HTTP API.

Packs are built on POST /api/packs and searched on POST /api/search.
Set DOCPACK_API_KEY to require a Bearer token on the pack and search routes.

Examples:
  docpack serve
  docpack serve --addr 0.0.0.0:9090
  DOCPACK_INDEX_BACKEND=qdrant docpack serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)

			st, err := buildStack(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() {
				drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
				defer cancel()
				if err := st.shutdown(drainCtx); err != nil {
					log.Warn("serve: enrichment not drained", slog.Any("error", err))
				}
			}()

			if addr == "" {
				addr = st.settings.Addr
			}
			cfg := &server.Config{
				Addr:      addr,
				Logger:    log,
				Pingers:   st.pingers,
				RateLimit: st.settings.RateLimit,
				RateBurst: st.settings.RateBurst,
				APIKey:    st.settings.APIKey,
				DefaultK:  st.settings.DefaultK,
			}
			if st.journal != nil {
				cfg.Journal = st.journal
			}
			srv, err := server.New(st.cache, st.retriever, cfg)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: DOCPACK_ADDR or 127.0.0.1:8080)")

	return cmd
}
