package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kdgroup/jobledger/api"
	"github.com/kdgroup/jobledger/internal/logger"
	"github.com/kdgroup/jobledger/internal/workers/reconcile"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the settlement reconciler",
	Example: `  # Serve with a Postgres store
  JOBLEDGER_STORE_DRIVER=postgres DATABASE_URL=postgres://localhost/jobledger jobledger serve

  # Serve without background reconciliation
  jobledger serve --reconcile=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (overrides listen_addr)")
	serveCmd.Flags().Bool("reconcile", true, "run the settlement reconciler")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.ListenAddr
	}
	runReconciler, _ := cmd.Flags().GetBool("reconcile")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := api.New(a.engine,
		api.WithLogger(logger.WithComponent("api")),
		api.WithMetricsHandler(promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{})),
	)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(cfg.BasePath),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if runReconciler {
		r := reconcile.New(a.engine, cfg.Reconcile.Workers, cfg.Reconcile.Interval, logger.WithComponent("reconcile"))
		go r.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	log.Info().Str("addr", addr).Str("base_path", cfg.BasePath).Msg("listening")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
