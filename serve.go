package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"subsai/api"
	"subsai/batch"
	"subsai/config"
	"subsai/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and batch worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cc.cfg

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collab, err := cc.newDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer collab.close()

			proc, err := batch.NewProcessor(cfg, collab.deps)
			if err != nil {
				return err
			}

			if cfg.LogLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := newServer(ctx, cfg, proc, collab.events)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Server starting", "port", cfg.Port)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return err
			}

			// Restore default behavior on the interrupt signal.
			stop()
			logger.Info("Shutting down gracefully, press Ctrl+C again to force")

			// The in-flight job keeps running until it finishes or STOP_TIMEOUT passes.
			proc.Stop()

			// The server has 5 seconds to finish the requests it is currently handling.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", "error", err)
				return err
			}

			logger.Info("Server exiting")
			return nil
		},
	}
}

// newServer builds the HTTP server. The worker started through the API does
// not inherit ctx cancellation, so a shutdown signal never aborts a running job.
func newServer(ctx context.Context, cfg *config.Config, proc *batch.Processor, events api.RecentEvents) *http.Server {
	return &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.SetupRouter(context.WithoutCancel(ctx), proc, cfg, events),
	}
}
