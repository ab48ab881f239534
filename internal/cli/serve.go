package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/leadline/internal/api"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server.

Routes:
  GET  /health                   liveness probe
  GET  /generate-timeline        consolidate and return the canonical timeline
  GET  /generate-summary         consolidate and return the full result
  GET  /timeline/:lead/text      text projection of the persisted timeline
  POST /transcripts              attach a transcript to a call event
  GET  /storage/stats            persisted data statistics
  POST /storage/cleanup          run retention cleanup
  GET  /alerts                   active alerts
  GET  /metrics                  Prometheus metrics

The listen address defaults to server.addr from .leadline.yaml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Consolidator == nil {
			return fmt.Errorf("consolidator not initialized")
		}

		addr := serveAddr
		if addr == "" && Config != nil {
			addr = Config.Server.Addr
		}
		if addr == "" {
			addr = ":8000"
		}

		gin.SetMode(gin.ReleaseMode)
		router := api.NewRouter(api.Deps{
			Consolidator: Consolidator,
			Retention:    Retention,
			Collectors:   Collectors,
			Alerts:       AlertEngine,
			Events:       Events,
			Logger:       logger(),
		})

		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger().Info("http server listening", "addr", addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("running HTTP server: %w", err)
		case <-ctx.Done():
		}

		logger().Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
