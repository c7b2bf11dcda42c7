package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/talebot"
	"github.com/aretw0/talebot/internal/cli"
	httpAdapter "github.com/aretw0/talebot/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the conversation over a JSON API: POST /v1/turns handles one chat
message, GET /v1/events streams a session's replies (SSE), and /metrics
exposes Prometheus metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		app := openApp(sc, cmd, reg)
		defer app.Close()
		logger := app.Logger()

		addr := app.Config.HTTPAddr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		handler := httpAdapter.NewHandler(app,
			httpAdapter.WithFlows(app.Flows),
			httpAdapter.WithProfiles(app.Profiles),
			httpAdapter.WithHistory(app.Stories),
			httpAdapter.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
			httpAdapter.WithVersion(talebot.Version),
			httpAdapter.WithLogger(logger),
		)
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(sc)
		g.Go(func() error {
			logger.Info("talebot HTTP server listening", "address", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down", "signal", sc.Signal())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown did not complete: %w", err)
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			fail("Server error: %v", err)
		}
		logger.Info("talebot HTTP server stopped")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on (overrides TALEBOT_HTTP_ADDR)")
}
