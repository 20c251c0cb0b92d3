package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markplatform/gateway/cmd/markgw/cmd/cmdutil"
	"github.com/markplatform/gateway/cmd/markgw/internal/auth"
	"github.com/markplatform/gateway/cmd/markgw/internal/logging"
	"github.com/markplatform/gateway/cmd/markgw/internal/server"
	"github.com/markplatform/gateway/cmd/markgw/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long:  `Starts the HTTP server that authenticates requests and forwards them downstream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.New(cfg.Debug)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := telemetry.Init(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := telemetry.NewMetrics(registry)

		gw, err := cmdutil.NewGateway(cfg, cmdutil.GatewayOptions{Logger: logger, Metrics: metrics})
		if err != nil {
			return err
		}

		strategy := gw.Dispatcher.Strategy()
		logger.Info("identity strategy selected",
			zap.String("strategy", string(strategy)),
			zap.String("execution_mode", cfg.ExecutionMode),
		)
		if strategy == auth.StrategyMock {
			logger.Warn("mock authentication is active: every authenticated route receives the development session")
		}
		for _, group := range gw.Table.Groups() {
			logger.Debug("route group",
				zap.String("name", group.Name),
				zap.Strings("patterns", group.Patterns),
				zap.String("target", string(group.Target)),
				zap.String("auth", string(group.Auth)),
			)
		}

		routerOpts := gw.RouterOptions()
		routerOpts.Logger = logger
		routerOpts.Metrics = metrics
		routerOpts.InfoPath = cfg.Info.Path
		routerOpts.InfoVersion = cfg.Info.Version
		if cfg.Metrics.Enabled {
			routerOpts.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
			routerOpts.MetricsPath = cfg.Metrics.Path
		}

		srv := &http.Server{
			Addr:              cfg.ServerAddr,
			Handler:           server.NewH2CHandler(routerOpts),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			// Leave room for the downstream timeout plus relaying the body.
			WriteTimeout: cfg.Forward.Timeout + 15*time.Second,
			IdleTimeout:  120 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("listening", zap.String("addr", cfg.ServerAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Warn("tracing shutdown failed", zap.Error(err))
			}
			logger.Info("server stopped")
			return nil
		})

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
