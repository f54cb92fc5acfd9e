package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/spf13/cobra"

	"github.com/assetscore/assetscore/internal/alerts"
	"github.com/assetscore/assetscore/internal/api"
	"github.com/assetscore/assetscore/internal/compute"
	"github.com/assetscore/assetscore/internal/config"
	"github.com/assetscore/assetscore/internal/store"
	"github.com/assetscore/assetscore/internal/ws"
	"github.com/assetscore/assetscore/pkg/types"
)

var (
	serveConfig     string
	serveWSInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP scoring API",
	Long: `Run the HTTP scoring API, the WebSocket score stream and the
Prometheus endpoint. The scoring policy is reloaded whenever its file changes;
a policy that fails to compile is logged and the previous one stays active.

Example:
  assetscore serve --config config/assetscore.example.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runServe(ctx, serveConfig, serveWSInterval)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfig, "config", "assetscore.yaml", "Path to the service config file")
	serveCmd.Flags().DurationVar(&serveWSInterval, "ws-interval", 5*time.Second, "WebSocket broadcast interval")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfgPath string, wsInterval time.Duration) error {
	if wsInterval <= 0 {
		return fmt.Errorf("--ws-interval must be positive, got %v", wsInterval)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log))

	slog.Info("assetscore starting",
		"config", cfgPath,
		"version", version,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"store_ttl", cfg.Server.StoreTTL,
		"policy", cfg.Scoring.PolicyPath,
	)

	policy, err := config.LoadPolicy(cfg.Scoring.PolicyPath)
	if err != nil {
		return err
	}
	engine, err := compute.NewEngine(policy)
	if err != nil {
		return err
	}

	// Latest-score cache with background TTL eviction.
	st := store.New(cfg.Server.StoreTTL)
	go st.Run(ctx)

	alertEngine, err := alerts.New(cfg.Alerts)
	if err != nil {
		return err
	}

	go func() {
		err := config.WatchPolicy(ctx, cfg.Scoring.PolicyPath, func(p *types.ScoringConfig) {
			if err := engine.Reload(p); err != nil {
				slog.Error("serve: policy rejected, keeping previous policy", "err", err)
				return
			}
			slog.Info("serve: policy reloaded", "version", engine.Policy().Version)
		})
		if err != nil {
			slog.Error("serve: policy watcher stopped", "err", err)
		}
	}()

	// WebSocket hub: broadcasts the latest scores to UI clients.
	hub := ws.New(st, wsInterval)
	go hub.Run(ctx)

	apiHandler := api.New(engine, st, api.Options{
		Alerts:     alertEngine,
		BatchLimit: cfg.Scoring.BatchLimit,
		Auth:       cfg.Server.Auth,
	})
	apiHandler.Handle("/ws/stream", hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, apiHandler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	slog.Info("assetscore shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("serve: shutdown", "err", err)
	}
	alertEngine.Wait()
	return nil
}

// newLogger builds the service logger from the log section of the config.
func newLogger(lc config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	if lc.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
