package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/estatehub/sentinel/internal/feed"
	"github.com/estatehub/sentinel/internal/handlers"
	"github.com/estatehub/sentinel/internal/jobs"
	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/server"
	"github.com/estatehub/sentinel/internal/tokens"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sentinel service",
	Long: `Consume the change feed, run the detection pipeline on every appended
event, schedule retention and export, and serve the HTTP trigger surface.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&migrationsSource, "migrations", migrationsSource, "migration source URL")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required to serve")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, claims, err := a.engine(ctx)
	if err != nil {
		return err
	}

	h := handlers.NewHandler(logger).
		WithJobTimeout(cfg.Server.JobTimeout).
		WithReadinessCheck("store", a.store)
	if claims.IsEnabled() {
		h.WithReadinessCheck("redis", claims)
	}

	source, _, feedHealth, err := a.feed(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect change feed: %w", err)
	}
	var consumer *feed.Consumer
	if source != nil {
		consumer = feed.NewConsumer(source, feed.NewDecoder(), engine, logger)
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start feed consumer: %w", err)
		}
		defer consumer.Stop()
	} else {
		logger.Warn("No change feed configured; the detection pipeline is idle")
	}
	if feedHealth != nil {
		h.WithReadinessCheck("feed", feedHealth)
	}

	objects, err := a.objects(ctx)
	if err != nil {
		return fmt.Errorf("failed to configure object storage: %w", err)
	}

	retention := jobs.NewRunner(jobs.NameRetention, scheduleInterval(cfg.Retention.Enabled, cfg.Retention.Interval),
		jobs.NewRetentionJob(a.store, cfg.Retention, logger).Func(), logger)
	export := jobs.NewRunner(jobs.NameExport, scheduleInterval(cfg.Export.Enabled, cfg.Export.Interval),
		jobs.NewExportJob(a.store, objects, cfg.Export.Collections, logger).Func(), logger)
	for _, r := range []*jobs.Runner{retention, export} {
		r.Start(ctx)
		defer r.Stop()
		h.WithJob(r)
	}

	tm := tokens.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(h, tm),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Sentinel service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", logging.Error(err))
	}

	// Deferred stops run next: runners finish their current batch, the feed
	// consumer drains in-flight events, then connections close.
	logger.Info("Server stopped gracefully")
	return nil
}

// scheduleInterval is zero, meaning on-demand only, for disabled jobs.
func scheduleInterval(enabled bool, interval time.Duration) time.Duration {
	if !enabled {
		return 0
	}
	return interval
}
