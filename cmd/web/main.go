package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"meetingToJira/internal/config"
	"meetingToJira/internal/extractor"
	"meetingToJira/internal/handlers"
	"meetingToJira/internal/jira"
	"meetingToJira/internal/orchestrator"
	"meetingToJira/internal/service"
	"meetingToJira/internal/store"
	"meetingToJira/internal/transcriber"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	jiraClient := jira.New(cfg.Jira, logger.With("component", "jira"))
	orch := orchestrator.New(st,
		transcriber.New(cfg.Whisper, logger.With("component", "transcriber")),
		extractor.NewService(cfg.LLM, logger.With("component", "extractor")),
		jiraClient,
		orchestrator.Timeouts{
			Transcribe: cfg.TranscribeTimeout,
			Extract:    cfg.ExtractTimeout,
			Tickets:    cfg.TicketsTimeout,
		},
		logger.With("component", "orchestrator"),
	)
	pool, err := orchestrator.NewPool(orch, cfg.Workers, cfg.QueueSize, logger.With("component", "pool"))
	if err != nil {
		logger.Error("failed to create worker pool", "error", err)
		os.Exit(1)
	}
	pool.Start()

	opts := service.Options{
		UploadsDir:        cfg.UploadsDir,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		SupportedFormats:  cfg.SupportedFormats,
		DefaultProjectKey: cfg.DefaultProjectKey,
	}
	svc := service.New(st, pool, jiraClient, jiraClient, opts, logger)
	app := handlers.NewApp(logger, svc, opts)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Minute,
		WriteTimeout:      30 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", cfg.Addr, "workers", cfg.Workers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = srv.Close()
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker pool did not drain in time", "error", err)
	}
	logger.Info("server stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openStore uses Postgres when DATABASE_URL is set and memory otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, records are kept in memory only")
		return store.NewMemory(), nil
	}
	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres")
	return pg, nil
}
