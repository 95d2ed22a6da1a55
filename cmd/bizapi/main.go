package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bizapi/internal/cache"
	"bizapi/internal/config"
	server "bizapi/internal/http"
	"bizapi/internal/llm"
	"bizapi/internal/news"
	"bizapi/internal/pipeline"
	"bizapi/internal/quota"
	"bizapi/internal/scraper"
	"bizapi/internal/store"
	"bizapi/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()

	pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
	if err := st.Ping(pingCtx); err != nil {
		cancel()
		log.Fatalf("store unreachable: %v", err)
	}
	cancel()

	completer, err := llm.NewFromConfig(rootCtx, cfg)
	if err != nil {
		log.Fatalf("llm init failed: %v", err)
	}
	info := llm.Describe(completer)
	if !info.Configured {
		logger.Warn("llm provider has no API key; analysis routes will fail until one is set", "provider", info.Provider)
	}

	fetcher := scraper.New(cfg)

	svc := &server.Services{
		Store: st,
		LLM:   completer,
		Pipeline: pipeline.New(completer, fetcher, cache.New(st, logger), logger, pipeline.Options{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}),
		Articles: fetcher,
		News: news.NewClient(cfg.News.FeedURL, cfg.Scraper.UserAgent,
			time.Duration(cfg.News.TimeoutMs)*time.Millisecond, cfg.News.MaxArticles),
		Quota: quota.New(st, cfg.Quota.FreeCallLimit(), cfg.Quota.FreePlans, logger),
		Webhooks: webhook.New(st, time.Duration(cfg.Webhook.TimeoutMs)*time.Millisecond,
			cfg.Webhook.Message, logger),
	}

	s := server.NewServer(cfg, svc, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"store", store.Backend(st),
			"engine", fetcher.Engine(),
			"llm_provider", info.Provider,
			"llm_model", info.Model,
		)
		errCh <- s.Listen()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case <-rootCtx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error("shutdown failed", "error", err)
		}
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
