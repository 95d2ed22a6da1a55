package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"bizapi/internal/config"
	"bizapi/internal/llm"
	"bizapi/internal/metrics"
	"bizapi/internal/news"
	"bizapi/internal/pipeline"
	"bizapi/internal/quota"
	"bizapi/internal/scraper"
	"bizapi/internal/store"
	"bizapi/internal/webhook"
)

// ArticleFetcher renders a page's readable content. *scraper.Fetcher
// implements it.
type ArticleFetcher interface {
	Article(ctx context.Context, rawURL string) (*scraper.Article, error)
}

// NewsSearcher finds recent headlines. *news.Client implements it.
type NewsSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]news.Article, error)
}

// Services are the collaborators handlers reach through c.Locals("services").
type Services struct {
	Store    store.Store
	LLM      llm.Completer
	Pipeline *pipeline.Pipeline
	Articles ArticleFetcher
	News     NewsSearcher
	Quota    *quota.Limiter
	Webhooks *webhook.Registry
}

type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

func NewServer(cfg *config.Config, svc *Services, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "bizapi",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	// Inject config and services into context for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("services", svc)
		return c.Next()
	})

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.Set("X-Request-Id", reqID)

		err := c.Next()
		if err != nil {
			// Resolve the status now so the log line and metrics see it.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if logger != nil {
			attrs := []any{
				"request_id", reqID,
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			}
			for _, key := range []string{"task", "cache", "llm_provider", "llm_model", "error_code"} {
				if v := c.Locals(key); v != nil {
					attrs = append(attrs, key, v)
				}
			}
			logger.Info("request", attrs...)
		}

		return err
	})

	// Panics become 500s inside the logging middleware.
	app.Use(recover.New())

	app.Get("/", rootHandler)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		// Shallow health: process is up
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		storeStatus := "ok"
		if err := svc.Store.Ping(ctx); err != nil {
			storeStatus = "error"
		}

		info := llm.Describe(svc.LLM)
		llmStatus := "ok"
		if !info.Configured {
			llmStatus = "not_configured"
		}

		rodStatus := "disabled"
		if cfg.Rod.Enabled {
			rodStatus = "enabled"
		}

		status := "ok"
		if storeStatus != "ok" {
			status = "error"
		}

		return c.JSON(fiber.Map{
			"status":       status,
			"store":        storeStatus,
			"storeBackend": store.Backend(svc.Store),
			"llm":          llmStatus,
			"llmProvider":  info.Provider,
			"llmModel":     info.Model,
			"rod":          rodStatus,
		})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	// Quota is attached per route so unmatched paths never spend a free call.
	registerV1Routes(app.Group("/api/v1"), quotaMiddleware(cfg, svc.Quota))

	return &Server{
		app:    app,
		config: cfg,
		logger: logger,
	}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerV1Routes(group fiber.Router, admit fiber.Handler) {
	group.Get("/ai-scrape", admit, aiScrapeHandler)
	group.Get("/esg-score", admit, esgScoreHandler)
	group.Post("/format-json", admit, formatJSONHandler)
	group.Post("/text-to-json", admit, textToJSONHandler)
	group.Get("/web-extract", admit, webExtractHandler)
	group.Get("/condition-check", admit, conditionCheckHandler)
	group.Get("/niche-data", admit, nicheDataHandler)
	group.Post("/webhook/register", admit, webhookRegisterHandler)
	group.Post("/webhook/simulate/:id", admit, webhookSimulateHandler)
}

func rootHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Welcome to the Business API. Routes are served under /api/v1.",
	})
}

func servicesFrom(c *fiber.Ctx) *Services {
	return c.Locals("services").(*Services)
}

func configFrom(c *fiber.Ctx) *config.Config {
	return c.Locals("config").(*config.Config)
}
