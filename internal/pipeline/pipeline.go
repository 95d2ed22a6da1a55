// Package pipeline is the single orchestration path shared by every
// analysis route: normalize, consult the cache, prompt, complete, extract,
// validate, cache. Each task supplies only its template, validator and
// cacheability.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"bizapi/internal/apperr"
	"bizapi/internal/cache"
	"bizapi/internal/extract"
	"bizapi/internal/llm"
	"bizapi/internal/metrics"
	"bizapi/internal/normalize"
	"bizapi/internal/prompt"
	"bizapi/internal/scraper"
)

// Phases reported on failures.
const (
	PhaseFetch      = "fetch"
	PhasePrompt     = "prompt"
	PhaseCompletion = "completion"
	PhaseExtraction = "extraction"
	PhaseValidation = "validation"
)

// Fetcher retrieves and normalizes a page. *scraper.Fetcher implements it.
type Fetcher interface {
	Page(ctx context.Context, rawURL string) (normalize.Document, error)
}

// Request is one analysis call.
type Request struct {
	// SourceURL is fetched and normalized as HTML when set.
	SourceURL string
	// Source is inline input, used when SourceURL is empty.
	Source string
	// SourceIsHTML normalizes Source as markup instead of plain text.
	SourceIsHTML bool
	Directive    string
	// ShapeHint overrides the template's expected-shape description.
	ShapeHint string
	// CacheKey identifies the request for cacheable tasks. Empty skips the
	// cache even for cacheable tasks.
	CacheKey string
}

// Response is a successful run.
type Response struct {
	Value    any
	JSON     json.RawMessage
	Raw      string
	Cached   bool
	Provider llm.Provider
	Model    string
}

// Options are the completion options applied to every run.
type Options struct {
	Temperature float64
	MaxTokens   int
}

type Pipeline struct {
	completer llm.Completer
	fetcher   Fetcher
	cache     *cache.Cache
	logger    *slog.Logger
	opts      Options
}

func New(completer llm.Completer, fetcher Fetcher, c *cache.Cache, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{completer: completer, fetcher: fetcher, cache: c, logger: logger, opts: opts}
}

// Run executes task for req. Every failure is terminal and returned as an
// *apperr.Error tagged with the phase that failed.
func (p *Pipeline) Run(ctx context.Context, task Task, req Request) (*Response, error) {
	start := time.Now()
	resp, err := p.run(ctx, task, req)

	attrs := []any{
		"task", task.Name,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		ae := apperr.As(err)
		metrics.RecordPipelineFailure(task.Name, ae.Phase)
		p.logger.Warn("pipeline failed", append(attrs, "phase", ae.Phase, "code", ae.Code, "error", err)...)
		return nil, err
	}
	p.logger.Info("pipeline completed", append(attrs, "cached", resp.Cached, "llm_provider", resp.Provider, "llm_model", resp.Model)...)
	return resp, nil
}

func (p *Pipeline) run(ctx context.Context, task Task, req Request) (*Response, error) {
	doc, err := p.normalize(ctx, req)
	if err != nil {
		return nil, err
	}

	useCache := task.Cacheable && req.CacheKey != "" && p.cache != nil
	var key string
	if useCache {
		key = cache.Key(task.Name, req.Directive, req.CacheKey)
		if hit, ok := p.cache.Get(ctx, key); ok {
			metrics.RecordCache(task.Name, true)
			return &Response{Value: hit.Value, JSON: hit.JSON, Raw: hit.Raw, Cached: true}, nil
		}
		metrics.RecordCache(task.Name, false)
	}

	tpl := task.Template
	if req.ShapeHint != "" {
		tpl.Shape = req.ShapeHint
	}
	pr, err := prompt.Build(tpl, req.Directive, doc)
	if err != nil {
		return nil, apperr.Input("INPUT_TOO_LARGE", "input is too large to analyze", err).WithPhase(PhasePrompt)
	}

	completion, err := p.completer.Complete(ctx, pr.Text, llm.Options{
		Temperature: p.opts.Temperature,
		JSONMode:    task.JSONMode,
		Schema:      tpl.Shape,
		MaxTokens:   p.opts.MaxTokens,
	})
	info := llm.Describe(p.completer)
	if err != nil {
		metrics.RecordLLMCompletion(string(info.Provider), info.Model, false)
		return nil, completionError(err).WithPhase(PhaseCompletion)
	}
	metrics.RecordLLMCompletion(string(completion.Provider), completion.Model, true)

	res, err := extract.Extract(completion.Text)
	if err != nil {
		return nil, extractionError(err, completion.Text).WithPhase(PhaseExtraction)
	}

	if task.Validate != nil {
		if err := task.Validate(res); err != nil {
			return nil, apperr.Extraction("UNEXPECTED_SHAPE",
				"model response did not match the expected structure", completion.Text, err).WithPhase(PhaseValidation)
		}
	}

	if useCache {
		p.cache.Put(ctx, key, res)
	}

	return &Response{
		Value:    res.Value,
		JSON:     res.JSON,
		Raw:      res.Raw,
		Provider: completion.Provider,
		Model:    completion.Model,
	}, nil
}

func (p *Pipeline) normalize(ctx context.Context, req Request) (normalize.Document, error) {
	switch {
	case req.SourceURL != "":
		if p.fetcher == nil {
			return normalize.Document{}, apperr.Input("SOURCE_UNAVAILABLE", "page fetching is not available", nil).WithPhase(PhaseFetch)
		}
		doc, err := p.fetcher.Page(ctx, req.SourceURL)
		if err != nil {
			return normalize.Document{}, FetchError(err).WithPhase(PhaseFetch)
		}
		return doc, nil
	case req.SourceIsHTML:
		return normalize.HTML(req.Source, normalize.Inline), nil
	default:
		// Posted text is analyzed as written; prompt.Build rejects it when
		// it is over the input limit.
		return normalize.Document{Text: strings.TrimSpace(req.Source), Provenance: normalize.Inline}, nil
	}
}

// FetchError classifies a page or feed fetch failure as caller input.
func FetchError(err error) *apperr.Error {
	var se *scraper.StatusError
	switch {
	case errors.Is(err, scraper.ErrInvalidURL):
		return apperr.Input("INVALID_URL", "url must be an absolute http or https address", err)
	case errors.Is(err, scraper.ErrDisallowed):
		return apperr.Input("FETCH_DISALLOWED", "the site's robots.txt disallows fetching this url", err)
	case errors.As(err, &se):
		return apperr.Input("SOURCE_FETCH_FAILED", "failed to access the given url", err)
	default:
		return apperr.Input("SOURCE_UNREACHABLE", "failed to access the given url", err)
	}
}

func completionError(err error) *apperr.Error {
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		return apperr.Provider("LLM_NOT_CONFIGURED", "the completion provider is not configured", err)
	case errors.Is(err, llm.ErrTimeout):
		return apperr.Provider("LLM_TIMEOUT", "the completion provider timed out", err)
	case errors.Is(err, llm.ErrRateLimited):
		return apperr.Provider("LLM_RATE_LIMITED", "the completion provider is rate limiting requests", err)
	case errors.Is(err, llm.ErrEmptyResponse):
		return apperr.Provider("LLM_EMPTY_RESPONSE", "the completion provider returned an empty response", err)
	default:
		return apperr.Provider("LLM_PROVIDER_ERROR", "the completion provider failed", err)
	}
}

func extractionError(err error, raw string) *apperr.Error {
	if extract.IsNoJSON(err) {
		return apperr.Extraction("NO_JSON_FOUND", "model response contained no JSON value", raw, err)
	}
	return apperr.Extraction("MALFORMED_JSON", "model response could not be parsed as JSON", raw, err)
}
