package http

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"bizapi/internal/apperr"
	"bizapi/internal/config"
	"bizapi/internal/news"
	"bizapi/internal/normalize"
	"bizapi/internal/pipeline"
	"bizapi/internal/scraper"
)

// analysisContext bounds a whole request. It is detached from the client
// connection so a disconnect does not abort an in-flight model call.
func analysisContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	attempts := cfg.LLM.MaxRetries + 1
	budget := time.Duration(cfg.Scraper.TimeoutMs+cfg.News.TimeoutMs+attempts*cfg.LLM.TimeoutMs)*time.Millisecond + 5*time.Second
	return context.WithTimeout(context.Background(), budget)
}

// sendResult writes the extracted JSON as is, so cached and fresh
// responses are byte-identical.
func sendResult(c *fiber.Ctx, task pipeline.Task, resp *pipeline.Response) error {
	annotate(c, task, resp)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(resp.JSON)
}

func annotate(c *fiber.Ctx, task pipeline.Task, resp *pipeline.Response) {
	c.Locals("task", task.Name)
	if task.Cacheable {
		state := "MISS"
		if resp.Cached {
			state = "HIT"
		}
		c.Set("X-Cache", state)
		c.Locals("cache", state)
	}
	if resp.Provider != "" {
		c.Locals("llm_provider", string(resp.Provider))
		c.Locals("llm_model", resp.Model)
	}
}

func queryParam(c *fiber.Ctx, name string) string {
	return strings.TrimSpace(c.Query(name))
}

// aiScrapeHandler returns the readable main content of a page as markdown.
// No model is involved.
func aiScrapeHandler(c *fiber.Ctx) error {
	rawURL := queryParam(c, "url")
	if rawURL == "" {
		return writeError(c, missingParam("url"))
	}

	ctx, cancel := analysisContext(configFrom(c))
	defer cancel()

	article, err := servicesFrom(c).Articles.Article(ctx, rawURL)
	if err != nil {
		if errors.Is(err, scraper.ErrNoContent) {
			return writeError(c, apperr.Extraction("CONTENT_EXTRACTION_FAILED",
				"failed to extract the main content of the page", "", err))
		}
		return writeError(c, pipeline.FetchError(err).WithPhase(pipeline.PhaseFetch))
	}

	c.Locals("task", "ai-scrape")
	return c.JSON(AIScrapeResponse{
		Status:  "success",
		URL:     rawURL,
		Title:   article.Title,
		Content: article.Markdown,
	})
}

func esgScoreHandler(c *fiber.Ctx) error {
	company := queryParam(c, "company_name")
	if company == "" {
		return writeError(c, missingParam("company_name"))
	}

	ctx, cancel := analysisContext(configFrom(c))
	defer cancel()

	resp, err := servicesFrom(c).Pipeline.Run(ctx, pipeline.ESGScore, pipeline.Request{
		Directive: company,
		CacheKey:  company,
	})
	if err != nil {
		return writeError(c, err)
	}
	return sendResult(c, pipeline.ESGScore, resp)
}

func formatJSONHandler(c *fiber.Ctx) error {
	var body FormatJSONRequest
	if err := c.BodyParser(&body); err != nil {
		return writeError(c, invalidJSON(err))
	}
	if strings.TrimSpace(body.Text) == "" {
		return writeError(c, missingParam("text"))
	}
	if strings.TrimSpace(body.SchemaInstruction) == "" {
		return writeError(c, missingParam("schema_instruction"))
	}

	ctx, cancel := analysisContext(configFrom(c))
	defer cancel()

	resp, err := servicesFrom(c).Pipeline.Run(ctx, pipeline.FormatJSON, pipeline.Request{
		Source:    body.Text,
		Directive: body.SchemaInstruction,
	})
	if err != nil {
		return writeError(c, err)
	}

	annotate(c, pipeline.FormatJSON, resp)
	return c.JSON(FormatJSONResponse{Status: "success", Data: json.RawMessage(resp.JSON)})
}

func textToJSONHandler(c *fiber.Ctx) error {
	var body TextToJSONRequest
	if err := c.BodyParser(&body); err != nil {
		return writeError(c, invalidJSON(err))
	}
	if strings.TrimSpace(body.Text) == "" {
		return writeError(c, missingParam("text"))
	}
	if strings.TrimSpace(body.FormatInstruction) == "" {
		return writeError(c, missingParam("format_instruction"))
	}

	ctx, cancel := analysisContext(configFrom(c))
	defer cancel()

	resp, err := servicesFrom(c).Pipeline.Run(ctx, pipeline.TextToJSON, pipeline.Request{
		Source:    body.Text,
		Directive: body.FormatInstruction,
		ShapeHint: strings.TrimSpace(body.Schema),
	})
	if err != nil {
		return writeError(c, err)
	}
	return sendResult(c, pipeline.TextToJSON, resp)
}

func webExtractHandler(c *fiber.Ctx) error {
	return pageTask(c, pipeline.WebExtract, "target")
}

func conditionCheckHandler(c *fiber.Ctx) error {
	return pageTask(c, pipeline.ConditionCheck, "condition")
}

// pageTask runs task over the page at ?url= with the directive taken from
// the directiveParam query parameter.
func pageTask(c *fiber.Ctx, task pipeline.Task, directiveParam string) error {
	rawURL := queryParam(c, "url")
	if rawURL == "" {
		return writeError(c, missingParam("url"))
	}
	directive := queryParam(c, directiveParam)
	if directive == "" {
		return writeError(c, missingParam(directiveParam))
	}

	ctx, cancel := analysisContext(configFrom(c))
	defer cancel()

	resp, err := servicesFrom(c).Pipeline.Run(ctx, task, pipeline.Request{
		SourceURL: rawURL,
		Directive: directive,
	})
	if err != nil {
		return writeError(c, err)
	}
	return sendResult(c, task, resp)
}

// nicheDataHandler collects recent headlines for a query and asks the model
// for a summary and the key trends.
func nicheDataHandler(c *fiber.Ctx) error {
	query := queryParam(c, "query")
	if query == "" {
		return writeError(c, missingParam("query"))
	}

	svc := servicesFrom(c)
	ctx, cancel := analysisContext(configFrom(c))
	defer cancel()

	found, err := svc.News.Search(ctx, query, 0)
	if err != nil {
		return writeError(c, pipeline.FetchError(err).WithPhase(pipeline.PhaseFetch))
	}

	out := NicheDataResponse{
		Query:     query,
		KeyTrends: []string{},
		Articles:  make([]NicheArticle, 0, len(found)),
	}
	for _, a := range found {
		out.Articles = append(out.Articles, NicheArticle(a))
	}
	c.Locals("task", pipeline.NicheSummary.Name)
	if len(found) == 0 {
		return c.JSON(out)
	}

	// Headlines come from the feed, so they are bounded like any fetched page.
	headlines := normalize.Text(news.Headlines(found), normalize.Inline)
	resp, err := svc.Pipeline.Run(ctx, pipeline.NicheSummary, pipeline.Request{
		Source:    headlines.Text,
		Directive: query,
	})
	if err != nil {
		return writeError(c, err)
	}
	annotate(c, pipeline.NicheSummary, resp)

	obj, _ := resp.Value.(map[string]any)
	out.Summary = obj["summary"]
	if trends, ok := obj["key_trends"]; ok && trends != nil {
		out.KeyTrends = trends
	}
	return c.JSON(out)
}
