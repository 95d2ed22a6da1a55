// Package scraper fetches web pages and turns them into either a normalized
// text document (for prompts) or a readable markdown article.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-shiori/go-readability"

	"bizapi/internal/config"
	"bizapi/internal/normalize"
)

// Fetcher wraps an engine with URL validation, the optional robots.txt
// gate, an explicit timeout and status checking.
type Fetcher struct {
	engine         Scraper
	robots         *Robots
	userAgent      string
	acceptLanguage string
	timeout        time.Duration
	maxChars       int
}

// Article is the readable main content of a page.
type Article struct {
	URL      string
	Title    string
	Markdown string
}

// New builds a Fetcher from config: the rod engine when enabled, plain HTTP
// otherwise.
func New(cfg *config.Config) *Fetcher {
	timeout := time.Duration(cfg.Scraper.TimeoutMs) * time.Millisecond

	var engine Scraper
	if cfg.Rod.Enabled {
		engine = NewRodScraper(cfg.Rod.BrowserURL, timeout)
	} else {
		engine = NewHTTPScraper(timeout)
	}

	f := NewWithEngine(engine, cfg.Scraper)
	if cfg.Scraper.RespectRobots {
		f.robots = NewRobots(&http.Client{Timeout: timeout}, cfg.Scraper.UserAgent)
	}
	return f
}

// NewWithEngine builds a Fetcher around an explicit engine. The robots gate
// is left off.
func NewWithEngine(engine Scraper, cfg config.ScraperConfig) *Fetcher {
	return &Fetcher{
		engine:         engine,
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
		timeout:        time.Duration(cfg.TimeoutMs) * time.Millisecond,
		maxChars:       cfg.MaxChars,
	}
}

// WithRobots enables the robots.txt gate.
func (f *Fetcher) WithRobots(r *Robots) *Fetcher {
	f.robots = r
	return f
}

// Engine names the configured engine.
func (f *Fetcher) Engine() string {
	switch f.engine.(type) {
	case *RodScraper:
		return "browser"
	case *HTTPScraper:
		return "http"
	default:
		return "custom"
	}
}

// ParseURL accepts only absolute http(s) URLs with a host.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// Fetch retrieves the raw page. Non-2xx/3xx answers are returned as
// *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if f.robots != nil && !f.robots.Allowed(ctx, u) {
		return nil, ErrDisallowed
	}

	req := BuildRequestFromOptions(RequestOptions{
		URL:            u.String(),
		TimeoutMs:      int(f.timeout / time.Millisecond),
		UserAgent:      f.userAgent,
		AcceptLanguage: f.acceptLanguage,
	})

	res, err := f.engine.Scrape(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.String(), err)
	}
	if res.Status >= 400 {
		return nil, &StatusError{URL: u.String(), Status: res.Status}
	}
	return res, nil
}

// Page fetches rawURL and returns its normalized text.
func (f *Fetcher) Page(ctx context.Context, rawURL string) (normalize.Document, error) {
	res, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return normalize.Document{}, err
	}
	doc := normalize.HTML(res.HTML, rawURL)
	if f.maxChars > 0 && f.maxChars < normalize.MaxChars {
		doc.Text = normalize.Truncate(doc.Text, f.maxChars)
	}
	return doc, nil
}

// Article fetches rawURL, isolates the readable main content and renders it
// as markdown. ErrNoContent is returned when nothing readable remains.
func (f *Fetcher) Article(ctx context.Context, rawURL string) (*Article, error) {
	res, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return RenderArticle(res.URL, res.HTML)
}

// RenderArticle runs readability over pageHTML and converts the result to
// CommonMark.
func RenderArticle(pageURL, pageHTML string) (*Article, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	article, err := readability.FromReader(strings.NewReader(pageHTML), u)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	if strings.TrimSpace(article.Content) == "" {
		return nil, ErrNoContent
	}

	converter := htmlmd.NewConverter(u.Hostname(), true, nil)
	markdown, err := converter.ConvertString(article.Content)
	if err != nil {
		// Fall back to the plain text readability already computed.
		markdown = article.TextContent
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return nil, ErrNoContent
	}

	return &Article{
		URL:      pageURL,
		Title:    strings.TrimSpace(article.Title),
		Markdown: markdown,
	}, nil
}
