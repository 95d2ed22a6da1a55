package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes caps how much of a page is read into memory.
const maxBodyBytes = 8 << 20

var (
	ErrInvalidURL = errors.New("url must be an absolute http or https address")
	ErrDisallowed = errors.New("fetch disallowed by robots.txt")
	ErrNoContent  = errors.New("no readable content found")
)

// StatusError is returned when the page answered with a non-success status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

// Request represents a single page fetch.
type Request struct {
	URL       string
	Headers   map[string]string
	Timeout   time.Duration
	UserAgent string
}

// Result is the raw page as returned by an engine.
type Result struct {
	URL    string
	HTML   string
	Status int
	Engine string
}

// Scraper fetches raw HTML for a URL.
type Scraper interface {
	Scrape(ctx context.Context, req Request) (*Result, error)
}

// HTTPScraper is the default engine, a plain net/http GET.
type HTTPScraper struct {
	client *http.Client
}

func NewHTTPScraper(timeout time.Duration) *HTTPScraper {
	return &HTTPScraper{
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPScraper) Scrape(ctx context.Context, req Request) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Result{
		URL:    finalURL,
		HTML:   string(body),
		Status: resp.StatusCode,
		Engine: "http",
	}, nil
}
