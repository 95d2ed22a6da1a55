package scraper

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodScraper renders the page in a real browser (via rod) so that
// client-side content is present in the returned HTML.
type RodScraper struct {
	BrowserURL string
	Timeout    time.Duration
}

func NewRodScraper(browserURL string, timeout time.Duration) *RodScraper {
	return &RodScraper{BrowserURL: browserURL, Timeout: timeout}
}

func (r *RodScraper) Scrape(ctx context.Context, req Request) (*Result, error) {
	timeout := r.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	browser := rod.New().Context(ctx).Timeout(timeout)
	if r.BrowserURL != "" {
		browser = browser.ControlURL(r.BrowserURL)
	}

	if err := browser.Connect(); err != nil {
		return nil, err
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = page.Close() }()

	if req.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: req.UserAgent}); err != nil {
			return nil, err
		}
	}
	if len(req.Headers) > 0 {
		pairs := make([]string, 0, len(req.Headers)*2)
		for k, v := range req.Headers {
			pairs = append(pairs, k, v)
		}
		cleanup, err := page.SetExtraHeaders(pairs)
		if err != nil {
			return nil, err
		}
		defer cleanup()
	}

	if err := page.Navigate(req.URL); err != nil {
		return nil, err
	}
	if err := page.WaitLoad(); err != nil {
		return nil, err
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return nil, err
	}

	finalURL := req.URL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	// The browser does not expose the document status here; a rendered page
	// is treated as a success.
	return &Result{
		URL:    finalURL,
		HTML:   htmlStr,
		Status: 200,
		Engine: "browser",
	}, nil
}
