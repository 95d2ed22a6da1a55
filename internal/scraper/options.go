package scraper

import (
	"time"
)

// RequestOptions is the caller-facing description of a fetch; it is turned
// into a Request with the shared browser-like headers applied.
type RequestOptions struct {
	URL            string
	Headers        map[string]string
	TimeoutMs      int
	UserAgent      string
	AcceptLanguage string
}

var defaultHeaders = map[string]string{
	"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

// BuildRequestFromOptions builds a Request from RequestOptions. Explicit
// headers win over the defaults.
func BuildRequestFromOptions(opts RequestOptions) Request {
	headers := make(map[string]string, len(defaultHeaders)+len(opts.Headers)+1)
	for k, v := range defaultHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	var timeout time.Duration
	if opts.TimeoutMs > 0 {
		timeout = time.Duration(opts.TimeoutMs) * time.Millisecond
	}

	return Request{
		URL:       opts.URL,
		Headers:   headers,
		Timeout:   timeout,
		UserAgent: opts.UserAgent,
	}
}
