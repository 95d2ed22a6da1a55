package scraper

import (
	"context"
	"io"
	"net/http"
	"net/url"

	robotstxt "github.com/temoto/robotstxt"
)

// Robots checks robots.txt before a page is fetched. A robots.txt that
// cannot be retrieved, or that answers with anything but 200, allows
// everything.
type Robots struct {
	client    *http.Client
	userAgent string
}

func NewRobots(client *http.Client, userAgent string) *Robots {
	if client == nil {
		client = http.DefaultClient
	}
	return &Robots{client: client, userAgent: userAgent}
}

// Allowed reports whether u may be fetched by the configured user agent.
func (r *Robots) Allowed(ctx context.Context, u *url.URL) bool {
	data, err := r.fetch(ctx, u)
	if err != nil || data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), r.userAgent)
}

func (r *Robots) fetch(ctx context.Context, base *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   "/robots.txt",
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, err
	}
	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}
