// Package news searches an RSS headline feed for a query term.
package news

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultMaxArticles = 10
	maxFeedBytes       = 4 << 20
)

var ErrEmptyQuery = errors.New("news: empty query")

// FeedError reports an unreachable or failing feed.
type FeedError struct {
	Status int
	Err    error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("news feed unreachable: %v", e.Err)
	}
	return fmt.Sprintf("news feed returned status %d", e.Status)
}

func (e *FeedError) Unwrap() error { return e.Err }

type Article struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Source    string `json:"source,omitempty"`
	Published string `json:"published,omitempty"`
}

type Client struct {
	feedURL     string
	userAgent   string
	maxArticles int
	http        *http.Client
}

// NewClient builds a client. feedURL must contain one %s for the
// query-escaped search term.
func NewClient(feedURL, userAgent string, timeout time.Duration, maxArticles int) *Client {
	if maxArticles <= 0 {
		maxArticles = defaultMaxArticles
	}
	return &Client{
		feedURL:     feedURL,
		userAgent:   userAgent,
		maxArticles: maxArticles,
		http:        &http.Client{Timeout: timeout},
	}
}

type rss struct {
	Channel struct {
		Items []item `xml:"item"`
	} `xml:"channel"`
}

type item struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Source  string `xml:"source"`
}

// Search returns up to limit distinct articles for query, in feed order.
// A limit of zero or above the client's cap uses the cap.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 || limit > c.maxArticles {
		limit = c.maxArticles
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(c.feedURL, url.QueryEscape(query)), nil)
	if err != nil {
		return nil, &FeedError{Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FeedError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &FeedError{Status: resp.StatusCode}
	}

	var feed rss
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	seen := make(map[string]struct{}, len(feed.Channel.Items))
	articles := make([]Article, 0, limit)
	for _, it := range feed.Channel.Items {
		link := strings.TrimSpace(it.Link)
		title := strings.TrimSpace(it.Title)
		if link == "" || title == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		articles = append(articles, Article{
			Title:     title,
			URL:       link,
			Source:    strings.TrimSpace(it.Source),
			Published: strings.TrimSpace(it.PubDate),
		})
		if len(articles) >= limit {
			break
		}
	}
	return articles, nil
}

// Headlines renders articles as one "- title (source)" line each.
func Headlines(articles []Article) string {
	var b strings.Builder
	for _, a := range articles {
		b.WriteString("- ")
		b.WriteString(a.Title)
		if a.Source != "" {
			b.WriteString(" (")
			b.WriteString(a.Source)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
