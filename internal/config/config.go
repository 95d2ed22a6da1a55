package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ScraperConfig struct {
	UserAgent      string `yaml:"userAgent"`
	AcceptLanguage string `yaml:"acceptLanguage"`
	TimeoutMs      int    `yaml:"timeoutMs"`
	MaxChars       int    `yaml:"maxChars"`
	RespectRobots  bool   `yaml:"respectRobots"`
}

type RodConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BrowserURL string `yaml:"browserURL"`
}

type StoreConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend string `yaml:"backend"`
}

type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type QuotaConfig struct {
	// FreeCalls is nil when unset; an explicit 0 makes every route premium-only.
	FreeCalls     *int     `yaml:"freeCalls"`
	PremiumHeader string   `yaml:"premiumHeader"`
	FreePlans     []string `yaml:"freePlans"`
}

// FreeCallLimit is the number of free calls each client is admitted.
func (q QuotaConfig) FreeCallLimit() int {
	if q.FreeCalls == nil {
		return DefaultFreeCalls
	}
	return *q.FreeCalls
}

type WebhookConfig struct {
	TimeoutMs int    `yaml:"timeoutMs"`
	Message   string `yaml:"message"`
}

type NewsConfig struct {
	FeedURL     string `yaml:"feedURL"`
	TimeoutMs   int    `yaml:"timeoutMs"`
	MaxArticles int    `yaml:"maxArticles"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type GoogleLLMConfig struct {
	APIKey string `yaml:"apiKey"`
	// BaseURL overrides the Gemini API endpoint; empty uses the SDK default.
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type LLMConfig struct {
	DefaultProvider string          `yaml:"defaultProvider"`
	Temperature     float64         `yaml:"temperature"`
	MaxTokens       int             `yaml:"maxTokens"` // 0 leaves the provider's own output limit in place
	TimeoutMs       int             `yaml:"timeoutMs"`
	MaxRetries      int             `yaml:"maxRetries"`
	RetryBaseMs     int             `yaml:"retryBaseMs"`
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Google          GoogleLLMConfig `yaml:"google"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Scraper ScraperConfig `yaml:"scraper"`
	Rod     RodConfig     `yaml:"rod"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	Quota   QuotaConfig   `yaml:"quota"`
	Webhook WebhookConfig `yaml:"webhook"`
	News    NewsConfig    `yaml:"news"`
	LLM     LLMConfig     `yaml:"llm"`
}

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"
	DefaultFeedURL   = "https://news.google.com/rss/search?q=%s&hl=ja&gl=JP&ceid=JP:ja"
	DefaultFreeCalls = 5
)

// Load reads the YAML config at path, applies env overrides and defaults,
// and validates the result. A missing file is not an error: the service
// runs on defaults plus environment.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		// An empty file decodes as io.EOF; treat it like a missing one.
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overlays well-known environment variables. getenv is injected so
// tests do not have to touch the process environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.Google.APIKey = v
	} else if v := getenv("GOOGLE_API_KEY"); v != "" {
		c.LLM.Google.APIKey = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.OpenAI.APIKey = v
	}
	if v := getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.Anthropic.APIKey = v
	}
	if v := getenv("LLM_PROVIDER"); v != "" {
		c.LLM.DefaultProvider = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
		if c.Store.Backend == "" {
			c.Store.Backend = "redis"
		}
	}
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("FREE_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Quota.FreeCalls = &n
		}
	}
}

// ApplyDefaults fills every zero value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Scraper.UserAgent == "" {
		c.Scraper.UserAgent = DefaultUserAgent
	}
	if c.Scraper.AcceptLanguage == "" {
		c.Scraper.AcceptLanguage = "ja,en;q=0.8"
	}
	if c.Scraper.TimeoutMs <= 0 {
		c.Scraper.TimeoutMs = 15000
	}
	if c.Scraper.MaxChars <= 0 {
		c.Scraper.MaxChars = 15000
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "bizapi:"
	}
	if c.Quota.FreeCalls == nil {
		n := DefaultFreeCalls
		c.Quota.FreeCalls = &n
	}
	if c.Quota.PremiumHeader == "" {
		c.Quota.PremiumHeader = "X-RapidAPI-Subscription"
	}
	if len(c.Quota.FreePlans) == 0 {
		c.Quota.FreePlans = []string{"BASIC"}
	}
	if c.Webhook.TimeoutMs <= 0 {
		c.Webhook.TimeoutMs = 5000
	}
	if c.Webhook.Message == "" {
		c.Webhook.Message = "Change detected"
	}
	if c.News.FeedURL == "" {
		c.News.FeedURL = DefaultFeedURL
	}
	if c.News.TimeoutMs <= 0 {
		c.News.TimeoutMs = 10000
	}
	if c.News.MaxArticles <= 0 {
		c.News.MaxArticles = 10
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "google"
	}
	if c.LLM.MaxTokens < 0 {
		c.LLM.MaxTokens = 0
	}
	if c.LLM.TimeoutMs <= 0 {
		c.LLM.TimeoutMs = 60000
	}
	if c.LLM.RetryBaseMs <= 0 {
		c.LLM.RetryBaseMs = 300
	}
	if c.LLM.Google.Model == "" {
		c.LLM.Google.Model = "gemini-2.5-flash"
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "gpt-4o-mini"
	}
	if c.LLM.OpenAI.BaseURL == "" {
		c.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Anthropic.BaseURL == "" {
		c.LLM.Anthropic.BaseURL = "https://api.anthropic.com/v1"
	}
	if c.LLM.Anthropic.Model == "" {
		c.LLM.Anthropic.Model = "claude-3-5-haiku-latest"
	}
}

// Validate rejects settings the rest of the service cannot act on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLM.DefaultProvider) {
	case "google", "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.LLM.DefaultProvider)
	}
	switch strings.ToLower(c.Store.Backend) {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("store backend redis requires redis.url")
		}
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	if c.Quota.FreeCallLimit() < 0 {
		return errors.New("quota.freeCalls must not be negative")
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New("llm.maxRetries must not be negative")
	}
	return nil
}
