package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "REDIS_URL", "LLM_PROVIDER", "FREE_CALLS"} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Scraper.MaxChars != 15000 {
		t.Fatalf("expected default maxChars 15000, got %d", cfg.Scraper.MaxChars)
	}
	if cfg.Quota.FreeCallLimit() != 5 {
		t.Fatalf("expected default freeCalls 5, got %d", cfg.Quota.FreeCallLimit())
	}
	if cfg.LLM.MaxTokens != 0 {
		t.Fatalf("expected no default token cap, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("expected memory backend, got %q", cfg.Store.Backend)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
quota:
  freeCalls: 3
  premiumHeader: X-Plan
llm:
  defaultProvider: openai
  openai:
    model: gpt-test
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Quota.FreeCallLimit() != 3 {
		t.Fatalf("expected freeCalls 3, got %d", cfg.Quota.FreeCallLimit())
	}
	if cfg.Quota.PremiumHeader != "X-Plan" {
		t.Fatalf("expected premium header X-Plan, got %q", cfg.Quota.PremiumHeader)
	}
	if cfg.LLM.OpenAI.Model != "gpt-test" {
		t.Fatalf("expected model gpt-test, got %q", cfg.LLM.OpenAI.Model)
	}
	if cfg.LLM.Google.Model != "gemini-2.5-flash" {
		t.Fatalf("expected google model default, got %q", cfg.LLM.Google.Model)
	}
}

func TestLoad_ZeroFreeCallsIsKept(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("quota:\n  freeCalls: 0\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Quota.FreeCallLimit() != 0 {
		t.Fatalf("expected freeCalls 0 to be kept, got %d", cfg.Quota.FreeCallLimit())
	}

	var env Config
	env.ApplyEnv(func(k string) string {
		if k == "FREE_CALLS" {
			return "0"
		}
		return ""
	})
	env.ApplyDefaults()
	if env.Quota.FreeCallLimit() != 0 {
		t.Fatalf("expected FREE_CALLS=0 to be kept, got %d", env.Quota.FreeCallLimit())
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GEMINI_API_KEY": "g-key",
		"REDIS_URL":      "redis://localhost:6379/0",
		"PORT":           "7000",
		"FREE_CALLS":     "9",
	}
	var cfg Config
	cfg.ApplyEnv(func(k string) string { return env[k] })
	cfg.ApplyDefaults()

	if cfg.LLM.Google.APIKey != "g-key" {
		t.Fatalf("expected google key from env, got %q", cfg.LLM.Google.APIKey)
	}
	if cfg.Store.Backend != "redis" {
		t.Fatalf("expected REDIS_URL to select redis backend, got %q", cfg.Store.Backend)
	}
	if cfg.Server.Port != 7000 {
		t.Fatalf("expected port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Quota.FreeCallLimit() != 9 {
		t.Fatalf("expected freeCalls 9, got %d", cfg.Quota.FreeCallLimit())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidate_RejectsUnknownValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"provider", func(c *Config) { c.LLM.DefaultProvider = "mystery" }},
		{"backend", func(c *Config) { c.Store.Backend = "etcd" }},
		{"redis without url", func(c *Config) { c.Store.Backend = "redis"; c.Redis.URL = "" }},
		{"negative retries", func(c *Config) { c.LLM.MaxRetries = -1 }},
		{"negative free calls", func(c *Config) { n := -1; c.Quota.FreeCalls = &n }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
