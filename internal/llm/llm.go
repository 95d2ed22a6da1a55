// Package llm is the completion client: prompt in, text out. It does not
// interpret the text; JSON recovery lives in package extract.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"bizapi/internal/config"
)

// Provider represents a logical LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

var (
	ErrTimeout       = errors.New("llm: completion timed out")
	ErrRateLimited   = errors.New("llm: provider rate limited the request")
	ErrEmptyResponse = errors.New("llm: provider returned an empty completion")
	ErrNotConfigured = errors.New("llm: provider is not configured")
)

// ProviderError wraps any other provider failure. Status is the upstream
// HTTP status when one was received.
type ProviderError struct {
	Provider Provider
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s completion failed with status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Options tunes a single completion. Temperature 0 is sent explicitly; any
// caller that caches results relies on it.
type Options struct {
	Temperature float64
	// JSONMode asks the provider for a JSON-only response where supported.
	JSONMode bool
	// Schema describes the requested output shape. Providers pass it as a
	// system instruction.
	Schema    string
	MaxTokens int
}

// systemInstruction renders the JSON-mode and schema requests as one
// instruction; empty when neither is set.
func systemInstruction(opts Options) string {
	var parts []string
	if opts.JSONMode {
		parts = append(parts, "Respond with a single JSON value and no extra text.")
	}
	if opts.Schema != "" {
		parts = append(parts, "The JSON value must have this shape: "+opts.Schema)
	}
	return strings.Join(parts, " ")
}

// Completion is the raw text produced for a prompt.
type Completion struct {
	Text     string
	Provider Provider
	Model    string
}

// Completer is the abstraction used by the pipeline.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (Completion, error)
}

// Info describes a completer for health output and logs.
type Info struct {
	Provider   Provider
	Model      string
	Configured bool
}

type describer interface {
	Info() Info
}

// Describe returns c's Info, or a zero Info for completers that do not
// describe themselves (test stubs).
func Describe(c Completer) Info {
	if d, ok := c.(describer); ok {
		return d.Info()
	}
	return Info{Configured: true}
}

// NewFromConfig builds the configured provider wrapped with the per-call
// timeout and, when llm.maxRetries > 0, bounded retry. A provider without an
// API key is still returned: every call fails with ErrNotConfigured so the
// service can start and report the problem per request.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Completer, error) {
	timeout := time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond
	httpClient := &http.Client{Timeout: timeout}

	var (
		base Completer
		err  error
	)
	prov := Provider(strings.ToLower(cfg.LLM.DefaultProvider))
	switch prov {
	case ProviderGoogle:
		g := cfg.LLM.Google
		if g.APIKey == "" {
			base = &unconfigured{info: Info{Provider: prov, Model: g.Model}, env: "GEMINI_API_KEY"}
			break
		}
		base, err = NewGoogle(ctx, g, httpClient)
	case ProviderOpenAI:
		o := cfg.LLM.OpenAI
		if o.APIKey == "" {
			base = &unconfigured{info: Info{Provider: prov, Model: o.Model}, env: "OPENAI_API_KEY"}
			break
		}
		base = NewOpenAI(o, httpClient)
	case ProviderAnthropic:
		a := cfg.LLM.Anthropic
		if a.APIKey == "" {
			base = &unconfigured{info: Info{Provider: prov, Model: a.Model}, env: "ANTHROPIC_API_KEY"}
			break
		}
		base = NewAnthropic(a, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.DefaultProvider)
	}
	if err != nil {
		return nil, err
	}

	c := WithTimeout(base, timeout)
	if cfg.LLM.MaxRetries > 0 {
		c = NewRetrying(c, uint64(cfg.LLM.MaxRetries), time.Duration(cfg.LLM.RetryBaseMs)*time.Millisecond)
	}
	return c, nil
}

// unconfigured fails every call with ErrNotConfigured.
type unconfigured struct {
	info Info
	env  string
}

func (u *unconfigured) Complete(context.Context, string, Options) (Completion, error) {
	return Completion{}, fmt.Errorf("%w: set %s", ErrNotConfigured, u.env)
}

func (u *unconfigured) Info() Info { return u.info }

// timeoutCompleter bounds every call.
type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

// WithTimeout bounds each call to next by d. A zero d disables the bound.
func WithTimeout(next Completer, d time.Duration) Completer {
	if d <= 0 {
		return next
	}
	return &timeoutCompleter{next: next, timeout: d}
}

func (t *timeoutCompleter) Complete(ctx context.Context, prompt string, opts Options) (Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, prompt, opts)
}

func (t *timeoutCompleter) Info() Info { return Describe(t.next) }

// classify maps a transport or SDK error onto the package sentinels.
func classify(provider Provider, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return &ProviderError{Provider: provider, Status: status, Err: err}
}

// Retryable reports whether err is worth another attempt: timeouts, rate
// limiting and upstream 5xx.
func Retryable(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Status >= 500
}

func nonEmpty(provider Provider, model, text string) (Completion, error) {
	if strings.TrimSpace(text) == "" {
		return Completion{}, ErrEmptyResponse
	}
	return Completion{Text: text, Provider: provider, Model: model}, nil
}
