package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"bizapi/internal/config"
)

// googleClient implements Completer using the Gemini API via the genai SDK.
type googleClient struct {
	client *genai.Client
	model  string
}

func NewGoogle(ctx context.Context, cfg config.GoogleLLMConfig, httpClient *http.Client) (Completer, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &googleClient{client: client, model: cfg.Model}, nil
}

func (c *googleClient) Info() Info {
	return Info{Provider: ProviderGoogle, Model: c.model, Configured: true}
}

func (c *googleClient) Complete(ctx context.Context, prompt string, opts Options) (Completion, error) {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.JSONMode {
		gc.ResponseMIMEType = "application/json"
	}
	if sys := systemInstruction(opts); sys != "" {
		gc.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), gc)
	if err != nil {
		status := 0
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return Completion{}, classify(ProviderGoogle, status, err)
	}
	return nonEmpty(ProviderGoogle, c.model, resp.Text())
}
