package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bizapi/internal/config"
)

// anthropicClient implements Completer using Anthropic's Messages API.
type anthropicClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func NewAnthropic(cfg config.AnthropicConfig, httpClient *http.Client) Completer {
	return &anthropicClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    httpClient,
	}
}

// anthropicMessagesRequest & response are minimal shapes for Anthropic's Messages API.
type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicTextContent `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *anthropicClient) Info() Info {
	return Info{Provider: ProviderAnthropic, Model: c.model, Configured: true}
}

func (c *anthropicClient) Complete(ctx context.Context, prompt string, opts Options) (Completion, error) {
	// The messages API requires a cap.
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := anthropicMessagesRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: []anthropicTextContent{{Type: "text", Text: prompt}},
			},
		},
	}
	body.System = systemInstruction(opts)

	payload, err := json.Marshal(body)
	if err != nil {
		return Completion{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return Completion{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Completion{}, classify(ProviderAnthropic, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var apiErr anthropicErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return Completion{}, classify(ProviderAnthropic, resp.StatusCode, errors.New(msg))
	}

	var parsed anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Completion{}, classify(ProviderAnthropic, 0, fmt.Errorf("decode messages response: %w", err))
	}

	var sb strings.Builder
	for _, part := range parsed.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	return nonEmpty(ProviderAnthropic, c.model, sb.String())
}
