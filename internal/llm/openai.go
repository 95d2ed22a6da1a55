package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"bizapi/internal/config"
)

// openAIClient implements Completer using the OpenAI Chat Completions API
// (or any compatible endpoint via baseURL).
type openAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg config.OpenAIConfig, httpClient *http.Client) Completer {
	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		// Retries are owned by Retrying.
		option.WithMaxRetries(0),
	)
	return &openAIClient{client: client, model: cfg.Model}
}

func (c *openAIClient) Info() Info {
	return Info{Provider: ProviderOpenAI, Model: c.model, Configured: true}
}

func (c *openAIClient) Complete(ctx context.Context, prompt string, opts Options) (Completion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)}
	if sys := systemInstruction(opts); sys != "" {
		messages = append([]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(sys)}, messages...)
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.F(c.model),
		Messages:    openai.F(messages),
		Temperature: openai.F(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.F(int64(opts.MaxTokens))
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONObjectParam{
				Type: openai.F(openai.ResponseFormatJSONObjectTypeJSONObject),
			},
		)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return Completion{}, classify(ProviderOpenAI, status, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrEmptyResponse
	}
	return nonEmpty(ProviderOpenAI, c.model, resp.Choices[0].Message.Content)
}
