package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// Client is the interface for LLM interactions.
type Client interface {
	ChatCompletion(ctx context.Context, messages []Message) (*Response, error)
	ChatCompletionStream(ctx context.Context, messages []Message, handler StreamHandler) (*Response, error)
}

// OpenAICompatClient works with any OpenAI-compatible API: OpenAI itself,
// Ollama's /v1 endpoint and LM Studio.
type OpenAICompatClient struct {
	client      *openai.Client
	provider    string
	model       string
	baseURL     string
	temperature float64
	logger      *zap.Logger
}

// NewClient creates an LLM client for the given provider endpoint.
func NewClient(provider, baseURL, apiKey, model string) *OpenAICompatClient {
	if apiKey == "" {
		// Local servers ignore the key but the SDK requires one.
		apiKey = "local"
	}
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &OpenAICompatClient{
		client:      &client,
		provider:    provider,
		model:       model,
		baseURL:     baseURL,
		temperature: 0.2,
		logger:      zap.NewNop(),
	}
}

// SetLogger sets the logger used for retry notices.
func (c *OpenAICompatClient) SetLogger(logger *zap.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

func (c *OpenAICompatClient) params(messages []Message) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    convertMessages(messages),
		Temperature: openai.Float(c.temperature),
	}
}

func (c *OpenAICompatClient) ChatCompletion(ctx context.Context, messages []Message) (*Response, error) {
	params := c.params(messages)

	var completion *openai.ChatCompletion
	err := c.retryRateLimited(ctx, "chat completion", func() error {
		var err error
		completion, err = c.client.Chat.Completions.New(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	return assistantResponse(completion.Choices[0].Message.Content), nil
}

// retryRateLimited runs call, retrying with backoff while the provider
// answers 429. Other failures are classified and returned at once.
func (c *OpenAICompatClient) retryRateLimited(ctx context.Context, op string, call func() error) error {
	for attempt := 0; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		if !isRateLimited(err) || attempt == maxAttempts-1 {
			return classify(c.provider, c.baseURL, fmt.Errorf("%s: %w", op, err))
		}
		wait := time.Duration(2<<attempt) * time.Second // 2s, 4s
		c.logger.Info("rate limited, retrying", zap.String("provider", c.provider), zap.Duration("wait", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return classify(c.provider, c.baseURL, fmt.Errorf("%s: %w", op, ctx.Err()))
		}
	}
}

const maxAttempts = 3

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return strings.Contains(err.Error(), "429")
}

func assistantResponse(content string) *Response {
	return &Response{Message: AssistantMessage(content)}
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return out
}

// ListModels queries Ollama's native /api/tags endpoint for available models.
// The baseURL is expected to end with /v1/ (OpenAI-compat); we strip that to
// reach the native Ollama API.
func (c *OpenAICompatClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	base := strings.TrimRight(c.baseURL, "/")
	base = strings.TrimSuffix(base, "/v1")
	url := base + "/api/tags"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, classify(c.provider, c.baseURL, fmt.Errorf("fetching models: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Models []struct {
			Name       string `json:"name"`
			Size       int64  `json:"size"`
			ModifiedAt string `json:"modified_at"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	models := make([]ModelInfo, len(result.Models))
	for i, m := range result.Models {
		models[i] = ModelInfo{
			Name:       m.Name,
			Size:       m.Size,
			ModifiedAt: m.ModifiedAt,
		}
	}
	return models, nil
}
