package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const geminiEndpoint = "generativelanguage.googleapis.com"

// GeminiClient talks to the Gemini API through the genai SDK.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

// NewGeminiClient creates a Gemini client. An empty apiKey falls back to
// the SDK's GOOGLE_API_KEY / GEMINI_API_KEY lookup.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) ChatCompletion(ctx context.Context, messages []Message) (*Response, error) {
	var cfg genai.GenerateContentConfig
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model, contents, &cfg)
	if err != nil {
		return nil, classify("gemini", geminiEndpoint, fmt.Errorf("generate content: %w", err))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no candidates returned")
	}

	return &Response{
		Message: Message{
			Role:    RoleAssistant,
			Content: resp.Text(),
		},
	}, nil
}

// ChatCompletionStream delivers the whole reply as a single delta.
func (g *GeminiClient) ChatCompletionStream(ctx context.Context, messages []Message, handler StreamHandler) (*Response, error) {
	resp, err := g.ChatCompletion(ctx, messages)
	if err != nil {
		return nil, err
	}
	if handler != nil && resp.Message.Content != "" {
		handler(resp.Message.Content)
	}
	return resp, nil
}
