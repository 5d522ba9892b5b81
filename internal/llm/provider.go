package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider kinds understood by Open.
const (
	KindOpenAI = "openai" // any OpenAI-compatible endpoint
	KindGemini = "gemini"
)

// Settings are the resolved connection details for one provider.
type Settings struct {
	Name    string
	Kind    string
	BaseURL string
	APIKey  string
	Model   string
}

// Open creates a Client for the given settings.
func Open(ctx context.Context, s Settings) (Client, error) {
	switch strings.ToLower(s.Kind) {
	case "", KindOpenAI:
		return NewClient(s.Name, s.BaseURL, s.APIKey, s.Model), nil
	case KindGemini:
		return NewGeminiClient(ctx, s.APIKey, s.Model)
	default:
		return nil, fmt.Errorf("unknown provider kind %q for %s", s.Kind, s.Name)
	}
}
