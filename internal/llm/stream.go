package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// StreamHandler receives text deltas during streaming.
type StreamHandler func(delta string)

// ChatCompletionStream sends a streaming chat completion request, passing
// each text delta to handler, and returns the accumulated reply.
func (c *OpenAICompatClient) ChatCompletionStream(ctx context.Context, messages []Message, handler StreamHandler) (*Response, error) {
	params := c.params(messages)

	var stream *ssestream.Stream[openai.ChatCompletionChunk]
	err := c.retryRateLimited(ctx, "chat completion stream", func() error {
		if stream != nil {
			stream.Close()
		}
		stream = c.client.Chat.Completions.NewStreaming(ctx, params)
		return stream.Err()
	})
	if err != nil {
		if stream != nil {
			stream.Close()
		}
		return nil, err
	}
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && handler != nil {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				handler(delta)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, classify(c.provider, c.baseURL, fmt.Errorf("streaming: %w", err))
	}

	if len(acc.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	return assistantResponse(acc.Choices[0].Message.Content), nil
}
