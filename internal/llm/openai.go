package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIProvider talks to any OpenAI-compatible chat-completion endpoint.
// Plubot points it at xAI.
type OpenAIProvider struct {
	chat chatService
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider from WithAPIKey and WithBaseURL.
// The SDK's own retries are disabled; Client applies its RetryPolicy.
func NewOpenAIProvider(opts ...Option) (*OpenAIProvider, error) {
	cfg := buildOpts(opts)
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	cli := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	)
	slog.Debug("OpenAIProvider.NewOpenAIProvider: created", "baseURL", cfg.BaseURL)
	return &OpenAIProvider{chat: &cli.Chat.Completions}, nil
}

// ChatCompletion sends req and returns the first choice's content.
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.chat.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
