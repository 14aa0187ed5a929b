// Package llm provides a decision oracle backed by a hosted language model.
// Anthropic and OpenAI are supported through their official SDKs; calls are
// paced by a token-bucket limiter shared by all negotiation goroutines.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

const (
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultOpenAIModel    = "gpt-4o-mini"
)

// Completer sends one system+user prompt pair and returns the response text.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Client wraps a Completer with rate limiting.
type Client struct {
	completer Completer
	limiter   *rate.Limiter
	maxTokens int
}

// NewClient creates a client allowing perMinute calls per minute (unlimited
// when perMinute <= 0). Returns nil if completer is nil (LLM features disabled).
func NewClient(completer Completer, perMinute, maxTokens int) *Client {
	if completer == nil {
		return nil
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	if maxTokens <= 0 {
		maxTokens = 600
	}
	return &Client{completer: completer, limiter: limiter, maxTokens: maxTokens}
}

// Enabled returns true if the client has a completer.
func (c *Client) Enabled() bool {
	return c != nil && c.completer != nil
}

// Complete waits for the rate limiter, then sends the prompt.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("LLM client not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return c.completer.Complete(ctx, system, user, c.maxTokens)
}

// AnthropicCompleter calls the Anthropic Messages API.
type AnthropicCompleter struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic completer. Empty model and baseURL use
// the defaults.
func NewAnthropic(apiKey, model, baseURL string) *AnthropicCompleter {
	var opts []aoption.RequestOption
	if apiKey != "" {
		opts = append(opts, aoption.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, aoption.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicCompleter{client: &client, model: model}
}

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("empty response")
	}

	slog.Debug("anthropic call",
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return b.String(), nil
}

// OpenAICompleter calls the OpenAI Chat Completions API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI completer. Empty model and baseURL use the
// defaults.
func NewOpenAI(apiKey, model, baseURL string) *OpenAICompleter {
	var opts []ooption.RequestOption
	if apiKey != "" {
		opts = append(opts, ooption.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, ooption.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	client := openai.NewClient(opts...)
	return &OpenAICompleter{client: &client, model: model}
}

// Complete implements Completer.
func (o *OpenAICompleter) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response")
	}

	slog.Debug("openai call",
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}
