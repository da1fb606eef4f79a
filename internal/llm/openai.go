package llm

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
)

// #region openai

// OpenAIConfig configures the direct OpenAI chat client.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// OpenAI completes prompts with go-openai's chat completion endpoint.
type OpenAI struct {
	client *goopenai.Client
	cfg    OpenAIConfig
}

// NewOpenAI builds an OpenAI completer. BaseURL may point at any compatible server.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	c := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &OpenAI{client: goopenai.NewClientWithConfig(c), cfg: cfg}
}

// Complete sends prompt as a single user message.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.cfg.Temperature,
	}
	if o.cfg.MaxTokens > 0 {
		req.MaxTokens = o.cfg.MaxTokens
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// #endregion openai
