package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// #region langchain

// LangChainConfig configures an OpenAI-compatible endpoint such as Groq.
type LangChainConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// LangChain completes prompts through a langchaingo model.
type LangChain struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// NewLangChain builds a completer on langchaingo's OpenAI-compatible client.
func NewLangChain(cfg LangChainConfig) (*LangChain, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain client: %w", err)
	}
	return NewLangChainWithModel(model, cfg.Temperature, cfg.MaxTokens), nil
}

// NewLangChainWithModel wraps an existing langchaingo model.
func NewLangChainWithModel(model llms.Model, temperature float64, maxTokens int) *LangChain {
	return &LangChain{model: model, temperature: temperature, maxTokens: maxTokens}
}

// Complete sends prompt as a single human message.
func (l *LangChain) Complete(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(l.temperature)}
	if l.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(l.maxTokens))
	}
	resp, err := l.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("langchain generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Content, nil
}

// #endregion langchain
