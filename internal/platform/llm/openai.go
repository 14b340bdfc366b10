package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/settings"
)

// openAIProvider atende o provedor "openai" e o "custom": qualquer
// endpoint compatível com a API da OpenAI (LM Studio, vLLM, gateways)
// entra pelo override de BaseURL.
type openAIProvider struct {
	client *openai.Client
	model  string
	name   string
}

func newOpenAIProvider(cfg settings.LLMSettings) (*openAIProvider, error) {
	if cfg.APIKey == "" && cfg.Provider == settings.ProviderOpenAI {
		return nil, ErrMissingAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &openAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		name:   cfg.Provider,
	}, nil
}

func (p *openAIProvider) Name() string { return p.name }

func (p *openAIProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserText},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openAIProvider) Probe(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
