package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sweetpotato0/ai-advocate/agent"
	"github.com/sweetpotato0/ai-advocate/message"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default OpenAI configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       string(openai.ChatModelGPT4oMini),
		MaxTokens:   2000,
		Temperature: 0.2,
	}
}

// Provider implements agent.LLMClient for OpenAI-compatible chat APIs.
type Provider struct {
	config *Config
	client openai.Client
}

// New creates a new OpenAI provider. SDK retries are disabled; wrap the
// provider with agent.WithRetry instead.
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = string(openai.ChatModelGPT4oMini)
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: openai.NewClient(options...),
	}
}

// Generate implements agent.LLMClient interface
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case message.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(msg.Text()))
		case message.RoleAdvocate, message.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(msg.Text()))
		default:
			msgs = append(msgs, openai.UserMessage(msg.Text()))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(p.config.Model),
	}
	temp := p.config.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}
	maxTokens := p.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(maxTokens)
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, agent.ErrEmptyResponse
	}

	reply := message.NewMessage(message.RoleAssistant, completion.Choices[0].Message.Content)
	return &agent.GenerateResponse{Message: reply, Model: completion.Model}, nil
}

func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &agent.StatusError{Code: apiErr.StatusCode, Err: fmt.Errorf("OpenAI API error: %w", err)}
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}
