package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sweetpotato0/ai-advocate/agent"
	"github.com/sweetpotato0/ai-advocate/message"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-2.5-flash",
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

// Provider implements agent.LLMClient for Google Gemini.
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a Gemini provider. Close releases the underlying connection.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil || strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// Close shuts down the client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Generate implements agent.LLMClient interface
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}
	system, history, last := splitConversation(req.Messages)
	if last == "" {
		return nil, fmt.Errorf("generate request has no user message")
	}

	model := p.client.GenerativeModel(p.config.Model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	temp := p.config.Temperature
	if req.Temperature != nil {
		temp = float32(*req.Temperature)
	}
	model.SetTemperature(temp)
	maxTokens := p.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(maxTokens)
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	chat := model.StartChat()
	chat.History = history
	resp, err := chat.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, wrapError(err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, agent.ErrEmptyResponse
	}
	return &agent.GenerateResponse{
		Message: message.NewMessage(message.RoleAssistant, text),
		Model:   p.config.Model,
	}, nil
}

// splitConversation separates system text, prior turns and the final user
// message in the shape the chat session expects.
func splitConversation(msgs []*message.Message) (system string, history []*genai.Content, last string) {
	var sys []string
	var turns []*message.Message
	for _, msg := range msgs {
		if msg.Role == message.RoleSystem {
			sys = append(sys, msg.Text())
			continue
		}
		turns = append(turns, msg)
	}
	if n := len(turns); n > 0 && turns[n-1].Role == message.RoleUser {
		last = turns[n-1].Text()
		turns = turns[:n-1]
	}
	for _, msg := range turns {
		role := "user"
		if msg.Role == message.RoleAdvocate || msg.Role == message.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Text())}})
	}
	return strings.Join(sys, "\n\n"), history, last
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return strings.TrimSpace(sb.String())
}

func wrapError(err error) error {
	wrapped := fmt.Errorf("Gemini API error: %w", err)
	if code := statusCode(err); code != 0 {
		return &agent.StatusError{Code: code, Err: wrapped}
	}
	return wrapped
}

// statusCode maps REST and gRPC failures onto HTTP status codes.
func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	s, ok := status.FromError(err)
	if !ok {
		return 0
	}
	switch s.Code() {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Internal, codes.Unknown:
		return http.StatusInternalServerError
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	default:
		return 0
	}
}
