// Package agent defines the language-model contract shared by the pipeline
// stages, plus retry and structured-output helpers around it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sweetpotato0/ai-advocate/message"
)

// LLMClient defines the interface for LLM providers
type LLMClient interface {
	// Generate produces a single completion for the given conversation.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest bundles inputs for a non-streaming LLM invocation.
type GenerateRequest struct {
	Messages []*message.Message

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// MaxTokens overrides the provider default when positive.
	MaxTokens int64

	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// GenerateResponse captures the LLM reply for non-streaming calls.
type GenerateResponse struct {
	Message *message.Message
	Model   string
}

// Text returns the trimmed reply text, or "" for a nil response.
func (r *GenerateResponse) Text() string {
	if r == nil {
		return ""
	}
	return r.Message.Text()
}

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Prompt is a system instruction plus one user message, the shape every
// stage call takes.
type Prompt struct {
	System      string
	User        string
	JSON        bool
	Temperature *float64
}

// Complete sends p to client and returns the reply text. Empty replies are
// reported as ErrEmptyResponse.
func Complete(ctx context.Context, client LLMClient, p Prompt) (string, error) {
	if client == nil {
		return "", errors.New("llm client not configured")
	}
	msgs := make([]*message.Message, 0, 2)
	if strings.TrimSpace(p.System) != "" {
		msgs = append(msgs, message.NewMessage(message.RoleSystem, p.System))
	}
	msgs = append(msgs, message.NewMessage(message.RoleUser, p.User))

	resp, err := client.Generate(ctx, &GenerateRequest{
		Messages:    msgs,
		Temperature: p.Temperature,
		JSON:        p.JSON,
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// StatusError carries the HTTP-like status of a failed provider call so the
// retry policy can classify it.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// StatusCode extracts the status code from err, or 0 when there is none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Float returns a pointer to v, for GenerateRequest.Temperature.
func Float(v float64) *float64 { return &v }
