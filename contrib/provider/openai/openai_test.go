package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sweetpotato0/ai-advocate/agent"
	"github.com/sweetpotato0/ai-advocate/message"
)

func TestGenerateSendsConversation(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"issues\":[]}"}}]}`)
	}))
	defer srv.Close()

	p := New(&Config{APIKey: "test", BaseURL: srv.URL + "/", Model: "gpt-4o-mini"})
	resp, err := p.Generate(context.Background(), &agent.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, "classify"),
			message.NewMessage(message.RoleAdvocate, "earlier answer"),
			message.NewMessage(message.RoleUser, "I was hit by a car"),
		},
		JSON: true,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text() != `{"issues":[]}` {
		t.Fatalf("unexpected reply %q", resp.Text())
	}

	msgs, _ := body["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %#v", body["messages"])
	}
	if role := msgs[1].(map[string]any)["role"]; role != "assistant" {
		t.Errorf("advocate turn should map to assistant, got %v", role)
	}
	format, _ := body["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %#v", body["response_format"])
	}
}

func TestGenerateReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`)
	}))
	defer srv.Close()

	p := New(&Config{APIKey: "test", BaseURL: srv.URL + "/"})
	_, err := p.Generate(context.Background(), &agent.GenerateRequest{
		Messages: []*message.Message{message.NewMessage(message.RoleUser, "hi")},
	})
	if agent.StatusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %v", err)
	}
}
