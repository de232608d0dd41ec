package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the role of the message sender
type Role string

const (
	// RoleUser marks text typed by the person describing their situation.
	RoleUser Role = "user"
	// RoleAdvocate marks responses produced by the pipeline.
	RoleAdvocate Role = "advocate"

	// RoleSystem and RoleAssistant are only used when talking to a model.
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
)

// TraceKey is the metadata key under which a turn trace is stored.
const TraceKey = "trace"

// Message represents a single turn in a conversation.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage creates a new message with the given role and content
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// NewAdvocateMessage creates an advocate turn carrying a structured trace.
func NewAdvocateMessage(content string, trace any) *Message {
	msg := NewMessage(RoleAdvocate, content)
	if trace != nil {
		msg.Metadata[TraceKey] = trace
	}
	return msg
}

// Text returns the trimmed content.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m.Content)
}

// Trace returns the stored trace, if any.
func (m *Message) Trace() (any, bool) {
	if m == nil || m.Metadata == nil {
		return nil, false
	}
	trace, ok := m.Metadata[TraceKey]
	return trace, ok
}

// Clone creates a deep copy of the message.
func Clone(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	cloned := *msg
	if msg.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return &cloned
}

// CloneMessages copies a slice of messages.
func CloneMessages(msgs []*Message) []*Message {
	if len(msgs) == 0 {
		return nil
	}
	clones := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		clones = append(clones, Clone(msg))
	}
	return clones
}

// Speaker returns the label used when a turn is replayed as prompt context.
func (r Role) Speaker() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAdvocate, RoleAssistant:
		return "Advocate"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Transcript renders history as "Speaker: text" lines in insertion order.
// Blank turns are skipped.
func Transcript(history []*Message) string {
	var sb strings.Builder
	for _, msg := range history {
		text := msg.Text()
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(msg.Role.Speaker())
		sb.WriteString(": ")
		sb.WriteString(text)
	}
	return sb.String()
}
