// Package store persists conversation turns per session. Storage is
// append-only: records are never deduplicated, versioned or rewritten.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/message"
)

// Record is one stored conversation turn.
type Record struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      message.Role   `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recorder appends records.
type Recorder interface {
	Append(ctx context.Context, rec *Record) error
}

// HistoryReader returns a session's records in insertion order.
type HistoryReader interface {
	History(ctx context.Context, sessionID string) ([]*Record, error)
}

// Store is a complete persistence backend.
type Store interface {
	Recorder
	HistoryReader
	Ping(ctx context.Context) error
	Close() error
}

// NewRecord converts msg into a record for sessionID.
func NewRecord(sessionID string, msg *message.Message) *Record {
	rec := &Record{
		ID:        msg.ID,
		SessionID: sessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		Metadata:  msg.Metadata,
		CreatedAt: msg.CreatedAt,
	}
	return rec
}

// Message converts the record back into a conversation turn.
func (r *Record) Message() *message.Message {
	return &message.Message{
		ID:        r.ID,
		Role:      r.Role,
		Content:   r.Content,
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
	}
}

// Messages converts records into conversation history.
func Messages(records []*Record) []*message.Message {
	out := make([]*message.Message, 0, len(records))
	for _, r := range records {
		out = append(out, r.Message())
	}
	return out
}

// prepare validates rec, fills the ID and timestamp, and rewrites the
// metadata into plain JSON values so every backend returns the same shape.
func prepare(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: record cannot be nil", errorskg.ErrInvalidInput)
	}
	if rec.SessionID == "" {
		return fmt.Errorf("%w: record session id is required", errorskg.ErrInvalidInput)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	meta, err := normalizeMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	rec.Metadata = meta
	return nil
}

func normalizeMetadata(meta map[string]any) (map[string]any, error) {
	if len(meta) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return out, nil
}
