// Package mcp serves the passage ranker and the advocate turn as Model
// Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/ai-advocate/advocate"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/pkg/logging"
	"github.com/sweetpotato0/ai-advocate/rag/ranker"
	"github.com/sweetpotato0/ai-advocate/store"
)

// Tool names.
const (
	ToolSimilarity = "search_similar_legal_text"
	ToolTurn       = "advocate_turn"
)

// Ranker scores passages against a query.
type Ranker interface {
	Rank(ctx context.Context, query string, passages []string) ([]ranker.Result, error)
}

// Advancer runs one conversational turn.
type Advancer interface {
	Advance(ctx context.Context, req advocate.AdvanceRequest) (*advocate.Turn, error)
}

// ServerInfo is advertised during initialization.
type ServerInfo struct {
	Name    string
	Version string
}

// Option configures a Server.
type Option func(*Server)

// WithRanker registers the similarity tool.
func WithRanker(r Ranker) Option {
	return func(s *Server) { s.ranker = r }
}

// WithAdvocate registers the turn tool. History is read from h before each
// turn; the coordinator records the result.
func WithAdvocate(a Advancer, h store.HistoryReader) Option {
	return func(s *Server) {
		s.advancer = a
		s.history = h
	}
}

// Server wraps the SDK server.
type Server struct {
	ranker   Ranker
	advancer Advancer
	history  store.HistoryReader
	logger   *slog.Logger
	sdk      *sdkmcp.Server
}

// NewServer registers one tool per configured capability.
func NewServer(info ServerInfo, opts ...Option) (*Server, error) {
	if info.Name == "" {
		info.Name = "ai-advocate"
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	s := &Server{logger: logging.WithComponent("mcp")}
	for _, opt := range opts {
		opt(s)
	}
	if s.ranker == nil && s.advancer == nil {
		return nil, errors.New("mcp: no tools configured")
	}
	if s.advancer != nil && s.history == nil {
		return nil, errors.New("mcp: advocate tool requires a history reader")
	}

	s.sdk = sdkmcp.NewServer(&sdkmcp.Implementation{Name: info.Name, Version: info.Version}, nil)
	if s.ranker != nil {
		sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
			Name: ToolSimilarity,
			Description: "Scores legal text sections against a query by semantic similarity. " +
				"Returns every non-blank section with its cosine similarity and the best match.",
		}, s.similarity)
	}
	if s.advancer != nil {
		sdkmcp.AddTool(s.sdk, &sdkmcp.Tool{
			Name: ToolTurn,
			Description: "Sends one message to the legal advocate. The reply is either a single " +
				"follow-up question or a findings report with a disclaimer. A failed turn is an " +
				"error result whose kind is \"error\".",
		}, s.turn)
	}
	return s, nil
}

// Run serves over stdin/stdout until ctx is cancelled or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	return s.sdk.Run(ctx, &sdkmcp.StdioTransport{})
}

// SimilarityInput is the argument of ToolSimilarity.
type SimilarityInput struct {
	Query    string   `json:"query" jsonschema:"the legal question or fact pattern"`
	Sections []string `json:"sections" jsonschema:"candidate statute or precedent passages"`
}

// ScoredSection is one ranked passage.
type ScoredSection struct {
	Index      int     `json:"index"`
	Section    string  `json:"section"`
	Similarity float64 `json:"similarity"`
}

// SimilarityOutput is the result of ToolSimilarity.
type SimilarityOutput struct {
	Results []ScoredSection `json:"results"`
	Best    *ScoredSection  `json:"best,omitempty"`
}

func (s *Server) similarity(ctx context.Context, _ *sdkmcp.CallToolRequest, in SimilarityInput) (*sdkmcp.CallToolResult, SimilarityOutput, error) {
	out := SimilarityOutput{Results: []ScoredSection{}}
	if strings.TrimSpace(in.Query) == "" {
		return nil, out, fmt.Errorf("%w: query cannot be empty", errorskg.ErrInvalidInput)
	}

	results, err := s.ranker.Rank(ctx, in.Query, in.Sections)
	switch {
	case errors.Is(err, errorskg.ErrEmptyInput):
		return textResult(out), out, nil
	case err != nil:
		s.logger.Warn("similarity tool failed", "error", err)
		return nil, out, err
	}

	for _, r := range results {
		out.Results = append(out.Results, ScoredSection{Index: r.Index, Section: r.Passage, Similarity: r.Score})
	}
	if best, ok := ranker.Best(results); ok {
		out.Best = &ScoredSection{Index: best.Index, Section: best.Passage, Similarity: best.Score}
	}
	return textResult(out), out, nil
}

// TurnInput is the argument of ToolTurn.
type TurnInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"conversation id; omit to start a new conversation"`
	Message   string `json:"message" jsonschema:"what the user says"`
}

// TurnOutput is the result of ToolTurn.
type TurnOutput struct {
	SessionID string         `json:"session_id"`
	Kind      advocate.Kind  `json:"kind"`
	Response  string         `json:"response"`
	Trace     advocate.Trace `json:"trace"`
}

func (s *Server) turn(ctx context.Context, _ *sdkmcp.CallToolRequest, in TurnInput) (*sdkmcp.CallToolResult, TurnOutput, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	out := TurnOutput{SessionID: sessionID}

	records, err := s.history.History(ctx, sessionID)
	if err != nil {
		return nil, out, fmt.Errorf("load history: %w", err)
	}
	turn, err := s.advancer.Advance(ctx, advocate.AdvanceRequest{
		SessionID: sessionID,
		History:   store.Messages(records),
		Message:   in.Message,
	})
	if err != nil {
		if errors.Is(err, errorskg.ErrInvalidInput) {
			return nil, out, err
		}
		s.logger.Warn("advocate turn failed", "session_id", sessionID, "error", err)
		failed := advocate.ErrorResponse(err)
		out.Kind = failed.Kind
		out.Response = failed.Response
		out.Trace = failed.Trace
		res := textResult(out)
		res.IsError = true
		return res, out, nil
	}

	out.Kind = turn.Kind
	out.Response = turn.Response
	out.Trace = turn.Trace
	return textResult(out), out, nil
}

// textResult renders v as the tool's text content so clients without
// structured-content support still see the full result.
func textResult(v any) *sdkmcp.CallToolResult {
	raw, err := json.Marshal(v)
	if err != nil {
		raw = []byte(fmt.Sprint(v))
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(raw)}},
	}
}
