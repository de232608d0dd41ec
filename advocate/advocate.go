// Package advocate coordinates one conversational turn: fact gathering,
// then research once the facts are complete.
package advocate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sweetpotato0/ai-advocate/advocate/intake"
	"github.com/sweetpotato0/ai-advocate/advocate/research"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/graph"
	"github.com/sweetpotato0/ai-advocate/message"
	"github.com/sweetpotato0/ai-advocate/pkg/logging"
	"github.com/sweetpotato0/ai-advocate/pkg/metrics"
	"github.com/sweetpotato0/ai-advocate/pkg/telemetry"
	"github.com/sweetpotato0/ai-advocate/store"
	"go.opentelemetry.io/otel/attribute"
)

const turnStateKey = "__advocate_turn"

const (
	branchComplete   = "complete"
	branchCollecting = "collecting"
)

// Gatherer is the fact-gathering stage.
type Gatherer interface {
	Gather(ctx context.Context, history []*message.Message, msg string) (*intake.Outcome, error)
}

// Investigator is the research stage.
type Investigator interface {
	Investigate(ctx context.Context, summary *intake.CaseSummary) (*research.FindingsReport, error)
}

// AdvanceRequest is one user message plus the history before it.
type AdvanceRequest struct {
	SessionID string
	History   []*message.Message
	Message   string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder persists every successful turn.
func WithRecorder(r store.Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithMetrics records turn and stage metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator runs turns. It keeps no state between turns and is safe for
// concurrent use across sessions.
type Coordinator struct {
	intake   Gatherer
	research Investigator
	recorder store.Recorder
	metrics  *metrics.Metrics
	graph    *graph.Graph
	logger   *slog.Logger
}

type turnState struct {
	req     AdvanceRequest
	outcome *intake.Outcome
	report  *research.FindingsReport
}

// New wires the turn graph:
//
//	start -> intake -> gate{complete: research, collecting: end} -> research -> end
func New(gatherer Gatherer, investigator Investigator, opts ...Option) (*Coordinator, error) {
	if gatherer == nil {
		return nil, fmt.Errorf("fact-gathering stage is required")
	}
	if investigator == nil {
		return nil, fmt.Errorf("research stage is required")
	}
	c := &Coordinator{
		intake:   gatherer,
		research: investigator,
		logger:   logging.WithComponent("advocate"),
	}
	for _, opt := range opts {
		opt(c)
	}

	g, err := graph.NewBuilder().
		AddNode("start", graph.NodeTypeStart, nil).
		AddNode(intake.StageName, graph.NodeTypeStage, c.intakeNode).
		AddConditionNode("gate", c.gate, map[string]string{
			branchComplete:   research.StageName,
			branchCollecting: "end",
		}).
		AddNode(research.StageName, graph.NodeTypeStage, c.researchNode).
		AddNode("end", graph.NodeTypeEnd, nil).
		AddEdge("start", intake.StageName).
		AddEdge(intake.StageName, "gate").
		AddEdge(research.StageName, "end").
		Build()
	if err != nil {
		return nil, fmt.Errorf("build turn graph: %w", err)
	}
	c.graph = g
	return c, nil
}

// Advance runs one turn. On success both the user message and the reply are
// handed to the recorder; on failure nothing is recorded and a StageError is
// returned.
func (c *Coordinator) Advance(ctx context.Context, req AdvanceRequest) (turn *Turn, err error) {
	ctx, span := telemetry.Start(ctx, "advocate.Advance",
		attribute.String("session.id", req.SessionID),
		attribute.Int("history.turns", len(req.History)))
	defer func() { telemetry.End(span, err) }()

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", errorskg.ErrInvalidInput)
	}
	req.History = message.CloneMessages(req.History)

	start := time.Now()
	c.logger.Info("turn started",
		"session_id", req.SessionID,
		"history", len(req.History),
		"message", logging.Trim(req.Message, 120),
	)

	state := &turnState{req: req}
	_, path, err := c.graph.Execute(ctx, graph.State{turnStateKey: state})
	if err != nil {
		var nodeErr *graph.NodeError
		if errors.As(err, &nodeErr) {
			err = nodeErr.Err
		}
		c.metrics.ObserveTurn(string(KindError))
		c.logger.Error("turn failed", "session_id", req.SessionID, "path", path, "error", err)
		return nil, err
	}

	turn = c.buildTurn(state, time.Since(start))
	turn.UserMessage = message.NewMessage(message.RoleUser, req.Message)
	turn.Reply = message.NewAdvocateMessage(turn.Response, turn.Trace)
	c.persist(ctx, req.SessionID, turn.UserMessage, turn.Reply)

	c.metrics.ObserveTurn(string(turn.Kind))
	span.SetAttributes(attribute.String("turn.kind", string(turn.Kind)))
	c.logger.Info("turn completed",
		"session_id", req.SessionID,
		"kind", turn.Kind,
		"path", path,
		"duration_ms", turn.Trace.DurationMS,
	)
	return turn, nil
}

func (c *Coordinator) buildTurn(state *turnState, elapsed time.Duration) *Turn {
	it := state.outcome.Trace()
	turn := &Turn{
		Trace: Trace{
			StageReached: intake.StageName,
			Intake:       &it,
			DurationMS:   elapsed.Milliseconds(),
		},
		Summary: state.outcome.Summary,
	}
	if state.report == nil {
		turn.Kind = KindQuestion
		turn.Response = state.outcome.Question
		return turn
	}

	turn.Kind = KindFindings
	turn.Response = state.report.Render()
	turn.Report = state.report
	turn.Trace.StageReached = research.StageName
	turn.Trace.Research = &ResearchTrace{
		Issues:   append([]research.Issue{}, state.report.Issues...),
		Sources:  append([]research.Source{}, state.report.Sources...),
		Degraded: state.report.Degraded,
		Notes:    state.report.Notes,
	}
	return turn
}

func (c *Coordinator) persist(ctx context.Context, sessionID string, msgs ...*message.Message) {
	if c.recorder == nil {
		return
	}
	for _, msg := range msgs {
		if err := c.recorder.Append(ctx, store.NewRecord(sessionID, msg)); err != nil {
			c.metrics.PersistenceFailed()
			c.logger.Error("failed to persist turn",
				"session_id", sessionID,
				"role", msg.Role,
				"error", fmt.Errorf("%w: %v", errorskg.ErrPersistence, err),
			)
		}
	}
}

func getState(state graph.State) (*turnState, error) {
	ts, ok := state[turnStateKey].(*turnState)
	if !ok || ts == nil {
		return nil, fmt.Errorf("turn state missing")
	}
	return ts, nil
}

func (c *Coordinator) intakeNode(ctx context.Context, state graph.State) (graph.State, error) {
	ts, err := getState(state)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	outcome, err := c.intake.Gather(ctx, ts.req.History, ts.req.Message)
	if err == nil && outcome == nil {
		err = fmt.Errorf("no outcome produced")
	}
	if err == nil && outcome.State == intake.StateComplete && outcome.Summary == nil {
		err = fmt.Errorf("complete outcome without a case summary")
	}
	c.metrics.ObserveStage(intake.StageName, start, err)
	if err != nil {
		return nil, asStageError(intake.StageName, err)
	}
	ts.outcome = outcome
	return state, nil
}

func (c *Coordinator) gate(ctx context.Context, state graph.State) (string, error) {
	ts, err := getState(state)
	if err != nil {
		return "", err
	}
	if ts.outcome.State == intake.StateComplete {
		return branchComplete, nil
	}
	return branchCollecting, nil
}

func (c *Coordinator) researchNode(ctx context.Context, state graph.State) (graph.State, error) {
	ts, err := getState(state)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	report, err := c.research.Investigate(ctx, ts.outcome.Summary)
	if err == nil && report == nil {
		err = fmt.Errorf("no report produced")
	}
	c.metrics.ObserveStage(research.StageName, start, err)
	if err != nil {
		return nil, asStageError(research.StageName, err)
	}
	ts.report = report
	return state, nil
}

// asStageError keeps existing stage errors and invalid-input errors as they
// are and wraps anything else.
func asStageError(stage string, err error) error {
	if errors.Is(err, errorskg.ErrStageFailure) || errors.Is(err, errorskg.ErrInvalidInput) {
		return err
	}
	return errorskg.NewStageError(stage, err)
}
