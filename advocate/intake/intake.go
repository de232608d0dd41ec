// Package intake gathers the facts of a legal incident one question at a
// time. The stage keeps no memory of its own: everything it needs is rebuilt
// from the conversation history on every turn.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/ai-advocate/agent"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/message"
	"github.com/sweetpotato0/ai-advocate/pkg/logging"
	"github.com/sweetpotato0/ai-advocate/pkg/telemetry"
	"github.com/sweetpotato0/ai-advocate/prompt"
	"go.opentelemetry.io/otel/attribute"
)

// StageName identifies this stage in errors, traces and metrics.
const StageName = "intake"

const maxNarrativeRunes = 800

// Outcome is the result of one Gather call.
type Outcome struct {
	State State

	// Question and AskedSlot are set while collecting.
	Question  string
	AskedSlot Slot

	// Summary is set once complete.
	Summary *CaseSummary

	Record       CaseRecord
	IncidentKind string
}

// Trace is the machine-readable part of an outcome kept on the advocate turn.
// The asked_slot field is how later turns know what was already asked.
type Trace struct {
	State        State      `json:"state"`
	AskedSlot    Slot       `json:"asked_slot,omitempty"`
	IncidentKind string     `json:"incident_kind,omitempty"`
	Slots        CaseRecord `json:"slots"`
}

// Trace returns the traceable view of o.
func (o *Outcome) Trace() Trace {
	slots := o.Record
	if slots == nil {
		slots = CaseRecord{}
	}
	return Trace{
		State:        o.State,
		AskedSlot:    o.AskedSlot,
		IncidentKind: o.IncidentKind,
		Slots:        slots,
	}
}

// Option configures a Stage.
type Option func(*Stage)

// WithPolicy replaces the default slot policy.
func WithPolicy(p Policy) Option {
	return func(s *Stage) { s.policy = p }
}

// WithPrompts sets the prompt manager used for extraction and summaries.
func WithPrompts(m *prompt.Manager) Option {
	return func(s *Stage) {
		if m != nil {
			s.prompts = m
		}
	}
}

// WithExtractor replaces the model-backed extractor.
func WithExtractor(e Extractor) Option {
	return func(s *Stage) { s.extractor = e }
}

// WithoutRules disables the pattern-based extractor that fills slots the
// model left empty.
func WithoutRules() Option {
	return func(s *Stage) { s.rules = nil }
}

// Stage is the fact-gathering state machine.
type Stage struct {
	llm       agent.LLMClient
	prompts   *prompt.Manager
	extractor Extractor
	rules     Extractor
	policy    Policy
	logger    *slog.Logger
}

// New creates a stage backed by llm.
func New(llm agent.LLMClient, opts ...Option) *Stage {
	s := &Stage{
		llm:     llm,
		prompts: prompt.NewDefaultManager(),
		rules:   RuleExtractor{},
		policy:  DefaultPolicy(),
		logger:  logging.WithComponent("intake"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = NewLLMExtractor(llm, s.prompts)
	}
	return s
}

// Gather processes one user message. It either asks exactly one clarifying
// question or hands off a CaseSummary.
func (s *Stage) Gather(ctx context.Context, history []*message.Message, msg string) (out *Outcome, err error) {
	ctx, span := telemetry.Start(ctx, "intake.Gather",
		attribute.Int("history.turns", len(history)))
	defer func() { telemetry.End(span, err) }()

	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil, fmt.Errorf("%w: message is empty", errorskg.ErrInvalidInput)
	}

	record, kind, err := s.buildRecord(ctx, history, msg)
	if err != nil {
		return nil, errorskg.NewStageError(StageName, err)
	}

	out = &Outcome{Record: record, IncidentKind: kind}
	if slot := s.nextSlot(record, history); slot != "" {
		out.State = StateCollecting
		out.AskedSlot = slot
		out.Question = QuestionFor(slot, kind)
		s.logger.Info("intake collecting", "asked_slot", slot, "incident_kind", kind)
		span.SetAttributes(attribute.String("intake.asked_slot", string(slot)))
		return out, nil
	}

	summary, err := s.summarize(ctx, record, kind, concern(history, msg))
	if err != nil {
		return nil, errorskg.NewStageError(StageName, err)
	}
	out.State = StateComplete
	out.Summary = summary
	s.logger.Info("intake complete", "incident_kind", kind, "narrative", logging.Trim(summary.Narrative, 120))
	return out, nil
}

func (s *Stage) buildRecord(ctx context.Context, history []*message.Message, msg string) (CaseRecord, string, error) {
	ext, err := s.extractor.Extract(ctx, history, msg)
	if err != nil {
		return nil, "", err
	}
	record := CaseRecord{}
	for slot, v := range ext.Record {
		record[slot] = v
	}
	kind := ext.IncidentKind

	if s.rules != nil {
		ruled, err := s.rules.Extract(ctx, history, msg)
		if err != nil {
			return nil, "", err
		}
		record.Fill(ruled.Record)
		if kind == "" {
			kind = ruled.IncidentKind
		}
		s.logger.Debug("rule extraction", "slots", len(ruled.Record))
	}

	for _, slot := range ext.Unknown {
		record.MarkUnknown(slot)
	}
	asks, last := priorAsks(history)
	if last != "" && saysDontKnow(msg) {
		record.MarkUnknown(last)
	}
	if record.Get(SlotNarrative).Status != StatusPresent {
		record.Set(SlotNarrative, ownWords(history, msg))
	}
	if s.policy.MaxAsks > 0 {
		for _, slot := range s.policy.Required {
			if record.Get(slot).Status == StatusMissing && asks[slot] >= s.policy.MaxAsks {
				record.MarkUnknown(slot)
			}
		}
	}
	return record, kind, nil
}

// nextSlot returns the first unresolved required slot in priority order, or
// "" when every required slot is resolved.
func (s *Stage) nextSlot(record CaseRecord, history []*message.Message) Slot {
	asks, _ := priorAsks(history)
	for _, slot := range s.policy.Priority {
		if !s.policy.required(slot) {
			continue
		}
		switch record.Get(slot).Status {
		case StatusMissing:
			return slot
		case StatusUnknown:
			if asks[slot] == 0 {
				return slot
			}
		}
	}
	return ""
}

func (s *Stage) summarize(ctx context.Context, record CaseRecord, kind, userConcern string) (*CaseSummary, error) {
	system, err := s.prompts.Render(prompt.IntakeSummarize, nil)
	if err != nil {
		return nil, err
	}
	user := prompt.NewBuilder().
		AddSection("INCIDENT TYPE", kind).
		AddSection("FACTS", record.Lines()).
		AddSection("USER CONCERN", userConcern).
		Build()

	narrative, err := agent.Complete(ctx, s.llm, agent.Prompt{
		System:      system,
		User:        user,
		Temperature: agent.Float(0.2),
	})
	if err != nil {
		return nil, fmt.Errorf("summarize case: %w", err)
	}
	return &CaseSummary{
		Record:       record,
		Narrative:    narrative,
		Concern:      userConcern,
		IncidentKind: kind,
	}, nil
}

// concern is the user's first message in the conversation.
func concern(history []*message.Message, msg string) string {
	turns := userTurns(history, msg)
	if len(turns) == 0 {
		return msg
	}
	return turns[0]
}

func ownWords(history []*message.Message, msg string) string {
	text := strings.Join(userTurns(history, msg), " ")
	if r := []rune(text); len(r) > maxNarrativeRunes {
		text = string(r[:maxNarrativeRunes])
	}
	return text
}
