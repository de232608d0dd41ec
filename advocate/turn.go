package advocate

import (
	"errors"

	"github.com/sweetpotato0/ai-advocate/advocate/intake"
	"github.com/sweetpotato0/ai-advocate/advocate/research"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/message"
)

// Kind classifies the advocate's reply.
type Kind string

const (
	KindQuestion Kind = "question"
	KindFindings Kind = "findings"
	KindError    Kind = "error"
)

// Trace is the machine-readable record of one turn, stored with the
// advocate reply.
type Trace struct {
	StageReached string         `json:"stage_reached"`
	Intake       *intake.Trace  `json:"intake,omitempty"`
	Research     *ResearchTrace `json:"research,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
	Error        string         `json:"error,omitempty"`
}

// ResearchTrace summarises what the research stage looked at. Issues and
// Sources are empty, never null, when nothing was found.
type ResearchTrace struct {
	Issues   []research.Issue  `json:"issues"`
	Sources  []research.Source `json:"sources"`
	Degraded bool              `json:"degraded"`
	Notes    []string          `json:"notes,omitempty"`
}

// Turn is the outcome of Advance.
type Turn struct {
	Kind     Kind   `json:"kind"`
	Response string `json:"response"`
	Trace    Trace  `json:"trace"`

	Summary *intake.CaseSummary      `json:"summary,omitempty"`
	Report  *research.FindingsReport `json:"report,omitempty"`

	// UserMessage and Reply are the two turns to append to the history.
	UserMessage *message.Message `json:"-"`
	Reply       *message.Message `json:"-"`
}

const apology = "I'm sorry, I could not finish working on your case just now because one of my services " +
	"did not respond. Nothing has been saved from this message; please try sending it again in a moment."

// ErrorResponse renders a failed turn for the user. It is never a question
// and never contains findings.
func ErrorResponse(err error) *Turn {
	t := &Turn{
		Kind:     KindError,
		Response: apology,
	}
	var se *errorskg.StageError
	if errors.As(err, &se) {
		t.Trace.StageReached = se.Stage
	}
	if err != nil {
		t.Trace.Error = err.Error()
	}
	return t
}
