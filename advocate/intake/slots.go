package intake

import (
	"fmt"
	"strings"
)

// State is the fact-gathering state for one turn.
type State string

const (
	StateCollecting State = "COLLECTING"
	StateComplete   State = "COMPLETE"
)

// Slot names a fact field of the case record.
type Slot string

const (
	SlotDate      Slot = "date"
	SlotTime      Slot = "time"
	SlotLocation  Slot = "location"
	SlotParties   Slot = "parties"
	SlotWitnesses Slot = "witnesses"
	SlotEvidence  Slot = "evidence"
	SlotNarrative Slot = "narrative"
)

// AllSlots lists every slot in display order.
var AllSlots = []Slot{SlotDate, SlotTime, SlotLocation, SlotParties, SlotWitnesses, SlotEvidence, SlotNarrative}

// ParseSlot validates a slot name.
func ParseSlot(name string) (Slot, error) {
	s := Slot(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllSlots {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown slot %q", name)
}

// Status of a slot within the record.
type Status string

const (
	StatusMissing Status = "missing"
	StatusPresent Status = "present"
	// StatusUnknown means the user said they do not know.
	StatusUnknown Status = "unknown"
)

// SlotValue is the state of one slot.
type SlotValue struct {
	Status Status `json:"status"`
	Value  string `json:"value,omitempty"`
}

// CaseRecord maps every slot to its state. Slots absent from the map are
// missing.
type CaseRecord map[Slot]SlotValue

// Get returns the slot state, defaulting to missing.
func (r CaseRecord) Get(s Slot) SlotValue {
	if v, ok := r[s]; ok {
		return v
	}
	return SlotValue{Status: StatusMissing}
}

// Set stores a present value. Blank values are ignored so silence never
// clears a slot.
func (r CaseRecord) Set(s Slot, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	r[s] = SlotValue{Status: StatusPresent, Value: value}
}

// MarkUnknown records that the user does not know s. Present values win.
func (r CaseRecord) MarkUnknown(s Slot) {
	if r.Get(s).Status == StatusPresent {
		return
	}
	r[s] = SlotValue{Status: StatusUnknown}
}

// Fill copies present values from other into slots still missing in r.
func (r CaseRecord) Fill(other CaseRecord) {
	for s, v := range other {
		if v.Status == StatusPresent && r.Get(s).Status == StatusMissing {
			r[s] = v
		}
	}
}

// Lines renders the record as "slot: value" lines in AllSlots order.
func (r CaseRecord) Lines() string {
	var sb strings.Builder
	for _, s := range AllSlots {
		v := r.Get(s)
		switch v.Status {
		case StatusPresent:
			fmt.Fprintf(&sb, "%s: %s\n", s, v.Value)
		case StatusUnknown:
			fmt.Fprintf(&sb, "%s: unknown to the user\n", s)
		default:
			fmt.Fprintf(&sb, "%s: not provided\n", s)
		}
	}
	return strings.TrimSpace(sb.String())
}

// Policy decides which slots must be resolved and in which order they are
// asked about.
type Policy struct {
	Required []Slot
	Priority []Slot

	// MaxAsks bounds how often one slot is asked about. After that the slot
	// is recorded as unknown so the conversation cannot stall.
	MaxAsks int
}

// DefaultPolicy requires the incident date, time, location, parties and
// narrative. Witnesses and evidence are asked about only when required.
func DefaultPolicy() Policy {
	return Policy{
		Required: []Slot{SlotDate, SlotTime, SlotLocation, SlotParties, SlotNarrative},
		Priority: []Slot{SlotDate, SlotTime, SlotLocation, SlotParties, SlotWitnesses, SlotEvidence, SlotNarrative},
		MaxAsks:  2,
	}
}

// NewPolicy builds a policy from slot names. An empty priority list keeps
// the default order.
func NewPolicy(required, priority []string, maxAsks int) (Policy, error) {
	p := DefaultPolicy()
	if len(required) > 0 {
		slots, err := parseSlots(required)
		if err != nil {
			return Policy{}, fmt.Errorf("required slots: %w", err)
		}
		p.Required = slots
	}
	if len(priority) > 0 {
		slots, err := parseSlots(priority)
		if err != nil {
			return Policy{}, fmt.Errorf("priority slots: %w", err)
		}
		p.Priority = slots
	}
	if maxAsks > 0 {
		p.MaxAsks = maxAsks
	}
	return p, p.Validate()
}

func parseSlots(names []string) ([]Slot, error) {
	out := make([]Slot, 0, len(names))
	for _, n := range names {
		s, err := ParseSlot(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Validate checks that every required slot has a place in the priority order.
func (p Policy) Validate() error {
	if len(p.Required) == 0 {
		return fmt.Errorf("policy requires at least one slot")
	}
	for _, r := range p.Required {
		found := false
		for _, s := range p.Priority {
			if s == r {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required slot %q missing from priority order", r)
		}
	}
	return nil
}

func (p Policy) required(s Slot) bool {
	for _, r := range p.Required {
		if r == s {
			return true
		}
	}
	return false
}

// CaseSummary is the hand-off from fact gathering to research.
type CaseSummary struct {
	Record CaseRecord `json:"record"`

	// Narrative is a natural-language condensation of Record.
	Narrative string `json:"narrative"`

	// Concern is the user's first message, used as the ranking query.
	Concern string `json:"concern"`

	IncidentKind string `json:"incident_kind,omitempty"`
}
