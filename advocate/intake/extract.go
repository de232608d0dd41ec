package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sweetpotato0/ai-advocate/agent"
	"github.com/sweetpotato0/ai-advocate/message"
	"github.com/sweetpotato0/ai-advocate/prompt"
)

// Extraction is what one extractor learned from the conversation.
type Extraction struct {
	Record       CaseRecord
	Unknown      []Slot
	IncidentKind string
}

// Extractor pulls slot values out of a conversation.
type Extractor interface {
	Extract(ctx context.Context, history []*message.Message, msg string) (*Extraction, error)
}

// LLMExtractor asks a model to fill the slots in JSON mode.
type LLMExtractor struct {
	llm     agent.LLMClient
	prompts *prompt.Manager
}

// NewLLMExtractor creates an extractor. A nil manager uses the default prompts.
func NewLLMExtractor(llm agent.LLMClient, prompts *prompt.Manager) *LLMExtractor {
	if prompts == nil {
		prompts = prompt.NewDefaultManager()
	}
	return &LLMExtractor{llm: llm, prompts: prompts}
}

type extractReply struct {
	Slots        map[string]string `json:"slots"`
	Unknown      []string          `json:"unknown"`
	IncidentKind string            `json:"incident_kind"`
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, history []*message.Message, msg string) (*Extraction, error) {
	system, err := e.prompts.Render(prompt.IntakeExtract, nil)
	if err != nil {
		return nil, err
	}
	user, err := e.prompts.Render(prompt.IntakeExtractUser, map[string]any{
		"History": message.Transcript(history),
		"Message": msg,
	})
	if err != nil {
		return nil, err
	}

	raw, err := agent.Complete(ctx, e.llm, agent.Prompt{
		System:      system,
		User:        user,
		JSON:        true,
		Temperature: agent.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}
	reply, err := agent.DecodeJSON[extractReply](raw)
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}

	out := &Extraction{Record: CaseRecord{}, IncidentKind: normalizeKind(reply.IncidentKind)}
	for name, value := range reply.Slots {
		slot, err := ParseSlot(name)
		if err != nil {
			continue
		}
		out.Record.Set(slot, value)
	}
	for _, name := range reply.Unknown {
		if slot, err := ParseSlot(name); err == nil {
			out.Unknown = append(out.Unknown, slot)
		}
	}
	return out, nil
}

const (
	monthNames = `(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)`
	properName = `[A-Z][a-z]+(?: [A-Z][a-z]+)*`
	personName = `[A-Z][a-z]+ [A-Z][a-z]+`
	// am/pm must end the word so "3 amendments" is not a time.
	meridiem   = `[ap](?:\.m\.|\.m\b|m\b)`
)

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`\b` + monthNames + `\.? \d{1,2}(?:st|nd|rd|th)?(?:,? \d{4})?\b`),
		regexp.MustCompile(`\b\d{1,2}(?:st|nd|rd|th)? (?:of )?` + monthNames + `(?:,? \d{4})?\b`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:today|yesterday|last (?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|week|month))\b`),
	}
	timePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\b(?:\s?` + meridiem + `)?`),
		regexp.MustCompile(`(?i)\b\d{1,2}\s?` + meridiem),
		regexp.MustCompile(`(?i)\b(?:noon|midnight)\b`),
		regexp.MustCompile(`(?i)\bin the (?:morning|afternoon|evening)\b`),
		regexp.MustCompile(`(?i)\bat night\b`),
	}
	streetPattern = regexp.MustCompile(`\b(?:on|at|near|along) ((?:[A-Z][a-z]+ )+(?:Street|St|Road|Rd|Avenue|Ave|Boulevard|Blvd|Lane|Ln|Highway|Hwy|Drive|Dr|Way|Square|Place|Market|Station|Park))\b`)
	placePattern  = regexp.MustCompile(`(?i)\b(?:at|in|outside) (my (?:apartment|flat|home|house|workplace|office|building))\b`)
	driverPattern = regexp.MustCompile(`\bdriven by (` + properName + `)`)
	rolePattern   = regexp.MustCompile(`\b(?i:my) ((?i:landlord|landlady|employer|boss|manager|neighbou?r|ex-?(?:husband|wife|partner)|husband|wife|partner))\b(?:,? (` + properName + `))?`)
	witnessNamed  = regexp.MustCompile(`(?i:\bwitness(?:es|ed)?\b)[^.?!;]*?\b(` + personName + `(?:(?:,| and|, and) ` + personName + `)*)`)
	witnessNone   = regexp.MustCompile(`(?i)\b(?:no witnesses|no one saw|nobody saw|there were no witnesses)\b`)
	evidenceTerms = regexp.MustCompile(`(?i)\b(police report|photos?|pictures?|video|dash ?cam(?: footage)?|cctv(?: footage)?|medical (?:report|records?)|receipts?|lease|tenancy agreement|contract|eviction notice|written notice|text messages|emails?|pay ?slips?)\b`)
	dontKnow      = regexp.MustCompile(`(?i)\b(?:i )?(?:don'?t|do not) (?:know|remember)\b|\bnot sure\b|\bno idea\b|\bcan'?t remember\b|\bcannot remember\b|\bunsure\b|\bcan'?t recall\b`)
)

var kindKeywords = []struct {
	kind     string
	patterns *regexp.Regexp
}{
	{"eviction", regexp.MustCompile(`(?i)\b(?:evict\w*|landlord|landlady|tenan\w+|rent(?:al|ed)?|lease)\b`)},
	{"traffic accident", regexp.MustCompile(`(?i)\b(?:car|vehicle|driver|driven|truck|motorbike|crash\w*|collision|hit by|run over)\b`)},
	{"employment", regexp.MustCompile(`(?i)\b(?:fired|dismiss\w*|employer|boss|salary|wages?|terminated|laid off)\b`)},
	{"assault", regexp.MustCompile(`(?i)\b(?:assault\w*|attacked|punched|beaten)\b`)},
	{"consumer", regexp.MustCompile(`(?i)\b(?:refund|purchased|bought|warranty|defective)\b`)},
}

// RuleExtractor fills slots with deterministic patterns over the user's
// own turns. Later turns overwrite earlier ones.
type RuleExtractor struct{}

// Extract implements Extractor.
func (RuleExtractor) Extract(_ context.Context, history []*message.Message, msg string) (*Extraction, error) {
	out := &Extraction{Record: CaseRecord{}}
	for _, text := range userTurns(history, msg) {
		for slot, value := range extractRules(text) {
			out.Record.Set(slot, value)
		}
		if kind := detectKind(text); kind != "" && out.IncidentKind == "" {
			out.IncidentKind = kind
		}
	}
	return out, nil
}

func userTurns(history []*message.Message, msg string) []string {
	var turns []string
	for _, m := range history {
		if m != nil && m.Role == message.RoleUser && m.Text() != "" {
			turns = append(turns, m.Text())
		}
	}
	if strings.TrimSpace(msg) != "" {
		turns = append(turns, strings.TrimSpace(msg))
	}
	return turns
}

func extractRules(text string) map[Slot]string {
	found := make(map[Slot]string)
	if v := firstMatch(datePatterns, text); v != "" {
		found[SlotDate] = v
	}
	if v := firstMatch(timePatterns, text); v != "" {
		found[SlotTime] = v
	}
	if m := streetPattern.FindStringSubmatch(text); m != nil {
		found[SlotLocation] = m[1]
	} else if m := placePattern.FindStringSubmatch(text); m != nil {
		found[SlotLocation] = strings.ToLower(m[1])
	}

	var parties []string
	if m := driverPattern.FindStringSubmatch(text); m != nil {
		parties = append(parties, "driver "+m[1])
	}
	for _, m := range rolePattern.FindAllStringSubmatch(text, -1) {
		p := strings.ToLower(m[1])
		if m[2] != "" {
			p += " " + m[2]
		}
		parties = append(parties, p)
	}
	if len(parties) > 0 {
		found[SlotParties] = strings.Join(dedupe(parties), "; ")
	}

	if m := witnessNamed.FindStringSubmatch(text); m != nil {
		found[SlotWitnesses] = m[1]
	} else if witnessNone.MatchString(text) {
		found[SlotWitnesses] = "none"
	}
	if items := evidenceTerms.FindAllString(text, -1); len(items) > 0 {
		for i := range items {
			items[i] = strings.ToLower(items[i])
		}
		found[SlotEvidence] = strings.Join(dedupe(items), ", ")
	}
	return found
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if v := p.FindString(text); v != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func detectKind(text string) string {
	for _, k := range kindKeywords {
		if k.patterns.MatchString(text) {
			return k.kind
		}
	}
	return ""
}

func normalizeKind(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch {
	case kind == "", kind == "other", kind == "unknown":
		return ""
	case strings.Contains(kind, "evict"), strings.Contains(kind, "tenan"), strings.Contains(kind, "housing"):
		return "eviction"
	case strings.Contains(kind, "traffic"), strings.Contains(kind, "accident"), strings.Contains(kind, "vehicle"):
		return "traffic accident"
	case strings.Contains(kind, "employ"), strings.Contains(kind, "dismiss"), strings.Contains(kind, "work"):
		return "employment"
	}
	return kind
}

// saysDontKnow reports whether the message disclaims knowledge.
func saysDontKnow(msg string) bool {
	return dontKnow.MatchString(msg)
}

// priorAsks counts how often each slot has been asked about, read from the
// traces attached to earlier advocate turns. Traces may be typed values or
// generic maps after a storage round trip.
func priorAsks(history []*message.Message) (counts map[Slot]int, last Slot) {
	counts = make(map[Slot]int)
	for _, m := range history {
		if m == nil || m.Role != message.RoleAdvocate {
			continue
		}
		raw, ok := m.Trace()
		if !ok {
			continue
		}
		data, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var t struct {
			Intake struct {
				AskedSlot string `json:"asked_slot"`
			} `json:"intake"`
		}
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		slot, err := ParseSlot(t.Intake.AskedSlot)
		if err != nil {
			last = ""
			continue
		}
		counts[slot]++
		last = slot
	}
	return counts, last
}
