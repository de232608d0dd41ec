package research

import (
	"fmt"
	"strings"
)

// Disclaimer is attached to every report. It is fixed text and never comes
// from a model.
const Disclaimer = "This response is general legal information generated by an AI assistant. " +
	"It is not legal advice and does not create a lawyer-client relationship. " +
	"Laws differ between jurisdictions and change over time; consult a qualified lawyer before acting on it."

// NoSourcesCitation replaces the citations field when nothing was retrieved.
const NoSourcesCitation = "No sources could be retrieved for these issues; no statutes or precedents are cited."

// Issue is one legal issue identified in the case.
type Issue struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Query  string `json:"query"`
}

// Source is one piece of evidence handed to synthesis. Number is the
// citation index used in the report.
type Source struct {
	Number  int     `json:"number"`
	Issue   string  `json:"issue"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Passage string  `json:"passage"`
	Score   float64 `json:"score"`

	// Ranked is false when the passage is a search snippet used because
	// ranking was unavailable.
	Ranked bool `json:"ranked"`
}

// FindingsReport is the five-part research result. It is built once and not
// modified afterwards.
type FindingsReport struct {
	FactsSummary string `json:"facts_summary"`
	LegalIssues  string `json:"legal_issues"`
	Citations    string `json:"citations"`
	Analysis     string `json:"analysis"`
	Disclaimer   string `json:"disclaimer"`

	Issues   []Issue  `json:"issues,omitempty"`
	Sources  []Source `json:"sources,omitempty"`
	Degraded bool     `json:"degraded"`
	Notes    []string `json:"notes,omitempty"`
}

// Render formats the report as the advocate's reply, fields in fixed order.
func (r *FindingsReport) Render() string {
	sections := []struct{ title, body string }{
		{"Facts Summary", r.FactsSummary},
		{"Legal Issues", r.LegalIssues},
		{"Citations", r.Citations},
		{"Analysis", r.Analysis},
		{"Disclaimer", r.Disclaimer},
	}
	var sb strings.Builder
	for i, s := range sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "### %s\n%s", s.title, strings.TrimSpace(s.body))
	}
	return sb.String()
}

func (s Source) citation() string {
	label := s.Title
	if label == "" {
		label = "Untitled source"
	}
	if s.URL != "" {
		return fmt.Sprintf("[%d] %s - %s", s.Number, label, s.URL)
	}
	return fmt.Sprintf("[%d] %s", s.Number, label)
}
