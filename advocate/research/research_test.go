package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sweetpotato0/ai-advocate/advocate/intake"
	"github.com/sweetpotato0/ai-advocate/agent"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/message"
	"github.com/sweetpotato0/ai-advocate/rag/chunking"
	"github.com/sweetpotato0/ai-advocate/rag/ranker"
	"github.com/sweetpotato0/ai-advocate/search"
)

const (
	twoIssues = `{"issues":[
		{"name":"Negligent driving","domain":"tort","query":"negligent driving compensation"},
		{"name":"Speeding offence","domain":"traffic law","query":"speeding offence penalty"}]}`
	synthesized = `{"facts_summary":"The user was hit by a speeding car.",
		"legal_issues":"Negligent driving\nSpeeding offence",
		"citations":"[1] Motor Vehicles Act, s. 184",
		"analysis":"The driver appears to have breached the duty of care."}`
)

// stubLLM answers the classifier and synthesis prompts.
type stubLLM struct {
	mu           sync.Mutex
	classify     string
	synthesis    string
	classifyErr  error
	synthesisErr error
	synthUser    string
	calls        map[string]int
}

func (s *stubLLM) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	system := req.Messages[0].Content
	switch {
	case strings.Contains(system, "Identify the distinct legal issues"):
		s.calls["classify"]++
		if s.classifyErr != nil {
			return nil, s.classifyErr
		}
		return reply(s.classify), nil
	case strings.Contains(system, "write a findings report"):
		s.calls["synthesis"]++
		s.synthUser = req.Messages[1].Content
		if s.synthesisErr != nil {
			return nil, s.synthesisErr
		}
		return reply(s.synthesis), nil
	}
	return nil, errors.New("unexpected prompt")
}

func reply(text string) *agent.GenerateResponse {
	return &agent.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, text)}
}

func summary() *intake.CaseSummary {
	record := intake.CaseRecord{}
	record.Set(intake.SlotDate, "2025-11-21")
	record.Set(intake.SlotLocation, "Main Street")
	return &intake.CaseSummary{
		Record:       record,
		Narrative:    "The user was hit by a car driven by John Doe at 50 mph in a 30 mph zone.",
		Concern:      "I was hit by a speeding car on Main Street.",
		IncidentKind: "traffic accident",
	}
}

type recordingSearch struct {
	docs    map[string][]search.Document
	err     error
	queries []string
}

func (r *recordingSearch) Search(ctx context.Context, query string) ([]search.Document, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	return r.docs[query], nil
}

// keywordRank scores passages mentioning "Act" highest.
func keywordRank(ctx context.Context, query string, passages []string) ([]ranker.Result, error) {
	var results []ranker.Result
	for i, p := range passages {
		if strings.TrimSpace(p) == "" {
			continue
		}
		score := 0.1
		if strings.Contains(p, "Act") {
			score = 0.9
		}
		results = append(results, ranker.Result{Index: i, Passage: p, Score: score})
	}
	if len(results) == 0 {
		return nil, errorskg.ErrEmptyInput
	}
	return results, nil
}

func actDocs() map[string][]search.Document {
	return map[string][]search.Document{
		"negligent driving compensation": {{
			Title:   "Motor Vehicles Act",
			URL:     "https://example.org/mva",
			Snippet: "Overview of the Motor Vehicles Act.",
			Content: "Introduction to road safety.\n\nSection 184 of the Motor Vehicles Act punishes dangerous driving.\n\nContact us.",
		}},
		"speeding offence penalty": {{
			Title:   "Speed limits",
			URL:     "https://example.org/speed",
			Snippet: "Speeding fines explained.",
			Content: "Fines depend on the zone.\n\nThe Road Traffic Act sets maximum speeds.",
		}},
	}
}

func TestInvestigateBuildsFiveFieldReport(t *testing.T) {
	llm := &stubLLM{classify: twoIssues, synthesis: synthesized}
	searcher := &recordingSearch{docs: actDocs()}
	stage := New(llm, Capabilities{Search: searcher.Search, Rank: keywordRank})

	report, err := stage.Investigate(context.Background(), summary())
	if err != nil {
		t.Fatalf("Investigate returned error: %v", err)
	}
	for name, field := range map[string]string{
		"facts_summary": report.FactsSummary,
		"legal_issues":  report.LegalIssues,
		"citations":     report.Citations,
		"analysis":      report.Analysis,
	} {
		if strings.TrimSpace(field) == "" {
			t.Errorf("field %s is empty", name)
		}
	}
	if report.Disclaimer != Disclaimer {
		t.Fatalf("disclaimer = %q", report.Disclaimer)
	}
	if report.Degraded {
		t.Fatalf("unexpected degradation: %v", report.Notes)
	}
	if len(report.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(report.Sources))
	}
	if got := report.Sources[0].Passage; got != "Section 184 of the Motor Vehicles Act punishes dangerous driving." {
		t.Fatalf("best passage = %q", got)
	}
	if !report.Sources[0].Ranked || report.Sources[1].Number != 2 {
		t.Fatalf("unexpected source metadata: %+v", report.Sources)
	}
	if !strings.Contains(llm.synthUser, "[1] Motor Vehicles Act - https://example.org/mva") {
		t.Fatalf("synthesis prompt lacks numbered evidence:\n%s", llm.synthUser)
	}
	if len(searcher.queries) != 2 {
		t.Fatalf("expected one search per issue, got %v", searcher.queries)
	}
}

func TestInvestigateDegradesWithoutSources(t *testing.T) {
	tests := []struct {
		name     string
		caps     func() Capabilities
		degraded bool
	}{
		{
			name: "search returns nothing",
			caps: func() Capabilities {
				return Capabilities{Search: (&recordingSearch{}).Search, Rank: keywordRank}
			},
		},
		{
			name: "search fails",
			caps: func() Capabilities {
				return Capabilities{Search: (&recordingSearch{err: errors.New("blocked")}).Search, Rank: keywordRank}
			},
			degraded: true,
		},
		{
			name:     "no search capability",
			caps:     func() Capabilities { return Capabilities{} },
			degraded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &stubLLM{classify: twoIssues, synthesis: synthesized}
			report, err := New(llm, tt.caps()).Investigate(context.Background(), summary())
			if err != nil {
				t.Fatalf("Investigate returned error: %v", err)
			}
			if report.Citations != NoSourcesCitation {
				t.Fatalf("citations = %q, want the no-sources notice", report.Citations)
			}
			if report.Degraded != tt.degraded {
				t.Fatalf("degraded = %v, want %v", report.Degraded, tt.degraded)
			}
			if !strings.Contains(llm.synthUser, "No sources were retrieved") {
				t.Fatalf("synthesis prompt should state that no sources exist")
			}
		})
	}
}

func TestInvestigateFallsBackToSnippetWhenRankingFails(t *testing.T) {
	llm := &stubLLM{classify: twoIssues, synthesis: synthesized}
	searcher := &recordingSearch{docs: actDocs()}
	failing := func(ctx context.Context, query string, passages []string) ([]ranker.Result, error) {
		return nil, &ranker.EmbeddingError{Reason: "status 503"}
	}

	report, err := New(llm, Capabilities{Search: searcher.Search, Rank: failing}).
		Investigate(context.Background(), summary())
	if err != nil {
		t.Fatalf("Investigate returned error: %v", err)
	}
	if !report.Degraded {
		t.Fatal("expected a degraded report")
	}
	if len(report.Sources) != 2 || report.Sources[0].Passage != "Overview of the Motor Vehicles Act." || report.Sources[0].Ranked {
		t.Fatalf("expected snippet fallback, got %+v", report.Sources)
	}
	if report.Citations != "[1] Motor Vehicles Act, s. 184" {
		t.Fatalf("citations = %q", report.Citations)
	}
}

func TestInvestigateSkipsEmptyDocumentsAndDuplicates(t *testing.T) {
	docs := actDocs()
	docs["speeding offence penalty"] = []search.Document{
		{Title: "Blank", URL: "https://example.org/blank"},
		docs["negligent driving compensation"][0],
	}
	llm := &stubLLM{classify: twoIssues, synthesis: synthesized}
	searcher := &recordingSearch{docs: docs}

	report, err := New(llm, Capabilities{Search: searcher.Search, Rank: keywordRank}).
		Investigate(context.Background(), summary())
	if err != nil {
		t.Fatalf("Investigate returned error: %v", err)
	}
	if len(report.Sources) != 1 {
		t.Fatalf("expected only the first Motor Vehicles Act source, got %+v", report.Sources)
	}
	if report.Degraded {
		t.Fatalf("empty documents should not degrade the report: %v", report.Notes)
	}
}

func TestInvestigateWithRanker(t *testing.T) {
	llm := &stubLLM{classify: twoIssues, synthesis: synthesized}
	searcher := &recordingSearch{docs: actDocs()}
	caps := NewCapabilities(searcher, ranker.New(&termEmbedder{}))

	report, err := New(llm, caps).Investigate(context.Background(), summary())
	if err != nil {
		t.Fatalf("Investigate returned error: %v", err)
	}
	if len(report.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(report.Sources))
	}
	for _, src := range report.Sources {
		if src.Score < -1 || src.Score > 1 {
			t.Fatalf("score out of range: %v", src.Score)
		}
	}
}

func TestInvestigateWindowsLongPages(t *testing.T) {
	docs := map[string][]search.Document{
		"negligent driving compensation": {{
			Title:   "Unbroken page",
			URL:     "https://example.org/page",
			Content: "one two three four five six seven eight nine ten eleven twelve Section 5 of the Act applies.",
		}},
	}
	var seen []string
	rank := func(ctx context.Context, query string, passages []string) ([]ranker.Result, error) {
		seen = append(seen, passages...)
		return keywordRank(ctx, query, passages)
	}
	llm := &stubLLM{classify: twoIssues, synthesis: synthesized}
	stage := New(llm, Capabilities{Search: (&recordingSearch{docs: docs}).Search, Rank: rank},
		WithChunker(chunking.NewSimpleChunker(chunking.WithMaxTokens(6), chunking.WithOverlap(0))))

	report, err := stage.Investigate(context.Background(), summary())
	if err != nil {
		t.Fatalf("Investigate returned error: %v", err)
	}
	if len(seen) < 3 {
		t.Fatalf("expected the page to be windowed, ranked %q", seen)
	}
	if len(report.Sources) != 1 || report.Sources[0].Passage != "Section 5 of the Act applies" {
		t.Fatalf("unexpected sources: %+v", report.Sources)
	}
}

func TestInvestigateNoIssues(t *testing.T) {
	llm := &stubLLM{classify: `{"issues":[]}`}
	searcher := &recordingSearch{}

	report, err := New(llm, Capabilities{Search: searcher.Search}).Investigate(context.Background(), summary())
	if err != nil {
		t.Fatalf("Investigate returned error: %v", err)
	}
	if report.Citations != NoSourcesCitation || report.Disclaimer != Disclaimer {
		t.Fatalf("unexpected no-issue report: %+v", report)
	}
	if !strings.Contains(report.Analysis, "lawyer") {
		t.Fatalf("no-issue report should point to a professional: %q", report.Analysis)
	}
	if llm.calls["synthesis"] != 0 || len(searcher.queries) != 0 {
		t.Fatal("nothing should be searched or synthesised without issues")
	}
}

func TestInvestigateCapsIssues(t *testing.T) {
	llm := &stubLLM{
		classify: `{"issues":[{"name":"a","query":"qa"},{"name":"b","query":"qb"},{"name":""},
			{"name":"c"},{"name":"d","query":"qd"}]}`,
		synthesis: synthesized,
	}
	searcher := &recordingSearch{}

	report, err := New(llm, Capabilities{Search: searcher.Search}).Investigate(context.Background(), summary())
	if err != nil {
		t.Fatalf("Investigate returned error: %v", err)
	}
	want := []string{"qa", "qb", "c"}
	if strings.Join(searcher.queries, ",") != strings.Join(want, ",") {
		t.Fatalf("queries = %v, want %v", searcher.queries, want)
	}
	if len(report.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(report.Issues))
	}
}

func TestInvestigateTokenBudget(t *testing.T) {
	llm := &stubLLM{classify: twoIssues, synthesis: synthesized}
	searcher := &recordingSearch{docs: actDocs()}

	report, err := New(llm, Capabilities{Search: searcher.Search, Rank: keywordRank}, WithTokenBudget(4)).
		Investigate(context.Background(), summary())
	if err != nil {
		t.Fatalf("Investigate returned error: %v", err)
	}
	if len(report.Sources) != 1 {
		t.Fatalf("expected the budget to keep one source, got %d", len(report.Sources))
	}
	if got := report.Sources[0].Passage; got != "Section 184 of the" {
		t.Fatalf("passage = %q", got)
	}
}

func TestInvestigateFailuresAreStageErrors(t *testing.T) {
	tests := []struct {
		name string
		llm  *stubLLM
	}{
		{"classifier", &stubLLM{classifyErr: errors.New("model down")}},
		{"synthesis", &stubLLM{classify: twoIssues, synthesisErr: errors.New("model down")}},
		{"synthesis without analysis", &stubLLM{classify: twoIssues, synthesis: `{"facts_summary":"x"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.llm, Capabilities{}).Investigate(context.Background(), summary())
			var se *errorskg.StageError
			if !errors.As(err, &se) || se.Stage != StageName {
				t.Fatalf("expected research StageError, got %v", err)
			}
		})
	}
}

func TestRenderOrder(t *testing.T) {
	r := &FindingsReport{
		FactsSummary: "facts",
		LegalIssues:  "issues",
		Citations:    "cites",
		Analysis:     "analysis",
		Disclaimer:   Disclaimer,
	}
	out := r.Render()
	order := []string{"### Facts Summary", "### Legal Issues", "### Citations", "### Analysis", "### Disclaimer"}
	last := -1
	for _, heading := range order {
		i := strings.Index(out, heading)
		if i <= last {
			t.Fatalf("heading %q out of order in:\n%s", heading, out)
		}
		last = i
	}
}

// termEmbedder maps text onto counts of a few legal terms.
type termEmbedder struct{}

var terms = []string{"act", "section", "speed", "driving", "car"}

func (e *termEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	v := make([]float32, len(terms)+1)
	for i, term := range terms {
		v[i] = float32(strings.Count(lower, term))
	}
	v[len(terms)] = 0.1
	return v, nil
}

func (e *termEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i], _ = e.Embed(ctx, text)
	}
	return out, nil
}

func (e *termEmbedder) Dimension() int { return len(terms) + 1 }
