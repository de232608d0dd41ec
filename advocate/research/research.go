// Package research turns a completed case summary into a findings report:
// classify the legal issues, search for sources, keep the best passage of
// each source, then synthesise the report.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/ai-advocate/advocate/intake"
	"github.com/sweetpotato0/ai-advocate/agent"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/pkg/logging"
	"github.com/sweetpotato0/ai-advocate/pkg/telemetry"
	"github.com/sweetpotato0/ai-advocate/prompt"
	"github.com/sweetpotato0/ai-advocate/rag/chunking"
	"github.com/sweetpotato0/ai-advocate/rag/ranker"
	"github.com/sweetpotato0/ai-advocate/rag/tokenizer"
	"github.com/sweetpotato0/ai-advocate/search"
	"go.opentelemetry.io/otel/attribute"
)

// StageName identifies this stage in errors, traces and metrics.
const StageName = "research"

const (
	defaultMaxIssues   = 3
	defaultTokenBudget = 1500
)

// SearchFunc looks up documents for a query.
type SearchFunc func(ctx context.Context, query string) ([]search.Document, error)

// RankFunc scores passages against a query.
type RankFunc func(ctx context.Context, query string, passages []string) ([]ranker.Result, error)

// Capabilities are the lookups the stage may use. Either may be nil.
type Capabilities struct {
	Search SearchFunc
	Rank   RankFunc
}

// NewCapabilities adapts a searcher and a ranker. Nil arguments leave the
// matching capability absent.
func NewCapabilities(s search.Searcher, r *ranker.Ranker) Capabilities {
	var caps Capabilities
	if s != nil {
		caps.Search = s.Search
	}
	if r != nil {
		caps.Rank = r.Rank
	}
	return caps
}

// Option configures a Stage.
type Option func(*Stage)

// WithPrompts sets the prompt manager.
func WithPrompts(m *prompt.Manager) Option {
	return func(s *Stage) {
		if m != nil {
			s.prompts = m
		}
	}
}

// WithTokenizer sets the tokenizer used to bound evidence size.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(s *Stage) {
		if t != nil {
			s.tokenizer = t
		}
	}
}

// WithChunker sets how fetched pages are split into passages.
func WithChunker(c chunking.Chunker) Option {
	return func(s *Stage) {
		if c != nil {
			s.chunker = c
		}
	}
}

// WithTokenBudget bounds the evidence fed to synthesis.
func WithTokenBudget(n int) Option {
	return func(s *Stage) {
		if n > 0 {
			s.tokenBudget = n
		}
	}
}

// WithMaxIssues caps how many issues are researched.
func WithMaxIssues(n int) Option {
	return func(s *Stage) {
		if n > 0 {
			s.maxIssues = n
		}
	}
}

// WithJurisdiction steers issue queries toward one jurisdiction.
func WithJurisdiction(j string) Option {
	return func(s *Stage) { s.jurisdiction = strings.TrimSpace(j) }
}

// Stage is the research pipeline. It is stateless between calls.
type Stage struct {
	llm          agent.LLMClient
	caps         Capabilities
	prompts      *prompt.Manager
	tokenizer    tokenizer.Tokenizer
	chunker      chunking.Chunker
	tokenBudget  int
	maxIssues    int
	jurisdiction string
	logger       *slog.Logger
}

// New creates a research stage.
func New(llm agent.LLMClient, caps Capabilities, opts ...Option) *Stage {
	s := &Stage{
		llm:         llm,
		caps:        caps,
		prompts:     prompt.NewDefaultManager(),
		tokenizer:   tokenizer.NewWordTokenizer(),
		tokenBudget: defaultTokenBudget,
		maxIssues:   defaultMaxIssues,
		logger:      logging.WithComponent("research"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunker == nil {
		s.chunker = chunking.NewSimpleChunker(chunking.WithTokenizer(s.tokenizer))
	}
	return s
}

// Investigate researches summary and returns a findings report. Search and
// ranking problems degrade the report; classifier or synthesis failures
// return a StageError.
func (s *Stage) Investigate(ctx context.Context, summary *intake.CaseSummary) (report *FindingsReport, err error) {
	ctx, span := telemetry.Start(ctx, "research.Investigate")
	defer func() { telemetry.End(span, err) }()

	if summary == nil {
		return nil, errorskg.NewStageError(StageName, fmt.Errorf("%w: case summary is nil", errorskg.ErrInvalidInput))
	}

	issues, err := s.classify(ctx, summary)
	if err != nil {
		return nil, errorskg.NewStageError(StageName, err)
	}
	span.SetAttributes(attribute.Int("research.issues", len(issues)))
	if len(issues) == 0 {
		s.logger.Info("no legal issue identified")
		return noIssueReport(summary), nil
	}

	g := &gathering{seen: make(map[string]struct{})}
	if s.caps.Search == nil {
		g.degrade("search unavailable")
	}
	for _, issue := range issues {
		if err := s.gather(ctx, summary, issue, g); err != nil {
			return nil, errorskg.NewStageError(StageName, err)
		}
	}
	sources := s.bound(g.sources)
	span.SetAttributes(
		attribute.Int("research.sources", len(sources)),
		attribute.Bool("research.degraded", g.degraded),
	)

	report, err = s.synthesize(ctx, summary, issues, sources)
	if err != nil {
		return nil, errorskg.NewStageError(StageName, err)
	}
	report.Degraded = g.degraded
	report.Notes = g.notes
	s.logger.Info("research complete",
		"issues", len(issues),
		"sources", len(sources),
		"degraded", g.degraded,
	)
	return report, nil
}

type classifyReply struct {
	Issues []Issue `json:"issues"`
}

func (s *Stage) classify(ctx context.Context, summary *intake.CaseSummary) ([]Issue, error) {
	system, err := s.prompts.Render(prompt.ResearchClassify, map[string]any{
		"MaxIssues":    s.maxIssues,
		"Jurisdiction": s.jurisdiction,
	})
	if err != nil {
		return nil, err
	}
	raw, err := agent.Complete(ctx, s.llm, agent.Prompt{
		System:      system,
		User:        caseText(summary),
		JSON:        true,
		Temperature: agent.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("classify issues: %w", err)
	}
	reply, err := agent.DecodeJSON[classifyReply](raw)
	if err != nil {
		return nil, fmt.Errorf("classify issues: %w", err)
	}

	issues := make([]Issue, 0, len(reply.Issues))
	for _, is := range reply.Issues {
		is.Name = strings.TrimSpace(is.Name)
		is.Query = strings.TrimSpace(is.Query)
		if is.Name == "" {
			continue
		}
		if is.Query == "" {
			is.Query = is.Name
		}
		issues = append(issues, is)
		if len(issues) == s.maxIssues {
			break
		}
	}
	return issues, nil
}

type gathering struct {
	sources  []Source
	seen     map[string]struct{}
	degraded bool
	notes    []string
}

func (g *gathering) degrade(format string, args ...any) {
	g.degraded = true
	g.notes = append(g.notes, fmt.Sprintf(format, args...))
}

// gather searches one issue and keeps the best passage of each document.
// Only context cancellation is returned as an error.
func (s *Stage) gather(ctx context.Context, summary *intake.CaseSummary, issue Issue, g *gathering) error {
	if s.caps.Search == nil {
		return nil
	}
	docs, err := s.caps.Search(ctx, issue.Query)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("search failed", "issue", issue.Name, "error", err)
		g.degrade("search failed for %q: %v", issue.Name, err)
		return nil
	}
	s.logger.Debug("search results", "issue", issue.Name, "documents", len(docs))

	query := summary.Concern
	if strings.TrimSpace(query) == "" {
		query = summary.Narrative
	}
	for _, doc := range docs {
		key := doc.URL
		if key == "" {
			key = doc.Title + "\x00" + doc.Snippet
		}
		if _, dup := g.seen[key]; dup {
			continue
		}

		src, ok, err := s.bestPassage(ctx, query, doc, g)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		g.seen[key] = struct{}{}
		src.Issue = issue.Name
		src.Number = len(g.sources) + 1
		g.sources = append(g.sources, src)
	}
	return nil
}

func (s *Stage) bestPassage(ctx context.Context, query string, doc search.Document, g *gathering) (Source, bool, error) {
	src := Source{Title: strings.TrimSpace(doc.Title), URL: doc.URL}
	passages := s.chunker.Chunk(doc.Body())

	if s.caps.Rank == nil {
		src.Passage = fallbackPassage(doc, passages)
		return src, src.Passage != "", nil
	}

	results, err := s.caps.Rank(ctx, query, passages)
	switch {
	case err == nil:
		best, ok := ranker.Best(results)
		if !ok {
			return src, false, nil
		}
		src.Passage = best.Passage
		src.Score = best.Score
		src.Ranked = true
		return src, true, nil
	case errors.Is(err, errorskg.ErrEmptyInput):
		return src, false, nil
	case ctx.Err() != nil:
		return src, false, ctx.Err()
	default:
		s.logger.Warn("ranking failed, using snippet", "url", doc.URL, "error", err)
		g.degrade("ranking failed for %s: %v", doc.URL, err)
		src.Passage = fallbackPassage(doc, passages)
		return src, src.Passage != "", nil
	}
}

func fallbackPassage(doc search.Document, passages []string) string {
	if snippet := strings.TrimSpace(doc.Snippet); snippet != "" {
		return snippet
	}
	if len(passages) > 0 {
		return passages[0]
	}
	return ""
}

// bound truncates the evidence to the token budget, dropping sources once
// it is spent.
func (s *Stage) bound(sources []Source) []Source {
	budget := tokenizer.NewBudget(s.tokenizer, s.tokenBudget)
	kept := make([]Source, 0, len(sources))
	for _, src := range sources {
		text, ok := budget.Take(src.Passage)
		if !ok {
			s.logger.Debug("evidence budget spent", "dropped", len(sources)-len(kept))
			break
		}
		src.Passage = text
		kept = append(kept, src)
	}
	return kept
}

type synthesisReply struct {
	FactsSummary string `json:"facts_summary"`
	LegalIssues  string `json:"legal_issues"`
	Citations    string `json:"citations"`
	Analysis     string `json:"analysis"`
}

func (s *Stage) synthesize(ctx context.Context, summary *intake.CaseSummary, issues []Issue, sources []Source) (*FindingsReport, error) {
	system, err := s.prompts.Render(prompt.ResearchSynthesis, nil)
	if err != nil {
		return nil, err
	}

	var issueLines, evidence strings.Builder
	for _, is := range issues {
		fmt.Fprintf(&issueLines, "- %s (%s)\n", is.Name, is.Domain)
	}
	for _, src := range sources {
		fmt.Fprintf(&evidence, "%s\n%s\n\n", src.citation(), src.Passage)
	}
	if len(sources) == 0 {
		evidence.WriteString("No sources were retrieved. Do not cite any statute or case.")
	}
	user := prompt.NewBuilder().
		AddSection("CASE SUMMARY", caseText(summary)).
		AddSection("LEGAL ISSUES", issueLines.String()).
		AddSection("EVIDENCE", evidence.String()).
		Build()

	raw, err := agent.Complete(ctx, s.llm, agent.Prompt{
		System:      system,
		User:        user,
		JSON:        true,
		Temperature: agent.Float(0.2),
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize findings: %w", err)
	}
	reply, err := agent.DecodeJSON[synthesisReply](raw)
	if err != nil {
		return nil, fmt.Errorf("synthesize findings: %w", err)
	}
	if strings.TrimSpace(reply.Analysis) == "" {
		return nil, fmt.Errorf("synthesize findings: %w", agent.ErrEmptyResponse)
	}

	report := &FindingsReport{
		FactsSummary: strings.TrimSpace(reply.FactsSummary),
		LegalIssues:  strings.TrimSpace(reply.LegalIssues),
		Citations:    strings.TrimSpace(reply.Citations),
		Analysis:     strings.TrimSpace(reply.Analysis),
		Disclaimer:   Disclaimer,
		Issues:       issues,
		Sources:      sources,
	}
	if report.FactsSummary == "" {
		report.FactsSummary = summary.Narrative
	}
	if report.LegalIssues == "" {
		report.LegalIssues = strings.TrimSpace(issueLines.String())
	}
	switch {
	case len(sources) == 0:
		report.Citations = NoSourcesCitation
	case report.Citations == "":
		lines := make([]string, 0, len(sources))
		for _, src := range sources {
			lines = append(lines, src.citation())
		}
		report.Citations = strings.Join(lines, "\n")
	}
	return report, nil
}

func noIssueReport(summary *intake.CaseSummary) *FindingsReport {
	return &FindingsReport{
		FactsSummary: summary.Narrative,
		LegalIssues:  "No specific legal issue could be identified from the facts provided.",
		Citations:    NoSourcesCitation,
		Analysis: "The facts described do not point to a legal issue that could be researched. " +
			"A qualified lawyer or a local legal aid service can review your situation in more detail.",
		Disclaimer: Disclaimer,
	}
}

func caseText(summary *intake.CaseSummary) string {
	b := prompt.NewBuilder().
		AddSection("INCIDENT TYPE", summary.IncidentKind).
		AddSection("NARRATIVE", summary.Narrative)
	if len(summary.Record) > 0 {
		b.AddSection("FACTS", summary.Record.Lines())
	}
	return b.AddSection("USER CONCERN", summary.Concern).Build()
}
