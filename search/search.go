// Package search defines the external lookup collaborator used by the
// research stage.
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/sweetpotato0/ai-advocate/rag/preprocess"
)

// Document is one retrievable source. Content holds the full text when it
// was fetched; otherwise only Snippet is set.
type Document struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

// Body returns Content when present, else Snippet.
func (d Document) Body() string {
	if strings.TrimSpace(d.Content) != "" {
		return d.Content
	}
	return d.Snippet
}

// Searcher returns zero or more documents for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Document, error)
}

// StaticSearcher matches queries against a fixed corpus by keyword overlap.
// It serves offline runs and tests.
type StaticSearcher struct {
	docs  []Document
	limit int
}

// NewStaticSearcher builds a searcher over docs returning at most limit hits.
func NewStaticSearcher(limit int, docs ...Document) *StaticSearcher {
	if limit <= 0 {
		limit = 3
	}
	return &StaticSearcher{docs: docs, limit: limit}
}

// LoadDir reads .txt, .md and .html files from dir into a StaticSearcher.
// HTML files are converted to paragraph text.
func LoadDir(dir string, limit int) (*StaticSearcher, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}
	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" && ext != ".html" && ext != ".htm" {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		content := string(raw)
		if ext == ".html" || ext == ".htm" {
			if content, err = preprocess.Page(content); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		} else {
			content = preprocess.CleanBasic(content)
		}
		docs = append(docs, Document{
			Title:   strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			URL:     "file://" + path,
			Snippet: firstParagraph(content),
			Content: content,
		})
	}
	return NewStaticSearcher(limit, docs...), nil
}

// Search implements Searcher.
func (s *StaticSearcher) Search(ctx context.Context, query string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	type hit struct {
		doc   Document
		score int
		order int
	}
	var hits []hit
	for i, doc := range s.docs {
		body := Terms(doc.Title + " " + doc.Body())
		score := 0
		for t := range terms {
			if _, ok := body[t]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{doc: doc, score: score, order: i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]Document, 0, min(len(hits), s.limit))
	for _, h := range hits {
		if len(out) == s.limit {
			break
		}
		out = append(out, h.doc)
	}
	return out, nil
}

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"on": {}, "for": {}, "is": {}, "was": {}, "by": {}, "with": {}, "at": {}, "my": {},
	"me": {}, "i": {}, "it": {}, "be": {}, "are": {}, "that": {}, "this": {}, "law": {},
}

// Terms lowercases text and returns its distinct non-stop-word terms.
func Terms(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

func firstParagraph(text string) string {
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}
