// Package chunking splits fetched pages into passages small enough for an
// embedding model to read whole.
package chunking

import (
	"strings"

	"github.com/sweetpotato0/ai-advocate/rag/ranker"
	"github.com/sweetpotato0/ai-advocate/rag/tokenizer"
)

// Chunker splits text into passages.
type Chunker interface {
	Chunk(text string) []string
}

// Options configure a SimpleChunker.
type Options struct {
	MaxTokens int
	Overlap   int
	Tokenizer tokenizer.Tokenizer
}

// Option customizes the simple chunker.
type Option func(*Options)

// WithMaxTokens caps the size of a passage (default 256).
func WithMaxTokens(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

// WithOverlap sets how many tokens consecutive windows of an overlong
// paragraph share (default 32).
func WithOverlap(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.Overlap = n
		}
	}
}

// WithTokenizer sets how passage size is measured.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(o *Options) {
		if t != nil {
			o.Tokenizer = t
		}
	}
}

// SimpleChunker splits on blank lines, then windows any paragraph that is
// still longer than the token cap.
type SimpleChunker struct {
	max     int
	overlap int
	tok     tokenizer.Tokenizer
}

// NewSimpleChunker constructs a chunker sized for BERT-style encoders.
func NewSimpleChunker(opts ...Option) *SimpleChunker {
	cfg := &Options{
		MaxTokens: 256,
		Overlap:   32,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = tokenizer.NewWordTokenizer()
	}
	if cfg.Overlap >= cfg.MaxTokens {
		cfg.Overlap = cfg.MaxTokens / 4
	}
	return &SimpleChunker{max: cfg.MaxTokens, overlap: cfg.Overlap, tok: cfg.Tokenizer}
}

// Chunk implements Chunker. Blank text yields no passages.
func (c *SimpleChunker) Chunk(text string) []string {
	paragraphs := ranker.SplitPassages(text)
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		out = append(out, c.window(p)...)
	}
	return out
}

func (c *SimpleChunker) window(p string) []string {
	var out []string
	rest := p
	for c.tok.CountTokens(rest) > c.max {
		head := c.tok.Truncate(rest, c.max)
		if head == "" {
			break
		}
		out = append(out, head)

		step := c.tok.Truncate(rest, c.max-c.overlap)
		advance := len(step)
		if !strings.HasPrefix(rest, step) || advance == 0 {
			advance = len(head)
		}
		if advance >= len(rest) {
			return out
		}
		rest = strings.TrimSpace(rest[advance:])
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		out = append(out, rest)
	}
	return out
}
