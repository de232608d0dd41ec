package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenizer counts tokens so evidence can be bounded before it reaches a model.
type Tokenizer interface {
	CountTokens(text string) int
	// Truncate returns the longest prefix of text that fits in limit tokens.
	Truncate(text string, limit int) string
}

var _ Tokenizer = (*WordTokenizer)(nil)

// WordTokenizer approximates model tokens with words, numbers, Han runes and
// punctuation marks. It needs no vocabulary files.
type WordTokenizer struct{}

// NewWordTokenizer creates the fallback tokenizer.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{}
}

// span marks the byte range of one token in the source text.
type span struct{ start, end int }

// Tokenization rules:
//   - letters and digits form continuous words
//   - Han characters are single tokens
//   - every other non-space rune is a standalone token
func (t *WordTokenizer) split(s string) []span {
	var (
		spans []span
		start = -1
	)
	flush := func(end int) {
		if start >= 0 {
			spans = append(spans, span{start, end})
			start = -1
		}
	}
	for i, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush(i)
		case unicode.Is(unicode.Han, r):
			flush(i)
			spans = append(spans, span{i, i + len(string(r))})
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if start < 0 {
				start = i
			}
		default:
			flush(i)
			spans = append(spans, span{i, i + len(string(r))})
		}
	}
	flush(len(s))
	return spans
}

// CountTokens implements Tokenizer.
func (t *WordTokenizer) CountTokens(text string) int {
	return len(t.split(text))
}

// Truncate implements Tokenizer.
func (t *WordTokenizer) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	spans := t.split(text)
	if len(spans) <= limit {
		return text
	}
	return strings.TrimSpace(text[:spans[limit-1].end])
}

// Budget hands out a fixed number of tokens across several texts.
type Budget struct {
	tok       Tokenizer
	remaining int
}

// NewBudget starts a budget of limit tokens measured with tok.
func NewBudget(tok Tokenizer, limit int) *Budget {
	if tok == nil {
		tok = NewWordTokenizer()
	}
	return &Budget{tok: tok, remaining: limit}
}

// Take returns text truncated to the remaining budget and charges for it.
// ok is false once the budget is exhausted.
func (b *Budget) Take(text string) (string, bool) {
	if b.remaining <= 0 {
		return "", false
	}
	n := b.tok.CountTokens(text)
	if n > b.remaining {
		text = b.tok.Truncate(text, b.remaining)
		n = b.remaining
	}
	b.remaining -= n
	return text, text != ""
}

// Remaining reports how many tokens are left.
func (b *Budget) Remaining() int {
	return b.remaining
}
