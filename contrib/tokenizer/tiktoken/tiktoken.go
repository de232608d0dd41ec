package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/sweetpotato0/ai-advocate/rag/tokenizer"
)

var _ tokenizer.Tokenizer = (*Tokenizer)(nil)

// Tokenizer counts tokens with a tiktoken BPE encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New resolves name as a model first and as an encoding name second,
// e.g. "gpt-4o" or "cl100k_base".
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// CountTokens implements tokenizer.Tokenizer.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.encode(text))
}

// Truncate implements tokenizer.Tokenizer.
func (t *Tokenizer) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	ids := t.encode(text)
	if len(ids) <= limit {
		return text
	}
	return t.enc.Decode(ids[:limit])
}
