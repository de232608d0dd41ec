package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sweetpotato0/ai-advocate/advocate"
	"github.com/sweetpotato0/ai-advocate/advocate/intake"
	"github.com/sweetpotato0/ai-advocate/config"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/message"
	"github.com/sweetpotato0/ai-advocate/rag/ranker"
	"github.com/sweetpotato0/ai-advocate/rag/tokenizer"
	"github.com/sweetpotato0/ai-advocate/store"
)

type scriptedAdvancer struct {
	st    *store.InMemoryStore
	calls []advocate.AdvanceRequest
}

func (s *scriptedAdvancer) Advance(ctx context.Context, req advocate.AdvanceRequest) (*advocate.Turn, error) {
	s.calls = append(s.calls, req)
	if strings.Contains(req.Message, "fail") {
		return nil, errorskg.NewStageError(intake.StageName, errors.New("model unavailable"))
	}
	turn := &advocate.Turn{
		Kind:     advocate.KindQuestion,
		Response: "On what date did this happen?",
		Trace:    advocate.Trace{StageReached: intake.StageName},
	}
	s.st.Append(ctx, store.NewRecord(req.SessionID, message.NewMessage(message.RoleUser, req.Message)))
	s.st.Append(ctx, store.NewRecord(req.SessionID, message.NewAdvocateMessage(turn.Response, turn.Trace)))
	return turn, nil
}

func TestRunChat(t *testing.T) {
	st := store.NewInMemoryStore()
	adv := &scriptedAdvancer{st: st}
	in := strings.NewReader("I was hit by a car\n\nplease fail\nyesterday\nexit\nignored\n")
	var out bytes.Buffer

	err := runChat(context.Background(), in, &out, adv, st, chatOptions{sessionID: "s1", showTrace: true})
	if err != nil {
		t.Fatalf("runChat: %v", err)
	}

	if len(adv.calls) != 3 {
		t.Fatalf("advance calls = %d, want 3", len(adv.calls))
	}
	if got := len(adv.calls[2].History); got != 2 {
		t.Errorf("third turn saw %d history messages, want 2", got)
	}
	for _, c := range adv.calls {
		if c.SessionID != "s1" {
			t.Errorf("session = %q", c.SessionID)
		}
	}

	text := out.String()
	if !strings.Contains(text, "On what date did this happen?") {
		t.Errorf("missing question in output:\n%s", text)
	}
	if !strings.Contains(text, "could not finish working on your case") {
		t.Errorf("missing apology in output:\n%s", text)
	}
	if !strings.Contains(text, `"stage_reached": "intake"`) {
		t.Errorf("missing trace in output:\n%s", text)
	}
	if strings.Contains(text, "ignored") {
		t.Error("input after exit was processed")
	}
}

func TestRunChatNewSession(t *testing.T) {
	st := store.NewInMemoryStore()
	adv := &scriptedAdvancer{st: st}
	var out bytes.Buffer
	if err := runChat(context.Background(), strings.NewReader("hello\n"), &out, adv, st, chatOptions{}); err != nil {
		t.Fatal(err)
	}
	if len(adv.calls) != 1 || adv.calls[0].SessionID == "" {
		t.Fatalf("calls = %+v", adv.calls)
	}
}

type fixedRanker struct {
	results []ranker.Result
	err     error
}

func (f fixedRanker) Rank(context.Context, string, []string) ([]ranker.Result, error) {
	return f.results, f.err
}

func TestRunRank(t *testing.T) {
	results := []ranker.Result{
		{Index: 0, Passage: "Section 21 governs eviction.", Score: 0.2},
		{Index: 1, Passage: "Section 184 penalises dangerous driving.\nSecond line.", Score: 0.9},
	}

	tests := []struct {
		name    string
		r       fixedRanker
		opts    rankOptions
		want    []string
		wantErr error
	}{
		{
			name: "best only",
			r:    fixedRanker{results: results},
			opts: rankOptions{query: "hit by a car"},
			want: []string{"Most Relevant Section (Similarity: 0.90)", "Section 184"},
		},
		{
			name: "all scores",
			r:    fixedRanker{results: results},
			opts: rankOptions{query: "hit by a car", all: true},
			want: []string{"[0] 0.2000", "[1] 0.9000  Section 184 penalises dangerous driving. ..."},
		},
		{
			name: "nothing to rank",
			r:    fixedRanker{err: errorskg.ErrEmptyInput},
			opts: rankOptions{query: "hit by a car"},
			want: []string{"No passages to rank."},
		},
		{
			name:    "provider failure",
			r:       fixedRanker{err: &ranker.EmbeddingError{Reason: "request failed"}},
			opts:    rankOptions{query: "hit by a car"},
			wantErr: errorskg.ErrEmbeddingProvider,
		},
		{
			name:    "empty query",
			r:       fixedRanker{results: results},
			opts:    rankOptions{query: " "},
			wantErr: errorskg.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runRank(context.Background(), &out, tt.r, tt.opts, []string{"a", "b"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output %q missing %q", out.String(), w)
				}
			}
		})
	}
}

func TestNewTokenizer(t *testing.T) {
	tok, err := newTokenizer(config.ResearchConfig{Tokenizer: "word"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tok.(*tokenizer.WordTokenizer); !ok {
		t.Errorf("got %T", tok)
	}
	if _, err := newTokenizer(config.ResearchConfig{Tokenizer: "bpe"}); err == nil {
		t.Error("expected error for unknown tokenizer")
	}
}

func TestNewSearcher(t *testing.T) {
	s, err := newSearcher(config.SearchConfig{Provider: "none"})
	if err != nil || s != nil {
		t.Fatalf("none: %v %v", s, err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mva.txt"), []byte("Motor Vehicles Act\n\nSection 184 dangerous driving."), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err = newSearcher(config.SearchConfig{Provider: "static", CorpusDir: dir, MaxResults: 2})
	if err != nil || s == nil {
		t.Fatalf("static: %v %v", s, err)
	}
	docs, err := s.Search(context.Background(), "dangerous driving")
	if err != nil || len(docs) != 1 {
		t.Errorf("search = %v, %v", docs, err)
	}

	if _, err := newSearcher(config.SearchConfig{Provider: "bing"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewStoreAndLLMErrors(t *testing.T) {
	ctx := context.Background()
	st, err := newStore(ctx, config.StoreConfig{Backend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*store.InMemoryStore); !ok {
		t.Errorf("got %T", st)
	}
	if _, err := newStore(ctx, config.StoreConfig{Backend: "sqlite"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, _, err := newLLM(ctx, config.LLMConfig{Provider: "llama"}); err == nil {
		t.Error("expected error for unknown llm provider")
	}
	emb, _, err := newEmbedder(ctx, config.EmbeddingConfig{Provider: "none"})
	if err != nil || emb != nil {
		t.Errorf("none embedder = %v, %v", emb, err)
	}
}

func TestBuildWiresPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "test-key"
	cfg.Embedding.Provider = "none"
	cfg.Search.Provider = "none"
	cfg.Research.Jurisdiction = "India"

	c, err := build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	if c.coordinator == nil || c.store == nil || c.llm == nil {
		t.Fatalf("components not wired: %+v", c)
	}
	if c.ranker != nil || c.searcher != nil {
		t.Error("disabled capabilities should stay nil")
	}
}

func TestRankRequiresQuery(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"rank", "--env-file", filepath.Join(t.TempDir(), "none.env"), "some passage"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "query") {
		t.Fatalf("err = %v", err)
	}
}
