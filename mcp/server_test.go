package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/ai-advocate/advocate"
	"github.com/sweetpotato0/ai-advocate/advocate/intake"
	"github.com/sweetpotato0/ai-advocate/advocate/research"
	"github.com/sweetpotato0/ai-advocate/agent"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/message"
	"github.com/sweetpotato0/ai-advocate/rag/ranker"
	"github.com/sweetpotato0/ai-advocate/store"
)

// axisEmbedder maps texts mentioning "vehicle" to one axis and everything
// else to the other.
type axisEmbedder struct{ err error }

func (e axisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e axisEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(strings.ToLower(t), "vehicle") {
			out[i] = []float32{1, 0.1}
		} else {
			out[i] = []float32{0.1, 1}
		}
	}
	return out, nil
}

func (axisEmbedder) Dimension() int { return 2 }

type questionGatherer struct{}

func (questionGatherer) Gather(_ context.Context, _ []*message.Message, msg string) (*intake.Outcome, error) {
	if strings.Contains(msg, "fail") {
		return nil, errorskg.NewStageError(intake.StageName, errors.New("model unavailable"))
	}
	return &intake.Outcome{State: intake.StateCollecting, Question: "Where did it happen?", AskedSlot: intake.SlotLocation}, nil
}

type noInvestigator struct{}

func (noInvestigator) Investigate(context.Context, *intake.CaseSummary) (*research.FindingsReport, error) {
	return nil, errors.New("not reached")
}

func connect(t *testing.T, srv *Server) *sdkmcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := sdkmcp.NewInMemoryTransports()

	ss, err := srv.sdk.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callText(t *testing.T, cs *sdkmcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return err.Error(), true
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String(), res.IsError
}

func TestSimilarityTool(t *testing.T) {
	srv, err := NewServer(ServerInfo{}, WithRanker(ranker.New(axisEmbedder{})))
	if err != nil {
		t.Fatal(err)
	}
	cs := connect(t, srv)

	text, isErr := callText(t, cs, ToolSimilarity, map[string]any{
		"query": "hit by a motor vehicle",
		"sections": []string{
			"Section 21 of the Rent Control Act governs eviction.",
			"Section 184 of the Motor Vehicles Act penalises dangerous driving.",
		},
	})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var out SimilarityOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(out.Results))
	}
	if out.Best == nil || out.Best.Index != 1 {
		t.Fatalf("best = %+v, want index 1", out.Best)
	}
	if out.Best.Similarity <= out.Results[0].Similarity {
		t.Errorf("best similarity %.3f not above %.3f", out.Best.Similarity, out.Results[0].Similarity)
	}
}

func TestSimilarityToolEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		embedder axisEmbedder
		args     map[string]any
		wantErr  bool
		wantText string
	}{
		{
			name:     "no sections",
			args:     map[string]any{"query": "theft", "sections": []string{}},
			wantText: `"results":[]`,
		},
		{
			name:     "blank sections",
			args:     map[string]any{"query": "theft", "sections": []string{" ", ""}},
			wantText: `"results":[]`,
		},
		{
			name:    "empty query",
			args:    map[string]any{"query": "", "sections": []string{"text"}},
			wantErr: true,
		},
		{
			name:     "provider down",
			embedder: axisEmbedder{err: errors.New("503")},
			args:     map[string]any{"query": "theft", "sections": []string{"text"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewServer(ServerInfo{}, WithRanker(ranker.New(tt.embedder)))
			if err != nil {
				t.Fatal(err)
			}
			text, isErr := callText(t, connect(t, srv), ToolSimilarity, tt.args)
			if isErr != tt.wantErr {
				t.Fatalf("isErr = %v, want %v (%s)", isErr, tt.wantErr, text)
			}
			if tt.wantText != "" && !strings.Contains(text, tt.wantText) {
				t.Errorf("text %q missing %q", text, tt.wantText)
			}
		})
	}
}

func TestTurnTool(t *testing.T) {
	st := store.NewInMemoryStore()
	coord, err := advocate.New(questionGatherer{}, noInvestigator{}, advocate.WithRecorder(st))
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewServer(ServerInfo{Name: "advocate"}, WithAdvocate(coord, st))
	if err != nil {
		t.Fatal(err)
	}
	cs := connect(t, srv)

	text, isErr := callText(t, cs, ToolTurn, map[string]any{"message": "I was hit by a car"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var out TurnOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
	if out.SessionID == "" || out.Kind != advocate.KindQuestion || out.Response != "Where did it happen?" {
		t.Errorf("out = %+v", out)
	}
	if got := st.Count(); got != 2 {
		t.Errorf("records = %d, want 2", got)
	}

	text, isErr = callText(t, cs, ToolTurn, map[string]any{"session_id": out.SessionID, "message": "please fail"})
	if !isErr {
		t.Fatalf("expected tool error, got %s", text)
	}
	var failed TurnOutput
	if err := json.Unmarshal([]byte(text), &failed); err != nil {
		t.Fatalf("decode failed turn %q: %v", text, err)
	}
	if failed.Kind != advocate.KindError || failed.Trace.StageReached != intake.StageName {
		t.Errorf("failed turn = %+v", failed)
	}
	if strings.Contains(failed.Response, "?") || strings.Contains(failed.Response, "model unavailable") {
		t.Errorf("apology should be plain text without internals: %q", failed.Response)
	}
	if got := st.Count(); got != 2 {
		t.Errorf("failed turn was stored: %d records", got)
	}
}

// stageLLM answers the real intake and research prompts.
type stageLLM struct{ issues string }

func (l stageLLM) Generate(_ context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	system := req.Messages[0].Content
	var text string
	switch {
	case strings.Contains(system, "You extract facts"):
		text = `{"slots":{}}`
	case strings.Contains(system, "You condense"):
		text = "The user was hit by a car on Main Street."
	case strings.Contains(system, "Identify the distinct legal issues"):
		text = l.issues
	case strings.Contains(system, "write a findings report"):
		text = `{"facts_summary":"Hit by a car.","legal_issues":"Negligent driving",
			"citations":"none","analysis":"The driver may be liable."}`
	default:
		return nil, errors.New("unexpected prompt")
	}
	return &agent.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, text)}, nil
}

func TestTurnToolReportsWithoutSources(t *testing.T) {
	const carAccident = "I was hit by a car on Main Street on 2025-11-21 at 10:00 AM, driven by John Doe."
	tests := []struct {
		name     string
		issues   string
		degraded bool
	}{
		{name: "no issues", issues: `{"issues":[]}`},
		{name: "no search", issues: `{"issues":[{"name":"Negligent driving","domain":"tort","query":"negligent driving"}]}`, degraded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := stageLLM{issues: tt.issues}
			st := store.NewInMemoryStore()
			coord, err := advocate.New(intake.New(llm), research.New(llm, research.Capabilities{}), advocate.WithRecorder(st))
			if err != nil {
				t.Fatal(err)
			}
			srv, err := NewServer(ServerInfo{Name: "advocate"}, WithAdvocate(coord, st))
			if err != nil {
				t.Fatal(err)
			}

			text, isErr := callText(t, connect(t, srv), ToolTurn, map[string]any{"message": carAccident})
			if isErr {
				t.Fatalf("tool error: %s", text)
			}
			var out TurnOutput
			if err := json.Unmarshal([]byte(text), &out); err != nil {
				t.Fatalf("decode %q: %v", text, err)
			}
			if out.Kind != advocate.KindFindings || out.Trace.Research == nil {
				t.Fatalf("out = %+v", out)
			}
			if out.Trace.Research.Degraded != tt.degraded {
				t.Errorf("degraded = %v, want %v", out.Trace.Research.Degraded, tt.degraded)
			}
			if !strings.Contains(text, `"sources":[]`) {
				t.Errorf("sources should be an empty list: %s", text)
			}
			if st.Count() != 2 {
				t.Errorf("records = %d, want 2", st.Count())
			}
		})
	}
}

func TestListTools(t *testing.T) {
	st := store.NewInMemoryStore()
	coord, err := advocate.New(questionGatherer{}, noInvestigator{})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewServer(ServerInfo{}, WithRanker(ranker.New(axisEmbedder{})), WithAdvocate(coord, st))
	if err != nil {
		t.Fatal(err)
	}
	res, err := connect(t, srv).ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	if !names[ToolSimilarity] || !names[ToolTurn] {
		t.Errorf("tools = %v", names)
	}
}

func TestNewServerRequiresTools(t *testing.T) {
	if _, err := NewServer(ServerInfo{}); err == nil {
		t.Error("expected error with no tools")
	}
	coord, _ := advocate.New(questionGatherer{}, noInvestigator{})
	if _, err := NewServer(ServerInfo{}, WithAdvocate(coord, nil)); err == nil {
		t.Error("expected error without history reader")
	}
}
