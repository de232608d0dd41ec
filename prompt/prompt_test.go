package prompt

import (
	"errors"
	"strings"
	"testing"

	errorskg "github.com/sweetpotato0/ai-advocate/errors"
)

func TestDefaultManagerRendersStagePrompts(t *testing.T) {
	m := NewDefaultManager()

	got, err := m.Render(IntakeExtractUser, map[string]any{"History": "", "Message": "I was hit by a car"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "CURRENT USER QUERY:\nI was hit by a car" {
		t.Fatalf("unexpected render %q", got)
	}

	got, err = m.Render(IntakeExtractUser, map[string]any{"History": "User: hi", "Message": "more"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(got, "PREVIOUS CONVERSATION HISTORY:\nUser: hi") {
		t.Fatalf("history missing: %q", got)
	}

	got, err = m.Render(ResearchClassify, map[string]any{"MaxIssues": 3, "Jurisdiction": "India"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, "at most 3") || !strings.Contains(got, "in India") {
		t.Fatalf("classify prompt missing vars: %q", got)
	}
}

func TestMissingVariableFails(t *testing.T) {
	m := NewDefaultManager()
	if _, err := m.Render(IntakeExtractUser, map[string]any{"History": ""}); err == nil {
		t.Fatal("expected error for missing Message")
	}
}

func TestOverride(t *testing.T) {
	m := NewDefaultManager()
	if err := m.Override(IntakeSummarize, "Summarise briefly."); err != nil {
		t.Fatalf("Override: %v", err)
	}
	got, _ := m.Render(IntakeSummarize, nil)
	if got != "Summarise briefly." {
		t.Fatalf("override not applied: %q", got)
	}
	if err := m.Override("intake.unknown", "x"); !errors.Is(err, errorskg.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown template, got %v", err)
	}
	if err := m.RegisterString(IntakeSummarize, "dup"); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestApplyReportsEveryBadOverride(t *testing.T) {
	m := NewDefaultManager()
	err := m.Apply(map[string]string{
		IntakeSummarize: "Summarise.",
		"a.unknown":     "x",
		"b.unknown":     "y",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "a.unknown") || !strings.Contains(msg, "b.unknown") {
		t.Fatalf("error should name both templates: %v", err)
	}
	if got, _ := m.Render(IntakeSummarize, nil); got != "Summarise." {
		t.Fatalf("valid override not applied: %q", got)
	}
}

func TestBuilder(t *testing.T) {
	got := NewBuilder().
		AddSection("Case summary", "A pedestrian was hit.").
		AddSection("Evidence", "  ").
		AddFormat("Issues: %d", 2).
		Build()
	want := "## Case summary\nA pedestrian was hit.\n\nIssues: 2"
	if got != want {
		t.Fatalf("Build = %q, want %q", got, want)
	}
}
