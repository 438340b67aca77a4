package context

import (
	"strings"
	"testing"
)

func TestPhaseProfileFor_UnknownDefaultsToCoding(t *testing.T) {
	unknown := PhaseProfileFor("totally-not-a-phase")
	coding := PhaseProfileFor("coding")
	if unknown.MinLevel != coding.MinLevel || unknown.MaxLevel != coding.MaxLevel {
		t.Errorf("expected unknown phase to default to coding profile, got %+v", unknown)
	}
}

func TestPhaseProfileFor_CaseInsensitive(t *testing.T) {
	lower := PhaseProfileFor("discovery")
	upper := PhaseProfileFor("DISCOVERY")
	if lower.MinLevel != upper.MinLevel || lower.MaxLevel != upper.MaxLevel {
		t.Errorf("expected case-insensitive phase lookup")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("1234"); got != 1 {
		t.Errorf("expected 1 token for 4 chars, got %d", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("expected 0 tokens for empty string, got %d", got)
	}
}

func TestIsWithinBudget(t *testing.T) {
	a := Assembled{TotalTokens: 100}
	if !a.IsWithinBudget(100) {
		t.Error("expected exactly-at-budget to be within budget")
	}
	if a.IsWithinBudget(99) {
		t.Error("expected over-budget to not be within budget")
	}
}

func TestSanitizeXMLTag(t *testing.T) {
	cases := map[string]string{
		"memory_semantic": "memory_semantic",
		"skill:fixbug":    "skill-fixbug",
		"Agent Identity":  "agent-identity",
	}
	for in, want := range cases {
		if got := sanitizeXMLTag(in); got != want {
			t.Errorf("sanitizeXMLTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAssembled_RenderXML(t *testing.T) {
	a := Assembled{Blocks: []Block{
		NewBlock("skill:fixbug", "do the fix", LevelDeep).WithRelevance(0.42),
	}}
	xml := a.RenderXML()
	if !strings.HasPrefix(xml, "<project-context>\n") {
		t.Errorf("expected XML to start with <project-context>, got %q", xml)
	}
	if !strings.Contains(xml, `<skill-fixbug relevance="0.42">`) {
		t.Errorf("expected sanitized tag with relevance attribute, got %q", xml)
	}
	if !strings.Contains(xml, "do the fix") {
		t.Errorf("expected block content in rendering, got %q", xml)
	}
	if !strings.HasSuffix(xml, "</project-context>") {
		t.Errorf("expected XML to end with closing tag, got %q", xml)
	}
}

func TestAssembled_Render(t *testing.T) {
	a := Assembled{Blocks: []Block{
		NewBlock("agents_md", "agent rules", LevelProject),
		NewBlock("task_spec", "the task", LevelTask),
	}}
	plain := a.Render()
	if !strings.Contains(plain, `<context source="agents_md">`) {
		t.Errorf("expected plain rendering to use raw label, got %q", plain)
	}
	if !strings.Contains(plain, "\n\n") {
		t.Errorf("expected blocks to be separated by a blank line, got %q", plain)
	}
}

func TestNewBlock_SetsEstimatedTokens(t *testing.T) {
	b := NewBlock("x", "12345678", LevelProject)
	if b.EstimatedTokens != 2 {
		t.Errorf("expected 8 chars to estimate to 2 tokens, got %d", b.EstimatedTokens)
	}
}
