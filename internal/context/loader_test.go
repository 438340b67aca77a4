package context

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoad_MissingRootFiles(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader()
	snap, err := l.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.AgentsMD != "" || snap.ClaudeMD != "" || snap.TodoMD != "" {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}

func TestLoad_ReadsToplevelFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "AGENTS.md"), "agents content")
	writeFile(t, filepath.Join(dir, "CLAUDE.md"), "# Conventions\n- use gofmt\n")
	writeFile(t, filepath.Join(dir, "TODO.md"), "- do the thing")

	l := NewLoader()
	snap, err := l.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.AgentsMD != "agents content" {
		t.Errorf("unexpected AgentsMD: %q", snap.AgentsMD)
	}
	if snap.TodoMD != "- do the thing" {
		t.Errorf("unexpected TodoMD: %q", snap.TodoMD)
	}
	if len(snap.Conventions) != 1 || snap.Conventions[0].Rule != "use gofmt" {
		t.Errorf("unexpected conventions: %+v", snap.Conventions)
	}
}

func TestLoad_TodoPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "todo.md"), "lowercase todo")
	writeFile(t, filepath.Join(dir, "TODO.md"), "uppercase todo")

	l := NewLoader()
	snap, err := l.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.TodoMD != "lowercase todo" {
		t.Errorf("expected first-matching candidate (todo.md) to win, got %q", snap.TodoMD)
	}
}

func TestLoad_ParsesAgentsAndSkills(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".claude", "agents", "reviewer.md"), "---\nname: reviewer\ndescription: reviews code\nmodel: sonnet\nallowed_tools: [Read, Grep]\n---\nBody text.")
	writeFile(t, filepath.Join(dir, ".claude", "skills", "deploy", "SKILL.md"), "---\ndescription: deploys the app\n---\nRun the deploy script.")
	writeFile(t, filepath.Join(dir, ".claude", "skills", "deploy", "references", "notes.md"), "reference notes")

	l := NewLoader()
	snap, err := l.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snap.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(snap.Agents))
	}
	a := snap.Agents[0]
	if a.Name != "reviewer" || a.Description != "reviews code" || a.Model != "sonnet" {
		t.Errorf("unexpected agent: %+v", a)
	}
	if len(a.AllowedTools) != 2 || a.AllowedTools[0] != "Read" || a.AllowedTools[1] != "Grep" {
		t.Errorf("unexpected allowed tools: %+v", a.AllowedTools)
	}
	if a.Body != "Body text." {
		t.Errorf("unexpected body: %q", a.Body)
	}

	if len(snap.Skills) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(snap.Skills))
	}
	sk := snap.Skills[0]
	if sk.Name != "deploy" {
		t.Errorf("expected skill name to fall back to directory name, got %q", sk.Name)
	}
	if sk.Description != "deploys the app" {
		t.Errorf("unexpected skill description: %q", sk.Description)
	}
	if len(sk.References) != 1 {
		t.Errorf("expected 1 reference file, got %d", len(sk.References))
	}
}

func TestLoad_CacheHitOnUnchangedFingerprint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "AGENTS.md"), "v1")

	l := NewLoader()
	if _, err := l.Load(dir); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := l.Load(dir); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	stats := l.Stats()
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Rebuilds != 1 {
		t.Errorf("expected 1 rebuild, got %d", stats.Rebuilds)
	}
}

func TestLoad_RebuildsOnContentChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AGENTS.md")
	writeFile(t, path, "v1")

	l := NewLoader()
	snap1, err := l.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap1.AgentsMD != "v1" {
		t.Fatalf("unexpected snapshot: %+v", snap1)
	}

	// Force the mtime to move forward so the fingerprint changes even on
	// filesystems with coarse mtime resolution.
	future := time.Now().Add(time.Second)
	writeFile(t, path, "v2 is much longer than v1")
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	snap2, err := l.Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap2.AgentsMD != "v2 is much longer than v1" {
		t.Errorf("expected rebuilt snapshot to reflect new content, got %q", snap2.AgentsMD)
	}

	stats := l.Stats()
	if stats.Rebuilds != 2 {
		t.Errorf("expected 2 rebuilds after content change, got %d", stats.Rebuilds)
	}
}

func TestExtractConventions_StopsAtNextHeading(t *testing.T) {
	claudeMD := "# Intro\nsome text\n\n## Coding Standards\n- use gofmt\n- write tests\n\n## Other Section\n- not a convention\n"
	conventions := extractConventions(claudeMD)
	if len(conventions) != 2 {
		t.Fatalf("expected 2 conventions, got %d: %+v", len(conventions), conventions)
	}
	if conventions[0].Rule != "use gofmt" || conventions[1].Rule != "write tests" {
		t.Errorf("unexpected conventions: %+v", conventions)
	}
}

func TestExtractConventions_NoSectionHeading(t *testing.T) {
	claudeMD := "# Intro\n- not inside a conventions section\n"
	conventions := extractConventions(claudeMD)
	if len(conventions) != 0 {
		t.Errorf("expected no conventions, got %+v", conventions)
	}
}

func TestFrontmatter_NoLeadingDelimiter(t *testing.T) {
	header, body := frontmatter("just a plain markdown body")
	if header != "" {
		t.Errorf("expected empty header, got %q", header)
	}
	if body != "just a plain markdown body" {
		t.Errorf("expected body to be the whole content, got %q", body)
	}
}

func TestParseAgentDefinition_NameFallsBackToStem(t *testing.T) {
	def := parseAgentDefinition("---\ndescription: no name given\n---\nbody", "/root/.claude/agents/helper.md")
	if def.Name != "helper" {
		t.Errorf("expected name to fall back to file stem, got %q", def.Name)
	}
}
