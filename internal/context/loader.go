package context

import (
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Snapshot is everything the loader reads from a project root in one pass.
type Snapshot struct {
	AgentsMD  string
	ClaudeMD  string
	TodoMD    string
	Agents    []AgentDefinition
	Skills    []SkillDefinition
	Conventions []Convention
}

var toplevelCandidates = []string{"AGENTS.md", "CLAUDE.md", "todo.md", "TODO.md", "plan.md", "PLAN.md"}

// CacheStats exposes fingerprint-cache hit/miss/rebuild counters.
type CacheStats struct {
	Hits     int64
	Misses   int64
	Rebuilds int64
}

type cachedSnapshot struct {
	fingerprint uint64
	snapshot    Snapshot
}

// Loader loads and caches project context snapshots, keyed by project
// root. One instance is explicitly constructed and passed to callers
// per the no-global-registry design note; it is not a package-level
// singleton.
type Loader struct {
	mu    sync.Mutex
	cache map[string]cachedSnapshot
	stats CacheStats
}

// NewLoader constructs an empty, unpopulated Loader.
func NewLoader() *Loader {
	return &Loader{cache: make(map[string]cachedSnapshot)}
}

// Stats returns a snapshot of the cache counters.
func (l *Loader) Stats() CacheStats {
	return CacheStats{
		Hits:     atomic.LoadInt64(&l.stats.Hits),
		Misses:   atomic.LoadInt64(&l.stats.Misses),
		Rebuilds: atomic.LoadInt64(&l.stats.Rebuilds),
	}
}

// Load returns the cached snapshot for root if its fingerprint is
// unchanged, otherwise rebuilds, caches, and returns the fresh one.
func (l *Loader) Load(root string) (Snapshot, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Snapshot{}, err
	}

	fp, err := fingerprint(abs)
	if err != nil {
		return Snapshot{}, err
	}

	l.mu.Lock()
	if cached, ok := l.cache[abs]; ok && cached.fingerprint == fp {
		l.mu.Unlock()
		atomic.AddInt64(&l.stats.Hits, 1)
		return cached.snapshot, nil
	}
	l.mu.Unlock()
	atomic.AddInt64(&l.stats.Misses, 1)

	snap, err := loadUncached(abs)
	if err != nil {
		return Snapshot{}, err
	}

	l.mu.Lock()
	l.cache[abs] = cachedSnapshot{fingerprint: fp, snapshot: snap}
	l.mu.Unlock()
	atomic.AddInt64(&l.stats.Rebuilds, 1)

	return snap, nil
}

func loadUncached(root string) (Snapshot, error) {
	var snap Snapshot

	if b, err := os.ReadFile(filepath.Join(root, "AGENTS.md")); err == nil {
		snap.AgentsMD = string(b)
	}
	if b, err := os.ReadFile(filepath.Join(root, "CLAUDE.md")); err == nil {
		snap.ClaudeMD = string(b)
		snap.Conventions = extractConventions(snap.ClaudeMD)
	}
	for _, name := range []string{"todo.md", "TODO.md", "plan.md", "PLAN.md"} {
		if b, err := os.ReadFile(filepath.Join(root, name)); err == nil {
			snap.TodoMD = string(b)
			break
		}
	}

	agentsDir := filepath.Join(root, ".claude", "agents")
	if entries, err := os.ReadDir(agentsDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			path := filepath.Join(agentsDir, e.Name())
			b, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			def := parseAgentDefinition(string(b), path)
			snap.Agents = append(snap.Agents, def)
		}
	}

	skillsDir := filepath.Join(root, ".claude", "skills")
	if entries, err := os.ReadDir(skillsDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			skillPath := filepath.Join(skillsDir, e.Name(), "SKILL.md")
			b, err := os.ReadFile(skillPath)
			if err != nil {
				continue
			}
			def := parseSkillDefinition(string(b), skillPath)
			refDir := filepath.Join(skillsDir, e.Name(), "references")
			if refs, err := os.ReadDir(refDir); err == nil {
				for _, r := range refs {
					if !r.IsDir() {
						def.References = append(def.References, filepath.Join(refDir, r.Name()))
					}
				}
			}
			snap.Skills = append(snap.Skills, def)
		}
	}

	return snap, nil
}

// fingerprint hashes root plus the (path,size,mtime) of every file the
// loader considers, deliberately ignoring file bodies.
func fingerprint(root string) (uint64, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(root))

	hashFile := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		_, _ = h.Write([]byte(path))
		_, _ = h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
		_, _ = h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	}

	for _, name := range toplevelCandidates {
		hashFile(filepath.Join(root, name))
	}

	var agentPaths []string
	if entries, err := os.ReadDir(filepath.Join(root, ".claude", "agents")); err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				agentPaths = append(agentPaths, filepath.Join(root, ".claude", "agents", e.Name()))
			}
		}
	}
	sort.Strings(agentPaths)
	for _, p := range agentPaths {
		hashFile(p)
	}

	var skillPaths []string
	skillsDir := filepath.Join(root, ".claude", "skills")
	if entries, err := os.ReadDir(skillsDir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				skillPaths = append(skillPaths, filepath.Join(skillsDir, e.Name(), "SKILL.md"))
			}
		}
	}
	sort.Strings(skillPaths)
	for _, p := range skillPaths {
		hashFile(p)
	}

	return h.Sum64(), nil
}

// frontmatter splits a "---\n...\n---\nbody" file into its YAML
// header and markdown body; files without a leading "---" line have
// no frontmatter and their entire content is the body.
func frontmatter(content string) (header, body string) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", content
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n")
		}
	}
	return "", content
}

type agentFrontmatter struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Model        string `yaml:"model"`
	AllowedTools any    `yaml:"allowed_tools"`
}

func splitToolList(v any) []string {
	switch t := v.(type) {
	case string:
		s := strings.Trim(t, "[] ")
		if s == "" {
			return nil
		}
		var out []string
		for _, part := range strings.Split(s, ",") {
			out = append(out, strings.TrimSpace(part))
		}
		return out
	case []any:
		var out []string
		for _, e := range t {
			out = append(out, strings.TrimSpace(strings.Trim(fmtAny(e), "\"")))
		}
		return out
	default:
		return nil
	}
}

func fmtAny(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func stemName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseAgentDefinition(content, path string) AgentDefinition {
	header, body := frontmatter(content)
	var fm agentFrontmatter
	_ = yaml.Unmarshal([]byte(header), &fm)
	name := fm.Name
	if name == "" {
		name = stemName(path)
	}
	return AgentDefinition{
		Name:         name,
		Description:  fm.Description,
		Model:        fm.Model,
		AllowedTools: splitToolList(fm.AllowedTools),
		Body:         strings.TrimSpace(body),
		Path:         path,
	}
}

func parseSkillDefinition(content, path string) SkillDefinition {
	header, body := frontmatter(content)
	var fm agentFrontmatter
	_ = yaml.Unmarshal([]byte(header), &fm)
	name := fm.Name
	if name == "" {
		name = filepath.Base(filepath.Dir(path))
	}
	return SkillDefinition{
		Name:         name,
		Description:  fm.Description,
		AllowedTools: splitToolList(fm.AllowedTools),
		Body:         strings.TrimSpace(body),
		Path:         path,
	}
}

var conventionHeadingWords = []string{"convention", "rule", "standard", "guideline", "requirement"}

func isHeading(line string) bool { return strings.HasPrefix(strings.TrimSpace(line), "#") }

func headingMentionsConventions(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range conventionHeadingWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// extractConventions walks CLAUDE.md, entering a "conventions" section
// on any heading mentioning convention/rule/standard/guideline/
// requirement, and collecting "- " bullet lines until the next heading.
func extractConventions(claudeMD string) []Convention {
	var out []Convention
	inSection := false
	for _, line := range strings.Split(claudeMD, "\n") {
		if isHeading(line) {
			inSection = headingMentionsConventions(line)
			continue
		}
		if !inSection {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") {
			out = append(out, Convention{Rule: strings.TrimPrefix(trimmed, "- ")})
		}
	}
	return out
}
