package context

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ryanmaclean/tundra/internal/domain"
)

// Steerer assembles per-invocation LLM context for a project. One
// instance is constructed per caller and passed explicitly, per the
// no-global-registry design note.
type Steerer struct {
	loader *Loader
	root   string

	mu       sync.Mutex
	snapshot Snapshot
	memories []domain.MemoryEntry
	loaded   bool
}

// NewSteerer constructs a Steerer for the given project root.
func NewSteerer(root string, loader *Loader) *Steerer {
	if loader == nil {
		loader = NewLoader()
	}
	return &Steerer{loader: loader, root: root}
}

// LoadProject (re)loads project context from disk, clearing cached
// conventions/agents/skills, and seeds memories from
// .claude/MEMORY.md (L0) and .claude/memory/*.md (L1 each).
func (s *Steerer) LoadProject(now time.Time, readMemoryFiles func(root string) (core string, active map[string]string)) error {
	snap, err := s.loader.Load(s.root)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
	s.memories = nil
	s.loaded = true

	if readMemoryFiles == nil {
		return nil
	}
	core, active := readMemoryFiles(s.root)
	if core != "" {
		s.memories = append(s.memories, domain.MemoryEntry{
			ID: "memory-core", Kind: domain.MemorySemantic, Content: core,
			Relevance: 0.8, Weight: domain.NewCoreWeight(now),
		})
	}
	i := 0
	for name, content := range active {
		s.memories = append(s.memories, domain.MemoryEntry{
			ID: fmt.Sprintf("memory-active-%d", i), Kind: domain.MemorySemantic, Content: content,
			Relevance: 0.6, Keywords: []string{name}, Weight: domain.NewActiveWeight(now),
		})
		i++
	}
	return nil
}

// AddMemory appends a memory entry directly, e.g. from a running pipeline.
func (s *Steerer) AddMemory(entry domain.MemoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories = append(s.memories, entry)
}

func remainingFraction(used, budget int) float64 {
	if budget <= 0 {
		return 0
	}
	remaining := budget - used
	if remaining < 0 {
		remaining = 0
	}
	return float64(remaining) / float64(budget)
}

// Assemble builds the context for one invocation against agentName,
// phaseName, an optional rendered task spec, and a total token budget.
func (s *Steerer) Assemble(agentName, phaseName, taskSpec string, budget int, now time.Time) Assembled {
	s.mu.Lock()
	snap := s.snapshot
	memories := append([]domain.MemoryEntry(nil), s.memories...)
	s.mu.Unlock()

	profile := PhaseProfileFor(phaseName)
	var result Assembled
	used := 0

	tryAdd := func(b Block) bool {
		if used+b.EstimatedTokens > budget {
			result.BlocksDropped++
			return false
		}
		result.Blocks = append(result.Blocks, b)
		used += b.EstimatedTokens
		if b.Level > result.LevelReached {
			result.LevelReached = b.Level
		}
		return true
	}

	// Step 2: L0 agent identity.
	for _, a := range snap.Agents {
		if strings.EqualFold(a.Name, agentName) {
			model := a.Model
			if model == "" {
				model = "default"
			}
			text := fmt.Sprintf("You are the %s agent.\n%s\n\nModel: %s", a.Name, a.Description, model)
			tryAdd(NewBlock("agent_identity", text, LevelIdentity).WithRelevance(1.0))
			break
		}
	}

	// Step 3: L1/L2 project blocks.
	if profile.MinLevel <= LevelProject {
		if snap.AgentsMD != "" && profile.MaxLevel >= LevelProject {
			tryAdd(NewBlock("agents_md", snap.AgentsMD, LevelProject).WithRelevance(0.7))
		}
		if snap.ClaudeMD != "" && profile.MaxLevel >= LevelProject {
			tryAdd(NewBlock("claude_md", snap.ClaudeMD, LevelProject).WithRelevance(0.7))
		}
		if snap.TodoMD != "" && profile.MaxLevel >= LevelTask {
			tryAdd(NewBlock("todo_md", snap.TodoMD, LevelTask).WithRelevance(0.5))
		}
		// Step 4: conventions.
		if len(snap.Conventions) > 0 {
			var b strings.Builder
			b.WriteString("## Project Conventions\n")
			for _, c := range snap.Conventions {
				b.WriteString("- " + c.Rule + "\n")
			}
			tryAdd(NewBlock("conventions", strings.TrimRight(b.String(), "\n"), LevelProject).WithRelevance(0.6))
		}
	}

	// Step 5: L2 task spec.
	if profile.IncludeTaskSpec && taskSpec != "" {
		tryAdd(NewBlock("task_spec", taskSpec, LevelTask).WithRelevance(0.9))
	}

	// Step 6: memories.
	if profile.IncludeMemories {
		type scored struct {
			entry domain.MemoryEntry
			score float64
		}
		var candidates []scored
		for _, m := range memories {
			frac := remainingFraction(used, budget)
			if !m.Weight.ShouldInclude(frac) {
				continue
			}
			boosted := matchesBoostKeyword(m, profile.BoostKeywords)
			if !(boosted || m.Relevance > 0.7 || m.Weight.ComputedWeight > 0.8) {
				continue
			}
			score := 0.6*m.Weight.ComputedWeight + 0.4*m.Relevance
			candidates = append(candidates, scored{entry: m, score: score})
		}
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
		for _, c := range candidates {
			label := "memory_" + string(c.entry.Kind)
			tryAdd(NewBlock(label, c.entry.Content, LevelTask).WithRelevance(c.entry.Relevance))
		}
	}

	// Step 7: skills.
	if profile.MaxLevel >= LevelDeep && profile.RelevantKinds[KindSkill] {
		for _, sk := range snap.Skills {
			rel := scoreSkillRelevance(sk, profile.BoostKeywords, taskSpec)
			if rel > 0.3 {
				tryAdd(NewBlock("skill:"+sk.Name, sk.Body, LevelDeep).WithRelevance(rel))
			}
		}
	}

	result.TotalTokens = used
	return result
}

func matchesBoostKeyword(m domain.MemoryEntry, boosts []string) bool {
	for _, kw := range m.Keywords {
		for _, b := range boosts {
			if strings.Contains(strings.ToLower(kw), strings.ToLower(b)) || strings.Contains(strings.ToLower(b), strings.ToLower(kw)) {
				return true
			}
		}
	}
	lowerContent := strings.ToLower(m.Content)
	for _, b := range boosts {
		if strings.Contains(lowerContent, strings.ToLower(b)) {
			return true
		}
	}
	return false
}

// scoreSkillRelevance averages boost-keyword matches in name/description
// (+0.3/+0.2 each) with a task-spec name mention (+0.4), plus a 0.1
// baseline, clamped to [0,1].
func scoreSkillRelevance(sk SkillDefinition, boosts []string, taskSpec string) float64 {
	var matches []float64
	lowerName := strings.ToLower(sk.Name)
	lowerDesc := strings.ToLower(sk.Description)
	for _, b := range boosts {
		lb := strings.ToLower(b)
		if strings.Contains(lowerName, lb) {
			matches = append(matches, 0.3)
		}
		if strings.Contains(lowerDesc, lb) {
			matches = append(matches, 0.2)
		}
	}
	if taskSpec != "" && strings.Contains(strings.ToLower(taskSpec), lowerName) {
		matches = append(matches, 0.4)
	}
	if len(matches) == 0 {
		return 0.1
	}
	sum := 0.0
	for _, v := range matches {
		sum += v
	}
	score := sum/float64(len(matches)) + 0.1
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
