// Package pipeline drives one task through an ordered phase workflow,
// coordinating the context steerer, the resilient provider registry,
// and the agent executor, and applies the retention policy to the
// tasks it owns. Phases form a dependency DAG executed in topological
// order; QA and Fixing iterate under a judge until the report passes
// or the iteration cap is hit.
package pipeline

import (
	"strings"
	"time"

	"github.com/ryanmaclean/tundra/internal/domain"
)

// PhaseStep is one named step of a workflow: its timeout, prompt
// template, dependency set, and optional model/role overrides.
type PhaseStep struct {
	Name           string
	Phase          domain.TaskPhase
	Required       bool
	Timeout        time.Duration
	PromptTemplate string
	DependsOn      []string
	ModelTier      string
	AgentRole      string
	// UsesAgentCLI marks a step that hands the provider response to an
	// external agent-CLI execution rather than consuming it directly.
	UsesAgentCLI bool
}

// Render substitutes {title}/{description} placeholders in the
// step's prompt template.
func (s PhaseStep) Render(task domain.Task) string {
	out := s.PromptTemplate
	out = strings.ReplaceAll(out, "{title}", task.Title)
	out = strings.ReplaceAll(out, "{description}", task.Description)
	return out
}

// WorkflowDefinition names an ordered (by dependency) set of phase steps.
type WorkflowDefinition struct {
	Name        string
	Description string
	Steps       []PhaseStep
}

// DefaultWorkflow is the built-in seven-phase workflow: discovery,
// context_gathering, spec_creation, planning, coding, qa, merging.
func DefaultWorkflow() WorkflowDefinition {
	return WorkflowDefinition{
		Name:        "default",
		Description: "Standard discovery through merge pipeline",
		Steps: []PhaseStep{
			{
				Name: "discovery", Phase: domain.PhaseDiscovery, Required: true,
				Timeout:        5 * time.Minute,
				PromptTemplate: "Explore the codebase relevant to: {title}\n{description}",
			},
			{
				Name: "context_gathering", Phase: domain.PhaseContextGathering, Required: true,
				Timeout:        5 * time.Minute,
				PromptTemplate: "Gather supporting context for: {title}",
				DependsOn:      []string{"discovery"},
			},
			{
				Name: "spec_creation", Phase: domain.PhaseSpecCreation, Required: true,
				Timeout:        10 * time.Minute,
				PromptTemplate: "Write a spec for: {title}\n{description}",
				DependsOn:      []string{"context_gathering"},
			},
			{
				Name: "planning", Phase: domain.PhasePlanning, Required: true,
				Timeout:        10 * time.Minute,
				PromptTemplate: "Plan the implementation of: {title}",
				DependsOn:      []string{"spec_creation"},
			},
			{
				Name: "coding", Phase: domain.PhaseCoding, Required: true,
				Timeout:        30 * time.Minute,
				PromptTemplate: "Implement: {title}\n{description}",
				DependsOn:      []string{"planning"},
				AgentRole:      "coder",
				UsesAgentCLI:   true,
			},
			{
				Name: "qa", Phase: domain.PhaseQA, Required: true,
				Timeout:        15 * time.Minute,
				PromptTemplate: "Review and test the changes for: {title}",
				DependsOn:      []string{"coding"},
				AgentRole:      "reviewer",
				UsesAgentCLI:   true,
			},
			{
				Name: "merging", Phase: domain.PhaseMerging, Required: true,
				Timeout:        5 * time.Minute,
				PromptTemplate: "Merge the completed change for: {title}",
				DependsOn:      []string{"qa"},
			},
		},
	}
}

// ExecutionOrder topologically sorts Steps by DependsOn. When a cycle
// prevents further progress, the remaining steps are appended in
// their input order. This is best-effort and never blocks. Running
// ExecutionOrder again on the returned order reproduces the same
// order (it is idempotent: an already-ordered sequence's dependencies
// are all satisfied by steps preceding them).
func (w WorkflowDefinition) ExecutionOrder() []PhaseStep {
	byName := make(map[string]PhaseStep, len(w.Steps))
	for _, s := range w.Steps {
		byName[s.Name] = s
	}

	var ordered []PhaseStep
	placed := make(map[string]bool, len(w.Steps))

	ready := func(s PhaseStep) bool {
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; ok && !placed[dep] {
				return false
			}
		}
		return true
	}

	remaining := append([]PhaseStep(nil), w.Steps...)
	for len(remaining) > 0 {
		progressed := false
		var next []PhaseStep
		for _, s := range remaining {
			if !placed[s.Name] && ready(s) {
				ordered = append(ordered, s)
				placed[s.Name] = true
				progressed = true
				continue
			}
			next = append(next, s)
		}
		remaining = next
		if !progressed {
			// Cycle (or unresolved dependency): append the rest in
			// input order rather than block forever.
			ordered = append(ordered, remaining...)
			break
		}
	}
	return ordered
}
