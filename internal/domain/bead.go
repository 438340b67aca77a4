// Package domain holds the work-item data model: beads, tasks, subtasks,
// agents, and the state machines that govern their lifecycles.
package domain

import "time"

// Lane ranks how much supervision a bead's work receives.
type Lane string

const (
	LaneExperimental Lane = "experimental"
	LaneStandard     Lane = "standard"
	LaneCritical     Lane = "critical"
)

// BeadStatus is the lifecycle state of a Bead.
type BeadStatus string

const (
	BeadBacklog   BeadStatus = "backlog"
	BeadHooked    BeadStatus = "hooked"
	BeadSlung     BeadStatus = "slung"
	BeadReview    BeadStatus = "review"
	BeadDone      BeadStatus = "done"
	BeadFailed    BeadStatus = "failed"
	BeadEscalated BeadStatus = "escalated"
)

var beadTransitions = map[BeadStatus]map[BeadStatus]bool{
	BeadBacklog:   {BeadHooked: true},
	BeadHooked:    {BeadSlung: true, BeadBacklog: true},
	BeadSlung:     {BeadReview: true, BeadFailed: true, BeadEscalated: true},
	BeadReview:    {BeadDone: true, BeadSlung: true, BeadFailed: true},
	BeadFailed:    {BeadBacklog: true},
	BeadEscalated: {BeadBacklog: true},
}

// CanTransitionTo reports whether a Bead may move from s to next.
func (s BeadStatus) CanTransitionTo(next BeadStatus) bool {
	return beadTransitions[s][next]
}

// Bead is a high-level work item tracked through its lifecycle.
type Bead struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Lane        Lane           `json:"lane"`
	Status      BeadStatus     `json:"status"`
	AgentID     string         `json:"agent_id,omitempty"`
	ConvoyID    string         `json:"convoy_id,omitempty"`
	Branch      string         `json:"branch,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	HookedAt    *time.Time     `json:"hooked_at,omitempty"`
	SlungAt     *time.Time     `json:"slung_at,omitempty"`
	DoneAt      *time.Time     `json:"done_at,omitempty"`
}

// SetStatus transitions the bead, stamping the relevant timestamp, or
// returns false if the transition is not allowed.
func (b *Bead) SetStatus(next BeadStatus, now time.Time) bool {
	if !b.Status.CanTransitionTo(next) {
		return false
	}
	b.Status = next
	b.UpdatedAt = now
	switch next {
	case BeadHooked:
		b.HookedAt = &now
	case BeadSlung:
		b.SlungAt = &now
	case BeadDone:
		b.DoneAt = &now
	}
	return true
}

// Convoy groups beads that are executed together.
type Convoy struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"` // forming|active|paused|completed|aborted
	BeadIDs   []string   `json:"bead_ids"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Mail is a directed, point-to-point note between agents, surfaced on
// the event bus alongside AgentOutput/Event bridge messages.
type Mail struct {
	ID          string    `json:"id"`
	FromAgentID string    `json:"from_agent_id"`
	ToAgentID   string    `json:"to_agent_id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// TokenMetric records a single LLM request's token/cost sample,
// attributed to the task and agent that issued it.
type TokenMetric struct {
	TaskID       string    `json:"task_id"`
	AgentID      string    `json:"agent_id,omitempty"`
	ProfileID    string    `json:"profile_id"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
}
