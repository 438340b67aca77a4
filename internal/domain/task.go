package domain

import "time"

// TaskPhase is the current step of a task in its pipeline.
type TaskPhase string

const (
	PhaseDiscovery        TaskPhase = "discovery"
	PhaseContextGathering TaskPhase = "context_gathering"
	PhaseSpecCreation     TaskPhase = "spec_creation"
	PhasePlanning         TaskPhase = "planning"
	PhaseCoding           TaskPhase = "coding"
	PhaseQA               TaskPhase = "qa"
	PhaseFixing           TaskPhase = "fixing"
	PhaseMerging          TaskPhase = "merging"
	PhaseComplete         TaskPhase = "complete"
	PhaseError            TaskPhase = "error"
	PhaseStopped          TaskPhase = "stopped"
)

var taskTransitions = map[TaskPhase]map[TaskPhase]bool{
	PhaseDiscovery:        {PhaseContextGathering: true},
	PhaseContextGathering: {PhaseSpecCreation: true},
	PhaseSpecCreation:     {PhasePlanning: true},
	PhasePlanning:         {PhaseCoding: true},
	PhaseCoding:           {PhaseQA: true},
	PhaseQA:               {PhaseFixing: true, PhaseMerging: true},
	PhaseFixing:           {PhaseQA: true, PhaseCoding: true},
	PhaseMerging:          {PhaseComplete: true},
}

// CanTransitionTo reports whether a task may move from p to next. Any
// phase may additionally transition to Error or Stopped.
func (p TaskPhase) CanTransitionTo(next TaskPhase) bool {
	if next == PhaseError || next == PhaseStopped {
		return true
	}
	return taskTransitions[p][next]
}

// ProgressPercent is the pure function of phase to completion percent.
func (p TaskPhase) ProgressPercent() int {
	switch p {
	case PhaseDiscovery:
		return 5
	case PhaseContextGathering:
		return 15
	case PhaseSpecCreation:
		return 25
	case PhasePlanning:
		return 35
	case PhaseCoding:
		return 55
	case PhaseQA:
		return 70
	case PhaseFixing:
		return 80
	case PhaseMerging:
		return 90
	case PhaseComplete:
		return 100
	default: // Error, Stopped
		return 0
	}
}

// Category classifies the nature of the change a task implements.
type Category string

const (
	CategoryFeature        Category = "feature"
	CategoryBugFix         Category = "bug_fix"
	CategoryRefactoring    Category = "refactoring"
	CategoryDocumentation  Category = "documentation"
	CategorySecurity       Category = "security"
	CategoryPerformance    Category = "performance"
	CategoryUiUx           Category = "ui_ux"
	CategoryInfrastructure Category = "infrastructure"
	CategoryTesting        Category = "testing"
)

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Complexity is the estimated size of a task.
type Complexity string

const (
	ComplexityTrivial Complexity = "trivial"
	ComplexitySmall   Complexity = "small"
	ComplexityMedium  Complexity = "medium"
	ComplexityLarge   Complexity = "large"
	ComplexityComplex Complexity = "complex"
)

// AgentProfileKind selects how aggressively an agent should be modeled.
type AgentProfileKind string

const (
	AgentProfileAuto     AgentProfileKind = "auto"
	AgentProfileComplex  AgentProfileKind = "complex"
	AgentProfileBalanced AgentProfileKind = "balanced"
	AgentProfileQuick    AgentProfileKind = "quick"
	AgentProfileCustom   AgentProfileKind = "custom"
)

// AgentProfile is the resolved agent-profile selector for a task; when
// Kind is AgentProfileCustom, Name carries the custom profile's name.
type AgentProfile struct {
	Kind AgentProfileKind `json:"kind"`
	Name string           `json:"name,omitempty"`
}

// PhaseOverride customizes the model/thinking level for one phase.
type PhaseOverride struct {
	Model    string `json:"model,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

// LogEntryKind categorizes a single structured task log line.
type LogEntryKind string

const (
	LogPhaseStart LogEntryKind = "phase_start"
	LogPhaseEnd   LogEntryKind = "phase_end"
	LogToolStart  LogEntryKind = "tool_start"
	LogToolEnd    LogEntryKind = "tool_end"
	LogError      LogEntryKind = "error"
	LogSuccess    LogEntryKind = "success"
	LogInfo       LogEntryKind = "info"
	LogText       LogEntryKind = "text"
)

// TaskLogEntry is one structured entry in a task's execution log.
type TaskLogEntry struct {
	Kind      LogEntryKind `json:"kind"`
	Phase     TaskPhase    `json:"phase"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

// BuildLogEntry is one raw line of build/test output, tagged by stream.
type BuildLogEntry struct {
	Stream    string    `json:"stream"` // stdout|stderr|test|build
	Line      string    `json:"line"`
	Timestamp time.Time `json:"timestamp"`
}

// IssueSeverity ranks a QA-reported issue.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityMajor    IssueSeverity = "major"
	SeverityMinor    IssueSeverity = "minor"
)

// QAIssue is a single problem surfaced by a QA phase.
type QAIssue struct {
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description"`
}

// QAStatus is the outcome of a QA phase.
type QAStatus string

const (
	QAPassed  QAStatus = "passed"
	QAFailed  QAStatus = "failed"
	QAPending QAStatus = "pending"
)

// QAReport is the structured result of a QA phase.
type QAReport struct {
	Status QAStatus  `json:"status"`
	Issues []QAIssue `json:"issues,omitempty"`
}

// NextPhase maps a QA outcome to the phase the pipeline should move to.
func (r QAReport) NextPhase() TaskPhase {
	switch r.Status {
	case QAPassed:
		return PhaseMerging
	case QAFailed:
		return PhaseFixing
	default:
		return PhaseQA
	}
}

// Subtask is a finer-grained unit of work inside a task.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskComplete   SubtaskStatus = "complete"
	SubtaskFailed     SubtaskStatus = "failed"
	SubtaskSkipped    SubtaskStatus = "skipped"
)

type Subtask struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Status         SubtaskStatus `json:"status"`
	AgentID        string        `json:"agent_id,omitempty"`
	PrerequisiteIDs []string     `json:"prerequisite_ids,omitempty"`
}

// Task is the pipeline execution context anchored to a single Bead.
type Task struct {
	ID          string    `json:"id"`
	BeadID      string    `json:"bead_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Phase       TaskPhase `json:"phase"`
	Progress    int       `json:"progress_percent"`

	Subtasks []Subtask `json:"subtasks,omitempty"`

	WorktreePath string `json:"worktree_path,omitempty"`
	Branch       string `json:"branch,omitempty"`

	Category   Category   `json:"category"`
	Priority   Priority   `json:"priority"`
	Complexity Complexity `json:"complexity"`
	Impact     string     `json:"impact,omitempty"`

	AgentProfile   AgentProfile             `json:"agent_profile"`
	PhaseOverrides map[TaskPhase]PhaseOverride `json:"phase_overrides,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Logs      []TaskLogEntry  `json:"logs,omitempty"`
	BuildLogs []BuildLogEntry `json:"build_logs,omitempty"`

	QAReport *QAReport `json:"qa_report,omitempty"`

	Origin           string `json:"origin,omitempty"`
	ParentTaskID     string `json:"parent_task_id,omitempty"`
	StackPosition    int    `json:"stack_position,omitempty"`
	PullRequestNumber int   `json:"pr_number,omitempty"`
}

// SetPhase transitions the task, recomputing its progress percent, or
// returns false if the transition is not allowed by the state machine.
func (t *Task) SetPhase(next TaskPhase, now time.Time) bool {
	if !t.Phase.CanTransitionTo(next) {
		return false
	}
	t.Phase = next
	t.Progress = next.ProgressPercent()
	t.UpdatedAt = now
	if next == PhaseComplete || next == PhaseError || next == PhaseStopped {
		t.CompletedAt = &now
	}
	return true
}

// AppendLog records a structured log entry, stamping phase and time.
func (t *Task) AppendLog(kind LogEntryKind, message string, now time.Time) {
	t.Logs = append(t.Logs, TaskLogEntry{Kind: kind, Phase: t.Phase, Message: message, Timestamp: now})
}

// AppendBuildLog records a raw build-output line.
func (t *Task) AppendBuildLog(stream, line string, now time.Time) {
	t.BuildLogs = append(t.BuildLogs, BuildLogEntry{Stream: stream, Line: line, Timestamp: now})
}

// TruncateLogs enforces the retention ceiling over the structured and
// build logs combined, dropping the oldest entries (by timestamp,
// across both lists) first.
func (t *Task) TruncateLogs(maxEntries int) {
	if maxEntries <= 0 {
		return
	}
	over := len(t.Logs) + len(t.BuildLogs) - maxEntries
	for over > 0 {
		switch {
		case len(t.Logs) == 0:
			t.BuildLogs = t.BuildLogs[over:]
			return
		case len(t.BuildLogs) == 0:
			t.Logs = t.Logs[over:]
			return
		case t.BuildLogs[0].Timestamp.Before(t.Logs[0].Timestamp):
			t.BuildLogs = t.BuildLogs[1:]
		default:
			t.Logs = t.Logs[1:]
		}
		over--
	}
}

// AgentCLIFamily names the external agent executable family.
type AgentCLIFamily string

const (
	CLIClaude   AgentCLIFamily = "claude"
	CLICodex    AgentCLIFamily = "codex"
	CLIGemini   AgentCLIFamily = "gemini"
	CLIOpenCode AgentCLIFamily = "opencode"
)

// AgentStatus is the liveness state of an Agent record.
type AgentStatus string

const (
	AgentActive  AgentStatus = "active"
	AgentIdle    AgentStatus = "idle"
	AgentPending AgentStatus = "pending"
	AgentUnknown AgentStatus = "unknown"
	AgentStopped AgentStatus = "stopped"
)

// Agent is a tracked record of a spawned agent process.
type Agent struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Role      string         `json:"role"`
	CLI       AgentCLIFamily `json:"cli"`
	Model     string         `json:"model,omitempty"`
	Status    AgentStatus    `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	LastSeen  time.Time      `json:"last_seen"`
	PID       int            `json:"pid,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}
