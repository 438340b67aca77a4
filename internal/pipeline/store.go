package pipeline

import (
	"sync"
	"time"

	"github.com/ryanmaclean/tundra/internal/domain"
)

// TaskStore holds every Task currently known to the pipeline, and
// applies the retention policy: a periodic sweep evicts
// terminal tasks older than the configured TTL and truncates each
// retained task's log list to the configured ceiling. Tasks are owned
// by exactly one pipeline while running; the store itself does not
// enforce that; callers must not share a Task across concurrent
// pipelines; a task is mutated only by the pipeline that owns it.
type TaskStore struct {
	mu        sync.Mutex
	tasks     map[string]*domain.Task
	beads     map[string]*domain.Bead
	convoys   map[string]*domain.Convoy
	tokens    map[string][]domain.TokenMetric // keyed by task id
	retention domain.RetentionConfig
}

// NewTaskStore constructs an empty store under the given retention config.
func NewTaskStore(retention domain.RetentionConfig) *TaskStore {
	return &TaskStore{
		tasks:     make(map[string]*domain.Task),
		beads:     make(map[string]*domain.Bead),
		convoys:   make(map[string]*domain.Convoy),
		tokens:    make(map[string][]domain.TokenMetric),
		retention: retention,
	}
}

// Put inserts or replaces a task by id.
func (s *TaskStore) Put(t *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

// Get returns a task by id.
func (s *TaskStore) Get(id string) (*domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Delete removes a task and its token samples by id.
func (s *TaskStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	delete(s.tokens, id)
}

// PutBead inserts or replaces a bead by id.
func (s *TaskStore) PutBead(b *domain.Bead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beads[b.ID] = b
}

// GetBead returns a bead by id.
func (s *TaskStore) GetBead(id string) (*domain.Bead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.beads[id]
	return b, ok
}

// PutConvoy inserts or replaces a convoy by id.
func (s *TaskStore) PutConvoy(c *domain.Convoy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convoys[c.ID] = c
}

// GetConvoy returns a convoy by id.
func (s *TaskStore) GetConvoy(id string) (*domain.Convoy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convoys[id]
	return c, ok
}

// ConvoyProgress reports the mean progress percent across the tasks
// anchored to a convoy's beads, and how many such tasks exist. Beads
// without a task yet count as zero progress.
func (s *TaskStore) ConvoyProgress(convoyID string) (percent, tasks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	convoy, ok := s.convoys[convoyID]
	if !ok || len(convoy.BeadIDs) == 0 {
		return 0, 0
	}
	inConvoy := make(map[string]bool, len(convoy.BeadIDs))
	for _, id := range convoy.BeadIDs {
		inConvoy[id] = true
	}
	total := 0
	for _, t := range s.tasks {
		if inConvoy[t.BeadID] {
			total += t.Progress
			tasks++
		}
	}
	return total / len(convoy.BeadIDs), tasks
}

// RecordTokens appends one per-request token sample under its task id.
func (s *TaskStore) RecordTokens(m domain.TokenMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[m.TaskID] = append(s.tokens[m.TaskID], m)
}

// TokenTotals sums the recorded samples for one task.
func (s *TaskStore) TokenTotals(taskID string) (input, output int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.tokens[taskID] {
		input += m.InputTokens
		output += m.OutputTokens
	}
	return input, output
}

// Len returns the number of retained tasks.
func (s *TaskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// All returns every retained task, for status dashboards and listings.
func (s *TaskStore) All() []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

func isTerminal(phase domain.TaskPhase) bool {
	return phase == domain.PhaseComplete || phase == domain.PhaseError || phase == domain.PhaseStopped
}

// Sweep evicts terminal tasks older than the task TTL (measured from
// their terminal timestamp) and truncates every retained task's
// combined structured+build logs to MaxTaskLogEntries. Returns the
// number of tasks evicted.
func (s *TaskStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, t := range s.tasks {
		if isTerminal(t.Phase) && t.CompletedAt != nil && now.Sub(*t.CompletedAt) > s.retention.TaskTTL {
			delete(s.tasks, id)
			delete(s.tokens, id)
			evicted++
			continue
		}
		t.TruncateLogs(s.retention.MaxTaskLogEntries)
	}
	return evicted
}

// StartSweeper launches a goroutine that calls Sweep every
// CleanupSweepInterval until stop is closed.
func (s *TaskStore) StartSweeper(stop <-chan struct{}) {
	interval := s.retention.CleanupSweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(time.Now())
			case <-stop:
				return
			}
		}
	}()
}
