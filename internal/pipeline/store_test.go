package pipeline

import (
	"testing"
	"time"

	"github.com/ryanmaclean/tundra/internal/domain"
)

func TestSweep_EvictsExpiredTerminalTasks(t *testing.T) {
	retention := domain.RetentionConfig{TaskTTL: time.Hour, MaxTaskLogEntries: 10}
	store := NewTaskStore(retention)

	now := time.Now()
	old := now.Add(-2 * time.Hour)
	expired := &domain.Task{ID: "expired", Phase: domain.PhaseComplete, CompletedAt: &old}
	fresh := &domain.Task{ID: "fresh", Phase: domain.PhaseComplete, CompletedAt: &now}
	running := &domain.Task{ID: "running", Phase: domain.PhaseCoding}

	store.Put(expired)
	store.Put(fresh)
	store.Put(running)

	evicted := store.Sweep(now)
	if evicted != 1 {
		t.Fatalf("Sweep() evicted = %d, want 1", evicted)
	}
	if _, ok := store.Get("expired"); ok {
		t.Error("expired task still present after Sweep()")
	}
	if _, ok := store.Get("fresh"); !ok {
		t.Error("fresh completed task evicted too early")
	}
	if _, ok := store.Get("running"); !ok {
		t.Error("non-terminal task should never be evicted")
	}
}

func TestSweep_TruncatesLogs(t *testing.T) {
	retention := domain.RetentionConfig{TaskTTL: time.Hour, MaxTaskLogEntries: 2}
	store := NewTaskStore(retention)

	task := &domain.Task{ID: "t1", Phase: domain.PhaseCoding}
	now := time.Now()
	for i := 0; i < 5; i++ {
		task.AppendLog(domain.LogText, "line", now)
	}
	store.Put(task)

	store.Sweep(now)

	if got, ok := store.Get("t1"); !ok || len(got.Logs) != 2 {
		t.Fatalf("logs after Sweep() = %d entries, want 2", len(got.Logs))
	}
}

func TestTaskStore_PutGetDelete(t *testing.T) {
	store := NewTaskStore(domain.DefaultRetentionConfig())
	task := &domain.Task{ID: "t1"}
	store.Put(task)
	if store.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", store.Len())
	}
	if _, ok := store.Get("t1"); !ok {
		t.Fatal("Get() missing just-put task")
	}
	store.Delete("t1")
	if store.Len() != 0 {
		t.Fatalf("Len() after Delete() = %d, want 0", store.Len())
	}
}

func TestSweep_TruncatesCombinedLogs(t *testing.T) {
	retention := domain.RetentionConfig{TaskTTL: time.Hour, MaxTaskLogEntries: 4}
	store := NewTaskStore(retention)

	task := &domain.Task{ID: "t1", Phase: domain.PhaseCoding}
	now := time.Now()
	for i := 0; i < 3; i++ {
		task.AppendLog(domain.LogText, "structured", now.Add(time.Duration(i)*time.Second))
	}
	for i := 3; i < 6; i++ {
		task.AppendBuildLog("stdout", "build", now.Add(time.Duration(i)*time.Second))
	}
	store.Put(task)

	store.Sweep(now)

	got, ok := store.Get("t1")
	if !ok {
		t.Fatal("task evicted unexpectedly")
	}
	if total := len(got.Logs) + len(got.BuildLogs); total != 4 {
		t.Fatalf("combined logs after Sweep() = %d entries, want 4", total)
	}
	if len(got.BuildLogs) != 3 {
		t.Errorf("build logs = %d, want all 3 newer entries kept", len(got.BuildLogs))
	}
}

func TestTokenTotalsAccumulateAndEvictWithTask(t *testing.T) {
	retention := domain.RetentionConfig{TaskTTL: time.Hour, MaxTaskLogEntries: 100}
	store := NewTaskStore(retention)

	done := time.Now().Add(-2 * time.Hour)
	task := &domain.Task{ID: "t1", Phase: domain.PhaseComplete, CompletedAt: &done}
	store.Put(task)
	store.RecordTokens(domain.TokenMetric{TaskID: "t1", ProfileID: "p1", InputTokens: 100, OutputTokens: 40, Timestamp: time.Now()})
	store.RecordTokens(domain.TokenMetric{TaskID: "t1", ProfileID: "p1", InputTokens: 50, OutputTokens: 10, Timestamp: time.Now()})

	in, out := store.TokenTotals("t1")
	if in != 150 || out != 50 {
		t.Fatalf("TokenTotals() = %d/%d, want 150/50", in, out)
	}

	store.Sweep(time.Now())
	if in, out := store.TokenTotals("t1"); in != 0 || out != 0 {
		t.Errorf("token samples survived task eviction: %d/%d", in, out)
	}
}

func TestConvoyProgressAveragesMemberTasks(t *testing.T) {
	store := NewTaskStore(domain.DefaultRetentionConfig())

	convoy := &domain.Convoy{ID: "c1", Name: "batch", Status: "active", BeadIDs: []string{"b1", "b2"}}
	store.PutConvoy(convoy)
	store.PutBead(&domain.Bead{ID: "b1", Status: domain.BeadSlung, ConvoyID: "c1"})
	store.PutBead(&domain.Bead{ID: "b2", Status: domain.BeadSlung, ConvoyID: "c1"})
	store.Put(&domain.Task{ID: "t1", BeadID: "b1", Progress: 100})
	store.Put(&domain.Task{ID: "t2", BeadID: "b2", Progress: 50})

	percent, tasks := store.ConvoyProgress("c1")
	if percent != 75 || tasks != 2 {
		t.Fatalf("ConvoyProgress() = %d%%, %d tasks; want 75%%, 2", percent, tasks)
	}

	if _, ok := store.GetBead("b1"); !ok {
		t.Error("GetBead() missing stored bead")
	}
	if _, ok := store.GetConvoy("c1"); !ok {
		t.Error("GetConvoy() missing stored convoy")
	}
}

func TestConvoyProgressBeadWithoutTaskCountsZero(t *testing.T) {
	store := NewTaskStore(domain.DefaultRetentionConfig())
	store.PutConvoy(&domain.Convoy{ID: "c1", BeadIDs: []string{"b1", "b2"}})
	store.Put(&domain.Task{ID: "t1", BeadID: "b1", Progress: 100})

	percent, tasks := store.ConvoyProgress("c1")
	if percent != 50 || tasks != 1 {
		t.Fatalf("ConvoyProgress() = %d%%, %d tasks; want 50%%, 1", percent, tasks)
	}
	if percent, tasks := store.ConvoyProgress("missing"); percent != 0 || tasks != 0 {
		t.Errorf("ConvoyProgress(missing) = %d%%, %d; want zeros", percent, tasks)
	}
}
