package domain

import (
	"math"
	"time"
)

// MemoryKind classifies the nature of a memory entry's content.
type MemoryKind string

const (
	MemoryEpisodic  MemoryKind = "episodic"
	MemorySemantic  MemoryKind = "semantic"
	MemoryProcedural MemoryKind = "procedural"
)

// MemoryTier is the weighting tier a memory entry currently occupies.
type MemoryTier string

const (
	TierL0 MemoryTier = "l0" // core: always included
	TierL1 MemoryTier = "l1" // active
	TierL2 MemoryTier = "l2" // archive
)

var tierBase = map[MemoryTier]float64{
	TierL0: 0.9,
	TierL1: 0.5,
	TierL2: 0.2,
}

// MemoryWeight tracks the access history driving a memory entry's
// computed inclusion weight.
type MemoryWeight struct {
	Tier          MemoryTier `json:"tier"`
	AccessCount   int        `json:"access_count"`
	LastAccessed  time.Time  `json:"last_accessed"`
	CreatedAt     time.Time  `json:"created_at"`
	ComputedWeight float64   `json:"computed_weight"`
}

// NewCoreWeight constructs an L0 memory weight record.
func NewCoreWeight(now time.Time) MemoryWeight {
	w := MemoryWeight{Tier: TierL0, CreatedAt: now, LastAccessed: now}
	w.Recompute(now)
	return w
}

// NewActiveWeight constructs an L1 memory weight record.
func NewActiveWeight(now time.Time) MemoryWeight {
	w := MemoryWeight{Tier: TierL1, CreatedAt: now, LastAccessed: now}
	w.Recompute(now)
	return w
}

// NewArchiveWeight constructs an L2 memory weight record.
func NewArchiveWeight(now time.Time) MemoryWeight {
	w := MemoryWeight{Tier: TierL2, CreatedAt: now, LastAccessed: now}
	w.Recompute(now)
	return w
}

// RecordAccess bumps the access count and timestamp, then recomputes
// the weight and applies any tier auto-promotion/demotion.
func (w *MemoryWeight) RecordAccess(now time.Time) {
	w.AccessCount++
	w.LastAccessed = now
	w.Recompute(now)
}

// Recompute applies the weight formula:
//
//	tier_base + min(access_count*0.02, 0.1) + 0.1*exp(-age_hours/168)
//
// clamped to <= 1.0, and auto-promotes/demotes non-core tiers.
func (w *MemoryWeight) Recompute(now time.Time) {
	ageHours := now.Sub(w.LastAccessed).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	frequencyBonus := math.Min(float64(w.AccessCount)*0.02, 0.1)
	recencyBonus := 0.1 * math.Exp(-ageHours/168.0)
	computed := tierBase[w.Tier] + frequencyBonus + recencyBonus
	if computed > 1.0 {
		computed = 1.0
	}
	w.ComputedWeight = computed

	if w.Tier != TierL0 {
		switch {
		case computed >= 0.8:
			w.Tier = TierL1
		case computed < 0.3:
			w.Tier = TierL2
		}
	}
}

// ShouldInclude reports whether an entry at this weight's tier is
// eligible for injection given the fraction of token budget remaining.
func (w MemoryWeight) ShouldInclude(remainingBudgetFraction float64) bool {
	switch w.Tier {
	case TierL0:
		return true
	case TierL1:
		return remainingBudgetFraction > 0.3
	case TierL2:
		return remainingBudgetFraction > 0.7
	default:
		return false
	}
}

// MemoryEntry is a single item in the context steerer's memory store.
type MemoryEntry struct {
	ID       string     `json:"id"`
	Kind     MemoryKind `json:"kind"`
	Content  string     `json:"content"`
	Relevance float64   `json:"relevance"`
	Keywords []string   `json:"keywords,omitempty"`
	Weight   MemoryWeight `json:"weight"`
}

// RetentionConfig governs how long in-memory task and history state is
// kept before the retention sweep reclaims it.
type RetentionConfig struct {
	TaskTTL                time.Duration `mapstructure:"task_ttl"`
	MaxTaskLogEntries      int           `mapstructure:"max_task_log_entries"`
	CleanupSweepInterval   time.Duration `mapstructure:"cleanup_sweep_interval"`
	OrchestratorHistoryTTL time.Duration `mapstructure:"orchestrator_history_ttl"`
	DisconnectBufferTTL    time.Duration `mapstructure:"disconnect_buffer_ttl"`
}

// DefaultRetentionConfig returns the default retention knobs.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		TaskTTL:                7 * 24 * time.Hour,
		MaxTaskLogEntries:      10000,
		CleanupSweepInterval:   time.Hour,
		OrchestratorHistoryTTL: 24 * time.Hour,
		DisconnectBufferTTL:    5 * time.Minute,
	}
}
