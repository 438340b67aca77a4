// Package providers implements the resilient LLM provider registry:
// ranked ApiProfiles, per-profile circuit breaker and rate limiter
// state, and priority-ordered failover.
package providers

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ryanmaclean/tundra/internal/resilience"
)

// Kind is the provider family a profile speaks to.
type Kind string

const (
	KindAnthropic  Kind = "anthropic"
	KindOpenRouter Kind = "openrouter"
	KindOpenAI     Kind = "openai"
	KindLocal      Kind = "local"
	KindCustom     Kind = "custom"
)

// DefaultBaseURL returns the provider family's default endpoint.
func (k Kind) DefaultBaseURL() string {
	switch k {
	case KindAnthropic:
		return "https://api.anthropic.com"
	case KindOpenRouter:
		return "https://openrouter.ai/api"
	case KindOpenAI:
		return "https://api.openai.com"
	default:
		return ""
	}
}

// DefaultAPIKeyEnv returns the conventional env var name for a family.
func (k Kind) DefaultAPIKeyEnv() string {
	switch k {
	case KindAnthropic:
		return "ANTHROPIC_API_KEY"
	case KindOpenRouter:
		return "OPENROUTER_API_KEY"
	case KindOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

// DefaultModelFor returns the conventional default model for a family.
func DefaultModelFor(k Kind) string {
	switch k {
	case KindAnthropic:
		return "claude-sonnet-4-20250514"
	case KindOpenRouter:
		return "anthropic/claude-sonnet-4-20250514"
	case KindOpenAI:
		return "gpt-4o"
	case KindLocal:
		return "qwen2.5-coder:14b"
	default:
		return "default"
	}
}

// RateLimits optionally overrides a profile's RPM/TPM quotas.
type RateLimits struct {
	RPM int
	TPM int
}

// ApiProfile describes one reachable LLM endpoint and how to reach it.
type ApiProfile struct {
	ID             string
	Name           string
	Provider       Kind
	BaseURL        string
	ApiKeyEnv      string
	DefaultModel   string
	RateLimits     *RateLimits
	Priority       int
	Enabled        bool
	CustomHeaders  map[string]string
	CreatedAt      time.Time
}

// NewProfile constructs a profile, deriving base URL/key env/model
// defaults for well-known provider kinds when left blank.
func NewProfile(name string, kind Kind, priority int) ApiProfile {
	return ApiProfile{
		ID:           uuid.NewString(),
		Name:         name,
		Provider:     kind,
		BaseURL:      kind.DefaultBaseURL(),
		ApiKeyEnv:    kind.DefaultAPIKeyEnv(),
		DefaultModel: DefaultModelFor(kind),
		Priority:     priority,
		Enabled:      true,
		CreatedAt:    time.Now(),
	}
}

// HasAPIKey reports whether the profile's key is available; Local
// profiles always report true since they typically need no auth.
func (p ApiProfile) HasAPIKey(resolve func(envVar string) (string, bool)) bool {
	if p.Provider == KindLocal {
		return true
	}
	if p.ApiKeyEnv == "" {
		return false
	}
	if resolve != nil {
		_, ok := resolve(p.ApiKeyEnv)
		return ok
	}
	_, ok := os.LookupEnv(p.ApiKeyEnv)
	return ok
}

// ProfileUsage accumulates per-profile call outcomes for analytics and
// the best-available selection predicate.
type ProfileUsage struct {
	mu              sync.Mutex
	TotalRequests   int
	TotalTokensIn   int
	TotalTokensOut  int
	TotalErrors     int
	TotalRateLimits int
	EstimatedSpend  float64
	LastUsed        time.Time
	LastError       string
}

func (u *ProfileUsage) RecordSuccess(tokensIn, tokensOut int, costUSD float64, now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.TotalRequests++
	u.TotalTokensIn += tokensIn
	u.TotalTokensOut += tokensOut
	u.EstimatedSpend += costUSD
	u.LastUsed = now
}

func (u *ProfileUsage) RecordError(message string, now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.TotalRequests++
	u.TotalErrors++
	u.LastError = message
	u.LastUsed = now
}

func (u *ProfileUsage) RecordRateLimit(now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.TotalRateLimits++
	u.LastUsed = now
}

// ErrorRate returns errors/requests, or 0 when there have been none.
func (u *ProfileUsage) ErrorRate() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.TotalRequests == 0 {
		return 0
	}
	return float64(u.TotalErrors) / float64(u.TotalRequests)
}

func (u *ProfileUsage) requests() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.TotalRequests
}

// ProviderState bundles a profile with its resilience machinery.
type ProviderState struct {
	Profile    ApiProfile
	Breaker    *resilience.CircuitBreaker
	RPMLimiter *resilience.RateLimiter
	TPMLimiter *resilience.RateLimiter
	Usage      *ProfileUsage
}

// NewProviderState constructs resilience state with the registry's
// default breaker thresholds (5/2/60s/30s) and any profile-specified
// rate limits.
func NewProviderState(p ApiProfile) *ProviderState {
	s := &ProviderState{
		Profile: p,
		Breaker: resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig()),
		Usage:   &ProfileUsage{},
	}
	if p.RateLimits != nil {
		if p.RateLimits.RPM > 0 {
			s.RPMLimiter = resilience.NewRateLimiter(p.RateLimits.RPM, time.Minute)
		}
		if p.RateLimits.TPM > 0 {
			s.TPMLimiter = resilience.NewRateLimiter(p.RateLimits.TPM, time.Minute)
		}
	}
	return s
}

// CheckRateLimit consults the RPM limiter, if any.
func (s *ProviderState) CheckRateLimit() bool {
	if s.RPMLimiter == nil {
		return true
	}
	return s.RPMLimiter.Allow(s.Profile.ID)
}

// CheckTokenRateLimit consults the TPM limiter, if any, for the given cost.
func (s *ProviderState) CheckTokenRateLimit(cost int) bool {
	if s.TPMLimiter == nil {
		return true
	}
	return s.TPMLimiter.AllowN(s.Profile.ID, cost)
}

// IsCircuitOpen reports the breaker's current state.
func (s *ProviderState) IsCircuitOpen() bool {
	return s.Breaker.State() == resilience.Open
}

// sortByPriority returns profiles ascending by priority (lower wins).
func sortByPriority(profiles []ApiProfile) []ApiProfile {
	out := make([]ApiProfile, len(profiles))
	copy(out, profiles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
