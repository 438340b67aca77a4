// Package routing resolves which model (and thinking level) an LLM
// call should use for a given pipeline phase, layering task-level
// phase overrides on top of configured routing on top of the provider
// profile's default model.
package routing

// Router resolves the model configuration for a phase. Nil-safe: a
// Router built from nil routing resolves every phase to the zero
// ModelConfig, which callers treat as "use the profile default".
type Router struct {
	routing *PhaseRouting
}

// NewRouter creates a router over the given routing table.
func NewRouter(routing *PhaseRouting) *Router {
	return &Router{routing: routing}
}

// ModelForPhase returns the configured ModelConfig for phase: the
// override entry when one exists, the default otherwise.
func (r *Router) ModelForPhase(phase string) ModelConfig {
	if r.routing == nil {
		return ModelConfig{}
	}
	if cfg, ok := r.routing.Overrides[phase]; ok {
		return cfg
	}
	return r.routing.Default
}

// Resolve layers a task-level override on top of the configured
// routing for phase. Non-empty fields of taskOverride win field by
// field, so a task may pin just the thinking level while the model
// still comes from configuration.
func (r *Router) Resolve(phase string, taskOverride ModelConfig) ModelConfig {
	cfg := r.ModelForPhase(phase)
	if taskOverride.Provider != "" {
		cfg.Provider = taskOverride.Provider
	}
	if taskOverride.Model != "" {
		cfg.Model = taskOverride.Model
	}
	if taskOverride.Thinking != "" {
		cfg.Thinking = taskOverride.Thinking
	}
	return cfg
}

// IsConfigured reports whether the router carries any usable routing
// (a non-empty default or at least one override).
func (r *Router) IsConfigured() bool {
	if r.routing == nil {
		return false
	}
	return !r.routing.Default.IsZero() || len(r.routing.Overrides) > 0
}

// Providers returns the distinct provider names the routing table
// pins, so callers can verify each is a known registry profile before
// the first call rather than at failover time.
func (r *Router) Providers() []string {
	if r.routing == nil {
		return nil
	}
	seen := make(map[string]bool)
	if r.routing.Default.Provider != "" {
		seen[r.routing.Default.Provider] = true
	}
	for _, cfg := range r.routing.Overrides {
		if cfg.Provider != "" {
			seen[cfg.Provider] = true
		}
	}
	providers := make([]string, 0, len(seen))
	for name := range seen {
		providers = append(providers, name)
	}
	return providers
}
