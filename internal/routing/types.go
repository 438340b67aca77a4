package routing

import "strings"

// ModelConfig pins the provider profile, model, and thinking level an
// LLM call should use for one pipeline phase. Empty fields defer to
// the next layer down (workflow step tier, then provider default).
type ModelConfig struct {
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty" mapstructure:"provider"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
	Thinking string `json:"thinking,omitempty" yaml:"thinking,omitempty" mapstructure:"thinking"`
}

// IsZero reports whether the config carries no override at all.
func (m ModelConfig) IsZero() bool {
	return m.Provider == "" && m.Model == "" && m.Thinking == ""
}

// PhaseRouting maps workflow phase names (discovery, coding, qa, ...)
// to model configurations. Default applies to any phase without an
// override entry.
type PhaseRouting struct {
	Default   ModelConfig            `json:"default" yaml:"default" mapstructure:"default"`
	Overrides map[string]ModelConfig `json:"overrides,omitempty" yaml:"overrides,omitempty" mapstructure:"overrides"`
}

// ParseModelSpec parses a "provider:model" colon-separated spec into a
// ModelConfig. Without a colon the whole string is the model and the
// provider is left to the registry's priority order.
func ParseModelSpec(spec string) ModelConfig {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) == 2 {
		return ModelConfig{Provider: parts[0], Model: parts[1]}
	}
	return ModelConfig{Model: spec}
}
