// Package config decodes the pipeline's runtime configuration:
// provider registry bootstrap, retention knobs, phase routing, agent
// CLI defaults, and an optional workflow definition, all decoded from viper's
// layered sources (flags > env > YAML file > defaults).
package config

import (
	"fmt"
	"time"

	"github.com/ryanmaclean/tundra/internal/domain"
	"github.com/ryanmaclean/tundra/internal/pipeline"
	"github.com/ryanmaclean/tundra/internal/providers"
	"github.com/ryanmaclean/tundra/internal/routing"
	"github.com/spf13/viper"
)

// CustomProviderConfig mirrors providers.CustomProfileConfig for YAML/env
// unmarshalling; internal/providers stays free of a viper dependency.
type CustomProviderConfig struct {
	Name      string `mapstructure:"name"`
	BaseURL   string `mapstructure:"base_url"`
	ApiKeyEnv string `mapstructure:"api_key_env"`
}

// ProvidersConfig is the provider-registry bootstrap input: local
// endpoint settings plus any custom profiles.
type ProvidersConfig struct {
	LocalBaseURL    string                 `mapstructure:"local_base_url"`
	LocalModel      string                 `mapstructure:"local_model"`
	LocalAPIKeyEnv  string                 `mapstructure:"local_api_key_env"`
	AnthropicKeyEnv string                 `mapstructure:"anthropic_key_env"`
	OpenAIKeyEnv    string                 `mapstructure:"openai_key_env"`
	Custom          []CustomProviderConfig `mapstructure:"custom"`
}

// AgentCLIConfig names the agent-CLI binary the executor spawns and
// the flags and tool vocabulary it is invoked with.
type AgentCLIConfig struct {
	Binary         string   `mapstructure:"binary"`
	Args           []string `mapstructure:"args"`
	AnnouncedTools []string `mapstructure:"announced_tools"`
}

// WorkflowPhaseConfig is one workflow step as it appears in YAML. The
// phase name must be one of the task state machine's phase names;
// Timeout decodes from Go duration strings ("10m").
type WorkflowPhaseConfig struct {
	Name         string        `mapstructure:"name"`
	Required     bool          `mapstructure:"required"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Prompt       string        `mapstructure:"prompt"`
	DependsOn    []string      `mapstructure:"depends_on"`
	ModelTier    string        `mapstructure:"model_tier"`
	AgentRole    string        `mapstructure:"agent_role"`
	UsesAgentCLI bool          `mapstructure:"uses_agent_cli"`
}

// WorkflowConfig is an optional workflow override; when Phases is
// empty the built-in seven-phase workflow applies.
type WorkflowConfig struct {
	Name        string                `mapstructure:"name"`
	Description string                `mapstructure:"description"`
	Phases      []WorkflowPhaseConfig `mapstructure:"phases"`
}

// PipelineConfig groups every configuration input the task pipeline
// reads: provider bootstrap, retention, phase routing, agent CLI
// defaults, and the optional workflow definition.
type PipelineConfig struct {
	Providers ProvidersConfig        `mapstructure:"providers"`
	Retention domain.RetentionConfig `mapstructure:"retention"`
	Routing   routing.PhaseRouting   `mapstructure:"routing"`
	Agent     AgentCLIConfig         `mapstructure:"agent"`
	Workflow  WorkflowConfig         `mapstructure:"workflow"`
}

// ToBootstrapConfig converts the YAML/env-decoded providers section into
// providers.BootstrapConfig, keeping internal/providers free of a viper
// dependency. resolver overrides env-var lookup (nil uses os.LookupEnv
// via the registry's own default).
func (pc ProvidersConfig) ToBootstrapConfig(resolver func(string) (string, bool)) providers.BootstrapConfig {
	custom := make([]providers.CustomProfileConfig, len(pc.Custom))
	for i, c := range pc.Custom {
		custom[i] = providers.CustomProfileConfig{Name: c.Name, BaseURL: c.BaseURL, ApiKeyEnv: c.ApiKeyEnv}
	}
	return providers.BootstrapConfig{
		LocalBaseURL:    pc.LocalBaseURL,
		LocalModel:      pc.LocalModel,
		LocalAPIKeyEnv:  pc.LocalAPIKeyEnv,
		AnthropicKeyEnv: pc.AnthropicKeyEnv,
		OpenAIKeyEnv:    pc.OpenAIKeyEnv,
		CustomProfiles:  custom,
		KeyResolver:     resolver,
	}
}

// validPhases is the set of phase names a workflow step may target.
var validPhases = map[string]bool{
	string(domain.PhaseDiscovery):        true,
	string(domain.PhaseContextGathering): true,
	string(domain.PhaseSpecCreation):     true,
	string(domain.PhasePlanning):         true,
	string(domain.PhaseCoding):           true,
	string(domain.PhaseQA):               true,
	string(domain.PhaseFixing):           true,
	string(domain.PhaseMerging):          true,
}

// ToDefinition converts the decoded workflow section into a
// pipeline.WorkflowDefinition, or the built-in default when no phases
// are configured.
func (wc WorkflowConfig) ToDefinition() pipeline.WorkflowDefinition {
	if len(wc.Phases) == 0 {
		return pipeline.DefaultWorkflow()
	}
	steps := make([]pipeline.PhaseStep, len(wc.Phases))
	for i, p := range wc.Phases {
		timeout := p.Timeout
		if timeout == 0 {
			timeout = 10 * time.Minute
		}
		steps[i] = pipeline.PhaseStep{
			Name:           p.Name,
			Phase:          domain.TaskPhase(p.Name),
			Required:       p.Required,
			Timeout:        timeout,
			PromptTemplate: p.Prompt,
			DependsOn:      p.DependsOn,
			ModelTier:      p.ModelTier,
			AgentRole:      p.AgentRole,
			UsesAgentCLI:   p.UsesAgentCLI,
		}
	}
	return pipeline.WorkflowDefinition{Name: wc.Name, Description: wc.Description, Steps: steps}
}

// LoadPipeline loads the pipeline configuration from viper (flags >
// env > YAML file > defaults, already bound by the caller), applying
// the default retention knobs and agent CLI where the file is silent.
func LoadPipeline() (*PipelineConfig, error) {
	cfg := &PipelineConfig{Retention: domain.DefaultRetentionConfig()}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline config: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields with their defaults.
func applyDefaults(cfg *PipelineConfig) {
	if cfg.Agent.Binary == "" {
		cfg.Agent.Binary = "claude"
		if len(cfg.Agent.Args) == 0 {
			cfg.Agent.Args = []string{"--print"}
		}
	}
	if len(cfg.Agent.AnnouncedTools) == 0 {
		cfg.Agent.AnnouncedTools = []string{
			"bash", "read", "write", "edit", "grep", "glob", "websearch", "webfetch",
		}
	}
}

// validThinking is the set of accepted thinking-level override values.
var validThinking = map[string]bool{"": true, "low": true, "medium": true, "high": true}

// Validate checks the decoded configuration for contradictions a
// later pipeline run would otherwise hit mid-task.
func (c *PipelineConfig) Validate() error {
	for i, custom := range c.Providers.Custom {
		if custom.Name == "" {
			return fmt.Errorf("custom provider %d: name is required", i)
		}
		if custom.BaseURL == "" {
			return fmt.Errorf("custom provider %q: base_url is required", custom.Name)
		}
	}

	if !validThinking[c.Routing.Default.Thinking] {
		return fmt.Errorf("routing default: invalid thinking level %q", c.Routing.Default.Thinking)
	}
	for phase, mc := range c.Routing.Overrides {
		if !validThinking[mc.Thinking] {
			return fmt.Errorf("routing override %q: invalid thinking level %q", phase, mc.Thinking)
		}
	}

	names := make(map[string]bool, len(c.Workflow.Phases))
	for _, p := range c.Workflow.Phases {
		if p.Name == "" {
			return fmt.Errorf("workflow phase: name is required")
		}
		if !validPhases[p.Name] {
			return fmt.Errorf("workflow phase %q: not a pipeline phase", p.Name)
		}
		if names[p.Name] {
			return fmt.Errorf("workflow phase %q: duplicate entry", p.Name)
		}
		names[p.Name] = true
	}
	for _, p := range c.Workflow.Phases {
		for _, dep := range p.DependsOn {
			if !names[dep] {
				return fmt.Errorf("workflow phase %q: unknown dependency %q", p.Name, dep)
			}
		}
	}

	if c.Retention.TaskTTL < 0 || c.Retention.CleanupSweepInterval < 0 {
		return fmt.Errorf("retention: TTLs and intervals must be non-negative")
	}
	return nil
}
