package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ryanmaclean/tundra/internal/agentexec"
	"github.com/ryanmaclean/tundra/internal/bus"
	"github.com/ryanmaclean/tundra/internal/cloud/gcp"
	"github.com/ryanmaclean/tundra/internal/config"
	tcontext "github.com/ryanmaclean/tundra/internal/context"
	"github.com/ryanmaclean/tundra/internal/ghapp"
	"github.com/ryanmaclean/tundra/internal/gitread"
	"github.com/ryanmaclean/tundra/internal/llm"
	"github.com/ryanmaclean/tundra/internal/memory"
	"github.com/ryanmaclean/tundra/internal/observability"
	"github.com/ryanmaclean/tundra/internal/obslog"
	"github.com/ryanmaclean/tundra/internal/pipeline"
	"github.com/ryanmaclean/tundra/internal/providers"
	"github.com/ryanmaclean/tundra/internal/ptyexec"
	"github.com/ryanmaclean/tundra/internal/routing"
)

// deployment bundles every long-lived component a pipeline run shares,
// assembled once per process invocation from the resolved PipelineConfig.
type deployment struct {
	bus      *bus.Bus
	steerer  *tcontext.Steerer
	registry *providers.ResilientRegistry
	executor *agentexec.Executor
	runner   *pipeline.Runner
	store    *pipeline.TaskStore
	workflow pipeline.WorkflowDefinition
	tracer   observability.Tracer
	memory   *memory.Store
	logger   *obslog.Logger
	keys     *gcp.KeyResolver
}

// Close flushes and stops the deployment's tracer, persists any memory
// signals captured during the run, and releases the structured logger.
// Safe to call on a deployment whose tracer is the untraced NoOpTracer
// default.
func (d *deployment) Close(ctx context.Context) {
	if err := d.tracer.Stop(ctx); err != nil {
		log.Printf("tundra: tracer stop: %v", err)
	}
	if err := d.memory.Save(); err != nil {
		log.Printf("tundra: saving memory store: %v", err)
	}
	if err := d.logger.Close(); err != nil {
		log.Printf("tundra: closing logger: %v", err)
	}
	if err := d.keys.Close(); err != nil {
		log.Printf("tundra: closing key resolver: %v", err)
	}
}

// tracerFromEnv builds a LangfuseTracer when TUNDRA_LANGFUSE_PUBLIC_KEY
// and TUNDRA_LANGFUSE_SECRET_KEY are both set, otherwise a NoOpTracer.
// TUNDRA_LANGFUSE_BASE_URL overrides the default Langfuse Cloud endpoint.
func tracerFromEnv() observability.Tracer {
	pub := os.Getenv("TUNDRA_LANGFUSE_PUBLIC_KEY")
	secret := os.Getenv("TUNDRA_LANGFUSE_SECRET_KEY")
	if pub == "" || secret == "" {
		return &observability.NoOpTracer{}
	}
	return observability.NewLangfuseTracer(observability.LangfuseConfig{
		PublicKey: pub,
		SecretKey: secret,
		BaseURL:   os.Getenv("TUNDRA_LANGFUSE_BASE_URL"),
	}, log.New(os.Stderr, "tundra: langfuse: ", log.LstdFlags))
}

// gitRepoFromEnv builds a gitread.Repo rooted at projectRoot, attaching
// a ghapp-backed TokenProvider when TUNDRA_GITHUB_APP_ID,
// TUNDRA_GITHUB_APP_INSTALLATION_ID, and TUNDRA_GITHUB_APP_PRIVATE_KEY
// are all set. Public-repository reads work identically without them.
func gitRepoFromEnv(projectRoot string) *gitread.Repo {
	repo := gitread.New(projectRoot)

	appID := os.Getenv("TUNDRA_GITHUB_APP_ID")
	installationID, idErr := strconv.ParseInt(os.Getenv("TUNDRA_GITHUB_APP_INSTALLATION_ID"), 10, 64)
	privateKey := os.Getenv("TUNDRA_GITHUB_APP_PRIVATE_KEY")
	if appID == "" || idErr != nil || privateKey == "" {
		return repo
	}

	tm, err := ghapp.NewTokenManager(appID, installationID, []byte(privateKey))
	if err != nil {
		log.Printf("tundra: github app token manager: %v", err)
		return repo
	}
	return repo.WithTokenProvider(func(context.Context) (string, error) {
		return tm.Token()
	})
}

func newDeployment(projectRoot string) (*deployment, error) {
	pcfg, err := config.LoadPipeline()
	if err != nil {
		return nil, fmt.Errorf("loading pipeline config: %w", err)
	}

	b := bus.New()
	logger := obslog.New("pipeline")

	steerer := tcontext.NewSteerer(projectRoot, nil)
	if err := steerer.LoadProject(time.Now(), nil); err != nil {
		fmt.Fprintf(os.Stderr, "tundra: loading project context: %v\n", err)
	}

	keys := gcp.NewKeyResolver(func(msg string) { log.Printf("tundra: %s", msg) })
	resolveKey := keys.Resolve
	registry := providers.FromConfig(pcfg.Providers.ToBootstrapConfig(resolveKey))

	executor := agentexec.NewExecutor(ptyexec.NewPtySpawner(), b)
	usage := &llm.UsageTracker{}
	tracer := tracerFromEnv()

	memStore := memory.NewStore(projectRoot, memory.Config{Enabled: true})
	if err := memStore.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "tundra: loading memory store: %v\n", err)
	}

	store := pipeline.NewTaskStore(pcfg.Retention)

	runner := &pipeline.Runner{
		Steerer:     steerer,
		Registry:    registry,
		Executor:    executor,
		Bus:         b,
		Usage:       usage,
		Tracer:      tracer,
		MemoryStore: memStore,
		GitRepo:     gitRepoFromEnv(projectRoot),
		Router:       routing.NewRouter(&pcfg.Routing),
		Log:          logger,
		RecordMetric: store.RecordTokens,
		DriverFor: func(p providers.ApiProfile) llm.Driver {
			key, _ := resolveKey(p.ApiKeyEnv)
			switch p.Provider {
			case providers.KindAnthropic:
				return llm.NewAnthropicDriver(key, p.BaseURL)
			case providers.KindOpenAI, providers.KindOpenRouter:
				return llm.NewOpenAIDriver(key, p.BaseURL)
			case providers.KindLocal:
				return llm.NewLocalDriver(key, p.BaseURL)
			default:
				return llm.NewMockDriver()
			}
		},
		AgentCfg: func(step pipeline.PhaseStep, profile providers.ApiProfile) agentexec.AgentConfig {
			return agentexec.AgentConfig{
				Binary:         pcfg.Agent.Binary,
				Args:           pcfg.Agent.Args,
				Timeout:        step.Timeout,
				Model:          profile.DefaultModel,
				Role:           step.AgentRole,
				AnnouncedTools: pcfg.Agent.AnnouncedTools,
			}
		},
	}

	return &deployment{
		bus:      b,
		steerer:  steerer,
		registry: registry,
		executor: executor,
		runner:   runner,
		store:    store,
		workflow: pcfg.Workflow.ToDefinition(),
		tracer:   tracer,
		memory:   memStore,
		logger:   logger,
		keys:     keys,
	}, nil
}
