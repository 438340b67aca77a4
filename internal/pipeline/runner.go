package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ryanmaclean/tundra/internal/agentexec"
	"github.com/ryanmaclean/tundra/internal/bus"
	ctxsteer "github.com/ryanmaclean/tundra/internal/context"
	"github.com/ryanmaclean/tundra/internal/domain"
	"github.com/ryanmaclean/tundra/internal/gitread"
	"github.com/ryanmaclean/tundra/internal/llm"
	"github.com/ryanmaclean/tundra/internal/memory"
	"github.com/ryanmaclean/tundra/internal/observability"
	"github.com/ryanmaclean/tundra/internal/obslog"
	"github.com/ryanmaclean/tundra/internal/providers"
	"github.com/ryanmaclean/tundra/internal/routing"
)

// defaultContextBudget is the token budget asked of the context
// steerer for one phase's assembly when a step carries no override.
const defaultContextBudget = 8000

// maxQAFixIterations bounds the QA<->Fixing retry loop so a
// perpetually-Pending report cannot stall the pipeline forever.
const maxQAFixIterations = 3

// ErrPhaseTransitionDenied is returned when a required phase cannot
// move to its workflow step's phase under the state machine.
var ErrPhaseTransitionDenied = errors.New("pipeline: phase transition denied")

// AgentConfigFunc resolves the AgentConfig (binary/args/env/timeout)
// to spawn for a given phase step and the provider profile the LLM
// call landed on.
type AgentConfigFunc func(step PhaseStep, profile providers.ApiProfile) agentexec.AgentConfig

// RoleConfigFunc resolves an optional RoleConfig for a step's agent role.
type RoleConfigFunc func(agentRole string) *agentexec.RoleConfig

// QAJudge turns one QA-phase agent execution result into a structured
// QAReport. The default judge treats a successful execution with no
// observed tool errors as Passed, any tool errors as Failed, and a
// timed-out/empty execution as Pending (retry).
type QAJudge func(result agentexec.Result) domain.QAReport

// DefaultQAJudge is the judge used when Runner.Judge is left nil.
func DefaultQAJudge(result agentexec.Result) domain.QAReport {
	if !result.Success {
		return domain.QAReport{Status: domain.QAPending}
	}
	if len(result.ToolErrors) > 0 {
		issues := make([]domain.QAIssue, 0, len(result.ToolErrors))
		for _, te := range result.ToolErrors {
			issues = append(issues, domain.QAIssue{Severity: domain.SeverityMajor, Description: te.ErrorMessage})
		}
		return domain.QAReport{Status: domain.QAFailed, Issues: issues}
	}
	return domain.QAReport{Status: domain.QAPassed}
}

// Runner drives one task through a WorkflowDefinition, coordinating
// the context steerer, resilient provider registry, and agent
// executor.
type Runner struct {
	Steerer   *ctxsteer.Steerer
	Registry  *providers.ResilientRegistry
	Executor  *agentexec.Executor
	Bus       *bus.Bus
	Usage     *llm.UsageTracker
	DriverFor func(profile providers.ApiProfile) llm.Driver
	AgentCfg  AgentConfigFunc
	RoleFor   RoleConfigFunc
	Judge     QAJudge
	// Tracer records the task's phase/generation trace. A nil Tracer
	// runs the pipeline untraced.
	Tracer observability.Tracer
	// MemoryStore persists TUNDRA_MEMORY signals parsed from agent-CLI
	// output across phases. A nil MemoryStore disables signal capture.
	MemoryStore *memory.Store
	// GitRepo supplies the task's branch/working-tree status as L1
	// project context for every phase. A nil GitRepo skips this block
	// (e.g. when the project root isn't a Git working directory).
	GitRepo *gitread.Repo
	// Router resolves the per-phase model/thinking configuration,
	// layered under any task-level phase override. A nil Router leaves
	// model selection to each provider profile's default.
	Router *routing.Router
	// Log receives the runner's structured progress/failure lines. A
	// nil Log runs silent; task-visible state goes to the task's own
	// structured log either way.
	Log *obslog.Logger
	// RecordMetric receives one TokenMetric per successful LLM call,
	// attributing token counts to the task and winning profile. Nil
	// disables per-task samples; the coarser per-profile ProfileUsage
	// counters are recorded regardless.
	RecordMetric func(domain.TokenMetric)

	iteration int
}

// seedGitContext loads GitRepo.RepoSummary and feeds it into the
// context steerer as one Active-tier memory, so every phase's prompt
// carries the branch name and current working-tree status without
// re-shelling out to git on each step. Errors are swallowed: git
// status is a courtesy block, not a required one.
func (r *Runner) seedGitContext(ctx context.Context, task *domain.Task, now time.Time) {
	if r.GitRepo == nil {
		return
	}
	summary, err := r.GitRepo.RepoSummary(ctx)
	if err != nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Git branch: %s\n", summary.Branch)
	if len(summary.Status) == 0 {
		b.WriteString("Working tree clean.\n")
	} else {
		fmt.Fprintf(&b, "%d changed file(s):\n", len(summary.Status))
		for _, e := range summary.Status {
			fmt.Fprintf(&b, "- [%s] %s\n", e.Status, e.Path)
		}
	}
	r.Steerer.AddMemory(domain.MemoryEntry{
		ID:        "git-status-" + task.ID,
		Kind:      domain.MemoryEpisodic,
		Content:   b.String(),
		Relevance: 0.75,
		Weight:    domain.NewActiveWeight(now),
	})
}

// recordAgentMemory parses TUNDRA_MEMORY signals out of an agent-CLI
// execution's output, persists them to MemoryStore (when configured),
// and feeds KeyFact/Decision/PhaseResult signals into the context
// steerer as L1 (active) memory so later phases see them.
func (r *Runner) recordAgentMemory(task *domain.Task, output string, now time.Time) {
	signals := memory.ParseSignals(output)
	if len(signals) == 0 {
		return
	}
	r.iteration++
	if r.MemoryStore != nil {
		r.MemoryStore.Update(signals, r.iteration, task.ID)
	}
	for i, sig := range signals {
		switch sig.Type {
		case memory.KeyFact, memory.Decision, memory.PhaseResult:
			r.Steerer.AddMemory(domain.MemoryEntry{
				ID:      fmt.Sprintf("%s-%s-%d-%d", task.ID, sig.Type, r.iteration, i),
				Kind:    domain.MemoryEpisodic,
				Content: sig.Content,
				Weight:  domain.NewActiveWeight(now),
			})
		}
	}
}

// memoryContext renders the task-scoped memory signal history via
// MemoryStore.BuildContext, or "" when no store is configured.
func (r *Runner) memoryContext(taskID string) string {
	if r.MemoryStore == nil {
		return ""
	}
	if ctx := r.MemoryStore.BuildContext(taskID); ctx != "" {
		return "\n\n" + ctx
	}
	return ""
}

// memoryEvalContext renders prior EvalFeedback/PhaseResult signals via
// MemoryStore.BuildEvalContext, giving the QA judge the iteration
// history leading up to this pass.
func (r *Runner) memoryEvalContext(taskID string) string {
	if r.MemoryStore == nil {
		return ""
	}
	if ctx := r.MemoryStore.BuildEvalContext(taskID); ctx != "" {
		return "\n\n" + ctx
	}
	return ""
}

// resolveModel layers the task's phase override (when present) on the
// configured routing for phase, yielding the model/thinking config one
// LLM call should use. A zero result defers to the profile default.
func (r *Runner) resolveModel(phase domain.TaskPhase, task *domain.Task) routing.ModelConfig {
	var taskOverride routing.ModelConfig
	if o, ok := task.PhaseOverrides[phase]; ok {
		taskOverride = routing.ModelConfig{Model: o.Model, Thinking: o.Thinking}
	}
	if r.Router == nil {
		return taskOverride
	}
	return r.Router.Resolve(string(phase), taskOverride)
}

// maxTokensFor maps a thinking level to the completion's token ceiling.
func maxTokensFor(thinking string) int {
	switch thinking {
	case "low":
		return 2048
	case "high":
		return 8192
	default:
		return 4096
	}
}

func (r *Runner) logInfo(msg string) {
	if r.Log != nil {
		r.Log.Info(msg)
	}
}

func (r *Runner) logError(msg string) {
	if r.Log != nil {
		r.Log.Error(msg)
	}
}

func (r *Runner) judge() QAJudge {
	if r.Judge != nil {
		return r.Judge
	}
	return DefaultQAJudge
}

func (r *Runner) tracer() observability.Tracer {
	if r.Tracer != nil {
		return r.Tracer
	}
	return &observability.NoOpTracer{}
}

// RunTask executes every step of workflow against task in dependency
// order, applying the fatal-vs-recoverable failure policy: a failing
// required step transitions the task to Error and stops; a failing
// non-required step is logged and skipped.
func (r *Runner) RunTask(ctx context.Context, task *domain.Task, workflow WorkflowDefinition) error {
	trace := r.tracer().StartTrace(task.ID, observability.TraceOptions{Workflow: workflow.Name, SessionID: task.BeadID})
	r.logInfo("task " + task.ID + ": starting workflow " + workflow.Name)
	r.seedGitContext(ctx, task, time.Now())

	var runErr error
	for _, step := range workflow.ExecutionOrder() {
		if step.Name == "qa" {
			runErr = r.runQAPhase(ctx, task, step, trace)
		} else {
			runErr = r.runStep(ctx, task, step, trace)
		}
		if runErr != nil {
			break
		}
	}

	status := "completed"
	if runErr != nil {
		status = "failed"
		r.logError("task " + task.ID + ": " + runErr.Error())
	} else {
		r.logInfo("task " + task.ID + ": workflow " + workflow.Name + " completed")
	}
	totalIn, totalOut, _ := r.Usage.Snapshot()
	r.tracer().CompleteTrace(trace, observability.CompleteOptions{
		Status:            status,
		TotalInputTokens:  totalIn,
		TotalOutputTokens: totalOut,
	})
	return runErr
}

// runStep transitions into step.Phase, assembles context, resolves an
// LLM response via failover, and either hands it to the agent
// executor or consumes it directly, per the step's UsesAgentCLI flag.
func (r *Runner) runStep(ctx context.Context, task *domain.Task, step PhaseStep, trace observability.TraceContext) error {
	now := time.Now()
	if task.Phase != step.Phase && !task.SetPhase(step.Phase, now) {
		task.AppendLog(domain.LogError, "disallowed transition to "+string(step.Phase), now)
		if step.Required {
			task.SetPhase(domain.PhaseError, time.Now())
			return ErrPhaseTransitionDenied
		}
		return nil
	}
	task.AppendLog(domain.LogPhaseStart, "entering "+step.Name, now)
	r.logInfo("task " + task.ID + ": entering " + step.Name)
	r.Bus.PublishEvent("phase_start", "", task.BeadID, step.Name, now)
	span := r.tracer().StartPhase(trace, step.Name, observability.SpanOptions{})

	prompt := step.Render(*task) + r.memoryContext(task.ID)
	role := step.AgentRole
	if role == "" {
		role = "default"
	}
	assembled := r.Steerer.Assemble(role, step.Name, prompt, defaultContextBudget, now)

	resp, profileID, err := r.completeWithFailover(ctx, span, role, task, prompt, assembled, r.resolveModel(step.Phase, task))
	if err != nil {
		r.logError("task " + task.ID + ": " + step.Name + ": " + err.Error())
		task.AppendLog(domain.LogError, err.Error(), time.Now())
		r.tracer().EndPhase(span, "failed", time.Since(now).Milliseconds())
		if step.Required {
			task.SetPhase(domain.PhaseError, time.Now())
			return err
		}
		return nil
	}

	if step.UsesAgentCLI {
		profile, _ := r.Registry.GetState(profileID)
		cfg := r.AgentCfg(step, profile.Profile)
		var roleCfg *agentexec.RoleConfig
		if r.RoleFor != nil {
			roleCfg = r.RoleFor(step.AgentRole)
		}
		result, execErr := r.Executor.Run(ctx, *task, cfg, roleCfg)
		if execErr != nil {
			task.AppendLog(domain.LogError, execErr.Error(), time.Now())
			r.tracer().EndPhase(span, "failed", time.Since(now).Milliseconds())
			if step.Required {
				task.SetPhase(domain.PhaseError, time.Now())
				return execErr
			}
			return nil
		}
		if !result.Success && step.Required {
			task.AppendLog(domain.LogError, "agent execution failed for "+step.Name, time.Now())
			task.SetPhase(domain.PhaseError, time.Now())
			r.tracer().EndPhase(span, "failed", time.Since(now).Milliseconds())
			return errors.New("pipeline: required phase " + step.Name + " failed")
		}
		recordBuildOutput(task, result.Output, time.Now())
		r.recordAgentMemory(task, result.Output, time.Now())
	} else {
		task.AppendLog(domain.LogText, resp.Content, time.Now())
	}

	task.AppendLog(domain.LogPhaseEnd, "leaving "+step.Name, time.Now())
	r.Bus.PublishEvent("phase_end", "", task.BeadID, step.Name, time.Now())
	r.tracer().EndPhase(span, "completed", time.Since(now).Milliseconds())
	return nil
}

// runQAPhase loops the qa step against the Fixing phase until the QA
// judge reports Passed (proceed to merging, i.e. return to the caller
// so the next static step runs), Failed (drive one coding-style
// Fixing execution, then retry qa), or the iteration cap is reached,
// at which point a required QA phase fails fatally.
func (r *Runner) runQAPhase(ctx context.Context, task *domain.Task, qaStep PhaseStep, trace observability.TraceContext) error {
	for i := 0; i < maxQAFixIterations; i++ {
		now := time.Now()
		if !task.SetPhase(domain.PhaseQA, now) {
			task.AppendLog(domain.LogError, "disallowed transition to qa", now)
			task.SetPhase(domain.PhaseError, time.Now())
			return ErrPhaseTransitionDenied
		}
		task.AppendLog(domain.LogPhaseStart, "entering qa", now)
		span := r.tracer().StartPhase(trace, "qa", observability.SpanOptions{Iteration: i, MaxIterations: maxQAFixIterations})

		prompt := qaStep.Render(*task) + r.memoryEvalContext(task.ID)
		assembled := r.Steerer.Assemble(qaStep.AgentRole, "qa", prompt, defaultContextBudget, now)
		_, profileID, err := r.completeWithFailover(ctx, span, "Judge", task, prompt, assembled, r.resolveModel(domain.PhaseQA, task))
		if err != nil {
			task.AppendLog(domain.LogError, err.Error(), time.Now())
			task.SetPhase(domain.PhaseError, time.Now())
			r.tracer().EndPhase(span, "failed", time.Since(now).Milliseconds())
			return err
		}

		profile, _ := r.Registry.GetState(profileID)
		cfg := r.AgentCfg(qaStep, profile.Profile)
		var roleCfg *agentexec.RoleConfig
		if r.RoleFor != nil {
			roleCfg = r.RoleFor(qaStep.AgentRole)
		}
		result, execErr := r.Executor.Run(ctx, *task, cfg, roleCfg)
		if execErr != nil {
			task.AppendLog(domain.LogError, execErr.Error(), time.Now())
			task.SetPhase(domain.PhaseError, time.Now())
			r.tracer().EndPhase(span, "failed", time.Since(now).Milliseconds())
			return execErr
		}

		recordBuildOutput(task, result.Output, time.Now())
		r.recordAgentMemory(task, result.Output, time.Now())
		report := r.judge()(result)
		task.QAReport = &report
		r.logInfo("task " + task.ID + ": qa verdict " + string(report.Status))
		task.AppendLog(domain.LogPhaseEnd, "leaving qa: "+string(report.Status), time.Now())
		r.tracer().EndPhase(span, string(report.Status), time.Since(now).Milliseconds())

		switch report.NextPhase() {
		case domain.PhaseMerging:
			return nil
		case domain.PhaseQA:
			continue
		case domain.PhaseFixing:
			// Leave the fixing agent a directed note carrying the
			// verdict, alongside the issue list rendered into its
			// prompt.
			r.Bus.PublishMail(&domain.Mail{
				ID:          fmt.Sprintf("%s-qa-%d", task.ID, i),
				FromAgentID: qaStep.AgentRole,
				ToAgentID:   "coder",
				Subject:     "qa failed: " + task.Title,
				Body:        renderQAIssues(task.QAReport),
				CreatedAt:   time.Now(),
			})
			if err := r.runFixingStep(ctx, task, qaStep, trace); err != nil {
				return err
			}
		}
	}
	task.AppendLog(domain.LogError, "qa did not converge after max iterations", time.Now())
	task.SetPhase(domain.PhaseError, time.Now())
	return errors.New("pipeline: qa phase did not converge")
}

// recordBuildOutput accumulates an agent execution's raw output on the
// task as stream-tagged build log lines, kept separate from the
// structured log per the retention model.
func recordBuildOutput(task *domain.Task, output string, now time.Time) {
	if strings.TrimSpace(output) == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		task.AppendBuildLog("stdout", line, now)
	}
}

// renderQAIssues formats a QAReport's issues as a bullet list for the
// Fixing phase's prompt. Returns an empty string when report is nil or
// carries no issues.
func renderQAIssues(report *domain.QAReport) string {
	if report == nil || len(report.Issues) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Issues reported:\n")
	for _, issue := range report.Issues {
		fmt.Fprintf(&b, "- [%s] %s\n", issue.Severity, issue.Description)
	}
	return b.String()
}

func (r *Runner) runFixingStep(ctx context.Context, task *domain.Task, qaStep PhaseStep, trace observability.TraceContext) error {
	now := time.Now()
	if !task.SetPhase(domain.PhaseFixing, now) {
		task.SetPhase(domain.PhaseError, time.Now())
		return ErrPhaseTransitionDenied
	}
	task.AppendLog(domain.LogPhaseStart, "entering fixing", now)
	span := r.tracer().StartPhase(trace, "fixing", observability.SpanOptions{})

	prompt := "Address the QA issues for: " + task.Title + "\n" + renderQAIssues(task.QAReport)
	assembled := r.Steerer.Assemble("coder", "coding", prompt, defaultContextBudget, now)
	_, profileID, err := r.completeWithFailover(ctx, span, "Worker", task, prompt, assembled, r.resolveModel(domain.PhaseFixing, task))
	if err != nil {
		task.AppendLog(domain.LogError, err.Error(), time.Now())
		task.SetPhase(domain.PhaseError, time.Now())
		r.tracer().EndPhase(span, "failed", time.Since(now).Milliseconds())
		return err
	}

	profile, _ := r.Registry.GetState(profileID)
	fixStep := PhaseStep{Name: "fixing", Phase: domain.PhaseFixing, AgentRole: "coder"}
	cfg := r.AgentCfg(fixStep, profile.Profile)
	var roleCfg *agentexec.RoleConfig
	if r.RoleFor != nil {
		roleCfg = r.RoleFor("coder")
	}
	result, execErr := r.Executor.Run(ctx, *task, cfg, roleCfg)
	if execErr != nil {
		task.AppendLog(domain.LogError, execErr.Error(), time.Now())
		task.SetPhase(domain.PhaseError, time.Now())
		r.tracer().EndPhase(span, "failed", time.Since(now).Milliseconds())
		return execErr
	}
	recordBuildOutput(task, result.Output, time.Now())
	r.recordAgentMemory(task, result.Output, time.Now())
	task.AppendLog(domain.LogPhaseEnd, "leaving fixing", time.Now())
	r.tracer().EndPhase(span, "completed", time.Since(now).Milliseconds())
	return nil
}

// completeWithFailover routes one LLM completion through the
// resilient registry, recording usage on the winning profile and the
// global tracker on success.
func (r *Runner) completeWithFailover(ctx context.Context, span observability.SpanContext, genName string, task *domain.Task, prompt string, assembled ctxsteer.Assembled, mc routing.ModelConfig) (llm.Response, string, error) {
	start := time.Now()
	var model string
	profileID, resp, err := providers.CallWithFailover(r.Registry, func(p providers.ApiProfile) (llm.Response, error) {
		model = p.DefaultModel
		if mc.Model != "" {
			model = mc.Model
		}
		driver := r.DriverFor(p)
		cfg := llm.Config{Model: model, MaxTokens: maxTokensFor(mc.Thinking), SystemPrompt: assembled.RenderXML()}
		return driver.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, cfg)
	})
	if err != nil {
		r.tracer().RecordGeneration(span, observability.GenerationInput{
			Name: genName, Model: model, Input: prompt, Status: "error", DurationMs: time.Since(start).Milliseconds(),
		})
		return llm.Response{}, "", err
	}
	if state, ok := r.Registry.GetState(profileID); ok {
		state.Usage.RecordSuccess(resp.InputTokens, resp.OutputTokens, 0, time.Now())
	}
	r.Usage.Record(resp)
	if r.RecordMetric != nil {
		r.RecordMetric(domain.TokenMetric{
			TaskID:       task.ID,
			ProfileID:    profileID,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			Timestamp:    time.Now(),
		})
	}
	r.tracer().RecordGeneration(span, observability.GenerationInput{
		Name: genName, Model: model, Input: prompt, Output: resp.Content,
		InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens,
		Status: "completed", DurationMs: time.Since(start).Milliseconds(),
	})
	return resp, profileID, nil
}
