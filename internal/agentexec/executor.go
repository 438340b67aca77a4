// Package agentexec drives a single task to completion against a
// single agent CLI, spawned over internal/ptyexec's pseudo-terminal
// contract: assemble the prompt, spawn, stream output, parse
// structured events, classify the outcome. Every parsed tool_call
// event is gated through internal/approval, and every
// <tool_use_error> span is resolved through internal/toolfallback
// against the CLI's announced tool names.
package agentexec

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ryanmaclean/tundra/internal/approval"
	"github.com/ryanmaclean/tundra/internal/bus"
	"github.com/ryanmaclean/tundra/internal/domain"
	"github.com/ryanmaclean/tundra/internal/ptyexec"
	"github.com/ryanmaclean/tundra/internal/toolfallback"
)

// AgentConfig describes how to spawn and run one agent CLI invocation.
type AgentConfig struct {
	Binary  string
	Args    []string
	Env     []string
	Timeout time.Duration
	Model   string

	// Role names the agent role for approval.Table lookups; empty
	// matches the role-agnostic rules.
	Role string
	// AnnouncedTools lists the tool names this CLI advertises, for
	// resolving a tool-use error against toolfallback's alternative map.
	AnnouncedTools []string
}

// RoleConfig supplies a system prompt and optional pre/post-execution
// hooks for a named agent role.
type RoleConfig struct {
	SystemPrompt string
	// PreHook returns an optional preamble inserted between the system
	// line and the base prompt.
	PreHook func(task domain.Task) string
	// PostHook runs on the raw output; its returned summary is
	// observational only.
	PostHook func(rawOutput string) string
}

// Event is one structured event parsed from a line of agent output. For
// a "tool_call" event, Policy carries the approval.Table verdict for
// the tool named in Data.
type Event struct {
	EventType string
	Message   string
	Data      any
	Policy    approval.Policy
}

// ToolUseError is a parsed <tool_use_error> span, enriched with the
// toolfallback recovery decision for the CLI that raised it.
type ToolUseError struct {
	ToolName     string
	ErrorMessage string
	Raw          string
	Fallback     toolfallback.Decision
}

// Result is the outcome of one agent execution.
type Result struct {
	TaskID     string
	Success    bool
	Output     string
	Events     []Event
	ToolErrors []ToolUseError
	DurationMS int64
	ExitCode   *int
}

// PtyPoolError wraps a spawn failure from the PTY spawner.
type PtyPoolError struct{ Cause error }

func (e *PtyPoolError) Error() string { return "pty pool error: " + e.Cause.Error() }
func (e *PtyPoolError) Unwrap() error { return e.Cause }

// InternalError covers programmer-visible failures: a closed prompt
// writer, or an abort against an unknown task id.
type InternalError struct{ Reason string }

func (e *InternalError) Error() string { return "internal error: " + e.Reason }

// Executor drives agent CLI executions over a PTY spawner, publishing
// lifecycle events to a bus and tracking live processes by task id.
type Executor struct {
	spawner ptyexec.Spawner
	bus     *bus.Bus

	// Approval gates tool_call events against the current agent role.
	// Exported so a caller can swap in a custom table; NewExecutor seeds
	// it with approval.NewTable()'s built-in rules.
	Approval *approval.Table

	mu     sync.Mutex
	active map[string]ptyexec.Handle

	// readTimeout is the per-chunk read deadline.
	readTimeout time.Duration
}

// NewExecutor constructs an Executor over the given spawner and bus.
func NewExecutor(spawner ptyexec.Spawner, b *bus.Bus) *Executor {
	return &Executor{
		spawner:     spawner,
		bus:         b,
		Approval:    approval.NewTable(),
		active:      make(map[string]ptyexec.Handle),
		readTimeout: 5 * time.Second,
	}
}

// BuildPrompt assembles the base prompt from task fields and,
// when a role is supplied, prepends its system line and preamble.
func BuildPrompt(task domain.Task, role *RoleConfig) string {
	base := "Title: " + task.Title
	if task.Description != "" {
		base += "\nDescription: " + task.Description
	}
	base += "\nPhase: " + string(task.Phase)
	base += "\nPriority: " + string(task.Priority)
	base += "\nComplexity: " + string(task.Complexity)

	if role == nil {
		return base
	}

	var b strings.Builder
	b.WriteString("System: " + role.SystemPrompt + "\n\n")
	if role.PreHook != nil {
		if preamble := role.PreHook(task); preamble != "" {
			b.WriteString(preamble + "\n\n")
		}
	}
	b.WriteString(base)
	return b.String()
}

// Run drives task through one agent CLI invocation end to end: prompt
// assembly, spawn, register, send, collect-with-timeout, drain,
// unregister, tool-error scan, classify, and post-hook.
func (e *Executor) Run(ctx context.Context, task domain.Task, cfg AgentConfig, role *RoleConfig) (Result, error) {
	start := time.Now()
	prompt := BuildPrompt(task, role)

	handle, err := e.spawner.Spawn(ctx, cfg.Binary, cfg.Args, cfg.Env)
	if err != nil {
		return Result{}, &PtyPoolError{Cause: err}
	}

	e.mu.Lock()
	e.active[task.ID] = handle
	e.mu.Unlock()
	e.publishEvent(bus.EventTaskExecutionStart, task.ID, "")

	defer func() {
		e.mu.Lock()
		delete(e.active, task.ID)
		e.mu.Unlock()
	}()

	if !handle.Send([]byte(prompt)) {
		return Result{}, &InternalError{Reason: "prompt writer closed"}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)

	var raw strings.Builder
	var events []Event
	timedOut := false

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			timedOut = true
			break
		}
		readTimeout := e.readTimeout
		if remaining < readTimeout {
			readTimeout = remaining
		}
		select {
		case chunk, ok := <-handle.Recv():
			if !ok {
				goto drain
			}
			e.consumeChunk(task.ID, cfg.Role, chunk, &raw, &events)
		case <-time.After(readTimeout):
			if !handle.Alive() {
				goto drain
			}
			if time.Now().After(deadline) {
				timedOut = true
				goto drain
			}
		case <-ctx.Done():
			timedOut = true
			goto drain
		}
	}

drain:
	for _, chunk := range handle.Drain() {
		e.consumeChunk(task.ID, cfg.Role, chunk, &raw, &events)
	}

	output := raw.String()
	toolErrors := ParseToolUseErrors(output)
	for i := range toolErrors {
		toolErrors[i].Fallback = toolfallback.Resolve(toolErrors[i].ToolName, cfg.AnnouncedTools)
	}

	result := Result{
		TaskID:     task.ID,
		Success:    !timedOut && strings.TrimSpace(output) != "",
		Output:     output,
		Events:     events,
		ToolErrors: toolErrors,
		DurationMS: time.Since(start).Milliseconds(),
	}

	if timedOut {
		e.publishEvent(bus.EventTaskExecutionTimeout, task.ID, "")
	} else if result.Success {
		e.publishEvent(bus.EventTaskExecutionComplete, task.ID, "")
	} else {
		e.publishEvent(bus.EventTaskExecutionFailed, task.ID, "")
	}

	if role != nil && role.PostHook != nil {
		role.PostHook(output)
	}

	return result, nil
}

func (e *Executor) consumeChunk(taskID, role string, chunk []byte, raw *strings.Builder, events *[]Event) {
	raw.Write(chunk)
	e.bus.PublishOutput(taskID, taskID, string(chunk))
	text := string(chunk)
	for _, line := range strings.Split(text, "\n") {
		if ev, ok := ParseLine(line); ok {
			if ev.EventType == "tool_call" {
				ev.Policy = e.Approval.Evaluate(toolCallName(ev.Data), role)
			}
			*events = append(*events, ev)
		}
	}
}

// toolCallName extracts the tool name from a "tool_call" event's Data
// field, which decodes from JSON as map[string]any. Tries "tool" before
// "name" since that's the field the executor's own event emitter uses.
func toolCallName(data any) string {
	m, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	if name, ok := m["tool"].(string); ok {
		return name
	}
	if name, ok := m["name"].(string); ok {
		return name
	}
	return ""
}

func (e *Executor) publishEvent(eventType, taskID, beadID string) {
	e.bus.PublishEvent(eventType, taskID, beadID, eventType, time.Now())
}

// Abort marks the task's spawned process dead and removes it from the
// active-task map. It does not retroactively change an in-flight
// execution's result; that call observes death on its next read
// timeout and completes via the timeout path.
func (e *Executor) Abort(taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.active[taskID]
	if !ok {
		return &InternalError{Reason: "no active execution for task " + taskID}
	}
	h.Abort()
	delete(e.active, taskID)
	return nil
}

// ActiveCount returns the number of currently-registered executions,
// for invariant checks (at most one live process per task id).
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
