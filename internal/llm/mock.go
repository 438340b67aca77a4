package llm

import (
	"context"
	"sync"
)

// MockOutcome is either a canned Response or a canned error, dequeued
// FIFO by MockDriver.Complete.
type MockOutcome struct {
	Response Response
	Err      error
}

// MockDriver is a FIFO of pre-canned outcomes, capturing every call's
// arguments for test assertions.
type MockDriver struct {
	mu       sync.Mutex
	outcomes []MockOutcome
	calls    []recordedCall
	Default  Response
}

type recordedCall struct {
	Messages []Message
	Config   Config
}

// NewMockDriver constructs an empty mock driver with a stable default
// response for when the outcome queue is drained.
func NewMockDriver() *MockDriver {
	return &MockDriver{Default: Response{Content: "mock response", Model: "mock", FinishReason: "stop"}}
}

// Enqueue schedules an outcome to be returned by the next Complete call.
func (m *MockDriver) Enqueue(o MockOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
}

// EnqueueResponse is a convenience wrapper for a successful outcome.
func (m *MockDriver) EnqueueResponse(r Response) { m.Enqueue(MockOutcome{Response: r}) }

// EnqueueError is a convenience wrapper for a failing outcome.
func (m *MockDriver) EnqueueError(err error) { m.Enqueue(MockOutcome{Err: err}) }

// Calls returns every (messages, config) pair Complete was invoked with.
func (m *MockDriver) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockDriver) Complete(ctx context.Context, messages []Message, cfg Config) (Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, recordedCall{Messages: messages, Config: cfg})
	var outcome MockOutcome
	hasOutcome := len(m.outcomes) > 0
	if hasOutcome {
		outcome, m.outcomes = m.outcomes[0], m.outcomes[1:]
	}
	def := m.Default
	m.mu.Unlock()

	if !hasOutcome {
		return def, nil
	}
	if outcome.Err != nil {
		return Response{}, outcome.Err
	}
	return outcome.Response, nil
}

func (m *MockDriver) Stream(ctx context.Context, messages []Message, cfg Config, onChunk func(string)) (Response, error) {
	resp, err := m.Complete(ctx, messages, cfg)
	if err != nil {
		return Response{}, err
	}
	if onChunk != nil {
		onChunk(resp.Content)
	}
	return resp, nil
}
