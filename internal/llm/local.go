package llm

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"
)

const localConcurrencyEnvVar = "AT_LOCAL_LLM_MAX_CONCURRENT"

// LocalDriver targets a local OpenAI-compatible inference server. All
// concurrent calls across a process pass through a shared weighted
// semaphore whose permit count defaults to 1 and is overridable by
// AT_LOCAL_LLM_MAX_CONCURRENT.
type LocalDriver struct {
	d   chatCompletionsDriver
	sem *semaphore.Weighted
}

// NewLocalDriver constructs a driver targeting baseURL (required);
// apiKey may be empty, "none", or unset to suppress the auth header.
func NewLocalDriver(apiKey, baseURL string) *LocalDriver {
	permits := localConcurrencyLimit()
	return &LocalDriver{
		d: chatCompletionsDriver{
			apiKey:      apiKey,
			baseURL:     baseURL,
			requireAuth: false,
			httpClient:  &http.Client{Timeout: 120 * time.Second},
		},
		sem: semaphore.NewWeighted(int64(permits)),
	}
}

func localConcurrencyLimit() int {
	if v := os.Getenv(localConcurrencyEnvVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return n
		}
	}
	return 1
}

// ErrLocalExhausted is returned when the local-inference semaphore is
// saturated and ctx is cancelled before a permit frees up.
type ErrLocalExhausted struct{}

func (e *ErrLocalExhausted) Error() string { return "local inference concurrency exhausted" }

func (d *LocalDriver) Complete(ctx context.Context, messages []Message, cfg Config) (Response, error) {
	if d.d.baseURL == "" {
		return Response{}, &NotConfiguredError{Reason: "local base url missing"}
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return Response{}, &ErrLocalExhausted{}
	}
	defer d.sem.Release(1)
	return d.d.complete(ctx, messages, cfg)
}

func (d *LocalDriver) Stream(ctx context.Context, messages []Message, cfg Config, onChunk func(string)) (Response, error) {
	return Response{}, &ErrUnsupported{Operation: "local.Stream"}
}
