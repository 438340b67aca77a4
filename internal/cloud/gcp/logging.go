package gcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// Severity levels for structured logs
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities for threshold filtering.
var severityRank = map[Severity]int{
	SeverityDefault:  0,
	SeverityDebug:    1,
	SeverityInfo:     2,
	SeverityWarning:  3,
	SeverityError:    4,
	SeverityCritical: 5,
}

// LogEntry is one structured log line in the format the Cloud Logging
// agent picks up off stderr. Component names the emitting subsystem
// (pipeline, executor); TaskID and Phase carry the pipeline position
// the entry was produced in, when known.
type LogEntry struct {
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component"`
	TaskID    string                 `json:"task_id,omitempty"`
	Phase     string                 `json:"phase,omitempty"`
	Iteration int                    `json:"iteration,omitempty"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LoggerInterface is the logging surface consumers program against.
type LoggerInterface interface {
	Log(severity Severity, message string, fields map[string]interface{})
	LogInfo(message string)
	LogWarning(message string)
	LogError(message string)
	SetIteration(iteration int)
	SetPhase(phase string)
	Flush() error
	Close() error
}

// CloudLogger writes structured JSON log entries to a writer the Cloud
// Logging agent tails (stderr on GCP) or to stdout for local runs.
// Entries below the configured minimum severity are dropped.
type CloudLogger struct {
	writer      io.Writer
	component   string
	taskID      string
	phase       string
	iteration   int
	minSeverity Severity
	labels      map[string]string
	mu          sync.Mutex
	closed      bool
	flushFn     func() error
}

// CloudLoggerOption configures a CloudLogger.
type CloudLoggerOption func(*CloudLogger)

// WithLabels adds custom labels to all log entries
func WithLabels(labels map[string]string) CloudLoggerOption {
	return func(cl *CloudLogger) {
		for k, v := range labels {
			cl.labels[k] = v
		}
	}
}

// WithTask stamps every entry with the task id it concerns.
func WithTask(taskID string) CloudLoggerOption {
	return func(cl *CloudLogger) {
		cl.taskID = taskID
	}
}

// WithIteration sets the current iteration number
func WithIteration(iteration int) CloudLoggerOption {
	return func(cl *CloudLogger) {
		cl.iteration = iteration
	}
}

// WithMinSeverity drops entries below the given severity.
func WithMinSeverity(s Severity) CloudLoggerOption {
	return func(cl *CloudLogger) {
		cl.minSeverity = s
	}
}

// WithWriter sets a custom writer for log output
func WithWriter(w io.Writer) CloudLoggerOption {
	return func(cl *CloudLogger) {
		cl.writer = w
	}
}

// WithFlushFunc sets a custom flush function
func WithFlushFunc(fn func() error) CloudLoggerOption {
	return func(cl *CloudLogger) {
		cl.flushFn = fn
	}
}

// severityFromEnv reads TUNDRA_LOG_LEVEL (debug, info, warning, error)
// into a minimum severity; unset or unknown values keep everything.
func severityFromEnv() Severity {
	switch strings.ToLower(os.Getenv("TUNDRA_LOG_LEVEL")) {
	case "info":
		return SeverityInfo
	case "warning", "warn":
		return SeverityWarning
	case "error":
		return SeverityError
	default:
		return SeverityDebug
	}
}

// NewCloudLogger creates a logger for one component, writing structured
// JSON to stderr (where the Cloud Logging agent tails it on GCP).
func NewCloudLogger(component string, opts ...CloudLoggerOption) *CloudLogger {
	cl := &CloudLogger{
		writer:      os.Stderr,
		component:   component,
		minSeverity: severityFromEnv(),
		labels: map[string]string{
			"component": component,
			"service":   "tundra",
		},
	}

	for _, opt := range opts {
		opt(cl)
	}

	return cl
}

// Log writes a structured log entry
func (cl *CloudLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed || severityRank[severity] < severityRank[cl.minSeverity] {
		return
	}

	entry := LogEntry{
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Component: cl.component,
		TaskID:    cl.taskID,
		Phase:     cl.phase,
		Iteration: cl.iteration,
		Labels:    cl.labels,
		Fields:    fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(cl.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(cl.writer, "%s\n", data)
}

// LogInfo writes an INFO level log entry
func (cl *CloudLogger) LogInfo(message string) {
	cl.Log(SeverityInfo, message, nil)
}

// LogWarning writes a WARNING level log entry
func (cl *CloudLogger) LogWarning(message string) {
	cl.Log(SeverityWarning, message, nil)
}

// LogError writes an ERROR level log entry
func (cl *CloudLogger) LogError(message string) {
	cl.Log(SeverityError, message, nil)
}

// SetIteration updates the current iteration number for subsequent logs
func (cl *CloudLogger) SetIteration(iteration int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.iteration = iteration
}

// SetPhase updates the pipeline phase stamped on subsequent logs.
func (cl *CloudLogger) SetPhase(phase string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.phase = phase
}

// Flush ensures all buffered logs are written
func (cl *CloudLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}

	if cl.flushFn != nil {
		return cl.flushFn()
	}

	if syncer, ok := cl.writer.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}

	return nil
}

// Close flushes remaining logs and marks the logger as closed
func (cl *CloudLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}

	cl.closed = true

	if cl.flushFn != nil {
		return cl.flushFn()
	}

	return nil
}

// FormatLogEntry formats a LogEntry as a JSON string for local output
func FormatLogEntry(entry LogEntry) string {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal log entry: %v"}`, err)
	}
	return string(data)
}

// NewLogger creates a component logger targeting the right sink for
// the environment: stderr on GCP (the Cloud Logging agent tails it),
// stdout for local debugging.
func NewLogger(component string, opts ...CloudLoggerOption) LoggerInterface {
	if isRunningOnGCP() {
		return NewCloudLogger(component, opts...)
	}
	return NewCloudLogger(component, append([]CloudLoggerOption{WithWriter(os.Stdout)}, opts...)...)
}

// isRunningOnGCP checks if the code is running on a GCP environment
// by probing the metadata server
func isRunningOnGCP() bool {
	client := &http.Client{Timeout: 1 * time.Second}
	req, err := http.NewRequest("GET", "http://metadata.google.internal/computeMetadata/v1/", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Ensure CloudLogger implements LoggerInterface
var _ LoggerInterface = (*CloudLogger)(nil)

// SanitizeForLog removes potentially sensitive data from strings
// before logging. It redacts common patterns like tokens, keys, etc.
func SanitizeForLog(s string) string {
	// Redact GitHub tokens
	if strings.HasPrefix(s, "ghs_") || strings.HasPrefix(s, "ghp_") || strings.HasPrefix(s, "gho_") {
		return "[REDACTED_GITHUB_TOKEN]"
	}
	// Redact Bearer tokens
	if strings.HasPrefix(s, "Bearer ") {
		return "Bearer [REDACTED]"
	}
	return s
}
