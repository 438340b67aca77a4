// Package obslog provides the structured-logging facade used across the
// module: an Info/Warn/Error/Debug surface backed by Google Cloud Logging
// when TUNDRA_GCP_PROJECT is set, and a redacting structured-JSON writer to
// stderr otherwise, without requiring every caller to depend on
// internal/cloud/gcp directly.
package obslog

import (
	"context"
	"os"

	gclogging "cloud.google.com/go/logging"

	"github.com/ryanmaclean/tundra/internal/cloud/gcp"
)

// Logger is the structured-logging surface every package in this module logs
// through. It never panics and never blocks the caller on a logging sink
// failure; errors writing a log entry are themselves best-effort reported.
// Every message is sanitized once, up front, so the local structured
// stream and the remote Cloud Logging sink both receive redacted text.
type Logger struct {
	component string
	secure    *gcp.SecureCloudLogger
	cloud     *gclogging.Logger
	cloudCli  *gclogging.Client
}

// Option configures a Logger.
type Option func(*Logger)

// WithLabels attaches static labels (e.g. task/agent ids) to every entry.
func WithLabels(labels map[string]string) Option {
	return func(l *Logger) {
		l.secure = gcp.NewSecureCloudLogger(l.component, gcp.WithLabels(labels))
	}
}

// New constructs a Logger for the given component name (e.g. "pipeline",
// "agentexec"). When TUNDRA_GCP_PROJECT is set, entries are additionally
// shipped to Cloud Logging via the real SDK client; construction failures
// there are logged locally and otherwise ignored, since observability must
// never become a hard dependency of task execution.
func New(component string, opts ...Option) *Logger {
	l := &Logger{
		component: component,
		secure:    gcp.NewSecureCloudLogger(component),
	}
	if project := os.Getenv("TUNDRA_GCP_PROJECT"); project != "" {
		if cli, err := gclogging.NewClient(context.Background(), "projects/"+project); err == nil {
			l.cloudCli = cli
			l.cloud = cli.Logger(component)
		} else {
			l.secure.LogWarning("obslog: cloud logging client unavailable, using stderr: " + err.Error())
		}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// emit writes one already-sanitized message to the local structured
// stream and, when configured, the remote Cloud Logging sink. Callers
// must pass msg through l.secure.Sanitize first.
func (l *Logger) emit(local gcp.Severity, remote gclogging.Severity, msg string) {
	l.secure.CloudLogger.Log(local, msg, nil)
	if l.cloud != nil {
		l.cloud.Log(gclogging.Entry{Severity: remote, Payload: msg})
	}
}

// Debug logs a sanitized message at DEBUG severity.
func (l *Logger) Debug(msg string) {
	l.emit(gcp.SeverityDebug, gclogging.Debug, l.secure.Sanitize(msg))
}

// Info logs a sanitized message at INFO severity.
func (l *Logger) Info(msg string) {
	l.emit(gcp.SeverityInfo, gclogging.Info, l.secure.Sanitize(msg))
}

// Warn logs a sanitized message at WARNING severity.
func (l *Logger) Warn(msg string) {
	l.emit(gcp.SeverityWarning, gclogging.Warning, l.secure.Sanitize(msg))
}

// Error logs a sanitized message at ERROR severity.
func (l *Logger) Error(msg string) {
	l.emit(gcp.SeverityError, gclogging.Error, l.secure.Sanitize(msg))
}

// Close flushes and releases any Cloud Logging client held by the Logger.
func (l *Logger) Close() error {
	_ = l.secure.Close()
	if l.cloudCli != nil {
		return l.cloudCli.Close()
	}
	return nil
}
