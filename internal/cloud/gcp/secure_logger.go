package gcp

import (
	"fmt"

	"github.com/ryanmaclean/tundra/internal/security"
)

// SecureCloudLogger wraps CloudLogger with automatic log sanitization so
// that secrets and filesystem paths never reach the structured log
// stream. It overrides every message-carrying method of the
// LoggerInterface contract; callers cannot reach an unsanitized write
// path through it.
type SecureCloudLogger struct {
	*CloudLogger
	sanitizer     *security.LogSanitizer
	pathSanitizer *security.PathSanitizer
}

// NewSecureCloudLogger creates a CloudLogger with automatic sanitization.
func NewSecureCloudLogger(component string, opts ...CloudLoggerOption) *SecureCloudLogger {
	return &SecureCloudLogger{
		CloudLogger:   NewCloudLogger(component, opts...),
		sanitizer:     security.NewLogSanitizer(),
		pathSanitizer: security.NewPathSanitizer(),
	}
}

// Sanitize runs the logger's redaction tables over msg, for callers
// that forward log text to additional sinks of their own.
func (scl *SecureCloudLogger) Sanitize(msg string) string {
	return scl.sanitizer.Sanitize(msg)
}

// Log writes a sanitized structured entry at the given severity.
func (scl *SecureCloudLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	scl.CloudLogger.Log(severity, scl.sanitizer.Sanitize(message), fields)
}

// LogInfo writes a sanitized INFO entry.
func (scl *SecureCloudLogger) LogInfo(message string) {
	scl.Log(SeverityInfo, message, nil)
}

// LogWarning writes a sanitized WARNING entry.
func (scl *SecureCloudLogger) LogWarning(message string) {
	scl.Log(SeverityWarning, message, nil)
}

// LogError writes a sanitized ERROR entry.
func (scl *SecureCloudLogger) LogError(message string) {
	scl.Log(SeverityError, message, nil)
}

// Debugf logs a sanitized formatted message at DEBUG severity.
func (scl *SecureCloudLogger) Debugf(format string, args ...interface{}) {
	scl.Log(SeverityDebug, fmt.Sprintf(format, args...), nil)
}

// Infof logs a sanitized formatted message at INFO severity.
func (scl *SecureCloudLogger) Infof(format string, args ...interface{}) {
	scl.LogInfo(fmt.Sprintf(format, args...))
}

// Warningf logs a sanitized formatted message at WARNING severity.
func (scl *SecureCloudLogger) Warningf(format string, args ...interface{}) {
	scl.LogWarning(fmt.Sprintf(format, args...))
}

// Errorf logs a sanitized formatted message at ERROR severity.
func (scl *SecureCloudLogger) Errorf(format string, args ...interface{}) {
	scl.LogError(fmt.Sprintf(format, args...))
}

// LogWithLabels logs a sanitized message with path-sanitized labels.
func (scl *SecureCloudLogger) LogWithLabels(severity Severity, msg string, extraLabels map[string]string) {
	sanitizedLabels := make(map[string]string, len(extraLabels))
	for k, v := range extraLabels {
		sanitizedLabels[k] = scl.pathSanitizer.Sanitize(v)
	}
	scl.Log(severity, msg, map[string]interface{}{"labels": sanitizedLabels})
}

// LoggerInterface is implemented by SecureCloudLogger via the embedded CloudLogger.
var _ LoggerInterface = (*SecureCloudLogger)(nil)
