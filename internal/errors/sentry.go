package errors

import (
	"fmt"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// InitSentry initializes the Sentry SDK and installs a reporter for enhanced errors.
func InitSentry(dsn, release string, debug bool) error {
	if dsn == "" {
		return Newf("sentry DSN is empty").
			Component("telemetry").
			Category(CategoryConfiguration).
			Build()
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		Debug:            debug,
		AttachStacktrace: true,
		SendDefaultPII:   false,
	}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	SetTelemetryReporter(NewSentryReporter(true))
	return nil
}

// FlushSentry waits up to timeout for queued events to be delivered.
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with privacy protection
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	component := ee.GetComponent()

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}

		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		level := levelForCategory(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%s %s", component, ee.Category),
			Value: message,
		}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func levelForCategory(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNotifier, CategoryCameraPower:
		return sentry.LevelError
	case CategoryEvidenceSource, CategoryDatabase, CategoryMQTTConnection:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}

var (
	urlCredentialPattern = regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://)[^/@\s]+@`)
	phoneNumberPattern   = regexp.MustCompile(`\+?\d[\d\s-]{6,}\d`)
	tokenPattern         = regexp.MustCompile(`(?i)((token|password|secret|api_key)=)[^&\s]+`)
)

// scrubMessage removes credentials and phone numbers before anything leaves the process
func scrubMessage(msg string) string {
	msg = urlCredentialPattern.ReplaceAllString(msg, "${1}[REDACTED]@")
	msg = tokenPattern.ReplaceAllString(msg, "${1}[REDACTED]")
	return phoneNumberPattern.ReplaceAllString(msg, "[PHONE]")
}
