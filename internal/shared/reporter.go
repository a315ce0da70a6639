package shared

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
)

// Reporter forwards unexpected errors to Sentry. A Reporter built without a DSN is a no-op.
type Reporter struct {
	enabled bool
	logger  *log.Logger
}

// NewReporter initializes the Sentry client when cfg.DSN is set.
func NewReporter(cfg SentryConfig, logger *log.Logger) (*Reporter, error) {
	if cfg.DSN == "" {
		return &Reporter{logger: logger}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sentry: %v", ErrInvalidConfig, err)
	}

	logger.Info("error reporting enabled", "environment", cfg.Environment)
	return &Reporter{enabled: true, logger: logger}, nil
}

// Enabled reports whether errors are being sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.enabled
}

// Capture sends err with the given tags on an isolated hub.
func (r *Reporter) Capture(err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

// Flush waits up to timeout for buffered events to be delivered.
func (r *Reporter) Flush(timeout time.Duration) {
	if !r.Enabled() {
		return
	}
	if !sentry.Flush(timeout) {
		r.logger.Warn("sentry flush timed out", "timeout", timeout)
	}
}
