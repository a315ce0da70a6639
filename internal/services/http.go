package services

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/nknaian/musicorg/internal/shared"
)

// retryLogger adapts [log.Logger] to [retryablehttp.LeveledLogger].
type retryLogger struct {
	logger *log.Logger
}

func (l retryLogger) Error(msg string, kv ...any) { l.logger.Error(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...any)  { l.logger.Debug(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...any) { l.logger.Debug(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...any)  { l.logger.Warn(msg, kv...) }

// retryRateLimited retries only 429 responses. Spotify rejects those before applying the request,
// so replaying a write is safe; a 5xx or a dropped connection may follow an applied write.
func retryRateLimited(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil || resp == nil {
		return false, nil
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

// methodTransport sends reads through a client that retries 429, 5xx and connection errors,
// and writes through one that retries 429 only.
type methodTransport struct {
	reads  http.RoundTripper
	writes http.RoundTripper
}

func (t methodTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		return t.reads.RoundTrip(req)
	default:
		return t.writes.RoundTrip(req)
	}
}

func newRetryClient(cfg shared.RemoteConfig, logger *log.Logger, check retryablehttp.CheckRetry) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = retryLogger{logger: logger}
	rc.CheckRetry = check
	return rc
}

// newHTTPClient returns the transport shared by every Spotify call. Backoff honours Retry-After.
func newHTTPClient(cfg shared.RemoteConfig, logger *log.Logger) *http.Client {
	client := &http.Client{Transport: methodTransport{
		reads:  &retryablehttp.RoundTripper{Client: newRetryClient(cfg, logger, retryablehttp.DefaultRetryPolicy)},
		writes: &retryablehttp.RoundTripper{Client: newRetryClient(cfg, logger, retryRateLimited)},
	}}
	if cfg.Timeout.Duration > 0 {
		client.Timeout = cfg.Timeout.Duration
	}
	return client
}
