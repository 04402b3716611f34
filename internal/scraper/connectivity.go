package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// Guard checks that a site answers before a session is opened. Any HTTP
// response, whatever its status, counts as reachable.
type Guard struct {
	client      *resty.Client
	maxAttempts int
	logger      *slog.Logger
}

// NewGuard retries network errors up to maxAttempts requests in total, waiting
// exactly delay between them.
func NewGuard(timeout time.Duration, userAgent string, maxAttempts int, delay time.Duration) *Guard {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	g := &Guard{
		maxAttempts: maxAttempts,
		logger:      slog.Default().With("component", "connectivity"),
	}

	// equal wait bounds turn resty's jittered backoff into a fixed delay
	g.client = resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetLogger(restyLogger{g.logger}).
		SetRetryCount(maxAttempts - 1).
		SetRetryWaitTime(delay).
		SetRetryMaxWaitTime(delay).
		AddRetryCondition(func(_ *resty.Response, err error) bool {
			return err != nil && isNetworkError(err)
		}).
		AddRetryHook(g.attemptFailed)

	return g
}

func (g *Guard) MaxAttempts() int {
	return g.maxAttempts
}

// EnsureReachable reports false with a nil error once every attempt failed
// with a network error. A malformed URL or any other request error is
// returned immediately without a retry.
func (g *Guard) EnsureReachable(ctx context.Context, rawURL string) (bool, error) {
	if err := validateURL(rawURL); err != nil {
		return false, err
	}

	resp, err := g.client.R().SetContext(ctx).Get(rawURL)
	if err == nil {
		g.logger.Info("site reachable", "url", rawURL, "attempt", resp.Request.Attempt, "status", resp.StatusCode())
		return true, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if !isNetworkError(err) {
		return false, fmt.Errorf("connectivity check failed: %w", err)
	}

	g.logger.Error("site unreachable", "url", rawURL, "attempts", g.maxAttempts)
	return false, nil
}

// attemptFailed runs after every retryable failure, the last one included.
func (g *Guard) attemptFailed(resp *resty.Response, err error) {
	attempt := 0
	if resp != nil && resp.Request != nil {
		attempt = resp.Request.Attempt
	}

	g.logger.Warn("connection attempt failed",
		"attempt", attempt,
		"max_attempts", g.maxAttempts,
		"error", err)
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return nil
}

func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// restyLogger routes resty's own messages into slog at debug level; the
// guard logs attempts itself.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
