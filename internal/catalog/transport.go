package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sortify/internal/core"
)

// Transport is the HTTP round tripper under every upstream call. It paces
// requests with a token-bucket limiter and resolves short rate limits in
// place: a 429 whose Retry-After fits inside maxRetryAfter is retried exactly
// once after waiting; anything longer is handed back to the caller, who is
// expected to fall back on caches and cooldowns instead of blocking.
type Transport struct {
	base          http.RoundTripper
	limiter       *rate.Limiter
	maxRetryAfter time.Duration
	logger        *zap.Logger
}

func NewTransport(config *core.SpotifyConfig, logger *zap.Logger) *Transport {
	return &Transport{
		base:          http.DefaultTransport,
		limiter:       rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		maxRetryAfter: config.MaxRetryAfter,
		logger:        logger,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusTooManyRequests {
		return resp, err
	}

	retryAfter := parseRetryAfter(resp)
	if retryAfter <= 0 || retryAfter > t.maxRetryAfter {
		t.logger.Warn("Rate limited beyond short-retry window, propagating",
			zap.String("url", req.URL.Path),
			zap.Duration("retryAfter", retryAfter))
		return resp, nil
	}

	// Short limit: absorb it here with a single retry.
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	t.logger.Debug("Rate limited, retrying once after hint",
		zap.String("url", req.URL.Path),
		zap.Duration("retryAfter", retryAfter))

	if err := sleepWithContext(ctx, retryAfter); err != nil {
		return nil, err
	}

	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("reset request body for retry: %w", err)
		}
		req.Body = body
	}

	return t.base.RoundTrip(req)
}

// parseRetryAfter reads the Retry-After hint as either delay seconds or an
// HTTP date. Returns 0 when absent or unusable.
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(header); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled during rate-limit wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
