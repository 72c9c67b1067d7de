package llm

import (
	"math/rand"
	"net/http"
	"time"
)

const (
	maxRetries     = 5
	baseRetryDelay = time.Second
	maxRetryDelay  = 30 * time.Second
)

// retryableStatusCode returns true for HTTP status codes that warrant a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// retryDelay computes the capped exponential backoff with jitter for the
// given zero-based attempt: ~1s, 2s, 4s, ... capped at 30s, each with up to
// 25% random jitter.
func retryDelay(attempt int) time.Duration {
	d := baseRetryDelay << uint(attempt)
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}
