package evmpay

import (
	"net/http"
	"time"

	"github.com/paywatch/evmpay/logger"
	"github.com/paywatch/evmpay/metrics"
)

// Option customizes an EvmPay instance at construction time.
type Option func(*EvmPay)

// WithLogger replaces the default zap logger.
func WithLogger(l logger.Logger) Option {
	return func(e *EvmPay) {
		e.log = l
	}
}

// WithMetrics enables metrics recording (e.g. metrics.NewPrometheusRecorder).
func WithMetrics(r metrics.Recorder) Option {
	return func(e *EvmPay) {
		e.metrics = r
	}
}

// WithTimeout bounds one full resolution, scan included.
func WithTimeout(t time.Duration) Option {
	return func(e *EvmPay) {
		e.timeout = t
	}
}

// WithHTTPClient replaces the HTTP client used for price index calls.
func WithHTTPClient(c *http.Client) Option {
	return func(e *EvmPay) {
		e.httpClient = c
	}
}

// WithClock overrides the time source used for price-cache expiry.
// Intended for tests and replay tooling.
func WithClock(now func() time.Time) Option {
	return func(e *EvmPay) {
		e.clock = now
	}
}
