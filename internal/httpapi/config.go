package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"lightserve/internal/config"
	"lightserve/internal/metrics"
)

// DefaultMaxBodyBytes is used when Options.MaxBodyBytes is not positive.
const DefaultMaxBodyBytes int64 = 1 << 20

// Options configures the router.
type Options struct {
	// MaxBodyBytes limits JSON request bodies (413 on overflow).
	MaxBodyBytes int64
	// RequestTimeout bounds each backend call. Zero disables it.
	RequestTimeout time.Duration
	// BaseContext is the process-level context; cancelling it cancels every
	// outstanding backend call.
	BaseContext context.Context
	Logger      zerolog.Logger
	CORS        config.CORSConfig
	// Metrics instruments requests when set.
	Metrics *metrics.HTTPMetrics
	// MetricsHandler serves /metrics; defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

func (o *Options) applyDefaults() {
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.RequestTimeout < 0 {
		o.RequestTimeout = 0
	}
	if o.BaseContext == nil {
		o.BaseContext = context.Background()
	}
	if len(o.CORS.AllowedMethods) == 0 {
		o.CORS.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(o.CORS.AllowedHeaders) == 0 {
		o.CORS.AllowedHeaders = []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"}
	}
}
