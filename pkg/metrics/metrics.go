// Package metrics provides the Prometheus registry and the /metrics endpoint.
// All metrics are defined in their respective packages (ratelimit, client,
// cache, harvest, pipeline) to maintain modularity and avoid circular
// dependencies.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by collabgraph.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler exposing the default gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled, then shuts the
// server down gracefully.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - collab_ratelimit_waits_total (Counter): Requests that waited for window capacity
//   - collab_ratelimit_wait_seconds (Histogram): Time spent waiting for window capacity
//   - collab_ratelimit_window_requests (Gauge): Admissions in the current trailing window
//
// Cache Metrics (pkg/cache):
//   - collab_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - collab_cache_misses_total (Counter): Cache misses
//   - collab_cache_size_bytes{layer="redis"} (Gauge): Bytes written to the cache
//   - collab_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - collab_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - collab_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - collab_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - collab_retries_total{error_class} (Counter): Retry attempts by error class
//   - collab_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - collab_retry_exhausted_total{error_class} (Counter): Operations that exhausted max attempts
//
// Pipeline Metrics (internal/pipeline):
//   - collab_artists_total{state} (Counter): Artists by terminal state
//   - collab_edges_written_total (Counter): Edge rows persisted
//   - collab_artist_duration_seconds (Histogram): Wall time per harvested artist
//
// Example Prometheus Queries:
//
//   # Throttled share of requests
//   rate(collab_ratelimit_waits_total[5m]) / rate(collab_requests_total[5m])
//
//   # 429s seen despite client-side limiting
//   rate(collab_requests_total{status="429"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(collab_request_duration_seconds_bucket[5m]))
//
//   # Artists per hour
//   rate(collab_artists_total{state="persisted"}[1h]) * 3600
