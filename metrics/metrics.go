// Package metrics exposes Prometheus counters for the secret lifecycle and
// serves them on a dedicated listener, separate from the API address.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer owns the registry and the HTTP listener. Counters are
// exported fields so handlers and the janitor can increment them directly.
type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server

	SecretsCreated      prometheus.Counter
	SecretsClaimed      prometheus.Counter
	SecretsBurned       prometheus.Counter
	SecretsExpired      prometheus.Counter
	RateLimitRejections prometheus.Counter
	QuotaRejections     prometheus.Counter
}

// New creates a metrics server for the given namespace and listen address.
func New(namespace, listenAddr string) (*MetricsServer, error) {
	// Prometheus identifiers cannot contain dashes.
	namespace = strings.ReplaceAll(namespace, "-", "_")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	m := &MetricsServer{
		registry:            registry,
		SecretsCreated:      counter("secrets_created_total", "Secrets accepted and persisted."),
		SecretsClaimed:      counter("secrets_claimed_total", "Secrets successfully claimed and destroyed."),
		SecretsBurned:       counter("secrets_burned_total", "Secrets destroyed by their owner."),
		SecretsExpired:      counter("secrets_expired_total", "Expired secrets removed by the janitor."),
		RateLimitRejections: counter("ratelimit_rejections_total", "Requests rejected by the rate limiter."),
		QuotaRejections:     counter("quota_rejections_total", "Creates rejected by quota policy."),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	m.srv = &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return m, nil
}

// ListenAndServe blocks serving /metrics until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown stops the listener gracefully.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
