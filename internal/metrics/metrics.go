package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blitzid/internal/logging"
)

// Metrics bundles the gateway's Prometheus collectors on a private
// registry so multiple instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	InvoicesCreated prometheus.Counter
	PaymentsSent    prometheus.Counter
	ActiveWaits     prometheus.Gauge
}

// New creates and registers the gateway collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blitzid",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
		InvoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitzid",
			Name:      "invoices_created_total",
			Help:      "Invoices issued through the gateway.",
		}),
		PaymentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blitzid",
			Name:      "payments_sent_total",
			Help:      "Outgoing payments completed through the gateway.",
		}),
		ActiveWaits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blitzid",
			Name:      "active_invoice_waits",
			Help:      "Long-poll invoice waits currently in flight.",
		}),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.InvoicesCreated,
		m.PaymentsSent,
		m.ActiveWaits,
	)
	return m
}

// Start serves the /metrics endpoint on its own listener. It returns the
// server so the caller can shut it down.
func (m *Metrics) Start(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Metrics.Printf("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Metrics.Printf("metrics server: %v", err)
		}
	}()

	return srv
}
