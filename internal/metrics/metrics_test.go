package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.InvoicesCreated.Inc()
	m.InvoicesCreated.Inc()
	if got := testutil.ToFloat64(m.InvoicesCreated); got != 2 {
		t.Errorf("invoices created = %v, want 2", got)
	}

	m.ActiveWaits.Inc()
	m.ActiveWaits.Inc()
	m.ActiveWaits.Dec()
	if got := testutil.ToFloat64(m.ActiveWaits); got != 1 {
		t.Errorf("active waits = %v, want 1", got)
	}

	m.RequestsTotal.WithLabelValues("GET", "200").Inc()
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "200")); got != 1 {
		t.Errorf("requests total = %v, want 1", got)
	}
}

// Each instance uses its own registry, so two gateways in one process must
// not collide on collector registration.
func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.PaymentsSent.Inc()
	if got := testutil.ToFloat64(b.PaymentsSent); got != 0 {
		t.Errorf("second instance payments sent = %v, want 0", got)
	}
}
