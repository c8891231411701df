package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestDomainMetricsExportCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	quota := NewQuotaMetrics(reg)
	payments := NewPaymentMetrics(reg)
	fanout := NewFanoutMetrics(reg)

	quota.IncDenial("cocks", "QUOTA_EXCEEDED")
	quota.IncDenial("cocks", "QUOTA_EXCEEDED")
	payments.IncWebhook("promoted")
	payments.IncDecision("")
	fanout.Observe(3, 1, 1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "gallotrack_quota_denials_total", "reason", "QUOTA_EXCEEDED"); err != nil || got != 2 {
		t.Fatalf("expected 2 denials, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "gallotrack_payment_webhooks_total", "outcome", "promoted"); err != nil || got != 1 {
		t.Fatalf("expected 1 webhook, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "gallotrack_payment_decisions_total", "state", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty state to normalise to unknown, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "gallotrack_push_deliveries_total", "result", "success"); err != nil || got != 3 {
		t.Fatalf("expected 3 successes, got %f (%v)", got, err)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewQuotaMetrics(nil).IncDenial("cocks", "x")
	NewPaymentMetrics(nil).IncWebhook("x")
	NewFanoutMetrics(nil).Observe(1, 1, 1)

	var q *QuotaMetrics
	q.IncDenial("cocks", "x")
}
