package metrics

import "github.com/prometheus/client_golang/prometheus"

// QuotaMetrics counts admission denials.
type QuotaMetrics struct {
	denials *prometheus.CounterVec
}

// NewQuotaMetrics registers the quota counters on the provided registerer.
func NewQuotaMetrics(reg prometheus.Registerer) *QuotaMetrics {
	if reg == nil {
		return &QuotaMetrics{}
	}
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "quota_denials_total",
		Help:      "Admission checks that denied a write.",
	}, []string{"kind", "reason"})
	reg.MustRegister(denials)
	return &QuotaMetrics{denials: denials}
}

// IncDenial records one denied admission for kind.
func (q *QuotaMetrics) IncDenial(kind, reason string) {
	if q == nil || q.denials == nil {
		return
	}
	q.denials.WithLabelValues(normalizeLabel(kind), normalizeLabel(reason)).Inc()
}

// PaymentMetrics tracks webhook outcomes and admin decisions.
type PaymentMetrics struct {
	webhooks  *prometheus.CounterVec
	decisions *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment counters on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "payment_webhooks_total",
		Help:      "Processor webhooks by outcome.",
	}, []string{"outcome"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "payment_decisions_total",
		Help:      "Pending payment decisions by resulting state.",
	}, []string{"state"})
	reg.MustRegister(webhooks, decisions)
	return &PaymentMetrics{webhooks: webhooks, decisions: decisions}
}

// IncWebhook records a webhook outcome such as promoted, ignored or replay.
func (p *PaymentMetrics) IncWebhook(outcome string) {
	if p == nil || p.webhooks == nil {
		return
	}
	p.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncDecision records a terminal payment state.
func (p *PaymentMetrics) IncDecision(state string) {
	if p == nil || p.decisions == nil {
		return
	}
	p.decisions.WithLabelValues(normalizeLabel(state)).Inc()
}

// FanoutMetrics counts push deliveries.
type FanoutMetrics struct {
	delivered   *prometheus.CounterVec
	invalidated prometheus.Counter
}

// NewFanoutMetrics registers the push delivery counters.
func NewFanoutMetrics(reg prometheus.Registerer) *FanoutMetrics {
	if reg == nil {
		return &FanoutMetrics{}
	}
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "push_deliveries_total",
		Help:      "Push deliveries by result.",
	}, []string{"result"})
	invalidated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "push_tokens_invalidated_total",
		Help:      "Device tokens deactivated after a permanent provider failure.",
	})
	reg.MustRegister(delivered, invalidated)
	return &FanoutMetrics{delivered: delivered, invalidated: invalidated}
}

// Observe adds one fanout summary.
func (f *FanoutMetrics) Observe(success, failure, invalidated int) {
	if f == nil || f.delivered == nil {
		return
	}
	f.delivered.WithLabelValues("success").Add(float64(success))
	f.delivered.WithLabelValues("failure").Add(float64(failure))
	f.invalidated.Add(float64(invalidated))
}

// OutboxMetrics counts relay outcomes per event type.
type OutboxMetrics struct {
	events *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox relay counter.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox rows handled by the relay, by outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &OutboxMetrics{events: events}
}

// Inc records one row settled as published, retry or parked.
func (o *OutboxMetrics) Inc(eventType, outcome string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
