// Package metrics содержит prometheus-метрики расчётного ядра.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics учитывает запуски выплат, исходы по партнёрам, возвраты и приостановки.
type Metrics struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	partners    *prometheus.CounterVec
	paidCents   prometheus.Counter
	refunds     *prometheus.CounterVec
	suspensions prometheus.Counter
}

// New регистрирует метрики в указанном registerer. С nil registerer возвращает пустой набор.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_payout_runs_total",
			Help: "Payout batch runs by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_payout_run_duration_seconds",
			Help:    "Duration of payout batch runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		partners: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_payout_partner_outcomes_total",
			Help: "Per-partner payout outcomes.",
		}, []string{"outcome"}),
		paidCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_payout_paid_cents_total",
			Help: "Total amount paid out to partners in minor currency units.",
		}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_refunds_total",
			Help: "Refund attempts by result.",
		}, []string{"result"}),
		suspensions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_payout_suspensions_total",
			Help: "Partners whose payouts were suspended because of debt.",
		}),
	}
	reg.MustRegister(m.runs, m.runDuration, m.partners, m.paidCents, m.refunds, m.suspensions)
	return m
}

// ObserveRun фиксирует завершённый запуск и его длительность.
func (m *Metrics) ObserveRun(status string, duration time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(status)).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// ObservePartner фиксирует исход выплаты одному партнёру.
func (m *Metrics) ObservePartner(outcome string, paidCents int64) {
	if m == nil || m.partners == nil {
		return
	}
	m.partners.WithLabelValues(normalizeLabel(outcome)).Inc()
	if paidCents > 0 {
		m.paidCents.Add(float64(paidCents))
	}
}

// ObserveRefund фиксирует результат возврата.
func (m *Metrics) ObserveRefund(result string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncSuspension фиксирует приостановку выплат партнёру.
func (m *Metrics) IncSuspension() {
	if m == nil || m.suspensions == nil {
		return
	}
	m.suspensions.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
