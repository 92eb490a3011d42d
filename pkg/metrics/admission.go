package metrics

import "github.com/prometheus/client_golang/prometheus"

// AdmissionMetrics counts credit and stock admission outcomes and vendor
// race resolutions.
type AdmissionMetrics struct {
	creditDecisions *prometheus.CounterVec
	stockDecisions  *prometheus.CounterVec
	raceOutcomes    *prometheus.CounterVec
	lockRetries     prometheus.Counter
}

// NewAdmissionMetrics registers admission metrics on the provided registerer.
func NewAdmissionMetrics(reg prometheus.Registerer) *AdmissionMetrics {
	if reg == nil {
		return &AdmissionMetrics{}
	}
	creditDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_admission_decisions_total",
		Help: "Credit reservation attempts by outcome.",
	}, []string{"outcome"})
	stockDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_admission_decisions_total",
		Help: "Stock reservation attempts by outcome.",
	}, []string{"outcome"})
	raceOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vendor_race_outcomes_total",
		Help: "acceptWinner resolutions by outcome.",
	}, []string{"outcome"})
	lockRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credit_lock_retries_total",
		Help: "Retries while acquiring the credit account lease.",
	})
	reg.MustRegister(creditDecisions, stockDecisions, raceOutcomes, lockRetries)
	return &AdmissionMetrics{
		creditDecisions: creditDecisions,
		stockDecisions:  stockDecisions,
		raceOutcomes:    raceOutcomes,
		lockRetries:     lockRetries,
	}
}

// ObserveCredit records a credit admission outcome (granted, insufficient,
// blocked, lock_timeout).
func (m *AdmissionMetrics) ObserveCredit(outcome string) {
	if m == nil || m.creditDecisions == nil {
		return
	}
	m.creditDecisions.WithLabelValues(outcome).Inc()
}

// ObserveStock records a stock admission outcome (granted, insufficient).
func (m *AdmissionMetrics) ObserveStock(outcome string) {
	if m == nil || m.stockDecisions == nil {
		return
	}
	m.stockDecisions.WithLabelValues(outcome).Inc()
}

// ObserveRace records an acceptWinner resolution (won, lost, already_accepted).
func (m *AdmissionMetrics) ObserveRace(outcome string) {
	if m == nil || m.raceOutcomes == nil {
		return
	}
	m.raceOutcomes.WithLabelValues(outcome).Inc()
}

// IncLockRetry counts one backoff-and-retry on the credit lease.
func (m *AdmissionMetrics) IncLockRetry() {
	if m == nil || m.lockRetries == nil {
		return
	}
	m.lockRetries.Inc()
}
