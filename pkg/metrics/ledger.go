package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts ledger mutations. All methods are nil-safe.
type LedgerMetrics struct {
	commissionsCreated    *prometheus.CounterVec
	commissionTransitions *prometheus.CounterVec
	withdrawals           *prometheus.CounterVec
	sweepItems            *prometheus.CounterVec
	balanceDrift          prometheus.Gauge
}

func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		commissionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commissions_created_total",
			Help:      "Commissions written by the factory.",
		}, []string{"type", "program"}),
		commissionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_transitions_total",
			Help:      "Commission status transitions.",
		}, []string{"from", "to"}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawal_transitions_total",
			Help:      "Withdrawals entering each status.",
		}, []string{"status"}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_items_total",
			Help:      "Items handled by the validation and release sweeps.",
		}, []string{"sweep", "outcome"}),
		balanceDrift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance_drift_affiliates",
			Help:      "Affiliates whose balance row disagrees with their commissions at the last reconciliation.",
		}),
	}
	reg.MustRegister(m.commissionsCreated, m.commissionTransitions, m.withdrawals, m.sweepItems, m.balanceDrift)
	return m
}

func (m *LedgerMetrics) CommissionCreated(commissionType, program string) {
	if m == nil || m.commissionsCreated == nil {
		return
	}
	m.commissionsCreated.WithLabelValues(normalizeLabel(commissionType), normalizeLabel(program)).Inc()
}

func (m *LedgerMetrics) CommissionTransition(from, to string) {
	if m == nil || m.commissionTransitions == nil {
		return
	}
	m.commissionTransitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *LedgerMetrics) WithdrawalTransition(status string) {
	if m == nil || m.withdrawals == nil {
		return
	}
	m.withdrawals.WithLabelValues(normalizeLabel(status)).Inc()
}

// SweepItems adds n items with the given outcome (processed, skipped, failed).
func (m *LedgerMetrics) SweepItems(sweep, outcome string, n int) {
	if m == nil || m.sweepItems == nil || n <= 0 {
		return
	}
	m.sweepItems.WithLabelValues(normalizeLabel(sweep), normalizeLabel(outcome)).Add(float64(n))
}

func (m *LedgerMetrics) SetBalanceDrift(affiliates int) {
	if m == nil || m.balanceDrift == nil {
		return
	}
	m.balanceDrift.Set(float64(affiliates))
}
