package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics mirrors the protocol statistics and tracks operation outcomes.
type EscrowMetrics struct {
	exchangesCreated  prometheus.Counter
	participants      prometheus.Counter
	giftsSubmitted    prometheus.Counter
	valueTransferred  prometheus.Counter
	claims            *prometheus.CounterVec
	operationFailures *prometheus.CounterVec
	stateTransitions  *prometheus.CounterVec
	vaultBalance      prometheus.Gauge
	batchSize         prometheus.Histogram
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

// Escrow returns the process-wide metrics set, registering it on first use.
func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			exchangesCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gift_escrow_exchanges_total",
				Help: "Number of exchanges created.",
			}),
			participants: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gift_escrow_participants_total",
				Help: "Number of accepted registrations, organizers included.",
			}),
			giftsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gift_escrow_gifts_total",
				Help: "Number of gifts submitted with a valid assignment proof.",
			}),
			valueTransferred: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "gift_escrow_value_transferred_total",
				Help: "Cumulative net value paid out to claimants.",
			}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gift_escrow_claims_total",
				Help: "Claims settled by mode (single, batch).",
			}, []string{"mode"}),
			operationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gift_escrow_operation_failures_total",
				Help: "Rejected operations by operation and error code.",
			}, []string{"operation", "code"}),
			stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "gift_escrow_state_transitions_total",
				Help: "Exchange state transitions by target state.",
			}, []string{"state"}),
			vaultBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "gift_escrow_vault_balance",
				Help: "Vault balance observed after the last value movement.",
			}),
			batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "gift_escrow_batch_claim_size",
				Help:    "Number of exchanges per batch claim.",
				Buckets: []float64{1, 2, 5, 10, 25, 50},
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.exchangesCreated,
			escrowRegistry.participants,
			escrowRegistry.giftsSubmitted,
			escrowRegistry.valueTransferred,
			escrowRegistry.claims,
			escrowRegistry.operationFailures,
			escrowRegistry.stateTransitions,
			escrowRegistry.vaultBalance,
			escrowRegistry.batchSize,
		)
	})
	return escrowRegistry
}

func (m *EscrowMetrics) ObserveExchangeCreated() {
	if m == nil {
		return
	}
	m.exchangesCreated.Inc()
	m.participants.Inc()
}

func (m *EscrowMetrics) ObserveRegistration() {
	if m == nil {
		return
	}
	m.participants.Inc()
}

func (m *EscrowMetrics) ObserveGift() {
	if m == nil {
		return
	}
	m.giftsSubmitted.Inc()
}

// ObserveClaim records a settled claim. count is the number of exchanges
// settled by the payout.
func (m *EscrowMetrics) ObserveClaim(mode string, count int, amount int64) {
	if m == nil {
		return
	}
	if mode == "" {
		mode = "unknown"
	}
	m.claims.WithLabelValues(mode).Add(float64(count))
	m.valueTransferred.Add(float64(amount))
	if mode == "batch" {
		m.batchSize.Observe(float64(count))
	}
}

func (m *EscrowMetrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(state).Inc()
}

func (m *EscrowMetrics) ObserveFailure(operation, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.operationFailures.WithLabelValues(operation, code).Inc()
}

func (m *EscrowMetrics) SetVaultBalance(balance int64) {
	if m == nil {
		return
	}
	m.vaultBalance.Set(float64(balance))
}
