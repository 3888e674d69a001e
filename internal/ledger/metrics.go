package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	kindLock     = "lock"
	kindTransfer = "transfer"
)

// Metrics holds Prometheus metrics for the ledger.
//
// Metrics:
//   - ledger_moves_total{kind,result} - lock/transfer attempts by outcome
//   - ledger_moved_amount_total{kind} - units moved by successful calls
//   - ledger_accounts - accounts with a recorded balance
type Metrics struct {
	MovesTotal       *prometheus.CounterVec
	MovedAmountTotal *prometheus.CounterVec
	Accounts         prometheus.Gauge
}

// NewMetrics creates ledger metrics registered on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MovesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_moves_total",
				Help: "Total number of ledger lock and transfer calls",
			},
			[]string{"kind", "result"},
		),
		MovedAmountTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_moved_amount_total",
				Help: "Total units moved by successful ledger calls",
			},
			[]string{"kind"},
		),
		Accounts: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_accounts",
			Help: "Number of accounts with a recorded balance",
		}),
	}
}

func (m *Metrics) observe(kind string, amount uint64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.MovesTotal.WithLabelValues(kind, "error").Inc()
		return
	}
	m.MovesTotal.WithLabelValues(kind, "ok").Inc()
	m.MovedAmountTotal.WithLabelValues(kind).Add(float64(amount))
}

func (m *Metrics) setAccounts(n int) {
	if m == nil {
		return
	}
	m.Accounts.Set(float64(n))
}
