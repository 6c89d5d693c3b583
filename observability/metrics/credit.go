package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type CreditMetrics struct {
	supplies          prometheus.Counter
	withdrawals       prometheus.Counter
	borrows           prometheus.Counter
	repayments        prometheus.Counter
	premiumAccruals   *prometheus.CounterVec
	obligationsPosted prometheus.Counter
	cyclesClosed      prometheus.Counter
	settlements       prometheus.Counter
	statusChecks      *prometheus.CounterVec
	markdownTotal     prometheus.Gauge
	utilisation       prometheus.Gauge
	rpcErrors         *prometheus.CounterVec
}

var (
	creditOnce     sync.Once
	creditRegistry *CreditMetrics
)

func Credit() *CreditMetrics {
	creditOnce.Do(func() {
		creditRegistry = &CreditMetrics{
			supplies: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_supplies_total",
				Help: "Count of successful supply operations.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_withdrawals_total",
				Help: "Count of successful withdraw operations.",
			}),
			borrows: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_borrows_total",
				Help: "Count of successful borrow operations.",
			}),
			repayments: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_repayments_total",
				Help: "Count of successful repayments.",
			}),
			premiumAccruals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "credit_premium_accruals_total",
				Help: "Count of borrower premium accrual passes by mode.",
			}, []string{"mode"}),
			obligationsPosted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_obligations_posted_total",
				Help: "Count of repayment obligations written against borrowers.",
			}),
			cyclesClosed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_cycles_closed_total",
				Help: "Count of payment cycles closed.",
			}),
			settlements: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_settlements_total",
				Help: "Count of defaulted accounts settled.",
			}),
			statusChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "credit_status_checks_total",
				Help: "Count of repayment status reads, by observed status.",
			}, []string{"status"}),
			markdownTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "credit_markdown_total",
				Help: "Aggregate markdown currently subtracted from pool supply.",
			}),
			utilisation: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "credit_market_utilisation",
				Help: "Borrowed assets over supplied assets for the market.",
			}),
			rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "credit_rpc_errors_total",
				Help: "Count of RPC requests rejected, by method.",
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			creditRegistry.supplies,
			creditRegistry.withdrawals,
			creditRegistry.borrows,
			creditRegistry.repayments,
			creditRegistry.premiumAccruals,
			creditRegistry.obligationsPosted,
			creditRegistry.cyclesClosed,
			creditRegistry.settlements,
			creditRegistry.statusChecks,
			creditRegistry.markdownTotal,
			creditRegistry.utilisation,
			creditRegistry.rpcErrors,
		)
	})
	return creditRegistry
}

func (m *CreditMetrics) ObserveSupply() {
	if m == nil {
		return
	}
	m.supplies.Inc()
}

func (m *CreditMetrics) ObserveWithdraw() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

func (m *CreditMetrics) ObserveBorrow() {
	if m == nil {
		return
	}
	m.borrows.Inc()
}

func (m *CreditMetrics) ObserveRepayment() {
	if m == nil {
		return
	}
	m.repayments.Inc()
}

func (m *CreditMetrics) ObservePremiumAccrual(mode string) {
	if m == nil {
		return
	}
	if mode == "" {
		mode = "single"
	}
	m.premiumAccruals.WithLabelValues(mode).Inc()
}

func (m *CreditMetrics) ObserveObligationsPosted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.obligationsPosted.Add(float64(count))
}

func (m *CreditMetrics) ObserveCycleClosed() {
	if m == nil {
		return
	}
	m.cyclesClosed.Inc()
}

func (m *CreditMetrics) ObserveSettlement() {
	if m == nil {
		return
	}
	m.settlements.Inc()
}

func (m *CreditMetrics) ObserveStatusCheck(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.statusChecks.WithLabelValues(status).Inc()
}

func (m *CreditMetrics) SetMarkdownTotal(amount float64) {
	if m == nil {
		return
	}
	m.markdownTotal.Set(amount)
}

func (m *CreditMetrics) SetUtilisation(ratio float64) {
	if m == nil {
		return
	}
	m.utilisation.Set(ratio)
}

func (m *CreditMetrics) IncRPCError(method string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcErrors.WithLabelValues(method).Inc()
}
