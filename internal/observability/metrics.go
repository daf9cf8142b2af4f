package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics mengumpulkan metrik Prometheus untuk HTTP dan operasi kasir.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stockMoved      *prometheus.CounterVec
	stockShortages  prometheus.Counter
	cashMoved       *prometheus.CounterVec
	checkouts       *prometheus.CounterVec
	checkoutFails   *prometheus.CounterVec
	salesAmount     prometheus.Counter
}

// NewMetrics builds a private registry with the HTTP and POS collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_http_request_duration_seconds",
			Help:    "HTTP request latency per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		stockMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_stock_units_total",
			Help: "Stock units moved by kind (deduct, restore, receive, adjust, delete).",
		}, []string{"kind"}),
		stockShortages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_stock_shortages_total",
			Help: "Deductions rejected for insufficient stock.",
		}),
		cashMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_register_cash_total",
			Help: "Cash booked into registers by movement type.",
		}, []string{"type"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_checkouts_total",
			Help: "Completed checkouts by payment status.",
		}, []string{"payment_status"}),
		checkoutFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_checkout_failures_total",
			Help: "Failed checkouts by stage.",
		}, []string{"reason"}),
		salesAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_sales_amount_total",
			Help: "Sum of grand totals of completed checkouts.",
		}),
	}
	registry.MustRegister(m.requestsTotal, m.requestDuration, m.stockMoved, m.stockShortages,
		m.cashMoved, m.checkouts, m.checkoutFails, m.salesAmount)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for job metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// StockMoved counts units leaving or entering batches.
func (m *Metrics) StockMoved(kind string, units int64) {
	if m == nil || units <= 0 {
		return
	}
	m.stockMoved.WithLabelValues(kind).Add(float64(units))
}

// StockShortage counts a rejected deduction.
func (m *Metrics) StockShortage() {
	if m == nil {
		return
	}
	m.stockShortages.Inc()
}

// CashMoved counts register cash by movement type.
func (m *Metrics) CashMoved(kind string, amount decimal.Decimal) {
	if m == nil || !amount.IsPositive() {
		return
	}
	m.cashMoved.WithLabelValues(kind).Add(amount.InexactFloat64())
}

// CheckoutCompleted counts a finished checkout and its grand total.
func (m *Metrics) CheckoutCompleted(status string, grandTotal decimal.Decimal) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(status).Inc()
	if grandTotal.IsPositive() {
		m.salesAmount.Add(grandTotal.InexactFloat64())
	}
}

// CheckoutFailed counts a checkout aborted at the given stage.
func (m *Metrics) CheckoutFailed(reason string) {
	if m == nil {
		return
	}
	m.checkoutFails.WithLabelValues(reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
