// Package metrics provides Prometheus instrumentation for the betting
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DeclarationsTotal counts result declarations, partitioned by outcome
	// ("success", "rejected", "error").
	DeclarationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "damru_declarations_total",
		Help: "Total result declarations processed",
	}, []string{"outcome"})

	// SettlementDuration tracks how long settling one market's batch takes.
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "damru_settlement_duration_seconds",
		Help:    "Duration of one declaration's settlement batch",
		Buckets: prometheus.DefBuckets,
	})

	// BetsSettledTotal counts settled bets by result
	// ("won", "lost", "failed", "malformed").
	BetsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "damru_bets_settled_total",
		Help: "Total bets settled by result",
	}, []string{"result"})

	// BetsPlacedTotal counts accepted bets by game type.
	BetsPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "damru_bets_placed_total",
		Help: "Total bets accepted",
	}, []string{"game_type"})

	// WalletCreditFailures counts reward credits that failed during
	// settlement (owner missing or store error).
	WalletCreditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "damru_wallet_credit_failures_total",
		Help: "Reward credits that failed during settlement",
	})

	// ArchiveFailures counts best-effort historical writes that failed.
	ArchiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "damru_archive_failures_total",
		Help: "Historical result writes that failed",
	})

	// WindowFlips counts betting-flag changes made by the scheduler.
	WindowFlips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "damru_window_flips_total",
		Help: "Betting window open/close flips by the scheduler",
	}, []string{"to"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "damru_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "damru_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "damru_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
