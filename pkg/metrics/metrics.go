package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "d2d_treasury_build_info",
			Help: "Build information of the D2D treasury service",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "d2d_treasury_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "d2d_treasury_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "d2d_treasury_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Ledger instruction metrics
	InstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "d2d_treasury_instructions_total",
			Help: "Total number of ledger instructions processed",
		},
		[]string{"instruction", "status"},
	)

	InstructionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "d2d_treasury_instruction_duration_seconds",
			Help:    "Duration of ledger instructions including the durable commit",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4.1s
		},
		[]string{"instruction"},
	)

	EventSequence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "d2d_treasury_event_sequence",
			Help: "Sequence number of the most recently committed event",
		},
	)

	PoolBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "d2d_treasury_pool_balance_lamports",
			Help: "Tracked pool balances in lamports",
		},
		[]string{"pool"}, // "total_deposited", "liquid", "borrowed", "reward", "platform"
	)

	EmergencyPause = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "d2d_treasury_emergency_pause",
			Help: "Whether the emergency pause is active (1) or not (0)",
		},
	)

	// Subscription sweeper metrics
	SweepTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "d2d_treasury_subscription_sweeps_total",
			Help: "Total number of expired-subscription sweeps",
		},
		[]string{"status"},
	)

	SweepExpiredPrograms = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "d2d_treasury_subscription_sweep_expired_total",
			Help: "Total number of programs moved to SubscriptionExpired by the sweeper",
		},
	)

	// Vault reconciler metrics
	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "d2d_treasury_reconcile_total",
			Help: "Total number of vault reconciliation passes",
		},
		[]string{"status"},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "d2d_treasury_reconcile_duration_seconds",
			Help:    "Duration of vault reconciliation passes",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
	)

	VaultDrift = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "d2d_treasury_vault_drift_lamports",
			Help: "On-chain vault balance minus tracked balance, in lamports",
		},
		[]string{"vault"}, // "treasury", "reward", "platform"
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "d2d_treasury_notifications_total",
			Help: "Total number of Slack notifications sent",
		},
		[]string{"kind", "status"},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordInstruction records one ledger instruction attempt.
func RecordInstruction(instruction string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	InstructionsTotal.WithLabelValues(instruction, status).Inc()
	InstructionDuration.WithLabelValues(instruction).Observe(duration.Seconds())
}

// RecordSweep records one expired-subscription sweep pass.
func RecordSweep(expired int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SweepTotal.WithLabelValues(status).Inc()
	if expired > 0 {
		SweepExpiredPrograms.Add(float64(expired))
	}
}

// RecordReconcile records one vault reconciliation pass.
func RecordReconcile(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ReconcileTotal.WithLabelValues(status).Inc()
	ReconcileDuration.Observe(duration.Seconds())
}

// RecordNotification records one Slack notification attempt.
func RecordNotification(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// SetPoolBalances refreshes the tracked balance gauges after a commit.
func SetPoolBalances(totalDeposited, liquid, borrowed, reward, platform uint64) {
	PoolBalance.WithLabelValues("total_deposited").Set(float64(totalDeposited))
	PoolBalance.WithLabelValues("liquid").Set(float64(liquid))
	PoolBalance.WithLabelValues("borrowed").Set(float64(borrowed))
	PoolBalance.WithLabelValues("reward").Set(float64(reward))
	PoolBalance.WithLabelValues("platform").Set(float64(platform))
}

// SetEmergencyPause mirrors the pause flag.
func SetEmergencyPause(paused bool) {
	if paused {
		EmergencyPause.Set(1)
		return
	}
	EmergencyPause.Set(0)
}

// SetVaultDrift records the signed drift for one vault.
func SetVaultDrift(vault string, drift int64) {
	VaultDrift.WithLabelValues(vault).Set(float64(drift))
}
