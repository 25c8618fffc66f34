// Package metrics exposes Prometheus metrics and a /healthz endpoint for
// the simulation engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the simulation engine.
type Metrics struct {
	OrdersPlaced    *prometheus.CounterVec // labels: mode, order_type
	OrdersFilled    *prometheus.CounterVec // labels: mode, product
	OrdersRejected  *prometheus.CounterVec // labels: reason
	OrdersCancelled prometheus.Counter

	EvalDuration prometheus.Histogram
	EvalSkips    prometheus.Counter // quote unavailable, silently retried

	SnapshotSaveDur    prometheus.Histogram
	SnapshotSaveErrors prometheus.Counter

	JournalErrors prometheus.Counter

	PendingOrders prometheus.Gauge

	EventDrops   *prometheus.CounterVec // labels: subscriber
	TickDrops    *prometheus.CounterVec // labels: subscriber
	FeedRestarts prometheus.Counter

	BrokerSubmitDur prometheus.Histogram
	BrokerErrors    prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simengine_orders_placed_total",
			Help: "Total orders accepted by the order gateway",
		}, []string{"mode", "order_type"}),
		OrdersFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simengine_orders_filled_total",
			Help: "Total orders transitioned to EXECUTED",
		}, []string{"mode", "product"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simengine_orders_rejected_total",
			Help: "Total orders transitioned to REJECTED",
		}, []string{"reason"}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_orders_cancelled_total",
			Help: "Total orders cancelled by the user",
		}),
		EvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simengine_eval_duration_seconds",
			Help:    "Duration of one order evaluation including ledger mutation and persistence",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		EvalSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_eval_skips_total",
			Help: "Evaluations skipped because no quote was available",
		}),
		SnapshotSaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simengine_snapshot_save_duration_seconds",
			Help:    "Duration of ledger snapshot persistence",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		SnapshotSaveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_snapshot_save_errors_total",
			Help: "Failed ledger snapshot saves (retried on next mutation)",
		}),
		JournalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_journal_errors_total",
			Help: "Failed trade journal inserts",
		}),
		PendingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simengine_pending_orders",
			Help: "Orders currently armed for evaluation",
		}),
		EventDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simengine_event_drops_total",
			Help: "Events dropped for slow event bus subscribers",
		}, []string{"subscriber"}),
		TickDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simengine_tick_drops_total",
			Help: "Ticks dropped for slow quote subscribers",
		}, []string{"subscriber"}),
		FeedRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_feed_restarts_total",
			Help: "Tick feed reconnection attempts",
		}),
		BrokerSubmitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simengine_broker_submit_duration_seconds",
			Help:    "Duration of real-mode broker order submissions",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		BrokerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simengine_broker_errors_total",
			Help: "Broker submissions failed or timed out",
		}),
	}

	prometheus.MustRegister(
		m.OrdersPlaced, m.OrdersFilled, m.OrdersRejected, m.OrdersCancelled,
		m.EvalDuration, m.EvalSkips,
		m.SnapshotSaveDur, m.SnapshotSaveErrors, m.JournalErrors,
		m.PendingOrders,
		m.EventDrops, m.TickDrops, m.FeedRestarts,
		m.BrokerSubmitDur, m.BrokerErrors,
	)
	return m
}

// HealthStatus tracks dependency health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	StartedAt    time.Time
	Mode         string
	FeedOK       bool
	LastTickTime time.Time

	RedisConnected bool
	RedisLatencyMs float64
	SQLiteOK       bool
	SQLiteLatencyMs float64
	LastCheckAt    time.Time
}

// NewHealthStatus creates a HealthStatus with the start time set.
func NewHealthStatus(mode string) *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), Mode: mode}
}

func (h *HealthStatus) SetFeedOK(v bool) {
	h.mu.Lock()
	h.FeedOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedOK || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Mode            string  `json:"mode"`
		FeedOK          bool    `json:"feed_ok"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Mode:            h.Mode,
		FeedOK:          h.FeedOK,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
