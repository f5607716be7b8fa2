package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ictserve"

type Metrics struct {
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
	queueJobs     *prometheus.CounterVec
	queueDuration *prometheus.HistogramVec
	schedRuns     *prometheus.CounterVec
	schedDuration *prometheus.HistogramVec
	rateLimited   *prometheus.CounterVec
	damageEvents  *prometheus.CounterVec
}

var (
	once sync.Once
	inst *Metrics
)

// Global はプロセス共通のメトリクス（promauto で default registry に一度だけ登録）
func Global() *Metrics {
	once.Do(func() {
		inst = newMetrics()
	})
	return inst
}

func newMetrics() *Metrics {
	return &Metrics{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests labeled by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDurations: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		queueJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Queue job attempts labeled by type and outcome",
		}, []string{"type", "outcome"}),
		queueDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Queue job handler duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		schedRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduled job executions labeled by job and status",
		}, []string{"job", "status"}),
		schedDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduled job executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		rateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Requests rejected by the rate limiter",
		}, []string{"tier"}),
		damageEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crossmodule",
			Name:      "damage_events_total",
			Help:      "Asset-returned-damaged events handled, labeled by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordJob(jobType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queueJobs.WithLabelValues(jobType, outcome).Inc()
	m.queueDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

func (m *Metrics) RecordSchedulerRun(job string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.schedRuns.WithLabelValues(job, status).Inc()
	m.schedDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) RecordRateLimited(tier string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(tier).Inc()
}

// RecordDamageEvent: created / duplicate / skipped
func (m *Metrics) RecordDamageEvent(result string) {
	if m == nil {
		return
	}
	m.damageEvents.WithLabelValues(result).Inc()
}

// Middleware は route テンプレート単位で集計する（パスパラメータで系列が爆発しないように）
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDurations.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func Handler() http.Handler { return promhttp.Handler() }
