package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// LiveSessionClients 当前连接在各场次实时通道上的 websocket 数
	LiveSessionClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_session_ws_clients",
			Help: "Number of websocket clients connected to live session rooms",
		},
	)

	// SessionSeatOutcomes 报名 / 入场结果，outcome: ok, duplicate, full, closed
	SessionSeatOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_session_seat_requests_total",
			Help: "Registration and join attempts by outcome",
		},
		[]string{"action", "outcome"},
	)

	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_session_transitions_total",
			Help: "Live session status transitions",
		},
		[]string{"to"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Calls to the LLM provider",
		},
		[]string{"provider", "outcome"},
	)

	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Latency of LLM provider calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	CertificatesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificates_issued_total",
			Help: "Certificates issued by kind",
		},
		[]string{"kind"},
	)
)

func Init() {
	prometheus.MustRegister(
		RequestCounter,
		RequestDuration,
		LiveSessionClients,
		SessionSeatOutcomes,
		SessionTransitions,
		LLMRequests,
		LLMLatency,
		CertificatesIssued,
	)
}

// ObserveLLM 记录一次模型调用
func ObserveLLM(provider string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	LLMRequests.WithLabelValues(provider, outcome).Inc()
	LLMLatency.WithLabelValues(provider).Observe(time.Since(started).Seconds())
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
