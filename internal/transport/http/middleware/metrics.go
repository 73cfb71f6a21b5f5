package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests"},
		[]string{"server", "path", "method", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"server", "path", "method"},
	)
	httpInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "Requests being served"},
		[]string{"server"},
	)
)

func init() { prometheus.MustRegister(httpReqTotal, httpLatency, httpInFlight) }

// Metrics server 区分 api/admin；未匹配路由统一记为 unmatched，避免标签爆炸
func Metrics(server string) gin.HandlerFunc {
	inflight := httpInFlight.WithLabelValues(server)
	return func(c *gin.Context) {
		start := time.Now()
		inflight.Inc()
		defer inflight.Dec()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpReqTotal.WithLabelValues(server, path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(server, path, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
