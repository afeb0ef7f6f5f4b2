package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	awspkg "github.com/dodomiyake/zenhaven/pkg/aws"
)

// HTTPMetrics is the subset of awspkg.MetricsClient the middleware needs.
type HTTPMetrics interface {
	IsEnabled() bool
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
}

// Metrics records request count, latency and error counts per route.
func Metrics(m HTTPMetrics, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || !m.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		dims := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Path":    path,
			"Status":  statusRange(status),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = m.RecordCount(ctx, awspkg.MetricHTTPRequests, dims)
			_ = m.RecordLatency(ctx, awspkg.MetricHTTPLatency, duration, dims)
			switch {
			case status >= 500:
				_ = m.RecordCount(ctx, awspkg.MetricHTTPErrors, dims)
				_ = m.RecordCount(ctx, awspkg.MetricHTTP5xx, dims)
			case status >= 400:
				_ = m.RecordCount(ctx, awspkg.MetricHTTPErrors, dims)
				_ = m.RecordCount(ctx, awspkg.MetricHTTP4xx, dims)
			}
		}()
	}
}

func statusRange(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
