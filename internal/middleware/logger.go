package middleware

import (
	"strconv"
	"time"

	"distill-go/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggerMiddleware 日志中间件，同时记录 HTTP 指标
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, endpoint).Observe(latency.Seconds())

		entry := logger.WithFields(logrus.Fields{
			"status":  status,
			"method":  c.Request.Method,
			"path":    path,
			"query":   query,
			"ip":      c.ClientIP(),
			"latency": latency,
			"length":  c.Writer.Size(),
		})
		if username, exists := GetUsername(c); exists {
			entry = entry.WithField("username", username)
		}

		switch {
		case status >= 500:
			entry.Error("HTTP Request")
		case status >= 400:
			entry.Warn("HTTP Request")
		default:
			entry.Debug("HTTP Request")
		}
	}
}
