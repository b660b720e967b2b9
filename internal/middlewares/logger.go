package middlewares

// 本中间件负责输出结构化访问日志，记录请求 ID、路由、状态码、耗时与客户端 IP。

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger 输出结构化的访问日志；/healthz 与 /metrics 仅在出错时记录。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		status := c.Writer.Status()
		if (path == "/healthz" || path == "/metrics") && status < 400 {
			return
		}
		fields := log.Fields{
			"request_id": RequestIDFrom(c),
			"method":     c.Request.Method,
			"path":       path,
			"route":      c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
		}
		if uid := c.GetString("user_id"); uid != "" {
			fields["user_id"] = uid
		}
		entry := log.WithFields(fields)
		switch {
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Warn("request completed with errors")
		case status >= 500:
			entry.Error("request failed")
		default:
			entry.Info("request completed")
		}
	}
}
