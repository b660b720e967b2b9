package metrics

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标定义：
// - http_requests_total：按路由与方法统计请求次数（附带状态码标签）
// - http_request_duration_seconds：按路由与方法统计请求耗时分布
// - page_visits_total：按设备类型统计页面浏览
// - content_writes_total：按内容类型与动作统计后台写入
// - login_attempts_total：按结果统计登录尝试
// - uploads_total：按存储桶统计成功上传
var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP 请求计数（按路由/方法/状态）"},
		[]string{"path", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP 请求耗时（秒）", Buckets: prometheus.DefBuckets},
		[]string{"path", "method"},
	)
	PageVisits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "page_visits_total", Help: "页面浏览计数（按设备类型）"},
		[]string{"device"},
	)
	ContentWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "content_writes_total", Help: "内容写入计数（按类型/动作）"},
		[]string{"kind", "action"},
	)
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "login_attempts_total", Help: "登录尝试计数（按结果）"},
		[]string{"outcome"},
	)
	Uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "uploads_total", Help: "成功上传计数（按存储桶）"},
		[]string{"bucket"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPLatency, PageVisits, ContentWrites, LoginAttempts, Uploads)
}

// Handler 返回记录基础 HTTP 指标的中间件（QPS/耗时）。
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start).Seconds()
		// 未匹配路由统一归类，避免按原始 URL 产生高基数标签
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPLatency.WithLabelValues(path, c.Request.Method).Observe(dur)
		HTTPRequests.WithLabelValues(path, c.Request.Method, fmt.Sprintf("%d", c.Writer.Status())).Inc()
	}
}

// Exposer 返回标准 Prometheus 暴露处理器。
func Exposer() gin.HandlerFunc { return gin.WrapH(promhttp.Handler()) }
