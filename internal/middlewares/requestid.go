package middlewares

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID 中间件：生成或透传 X-Request-Id（格式非法时重新生成），保存到 Gin Context，并回写响应头。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.Request.Header.Get("X-Request-Id")
		if !requestIDPattern.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set("request_id", rid)
		c.Writer.Header().Set("X-Request-Id", rid)
		c.Next()
	}
}

// RequestIDFrom 读取当前请求的 ID。
func RequestIDFrom(c *gin.Context) string { return c.GetString("request_id") }
