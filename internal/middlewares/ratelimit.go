package middlewares

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// RateLimit 返回一个使用 Redis INCR+TTL 的固定窗口限流中间件。
// keyFn 用于构建请求者唯一键（如按 IP）；返回空串时不限流。Redis 不可用时放行。
func RateLimit(rdb *redis.Client, prefix string, limit int, window time.Duration, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" || limit <= 0 {
			c.Next()
			return
		}
		rkey := fmt.Sprintf("rl:%s:%s", prefix, key)
		// 第一次自增时同时设置 TTL 窗口
		cnt, err := rdb.Incr(c, rkey).Result()
		if err != nil {
			log.WithError(err).WithField("prefix", prefix).Warn("rate limit check failed")
			c.Next()
			return
		}
		if cnt == 1 {
			_ = rdb.Expire(c, rkey, window).Err()
		}
		remaining := int64(limit) - cnt
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if cnt > int64(limit) {
			retry := window
			if ttl, err := rdb.PTTL(c, rkey).Result(); err == nil && ttl > 0 {
				retry = ttl
			}
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			c.AbortWithStatusJSON(429, gin.H{"error": "rate_limited"})
			return
		}
		c.Next()
	}
}

// ByIP 按客户端 IP 限流。
func ByIP(c *gin.Context) string { return c.ClientIP() }
