package services

// 撤销服务：将 API 令牌的 jti 写入黑名单并设置 TTL，供后续校验拦截。

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RevocationService 提供访问令牌撤销（黑名单）能力。
type RevocationService struct{ rdb *redis.Client }

func NewRevocationService(rdb *redis.Client) *RevocationService { return &RevocationService{rdb: rdb} }

func (s *RevocationService) atKey(jti string) string { return fmt.Sprintf("bl:at:%s", jti) }

// Revoke 将 jti 标记为撤销状态，TTL 直至令牌过期；已过期的令牌无需记录。
func (s *RevocationService) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if jti == "" || ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, s.atKey(jti), "1", ttl).Err()
}

// IsRevoked 判断 jti 是否已被撤销。
func (s *RevocationService) IsRevoked(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}
	val, err := s.rdb.Get(ctx, s.atKey(jti)).Result()
	return err == nil && val == "1"
}
