package services

// 会话服务：在 Redis 中创建、读取与删除后台浏览器会话。

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"madajagad/internal/config"
)

// Session 表示登录后的浏览器会话。
// 存储在 Redis：key=session:<sid>，值为 JSON。
type Session struct {
	SID      string    `json:"sid"`
	UserID   string    `json:"user_id"`
	Roles    []string  `json:"roles"`
	AuthTime time.Time `json:"auth_time"`
	MFA      bool      `json:"mfa"`
}

// SessionService 提供会话的创建/读取/删除能力。
type SessionService struct {
	rdb *redis.Client
	cfg config.Config
}

func NewSessionService(rdb *redis.Client, cfg config.Config) *SessionService {
	return &SessionService{rdb: rdb, cfg: cfg}
}

func sessionKey(sid string) string { return fmt.Sprintf("session:%s", sid) }

func (s *SessionService) New(ctx context.Context, userID string, roles []string, mfa bool) (*Session, error) {
	sess := &Session{
		SID: uuid.NewString(), UserID: userID, Roles: roles, AuthTime: time.Now(), MFA: mfa,
	}
	b, _ := json.Marshal(sess)
	if err := s.rdb.Set(ctx, sessionKey(sess.SID), b, s.cfg.Session.TTL).Err(); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get 读取会话；不存在时返回 ErrNotFound。
func (s *SessionService) Get(ctx context.Context, sid string) (*Session, error) {
	if sid == "" {
		return nil, ErrNotFound
	}
	val, err := s.rdb.Get(ctx, sessionKey(sid)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *SessionService) Delete(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, sessionKey(sid)).Err()
}
