package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"madajagad/internal/config"
)

// AccessClaims 为 API 访问令牌的声明。
type AccessClaims struct {
	Roles []string `json:"roles"`
	SID   string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// TokenService 负责签发与校验 HS256 API 访问令牌。
type TokenService struct {
	cfg    config.Config
	revoke *RevocationService
}

func NewTokenService(cfg config.Config, revoke *RevocationService) *TokenService {
	return &TokenService{cfg: cfg, revoke: revoke}
}

// Issue 为用户签发访问令牌，返回令牌串与声明。
func (s *TokenService) Issue(userID string, roles []string, sid string) (string, *AccessClaims, error) {
	now := time.Now()
	claims := &AccessClaims{
		Roles: roles,
		SID:   sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Auth.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.Auth.AccessTokenTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Auth.JWTSecret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Verify 校验签名、有效期、签发者与撤销状态。
func (s *TokenService) Verify(ctx context.Context, raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Auth.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Auth.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("verify token: missing subject")
	}
	if s.revoke != nil && s.revoke.IsRevoked(ctx, claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke 撤销令牌直至其自然过期。
func (s *TokenService) Revoke(ctx context.Context, claims *AccessClaims) error {
	if claims == nil || claims.ExpiresAt == nil || s.revoke == nil {
		return nil
	}
	return s.revoke.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
