package services

import (
	"context"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenIssueVerifyRevoke(t *testing.T) {
	ctx := context.Background()
	rdb, _ := newTestRedis(t)
	cfg := testConfig()
	svc := NewTokenService(cfg, NewRevocationService(rdb))

	raw, claims, err := svc.Issue("user-1", []string{"admin"}, "sid-1")
	require.NoError(t, err)
	require.NotEmpty(t, claims.ID)

	got, err := svc.Verify(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, []string{"admin"}, got.Roles)
	require.Equal(t, "sid-1", got.SID)

	require.NoError(t, svc.Revoke(ctx, claims))
	_, err = svc.Verify(ctx, raw)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestTokenRejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	svc := NewTokenService(cfg, nil)

	other := cfg
	other.Auth.JWTSecret = "another-secret-0123456789abcdef0123"
	raw, _, err := NewTokenService(other, nil).Issue("user-1", nil, "")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, raw)
	require.Error(t, err)

	other = cfg
	other.Auth.Issuer = "someone-else"
	raw, _, err = NewTokenService(other, nil).Issue("user-1", nil, "")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, raw)
	require.Error(t, err)

	expired := cfg
	expired.Auth.AccessTokenTTL = -time.Minute
	raw, _, err = NewTokenService(expired, nil).Issue("user-1", nil, "")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, raw)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1", "iss": cfg.Auth.Issuer})
	raw, err = none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, raw)
	require.Error(t, err)
}

func TestRevocationSkipsExpired(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newTestRedis(t)
	rev := NewRevocationService(rdb)

	require.NoError(t, rev.Revoke(ctx, "old", time.Now().Add(-time.Second)))
	require.False(t, rev.IsRevoked(ctx, "old"))

	require.NoError(t, rev.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	require.True(t, rev.IsRevoked(ctx, "jti-1"))
	mr.FastForward(2 * time.Minute)
	require.False(t, rev.IsRevoked(ctx, "jti-1"))
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newTestRedis(t)
	cfg := testConfig()
	cfg.Session.TTL = time.Hour
	svc := NewSessionService(rdb, cfg)

	sess, err := svc.New(ctx, "user-1", []string{"editor"}, true)
	require.NoError(t, err)
	got, err := svc.Get(ctx, sess.SID)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)
	require.True(t, got.MFA)
	require.Equal(t, []string{"editor"}, got.Roles)

	require.NoError(t, svc.Delete(ctx, sess.SID))
	_, err = svc.Get(ctx, sess.SID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, "")
	require.ErrorIs(t, err, ErrNotFound)

	sess, err = svc.New(ctx, "user-2", nil, false)
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)
	_, err = svc.Get(ctx, sess.SID)
	require.ErrorIs(t, err, ErrNotFound)
}
