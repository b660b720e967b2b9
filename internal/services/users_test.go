package services

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"madajagad/internal/config"
	"madajagad/internal/storage"
	"madajagad/internal/utils"
)

func TestUserCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(newTestDB(t), testConfig())

	u, err := svc.Create(ctx, " Admin@Example.com ", "correct-horse", "Admin")
	require.NoError(t, err)
	require.Equal(t, "admin@example.com", u.Email)
	require.NotEqual(t, "correct-horse", u.Password)

	_, err = svc.Create(ctx, "admin@example.com", "another-pass", "")
	require.ErrorIs(t, err, ErrConflict)
	_, err = svc.Create(ctx, "short@example.com", "short", "")
	require.ErrorIs(t, err, ErrWeakPassword)
	var ve *ValidationError
	_, err = svc.Create(ctx, "not-an-email", "long-enough", "")
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "invalid", ve.Fields["email"])

	_, err = svc.Authenticate(ctx, "admin@example.com", "wrong-pass", "")
	require.ErrorIs(t, err, ErrBadCredentials)
	_, err = svc.Authenticate(ctx, "nobody@example.com", "correct-horse", "")
	require.ErrorIs(t, err, ErrBadCredentials)

	got, err := svc.Authenticate(ctx, "ADMIN@example.com", "correct-horse", "")
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)

	require.NoError(t, svc.SetPassword(ctx, u.ID, "new-password-1"))
	_, err = svc.Authenticate(ctx, "admin@example.com", "new-password-1", "")
	require.NoError(t, err)
	require.ErrorIs(t, svc.SetPassword(ctx, u.ID, "x"), ErrWeakPassword)
}

func TestUserMFAFlow(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(newTestDB(t), testConfig())
	u, err := svc.Create(ctx, "mfa@example.com", "correct-horse", "")
	require.NoError(t, err)

	secret, err := svc.BeginMFA(ctx, u)
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.True(t, utils.IsEncrypted(u.MFAPendingSecret))
	again, err := svc.BeginMFA(ctx, u)
	require.NoError(t, err)
	require.Equal(t, secret, again)
	require.Contains(t, svc.OtpauthURL(u, secret), "otpauth://totp/")

	require.ErrorIs(t, svc.ActivateMFA(ctx, u, "000000x"), ErrInvalidOTP)
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.ActivateMFA(ctx, u, code))
	require.True(t, u.MFAEnabled)
	require.Empty(t, u.MFAPendingSecret)

	_, err = svc.Authenticate(ctx, "mfa@example.com", "correct-horse", "")
	require.ErrorIs(t, err, ErrMFARequired)
	_, err = svc.Authenticate(ctx, "mfa@example.com", "correct-horse", "123")
	require.ErrorIs(t, err, ErrInvalidOTP)
	code, err = totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	got, err := svc.Authenticate(ctx, "mfa@example.com", "correct-horse", code)
	require.NoError(t, err)
	require.NotNil(t, got.MFALastUsedAt)

	require.NoError(t, svc.DisableMFA(ctx, got))
	_, err = svc.Authenticate(ctx, "mfa@example.com", "correct-horse", "")
	require.NoError(t, err)
}

func TestSealPlaintextSecrets(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	plain := NewUserService(db, config.Default())
	u, err := plain.Create(ctx, "legacy@example.com", "correct-horse", "")
	require.NoError(t, err)
	secret, err := plain.BeginMFA(ctx, u)
	require.NoError(t, err)
	require.Equal(t, secret, u.MFAPendingSecret)

	_, err = plain.SealSecrets(ctx, []string{u.ID})
	require.Error(t, err)

	sealed := NewUserService(db, testConfig())
	ids, err := sealed.PlaintextSecrets(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []string{u.ID}, ids)
	n, err := sealed.SealSecrets(ctx, ids)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ids, err = sealed.PlaintextSecrets(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, ids)
	reloaded, err := sealed.FindByID(ctx, u.ID)
	require.NoError(t, err)
	got, err := sealed.PendingSecret(reloaded)
	require.NoError(t, err)
	require.Equal(t, secret, got)
}

func TestEnsureInitialAdmin(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserService(db, testConfig())
	roles := NewRoleService(db)

	u, err := users.EnsureInitialAdmin(ctx, roles, config.InitialAdminConfig{Enable: false, Email: "a@example.com", Password: "admin12345"})
	require.NoError(t, err)
	require.Nil(t, u)

	admin := config.InitialAdminConfig{Enable: true, Email: "root@example.com", Password: "admin12345", Name: "Root"}
	u, err = users.EnsureInitialAdmin(ctx, roles, admin)
	require.NoError(t, err)
	require.NotNil(t, u)
	ok, err := roles.HasAny(ctx, u.ID, []string{storage.RoleAdmin})
	require.NoError(t, err)
	require.True(t, ok)

	// 用户表非空时不再创建
	u, err = users.EnsureInitialAdmin(ctx, roles, admin)
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	roles := NewRoleService(newTestDB(t))

	require.ErrorIs(t, roles.Grant(ctx, "u1", "owner"), ErrInvalidRole)
	require.NoError(t, roles.Grant(ctx, "u1", storage.RoleEditor))
	require.NoError(t, roles.Grant(ctx, "u1", storage.RoleEditor))
	require.NoError(t, roles.Grant(ctx, "u2", storage.RoleViewer))

	got, err := roles.Roles(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{storage.RoleEditor}, got)

	ok, err := roles.HasAny(ctx, "u1", []string{storage.RoleAdmin})
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = roles.HasAny(ctx, "u1", nil)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, roles.Set(ctx, "u1", []string{storage.RoleAdmin, storage.RoleViewer, storage.RoleAdmin}))
	byUser, err := roles.RolesOf(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	require.Equal(t, []string{storage.RoleAdmin, storage.RoleViewer}, byUser["u1"])
	require.Equal(t, []string{storage.RoleViewer}, byUser["u2"])
	require.Empty(t, byUser["u3"])

	require.ErrorIs(t, roles.Set(ctx, "u1", []string{"root"}), ErrInvalidRole)
	require.NoError(t, roles.Revoke(ctx, "u1", storage.RoleViewer))
	got, err = roles.Roles(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{storage.RoleAdmin}, got)
}
