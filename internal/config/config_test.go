package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaultDocsDisabled(t *testing.T) {
	cfg := Default()
	require.False(t, cfg.Docs.Enable)
	require.Equal(t, "/docs", cfg.Docs.Route)
}

func TestLoadFileYAMLOverlay(t *testing.T) {
	p := writeFile(t, "config.yaml", `
env: prod
site_url: https://madajagadmulia.com/
database:
  driver: SQLite
sqlite:
  path: /var/lib/cms.db
session:
  cookie_secure: true
  ttl: 2h
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
  allow_signup: false
upload:
  public_path: /media/
analytics:
  retention: 720h
  bounce_seconds: 15
bootstrap:
  initial_admin:
    enable: false
`)
	cfg, err := LoadFile(p)
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "https://madajagadmulia.com", cfg.SiteURL)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "/var/lib/cms.db", cfg.SQLite.Path)
	require.True(t, cfg.Session.CookieSecure)
	require.Equal(t, 2*time.Hour, cfg.Session.TTL)
	require.False(t, cfg.Auth.AllowSignup)
	require.Equal(t, "/media", cfg.Upload.PublicPath)
	require.Equal(t, 720*time.Hour, cfg.Analytics.Retention)
	require.Equal(t, 15, cfg.Analytics.BounceSeconds)
	require.False(t, cfg.Bootstrap.InitialAdmin.Enable)

	// 未出现的字段保留默认值
	require.Equal(t, "cms_session", cfg.Session.CookieName)
	require.Equal(t, []string{"admin", "editor"}, cfg.Auth.LoginRoles)
	require.Equal(t, 30, cfg.Analytics.WindowDays)
	require.Equal(t, int64(5<<20), cfg.Upload.MaxBytes)
}

func TestLoadFileJSONAndErrors(t *testing.T) {
	p := writeFile(t, "config.json", `{"http_addr":":9090","limits":{"window":"bogus","login_per_minute":3}}`)
	cfg, err := LoadFile(p)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, 3, cfg.Limits.LoginPerMinute)
	require.Equal(t, time.Minute, cfg.Limits.WindowOrDefault())

	_, err = LoadFile(writeFile(t, "config.toml", "x = 1"))
	require.Error(t, err)
	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	m := MySQLConfig{User: "cms", Password: "s3cret"}
	require.Equal(t, "cms:s3cret@tcp(127.0.0.1:3306)/madajagad?parseTime=true&loc=Local&charset=utf8mb4,utf8", m.DSN())
	require.Contains(t, m.DSNMasked(), "cms:******@")
}
