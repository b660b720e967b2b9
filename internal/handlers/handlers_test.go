package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"madajagad/internal/config"
	"madajagad/internal/services"
	"madajagad/internal/storage"
)

// testEnv 为一套基于内存 SQLite 与 miniredis 的完整路由。
type testEnv struct {
	t      *testing.T
	cfg    config.Config
	router *gin.Engine
	deps   Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := storage.OpenDialector(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close(db) })
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Default()
	cfg.Auth.JWTSecret = "handler-test-secret-0123456789abcdef"
	cfg.Upload.Dir = t.TempDir()
	cfg.Limits.LoginPerMinute = 1000
	cfg.Limits.ContactPerMinute = 1000
	cfg.Limits.VisitPerMinute = 1000

	events := services.NewEventBus(rdb)
	catalog := services.NewCatalog(db, events)
	about := services.NewAboutService(db, events)
	contact := services.NewContactService(db)
	deps := Deps{
		DB:       db,
		Redis:    rdb,
		Catalog:  catalog,
		Settings: services.NewSettingService(db, events),
		About:    about,
		Visits:   services.NewVisitService(db, cfg.Analytics),
		Stats:    services.NewDashboardService(catalog, about, contact),
		Users:    services.NewUserService(db, cfg),
		Roles:    services.NewRoleService(db),
		Sessions: services.NewSessionService(rdb, cfg),
		Tokens:   services.NewTokenService(cfg, services.NewRevocationService(rdb)),
		Uploads:  services.NewUploadService(cfg.Upload),
		Contact:  contact,
		Logs:     services.NewLogService(db),
		Events:   events,
	}
	r := gin.New()
	New(cfg, deps).RegisterRoutes(r)
	return &testEnv{t: t, cfg: cfg, router: r, deps: deps}
}

// createUser 创建账号并授予角色。
func (e *testEnv) createUser(email string, roles ...string) *storage.User {
	e.t.Helper()
	ctx := context.Background()
	u, err := e.deps.Users.Create(ctx, email, "correct-horse", "Test User")
	require.NoError(e.t, err)
	for _, r := range roles {
		require.NoError(e.t, e.deps.Roles.Grant(ctx, u.ID, r))
	}
	return u
}

// login 通过 JSON 登录接口获取 Bearer 令牌。
func (e *testEnv) login(email string) string {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "correct-horse"}, "")
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.AccessToken
}

func (e *testEnv) adminToken() string {
	e.createUser("admin@example.com", storage.RoleAdmin)
	return e.login("admin@example.com")
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
