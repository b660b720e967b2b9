package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"madajagad/internal/config"
	"madajagad/internal/storage"
)

// newTestDB 为每个测试打开独立的内存 SQLite 并完成迁移。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := storage.OpenDialector(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close(db) })
	return db
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret-0123456789abcdef0123456789"
	cfg.Crypto.KeyEncryptionKey = "test-kek"
	return cfg
}
