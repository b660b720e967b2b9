package storage

import (
	"database/sql"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"madajagad/internal/config"
)

// Open 按配置的驱动（mysql/sqlite）打开 GORM 连接，并通过 AutoMigrate 确保表结构存在。
func Open(cfg config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "", "mysql":
		dialector = mysql.Open(cfg.MySQL.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	return OpenDialector(dialector)
}

// OpenDialector 使用给定方言打开连接并执行迁移，测试中可直接传入内存 SQLite。
func OpenDialector(dialector gorm.Dialector) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}
	// 验证底层连接可用
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", dialector.Name(), err)
	}
	if dialector.Name() == "sqlite" {
		// SQLite 单写者，避免 database is locked
		sqlDB.SetMaxOpenConns(1)
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}

// Close 关闭底层 sql.DB 连接。
func Close(db *gorm.DB) {
	if db == nil {
		return
	}
	var s *sql.DB
	var err error
	s, err = db.DB()
	if err == nil && s != nil {
		_ = s.Close()
	}
}
