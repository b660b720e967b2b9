package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"madajagad/internal/storage"
)

// LogEntry 为一条待写入的审计日志。
type LogEntry struct {
	Level       string
	Event       string
	UserID      string
	Target      string
	Description string
	IP          string
	RequestID   string
}

// LogQuery 审计日志查询条件。
type LogQuery struct {
	Event  string
	UserID string
	Level  string
	Since  time.Time
	Limit  int
}

// LogService 将审计日志持久化到数据库。
type LogService struct{ db *gorm.DB }

func NewLogService(db *gorm.DB) *LogService { return &LogService{db: db} }

// Write 写入一条审计日志；失败不影响主流程。
func (s *LogService) Write(ctx context.Context, e LogEntry) {
	if s == nil {
		return
	}
	rec := &storage.LogRecord{
		Timestamp:   time.Now(),
		Level:       e.Level,
		Event:       e.Event,
		Target:      e.Target,
		Description: e.Description,
		IPAddress:   e.IP,
		RequestID:   e.RequestID,
	}
	if rec.Level == "" {
		rec.Level = "info"
	}
	if e.UserID != "" {
		uid := e.UserID
		rec.UserID = &uid
	}
	_ = s.db.WithContext(ctx).Create(rec).Error
}

// Query 按条件倒序查询审计日志。
func (s *LogService) Query(ctx context.Context, q LogQuery) ([]storage.LogRecord, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 100
	}
	db := s.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC").Limit(q.Limit)
	if q.Event != "" {
		db = db.Where("event = ?", q.Event)
	}
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.Level != "" {
		db = db.Where("level = ?", q.Level)
	}
	if !q.Since.IsZero() {
		db = db.Where("timestamp >= ?", q.Since)
	}
	rows := make([]storage.LogRecord, 0)
	return rows, db.Find(&rows).Error
}
