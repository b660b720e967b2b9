package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 本文件定义站点与后台使用的所有 GORM 模型，集中管理数据结构。

// Meta 为所有可发布内容共享的字段：主键、可见性与排序。
type Meta struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	IsPublished bool      `gorm:"index" json:"is_published"`
	SortOrder   int       `gorm:"index" json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetMeta 供泛型内容服务访问公共字段。
func (m *Meta) GetMeta() *Meta { return m }

// BeforeCreate 在插入前补齐 UUID 主键。
func (m *Meta) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type Service struct {
	Meta
	Title       string `gorm:"size:190" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Icon        string `gorm:"size:64" json:"icon"`
	Color       string `gorm:"size:64" json:"color"`
	BgColor     string `gorm:"size:64" json:"bg_color"`
}

type Project struct {
	Meta
	Title       string   `gorm:"size:190" json:"title"`
	Description string   `gorm:"type:text" json:"description"`
	Year        string   `gorm:"size:16" json:"year"`
	Location    string   `gorm:"size:190" json:"location"`
	Tags        []string `gorm:"serializer:json;type:text" json:"tags"`
	ImageURL    *string  `gorm:"size:512" json:"image_url"`
}

type TeamMember struct {
	Meta
	Name      string  `gorm:"size:190" json:"name"`
	Position  string  `gorm:"size:190" json:"position"`
	Initials  string  `gorm:"size:8" json:"initials"`
	Bio       *string `gorm:"type:text" json:"bio"`
	AvatarURL *string `gorm:"size:512" json:"avatar_url"`
}

type Testimonial struct {
	Meta
	Quote   string  `gorm:"type:text" json:"quote"`
	Author  string  `gorm:"size:190" json:"author"`
	Role    string  `gorm:"size:190" json:"role"`
	Company *string `gorm:"size:190" json:"company"`
}

// OrgMember 对应 organization_structure 表；Level：1=高层，2=中层，3=员工。
type OrgMember struct {
	Meta
	Name     string `gorm:"size:190" json:"name"`
	Position string `gorm:"size:190" json:"position"`
	Level    int    `gorm:"index" json:"level"`
}

func (OrgMember) TableName() string { return "organization_structure" }

// AboutContent 为"关于我们"版块的当前内容，每次保存版本号 +1。
type AboutContent struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	Title       string         `gorm:"size:190" json:"title"`
	Subtitle    *string        `gorm:"size:190" json:"subtitle"`
	Description string         `gorm:"type:text" json:"description"`
	ImageURL    *string        `gorm:"size:512" json:"image_url"`
	Stats       map[string]any `gorm:"serializer:json;type:text" json:"stats"`
	Version     int            `json:"version"`
	IsPublished bool           `gorm:"index" json:"is_published"`
	PublishedAt *time.Time     `json:"published_at"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (AboutContent) TableName() string { return "about_content" }

func (a *AboutContent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// AboutHistory 保存每次编辑前写入的快照。
type AboutHistory struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	AboutContentID string         `gorm:"size:36;index" json:"about_content_id"`
	Title          string         `gorm:"size:190" json:"title"`
	Subtitle       *string        `gorm:"size:190" json:"subtitle"`
	Description    string         `gorm:"type:text" json:"description"`
	ImageURL       *string        `gorm:"size:512" json:"image_url"`
	Stats          map[string]any `gorm:"serializer:json;type:text" json:"stats"`
	Version        int            `gorm:"index" json:"version"`
	CreatedBy      *string        `gorm:"size:36" json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (AboutHistory) TableName() string { return "about_content_history" }

func (a *AboutHistory) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

type SiteSetting struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Key       string    `gorm:"size:190;uniqueIndex"`
	Value     string    `gorm:"type:text"`
	UpdatedAt time.Time
}

func (s *SiteSetting) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// PageVisit 每次页面浏览写入一行，离开页面时回写停留时长（秒）。
type PageVisit struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	VisitorID  string    `gorm:"size:64;index" json:"visitor_id"`
	Path       string    `gorm:"size:255;index" json:"path"`
	Referrer   *string   `gorm:"size:512" json:"referrer"`
	DeviceType string    `gorm:"size:16;index" json:"device_type"`
	Duration   int       `json:"duration"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (v *PageVisit) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

type User struct {
	ID               string `gorm:"primaryKey;size:36"`
	Email            string `gorm:"size:190;uniqueIndex"`
	Password         string `gorm:"size:255"` // 已哈希的口令
	Name             string `gorm:"size:190"`
	MFAEnabled       bool   `gorm:"index"`
	MFASecret        string `gorm:"size:255"` // 配置 key_encryption_key 时为密文
	MFAPendingSecret string `gorm:"size:255"`
	MFAEnrolledAt    *time.Time
	MFALastUsedAt    *time.Time
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return nil
}

// 角色取值。
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

type UserRole struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"size:36;uniqueIndex:idx_user_role"`
	Role      string `gorm:"size:16;uniqueIndex:idx_user_role"`
	CreatedAt time.Time
}

func (r *UserRole) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ContactMessage 保存访客通过联系表单提交的留言。
type ContactMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:190" json:"name"`
	Email     string    `gorm:"size:190" json:"email"`
	Message   string    `gorm:"type:text" json:"message"`
	IPAddress string    `gorm:"size:64" json:"ip"`
	IsRead    bool      `gorm:"index" json:"is_read"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (m *ContactMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// LogRecord 为后台审计日志。
type LogRecord struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
	Level       string    `gorm:"size:16;index" json:"level"`
	Event       string    `gorm:"size:64;index" json:"event"`
	UserID      *string   `gorm:"size:36;index" json:"user_id"`
	Target      string    `gorm:"size:190;index" json:"target"`
	Description string    `gorm:"type:text" json:"description"`
	IPAddress   string    `gorm:"size:64" json:"ip"`
	RequestID   string    `gorm:"size:64;index" json:"request_id"`
}

func (LogRecord) TableName() string { return "audit_logs" }

// autoMigrate 执行数据库自动迁移。
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Service{}, &Project{}, &TeamMember{}, &Testimonial{}, &OrgMember{},
		&AboutContent{}, &AboutHistory{}, &SiteSetting{}, &PageVisit{},
		&User{}, &UserRole{}, &ContactMessage{}, &LogRecord{},
	)
}
