package services

// "关于我们"内容：单行当前内容 + 每次保存写入的历史版本。

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"madajagad/internal/storage"
)

// AboutInput 为后台编辑提交的字段。
type AboutInput struct {
	Title       string         `json:"title"`
	Subtitle    *string        `json:"subtitle"`
	Description string         `json:"description"`
	ImageURL    *string        `json:"image_url"`
	Stats       map[string]any `json:"stats"`
}

// AboutService 管理"关于我们"的草稿、发布与历史。
type AboutService struct {
	db     *gorm.DB
	events *EventBus
}

func NewAboutService(db *gorm.DB, events *EventBus) *AboutService {
	return &AboutService{db: db, events: events}
}

func defaultAbout() *storage.AboutContent {
	sub := "Our Story"
	return &storage.AboutContent{
		Title:       "About Us",
		Subtitle:    &sub,
		Description: "Enter your company description here...",
		Stats:       map[string]any{},
		Version:     1,
	}
}

// Current 返回最新一行内容；表为空时写入默认草稿。
func (s *AboutService) Current(ctx context.Context) (*storage.AboutContent, error) {
	var row storage.AboutContent
	err := s.db.WithContext(ctx).Order("created_at DESC").First(&row).Error
	if err == nil {
		return &row, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	def := defaultAbout()
	if err := s.db.WithContext(ctx).Create(def).Error; err != nil {
		return nil, err
	}
	return def, nil
}

// Published 返回最新的已发布内容。
func (s *AboutService) Published(ctx context.Context) (*storage.AboutContent, error) {
	var row storage.AboutContent
	err := s.db.WithContext(ctx).Where("is_published = ?", true).Order("created_at DESC").First(&row).Error
	if err != nil {
		return nil, translateDBError(err)
	}
	return &row, nil
}

// Save 保存编辑：先写入版本号 +1 的历史快照，再以同一版本号更新当前内容。
func (s *AboutService) Save(ctx context.Context, in AboutInput, userID string) (*storage.AboutContent, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	var v validator
	v.required("title", in.Title)
	v.required("description", in.Description)
	if err := v.err(); err != nil {
		return nil, err
	}
	if in.Stats == nil {
		in.Stats = map[string]any{}
	}
	cur, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	next := cur.Version + 1
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hist := &storage.AboutHistory{
			AboutContentID: cur.ID,
			Title:          in.Title,
			Subtitle:       nilIfBlank(in.Subtitle),
			Description:    in.Description,
			ImageURL:       nilIfBlank(in.ImageURL),
			Stats:          in.Stats,
			Version:        next,
		}
		if userID != "" {
			hist.CreatedBy = &userID
		}
		if err := tx.Create(hist).Error; err != nil {
			return err
		}
		cur.Title = hist.Title
		cur.Subtitle = hist.Subtitle
		cur.Description = hist.Description
		cur.ImageURL = hist.ImageURL
		cur.Stats = hist.Stats
		cur.Version = next
		return tx.Save(cur).Error
	})
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, Event{Table: "about", Action: "update", IDs: []string{cur.ID}})
	return cur, nil
}

// TogglePublish 切换发布状态；发布时记录 published_at，取消发布时清空。
func (s *AboutService) TogglePublish(ctx context.Context) (*storage.AboutContent, error) {
	cur, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	cur.IsPublished = !cur.IsPublished
	action := "unpublish"
	if cur.IsPublished {
		now := time.Now()
		cur.PublishedAt = &now
		action = "publish"
	} else {
		cur.PublishedAt = nil
	}
	if err := s.db.WithContext(ctx).Save(cur).Error; err != nil {
		return nil, err
	}
	s.events.Publish(ctx, Event{Table: "about", Action: action, IDs: []string{cur.ID}})
	return cur, nil
}

// History 返回当前内容的历史版本（版本号倒序）。
func (s *AboutService) History(ctx context.Context, limit int) ([]storage.AboutHistory, error) {
	cur, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows := make([]storage.AboutHistory, 0)
	err = s.db.WithContext(ctx).Where("about_content_id = ?", cur.ID).
		Order("version DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Counts 返回内容总数、已发布数与历史版本数。
func (s *AboutService) Counts(ctx context.Context) (total, published, revisions int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&storage.AboutContent{}).Count(&total).Error; err != nil {
		return
	}
	if err = db.Model(&storage.AboutContent{}).Where("is_published = ?", true).Count(&published).Error; err != nil {
		return
	}
	err = db.Model(&storage.AboutHistory{}).Count(&revisions).Error
	return
}
