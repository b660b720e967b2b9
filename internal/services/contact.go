package services

import (
	"context"
	"net/mail"
	"strings"

	"gorm.io/gorm"

	"madajagad/internal/storage"
)

// ContactInput 为联系表单提交内容。
type ContactInput struct {
	Name    string `json:"name" form:"name"`
	Email   string `json:"email" form:"email"`
	Message string `json:"message" form:"message"`
}

// ContactService 保存并管理访客留言。
type ContactService struct {
	db *gorm.DB
}

func NewContactService(db *gorm.DB) *ContactService { return &ContactService{db: db} }

// Submit 校验并保存留言。
func (s *ContactService) Submit(ctx context.Context, in ContactInput, ip string) (*storage.ContactMessage, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Message = strings.TrimSpace(in.Message)
	var v validator
	v.required("name", in.Name)
	v.required("email", in.Email)
	v.required("message", in.Message)
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			v.fail("email", "invalid")
		}
	}
	if len(in.Name) > 190 {
		v.fail("name", "too_long")
	}
	if len(in.Message) > 5000 {
		v.fail("message", "too_long")
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	msg := &storage.ContactMessage{Name: in.Name, Email: in.Email, Message: in.Message, IPAddress: ip}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// List 按时间倒序返回留言；unreadOnly 为真时仅返回未读。
func (s *ContactService) List(ctx context.Context, unreadOnly bool, limit int) ([]storage.ContactMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	rows := make([]storage.ContactMessage, 0)
	return rows, q.Find(&rows).Error
}

func (s *ContactService) MarkRead(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&storage.ContactMessage{}).Where("id = ?", id).Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ContactService) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&storage.ContactMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadCount 返回未读留言数量。
func (s *ContactService) UnreadCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&storage.ContactMessage{}).Where("is_read = ?", false).Count(&n).Error
	return n, err
}
