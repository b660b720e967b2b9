package services

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"madajagad/internal/storage"
)

// RoleService 管理 user_roles 表。
type RoleService struct {
	db *gorm.DB
}

func NewRoleService(db *gorm.DB) *RoleService { return &RoleService{db: db} }

// ValidRole 判断角色取值是否合法。
func ValidRole(role string) bool {
	switch role {
	case storage.RoleAdmin, storage.RoleEditor, storage.RoleViewer:
		return true
	}
	return false
}

// Roles 返回用户持有的全部角色。
func (s *RoleService) Roles(ctx context.Context, userID string) ([]string, error) {
	roles := make([]string, 0)
	err := s.db.WithContext(ctx).Model(&storage.UserRole{}).
		Where("user_id = ?", userID).Order("role").Pluck("role", &roles).Error
	return roles, err
}

// RolesOf 批量查询多个用户的角色。
func (s *RoleService) RolesOf(ctx context.Context, userIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []storage.UserRole
	if err := s.db.WithContext(ctx).Where("user_id IN ?", userIDs).Order("role").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.UserID] = append(out[r.UserID], r.Role)
	}
	return out, nil
}

// HasAny 判断用户是否持有 allow 中的任一角色。
func (s *RoleService) HasAny(ctx context.Context, userID string, allow []string) (bool, error) {
	if len(allow) == 0 {
		return false, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&storage.UserRole{}).
		Where("user_id = ? AND role IN ?", userID, allow).Count(&n).Error
	return n > 0, err
}

// Grant 授予角色（已存在时忽略）。
func (s *RoleService) Grant(ctx context.Context, userID, role string) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&storage.UserRole{UserID: userID, Role: role}).Error
}

// Revoke 撤销角色。
func (s *RoleService) Revoke(ctx context.Context, userID, role string) error {
	return s.db.WithContext(ctx).Where("user_id = ? AND role = ?", userID, role).Delete(&storage.UserRole{}).Error
}

// Set 以给定列表整体替换用户角色。
func (s *RoleService) Set(ctx context.Context, userID string, roles []string) error {
	for _, r := range roles {
		if !ValidRole(r) {
			return ErrInvalidRole
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&storage.UserRole{}).Error; err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, r := range roles {
			if seen[r] {
				continue
			}
			seen[r] = true
			if err := tx.Create(&storage.UserRole{UserID: userID, Role: r}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
