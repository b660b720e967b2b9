package services

// 通用内容服务：服务项目、案例、团队、客户评价与组织架构五类可发布内容共用同一套 CRUD、
// 批量发布/删除与排序逻辑，差异（排序字段、规范化、校验）由 Kind 描述。

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"madajagad/internal/storage"
)

// Entity 为可发布内容模型需满足的约束（嵌入 storage.Meta 即可）。
type Entity interface {
	GetMeta() *storage.Meta
}

// Kind 描述一类内容的表名、排序与校验规则。
type Kind[T any] struct {
	// Name 用作事件表名与 URL 段，例如 services、team
	Name      string
	Order     []string
	Normalize func(*T)
	Validate  func(*T) error
}

// ContentService 提供单类内容的读写能力。
type ContentService[T any, PT interface {
	*T
	Entity
}] struct {
	db     *gorm.DB
	kind   Kind[T]
	events *EventBus
}

func NewContentService[T any, PT interface {
	*T
	Entity
}](db *gorm.DB, kind Kind[T], events *EventBus) *ContentService[T, PT] {
	return &ContentService[T, PT]{db: db, kind: kind, events: events}
}

// Kind 返回内容类型名。
func (s *ContentService[T, PT]) Kind() string { return s.kind.Name }

func (s *ContentService[T, PT]) ordered(q *gorm.DB) *gorm.DB {
	for _, col := range s.kind.Order {
		q = q.Order(col)
	}
	return q.Order("created_at")
}

// ListPublished 仅返回 is_published = true 的记录，按排序字段升序。
func (s *ContentService[T, PT]) ListPublished(ctx context.Context) ([]T, error) {
	rows := make([]T, 0)
	q := s.db.WithContext(ctx).Where("is_published = ?", true)
	if err := s.ordered(q).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAll 返回全部记录（后台列表）。
func (s *ContentService[T, PT]) ListAll(ctx context.Context) ([]T, error) {
	rows := make([]T, 0)
	if err := s.ordered(s.db.WithContext(ctx)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ContentService[T, PT]) Get(ctx context.Context, id string) (*T, error) {
	var row T
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translateDBError(err)
	}
	return &row, nil
}

func (s *ContentService[T, PT]) prepare(in *T) error {
	if s.kind.Normalize != nil {
		s.kind.Normalize(in)
	}
	if s.kind.Validate != nil {
		return s.kind.Validate(in)
	}
	return nil
}

// Create 新建记录；sort_order 为 0 时追加到末尾。
func (s *ContentService[T, PT]) Create(ctx context.Context, in *T) error {
	if err := s.prepare(in); err != nil {
		return err
	}
	meta := PT(in).GetMeta()
	meta.ID = ""
	if meta.SortOrder == 0 {
		next, err := s.nextSortOrder(ctx)
		if err != nil {
			return err
		}
		meta.SortOrder = next
	}
	if err := s.db.WithContext(ctx).Create(in).Error; err != nil {
		return translateDBError(err)
	}
	s.events.Publish(ctx, Event{Table: s.kind.Name, Action: "create", IDs: []string{meta.ID}})
	return nil
}

func (s *ContentService[T, PT]) nextSortOrder(ctx context.Context) (int, error) {
	var max sql.NullInt64
	if err := s.db.WithContext(ctx).Model(new(T)).Select("MAX(sort_order)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

// Update 以整行覆盖的方式更新记录（保留 ID 与创建时间）；需要部分更新的调用方应先 Get 再修改。
func (s *ContentService[T, PT]) Update(ctx context.Context, id string, in *T) (*T, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.prepare(in); err != nil {
		return nil, err
	}
	meta := PT(in).GetMeta()
	meta.ID = id
	meta.CreatedAt = PT(existing).GetMeta().CreatedAt
	if err := s.db.WithContext(ctx).Save(in).Error; err != nil {
		return nil, translateDBError(err)
	}
	s.events.Publish(ctx, Event{Table: s.kind.Name, Action: "update", IDs: []string{id}})
	return in, nil
}

func (s *ContentService[T, PT]) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.events.Publish(ctx, Event{Table: s.kind.Name, Action: "delete", IDs: []string{id}})
	return nil
}

// SetPublished 批量发布/取消发布，返回受影响行数。
func (s *ContentService[T, PT]) SetPublished(ctx context.Context, ids []string, published bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(new(T)).Where("id IN ?", ids).Update("is_published", published)
	if res.Error != nil {
		return 0, res.Error
	}
	action := "unpublish"
	if published {
		action = "publish"
	}
	s.events.Publish(ctx, Event{Table: s.kind.Name, Action: action, IDs: ids})
	return res.RowsAffected, nil
}

// DeleteMany 批量删除，返回受影响行数。
func (s *ContentService[T, PT]) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(new(T))
	if res.Error != nil {
		return 0, res.Error
	}
	s.events.Publish(ctx, Event{Table: s.kind.Name, Action: "delete", IDs: ids})
	return res.RowsAffected, nil
}

// Reorder 按给定 ID 顺序重写 sort_order（从 0 开始）；任一 ID 不存在则整体回滚。
func (s *ContentService[T, PT]) Reorder(ctx context.Context, ids []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(new(T)).Where("id IN ?", ids).Count(&n).Error; err != nil {
			return err
		}
		// MySQL 对未变化的行返回 0，故按数量校验 id 是否全部存在
		if int(n) != len(uniqueIDs(ids)) {
			return ErrNotFound
		}
		for i, id := range ids {
			if err := tx.Model(new(T)).Where("id = ?", id).Update("sort_order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.events.Publish(ctx, Event{Table: s.kind.Name, Action: "reorder", IDs: ids})
	return nil
}

// Counts 返回总数与已发布数量。
func (s *ContentService[T, PT]) Counts(ctx context.Context) (total, published int64, err error) {
	if err = s.db.WithContext(ctx).Model(new(T)).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = s.db.WithContext(ctx).Model(new(T)).Where("is_published = ?", true).Count(&published).Error; err != nil {
		return 0, 0, err
	}
	return total, published, nil
}

func uniqueIDs(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
