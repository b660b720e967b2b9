package services

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"madajagad/internal/storage"
)

// 站点设置键。
const (
	SettingCompanyName    = "company_name"
	SettingCompanyAddress = "company_address"
	SettingCompanyPhone   = "company_phone"
	SettingCompanyEmail   = "company_email"
	SettingWhatsApp       = "whatsapp_number"
	SettingHeroTitle      = "hero_title"
	SettingHeroSubtitle   = "hero_subtitle"
	SettingAboutText      = "about_text"
)

// defaultSettings 数据库未覆盖时使用的默认文案。
func defaultSettings() map[string]string {
	return map[string]string{
		SettingCompanyName:    "PT Mada Jagad Mulia",
		SettingCompanyAddress: "Jl. Raya Tulungrejo, Bojonegoro, East Java, Indonesia",
		SettingCompanyPhone:   "+62 123 4567 890",
		SettingCompanyEmail:   "info@madajagadmulia.com",
		SettingWhatsApp:       "6281234567890",
		SettingHeroTitle:      "Building a Sustainable Future",
		SettingHeroSubtitle:   "Delivering engineering and construction solutions that serve people, nature, and progress.",
		SettingAboutText:      "PT Mada Jagad Mulia is a leading engineering and construction company committed to excellence, innovation, and sustainability.",
	}
}

// SettingService 提供站点键值设置：默认值叠加数据库存储值。
type SettingService struct {
	db     *gorm.DB
	events *EventBus
}

func NewSettingService(db *gorm.DB, events *EventBus) *SettingService {
	return &SettingService{db: db, events: events}
}

// Defaults 返回默认设置的副本。
func (s *SettingService) Defaults() map[string]string { return defaultSettings() }

// Keys 返回全部已知键（有序）。
func (s *SettingService) Keys() []string {
	keys := make([]string, 0, 8)
	for k := range defaultSettings() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All 读取全部设置；存储行覆盖同名默认值，未知键被忽略。
func (s *SettingService) All(ctx context.Context) (map[string]string, error) {
	out := defaultSettings()
	var rows []storage.SiteSetting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		if _, ok := out[r.Key]; ok {
			out[r.Key] = r.Value
		}
	}
	return out, nil
}

// Update 批量写入设置；包含未知键时整体拒绝。
func (s *SettingService) Update(ctx context.Context, values map[string]string) (map[string]string, error) {
	defaults := defaultSettings()
	for k := range values {
		if _, ok := defaults[k]; !ok {
			return nil, ErrUnknownSetting
		}
	}
	if len(values) > 0 {
		now := time.Now()
		rows := make([]storage.SiteSetting, 0, len(values))
		for k, v := range values {
			rows = append(rows, storage.SiteSetting{Key: k, Value: strings.TrimSpace(v), UpdatedAt: now})
		}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&rows).Error
		if err != nil {
			return nil, err
		}
		s.events.Publish(ctx, Event{Table: "site_settings", Action: "update"})
	}
	return s.All(ctx)
}

// WhatsAppURL 根据设置生成 wa.me 咨询链接。
func WhatsAppURL(settings map[string]string) string {
	number := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, settings[SettingWhatsApp])
	text := "Hello " + settings[SettingCompanyName] + ", I would like to get a consultation"
	return "https://wa.me/" + number + "?text=" + url.PathEscape(text)
}
