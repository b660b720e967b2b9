package services

// 访问统计：记录页面浏览、回写停留时长，并在 Go 中聚合看板指标。

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"madajagad/internal/config"
	"madajagad/internal/storage"
	"madajagad/internal/utils"
)

// MaxVisitDuration 单次停留时长上限，超出部分截断。
const MaxVisitDuration = 6 * 60 * 60

// VisitInput 为一次页面浏览。
type VisitInput struct {
	VisitorID string
	Path      string
	Referrer  string
	UserAgent string
}

// PageCount 页面浏览次数。
type PageCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// DeviceCount 设备类型分布。
type DeviceCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// DailyCount 按日访问量。
type DailyCount struct {
	Date   string `json:"date"`
	Visits int    `json:"visits"`
}

// VisitStats 为访问统计看板数据。
type VisitStats struct {
	WindowDays     int           `json:"window_days"`
	TotalVisits    int           `json:"total_visits"`
	UniqueVisitors int           `json:"unique_visitors"`
	AvgDuration    string        `json:"avg_duration"`
	BounceRate     float64       `json:"bounce_rate"`
	PageViews      []PageCount   `json:"page_views"`
	Devices        []DeviceCount `json:"devices"`
	DailyVisits    []DailyCount  `json:"daily_visits"`
}

// VisitService 读写 page_visits 表。
type VisitService struct {
	db  *gorm.DB
	cfg config.AnalyticsConfig
	now func() time.Time
}

func NewVisitService(db *gorm.DB, cfg config.AnalyticsConfig) *VisitService {
	return &VisitService{db: db, cfg: cfg, now: time.Now}
}

// Record 写入一次浏览，设备类型由 User-Agent 推导。
func (s *VisitService) Record(ctx context.Context, in VisitInput) (*storage.PageVisit, error) {
	var v validator
	in.VisitorID = strings.TrimSpace(in.VisitorID)
	in.Path = strings.TrimSpace(in.Path)
	v.required("visitor_id", in.VisitorID)
	v.required("path", in.Path)
	if in.Path != "" && !strings.HasPrefix(in.Path, "/") {
		v.fail("path", "must_start_with_slash")
	}
	if len(in.VisitorID) > 64 {
		v.fail("visitor_id", "too_long")
	}
	if len(in.Path) > 255 {
		v.fail("path", "too_long")
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	row := &storage.PageVisit{
		VisitorID:  in.VisitorID,
		Path:       in.Path,
		DeviceType: utils.DeviceType(in.UserAgent),
		CreatedAt:  s.now(),
	}
	if ref := strings.TrimSpace(in.Referrer); ref != "" {
		if len(ref) > 512 {
			ref = ref[:512]
		}
		row.Referrer = &ref
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// UpdateDuration 回写该访客在该路径上最近一次浏览的停留秒数。
func (s *VisitService) UpdateDuration(ctx context.Context, visitorID, path string, seconds int) error {
	if seconds < 0 {
		return &ValidationError{Fields: map[string]string{"duration": "negative"}}
	}
	if seconds > MaxVisitDuration {
		seconds = MaxVisitDuration
	}
	var row storage.PageVisit
	err := s.db.WithContext(ctx).
		Where("visitor_id = ? AND path = ?", visitorID, path).
		Order("created_at DESC").First(&row).Error
	if err != nil {
		return translateDBError(err)
	}
	return s.db.WithContext(ctx).Model(&row).Update("duration", seconds).Error
}

// Stats 统计最近 days 天（<=0 时取配置值）的访问数据。
func (s *VisitService) Stats(ctx context.Context, days int) (*VisitStats, error) {
	if days <= 0 {
		days = s.cfg.WindowDays
	}
	if days <= 0 {
		days = 30
	}
	bounce := s.cfg.BounceSeconds
	if bounce <= 0 {
		bounce = 10
	}
	since := s.now().AddDate(0, 0, -days)
	var rows []storage.PageVisit
	err := s.db.WithContext(ctx).
		Select("visitor_id", "path", "device_type", "duration", "created_at").
		Where("created_at >= ?", since).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return aggregateVisits(rows, days, bounce), nil
}

func aggregateVisits(rows []storage.PageVisit, days, bounceSeconds int) *VisitStats {
	st := &VisitStats{
		WindowDays:  days,
		AvgDuration: utils.FormatDuration(0),
		PageViews:   []PageCount{},
		Devices:     []DeviceCount{},
		DailyVisits: []DailyCount{},
	}
	if len(rows) == 0 {
		return st
	}
	visitors := map[string]struct{}{}
	pages := map[string]int{}
	devices := map[string]int{}
	daily := map[string]int{}
	totalDuration, bounces := 0, 0
	for _, r := range rows {
		visitors[r.VisitorID] = struct{}{}
		pages[r.Path]++
		devices[r.DeviceType]++
		daily[r.CreatedAt.Local().Format("2006-01-02")]++
		totalDuration += r.Duration
		if r.Duration < bounceSeconds {
			bounces++
		}
	}
	n := len(rows)
	st.TotalVisits = n
	st.UniqueVisitors = len(visitors)
	st.AvgDuration = utils.FormatDuration(int(math.Round(float64(totalDuration) / float64(n))))
	st.BounceRate = math.Round(float64(bounces)/float64(n)*1000) / 10

	for p, c := range pages {
		st.PageViews = append(st.PageViews, PageCount{Path: p, Count: c})
	}
	sort.Slice(st.PageViews, func(i, j int) bool {
		if st.PageViews[i].Count != st.PageViews[j].Count {
			return st.PageViews[i].Count > st.PageViews[j].Count
		}
		return st.PageViews[i].Path < st.PageViews[j].Path
	})
	if len(st.PageViews) > 5 {
		st.PageViews = st.PageViews[:5]
	}

	for d, c := range devices {
		st.Devices = append(st.Devices, DeviceCount{Type: d, Count: c})
	}
	sort.Slice(st.Devices, func(i, j int) bool {
		if st.Devices[i].Count != st.Devices[j].Count {
			return st.Devices[i].Count > st.Devices[j].Count
		}
		return st.Devices[i].Type < st.Devices[j].Type
	})

	for d, c := range daily {
		st.DailyVisits = append(st.DailyVisits, DailyCount{Date: d, Visits: c})
	}
	sort.Slice(st.DailyVisits, func(i, j int) bool { return st.DailyVisits[i].Date < st.DailyVisits[j].Date })
	return st
}

// Prune 删除 before 之前的访问记录，返回删除行数。
func (s *VisitService) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&storage.PageVisit{})
	return res.RowsAffected, res.Error
}
