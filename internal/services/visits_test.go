package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"madajagad/internal/config"
	"madajagad/internal/storage"
	"madajagad/internal/utils"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148"

func TestVisitRecordAndDuration(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := NewVisitService(db, config.AnalyticsConfig{WindowDays: 30, BounceSeconds: 10})
	base := time.Now()
	tick := 0
	svc.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	v1, err := svc.Record(ctx, VisitInput{VisitorID: "v1", Path: "/", UserAgent: iphoneUA, Referrer: "https://google.com"})
	require.NoError(t, err)
	require.Equal(t, utils.DeviceMobile, v1.DeviceType)
	require.NotNil(t, v1.Referrer)
	v2, err := svc.Record(ctx, VisitInput{VisitorID: "v1", Path: "/"})
	require.NoError(t, err)
	require.Equal(t, utils.DeviceDesktop, v2.DeviceType)

	// 只回写最近一次浏览
	require.NoError(t, svc.UpdateDuration(ctx, "v1", "/", 25))
	var rows []storage.PageVisit
	require.NoError(t, db.Order("created_at").Find(&rows).Error)
	require.Equal(t, 0, rows[0].Duration)
	require.Equal(t, 25, rows[1].Duration)

	require.NoError(t, svc.UpdateDuration(ctx, "v1", "/", 24*3600))
	require.NoError(t, db.Where("id = ?", v2.ID).First(&rows[1]).Error)
	require.Equal(t, MaxVisitDuration, rows[1].Duration)

	var ve *ValidationError
	require.ErrorAs(t, svc.UpdateDuration(ctx, "v1", "/", -1), &ve)
	require.ErrorIs(t, svc.UpdateDuration(ctx, "nobody", "/", 5), ErrNotFound)

	_, err = svc.Record(ctx, VisitInput{VisitorID: "v1", Path: "about"})
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "must_start_with_slash", ve.Fields["path"])
}

func TestAggregateVisits(t *testing.T) {
	day1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	day2 := day1.AddDate(0, 0, 1)
	rows := []storage.PageVisit{
		{VisitorID: "a", Path: "/", DeviceType: "desktop", Duration: 5, CreatedAt: day2},
		{VisitorID: "a", Path: "/projects", DeviceType: "desktop", Duration: 60, CreatedAt: day2},
		{VisitorID: "b", Path: "/", DeviceType: "mobile", Duration: 30, CreatedAt: day1},
		{VisitorID: "c", Path: "/team", DeviceType: "tablet", Duration: 0, CreatedAt: day1},
	}
	st := aggregateVisits(rows, 30, 10)
	require.Equal(t, 4, st.TotalVisits)
	require.Equal(t, 3, st.UniqueVisitors)
	// (5+60+30+0)/4 = 23.75 -> 24s
	require.Equal(t, "0:24", st.AvgDuration)
	require.Equal(t, 50.0, st.BounceRate)
	require.Equal(t, PageCount{Path: "/", Count: 2}, st.PageViews[0])
	require.Equal(t, "/projects", st.PageViews[1].Path)
	require.Equal(t, DeviceCount{Type: "desktop", Count: 2}, st.Devices[0])
	require.Equal(t, []DailyCount{{Date: "2024-05-01", Visits: 2}, {Date: "2024-05-02", Visits: 2}}, st.DailyVisits)
}

func TestAggregateVisitsEmptyAndTopFive(t *testing.T) {
	st := aggregateVisits(nil, 7, 10)
	require.Equal(t, 7, st.WindowDays)
	require.Equal(t, "0:00", st.AvgDuration)
	require.Zero(t, st.BounceRate)
	require.NotNil(t, st.PageViews)
	require.Empty(t, st.DailyVisits)

	var rows []storage.PageVisit
	for i, p := range []string{"/a", "/b", "/c", "/d", "/e", "/f", "/a"} {
		rows = append(rows, storage.PageVisit{VisitorID: "v", Path: p, DeviceType: "desktop", Duration: 20 + i, CreatedAt: time.Now()})
	}
	st = aggregateVisits(rows, 30, 10)
	require.Len(t, st.PageViews, 5)
	require.Equal(t, "/a", st.PageViews[0].Path)
	require.Zero(t, st.BounceRate)
}

func TestVisitStatsWindowAndPrune(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := NewVisitService(db, config.AnalyticsConfig{})
	now := time.Now()
	svc.now = func() time.Time { return now }

	old := storage.PageVisit{VisitorID: "old", Path: "/", DeviceType: "desktop", CreatedAt: now.AddDate(0, 0, -40)}
	recent := storage.PageVisit{VisitorID: "new", Path: "/", DeviceType: "desktop", Duration: 12, CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&recent).Error)

	st, err := svc.Stats(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 30, st.WindowDays)
	require.Equal(t, 1, st.TotalVisits)

	st, err = svc.Stats(ctx, 90)
	require.NoError(t, err)
	require.Equal(t, 2, st.TotalVisits)

	n, err := svc.Prune(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
