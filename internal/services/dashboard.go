package services

import (
	"context"
)

// ContentStats 单类内容的总数与已发布数。
type ContentStats struct {
	Total     int64 `json:"total"`
	Published int64 `json:"published"`
}

// AboutStats 额外包含历史版本数。
type AboutStats struct {
	ContentStats
	Revisions int64 `json:"revisions"`
}

// DashboardStats 后台概览数据。
type DashboardStats struct {
	Services       ContentStats `json:"services"`
	Projects       ContentStats `json:"projects"`
	Team           ContentStats `json:"team"`
	Testimonials   ContentStats `json:"testimonials"`
	Organization   ContentStats `json:"organization"`
	About          AboutStats   `json:"about"`
	UnreadMessages int64        `json:"unread_messages"`
}

type counter interface {
	Counts(ctx context.Context) (int64, int64, error)
}

// DashboardService 汇总各内容表的计数。
type DashboardService struct {
	catalog *Catalog
	about   *AboutService
	contact *ContactService
}

func NewDashboardService(catalog *Catalog, about *AboutService, contact *ContactService) *DashboardService {
	return &DashboardService{catalog: catalog, about: about, contact: contact}
}

func (s *DashboardService) Content(ctx context.Context) (*DashboardStats, error) {
	out := &DashboardStats{}
	targets := []struct {
		src counter
		dst *ContentStats
	}{
		{s.catalog.Services, &out.Services},
		{s.catalog.Projects, &out.Projects},
		{s.catalog.Team, &out.Team},
		{s.catalog.Testimonials, &out.Testimonials},
		{s.catalog.Organization, &out.Organization},
	}
	for _, t := range targets {
		total, published, err := t.src.Counts(ctx)
		if err != nil {
			return nil, err
		}
		*t.dst = ContentStats{Total: total, Published: published}
	}
	total, published, revisions, err := s.about.Counts(ctx)
	if err != nil {
		return nil, err
	}
	out.About = AboutStats{ContentStats: ContentStats{Total: total, Published: published}, Revisions: revisions}
	if s.contact != nil {
		if out.UnreadMessages, err = s.contact.UnreadCount(ctx); err != nil {
			return nil, err
		}
	}
	return out, nil
}
