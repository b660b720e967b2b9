package services

import (
	"strings"

	"gorm.io/gorm"

	"madajagad/internal/storage"
	"madajagad/internal/utils"
)

// 各类内容的默认展示样式。
const (
	DefaultServiceIcon    = "LayoutGrid"
	DefaultServiceColor   = "text-blue-500"
	DefaultServiceBgColor = "bg-blue-500/10"
)

// 组织架构层级。
const (
	OrgLevelTop    = 1
	OrgLevelMiddle = 2
	OrgLevelStaff  = 3
)

// OrgLevelName 返回层级在后台展示的名称。
func OrgLevelName(level int) string {
	switch level {
	case OrgLevelTop:
		return "Top Management"
	case OrgLevelMiddle:
		return "Middle Management"
	case OrgLevelStaff:
		return "Staff"
	}
	return "Unknown"
}

// ServiceKind 服务项目。
var ServiceKind = Kind[storage.Service]{
	Name:  "services",
	Order: []string{"sort_order"},
	Normalize: func(s *storage.Service) {
		s.Title = strings.TrimSpace(s.Title)
		s.Description = strings.TrimSpace(s.Description)
		s.Icon = orDefault(s.Icon, DefaultServiceIcon)
		s.Color = orDefault(s.Color, DefaultServiceColor)
		s.BgColor = orDefault(s.BgColor, DefaultServiceBgColor)
	},
	Validate: func(s *storage.Service) error {
		var v validator
		v.required("title", s.Title)
		v.required("description", s.Description)
		return v.err()
	},
}

// ProjectKind 工程案例。
var ProjectKind = Kind[storage.Project]{
	Name:  "projects",
	Order: []string{"sort_order"},
	Normalize: func(p *storage.Project) {
		p.Title = strings.TrimSpace(p.Title)
		p.Description = strings.TrimSpace(p.Description)
		p.Year = strings.TrimSpace(p.Year)
		p.Location = strings.TrimSpace(p.Location)
		p.Tags = utils.CleanTags(p.Tags)
		p.ImageURL = nilIfBlank(p.ImageURL)
	},
	Validate: func(p *storage.Project) error {
		var v validator
		v.required("title", p.Title)
		v.required("description", p.Description)
		v.required("year", p.Year)
		v.required("location", p.Location)
		return v.err()
	},
}

// TeamKind 团队成员；缩写为空时由姓名推导。
var TeamKind = Kind[storage.TeamMember]{
	Name:  "team",
	Order: []string{"sort_order"},
	Normalize: func(m *storage.TeamMember) {
		m.Name = strings.TrimSpace(m.Name)
		m.Position = strings.TrimSpace(m.Position)
		m.Initials = strings.ToUpper(strings.TrimSpace(m.Initials))
		if m.Initials == "" {
			m.Initials = utils.Initials(m.Name)
		}
		m.Bio = nilIfBlank(m.Bio)
		m.AvatarURL = nilIfBlank(m.AvatarURL)
	},
	Validate: func(m *storage.TeamMember) error {
		var v validator
		v.required("name", m.Name)
		v.required("position", m.Position)
		v.required("initials", m.Initials)
		if len([]rune(m.Initials)) > 4 {
			v.fail("initials", "too_long")
		}
		return v.err()
	},
}

// TestimonialKind 客户评价。
var TestimonialKind = Kind[storage.Testimonial]{
	Name:  "testimonials",
	Order: []string{"sort_order"},
	Normalize: func(t *storage.Testimonial) {
		t.Quote = strings.TrimSpace(t.Quote)
		t.Author = strings.TrimSpace(t.Author)
		t.Role = strings.TrimSpace(t.Role)
		t.Company = nilIfBlank(t.Company)
	},
	Validate: func(t *storage.Testimonial) error {
		var v validator
		v.required("quote", t.Quote)
		v.required("author", t.Author)
		v.required("role", t.Role)
		return v.err()
	},
}

// OrgKind 组织架构，按层级再按排序展示。
var OrgKind = Kind[storage.OrgMember]{
	Name:  "organization",
	Order: []string{"level", "sort_order"},
	Normalize: func(o *storage.OrgMember) {
		o.Name = strings.TrimSpace(o.Name)
		o.Position = strings.TrimSpace(o.Position)
	},
	Validate: func(o *storage.OrgMember) error {
		var v validator
		v.required("name", o.Name)
		v.required("position", o.Position)
		if o.Level < OrgLevelTop || o.Level > OrgLevelStaff {
			v.fail("level", "out_of_range")
		}
		return v.err()
	},
}

// OrgChart 为公开页使用的分组：管理层（level<=2）与员工。
type OrgChart struct {
	Management []storage.OrgMember `json:"management"`
	Staff      []storage.OrgMember `json:"staff"`
}

// GroupOrg 按层级将已排序的成员拆分为管理层与员工。
func GroupOrg(members []storage.OrgMember) OrgChart {
	chart := OrgChart{Management: []storage.OrgMember{}, Staff: []storage.OrgMember{}}
	for _, m := range members {
		if m.Level <= OrgLevelMiddle {
			chart.Management = append(chart.Management, m)
		} else {
			chart.Staff = append(chart.Staff, m)
		}
	}
	return chart
}

// 具体实例化类型，便于 handlers 与 cmd 引用。
type (
	ServiceStore     = ContentService[storage.Service, *storage.Service]
	ProjectStore     = ContentService[storage.Project, *storage.Project]
	TeamStore        = ContentService[storage.TeamMember, *storage.TeamMember]
	TestimonialStore = ContentService[storage.Testimonial, *storage.Testimonial]
	OrgStore         = ContentService[storage.OrgMember, *storage.OrgMember]
)

// Catalog 汇总五类内容服务。
type Catalog struct {
	Services     *ServiceStore
	Projects     *ProjectStore
	Team         *TeamStore
	Testimonials *TestimonialStore
	Organization *OrgStore
}

func NewCatalog(db *gorm.DB, events *EventBus) *Catalog {
	return &Catalog{
		Services:     NewContentService[storage.Service](db, ServiceKind, events),
		Projects:     NewContentService[storage.Project](db, ProjectKind, events),
		Team:         NewContentService[storage.TeamMember](db, TeamKind, events),
		Testimonials: NewContentService[storage.Testimonial](db, TestimonialKind, events),
		Organization: NewContentService[storage.OrgMember](db, OrgKind, events),
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

func nilIfBlank(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
