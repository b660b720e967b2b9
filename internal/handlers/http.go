package handlers

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"madajagad/internal/config"
	"madajagad/internal/metrics"
	"madajagad/internal/middlewares"
	"madajagad/internal/services"
	"madajagad/web"
)

// Deps 为 Handler 所需的全部依赖。
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Catalog  *services.Catalog
	Settings *services.SettingService
	About    *services.AboutService
	Visits   *services.VisitService
	Stats    *services.DashboardService
	Users    *services.UserService
	Roles    *services.RoleService
	Sessions *services.SessionService
	Tokens   *services.TokenService
	Uploads  *services.UploadService
	Contact  *services.ContactService
	Logs     *services.LogService
	Events   *services.EventBus
}

// Handler 聚合所有依赖（配置、存储、服务）并注册所有 HTTP 路由。
type Handler struct {
	cfg        config.Config
	db         *gorm.DB
	rdb        *redis.Client
	catalog    *services.Catalog
	settingSvc *services.SettingService
	aboutSvc   *services.AboutService
	visitSvc   *services.VisitService
	statsSvc   *services.DashboardService
	userSvc    *services.UserService
	roleSvc    *services.RoleService
	sessionSvc *services.SessionService
	tokenSvc   *services.TokenService
	uploadSvc  *services.UploadService
	contactSvc *services.ContactService
	logSvc     *services.LogService
	events     *services.EventBus
}

// New 构造 Handler，将各领域服务注入，用于后续路由注册与处理。
func New(cfg config.Config, d Deps) *Handler {
	return &Handler{
		cfg: cfg, db: d.DB, rdb: d.Redis, catalog: d.Catalog,
		settingSvc: d.Settings, aboutSvc: d.About, visitSvc: d.Visits, statsSvc: d.Stats,
		userSvc: d.Users, roleSvc: d.Roles, sessionSvc: d.Sessions, tokenSvc: d.Tokens,
		uploadSvc: d.Uploads, contactSvc: d.Contact, logSvc: d.Logs, events: d.Events,
	}
}

// Templates 解析内嵌的 HTML 模板。
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"orgLevelName": services.OrgLevelName,
	}).ParseFS(web.Templates, "templates/*.html"))
}

// RegisterRoutes 在 Gin 路由上挂载站点页面、公开 API、访问统计、认证与后台管理端点。
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.SetHTMLTemplate(Templates())

	// 公开页面与登录页
	r.GET("/", h.landing)
	r.GET("/login", h.loginPage)
	r.POST("/login", h.rateLimited("login", h.cfg.Limits.LoginPerMinute), h.loginSubmit)
	r.POST("/logout", h.logoutSubmit)

	// 上传文件的静态访问
	if h.cfg.Upload.PublicPath != "" && h.cfg.Upload.Dir != "" {
		r.Static(h.cfg.Upload.PublicPath, h.cfg.Upload.Dir)
	}

	// 公开 API（可跨域）
	pub := r.Group("/api", middlewares.CORS(h.cfg.CORS.AllowedOrigins))
	pub.GET("/public/site", h.publicSite)
	pub.GET("/public/services", h.publicServices)
	pub.GET("/public/projects", h.publicProjects)
	pub.GET("/public/team", h.publicTeam)
	pub.GET("/public/testimonials", h.publicTestimonials)
	pub.GET("/public/organization", h.publicOrganization)
	pub.GET("/public/about", h.publicAbout)
	pub.GET("/public/events", h.publicEvents)
	visitLimit := h.rateLimited("visit", h.cfg.Limits.VisitPerMinute)
	pub.POST("/visits", visitLimit, h.recordVisit)
	pub.POST("/visits/duration", visitLimit, h.updateVisitDuration)
	pub.POST("/contact", h.rateLimited("contact", h.cfg.Limits.ContactPerMinute), h.submitContact)
	for _, p := range []string{"/public/*any", "/visits", "/visits/duration", "/contact"} {
		pub.OPTIONS(p, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}

	h.registerAuthRoutes(r.Group("/api"))
	h.registerAdminRoutes(r.Group("/api/admin"))

	// 运维端点
	r.GET("/metrics", metrics.Exposer())
	r.GET("/healthz", h.healthz)
}

// @Summary      健康检查
// @Description  检查数据库与 Redis 连通性
// @Tags         ops
// @Produce      json
// @Success      200 {object} map[string]string
// @Failure      503 {object} map[string]string
// @Router       /healthz [get]
func (h *Handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "db_unavailable"})
		return
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "redis_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
