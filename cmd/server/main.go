package main

// @title           Mada Jagad Mulia CMS API
// @version         0.1.0
// @description     企业官网与内容管理后台：公开内容 API、访问统计、登录认证与后台管理接口。
// @schemes         http https
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"madajagad/internal/config"
	"madajagad/internal/handlers"
	"madajagad/internal/metrics"
	"madajagad/internal/middlewares"
	"madajagad/internal/services"
	"madajagad/internal/storage"
)

// main 为站点服务入口：加载配置、初始化日志/存储/服务、注册路由并启动 HTTP 服务。
func main() {
	// 配置结构化日志格式
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	// 加载配置（以配置文件为主，配合内置默认值）
	cfg := config.Load()
	// 生产环境基线检查：禁止默认弱口令/密钥进入生产。
	if cfg.Env == "prod" {
		if cfg.Database.Driver != "sqlite" && (cfg.MySQL.Password == "123456" || cfg.MySQL.Password == "password" || cfg.MySQL.Password == "") {
			log.Fatal("insecure mysql password in prod; configure mysql.password in config.yaml")
		}
		if strings.Contains(cfg.MySQL.User, "root") {
			log.Warn("using MySQL root in prod is discouraged")
		}
		if cfg.Auth.JWTSecret == config.DefaultJWTSecret || len(cfg.Auth.JWTSecret) < 32 {
			log.Fatal("insecure auth.jwt_secret in prod; set a random secret of at least 32 bytes")
		}
		if cfg.Bootstrap.InitialAdmin.Enable && (cfg.Bootstrap.InitialAdmin.Password == config.DefaultAdminPassword || cfg.Bootstrap.InitialAdmin.Password == "") {
			log.Fatal("insecure initial_admin.password in prod; disable bootstrap or set strong password")
		}
		if !cfg.Session.CookieSecure {
			log.Warn("session.cookie_secure is false in prod")
		}
	}
	log.WithFields(log.Fields{
		"env":        cfg.Env,
		"http_addr":  cfg.HTTPAddr,
		"db_driver":  cfg.Database.Driver,
		"mysql_dsn":  cfg.MySQL.DSNMasked(),
		"redis_addr": cfg.Redis.Addr,
		"upload_dir": cfg.Upload.Dir,
	}).Info("configuration loaded")

	// 初始化存储（MySQL/SQLite + Redis）
	db, err := storage.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer storage.Close(db)

	rdb, err := storage.InitRedis(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect redis")
	}
	defer func() { _ = rdb.Close() }()

	// 初始化核心服务
	events := services.NewEventBus(rdb)
	catalog := services.NewCatalog(db, events)
	userSvc := services.NewUserService(db, cfg)
	roleSvc := services.NewRoleService(db)
	aboutSvc := services.NewAboutService(db, events)
	contactSvc := services.NewContactService(db)
	visitSvc := services.NewVisitService(db, cfg.Analytics)
	revokeSvc := services.NewRevocationService(rdb)

	if u, err := userSvc.EnsureInitialAdmin(context.Background(), roleSvc, cfg.Bootstrap.InitialAdmin); err != nil {
		log.WithError(err).Fatal("bootstrap initial admin")
	} else if u != nil {
		log.WithField("email", u.Email).Warn("initial admin created; change its password")
	}

	// HTTP 路由与中间件
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.RequestID())
	router.Use(middlewares.RequestLogger())
	router.Use(middlewares.SecurityHeaders(cfg))
	router.Use(metrics.Handler())

	// 装载 HTTP 处理器
	h := handlers.New(cfg, handlers.Deps{
		DB:       db,
		Redis:    rdb,
		Catalog:  catalog,
		Settings: services.NewSettingService(db, events),
		About:    aboutSvc,
		Visits:   visitSvc,
		Stats:    services.NewDashboardService(catalog, aboutSvc, contactSvc),
		Users:    userSvc,
		Roles:    roleSvc,
		Sessions: services.NewSessionService(rdb, cfg),
		Tokens:   services.NewTokenService(cfg, revokeSvc),
		Uploads:  services.NewUploadService(cfg.Upload),
		Contact:  contactSvc,
		Logs:     services.NewLogService(db),
		Events:   events,
	})
	h.RegisterRoutes(router)
	// 后台管理 SPA（/admin）静态资源与入口页
	spa := config.FirstExisting("web/app/index.html", "../web/app/index.html", "../../web/app/index.html")
	if spa != "" {
		base := strings.TrimSuffix(spa, "/index.html")
		router.Static("/admin/assets", base+"/assets")
		router.GET("/admin", func(c *gin.Context) { c.File(spa) })
	}
	// 使用 NoRoute 处理 /admin/* 的前端路由，避免与 /admin/assets 冲突
	router.NoRoute(func(c *gin.Context) {
		if spa != "" && strings.HasPrefix(c.Request.URL.Path, "/admin/") {
			c.File(spa)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})
	// OpenAPI 文档（Stoplight Elements）与静态规范（受配置 docs.enable 控制）
	if cfg.Docs.Enable {
		router.GET("/openapi.json", func(c *gin.Context) {
			if p := config.FirstExisting(cfg.Docs.SpecPath, "docs/swagger.json", "../docs/swagger.json", "../../docs/swagger.json"); p != "" {
				c.File(p)
				return
			}
			c.String(http.StatusNotFound, "openapi spec not found")
		})
		route := cfg.Docs.Route
		if route == "" {
			route = "/docs"
		}
		router.GET(route, func(c *gin.Context) {
			if p := config.FirstExisting(cfg.Docs.PagePath, "web/stoplight.html", "../web/stoplight.html", "../../web/stoplight.html"); p != "" {
				c.File(p)
				return
			}
			c.String(http.StatusNotFound, "docs page not found")
		})
	}

	// 访问记录保留期清理
	ctx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	if cfg.Analytics.Retention > 0 {
		go pruneVisits(ctx, visitSvc, cfg.Analytics.Retention)
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("starting http server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	// 优雅退出
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	stopJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	} else {
		log.Info("server stopped")
	}
}

// pruneVisits 每天删除一次超过保留期的访问记录。
func pruneVisits(ctx context.Context, visits *services.VisitService, retention time.Duration) {
	t := time.NewTicker(24 * time.Hour)
	defer t.Stop()
	for {
		n, err := visits.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			log.WithError(err).Warn("prune page visits")
		} else if n > 0 {
			log.WithField("deleted", n).Info("pruned page visits")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
