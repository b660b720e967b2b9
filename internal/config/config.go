package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config 保存进程级配置（仅使用配置文件或内置默认值）。
// 字段提供开发友好的默认值；生产环境请在 config.yaml 中覆盖。
type Config struct {
	Env       string
	HTTPAddr  string
	SiteURL   string
	Docs      DocsConfig
	Database  DatabaseConfig
	MySQL     MySQLConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Crypto    CryptoConfig
	Session   SessionConfig
	Auth      AuthConfig
	Upload    UploadConfig
	Limits    LimitConfig
	Security  SecurityConfig
	Analytics AnalyticsConfig
	Bootstrap BootstrapConfig
}

// DatabaseConfig 选择数据库驱动：mysql（默认）或 sqlite（本地开发、测试）。
type DatabaseConfig struct {
	Driver string
}

type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	Params   string
}

func (m MySQLConfig) DSN() string {
	port := m.Port
	if port == 0 {
		port = 3306
	}
	host := m.Host
	if host == "" {
		host = "127.0.0.1"
	}
	db := m.DBName
	if db == "" {
		db = "madajagad"
	}
	params := m.Params
	if params == "" {
		params = "parseTime=true&loc=Local&charset=utf8mb4,utf8"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", m.User, m.Password, host, port, db, params)
}

func (m MySQLConfig) DSNMasked() string {
	masked := m
	if masked.Password != "" {
		masked.Password = "******"
	}
	return masked.DSN()
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Addr     string
	DB       int
	Password string
}

type CORSConfig struct {
	// 公开 API（/api/public）允许的跨域来源；为空则不输出 CORS 头
	AllowedOrigins []string
}

type CryptoConfig struct {
	// 用于加密 MFA 秘钥的对称密钥（32 字节随机串）；为空则以明文保存
	KeyEncryptionKey string
}

type SessionConfig struct {
	CookieName     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite string // 取值：lax、strict、none
	TTL            time.Duration
}

// AuthConfig 定义登录与后台访问的角色白名单以及 API 令牌参数。
type AuthConfig struct {
	Issuer         string
	JWTSecret      string
	AccessTokenTTL time.Duration
	// 允许登录的角色（默认 admin、editor）
	LoginRoles []string
	// 允许访问后台 API 的角色（默认 admin）
	AdminRoles  []string
	AllowSignup bool
}

type UploadConfig struct {
	Dir        string
	PublicPath string
	MaxBytes   int64
	Buckets    []string
}

type LimitConfig struct {
	LoginPerMinute   int
	ContactPerMinute int
	VisitPerMinute   int
	Window           time.Duration
}

// DocsConfig 控制 OpenAPI 文档路由；启用前需先用 swag init 生成 SpecPath 指向的规范文件。
type DocsConfig struct {
	Enable   bool
	Route    string
	SpecPath string
	PagePath string
}

type SecurityConfig struct {
	HSTS struct {
		Enabled           bool
		MaxAgeSeconds     int
		IncludeSubdomains bool
	}
}

// AnalyticsConfig 控制访问统计窗口、跳出判定阈值与数据保留期。
type AnalyticsConfig struct {
	WindowDays    int
	BounceSeconds int
	Retention     time.Duration
}

// BootstrapConfig 包含一次性初始化数据（仅在用户表为空时应用）。
type BootstrapConfig struct {
	InitialAdmin InitialAdminConfig
}

type InitialAdminConfig struct {
	Enable   bool
	Email    string
	Password string
	Name     string
}

// 默认的弱口令/密钥，生产环境启动时会拒绝。
const (
	DefaultJWTSecret     = "dev-jwt-secret-change-me"
	DefaultAdminPassword = "admin12345"
)

// Default 返回内置默认配置（本地开发可直接运行）。
func Default() Config {
	return Config{
		Env:      "dev",
		HTTPAddr: ":8080",
		SiteURL:  "",
		Docs:     DocsConfig{Enable: false, Route: "/docs", SpecPath: "docs/swagger.json", PagePath: "web/stoplight.html"},
		Database: DatabaseConfig{Driver: "mysql"},
		MySQL:    MySQLConfig{Host: "127.0.0.1", Port: 3306, User: "root", Password: "123456", DBName: "madajagad", Params: "parseTime=true&loc=Local&charset=utf8mb4,utf8"},
		SQLite:   SQLiteConfig{Path: "madajagad.db"},
		Redis:    RedisConfig{Addr: "127.0.0.1:6379", DB: 0, Password: ""},
		Session:  SessionConfig{CookieName: "cms_session", CookieDomain: "", CookieSecure: false, CookieSameSite: "lax", TTL: 12 * time.Hour},
		Auth: AuthConfig{
			Issuer:         "madajagad-cms",
			JWTSecret:      DefaultJWTSecret,
			AccessTokenTTL: time.Hour,
			LoginRoles:     []string{"admin", "editor"},
			AdminRoles:     []string{"admin"},
			AllowSignup:    true,
		},
		Upload: UploadConfig{Dir: "uploads", PublicPath: "/uploads", MaxBytes: 5 << 20, Buckets: []string{"images"}},
		Limits: LimitConfig{LoginPerMinute: 10, ContactPerMinute: 5, VisitPerMinute: 120, Window: time.Minute},
		Security: func() SecurityConfig {
			var s SecurityConfig
			s.HSTS.Enabled = true
			s.HSTS.MaxAgeSeconds = 31536000
			s.HSTS.IncludeSubdomains = true
			return s
		}(),
		Analytics: AnalyticsConfig{WindowDays: 30, BounceSeconds: 10, Retention: 365 * 24 * time.Hour},
		Bootstrap: BootstrapConfig{InitialAdmin: InitialAdminConfig{Enable: true, Email: "admin@madajagadmulia.com", Password: DefaultAdminPassword, Name: "Administrator"}},
	}
}

// Load 生成配置：先使用内置默认值，再用工作目录下的配置文件（config.yaml/yml/json）覆盖。
func Load() Config {
	cfg := Default()
	if path := FirstExisting("config.yaml", "config.yml", "config.json"); path != "" {
		_ = loadFromFile(path, &cfg)
	}
	return cfg
}

// LoadFile 使用指定配置文件覆盖默认值；文件不存在或格式错误时返回错误。
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := loadFromFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// 配置文件格式：YAML 或 JSON。仅非零值会覆盖现有字段。
func loadFromFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var fm fileModel
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(b, &fm); err != nil {
			return err
		}
	} else if ext == ".json" || ext == "" {
		if err := json.Unmarshal(b, &fm); err != nil {
			return err
		}
	} else {
		return errors.New("unsupported config file format")
	}
	fm.apply(cfg)
	return nil
}

// --- 配置文件模型与合并逻辑 ---

type fileModel struct {
	Env       string         `yaml:"env" json:"env"`
	HTTPAddr  string         `yaml:"http_addr" json:"http_addr"`
	SiteURL   string         `yaml:"site_url" json:"site_url"`
	Docs      *fileDocs      `yaml:"docs" json:"docs"`
	Database  *fileDatabase  `yaml:"database" json:"database"`
	MySQL     *fileMySQL     `yaml:"mysql" json:"mysql"`
	SQLite    *fileSQLite    `yaml:"sqlite" json:"sqlite"`
	Redis     *fileRedis     `yaml:"redis" json:"redis"`
	CORS      *fileCORS      `yaml:"cors" json:"cors"`
	Crypto    *fileCrypto    `yaml:"crypto" json:"crypto"`
	Session   *fileSession   `yaml:"session" json:"session"`
	Auth      *fileAuth      `yaml:"auth" json:"auth"`
	Upload    *fileUpload    `yaml:"upload" json:"upload"`
	Limits    *fileLimits    `yaml:"limits" json:"limits"`
	Security  *fileSecurity  `yaml:"security" json:"security"`
	Analytics *fileAnalytics `yaml:"analytics" json:"analytics"`
	Bootstrap *fileBootstrap `yaml:"bootstrap" json:"bootstrap"`
}

type fileDatabase struct {
	Driver string `yaml:"driver" json:"driver"`
}
type fileMySQL struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	DBName   string `yaml:"db" json:"db"`
	Params   string `yaml:"params" json:"params"`
}
type fileSQLite struct {
	Path string `yaml:"path" json:"path"`
}
type fileRedis struct {
	Addr     string `yaml:"addr" json:"addr"`
	DB       int    `yaml:"db" json:"db"`
	Password string `yaml:"password" json:"password"`
}
type fileCORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}
type fileCrypto struct {
	KeyEncryptionKey string `yaml:"key_encryption_key" json:"key_encryption_key"`
}
type fileSession struct {
	CookieName     string `yaml:"cookie_name" json:"cookie_name"`
	CookieDomain   string `yaml:"cookie_domain" json:"cookie_domain"`
	CookieSecure   *bool  `yaml:"cookie_secure" json:"cookie_secure"`
	CookieSameSite string `yaml:"cookie_samesite" json:"cookie_samesite"`
	TTL            string `yaml:"ttl" json:"ttl"`
}
type fileAuth struct {
	Issuer         string   `yaml:"issuer" json:"issuer"`
	JWTSecret      string   `yaml:"jwt_secret" json:"jwt_secret"`
	AccessTokenTTL string   `yaml:"access_token_ttl" json:"access_token_ttl"`
	LoginRoles     []string `yaml:"login_roles" json:"login_roles"`
	AdminRoles     []string `yaml:"admin_roles" json:"admin_roles"`
	AllowSignup    *bool    `yaml:"allow_signup" json:"allow_signup"`
}
type fileUpload struct {
	Dir        string   `yaml:"dir" json:"dir"`
	PublicPath string   `yaml:"public_path" json:"public_path"`
	MaxBytes   int64    `yaml:"max_bytes" json:"max_bytes"`
	Buckets    []string `yaml:"buckets" json:"buckets"`
}
type fileLimits struct {
	LoginPerMinute   int    `yaml:"login_per_minute" json:"login_per_minute"`
	ContactPerMinute int    `yaml:"contact_per_minute" json:"contact_per_minute"`
	VisitPerMinute   int    `yaml:"visit_per_minute" json:"visit_per_minute"`
	Window           string `yaml:"window" json:"window"`
}
type fileDocs struct {
	Enable   *bool  `yaml:"enable" json:"enable"`
	Route    string `yaml:"route" json:"route"`
	SpecPath string `yaml:"spec_path" json:"spec_path"`
	PagePath string `yaml:"page_path" json:"page_path"`
}
type fileSecurity struct {
	HSTS struct {
		Enabled           *bool `yaml:"enabled" json:"enabled"`
		MaxAge            int   `yaml:"max_age" json:"max_age"`
		IncludeSubdomains *bool `yaml:"include_subdomains" json:"include_subdomains"`
	} `yaml:"hsts" json:"hsts"`
}
type fileAnalytics struct {
	WindowDays    int    `yaml:"window_days" json:"window_days"`
	BounceSeconds int    `yaml:"bounce_seconds" json:"bounce_seconds"`
	Retention     string `yaml:"retention" json:"retention"`
}
type fileBootstrap struct {
	InitialAdmin *fileAdmin `yaml:"initial_admin" json:"initial_admin"`
}
type fileAdmin struct {
	Enable   *bool  `yaml:"enable" json:"enable"`
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"password"`
	Name     string `yaml:"name" json:"name"`
}

// setDuration 解析时长字符串，解析失败时保留原值。
func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func (fm *fileModel) apply(cfg *Config) {
	if fm.Env != "" {
		cfg.Env = fm.Env
	}
	if fm.HTTPAddr != "" {
		cfg.HTTPAddr = fm.HTTPAddr
	}
	if fm.SiteURL != "" {
		cfg.SiteURL = strings.TrimSuffix(fm.SiteURL, "/")
	}
	if fm.Docs != nil {
		if fm.Docs.Enable != nil {
			cfg.Docs.Enable = *fm.Docs.Enable
		}
		if fm.Docs.Route != "" {
			cfg.Docs.Route = fm.Docs.Route
		}
		if fm.Docs.SpecPath != "" {
			cfg.Docs.SpecPath = fm.Docs.SpecPath
		}
		if fm.Docs.PagePath != "" {
			cfg.Docs.PagePath = fm.Docs.PagePath
		}
	}
	if fm.Database != nil && fm.Database.Driver != "" {
		cfg.Database.Driver = strings.ToLower(fm.Database.Driver)
	}
	if fm.MySQL != nil {
		if fm.MySQL.Host != "" {
			cfg.MySQL.Host = fm.MySQL.Host
		}
		if fm.MySQL.Port != 0 {
			cfg.MySQL.Port = fm.MySQL.Port
		}
		if fm.MySQL.User != "" {
			cfg.MySQL.User = fm.MySQL.User
		}
		if fm.MySQL.Password != "" {
			cfg.MySQL.Password = fm.MySQL.Password
		}
		if fm.MySQL.DBName != "" {
			cfg.MySQL.DBName = fm.MySQL.DBName
		}
		if fm.MySQL.Params != "" {
			cfg.MySQL.Params = fm.MySQL.Params
		}
	}
	if fm.SQLite != nil && fm.SQLite.Path != "" {
		cfg.SQLite.Path = fm.SQLite.Path
	}
	if fm.Redis != nil {
		if fm.Redis.Addr != "" {
			cfg.Redis.Addr = fm.Redis.Addr
		}
		if fm.Redis.DB != 0 {
			cfg.Redis.DB = fm.Redis.DB
		}
		if fm.Redis.Password != "" {
			cfg.Redis.Password = fm.Redis.Password
		}
	}
	if fm.CORS != nil && len(fm.CORS.AllowedOrigins) > 0 {
		cfg.CORS.AllowedOrigins = fm.CORS.AllowedOrigins
	}
	if fm.Crypto != nil && fm.Crypto.KeyEncryptionKey != "" {
		cfg.Crypto.KeyEncryptionKey = fm.Crypto.KeyEncryptionKey
	}
	if fm.Session != nil {
		if fm.Session.CookieName != "" {
			cfg.Session.CookieName = fm.Session.CookieName
		}
		if fm.Session.CookieDomain != "" {
			cfg.Session.CookieDomain = fm.Session.CookieDomain
		}
		if fm.Session.CookieSecure != nil {
			cfg.Session.CookieSecure = *fm.Session.CookieSecure
		}
		if fm.Session.CookieSameSite != "" {
			cfg.Session.CookieSameSite = fm.Session.CookieSameSite
		}
		setDuration(&cfg.Session.TTL, fm.Session.TTL)
	}
	if fm.Auth != nil {
		if fm.Auth.Issuer != "" {
			cfg.Auth.Issuer = fm.Auth.Issuer
		}
		if fm.Auth.JWTSecret != "" {
			cfg.Auth.JWTSecret = fm.Auth.JWTSecret
		}
		setDuration(&cfg.Auth.AccessTokenTTL, fm.Auth.AccessTokenTTL)
		if len(fm.Auth.LoginRoles) > 0 {
			cfg.Auth.LoginRoles = fm.Auth.LoginRoles
		}
		if len(fm.Auth.AdminRoles) > 0 {
			cfg.Auth.AdminRoles = fm.Auth.AdminRoles
		}
		if fm.Auth.AllowSignup != nil {
			cfg.Auth.AllowSignup = *fm.Auth.AllowSignup
		}
	}
	if fm.Upload != nil {
		if fm.Upload.Dir != "" {
			cfg.Upload.Dir = fm.Upload.Dir
		}
		if fm.Upload.PublicPath != "" {
			cfg.Upload.PublicPath = strings.TrimSuffix(fm.Upload.PublicPath, "/")
		}
		if fm.Upload.MaxBytes > 0 {
			cfg.Upload.MaxBytes = fm.Upload.MaxBytes
		}
		if len(fm.Upload.Buckets) > 0 {
			cfg.Upload.Buckets = fm.Upload.Buckets
		}
	}
	if fm.Limits != nil {
		if fm.Limits.LoginPerMinute != 0 {
			cfg.Limits.LoginPerMinute = fm.Limits.LoginPerMinute
		}
		if fm.Limits.ContactPerMinute != 0 {
			cfg.Limits.ContactPerMinute = fm.Limits.ContactPerMinute
		}
		if fm.Limits.VisitPerMinute != 0 {
			cfg.Limits.VisitPerMinute = fm.Limits.VisitPerMinute
		}
		setDuration(&cfg.Limits.Window, fm.Limits.Window)
	}
	if fm.Security != nil {
		if fm.Security.HSTS.Enabled != nil {
			cfg.Security.HSTS.Enabled = *fm.Security.HSTS.Enabled
		}
		if fm.Security.HSTS.MaxAge != 0 {
			cfg.Security.HSTS.MaxAgeSeconds = fm.Security.HSTS.MaxAge
		}
		if fm.Security.HSTS.IncludeSubdomains != nil {
			cfg.Security.HSTS.IncludeSubdomains = *fm.Security.HSTS.IncludeSubdomains
		}
	}
	if fm.Analytics != nil {
		if fm.Analytics.WindowDays > 0 {
			cfg.Analytics.WindowDays = fm.Analytics.WindowDays
		}
		if fm.Analytics.BounceSeconds > 0 {
			cfg.Analytics.BounceSeconds = fm.Analytics.BounceSeconds
		}
		setDuration(&cfg.Analytics.Retention, fm.Analytics.Retention)
	}
	if fm.Bootstrap != nil && fm.Bootstrap.InitialAdmin != nil {
		ia := fm.Bootstrap.InitialAdmin
		if ia.Enable != nil {
			cfg.Bootstrap.InitialAdmin.Enable = *ia.Enable
		}
		if ia.Email != "" {
			cfg.Bootstrap.InitialAdmin.Email = ia.Email
		}
		if ia.Password != "" {
			cfg.Bootstrap.InitialAdmin.Password = ia.Password
		}
		if ia.Name != "" {
			cfg.Bootstrap.InitialAdmin.Name = ia.Name
		}
	}
}

// WindowOrDefault 返回限流窗口，未配置时回退为 1 分钟。
func (l LimitConfig) WindowOrDefault() time.Duration {
	if l.Window > 0 {
		return l.Window
	}
	return time.Minute
}

// FirstExisting 按顺序返回第一个存在的文件路径；若都不存在则返回空字符串。
func FirstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
