package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"madajagad/internal/middlewares"
	"madajagad/internal/services"
	"madajagad/internal/utils"
)

// visitorCookie 保存匿名访客 ID，用于统计独立访客。
const visitorCookie = "vid"

// baseURL 根据请求与反向代理头推导基础地址；配置了 site_url 时优先使用。
func (h *Handler) baseURL(c *gin.Context) string {
	if h.cfg.SiteURL != "" {
		return strings.TrimSuffix(h.cfg.SiteURL, "/")
	}
	proto := c.GetHeader("X-Forwarded-Proto")
	host := c.GetHeader("X-Forwarded-Host")
	if proto == "" {
		proto = c.Request.URL.Scheme
	}
	if proto == "" {
		proto = "http"
	}
	if host == "" {
		host = c.Request.Host
	}
	return proto + "://" + host
}

// setNoCache 为敏感响应添加禁止缓存的标准响应头。
func setNoCache(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

func (h *Handler) sameSite() http.SameSite {
	switch strings.ToLower(h.cfg.Session.CookieSameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// setCookie 按会话配置（Domain/Secure/SameSite）写入 Cookie；maxAge<0 表示删除。
func (h *Handler) setCookie(c *gin.Context, name, value string, maxAge time.Duration, httpOnly bool) {
	ck := &http.Cookie{
		Name: name, Value: value, Path: "/", HttpOnly: httpOnly,
		Secure: h.cfg.Session.CookieSecure, SameSite: h.sameSite(),
	}
	switch {
	case maxAge < 0:
		ck.MaxAge = -1
	case maxAge > 0:
		ck.MaxAge = int(maxAge.Seconds())
	}
	if h.cfg.Session.CookieDomain != "" {
		ck.Domain = h.cfg.Session.CookieDomain
	}
	http.SetCookie(c.Writer, ck)
}

// readCookie 读取指定名称的 Cookie。
func readCookie(c *gin.Context, name string) string {
	if ck, err := c.Request.Cookie(name); err == nil {
		return ck.Value
	}
	return ""
}

// visitorID 返回请求中的访客 ID；缺失时生成新 ID 并写入一年期 Cookie。
func (h *Handler) visitorID(c *gin.Context, fromBody string) string {
	if v := strings.TrimSpace(fromBody); v != "" {
		return v
	}
	if v := readCookie(c, visitorCookie); v != "" {
		return v
	}
	v := uuid.NewString()
	h.setCookie(c, visitorCookie, v, 365*24*time.Hour, true)
	return v
}

// --- CSRF helpers (double-submit cookie for HTML forms) ---
const csrfCookie = "csrf_token"

func (h *Handler) issueCSRF(c *gin.Context) string {
	tok, err := utils.RandString(32)
	if err != nil {
		tok = uuid.NewString()
	}
	h.setCookie(c, csrfCookie, tok, 0, false)
	return tok
}

func validateCSRF(c *gin.Context) bool {
	f := c.PostForm("csrf_token")
	ck, _ := c.Request.Cookie(csrfCookie)
	if ck == nil || ck.Value == "" || f == "" {
		return false
	}
	return ck.Value == f
}

// safeNext 仅接受站内相对路径，防止开放重定向。
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "://") || strings.Contains(next, "\\") {
		return fallback
	}
	return next
}

// respondError 将服务层错误映射为 HTTP 状态码与错误码。
func respondError(c *gin.Context, err error) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": ve.Fields})
		return
	}
	for _, m := range []struct {
		err    error
		status int
	}{
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrConflict, http.StatusConflict},
		{services.ErrUnknownSetting, http.StatusBadRequest},
		{services.ErrInvalidRole, http.StatusBadRequest},
		{services.ErrWeakPassword, http.StatusBadRequest},
		{services.ErrUnsupportedFile, http.StatusUnsupportedMediaType},
		{services.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{services.ErrBadCredentials, http.StatusUnauthorized},
		{services.ErrMFARequired, http.StatusUnauthorized},
		{services.ErrInvalidOTP, http.StatusUnauthorized},
		{services.ErrTokenRevoked, http.StatusUnauthorized},
		{services.ErrAccessDenied, http.StatusForbidden},
	} {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"error": m.err.Error()})
			return
		}
	}
	log.WithError(err).WithFields(log.Fields{
		"request_id": middlewares.RequestIDFrom(c),
		"path":       c.FullPath(),
	}).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
}

// audit 写入一条审计日志，自动带上当前用户、IP 与请求 ID。
func (h *Handler) audit(c *gin.Context, event, target, desc string) {
	h.logSvc.Write(c, services.LogEntry{
		Level:       "info",
		Event:       event,
		UserID:      c.GetString("user_id"),
		Target:      target,
		Description: desc,
		IP:          c.ClientIP(),
		RequestID:   middlewares.RequestIDFrom(c),
	})
}

// rateLimited 构造按 IP 计数的限流中间件。
func (h *Handler) rateLimited(prefix string, limit int) gin.HandlerFunc {
	return middlewares.RateLimit(h.rdb, prefix, limit, h.cfg.Limits.WindowOrDefault(), middlewares.ByIP)
}
