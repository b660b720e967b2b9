package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"net/http"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/gin-gonic/gin"

	"madajagad/internal/metrics"
	"madajagad/internal/services"
	"madajagad/internal/storage"
)

var errUnauthenticated = errors.New("unauthenticated")

// principal 为当前请求的认证主体（来自会话 Cookie 或 Bearer 令牌）。
type principal struct {
	UserID string
	SID    string
	Claims *services.AccessClaims
}

func (h *Handler) registerAuthRoutes(api *gin.RouterGroup) {
	api.POST("/auth/login", h.rateLimited("login", h.cfg.Limits.LoginPerMinute), h.apiLogin)
	api.POST("/auth/signup", h.rateLimited("signup", h.cfg.Limits.LoginPerMinute), h.apiSignup)
	api.POST("/auth/logout", h.apiLogout)
	api.GET("/me", h.requireUser(h.apiMe))
	api.GET("/me/mfa", h.requireUser(h.apiGetMFA))
	api.POST("/me/mfa/setup", h.requireUser(h.apiSetupMFA))
	api.POST("/me/mfa/activate", h.requireUser(h.apiActivateMFA))
	api.DELETE("/me/mfa", h.requireUser(h.apiDisableMFA))
}

// currentUser 依次尝试 Authorization: Bearer 与会话 Cookie；令牌所属会话已删除时视为未登录。
func (h *Handler) currentUser(c *gin.Context) (*principal, error) {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		claims, err := h.tokenSvc.Verify(c, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
		if err != nil {
			return nil, err
		}
		// 令牌随签发时的会话失效：任一端注销后另一端同样不可用
		if claims.SID != "" {
			if _, err := h.sessionSvc.Get(c, claims.SID); err != nil {
				return nil, err
			}
		}
		return &principal{UserID: claims.Subject, SID: claims.SID, Claims: claims}, nil
	}
	sid := readCookie(c, h.cfg.Session.CookieName)
	if sid == "" {
		return nil, errUnauthenticated
	}
	sess, err := h.sessionSvc.Get(c, sid)
	if err != nil {
		return nil, err
	}
	return &principal{UserID: sess.UserID, SID: sess.SID}, nil
}

func (h *Handler) currentUserRecord(c *gin.Context) (*storage.User, error) {
	p, err := h.currentUser(c)
	if err != nil {
		return nil, err
	}
	return h.userSvc.FindByID(c, p.UserID)
}

// requireUser 要求已登录，并把 user_id 写入上下文。
func (h *Handler) requireUser(fn gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := h.currentUser(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("user_id", p.UserID)
		fn(c)
	}
}

// adminOnly 要求当前用户持有后台角色；角色每次从数据库读取，撤销即时生效。
func (h *Handler) adminOnly(fn gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := h.currentUser(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ok, err := h.roleSvc.HasAny(c, p.UserID, h.cfg.Auth.AdminRoles)
		if err != nil {
			respondError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Set("user_id", p.UserID)
		setNoCache(c)
		fn(c)
	}
}

// signIn 完成认证后的角色校验、会话创建与令牌签发；不允许登录时返回 ErrAccessDenied。
func (h *Handler) signIn(c *gin.Context, email, password, otp string) (*storage.User, *services.Session, string, *services.AccessClaims, error) {
	u, err := h.userSvc.Authenticate(c, email, password, otp)
	if err != nil {
		outcome := "failure"
		if errors.Is(err, services.ErrMFARequired) {
			outcome = "mfa_required"
		}
		metrics.LoginAttempts.WithLabelValues(outcome).Inc()
		h.logSvc.Write(c, services.LogEntry{Level: "warn", Event: "USER_LOGIN_FAILED", Target: strings.ToLower(strings.TrimSpace(email)), Description: err.Error(), IP: c.ClientIP(), RequestID: c.GetString("request_id")})
		return nil, nil, "", nil, err
	}
	allowed, err := h.roleSvc.HasAny(c, u.ID, h.cfg.Auth.LoginRoles)
	if err != nil {
		return nil, nil, "", nil, err
	}
	if !allowed {
		metrics.LoginAttempts.WithLabelValues("denied").Inc()
		h.logSvc.Write(c, services.LogEntry{Level: "warn", Event: "USER_LOGIN_DENIED", UserID: u.ID, Target: u.Email, Description: "missing login role", IP: c.ClientIP(), RequestID: c.GetString("request_id")})
		return nil, nil, "", nil, services.ErrAccessDenied
	}
	roles, err := h.roleSvc.Roles(c, u.ID)
	if err != nil {
		return nil, nil, "", nil, err
	}
	sess, err := h.sessionSvc.New(c, u.ID, roles, u.MFAEnabled)
	if err != nil {
		return nil, nil, "", nil, err
	}
	token, claims, err := h.tokenSvc.Issue(u.ID, roles, sess.SID)
	if err != nil {
		return nil, nil, "", nil, err
	}
	h.setCookie(c, h.cfg.Session.CookieName, sess.SID, h.cfg.Session.TTL, true)
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	c.Set("user_id", u.ID)
	h.audit(c, "USER_LOGIN", u.Email, "login success")
	return u, sess, token, claims, nil
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

// @Summary      登录（JSON）
// @Description  邮箱口令登录；启用 MFA 的账号需提供 otp。成功后写入会话 Cookie 并返回 Bearer 令牌
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body body loginReq true "登录参数"
// @Success      200 {object} map[string]interface{}
// @Failure      401 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Router       /api/auth/login [post]
func (h *Handler) apiLogin(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email_password_required"})
		return
	}
	u, _, token, claims, err := h.signIn(c, req.Email, req.Password, req.OTP)
	if err != nil {
		respondError(c, err)
		return
	}
	roles, _ := h.roleSvc.Roles(c, u.ID)
	setNoCache(c)
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(h.cfg.Auth.AccessTokenTTL.Seconds()),
		"expires_at":   claims.ExpiresAt.Unix(),
		"user":         h.userView(u, roles),
	})
}

// @Summary      注册
// @Description  创建无角色账号，需管理员授权后方可登录后台
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body body map[string]string true "{email,password,name}"
// @Success      201 {object} map[string]interface{}
// @Failure      400 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Failure      409 {object} map[string]string
// @Router       /api/auth/signup [post]
func (h *Handler) apiSignup(c *gin.Context) {
	if !h.cfg.Auth.AllowSignup {
		c.JSON(http.StatusForbidden, gin.H{"error": "signup_disabled"})
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_json"})
		return
	}
	u, err := h.userSvc.Create(c, req.Email, req.Password, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set("user_id", u.ID)
	h.audit(c, "USER_SIGNUP", u.Email, "account created")
	c.JSON(http.StatusCreated, gin.H{"id": u.ID, "email": u.Email, "name": u.Name, "roles": []string{}})
}

// @Summary      注销（JSON）
// @Description  删除会话并撤销当前 Bearer 令牌
// @Tags         auth
// @Success      204 {string} string "No Content"
// @Router       /api/auth/logout [post]
func (h *Handler) apiLogout(c *gin.Context) {
	h.endSession(c)
	c.Status(http.StatusNoContent)
}

// endSession 删除会话、撤销令牌并清理 Cookie。
func (h *Handler) endSession(c *gin.Context) {
	if p, err := h.currentUser(c); err == nil {
		if p.Claims != nil {
			_ = h.tokenSvc.Revoke(c, p.Claims)
		}
		if p.SID != "" {
			_ = h.sessionSvc.Delete(c, p.SID)
		}
		c.Set("user_id", p.UserID)
		h.audit(c, "USER_LOGOUT", p.UserID, "logout")
	}
	if sid := readCookie(c, h.cfg.Session.CookieName); sid != "" {
		_ = h.sessionSvc.Delete(c, sid)
	}
	h.setCookie(c, h.cfg.Session.CookieName, "", -1, true)
}

func (h *Handler) userView(u *storage.User, roles []string) gin.H {
	if roles == nil {
		roles = []string{}
	}
	return gin.H{
		"id":            u.ID,
		"email":         u.Email,
		"name":          u.Name,
		"roles":         roles,
		"mfa_enabled":   u.MFAEnabled,
		"is_admin":      hasAny(roles, h.cfg.Auth.AdminRoles),
		"created_at":    u.CreatedAt,
		"last_login_at": u.LastLoginAt,
	}
}

func hasAny(have, allow []string) bool {
	for _, a := range allow {
		for _, r := range have {
			if a == r {
				return true
			}
		}
	}
	return false
}

// @Summary      当前用户信息
// @Tags         auth
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Failure      401 {object} map[string]string
// @Router       /api/me [get]
func (h *Handler) apiMe(c *gin.Context) {
	u, err := h.userSvc.FindByID(c, c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	roles, err := h.roleSvc.Roles(c, u.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	setNoCache(c)
	c.JSON(http.StatusOK, h.userView(u, roles))
}

// --- MFA ---------------------------------------------------------------------

type mfaStateResponse struct {
	Enabled    bool   `json:"enabled"`
	Pending    bool   `json:"pending"`
	Secret     string `json:"secret,omitempty"`
	OtpauthURL string `json:"otpauth_url,omitempty"`
	OtpauthQR  string `json:"otpauth_qr,omitempty"`
	LastUsedAt *int64 `json:"last_used_at,omitempty"`
	EnrolledAt *int64 `json:"enrolled_at,omitempty"`
}

// @Summary      获取 MFA 状态
// @Tags         auth
// @Produce      json
// @Success      200 {object} mfaStateResponse
// @Failure      401 {object} map[string]string
// @Router       /api/me/mfa [get]
func (h *Handler) apiGetMFA(c *gin.Context) {
	u, err := h.userSvc.FindByID(c, c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	resp := mfaStateResponse{Enabled: u.MFAEnabled}
	if !u.MFAEnabled && u.MFAPendingSecret != "" {
		secret, err := h.userSvc.PendingSecret(u)
		if err != nil {
			respondError(c, err)
			return
		}
		resp.Pending = true
		resp.Secret = secret
		resp.OtpauthURL = h.userSvc.OtpauthURL(u, secret)
		resp.OtpauthQR = buildOTPQRCode(resp.OtpauthURL)
	}
	if u.MFALastUsedAt != nil {
		v := u.MFALastUsedAt.Unix()
		resp.LastUsedAt = &v
	}
	if u.MFAEnrolledAt != nil {
		v := u.MFAEnrolledAt.Unix()
		resp.EnrolledAt = &v
	}
	setNoCache(c)
	c.JSON(http.StatusOK, resp)
}

// @Summary      生成 MFA 绑定信息
// @Description  为当前用户生成新的 TOTP 秘钥（已存在待激活秘钥时复用）
// @Tags         auth
// @Produce      json
// @Success      200 {object} mfaStateResponse
// @Failure      401 {object} map[string]string
// @Failure      409 {object} map[string]string
// @Router       /api/me/mfa/setup [post]
func (h *Handler) apiSetupMFA(c *gin.Context) {
	u, err := h.userSvc.FindByID(c, c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if u.MFAEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "mfa_already_enabled"})
		return
	}
	secret, err := h.userSvc.BeginMFA(c, u)
	if err != nil {
		respondError(c, err)
		return
	}
	otpauth := h.userSvc.OtpauthURL(u, secret)
	setNoCache(c)
	c.JSON(http.StatusOK, mfaStateResponse{
		Pending:    true,
		Secret:     secret,
		OtpauthURL: otpauth,
		OtpauthQR:  buildOTPQRCode(otpauth),
	})
}

// @Summary      激活 MFA
// @Description  校验一次性验证码并启用当前用户的 MFA
// @Tags         auth
// @Accept       json
// @Param        body body map[string]string true "{code}"
// @Success      204 {string} string "No Content"
// @Failure      400 {object} map[string]string
// @Failure      401 {object} map[string]string
// @Router       /api/me/mfa/activate [post]
func (h *Handler) apiActivateMFA(c *gin.Context) {
	u, err := h.userSvc.FindByID(c, c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if u.MFAPendingSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_pending_secret"})
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code_required"})
		return
	}
	if err := h.userSvc.ActivateMFA(c, u, req.Code); err != nil {
		if errors.Is(err, services.ErrInvalidOTP) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_code"})
			return
		}
		respondError(c, err)
		return
	}
	h.audit(c, "MFA_ENABLED", u.Email, "totp activated")
	c.Status(http.StatusNoContent)
}

// @Summary      关闭 MFA
// @Tags         auth
// @Success      204 {string} string "No Content"
// @Failure      401 {object} map[string]string
// @Router       /api/me/mfa [delete]
func (h *Handler) apiDisableMFA(c *gin.Context) {
	u, err := h.userSvc.FindByID(c, c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := h.userSvc.DisableMFA(c, u); err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "MFA_DISABLED", u.Email, "totp disabled")
	c.Status(http.StatusNoContent)
}

// buildOTPQRCode 将 otpauth 链接编码为 PNG 二维码 data URI。
func buildOTPQRCode(otpauthURL string) string {
	if otpauthURL == "" {
		return ""
	}
	code, err := qr.Encode(otpauthURL, qr.M, qr.Auto)
	if err != nil {
		return ""
	}
	scaled, err := barcode.Scale(code, 256, 256)
	if err != nil {
		return ""
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, scaled); err != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
