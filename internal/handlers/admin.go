package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"madajagad/internal/metrics"
	"madajagad/internal/services"
)

func (h *Handler) registerAdminRoutes(admin *gin.RouterGroup) {
	registerContent(h, admin, h.catalog.Services)
	registerContent(h, admin, h.catalog.Projects)
	registerContent(h, admin, h.catalog.Team)
	registerContent(h, admin, h.catalog.Testimonials)
	registerContent(h, admin, h.catalog.Organization)

	admin.GET("/settings", h.adminOnly(h.adminGetSettings))
	admin.PUT("/settings", h.adminOnly(h.adminUpdateSettings))

	admin.GET("/about", h.adminOnly(h.adminGetAbout))
	admin.PUT("/about", h.adminOnly(h.adminSaveAbout))
	admin.POST("/about/publish", h.adminOnly(h.adminToggleAbout))
	admin.GET("/about/history", h.adminOnly(h.adminAboutHistory))

	admin.POST("/uploads", h.adminOnly(h.adminUpload))
	admin.DELETE("/uploads", h.adminOnly(h.adminDeleteUpload))

	admin.GET("/analytics", h.adminOnly(h.adminAnalytics))

	admin.GET("/messages", h.adminOnly(h.adminListMessages))
	admin.POST("/messages/:id/read", h.adminOnly(h.adminReadMessage))
	admin.DELETE("/messages/:id", h.adminOnly(h.adminDeleteMessage))

	admin.GET("/users", h.adminOnly(h.adminListUsers))
	admin.PUT("/users/:id/roles", h.adminOnly(h.adminSetRoles))

	admin.GET("/logs", h.adminOnly(h.adminListLogs))
}

// --- Settings ----------------------------------------------------------------

// @Summary      管理员 - 读取站点设置
// @Tags         admin-api
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Router       /api/admin/settings [get]
func (h *Handler) adminGetSettings(c *gin.Context) {
	settings, err := h.settingSvc.All(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": h.settingSvc.Keys(), "settings": settings, "defaults": h.settingSvc.Defaults(), "whatsapp_url": services.WhatsAppURL(settings)})
}

// @Summary      管理员 - 保存站点设置
// @Description  仅接受已知键；包含未知键时返回 400 unknown_setting
// @Tags         admin-api
// @Accept       json
// @Produce      json
// @Param        body body map[string]string true "键值对"
// @Success      200 {object} map[string]interface{}
// @Failure      400 {object} map[string]string
// @Router       /api/admin/settings [put]
func (h *Handler) adminUpdateSettings(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_json"})
		return
	}
	settings, err := h.settingSvc.Update(c, req)
	if err != nil {
		respondError(c, err)
		return
	}
	keys := make([]string, 0, len(req))
	for k := range req {
		keys = append(keys, k)
	}
	h.audit(c, "SETTINGS_UPDATED", "site_settings", strings.Join(keys, ","))
	c.JSON(http.StatusOK, gin.H{"settings": settings, "whatsapp_url": services.WhatsAppURL(settings)})
}

// --- About -------------------------------------------------------------------

// @Summary      管理员 - 读取"关于我们"
// @Description  返回当前内容；不存在时创建默认草稿
// @Tags         admin-api
// @Produce      json
// @Success      200 {object} storage.AboutContent
// @Router       /api/admin/about [get]
func (h *Handler) adminGetAbout(c *gin.Context) {
	about, err := h.aboutSvc.Current(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, about)
}

// @Summary      管理员 - 保存"关于我们"
// @Description  写入历史快照并将版本号 +1
// @Tags         admin-api
// @Accept       json
// @Produce      json
// @Param        body body services.AboutInput true "内容"
// @Success      200 {object} storage.AboutContent
// @Failure      400 {object} map[string]string
// @Router       /api/admin/about [put]
func (h *Handler) adminSaveAbout(c *gin.Context) {
	var in services.AboutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_json"})
		return
	}
	about, err := h.aboutSvc.Save(c, in, c.GetString("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "ABOUT_SAVED", about.ID, "version "+strconv.Itoa(about.Version))
	c.JSON(http.StatusOK, about)
}

// @Summary      管理员 - 切换"关于我们"发布状态
// @Tags         admin-api
// @Produce      json
// @Success      200 {object} storage.AboutContent
// @Router       /api/admin/about/publish [post]
func (h *Handler) adminToggleAbout(c *gin.Context) {
	about, err := h.aboutSvc.TogglePublish(c)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "ABOUT_PUBLISH_TOGGLED", about.ID, strconv.FormatBool(about.IsPublished))
	c.JSON(http.StatusOK, about)
}

// @Summary      管理员 - "关于我们"历史版本
// @Tags         admin-api
// @Produce      json
// @Param        limit query int false "条数（默认 50）"
// @Success      200 {array} storage.AboutHistory
// @Router       /api/admin/about/history [get]
func (h *Handler) adminAboutHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.aboutSvc.History(c, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// --- Uploads -----------------------------------------------------------------

// @Summary      管理员 - 上传图片
// @Description  multipart 表单：file、bucket（默认 images）、folder；仅接受位图图片
// @Tags         admin-api
// @Accept       multipart/form-data
// @Produce      json
// @Param        file   formData file   true  "图片文件"
// @Param        bucket formData string false "存储桶"
// @Param        folder formData string false "目录"
// @Success      201 {object} services.Upload
// @Failure      400 {object} map[string]string
// @Failure      413 {object} map[string]string
// @Failure      415 {object} map[string]string
// @Router       /api/admin/uploads [post]
func (h *Handler) adminUpload(c *gin.Context) {
	// 预留 multipart 头部开销
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Upload.MaxBytes+64<<10)
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			respondError(c, services.ErrFileTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	if fh.Size > h.cfg.Upload.MaxBytes {
		respondError(c, services.ErrFileTooLarge)
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()
	bucket := c.DefaultPostForm("bucket", "images")
	up, err := h.uploadSvc.Save(c, bucket, c.PostForm("folder"), f)
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.Uploads.WithLabelValues(up.Bucket).Inc()
	h.audit(c, "UPLOAD_CREATED", up.Path, up.MIME)
	c.JSON(http.StatusCreated, up)
}

// @Summary      管理员 - 删除图片
// @Tags         admin-api
// @Param        path query string true "上传返回的 path 或 url"
// @Success      204 {string} string "No Content"
// @Failure      400 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /api/admin/uploads [delete]
func (h *Handler) adminDeleteUpload(c *gin.Context) {
	p := c.Query("path")
	if p == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path_required"})
		return
	}
	if err := h.uploadSvc.Remove(c, p); err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "UPLOAD_DELETED", p, "")
	c.Status(http.StatusNoContent)
}

// --- Analytics ---------------------------------------------------------------

// parsePeriod 解析 7d/30d/90d 形式的统计窗口。
func parsePeriod(p string) (int, bool) {
	switch p {
	case "":
		return 0, true
	case "7d":
		return 7, true
	case "30d":
		return 30, true
	case "90d":
		return 90, true
	}
	return 0, false
}

// @Summary      管理员 - 访问统计看板
// @Description  访问量、独立访客、平均停留、跳出率、热门页面、设备分布、每日访问，以及各内容表计数
// @Tags         admin-api
// @Produce      json
// @Param        period query string false "7d | 30d | 90d（默认配置窗口）"
// @Success      200 {object} map[string]interface{}
// @Failure      400 {object} map[string]string
// @Router       /api/admin/analytics [get]
func (h *Handler) adminAnalytics(c *gin.Context) {
	days, ok := parsePeriod(c.Query("period"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_period"})
		return
	}
	visitors, err := h.visitSvc.Stats(c, days)
	if err != nil {
		respondError(c, err)
		return
	}
	content, err := h.statsSvc.Content(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"visitors": visitors, "content": content, "generated_at": time.Now()})
}

// --- Contact messages ----------------------------------------------------------

// @Summary      管理员 - 留言列表
// @Tags         admin-api
// @Produce      json
// @Param        unread query bool false "仅未读"
// @Param        limit  query int  false "条数（默认 100）"
// @Success      200 {array} storage.ContactMessage
// @Router       /api/admin/messages [get]
func (h *Handler) adminListMessages(c *gin.Context) {
	unread, _ := strconv.ParseBool(c.Query("unread"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.contactSvc.List(c, unread, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// @Summary      管理员 - 标记留言已读
// @Tags         admin-api
// @Param        id path string true "留言 ID"
// @Success      204 {string} string "No Content"
// @Failure      404 {object} map[string]string
// @Router       /api/admin/messages/{id}/read [post]
func (h *Handler) adminReadMessage(c *gin.Context) {
	if err := h.contactSvc.MarkRead(c, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      管理员 - 删除留言
// @Tags         admin-api
// @Param        id path string true "留言 ID"
// @Success      204 {string} string "No Content"
// @Failure      404 {object} map[string]string
// @Router       /api/admin/messages/{id} [delete]
func (h *Handler) adminDeleteMessage(c *gin.Context) {
	id := c.Param("id")
	if err := h.contactSvc.Delete(c, id); err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "MESSAGE_DELETED", id, "")
	c.Status(http.StatusNoContent)
}

// --- Users & roles -----------------------------------------------------------

// @Summary      管理员 - 用户列表
// @Tags         admin-api
// @Produce      json
// @Success      200 {array} map[string]interface{}
// @Router       /api/admin/users [get]
func (h *Handler) adminListUsers(c *gin.Context) {
	users, err := h.userSvc.List(c, 500)
	if err != nil {
		respondError(c, err)
		return
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	roles, err := h.roleSvc.RolesOf(c, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(users))
	for i := range users {
		out = append(out, h.userView(&users[i], roles[users[i].ID]))
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      管理员 - 设置用户角色
// @Description  以给定列表整体替换角色；不能移除自己的管理员角色
// @Tags         admin-api
// @Accept       json
// @Produce      json
// @Param        id   path string true "用户 ID"
// @Param        body body map[string][]string true "{roles}"
// @Success      200 {object} map[string]interface{}
// @Failure      400 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /api/admin/users/{id}/roles [put]
func (h *Handler) adminSetRoles(c *gin.Context) {
	var req struct {
		Roles []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_json"})
		return
	}
	id := c.Param("id")
	u, err := h.userSvc.FindByID(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if id == c.GetString("user_id") && !hasAny(req.Roles, h.cfg.Auth.AdminRoles) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot_demote_self"})
		return
	}
	if err := h.roleSvc.Set(c, id, req.Roles); err != nil {
		respondError(c, err)
		return
	}
	roles, err := h.roleSvc.Roles(c, id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "USER_ROLES_UPDATED", u.Email, strings.Join(roles, ","))
	c.JSON(http.StatusOK, h.userView(u, roles))
}

// --- Audit logs --------------------------------------------------------------

// @Summary      管理员 - 审计日志
// @Tags         admin-api
// @Produce      json
// @Param        event   query string false "事件名"
// @Param        user_id query string false "用户 ID"
// @Param        level   query string false "级别"
// @Param        since   query string false "RFC3339 起始时间"
// @Param        limit   query int    false "条数（默认 100）"
// @Success      200 {array} storage.LogRecord
// @Failure      400 {object} map[string]string
// @Router       /api/admin/logs [get]
func (h *Handler) adminListLogs(c *gin.Context) {
	q := services.LogQuery{Event: c.Query("event"), UserID: c.Query("user_id"), Level: c.Query("level")}
	q.Limit, _ = strconv.Atoi(c.Query("limit"))
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_since"})
			return
		}
		q.Since = t
	}
	rows, err := h.logSvc.Query(c, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
