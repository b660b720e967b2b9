package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"madajagad/internal/metrics"
	"madajagad/internal/services"
	"madajagad/internal/storage"
)

// publicCache 公开内容允许浏览器短暂缓存。
func publicCache(c *gin.Context) { c.Header("Cache-Control", "public, max-age=30") }

// @Summary      站点设置
// @Description  默认文案叠加后台设置，并附带 WhatsApp 咨询链接
// @Tags         public
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Router       /api/public/site [get]
func (h *Handler) publicSite(c *gin.Context) {
	settings, err := h.settingSvc.All(c)
	if err != nil {
		respondError(c, err)
		return
	}
	publicCache(c)
	c.JSON(http.StatusOK, gin.H{"settings": settings, "whatsapp_url": services.WhatsAppURL(settings)})
}

// listPublished 输出某类内容的已发布记录。
func listPublished[T any](c *gin.Context, list func(*gin.Context) ([]T, error)) {
	rows, err := list(c)
	if err != nil {
		respondError(c, err)
		return
	}
	publicCache(c)
	c.JSON(http.StatusOK, rows)
}

// @Summary      已发布服务项目
// @Tags         public
// @Produce      json
// @Success      200 {array} storage.Service
// @Router       /api/public/services [get]
func (h *Handler) publicServices(c *gin.Context) {
	listPublished(c, func(c *gin.Context) ([]storage.Service, error) { return h.catalog.Services.ListPublished(c) })
}

// @Summary      已发布工程案例
// @Tags         public
// @Produce      json
// @Success      200 {array} storage.Project
// @Router       /api/public/projects [get]
func (h *Handler) publicProjects(c *gin.Context) {
	listPublished(c, func(c *gin.Context) ([]storage.Project, error) { return h.catalog.Projects.ListPublished(c) })
}

// @Summary      已发布团队成员
// @Tags         public
// @Produce      json
// @Success      200 {array} storage.TeamMember
// @Router       /api/public/team [get]
func (h *Handler) publicTeam(c *gin.Context) {
	listPublished(c, func(c *gin.Context) ([]storage.TeamMember, error) { return h.catalog.Team.ListPublished(c) })
}

// @Summary      已发布客户评价
// @Tags         public
// @Produce      json
// @Success      200 {array} storage.Testimonial
// @Router       /api/public/testimonials [get]
func (h *Handler) publicTestimonials(c *gin.Context) {
	listPublished(c, func(c *gin.Context) ([]storage.Testimonial, error) { return h.catalog.Testimonials.ListPublished(c) })
}

// @Summary      组织架构
// @Description  按层级与排序返回已发布成员，并按管理层/员工分组
// @Tags         public
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Router       /api/public/organization [get]
func (h *Handler) publicOrganization(c *gin.Context) {
	rows, err := h.catalog.Organization.ListPublished(c)
	if err != nil {
		respondError(c, err)
		return
	}
	chart := services.GroupOrg(rows)
	publicCache(c)
	c.JSON(http.StatusOK, gin.H{"members": rows, "management": chart.Management, "staff": chart.Staff})
}

// @Summary      关于我们
// @Tags         public
// @Produce      json
// @Success      200 {object} storage.AboutContent
// @Failure      404 {object} map[string]string
// @Router       /api/public/about [get]
func (h *Handler) publicAbout(c *gin.Context) {
	about, err := h.aboutSvc.Published(c)
	if err != nil {
		respondError(c, err)
		return
	}
	publicCache(c)
	c.JSON(http.StatusOK, about)
}

// @Summary      内容变更事件流
// @Description  Server-Sent Events；内容写入后推送 change 事件，每 25 秒发送心跳
// @Tags         public
// @Produce      text/event-stream
// @Success      200 {string} string "event stream"
// @Router       /api/public/events [get]
func (h *Handler) publicEvents(c *gin.Context) {
	ctx := c.Request.Context()
	ch, closeSub := h.events.Subscribe(ctx)
	defer closeSub()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	ping := time.NewTicker(25 * time.Second)
	defer ping.Stop()
	c.SSEvent("ready", gin.H{"at": time.Now()})
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("change", ev)
			return true
		case <-ping.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		}
	})
}

type visitReq struct {
	VisitorID string `json:"visitor_id"`
	Path      string `json:"path"`
	Referrer  string `json:"referrer"`
}

// @Summary      记录页面浏览
// @Description  设备类型由 User-Agent 推导；visitor_id 缺省时取 vid Cookie 或新生成
// @Tags         visits
// @Accept       json
// @Produce      json
// @Param        body body visitReq true "浏览信息"
// @Success      201 {object} map[string]interface{}
// @Failure      400 {object} map[string]string
// @Router       /api/visits [post]
func (h *Handler) recordVisit(c *gin.Context) {
	var req visitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_json"})
		return
	}
	v, err := h.visitSvc.Record(c, services.VisitInput{
		VisitorID: h.visitorID(c, req.VisitorID),
		Path:      req.Path,
		Referrer:  req.Referrer,
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	metrics.PageVisits.WithLabelValues(v.DeviceType).Inc()
	c.JSON(http.StatusCreated, gin.H{"id": v.ID, "visitor_id": v.VisitorID, "device_type": v.DeviceType})
}

type durationReq struct {
	VisitorID string `json:"visitor_id"`
	Path      string `json:"path"`
	Duration  int    `json:"duration"`
}

// @Summary      回写停留时长
// @Description  更新该访客在该路径上最近一次浏览的停留秒数（兼容 sendBeacon 的 text/plain 请求体）
// @Tags         visits
// @Accept       json
// @Param        body body durationReq true "时长信息"
// @Success      204 {string} string "No Content"
// @Failure      400 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /api/visits/duration [post]
func (h *Handler) updateVisitDuration(c *gin.Context) {
	var req durationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_json"})
		return
	}
	vid := req.VisitorID
	if vid == "" {
		vid = readCookie(c, visitorCookie)
	}
	if vid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "visitor_required"})
		return
	}
	if err := h.visitSvc.UpdateDuration(c, vid, req.Path, req.Duration); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      提交联系表单
// @Tags         public
// @Accept       json
// @Produce      json
// @Param        body body services.ContactInput true "留言"
// @Success      201 {object} map[string]string
// @Failure      400 {object} map[string]string
// @Failure      429 {object} map[string]string
// @Router       /api/contact [post]
func (h *Handler) submitContact(c *gin.Context) {
	var in services.ContactInput
	if err := c.ShouldBind(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	msg, err := h.contactSvc.Submit(c, in, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit(c, "CONTACT_SUBMITTED", msg.ID, msg.Email)
	c.JSON(http.StatusCreated, gin.H{"id": msg.ID, "status": "received"})
}
