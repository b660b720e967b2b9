package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"madajagad/internal/metrics"
	"madajagad/internal/services"
	"madajagad/internal/storage"
)

// liveRefreshHeader 标记首页在内容变更后由脚本发起的局部刷新请求。
const liveRefreshHeader = "X-Live-Refresh"

// landingData 为首页模板数据。
type landingData struct {
	Settings     map[string]string
	WhatsAppURL  string
	About        *storage.AboutContent
	Services     []storage.Service
	Projects     []storage.Project
	Team         []storage.TeamMember
	Testimonials []storage.Testimonial
	Org          services.OrgChart
	VisitorID    string
	BaseURL      string
	Year         int
}

// loadLanding 并发读取首页所需的全部已发布内容。
func (h *Handler) loadLanding(c *gin.Context) (*landingData, error) {
	d := &landingData{Year: time.Now().Year()}
	var org []storage.OrgMember
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() (err error) { d.Settings, err = h.settingSvc.All(ctx); return })
	g.Go(func() (err error) { d.Services, err = h.catalog.Services.ListPublished(ctx); return })
	g.Go(func() (err error) { d.Projects, err = h.catalog.Projects.ListPublished(ctx); return })
	g.Go(func() (err error) { d.Team, err = h.catalog.Team.ListPublished(ctx); return })
	g.Go(func() (err error) { d.Testimonials, err = h.catalog.Testimonials.ListPublished(ctx); return })
	g.Go(func() (err error) { org, err = h.catalog.Organization.ListPublished(ctx); return })
	g.Go(func() error {
		about, err := h.aboutSvc.Published(ctx)
		if errors.Is(err, services.ErrNotFound) {
			return nil
		}
		d.About = about
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	d.Org = services.GroupOrg(org)
	d.WhatsAppURL = services.WhatsAppURL(d.Settings)
	return d, nil
}

// @Summary      首页
// @Description  服务端渲染的营销首页，并记录一次页面浏览
// @Tags         site
// @Produce      html
// @Success      200 {string} string "HTML"
// @Router       / [get]
func (h *Handler) landing(c *gin.Context) {
	d, err := h.loadLanding(c)
	if err != nil {
		log.WithError(err).Error("load landing page")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	// 实时刷新只替换页面片段，不计为新的浏览
	if c.GetHeader(liveRefreshHeader) != "" {
		d.VisitorID = readCookie(c, visitorCookie)
		setNoCache(c)
		c.HTML(http.StatusOK, "index.html", d)
		return
	}
	d.VisitorID = h.visitorID(c, "")
	d.BaseURL = h.baseURL(c)
	visit, err := h.visitSvc.Record(c, services.VisitInput{
		VisitorID: d.VisitorID,
		Path:      c.Request.URL.Path,
		Referrer:  c.Request.Referer(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		log.WithError(err).Warn("record page visit")
	} else {
		metrics.PageVisits.WithLabelValues(visit.DeviceType).Inc()
	}
	c.HTML(http.StatusOK, "index.html", d)
}

// @Summary      登录页
// @Description  显示后台登录表单
// @Tags         ui
// @Produce      html
// @Success      200 {string} string "HTML"
// @Router       /login [get]
func (h *Handler) loginPage(c *gin.Context) {
	csrf := h.issueCSRF(c)
	setNoCache(c)
	c.HTML(http.StatusOK, "login.html", gin.H{"csrf": csrf, "next": safeNext(c.Query("next"), "")})
}

// @Summary      提交登录
// @Description  处理邮箱口令（及 TOTP）登录表单
// @Tags         ui
// @Accept       x-www-form-urlencoded
// @Produce      html
// @Param        email     formData string true  "邮箱"
// @Param        password  formData string true  "密码"
// @Param        otp       formData string false "验证码"
// @Success      302 {string} string "重定向至后台"
// @Failure      401 {string} string "HTML 登录页（含错误）"
// @Router       /login [post]
func (h *Handler) loginSubmit(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	next := safeNext(c.PostForm("next"), "")
	render := func(status int, msg string) {
		c.HTML(status, "login.html", gin.H{"error": msg, "email": email, "next": next, "csrf": h.issueCSRF(c)})
	}
	if !validateCSRF(c) {
		render(http.StatusUnauthorized, "Session expired, please try again.")
		return
	}
	_, _, _, _, err := h.signIn(c, email, c.PostForm("password"), c.PostForm("otp"))
	switch {
	case err == nil:
		c.Redirect(http.StatusFound, safeNext(next, "/admin"))
	case errors.Is(err, services.ErrMFARequired):
		render(http.StatusUnauthorized, "Enter the code from your authenticator app.")
	case errors.Is(err, services.ErrInvalidOTP):
		render(http.StatusUnauthorized, "Invalid authenticator code.")
	case errors.Is(err, services.ErrAccessDenied):
		render(http.StatusForbidden, "Your account does not have access to the admin panel.")
	case errors.Is(err, services.ErrBadCredentials):
		render(http.StatusUnauthorized, "Invalid email or password.")
	default:
		log.WithError(err).Error("login failed")
		render(http.StatusInternalServerError, "Something went wrong, please try again.")
	}
}

// @Summary      注销（表单）
// @Tags         ui
// @Accept       x-www-form-urlencoded
// @Success      302 {string} string "重定向至首页"
// @Router       /logout [post]
func (h *Handler) logoutSubmit(c *gin.Context) {
	if !validateCSRF(c) {
		c.String(http.StatusBadRequest, "csrf_failed")
		return
	}
	h.endSession(c)
	c.Redirect(http.StatusFound, "/")
}
