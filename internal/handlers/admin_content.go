package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"madajagad/internal/services"
)

// maxBatchIDs 单次批量操作允许的最大 ID 数。
const maxBatchIDs = 500

type batchReq struct {
	Action string   `json:"action"` // publish | unpublish | delete
	IDs    []string `json:"ids"`
}

type reorderReq struct {
	IDs []string `json:"ids"`
}

// registerContent 为一类内容挂载后台 CRUD、批量操作与排序端点：
//
//	GET/POST        /{kind}
//	GET/PUT/DELETE  /{kind}/:id
//	POST            /{kind}/batch
//	POST            /{kind}/reorder
func registerContent[T any, PT interface {
	*T
	services.Entity
}](h *Handler, g *gin.RouterGroup, svc *services.ContentService[T, PT]) {
	kind := svc.Kind()
	base := "/" + kind
	event := func(action string) string { return fmt.Sprintf("CONTENT_%s", action) }

	g.GET(base, h.adminOnly(func(c *gin.Context) {
		rows, err := svc.ListAll(c)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}))

	// 新建时未提供 is_published 则直接发布，与后台表单默认值一致
	g.POST(base, h.adminOnly(func(c *gin.Context) {
		in := new(T)
		PT(in).GetMeta().IsPublished = true
		if err := c.ShouldBindJSON(in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_json"})
			return
		}
		if err := svc.Create(c, in); err != nil {
			respondError(c, err)
			return
		}
		id := PT(in).GetMeta().ID
		h.audit(c, event("CREATED"), kind+"/"+id, "")
		c.JSON(http.StatusCreated, in)
	}))

	g.GET(base+"/:id", h.adminOnly(func(c *gin.Context) {
		row, err := svc.Get(c, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}))

	// PUT 将请求体合并到现有记录上：未出现的字段（含 is_published、sort_order）保持原值
	g.PUT(base+"/:id", h.adminOnly(func(c *gin.Context) {
		id := c.Param("id")
		in, err := svc.Get(c, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := c.ShouldBindJSON(in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_json"})
			return
		}
		row, err := svc.Update(c, id, in)
		if err != nil {
			respondError(c, err)
			return
		}
		h.audit(c, event("UPDATED"), kind+"/"+id, "")
		c.JSON(http.StatusOK, row)
	}))

	g.DELETE(base+"/:id", h.adminOnly(func(c *gin.Context) {
		id := c.Param("id")
		if err := svc.Delete(c, id); err != nil {
			respondError(c, err)
			return
		}
		h.audit(c, event("DELETED"), kind+"/"+id, "")
		c.Status(http.StatusNoContent)
	}))

	g.POST(base+"/batch", h.adminOnly(func(c *gin.Context) {
		var req batchReq
		if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ids_required"})
			return
		}
		if len(req.IDs) > maxBatchIDs {
			c.JSON(http.StatusBadRequest, gin.H{"error": "too_many_ids"})
			return
		}
		var (
			n   int64
			err error
		)
		switch req.Action {
		case "publish":
			n, err = svc.SetPublished(c, req.IDs, true)
		case "unpublish":
			n, err = svc.SetPublished(c, req.IDs, false)
		case "delete":
			n, err = svc.DeleteMany(c, req.IDs)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		h.audit(c, event("BATCH_"+strings.ToUpper(req.Action)), kind, fmt.Sprintf("%d of %d rows", n, len(req.IDs)))
		c.JSON(http.StatusOK, gin.H{"action": req.Action, "affected": n})
	}))

	g.POST(base+"/reorder", h.adminOnly(func(c *gin.Context) {
		var req reorderReq
		if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ids_required"})
			return
		}
		if len(req.IDs) > maxBatchIDs {
			c.JSON(http.StatusBadRequest, gin.H{"error": "too_many_ids"})
			return
		}
		if err := svc.Reorder(c, req.IDs); err != nil {
			respondError(c, err)
			return
		}
		h.audit(c, event("REORDERED"), kind, fmt.Sprintf("%d rows", len(req.IDs)))
		c.Status(http.StatusNoContent)
	}))
}
