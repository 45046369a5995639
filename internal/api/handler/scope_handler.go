package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"activity-points/backend/internal/access"
	"activity-points/backend/internal/dto"
	"activity-points/backend/internal/service"
	"activity-points/backend/pkg/response"
)

// ScopeHandler 查询作用域 HTTP 处理器
type ScopeHandler struct {
	scopeSvc service.ScopeService
}

// NewScopeHandler 创建 ScopeHandler
func NewScopeHandler(scopeSvc service.ScopeService) *ScopeHandler {
	return &ScopeHandler{scopeSvc: scopeSvc}
}

// GetScope 获取调用者对资源的查询作用域
// GET /api/v1/scopes/:resource?mine=true
func (h *ScopeHandler) GetScope(c *gin.Context) {
	resource, ok := access.ParseResource(c.Param("resource"))
	if !ok {
		response.BadRequest(c, 15005, "未知的资源类型")
		return
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	mine, _ := strconv.ParseBool(c.Query("mine"))

	ctx := c.Request.Context()
	pred := h.scopeSvc.Scope(ctx, resource, actor)
	if mine {
		pred = pred.Merge(h.scopeSvc.OwnershipScope(ctx, resource, actor))
	}

	response.OK(c, dto.ScopeResponse{
		Resource:  string(resource),
		Mine:      mine,
		Predicate: pred,
		Where:     pred.String(),
	})
}

// CheckItem 判断调用者能否访问单条记录
// GET /api/v1/scopes/:resource/items/:id
func (h *ScopeHandler) CheckItem(c *gin.Context) {
	resource, ok := access.ParseResource(c.Param("resource"))
	if !ok {
		response.BadRequest(c, 15005, "未知的资源类型")
		return
	}

	itemID := c.Param("id")
	if itemID == "" {
		response.BadRequest(c, 10001, "记录ID不能为空")
		return
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	allowed := h.scopeSvc.CanAccessItem(c.Request.Context(), resource, itemID, actor)
	response.OK(c, dto.GuardCheckResponse{Allowed: allowed})
}
