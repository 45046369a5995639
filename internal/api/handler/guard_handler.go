package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"activity-points/backend/internal/access"
	"activity-points/backend/internal/dto"
	"activity-points/backend/internal/service"
	"activity-points/backend/pkg/response"
	"activity-points/backend/pkg/semester"
)

// GuardHandler 写入守卫 HTTP 处理器
// CRUD 层在写入学期范围内的记录前调用，放行返回 200，拒绝返回 423
type GuardHandler struct {
	guardSvc service.WriteGuard
}

// NewGuardHandler 创建 GuardHandler
func NewGuardHandler(guardSvc service.WriteGuard) *GuardHandler {
	return &GuardHandler{guardSvc: guardSvc}
}

// Check 按班级检查
// POST /api/v1/guard/check
func (h *GuardHandler) Check(c *gin.Context) {
	var req dto.GuardCheckRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	err := h.guardSvc.Check(c.Request.Context(), service.GuardRequest{
		ClassID:   req.ClassID,
		Half:      req.Half,
		YearField: req.YearField,
		ActorRole: actor.Role,
	})
	if err != nil {
		h.handleGuardError(c, err)
		return
	}

	response.OK(c, dto.GuardCheckResponse{Allowed: true})
}

// CheckUser 按用户所属班级检查
// POST /api/v1/guard/check-user
func (h *GuardHandler) CheckUser(c *gin.Context) {
	var req dto.GuardCheckUserRequest
	if !bindJSON(c, &req) {
		return
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = actor.ID
	}
	// 学生与班长只能替自己检查
	if userID != actor.ID && actor.Role != access.RoleAdmin && actor.Role != access.RoleTeacher {
		response.Forbidden(c, 15002, "无权代他人检查")
		return
	}

	if err := h.guardSvc.CheckForUser(c.Request.Context(), userID, req.Half, req.YearField, actor.Role); err != nil {
		h.handleGuardError(c, err)
		return
	}

	response.OK(c, dto.GuardCheckResponse{Allowed: true})
}

// handleGuardError 统一处理守卫拒绝原因
func (h *GuardHandler) handleGuardError(c *gin.Context, err error) {
	var locked *service.LockedError
	switch {
	case errors.As(err, &locked):
		response.Locked(c, 15001, "该学期已锁定，禁止写入", dto.LockedResponse{
			ClassID:  locked.ClassID,
			Semester: locked.SemesterLabel,
			State:    string(locked.State),
		})
	case errors.Is(err, semester.ErrInvalidSemester):
		response.BadRequest(c, 14001, "学期格式无效")
	case errors.Is(err, service.ErrMissingClass):
		response.BadRequest(c, 15004, "缺少班级标识")
	case errors.Is(err, service.ErrGuardUnavailable):
		response.Error(c, http.StatusServiceUnavailable, 15003, "暂时无法确认学期状态，请稍后重试")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
