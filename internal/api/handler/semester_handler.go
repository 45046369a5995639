package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"activity-points/backend/internal/access"
	"activity-points/backend/internal/closure"
	"activity-points/backend/internal/dto"
	"activity-points/backend/internal/service"
	pkgerrors "activity-points/backend/pkg/errors"
	"activity-points/backend/pkg/response"
	"activity-points/backend/pkg/semester"
)

// SemesterHandler 学期与写锁关闭流程 HTTP 处理器
type SemesterHandler struct {
	activeSvc   service.ActiveTermService
	closureSvc  service.ClosureService
	snapshotSvc service.SnapshotService
	scopeSvc    service.ScopeService
}

// NewSemesterHandler 创建 SemesterHandler
func NewSemesterHandler(
	activeSvc service.ActiveTermService,
	closureSvc service.ClosureService,
	snapshotSvc service.SnapshotService,
	scopeSvc service.ScopeService,
) *SemesterHandler {
	return &SemesterHandler{
		activeSvc:   activeSvc,
		closureSvc:  closureSvc,
		snapshotSvc: snapshotSvc,
		scopeSvc:    scopeSvc,
	}
}

// GetCurrentSemester 获取当前活动学期
// GET /api/v1/semesters/current
func (h *SemesterHandler) GetCurrentSemester(c *gin.Context) {
	active, err := h.activeSvc.Current(c.Request.Context())
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, dto.NewCurrentSemesterResponse(active, h.activeSvc.FromDate()))
}

// ActivateSemester 设置活动学期
// PUT /api/v1/semesters/active
func (h *SemesterHandler) ActivateSemester(c *gin.Context) {
	var req dto.ActivateSemesterRequest
	if !bindJSON(c, &req) {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	key, err := semester.ParseFull(req.Semester)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	previous, err := h.activeSvc.Activate(c.Request.Context(), key, callerID)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, dto.ActivateSemesterResponse{Active: key.Label(), Previous: previous.Label()})
}

// GetStatus 查询班级学期写锁状态
// GET /api/v1/semesters/status/:classId/:semester
func (h *SemesterHandler) GetStatus(c *gin.Context) {
	classID, key, ok := h.classTermParams(c)
	if !ok {
		return
	}

	state, err := h.closureSvc.Status(c.Request.Context(), classID, key)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, dto.NewLockStateResponse(state))
}

// GetSnapshot 查询最近一次快照并校验
// GET /api/v1/semesters/snapshot/:classId/:semester
func (h *SemesterHandler) GetSnapshot(c *gin.Context) {
	classID, key, ok := h.classTermParams(c)
	if !ok {
		return
	}

	report, err := h.snapshotSvc.Latest(c.Request.Context(), classID, key)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, dto.NewSnapshotResponse(report.Record, report.ChecksumValid))
}

// ProposeClose 提议关闭学期
// POST /api/v1/semesters/propose-close
func (h *SemesterHandler) ProposeClose(c *gin.Context) {
	var req dto.ClosureRequest
	if !bindJSON(c, &req) {
		return
	}
	h.transition(c, req, h.closureSvc.ProposeClose)
}

// SoftLock 软锁（生成快照并开启宽限期）
// POST /api/v1/semesters/soft-lock
func (h *SemesterHandler) SoftLock(c *gin.Context) {
	var req dto.SoftLockRequest
	if !bindJSON(c, &req) {
		return
	}
	h.transition(c, req.ClosureRequest, func(ctx context.Context, classID string, key semester.Key, actor access.Actor) (closure.LockState, error) {
		return h.closureSvc.SoftLock(ctx, classID, key, actor, req.GraceHours)
	})
}

// Rollback 回滚到 ACTIVE
// POST /api/v1/semesters/rollback
func (h *SemesterHandler) Rollback(c *gin.Context) {
	var req dto.ClosureRequest
	if !bindJSON(c, &req) {
		return
	}
	h.transition(c, req, h.closureSvc.Rollback)
}

// HardLock 硬锁
// POST /api/v1/semesters/hard-lock
func (h *SemesterHandler) HardLock(c *gin.Context) {
	var req dto.ClosureRequest
	if !bindJSON(c, &req) {
		return
	}
	h.transition(c, req, h.closureSvc.HardLock)
}

// ── 内部辅助 ──

type transitionCall func(ctx context.Context, classID string, key semester.Key, actor access.Actor) (closure.LockState, error)

func (h *SemesterHandler) transition(c *gin.Context, req dto.ClosureRequest, call transitionCall) {
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	key, err := h.resolveKey(ctx, req.Semester)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}
	if !h.scopeSvc.CanManageClass(ctx, req.ClassID, actor) {
		response.Forbidden(c, 15002, "无权操作该班级")
		return
	}

	state, err := call(ctx, req.ClassID, key, actor)
	if err != nil {
		h.handleSemesterError(c, err)
		return
	}

	response.OK(c, dto.NewLockStateResponse(state))
}

// classTermParams 解析路径中的班级与学期，并校验调用者可见该班级
func (h *SemesterHandler) classTermParams(c *gin.Context) (string, semester.Key, bool) {
	classID := c.Param("classId")
	if classID == "" {
		response.BadRequest(c, 10001, "班级ID不能为空")
		return "", semester.Key{}, false
	}

	actor, ok := MustGetActor(c)
	if !ok {
		return "", semester.Key{}, false
	}
	ctx := c.Request.Context()

	key, err := h.resolveKey(ctx, c.Param("semester"))
	if err != nil {
		h.handleSemesterError(c, err)
		return "", semester.Key{}, false
	}
	if !h.scopeSvc.CanManageClass(ctx, classID, actor) {
		response.Forbidden(c, 15002, "无权查看该班级")
		return "", semester.Key{}, false
	}
	return classID, key, true
}

// resolveKey 解析学期参数；"current" 表示当前活动学期
func (h *SemesterHandler) resolveKey(ctx context.Context, text string) (semester.Key, error) {
	if strings.EqualFold(strings.TrimSpace(text), dto.CurrentSemester) {
		return h.activeSvc.Current(ctx)
	}
	return semester.ParseFull(text)
}

// handleSemesterError 统一处理学期模块业务错误
func (h *SemesterHandler) handleSemesterError(c *gin.Context, err error) {
	var pe *closure.PreconditionError
	switch {
	case errors.As(err, &pe):
		response.ErrorWithData(c, 409, 14006, "存在未处理的报名，无法加锁",
			dto.PreconditionResponse{Reason: string(pe.Reason), Count: pe.Count})
	case errors.Is(err, semester.ErrInvalidSemester):
		response.BadRequest(c, 14001, "学期格式无效")
	case errors.Is(err, closure.ErrInvalidGraceHours):
		response.BadRequest(c, 14007, "宽限期时长无效")
	case errors.Is(err, closure.ErrAlreadyLocked):
		response.Conflict(c, 14002, "学期已锁定")
	case errors.Is(err, closure.ErrInvalidTransition):
		response.Conflict(c, 14003, "当前状态不允许该操作")
	case errors.Is(err, closure.ErrGraceExpired):
		response.Conflict(c, 14004, "宽限期已过，无法回滚")
	case errors.Is(err, closure.ErrNotRollbackable):
		response.Conflict(c, 14005, "当前状态不可回滚")
	case errors.Is(err, pkgerrors.ErrConcurrencyConflict):
		response.Conflict(c, 14008, "学期状态正被其他操作修改，请刷新后重试")
	case errors.Is(err, service.ErrSnapshotNotFound):
		response.NotFound(c, 14010, "快照不存在")
	case errors.Is(err, service.ErrStateCorrupted):
		response.Error(c, 500, 14009, "学期写锁记录已损坏")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
