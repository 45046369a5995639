package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"activity-points/backend/config"
	"activity-points/backend/internal/access"
	"activity-points/backend/internal/closure"
	"activity-points/backend/internal/repository"
	"activity-points/backend/pkg/semester"
)

// ── 写入守卫错误 ──

var (
	ErrGuardUnavailable = errors.New("无法确认学期写锁状态，写入已拒绝")
	ErrMissingClass     = errors.New("缺少班级标识")
)

// LockedError 班级学期已锁定，拒绝写入
type LockedError struct {
	ClassID       string
	SemesterLabel string
	State         closure.State
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("班级 %s 的学期 %s 已锁定（%s）", e.ClassID, e.SemesterLabel, e.State)
}

// GuardRequest 写入前检查参数
// Half / YearField 取自被写入记录自身的学期字段
type GuardRequest struct {
	ClassID   string
	Half      string
	YearField string
	ActorRole access.Role
}

// WriteGuard 所有学期范围内的写操作在落库前调用；返回 nil 表示放行
type WriteGuard interface {
	Check(ctx context.Context, req GuardRequest) error
	// CheckForUser 按用户所属班级检查；不属于任何班级的用户直接放行
	CheckForUser(ctx context.Context, userID, half, yearField string, role access.Role) error
}

type writeGuard struct {
	active ActiveTermService
	store  LockStore
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewWriteGuard 创建 WriteGuard 实例
func NewWriteGuard(cfg *config.SemesterConfig, repo *repository.Repository, active ActiveTermService, store LockStore, logger *zap.Logger) WriteGuard {
	return &writeGuard{
		active: active,
		store:  store,
		repo:   repo,
		loc:    cfg.Location(),
		logger: logger,
		now:    time.Now,
	}
}

// ────────────────────── Check ──────────────────────

func (g *writeGuard) Check(ctx context.Context, req GuardRequest) error {
	half, err := semester.ParseHalf(req.Half)
	if err != nil {
		return err
	}
	now := g.now()

	active, activeErr := g.active.Current(ctx)
	var activePtr *semester.Key
	if activeErr == nil {
		activePtr = &active
	}

	key, err := semester.FromFields(half, req.YearField, activePtr)
	if err != nil {
		key = semester.CurrentFromDate(now.In(g.loc))
		g.logger.Warn("年份字段无法解析，按当前日期推导学期",
			zap.String("class_id", req.ClassID),
			zap.String("year_field", req.YearField),
			zap.String("semester", key.Label()),
		)
	}

	// 活动学期始终可写
	if activeErr == nil && key == active {
		return nil
	}
	if access.NormalizeRole(string(req.ActorRole)).IsAdmin() {
		return nil
	}

	if activeErr != nil {
		g.logger.Error("读取活动学期失败，拒绝写入",
			zap.String("class_id", req.ClassID),
			zap.String("semester", key.Label()),
			zap.Error(activeErr),
		)
		return fmt.Errorf("%w: %w", ErrGuardUnavailable, activeErr)
	}
	if req.ClassID == "" {
		return ErrMissingClass
	}

	state, err := g.store.Read(ctx, req.ClassID, key)
	if err != nil {
		g.logger.Error("读取写锁状态失败，拒绝写入",
			zap.String("class_id", req.ClassID),
			zap.String("semester", key.Label()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrGuardUnavailable, err)
	}

	if state.BlocksWrites(now) {
		return &LockedError{ClassID: req.ClassID, SemesterLabel: key.Label(), State: state.State()}
	}
	return nil
}

// ────────────────────── CheckForUser ──────────────────────

func (g *writeGuard) CheckForUser(ctx context.Context, userID, half, yearField string, role access.Role) error {
	classID, err := g.repo.Membership.ClassIDByUser(ctx, userID)
	if err != nil {
		g.logger.Error("查询用户所属班级失败，拒绝写入", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrGuardUnavailable, err)
	}
	if classID == "" {
		return nil
	}
	return g.Check(ctx, GuardRequest{ClassID: classID, Half: half, YearField: yearField, ActorRole: role})
}
