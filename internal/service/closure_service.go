package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"activity-points/backend/config"
	"activity-points/backend/internal/access"
	"activity-points/backend/internal/closure"
	"activity-points/backend/internal/model"
	"activity-points/backend/internal/repository"
	pkgerrors "activity-points/backend/pkg/errors"
	"activity-points/backend/pkg/semester"
)

// blockingRegistrationStatuses 存在这些状态的报名时不允许加锁
var blockingRegistrationStatuses = []string{model.RegistrationPending, model.RegistrationRejected}

// ClosureService 班级学期关闭流程；写锁状态的唯一修改入口
type ClosureService interface {
	Status(ctx context.Context, classID string, key semester.Key) (closure.LockState, error)
	ProposeClose(ctx context.Context, classID string, key semester.Key, actor access.Actor) (closure.LockState, error)
	// SoftLock graceHours 为 0 时使用默认宽限期
	SoftLock(ctx context.Context, classID string, key semester.Key, actor access.Actor, graceHours int) (closure.LockState, error)
	Rollback(ctx context.Context, classID string, key semester.Key, actor access.Actor) (closure.LockState, error)
	HardLock(ctx context.Context, classID string, key semester.Key, actor access.Actor) (closure.LockState, error)
}

type closureService struct {
	repo         *repository.Repository
	store        *lockStore
	locks        *keyedMutex
	defaultGrace int
	maxGrace     int
	logger       *zap.Logger
	now          func() time.Time
}

// NewClosureService 创建 ClosureService 实例
func NewClosureService(cfg *config.SemesterConfig, repo *repository.Repository, active ActiveTermService, logger *zap.Logger) ClosureService {
	return &closureService{
		repo:         repo,
		store:        &lockStore{repo: repo, active: active},
		locks:        newKeyedMutex(),
		defaultGrace: cfg.DefaultGraceHours,
		maxGrace:     cfg.MaxGraceHours,
		logger:       logger,
		now:          time.Now,
	}
}

// ────────────────────── Status ──────────────────────

func (s *closureService) Status(ctx context.Context, classID string, key semester.Key) (closure.LockState, error) {
	return s.store.Read(ctx, classID, key)
}

// ────────────────────── ProposeClose ──────────────────────

func (s *closureService) ProposeClose(ctx context.Context, classID string, key semester.Key, actor access.Actor) (closure.LockState, error) {
	return s.transition(ctx, "propose_close", classID, key, actor,
		func(_ context.Context, _ *repository.Repository, cur closure.LockState, now time.Time) (closure.Result, error) {
			return closure.ProposeClose(cur, actor.ID, now)
		})
}

// ────────────────────── SoftLock ──────────────────────

func (s *closureService) SoftLock(ctx context.Context, classID string, key semester.Key, actor access.Actor, graceHours int) (closure.LockState, error) {
	if graceHours == 0 {
		graceHours = s.defaultGrace
	}
	if graceHours < 0 || graceHours > s.maxGrace {
		return closure.LockState{}, closure.ErrInvalidGraceHours
	}
	grace := time.Duration(graceHours) * time.Hour

	return s.transition(ctx, "soft_lock", classID, key, actor,
		func(ctx context.Context, tx *repository.Repository, cur closure.LockState, now time.Time) (closure.Result, error) {
			if err := closure.CanSoftLock(cur); err != nil {
				return closure.Result{}, err
			}

			scope, err := loadTermScope(ctx, tx, classID, key)
			if err != nil {
				return closure.Result{}, err
			}
			pending, err := tx.TermRecord.CountRegistrationsByStatus(ctx, scope.studentIDs, scope.activityIDs, blockingRegistrationStatuses)
			if err != nil {
				return closure.Result{}, err
			}
			if pending > 0 {
				return closure.Result{}, &closure.PreconditionError{Reason: closure.ReasonPendingRegistrations, Count: pending}
			}

			snap, err := computeSnapshot(ctx, tx, classID, key, now)
			if err != nil {
				return closure.Result{}, err
			}
			res, err := closure.SoftLock(cur, actor.ID, grace, snap.Checksum, now)
			if err != nil {
				return closure.Result{}, err
			}

			// 快照先于写锁落库，二者同属一个事务
			rec, err := snapshotRecord(snap, res.Next.Version, actor.ID)
			if err != nil {
				return closure.Result{}, err
			}
			if err := tx.Snapshot.Create(ctx, rec); err != nil {
				return closure.Result{}, err
			}
			return res, nil
		})
}

// ────────────────────── Rollback ──────────────────────

func (s *closureService) Rollback(ctx context.Context, classID string, key semester.Key, actor access.Actor) (closure.LockState, error) {
	return s.transition(ctx, "rollback", classID, key, actor,
		func(_ context.Context, _ *repository.Repository, cur closure.LockState, now time.Time) (closure.Result, error) {
			return closure.Rollback(cur, now)
		})
}

// ────────────────────── HardLock ──────────────────────

func (s *closureService) HardLock(ctx context.Context, classID string, key semester.Key, actor access.Actor) (closure.LockState, error) {
	return s.transition(ctx, "hard_lock", classID, key, actor,
		func(_ context.Context, _ *repository.Repository, cur closure.LockState, now time.Time) (closure.Result, error) {
			return closure.HardLock(cur, actor.ID, now)
		})
}

// ── 内部辅助 ──

type transitionFunc func(ctx context.Context, tx *repository.Repository, cur closure.LockState, now time.Time) (closure.Result, error)

// transition 读取 → 纯状态转换 → CAS 写入，整体在一个事务内
// 同一 (class, semester) 在本进程内串行；其他实例的并发写入由版本号 CAS 拦截
func (s *closureService) transition(ctx context.Context, op, classID string, key semester.Key, actor access.Actor, fn transitionFunc) (closure.LockState, error) {
	lockKey := classID + "|" + key.Label()
	unlock, ok := s.locks.TryLock(lockKey)
	if !ok {
		s.logger.Warn("学期状态转换并发冲突",
			zap.String("op", op),
			zap.String("class_id", classID),
			zap.String("semester", key.Label()),
		)
		return closure.LockState{}, pkgerrors.ErrConcurrencyConflict
	}
	defer unlock()

	now := s.now()
	var (
		from closure.LockState
		out  closure.Result
	)
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		store := s.store.on(tx)
		cur, err := store.Read(ctx, classID, key)
		if err != nil {
			return err
		}
		from = cur

		res, err := fn(ctx, tx, cur, now)
		if err != nil {
			return err
		}
		out = res
		if !res.Changed {
			return nil
		}
		return store.Write(ctx, res.Next)
	})
	if err != nil {
		fields := []zap.Field{
			zap.String("op", op),
			zap.String("class_id", classID),
			zap.String("semester", key.Label()),
			zap.String("actor", actor.ID),
			zap.Error(err),
		}
		if isBusinessError(err) {
			s.logger.Info("学期状态转换被拒绝", fields...)
		} else {
			s.logger.Error("学期状态转换失败", fields...)
		}
		return closure.LockState{}, err
	}

	if out.Changed {
		s.logger.Info("学期状态已转换",
			zap.String("op", op),
			zap.String("class_id", classID),
			zap.String("semester", key.Label()),
			zap.String("from", string(from.State())),
			zap.String("to", string(out.Next.State())),
			zap.Int("version", out.Next.Version),
			zap.String("actor", actor.ID),
			zap.String("role", string(actor.Role)),
		)
	}
	return out.Next, nil
}

func isBusinessError(err error) bool {
	var pe *closure.PreconditionError
	return errors.As(err, &pe) ||
		errors.Is(err, closure.ErrAlreadyLocked) ||
		errors.Is(err, closure.ErrInvalidTransition) ||
		errors.Is(err, closure.ErrGraceExpired) ||
		errors.Is(err, closure.ErrNotRollbackable) ||
		errors.Is(err, pkgerrors.ErrConcurrencyConflict)
}
