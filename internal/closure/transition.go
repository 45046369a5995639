package closure

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyLocked     = errors.New("学期已锁定")
	ErrInvalidTransition = errors.New("当前状态不允许该操作")
	ErrGraceExpired      = errors.New("宽限期已过，无法回滚")
	ErrNotRollbackable   = errors.New("当前状态不可回滚")
	ErrInvalidGraceHours = errors.New("宽限期小时数无效")
)

// PreconditionReason 前置条件不满足的原因
type PreconditionReason string

const ReasonPendingRegistrations PreconditionReason = "PENDING_REGISTRATIONS"

// PreconditionError 加锁前置条件不满足
type PreconditionError struct {
	Reason PreconditionReason
	Count  int64
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("加锁前置条件不满足: %s (%d)", e.Reason, e.Count)
}

// Result 状态转换结果
// Changed 为 false 表示幂等无操作，调用方不得写入
type Result struct {
	Next    LockState
	Changed bool
}

func changed(s LockState, phase Phase) Result {
	s.Phase = phase
	s.Version++
	return Result{Next: s, Changed: true}
}

func unchanged(s LockState) Result { return Result{Next: s} }

// ProposeClose ACTIVE → CLOSING；已是 CLOSING 时幂等
func ProposeClose(s LockState, actorID string, now time.Time) (Result, error) {
	switch s.Phase.(type) {
	case Active, nil:
		return changed(s, Closing{ProposedBy: actorID, ProposedAt: now}), nil
	case Closing:
		return unchanged(s), nil
	case HardLocked, Archived:
		return Result{}, ErrAlreadyLocked
	default:
		return Result{}, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.State(), StateClosing)
	}
}

// SoftLock ACTIVE / CLOSING → LOCKED_SOFT
// 前置条件与快照由调用方在事务内完成，这里只负责状态本身
func SoftLock(s LockState, actorID string, grace time.Duration, checksum string, now time.Time) (Result, error) {
	if grace <= 0 {
		return Result{}, ErrInvalidGraceHours
	}

	proposedBy := ""
	switch p := s.Phase.(type) {
	case Active, nil:
	case Closing:
		proposedBy = p.ProposedBy
	case HardLocked, Archived:
		return Result{}, ErrAlreadyLocked
	default:
		return Result{}, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.State(), StateLockedSoft)
	}

	return changed(s, SoftLocked{
		ProposedBy:       proposedBy,
		ApprovedBy:       actorID,
		ClosedBy:         actorID,
		ClosedAt:         now,
		GraceUntil:       now.Add(grace),
		SnapshotChecksum: checksum,
	}), nil
}

// CanSoftLock 仅校验来源状态，供调用方在计算快照前提前失败
func CanSoftLock(s LockState) error {
	_, err := SoftLock(s, "", time.Hour, "", time.Time{})
	return err
}

// Rollback LOCKED_SOFT（宽限期内）/ CLOSING → ACTIVE
func Rollback(s LockState, now time.Time) (Result, error) {
	switch p := s.Phase.(type) {
	case SoftLocked:
		if !now.Before(p.GraceUntil) {
			return Result{}, ErrGraceExpired
		}
	case Closing:
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrNotRollbackable, s.State())
	}
	return changed(s, Active{}), nil
}

// HardLock 任意非终止状态 → LOCKED_HARD；已是 LOCKED_HARD 时幂等
func HardLock(s LockState, actorID string, now time.Time) (Result, error) {
	next := HardLocked{ClosedBy: actorID, ClosedAt: now}
	switch p := s.Phase.(type) {
	case Active, nil:
	case Closing:
		next.ProposedBy = p.ProposedBy
	case SoftLocked:
		next.ProposedBy = p.ProposedBy
		next.ApprovedBy = p.ApprovedBy
		next.SnapshotChecksum = p.SnapshotChecksum
	case HardLocked:
		return unchanged(s), nil
	case Archived:
		return Result{}, ErrAlreadyLocked
	default:
		return Result{}, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.State(), StateLockedHard)
	}
	return changed(s, next), nil
}

// Archive LOCKED_HARD → ARCHIVED
// 仅供外部管理流程使用，HTTP 层不暴露
func Archive(s LockState, actorID string, now time.Time) (Result, error) {
	switch p := s.Phase.(type) {
	case HardLocked:
		return changed(s, Archived{
			ClosedBy:         p.ClosedBy,
			ClosedAt:         p.ClosedAt,
			SnapshotChecksum: p.SnapshotChecksum,
			ArchivedBy:       actorID,
			ArchivedAt:       now,
		}), nil
	case Archived:
		return unchanged(s), nil
	default:
		return Result{}, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.State(), StateArchived)
	}
}
