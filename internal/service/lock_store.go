package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"activity-points/backend/internal/closure"
	"activity-points/backend/internal/model"
	"activity-points/backend/internal/repository"
	"activity-points/backend/pkg/semester"
)

// ErrStateCorrupted 写锁记录存在但无法还原为合法状态
var ErrStateCorrupted = errors.New("学期写锁记录已损坏")

// LockStore 写锁状态存取
type LockStore interface {
	// Read 无记录时返回默认状态（Version 为 0）
	Read(ctx context.Context, classID string, key semester.Key) (closure.LockState, error)
	// Write 整体覆盖；调用方负责将 Version 加 1
	Write(ctx context.Context, state closure.LockState) error
	// CompareAndSwap 库中版本等于 expected 时写入；expected 为 0 表示首次写入
	CompareAndSwap(ctx context.Context, state closure.LockState, expected int) error
}

type lockStore struct {
	repo   *repository.Repository
	active ActiveTermService
}

// NewLockStore 创建 LockStore 实例
func NewLockStore(repo *repository.Repository, active ActiveTermService) LockStore {
	return &lockStore{repo: repo, active: active}
}

// on 返回绑定到事务聚合的副本
func (s *lockStore) on(tx *repository.Repository) *lockStore {
	return &lockStore{repo: tx, active: s.active}
}

func (s *lockStore) Read(ctx context.Context, classID string, key semester.Key) (closure.LockState, error) {
	row, err := s.repo.LockState.Get(ctx, classID, key.Label())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		active, err := s.active.Current(ctx)
		if err != nil {
			return closure.LockState{}, err
		}
		return closure.Default(classID, key, active), nil
	}
	if err != nil {
		return closure.LockState{}, fmt.Errorf("读取写锁状态失败: %w", err)
	}
	return decodeLockState(row, key)
}

func (s *lockStore) Write(ctx context.Context, state closure.LockState) error {
	return s.CompareAndSwap(ctx, state, state.Version-1)
}

func (s *lockStore) CompareAndSwap(ctx context.Context, state closure.LockState, expected int) error {
	if expected < 0 || state.Version != expected+1 {
		return fmt.Errorf("写锁版本号必须在 %d 的基础上加 1，实际: %d", expected, state.Version)
	}
	row := encodeLockState(state)
	if expected == 0 {
		return s.repo.LockState.Insert(ctx, row)
	}
	return s.repo.LockState.UpdateIfVersion(ctx, row, expected)
}

// ── 行 ↔ 状态 ──

func decodeLockState(row *model.SemesterLockState, key semester.Key) (closure.LockState, error) {
	corrupt := func(reason string) (closure.LockState, error) {
		return closure.LockState{}, fmt.Errorf("%w: class=%s semester=%s %s", ErrStateCorrupted, row.ClassID, row.SemesterKey, reason)
	}

	if row.SemesterKey != key.Label() {
		return corrupt("学期键不匹配")
	}
	if row.Version < 1 {
		return corrupt(fmt.Sprintf("版本号无效 %d", row.Version))
	}
	st, ok := closure.ParseState(row.State)
	if !ok {
		return corrupt(fmt.Sprintf("未知状态 %q", row.State))
	}
	if st != closure.StateLockedSoft && row.GraceUntil != nil {
		return corrupt("非软锁状态存在宽限期")
	}

	var phase closure.Phase
	switch st {
	case closure.StateActive:
		phase = closure.Active{}
	case closure.StateClosing:
		phase = closure.Closing{ProposedBy: deref(row.ProposedBy), ProposedAt: derefTime(row.ProposedAt)}
	case closure.StateLockedSoft:
		if row.GraceUntil == nil {
			return corrupt("软锁缺少宽限期")
		}
		phase = closure.SoftLocked{
			ProposedBy:       deref(row.ProposedBy),
			ApprovedBy:       deref(row.ApprovedBy),
			ClosedBy:         deref(row.ClosedBy),
			ClosedAt:         derefTime(row.ClosedAt),
			GraceUntil:       *row.GraceUntil,
			SnapshotChecksum: deref(row.SnapshotChecksum),
		}
	case closure.StateLockedHard:
		phase = closure.HardLocked{
			ProposedBy:       deref(row.ProposedBy),
			ApprovedBy:       deref(row.ApprovedBy),
			ClosedBy:         deref(row.ClosedBy),
			ClosedAt:         derefTime(row.ClosedAt),
			SnapshotChecksum: deref(row.SnapshotChecksum),
		}
	case closure.StateArchived:
		phase = closure.Archived{
			ClosedBy:         deref(row.ClosedBy),
			ClosedAt:         derefTime(row.ClosedAt),
			SnapshotChecksum: deref(row.SnapshotChecksum),
			ArchivedBy:       deref(row.ArchivedBy),
			ArchivedAt:       derefTime(row.ArchivedAt),
		}
	}

	return closure.LockState{ClassID: row.ClassID, Key: key, Version: row.Version, Phase: phase}, nil
}

func encodeLockState(s closure.LockState) *model.SemesterLockState {
	row := &model.SemesterLockState{
		ClassID:     s.ClassID,
		SemesterKey: s.Key.Label(),
		State:       string(s.State()),
		LockLevel:   ptrOrNil(string(s.LockLevel())),
		Version:     s.Version,
	}

	switch p := s.Phase.(type) {
	case closure.Closing:
		row.ProposedBy = ptrOrNil(p.ProposedBy)
		row.ProposedAt = timeOrNil(p.ProposedAt)
	case closure.SoftLocked:
		row.ProposedBy = ptrOrNil(p.ProposedBy)
		row.ApprovedBy = ptrOrNil(p.ApprovedBy)
		row.ClosedBy = ptrOrNil(p.ClosedBy)
		row.ClosedAt = timeOrNil(p.ClosedAt)
		grace := p.GraceUntil
		row.GraceUntil = &grace
		row.SnapshotChecksum = ptrOrNil(p.SnapshotChecksum)
	case closure.HardLocked:
		row.ProposedBy = ptrOrNil(p.ProposedBy)
		row.ApprovedBy = ptrOrNil(p.ApprovedBy)
		row.ClosedBy = ptrOrNil(p.ClosedBy)
		row.ClosedAt = timeOrNil(p.ClosedAt)
		row.SnapshotChecksum = ptrOrNil(p.SnapshotChecksum)
	case closure.Archived:
		row.ClosedBy = ptrOrNil(p.ClosedBy)
		row.ClosedAt = timeOrNil(p.ClosedAt)
		row.SnapshotChecksum = ptrOrNil(p.SnapshotChecksum)
		row.ArchivedBy = ptrOrNil(p.ArchivedBy)
		row.ArchivedAt = timeOrNil(p.ArchivedAt)
	}
	return row
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefTime(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}

func ptrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
