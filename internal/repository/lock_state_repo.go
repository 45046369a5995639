package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"activity-points/backend/internal/model"
	pkgerrors "activity-points/backend/pkg/errors"
)

// LockStateRepository 学期写锁数据访问接口
// 记录从不删除；每次写入都是带版本校验的整行覆盖
type LockStateRepository interface {
	// Get 不存在时返回 gorm.ErrRecordNotFound
	Get(ctx context.Context, classID, semesterKey string) (*model.SemesterLockState, error)
	// Insert 首次写入；主键冲突返回 ErrConcurrencyConflict
	Insert(ctx context.Context, row *model.SemesterLockState) error
	// UpdateIfVersion 仅当库中 version 等于 expected 时覆盖；否则返回 ErrConcurrencyConflict
	UpdateIfVersion(ctx context.Context, row *model.SemesterLockState, expected int) error
}

type lockStateRepo struct {
	db *gorm.DB
}

// NewLockStateRepo 创建 LockStateRepository 实例
func NewLockStateRepo(db *gorm.DB) LockStateRepository {
	return &lockStateRepo{db: db}
}

func (r *lockStateRepo) Get(ctx context.Context, classID, semesterKey string) (*model.SemesterLockState, error) {
	var row model.SemesterLockState
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND semester_key = ?", classID, semesterKey).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *lockStateRepo) Insert(ctx context.Context, row *model.SemesterLockState) error {
	err := r.db.WithContext(ctx).Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return pkgerrors.ErrConcurrencyConflict
	}
	return err
}

func (r *lockStateRepo) UpdateIfVersion(ctx context.Context, row *model.SemesterLockState, expected int) error {
	result := r.db.WithContext(ctx).
		Model(&model.SemesterLockState{}).
		Where("class_id = ? AND semester_key = ? AND version = ?", row.ClassID, row.SemesterKey, expected).
		Updates(map[string]interface{}{
			"state":             row.State,
			"lock_level":        row.LockLevel,
			"proposed_by":       row.ProposedBy,
			"proposed_at":       row.ProposedAt,
			"approved_by":       row.ApprovedBy,
			"closed_by":         row.ClosedBy,
			"closed_at":         row.ClosedAt,
			"grace_until":       row.GraceUntil,
			"archived_by":       row.ArchivedBy,
			"archived_at":       row.ArchivedAt,
			"snapshot_checksum": row.SnapshotChecksum,
			"version":           row.Version,
			"updated_at":        gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConcurrencyConflict
	}
	return nil
}
