package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"activity-points/backend/internal/model"
	pkgerrors "activity-points/backend/pkg/errors"
)

// SnapshotRepository 学期快照数据访问接口（只增不改）
type SnapshotRepository interface {
	// Create 同一 (class, semester, lock_version) 重复写入返回 ErrConcurrencyConflict
	Create(ctx context.Context, snap *model.SemesterSnapshot) error
	GetLatest(ctx context.Context, classID, semesterKey string) (*model.SemesterSnapshot, error)
}

type snapshotRepo struct {
	db *gorm.DB
}

// NewSnapshotRepo 创建 SnapshotRepository 实例
func NewSnapshotRepo(db *gorm.DB) SnapshotRepository {
	return &snapshotRepo{db: db}
}

func (r *snapshotRepo) Create(ctx context.Context, snap *model.SemesterSnapshot) error {
	err := r.db.WithContext(ctx).Create(snap).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return pkgerrors.ErrConcurrencyConflict
	}
	return err
}

func (r *snapshotRepo) GetLatest(ctx context.Context, classID, semesterKey string) (*model.SemesterSnapshot, error) {
	var snap model.SemesterSnapshot
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND semester_key = ?", classID, semesterKey).
		Order("lock_version DESC").
		First(&snap).Error
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
