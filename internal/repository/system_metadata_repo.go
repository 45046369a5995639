package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"activity-points/backend/internal/model"
)

// SystemMetadataRepository 全局元数据数据访问接口
type SystemMetadataRepository interface {
	// Get 尚未设置时返回 gorm.ErrRecordNotFound
	Get(ctx context.Context) (*model.SystemMetadata, error)
	Upsert(ctx context.Context, meta *model.SystemMetadata) error
}

type systemMetadataRepo struct {
	db *gorm.DB
}

// NewSystemMetadataRepo 创建 SystemMetadataRepository 实例
func NewSystemMetadataRepo(db *gorm.DB) SystemMetadataRepository {
	return &systemMetadataRepo{db: db}
}

func (r *systemMetadataRepo) Get(ctx context.Context) (*model.SystemMetadata, error) {
	var meta model.SystemMetadata
	err := r.db.WithContext(ctx).First(&meta).Error
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (r *systemMetadataRepo) Upsert(ctx context.Context, meta *model.SystemMetadata) error {
	meta.Singleton = true
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "singleton"}},
			DoUpdates: clause.AssignmentColumns([]string{"active_semester", "updated_by", "updated_at"}),
		}).
		Create(meta).Error
}
