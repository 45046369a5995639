package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	LockState  LockStateRepository
	Snapshot   SnapshotRepository
	Metadata   SystemMetadataRepository
	Membership MembershipRepository
	TermRecord TermRecordRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:         db,
		LockState:  NewLockStateRepo(db),
		Snapshot:   NewSnapshotRepo(db),
		Metadata:   NewSystemMetadataRepo(db),
		Membership: NewMembershipRepo(db),
		TermRecord: NewTermRecordRepo(db),
	}
}

// Transaction 在同一数据库事务内执行 fn，fn 返回错误时整体回滚
// db 为空（单元测试注入的 mock 聚合）时直接以自身执行
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
