package service

import (
	"go.uber.org/zap"

	"activity-points/backend/config"
	"activity-points/backend/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	ActiveTerm ActiveTermService
	LockStore  LockStore
	Snapshot   SnapshotService
	Closure    ClosureService
	Guard      WriteGuard
	Scope      ScopeService
}

// NewService 创建 Service 聚合
// pub 为 nil 时活动学期变更不做跨实例广播
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	pub Publisher,
	logger *zap.Logger,
) *Service {
	active := NewActiveTermService(&cfg.Semester, repo, pub, logger)
	store := NewLockStore(repo, active)

	return &Service{
		ActiveTerm: active,
		LockStore:  store,
		Snapshot:   NewSnapshotService(repo, logger),
		Closure:    NewClosureService(&cfg.Semester, repo, active, logger),
		Guard:      NewWriteGuard(&cfg.Semester, repo, active, store, logger),
		Scope:      NewScopeService(repo, logger),
	}
}
