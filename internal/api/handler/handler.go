package handler

import "activity-points/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Semester *SemesterHandler
	Guard    *GuardHandler
	Scope    *ScopeHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Semester: NewSemesterHandler(svc.ActiveTerm, svc.Closure, svc.Snapshot, svc.Scope),
		Guard:    NewGuardHandler(svc.Guard),
		Scope:    NewScopeHandler(svc.Scope),
	}
}
