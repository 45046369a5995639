package service

import (
	"context"

	"go.uber.org/zap"

	"activity-points/backend/internal/access"
	"activity-points/backend/internal/repository"
)

// ScopeService 按角色推导查询作用域
// 任何查询失败都返回永不匹配的谓词，绝不放宽
type ScopeService interface {
	Scope(ctx context.Context, resource access.Resource, actor access.Actor) access.Predicate
	// OwnershipScope 在 Scope 之上进一步限定为本人创建 / 本人报名的记录
	OwnershipScope(ctx context.Context, resource access.Resource, actor access.Actor) access.Predicate
	CanAccessItem(ctx context.Context, resource access.Resource, itemID string, actor access.Actor) bool
	CanManageClass(ctx context.Context, classID string, actor access.Actor) bool
}

type scopeService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewScopeService 创建 ScopeService 实例
func NewScopeService(repo *repository.Repository, logger *zap.Logger) ScopeService {
	return &scopeService{repo: repo, logger: logger}
}

// ────────────────────── Scope ──────────────────────

func (s *scopeService) Scope(ctx context.Context, resource access.Resource, actor access.Actor) access.Predicate {
	parsed, ok := access.ParseResource(string(resource))
	if !ok {
		s.logger.Warn("未知的作用域资源", zap.String("resource", string(resource)))
		return access.None()
	}
	resource = parsed

	switch role := access.NormalizeRole(string(actor.Role)); role {
	case access.RoleAdmin:
		return access.All()
	case access.RoleTeacher:
		return s.teacherScope(ctx, resource, actor)
	case access.RoleClassMonitor, access.RoleStudent:
		return s.classScope(ctx, resource, actor)
	default:
		s.logger.Warn("未知角色，作用域为空", zap.String("role", string(actor.Role)), zap.String("user_id", actor.ID))
		return access.None()
	}
}

// teacherScope 班主任：所带班级
func (s *scopeService) teacherScope(ctx context.Context, resource access.Resource, actor access.Actor) access.Predicate {
	classIDs, err := s.repo.Membership.HomeroomClassIDs(ctx, actor.ID)
	if err != nil {
		s.lookupFailed("查询班主任班级失败", actor, resource, err)
		return access.None()
	}

	switch resource {
	case access.ResourceActivities:
		creators, err := s.repo.Membership.StudentUserIDsByClasses(ctx, classIDs)
		if err != nil {
			s.lookupFailed("查询班级学生失败", actor, resource, err)
			return access.None()
		}
		return access.In(access.FieldCreatorID, creators...)
	case access.ResourceRegistrations, access.ResourceStudents:
		return access.In(access.FieldClassID, classIDs...)
	case access.ResourceClasses:
		return access.In(access.FieldID, classIDs...)
	}
	return access.None()
}

// classScope 学生 / 班长：本班
func (s *scopeService) classScope(ctx context.Context, resource access.Resource, actor access.Actor) access.Predicate {
	classID := actor.ClassID
	if classID == "" {
		var err error
		classID, err = s.repo.Membership.ClassIDByUser(ctx, actor.ID)
		if err != nil {
			s.lookupFailed("查询用户所属班级失败", actor, resource, err)
			return access.None()
		}
	}
	if classID == "" {
		return access.None()
	}

	switch resource {
	case access.ResourceActivities:
		creators, err := s.repo.Membership.StudentUserIDsByClasses(ctx, []string{classID})
		if err != nil {
			s.lookupFailed("查询班级学生失败", actor, resource, err)
			return access.None()
		}
		teacherID, err := s.repo.Membership.HomeroomTeacherID(ctx, classID)
		if err != nil {
			s.lookupFailed("查询班主任失败", actor, resource, err)
			return access.None()
		}
		if teacherID != "" {
			creators = append(creators, teacherID)
		}
		return access.In(access.FieldCreatorID, creators...)
	case access.ResourceRegistrations, access.ResourceStudents:
		return access.Eq(access.FieldClassID, classID)
	case access.ResourceClasses:
		return access.Eq(access.FieldID, classID)
	}
	return access.None()
}

// ────────────────────── OwnershipScope ──────────────────────

func (s *scopeService) OwnershipScope(ctx context.Context, resource access.Resource, actor access.Actor) access.Predicate {
	role := access.NormalizeRole(string(actor.Role))
	if role.IsAdmin() {
		return access.All()
	}
	if !role.Known() {
		s.logger.Warn("未知角色，归属作用域为空", zap.String("role", string(actor.Role)), zap.String("user_id", actor.ID))
		return access.None()
	}

	switch resource {
	case access.ResourceActivities:
		return access.Eq(access.FieldCreatorID, actor.ID)
	case access.ResourceRegistrations:
		studentID, err := s.repo.Membership.StudentIDByUser(ctx, actor.ID)
		if err != nil {
			s.lookupFailed("查询学生档案失败", actor, resource, err)
			return access.None()
		}
		return access.Eq(access.FieldStudentID, studentID)
	}
	return access.None()
}

// ────────────────────── CanAccessItem ──────────────────────

func (s *scopeService) CanAccessItem(ctx context.Context, resource access.Resource, itemID string, actor access.Actor) bool {
	role := access.NormalizeRole(string(actor.Role))
	if role.IsAdmin() {
		return true
	}

	var (
		ownerID string
		err     error
	)
	switch resource {
	case access.ResourceActivities:
		ownerID, err = s.repo.Membership.ActivityCreatorID(ctx, itemID)
	case access.ResourceRegistrations:
		ownerID, err = s.repo.Membership.RegistrationOwnerUserID(ctx, itemID)
	default:
		return false
	}
	if err != nil {
		s.lookupFailed("查询记录归属失败", actor, resource, err)
		return false
	}
	if ownerID == "" {
		return false
	}
	if ownerID == actor.ID {
		return true
	}
	return role == access.RoleTeacher || role == access.RoleClassMonitor
}

// ────────────────────── CanManageClass ──────────────────────

func (s *scopeService) CanManageClass(ctx context.Context, classID string, actor access.Actor) bool {
	if classID == "" {
		return false
	}
	ok, err := s.Scope(ctx, access.ResourceClasses, actor).Matches(map[string]any{access.FieldID: classID})
	if err != nil {
		s.lookupFailed("班级作用域求值失败", actor, access.ResourceClasses, err)
		return false
	}
	return ok
}

func (s *scopeService) lookupFailed(msg string, actor access.Actor, resource access.Resource, err error) {
	s.logger.Error(msg,
		zap.String("user_id", actor.ID),
		zap.String("role", string(actor.Role)),
		zap.String("resource", string(resource)),
		zap.Error(err),
	)
}
