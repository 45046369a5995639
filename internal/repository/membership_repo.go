package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"activity-points/backend/internal/model"
)

// MembershipRepository 班级归属查询（只读 CRUD 层的 classes / students 等表）
// “不存在”以空值返回，只有基础设施故障才返回 error
type MembershipRepository interface {
	HomeroomClassIDs(ctx context.Context, teacherID string) ([]string, error)
	StudentUserIDsByClasses(ctx context.Context, classIDs []string) ([]string, error)
	ClassIDByUser(ctx context.Context, userID string) (string, error)
	HomeroomTeacherID(ctx context.Context, classID string) (string, error)
	StudentIDByUser(ctx context.Context, userID string) (string, error)
	ActivityCreatorID(ctx context.Context, activityID string) (string, error)
	RegistrationOwnerUserID(ctx context.Context, registrationID string) (string, error)
}

type membershipRepo struct {
	db *gorm.DB
}

// NewMembershipRepo 创建 MembershipRepository 实例
func NewMembershipRepo(db *gorm.DB) MembershipRepository {
	return &membershipRepo{db: db}
}

func (r *membershipRepo) HomeroomClassIDs(ctx context.Context, teacherID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Class{}).
		Where("homeroom_teacher_id = ?", teacherID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *membershipRepo) StudentUserIDsByClasses(ctx context.Context, classIDs []string) ([]string, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("class_id IN ?", classIDs).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *membershipRepo) ClassIDByUser(ctx context.Context, userID string) (string, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Select("class_id").
		Where("user_id = ?", userID).
		Take(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return student.ClassID, nil
}

func (r *membershipRepo) HomeroomTeacherID(ctx context.Context, classID string) (string, error) {
	var class model.Class
	err := r.db.WithContext(ctx).
		Select("homeroom_teacher_id").
		Where("id = ?", classID).
		Take(&class).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if class.HomeroomTeacherID == nil {
		return "", nil
	}
	return *class.HomeroomTeacherID, nil
}

func (r *membershipRepo) StudentIDByUser(ctx context.Context, userID string) (string, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Select("id").
		Where("user_id = ?", userID).
		Take(&student).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return student.StudentID, nil
}

func (r *membershipRepo) ActivityCreatorID(ctx context.Context, activityID string) (string, error) {
	var activity model.Activity
	err := r.db.WithContext(ctx).
		Select("creator_id").
		Where("id = ?", activityID).
		Take(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return activity.CreatorID, nil
}

func (r *membershipRepo) RegistrationOwnerUserID(ctx context.Context, registrationID string) (string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).
		Table("registrations AS r").
		Joins("JOIN students AS s ON s.id = r.student_id").
		Where("r.id = ?", registrationID).
		Limit(1).
		Pluck("s.user_id", &userIDs).Error
	if err != nil {
		return "", err
	}
	if len(userIDs) == 0 {
		return "", nil
	}
	return userIDs[0], nil
}
