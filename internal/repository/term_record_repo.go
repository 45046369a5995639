package repository

import (
	"context"

	"gorm.io/gorm"

	"activity-points/backend/internal/model"
)

// TermRecordRepository 班级学期范围内的业务记录查询（快照与加锁前置检查使用）
type TermRecordRepository interface {
	StudentIDsByClass(ctx context.Context, classID string) ([]string, error)
	// ActivitiesByTerm 学期序号相同、年份字段为 yearValues 之一或为任意区间写法的活动
	// 区间写法可能是异常区间，是否归属该学期由调用方按 semester.Key.CoversYearField 过滤
	ActivitiesByTerm(ctx context.Context, half int, yearValues []string) ([]model.Activity, error)
	Registrations(ctx context.Context, studentIDs, activityIDs []string) ([]model.Registration, error)
	Attendance(ctx context.Context, studentIDs, activityIDs []string) ([]model.Attendance, error)
	CountRegistrationsByStatus(ctx context.Context, studentIDs, activityIDs, statuses []string) (int64, error)
}

type termRecordRepo struct {
	db *gorm.DB
}

// NewTermRecordRepo 创建 TermRecordRepository 实例
func NewTermRecordRepo(db *gorm.DB) TermRecordRepository {
	return &termRecordRepo{db: db}
}

func (r *termRecordRepo) StudentIDsByClass(ctx context.Context, classID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("class_id = ?", classID).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *termRecordRepo) ActivitiesByTerm(ctx context.Context, half int, yearValues []string) ([]model.Activity, error) {
	if len(yearValues) == 0 {
		return nil, nil
	}
	var activities []model.Activity
	err := r.db.WithContext(ctx).
		Where("half_index = ? AND (academic_year IN ? OR academic_year LIKE ?)", half, yearValues, "%-%").
		Order("id").
		Find(&activities).Error
	return activities, err
}

func (r *termRecordRepo) Registrations(ctx context.Context, studentIDs, activityIDs []string) ([]model.Registration, error) {
	if len(studentIDs) == 0 || len(activityIDs) == 0 {
		return nil, nil
	}
	var regs []model.Registration
	err := r.db.WithContext(ctx).
		Where("student_id IN ? AND activity_id IN ?", studentIDs, activityIDs).
		Order("id").
		Find(&regs).Error
	return regs, err
}

func (r *termRecordRepo) Attendance(ctx context.Context, studentIDs, activityIDs []string) ([]model.Attendance, error) {
	if len(studentIDs) == 0 || len(activityIDs) == 0 {
		return nil, nil
	}
	var rows []model.Attendance
	err := r.db.WithContext(ctx).
		Where("student_id IN ? AND activity_id IN ?", studentIDs, activityIDs).
		Order("id").
		Find(&rows).Error
	return rows, err
}

func (r *termRecordRepo) CountRegistrationsByStatus(ctx context.Context, studentIDs, activityIDs, statuses []string) (int64, error) {
	if len(studentIDs) == 0 || len(activityIDs) == 0 || len(statuses) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Registration{}).
		Where("student_id IN ? AND activity_id IN ? AND status IN ?", studentIDs, activityIDs, statuses).
		Count(&count).Error
	return count, err
}
