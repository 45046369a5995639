package dto

import (
	"time"

	"activity-points/backend/internal/closure"
	"activity-points/backend/internal/model"
	"activity-points/backend/pkg/semester"
)

// ── 学期模块 DTO ──

// ActivateSemesterRequest 设置活动学期请求
type ActivateSemesterRequest struct {
	Semester string `json:"semester" binding:"required,semester"` // H1_2025 / HK1_2025 / hoc_ky_1_2025
}

// ClosureRequest 学期关闭流程请求（提议关闭 / 回滚 / 硬锁）
type ClosureRequest struct {
	ClassID  string `json:"class_id" binding:"required,max=64"`
	Semester string `json:"semester" binding:"required,semester_or_current"`
}

// SoftLockRequest 软锁请求
type SoftLockRequest struct {
	ClosureRequest
	GraceHours int `json:"grace_hours" binding:"omitempty,min=1"` // 缺省时使用配置的默认宽限期
}

// CurrentSemesterResponse 当前学期响应
type CurrentSemesterResponse struct {
	Active       string `json:"active"`
	AcademicYear string `json:"academic_year"`
	FromDate     string `json:"from_date"` // 按当前日期推导的学期，可能与 active 不同
}

// ActivateSemesterResponse 设置活动学期响应
type ActivateSemesterResponse struct {
	Active   string `json:"active"`
	Previous string `json:"previous"`
}

// LockStateResponse 写锁状态响应
type LockStateResponse struct {
	ClassID          string  `json:"class_id"`
	Semester         string  `json:"semester"`
	State            string  `json:"state"`
	LockLevel        string  `json:"lock_level,omitempty"`
	ProposedBy       string  `json:"proposed_by,omitempty"`
	ApprovedBy       string  `json:"approved_by,omitempty"`
	ClosedBy         string  `json:"closed_by,omitempty"`
	ClosedAt         *string `json:"closed_at,omitempty"`
	GraceUntil       *string `json:"grace_until,omitempty"`
	ArchivedBy       string  `json:"archived_by,omitempty"`
	ArchivedAt       *string `json:"archived_at,omitempty"`
	SnapshotChecksum string  `json:"snapshot_checksum,omitempty"`
	Version          int     `json:"version"`
	Persisted        bool    `json:"persisted"`
}

// NewLockStateResponse 由领域状态构造响应
func NewLockStateResponse(s closure.LockState) LockStateResponse {
	resp := LockStateResponse{
		ClassID:          s.ClassID,
		Semester:         s.Key.Label(),
		State:            string(s.State()),
		LockLevel:        string(s.LockLevel()),
		SnapshotChecksum: s.SnapshotChecksum(),
		Version:          s.Version,
		Persisted:        s.Persisted(),
	}

	switch p := s.Phase.(type) {
	case closure.Closing:
		resp.ProposedBy = p.ProposedBy
	case closure.SoftLocked:
		resp.ProposedBy = p.ProposedBy
		resp.ApprovedBy = p.ApprovedBy
		resp.ClosedBy = p.ClosedBy
		resp.ClosedAt = formatTime(p.ClosedAt)
		resp.GraceUntil = formatTime(p.GraceUntil)
	case closure.HardLocked:
		resp.ProposedBy = p.ProposedBy
		resp.ApprovedBy = p.ApprovedBy
		resp.ClosedBy = p.ClosedBy
		resp.ClosedAt = formatTime(p.ClosedAt)
	case closure.Archived:
		resp.ClosedBy = p.ClosedBy
		resp.ClosedAt = formatTime(p.ClosedAt)
		resp.ArchivedBy = p.ArchivedBy
		resp.ArchivedAt = formatTime(p.ArchivedAt)
	}
	return resp
}

// SnapshotResponse 快照元信息响应
type SnapshotResponse struct {
	SnapshotID        string `json:"snapshot_id"`
	ClassID           string `json:"class_id"`
	Semester          string `json:"semester"`
	LockVersion       int    `json:"lock_version"`
	Checksum          string `json:"checksum"`
	ChecksumValid     bool   `json:"checksum_valid"`
	ActivityCount     int    `json:"activity_count"`
	RegistrationCount int    `json:"registration_count"`
	AttendanceCount   int    `json:"attendance_count"`
	CreatedBy         string `json:"created_by"`
	GeneratedAt       string `json:"generated_at"`
}

// NewSnapshotResponse 由快照记录构造响应
func NewSnapshotResponse(rec *model.SemesterSnapshot, valid bool) SnapshotResponse {
	return SnapshotResponse{
		SnapshotID:        rec.SnapshotID,
		ClassID:           rec.ClassID,
		Semester:          rec.SemesterKey,
		LockVersion:       rec.LockVersion,
		Checksum:          rec.Checksum,
		ChecksumValid:     valid,
		ActivityCount:     rec.ActivityCount,
		RegistrationCount: rec.RegistrationCount,
		AttendanceCount:   rec.AttendanceCount,
		CreatedBy:         rec.CreatedBy,
		GeneratedAt:       rec.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

// LockedResponse 写入被拒绝时的详情（HTTP 423 data）
type LockedResponse struct {
	ClassID  string `json:"class_id"`
	Semester string `json:"semester"`
	State    string `json:"state"`
}

// PreconditionResponse 前置条件不满足时的详情（HTTP 409 data）
type PreconditionResponse struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// NewCurrentSemesterResponse 构造当前学期响应
func NewCurrentSemesterResponse(active, fromDate semester.Key) CurrentSemesterResponse {
	return CurrentSemesterResponse{
		Active:       active.Label(),
		AcademicYear: active.AcademicYear(),
		FromDate:     fromDate.Label(),
	}
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
