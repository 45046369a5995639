package model

import "time"

// 以下为 CRUD 层拥有的表，本服务只读。

// Class 班级 — 对应 classes
type Class struct {
	ClassID           string  `gorm:"column:id;type:varchar(64);primaryKey" json:"class_id"`
	Name              string  `gorm:"type:varchar(100);not null"             json:"name"`
	HomeroomTeacherID *string `gorm:"type:varchar(64);index"                 json:"homeroom_teacher_id,omitempty"` // 班主任用户 ID
	MonitorID         *string `gorm:"type:varchar(64)"                       json:"monitor_id,omitempty"`
}

// TableName 指定表名
func (Class) TableName() string { return "classes" }

// Student 学生档案 — 对应 students
type Student struct {
	StudentID   string `gorm:"column:id;type:varchar(64);primaryKey" json:"student_id"`
	UserID      string `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	ClassID     string `gorm:"type:varchar(64);not null;index"       json:"class_id"`
	StudentCode string `gorm:"type:varchar(32);not null"             json:"student_code"`
}

// TableName 指定表名
func (Student) TableName() string { return "students" }

// Activity 活动 — 对应 activities
type Activity struct {
	ActivityID   string    `gorm:"column:id;type:varchar(64);primaryKey" json:"activity_id"`
	Name         string    `gorm:"type:varchar(255);not null"            json:"name"`
	HalfIndex    int       `gorm:"not null"                              json:"half_index"`
	AcademicYear string    `gorm:"type:varchar(16);not null"             json:"academic_year"` // 2025 或 2025-2026
	CreatorID    string    `gorm:"type:varchar(64);not null;index"       json:"creator_id"`
	TypeID       *string   `gorm:"type:varchar(64)"                      json:"type_id,omitempty"`
	Points       float64   `gorm:"type:numeric(6,2);not null;default:0"  json:"points"`
	StartAt      time.Time `gorm:"not null"                              json:"start_at"`
	EndAt        time.Time `gorm:"not null"                              json:"end_at"`
}

// TableName 指定表名
func (Activity) TableName() string { return "activities" }

// 报名状态
const (
	RegistrationPending      = "pending"
	RegistrationApproved     = "approved"
	RegistrationRejected     = "rejected"
	RegistrationParticipated = "participated"
	RegistrationCancelled    = "cancelled"
)

// Registration 活动报名 — 对应 registrations
type Registration struct {
	RegistrationID string     `gorm:"column:id;type:varchar(64);primaryKey" json:"registration_id"`
	StudentID      string     `gorm:"type:varchar(64);not null;index"       json:"student_id"`
	ActivityID     string     `gorm:"type:varchar(64);not null;index"       json:"activity_id"`
	Status         string     `gorm:"type:varchar(20);not null"             json:"status"`
	RegisteredAt   time.Time  `gorm:"not null"                              json:"registered_at"`
	ReviewedBy     *string    `gorm:"type:varchar(64)"                      json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `gorm:""                                      json:"reviewed_at,omitempty"`
}

// TableName 指定表名
func (Registration) TableName() string { return "registrations" }

// Attendance 签到记录 — 对应 attendances
type Attendance struct {
	AttendanceID string    `gorm:"column:id;type:varchar(64);primaryKey" json:"attendance_id"`
	StudentID    string    `gorm:"type:varchar(64);not null;index"       json:"student_id"`
	ActivityID   string    `gorm:"type:varchar(64);not null;index"       json:"activity_id"`
	Status       string    `gorm:"type:varchar(20);not null"             json:"status"`
	CheckedAt    time.Time `gorm:"not null"                              json:"checked_at"`
}

// TableName 指定表名
func (Attendance) TableName() string { return "attendances" }
