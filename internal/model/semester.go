package model

import (
	"time"

	"gorm.io/datatypes"
)

// SemesterLockState 班级学期写锁表 — 对应 semester_lock_states
// 每个 (class_id, semester_key) 一行；每次写入整行覆盖并递增 version
type SemesterLockState struct {
	ClassID          string     `gorm:"type:varchar(64);primaryKey"  json:"class_id"`
	SemesterKey      string     `gorm:"type:varchar(16);primaryKey"  json:"semester_key"` // H1_2025
	State            string     `gorm:"type:varchar(20);not null"    json:"state"`
	LockLevel        *string    `gorm:"type:varchar(10)"             json:"lock_level,omitempty"`
	ProposedBy       *string    `gorm:"type:varchar(64)"             json:"proposed_by,omitempty"`
	ProposedAt       *time.Time `gorm:""                             json:"proposed_at,omitempty"`
	ApprovedBy       *string    `gorm:"type:varchar(64)"             json:"approved_by,omitempty"`
	ClosedBy         *string    `gorm:"type:varchar(64)"             json:"closed_by,omitempty"`
	ClosedAt         *time.Time `gorm:""                             json:"closed_at,omitempty"`
	GraceUntil       *time.Time `gorm:""                             json:"grace_until,omitempty"`
	ArchivedBy       *string    `gorm:"type:varchar(64)"             json:"archived_by,omitempty"`
	ArchivedAt       *time.Time `gorm:""                             json:"archived_at,omitempty"`
	SnapshotChecksum *string    `gorm:"type:char(64)"                json:"snapshot_checksum,omitempty"`
	Version          int        `gorm:"not null"                     json:"version"`
	BaseModel
}

// TableName 指定表名
func (SemesterLockState) TableName() string { return "semester_lock_states" }

// SemesterSnapshot 软锁时生成的只读快照 — 对应 semester_snapshots
type SemesterSnapshot struct {
	SnapshotID        string         `gorm:"type:uuid;primaryKey"                                      json:"snapshot_id"`
	ClassID           string         `gorm:"type:varchar(64);not null;uniqueIndex:uq_semester_snapshots,priority:1" json:"class_id"`
	SemesterKey       string         `gorm:"type:varchar(16);not null;uniqueIndex:uq_semester_snapshots,priority:2" json:"semester_key"`
	LockVersion       int            `gorm:"not null;uniqueIndex:uq_semester_snapshots,priority:3"     json:"lock_version"` // 对应写锁写入后的版本号
	Checksum          string         `gorm:"type:char(64);not null"                                    json:"checksum"`
	Payload           datatypes.JSON `gorm:"type:jsonb;not null"                                       json:"-"`
	ActivityCount     int            `gorm:"not null;default:0"                                        json:"activity_count"`
	RegistrationCount int            `gorm:"not null;default:0"                                        json:"registration_count"`
	AttendanceCount   int            `gorm:"not null;default:0"                                        json:"attendance_count"`
	CreatedBy         string         `gorm:"type:varchar(64);not null"                                 json:"created_by"`
	GeneratedAt       time.Time      `gorm:"not null"                                                  json:"generated_at"`
}

// TableName 指定表名
func (SemesterSnapshot) TableName() string { return "semester_snapshots" }
