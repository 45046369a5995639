package model

import "time"

// SystemMetadata 全局元数据 — 对应 system_metadata（单行）
type SystemMetadata struct {
	Singleton      bool      `gorm:"primaryKey;default:true"          json:"-"`
	ActiveSemester string    `gorm:"type:varchar(16);not null"        json:"active_semester"` // H1_2025
	UpdatedBy      *string   `gorm:"type:varchar(64)"                 json:"updated_by,omitempty"`
	UpdatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName 指定表名
func (SystemMetadata) TableName() string { return "system_metadata" }
