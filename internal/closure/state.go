// Package closure 定义班级学期写锁的状态与纯状态转换。
// 这里不做任何 I/O：持久化、快照与并发控制由 service 层负责。
package closure

import (
	"time"

	"activity-points/backend/pkg/semester"
)

// State 写锁生命周期阶段
type State string

const (
	StateActive     State = "ACTIVE"
	StateClosing    State = "CLOSING"
	StateLockedSoft State = "LOCKED_SOFT"
	StateLockedHard State = "LOCKED_HARD"
	StateArchived   State = "ARCHIVED"
)

// ParseState 校验持久化的状态字符串
func ParseState(s string) (State, bool) {
	switch st := State(s); st {
	case StateActive, StateClosing, StateLockedSoft, StateLockedHard, StateArchived:
		return st, true
	}
	return "", false
}

// LockLevel 锁级别，仅锁定状态下存在
type LockLevel string

const (
	LockLevelNone LockLevel = ""
	LockLevelSoft LockLevel = "SOFT"
	LockLevelHard LockLevel = "HARD"
)

// Phase 状态变体；每个变体只携带该状态下有意义的字段
type Phase interface {
	State() State
	isPhase()
}

// Active 可写
type Active struct{}

// Closing 已提议关闭，尚未加锁
type Closing struct {
	ProposedBy string
	ProposedAt time.Time
}

// SoftLocked 软锁：宽限期内可回滚
type SoftLocked struct {
	ProposedBy       string
	ApprovedBy       string
	ClosedBy         string
	ClosedAt         time.Time
	GraceUntil       time.Time
	SnapshotChecksum string
}

// HardLocked 硬锁：不可回滚
// 从未写入过记录的非活动学期默认处于该状态，此时各字段为空
type HardLocked struct {
	ProposedBy       string
	ApprovedBy       string
	ClosedBy         string
	ClosedAt         time.Time
	SnapshotChecksum string
}

// Archived 归档，由外部管理流程触发
type Archived struct {
	ClosedBy         string
	ClosedAt         time.Time
	SnapshotChecksum string
	ArchivedBy       string
	ArchivedAt       time.Time
}

func (Active) State() State     { return StateActive }
func (Closing) State() State    { return StateClosing }
func (SoftLocked) State() State { return StateLockedSoft }
func (HardLocked) State() State { return StateLockedHard }
func (Archived) State() State   { return StateArchived }

func (Active) isPhase()     {}
func (Closing) isPhase()    {}
func (SoftLocked) isPhase() {}
func (HardLocked) isPhase() {}
func (Archived) isPhase()   {}

// LockState 某班级某学期的写锁状态
// Version 为 0 表示尚未持久化（按默认值物化）
type LockState struct {
	ClassID string
	Key     semester.Key
	Version int
	Phase   Phase
}

// Default 未写入过记录时的默认状态：活动学期为 ACTIVE，其余为 LOCKED_HARD
func Default(classID string, key, active semester.Key) LockState {
	var phase Phase = HardLocked{}
	if key == active {
		phase = Active{}
	}
	return LockState{ClassID: classID, Key: key, Phase: phase}
}

// State 当前阶段；Phase 为空时按 ACTIVE 处理
func (s LockState) State() State {
	if s.Phase == nil {
		return StateActive
	}
	return s.Phase.State()
}

// Persisted 是否已有持久化记录
func (s LockState) Persisted() bool { return s.Version > 0 }

// LockLevel 由阶段推导
func (s LockState) LockLevel() LockLevel {
	switch s.Phase.(type) {
	case SoftLocked:
		return LockLevelSoft
	case HardLocked, Archived:
		return LockLevelHard
	}
	return LockLevelNone
}

// GraceUntil 仅 LOCKED_SOFT 返回 ok=true
func (s LockState) GraceUntil() (time.Time, bool) {
	if p, ok := s.Phase.(SoftLocked); ok {
		return p.GraceUntil, true
	}
	return time.Time{}, false
}

// SnapshotChecksum 加锁时记录的快照校验和
func (s LockState) SnapshotChecksum() string {
	switch p := s.Phase.(type) {
	case SoftLocked:
		return p.SnapshotChecksum
	case HardLocked:
		return p.SnapshotChecksum
	case Archived:
		return p.SnapshotChecksum
	}
	return ""
}

// BlocksWrites 非管理员写入是否被拒绝：硬锁、归档、宽限期已过的软锁
func (s LockState) BlocksWrites(now time.Time) bool {
	switch p := s.Phase.(type) {
	case HardLocked, Archived:
		return true
	case SoftLocked:
		return p.GraceUntil.Before(now)
	}
	return false
}
