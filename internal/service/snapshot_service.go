package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"activity-points/backend/internal/model"
	"activity-points/backend/internal/repository"
	"activity-points/backend/pkg/semester"
)

// ── 快照模块业务错误 ──

var ErrSnapshotNotFound = errors.New("快照不存在")

// SnapshotPayload 参与校验和计算的快照内容
// 字段顺序与记录排序固定，时间统一为 UTC，保证同样的数据得到同样的字节
type SnapshotPayload struct {
	ClassID       string               `json:"class_id"`
	Semester      string               `json:"semester"`
	Activities    []model.Activity     `json:"activities"`
	Registrations []model.Registration `json:"registrations"`
	Attendance    []model.Attendance   `json:"attendance"`
}

// Snapshot 一次计算得到的快照
// GeneratedAt 不参与校验和
type Snapshot struct {
	ClassID     string
	Key         semester.Key
	Payload     SnapshotPayload
	GeneratedAt time.Time
	Checksum    string
}

// SnapshotReport 已持久化快照的元信息与校验结果
type SnapshotReport struct {
	Record        *model.SemesterSnapshot
	ChecksumValid bool
}

// SnapshotService 快照计算与查询
type SnapshotService interface {
	Compute(ctx context.Context, classID string, key semester.Key) (*Snapshot, error)
	// Latest 最近一次快照，并重新计算存储内容的校验和
	Latest(ctx context.Context, classID string, key semester.Key) (*SnapshotReport, error)
}

type snapshotService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewSnapshotService 创建 SnapshotService 实例
func NewSnapshotService(repo *repository.Repository, logger *zap.Logger) SnapshotService {
	return &snapshotService{repo: repo, logger: logger, now: time.Now}
}

// ────────────────────── Compute ──────────────────────

func (s *snapshotService) Compute(ctx context.Context, classID string, key semester.Key) (*Snapshot, error) {
	return computeSnapshot(ctx, s.repo, classID, key, s.now())
}

// computeSnapshot 读取班级学期内的活动、报名与签到记录
// 加锁流程在事务内以 tx 聚合调用，保证快照反映加锁前的数据
func computeSnapshot(ctx context.Context, repo *repository.Repository, classID string, key semester.Key, now time.Time) (*Snapshot, error) {
	scope, err := loadTermScope(ctx, repo, classID, key)
	if err != nil {
		return nil, err
	}

	regs, err := repo.TermRecord.Registrations(ctx, scope.studentIDs, scope.activityIDs)
	if err != nil {
		return nil, fmt.Errorf("读取报名记录失败: %w", err)
	}
	attendance, err := repo.TermRecord.Attendance(ctx, scope.studentIDs, scope.activityIDs)
	if err != nil {
		return nil, fmt.Errorf("读取签到记录失败: %w", err)
	}

	payload := canonicalPayload(classID, key, scope.activities, regs, attendance)
	checksum, err := SnapshotChecksum(payload)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		ClassID:     classID,
		Key:         key,
		Payload:     payload,
		GeneratedAt: now.UTC(),
		Checksum:    checksum,
	}, nil
}

// termScope 班级学期的学生与活动集合
type termScope struct {
	studentIDs  []string
	activities  []model.Activity
	activityIDs []string
}

func loadTermScope(ctx context.Context, repo *repository.Repository, classID string, key semester.Key) (*termScope, error) {
	studentIDs, err := repo.TermRecord.StudentIDsByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("读取班级学生失败: %w", err)
	}
	activities, err := repo.TermRecord.ActivitiesByTerm(ctx, key.Half, key.YearFieldValues())
	if err != nil {
		return nil, fmt.Errorf("读取学期活动失败: %w", err)
	}

	inTerm := activities[:0]
	ids := make([]string, 0, len(activities))
	for _, a := range activities {
		if !key.CoversYearField(a.AcademicYear) {
			continue
		}
		inTerm = append(inTerm, a)
		ids = append(ids, a.ActivityID)
	}
	return &termScope{studentIDs: studentIDs, activities: inTerm, activityIDs: ids}, nil
}

func canonicalPayload(classID string, key semester.Key, activities []model.Activity, regs []model.Registration, attendance []model.Attendance) SnapshotPayload {
	acts := make([]model.Activity, len(activities))
	for i, a := range activities {
		a.StartAt = a.StartAt.UTC()
		a.EndAt = a.EndAt.UTC()
		acts[i] = a
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].ActivityID < acts[j].ActivityID })

	rs := make([]model.Registration, len(regs))
	for i, r := range regs {
		r.RegisteredAt = r.RegisteredAt.UTC()
		if r.ReviewedAt != nil {
			t := r.ReviewedAt.UTC()
			r.ReviewedAt = &t
		}
		rs[i] = r
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].RegistrationID < rs[j].RegistrationID })

	att := make([]model.Attendance, len(attendance))
	for i, a := range attendance {
		a.CheckedAt = a.CheckedAt.UTC()
		att[i] = a
	}
	sort.Slice(att, func(i, j int) bool { return att[i].AttendanceID < att[j].AttendanceID })

	return SnapshotPayload{
		ClassID:       classID,
		Semester:      key.Label(),
		Activities:    acts,
		Registrations: rs,
		Attendance:    att,
	}
}

// SnapshotChecksum 快照内容的 SHA-256（十六进制）
func SnapshotChecksum(p SnapshotPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("序列化快照失败: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// snapshotRecord 转为持久化记录；lockVersion 为本次加锁写入后的版本号
func snapshotRecord(snap *Snapshot, lockVersion int, actorID string) (*model.SemesterSnapshot, error) {
	raw, err := json.Marshal(snap.Payload)
	if err != nil {
		return nil, fmt.Errorf("序列化快照失败: %w", err)
	}
	return &model.SemesterSnapshot{
		SnapshotID:        uuid.New().String(),
		ClassID:           snap.ClassID,
		SemesterKey:       snap.Key.Label(),
		LockVersion:       lockVersion,
		Checksum:          snap.Checksum,
		Payload:           datatypes.JSON(raw),
		ActivityCount:     len(snap.Payload.Activities),
		RegistrationCount: len(snap.Payload.Registrations),
		AttendanceCount:   len(snap.Payload.Attendance),
		CreatedBy:         actorID,
		GeneratedAt:       snap.GeneratedAt,
	}, nil
}

// ────────────────────── Latest ──────────────────────

func (s *snapshotService) Latest(ctx context.Context, classID string, key semester.Key) (*SnapshotReport, error) {
	rec, err := s.repo.Snapshot.GetLatest(ctx, classID, key.Label())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	// jsonb 不保留键顺序，需反序列化后按固定结构重新计算
	var payload SnapshotPayload
	valid := false
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		s.logger.Error("快照内容无法解析", zap.String("snapshot_id", rec.SnapshotID), zap.Error(err))
	} else if sum, err := SnapshotChecksum(payload); err == nil {
		valid = sum == rec.Checksum
	}

	if !valid {
		s.logger.Warn("快照校验和不一致",
			zap.String("snapshot_id", rec.SnapshotID),
			zap.String("class_id", classID),
			zap.String("semester", key.Label()),
		)
	}
	return &SnapshotReport{Record: rec, ChecksumValid: valid}, nil
}
