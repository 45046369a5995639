package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"

	"activity-points/backend/internal/model"
	"activity-points/backend/internal/repository"
	pkgerrors "activity-points/backend/pkg/errors"
)

var errMockDB = errors.New("mock: 数据库不可用")

// ── Mock LockStateRepository ──

type mockLockStateRepo struct {
	mu     sync.Mutex
	rows   map[string]model.SemesterLockState
	getErr error
	writes int
}

func newMockLockStateRepo() *mockLockStateRepo {
	return &mockLockStateRepo{rows: make(map[string]model.SemesterLockState)}
}

func lockRowKey(classID, semesterKey string) string { return classID + "|" + semesterKey }

func (m *mockLockStateRepo) Get(_ context.Context, classID, semesterKey string) (*model.SemesterLockState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	row, ok := m.rows[lockRowKey(classID, semesterKey)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (m *mockLockStateRepo) Insert(_ context.Context, row *model.SemesterLockState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := lockRowKey(row.ClassID, row.SemesterKey)
	if _, exists := m.rows[k]; exists {
		return pkgerrors.ErrConcurrencyConflict
	}
	m.rows[k] = *row
	m.writes++
	return nil
}

func (m *mockLockStateRepo) UpdateIfVersion(_ context.Context, row *model.SemesterLockState, expected int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := lockRowKey(row.ClassID, row.SemesterKey)
	cur, ok := m.rows[k]
	if !ok || cur.Version != expected {
		return pkgerrors.ErrConcurrencyConflict
	}
	m.rows[k] = *row
	m.writes++
	return nil
}

// put 直接写入一行（用于构造已有状态或损坏数据）
func (m *mockLockStateRepo) put(row model.SemesterLockState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[lockRowKey(row.ClassID, row.SemesterKey)] = row
}

func (m *mockLockStateRepo) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// ── Mock SnapshotRepository ──

type mockSnapshotRepo struct {
	mu        sync.Mutex
	snapshots []model.SemesterSnapshot
	createErr error
}

func (m *mockSnapshotRepo) Create(_ context.Context, snap *model.SemesterSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, s := range m.snapshots {
		if s.ClassID == snap.ClassID && s.SemesterKey == snap.SemesterKey && s.LockVersion == snap.LockVersion {
			return pkgerrors.ErrConcurrencyConflict
		}
	}
	m.snapshots = append(m.snapshots, *snap)
	return nil
}

func (m *mockSnapshotRepo) GetLatest(_ context.Context, classID, semesterKey string) (*model.SemesterSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.SemesterSnapshot
	for i := range m.snapshots {
		s := m.snapshots[i]
		if s.ClassID != classID || s.SemesterKey != semesterKey {
			continue
		}
		if latest == nil || s.LockVersion > latest.LockVersion {
			latest = &s
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (m *mockSnapshotRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

// ── Mock SystemMetadataRepository ──

type mockMetadataRepo struct {
	mu     sync.Mutex
	meta   *model.SystemMetadata
	getErr error
	reads  int
	// onGet 在下一次 Get 读取之前执行一次
	onGet func()
}

func (m *mockMetadataRepo) Get(_ context.Context) (*model.SystemMetadata, error) {
	m.mu.Lock()
	hook := m.onGet
	m.onGet = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.meta == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m.meta
	return &cp, nil
}

func (m *mockMetadataRepo) Upsert(_ context.Context, meta *model.SystemMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *meta
	m.meta = &cp
	return nil
}

func (m *mockMetadataRepo) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// ── Mock MembershipRepository ──

type mockMembershipRepo struct {
	classes       map[string]string // classID → 班主任用户 ID
	students      []model.Student
	activities    map[string]string // activityID → creatorID
	registrations map[string]string // registrationID → studentID
	err           error
}

func newMockMembershipRepo() *mockMembershipRepo {
	return &mockMembershipRepo{
		classes:       make(map[string]string),
		activities:    make(map[string]string),
		registrations: make(map[string]string),
	}
}

func (m *mockMembershipRepo) HomeroomClassIDs(_ context.Context, teacherID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	var ids []string
	for classID, t := range m.classes {
		if t == teacherID {
			ids = append(ids, classID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockMembershipRepo) StudentUserIDsByClasses(_ context.Context, classIDs []string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	want := make(map[string]bool, len(classIDs))
	for _, c := range classIDs {
		want[c] = true
	}
	var ids []string
	for _, s := range m.students {
		if want[s.ClassID] {
			ids = append(ids, s.UserID)
		}
	}
	return ids, nil
}

func (m *mockMembershipRepo) ClassIDByUser(_ context.Context, userID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	for _, s := range m.students {
		if s.UserID == userID {
			return s.ClassID, nil
		}
	}
	return "", nil
}

func (m *mockMembershipRepo) HomeroomTeacherID(_ context.Context, classID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.classes[classID], nil
}

func (m *mockMembershipRepo) StudentIDByUser(_ context.Context, userID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	for _, s := range m.students {
		if s.UserID == userID {
			return s.StudentID, nil
		}
	}
	return "", nil
}

func (m *mockMembershipRepo) ActivityCreatorID(_ context.Context, activityID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.activities[activityID], nil
}

func (m *mockMembershipRepo) RegistrationOwnerUserID(_ context.Context, registrationID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	studentID, ok := m.registrations[registrationID]
	if !ok {
		return "", nil
	}
	for _, s := range m.students {
		if s.StudentID == studentID {
			return s.UserID, nil
		}
	}
	return "", nil
}

// ── Mock TermRecordRepository ──

type mockTermRecordRepo struct {
	mu            sync.Mutex
	students      []model.Student
	activities    []model.Activity
	registrations []model.Registration
	attendance    []model.Attendance
	err           error
	// beforeCount 在统计报名前调用，用于并发测试制造竞争窗口
	beforeCount func()
}

func (m *mockTermRecordRepo) StudentIDsByClass(_ context.Context, classID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var ids []string
	for _, s := range m.students {
		if s.ClassID == classID {
			ids = append(ids, s.StudentID)
		}
	}
	return ids, nil
}

func (m *mockTermRecordRepo) ActivitiesByTerm(_ context.Context, half int, yearValues []string) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	years := make(map[string]bool, len(yearValues))
	for _, y := range yearValues {
		years[y] = true
	}
	var out []model.Activity
	for _, a := range m.activities {
		if a.HalfIndex == half && (years[a.AcademicYear] || strings.Contains(a.AcademicYear, "-")) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockTermRecordRepo) Registrations(_ context.Context, studentIDs, activityIDs []string) ([]model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Registration
	for _, r := range m.registrations {
		if contains(studentIDs, r.StudentID) && contains(activityIDs, r.ActivityID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockTermRecordRepo) Attendance(_ context.Context, studentIDs, activityIDs []string) ([]model.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Attendance
	for _, a := range m.attendance {
		if contains(studentIDs, a.StudentID) && contains(activityIDs, a.ActivityID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockTermRecordRepo) CountRegistrationsByStatus(_ context.Context, studentIDs, activityIDs, statuses []string) (int64, error) {
	if m.beforeCount != nil {
		m.beforeCount()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, r := range m.registrations {
		if contains(studentIDs, r.StudentID) && contains(activityIDs, r.ActivityID) && contains(statuses, r.Status) {
			n++
		}
	}
	return n, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// ── Mock Publisher ──

type mockPublisher struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (m *mockPublisher) Publish(_ context.Context, channel, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, channel+":"+payload)
	return nil
}

// ── 测试装配 ──

type mockRepos struct {
	lock       *mockLockStateRepo
	snapshot   *mockSnapshotRepo
	metadata   *mockMetadataRepo
	membership *mockMembershipRepo
	term       *mockTermRecordRepo
}

func newMockRepos() *mockRepos {
	return &mockRepos{
		lock:       newMockLockStateRepo(),
		snapshot:   &mockSnapshotRepo{},
		metadata:   &mockMetadataRepo{},
		membership: newMockMembershipRepo(),
		term:       &mockTermRecordRepo{},
	}
}

func (m *mockRepos) repository() *repository.Repository {
	return &repository.Repository{
		LockState:  m.lock,
		Snapshot:   m.snapshot,
		Metadata:   m.metadata,
		Membership: m.membership,
		TermRecord: m.term,
	}
}
