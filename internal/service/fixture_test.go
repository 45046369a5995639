package service

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"activity-points/backend/config"
	"activity-points/backend/internal/model"
	"activity-points/backend/pkg/semester"
)

var (
	termH1 = semester.MustNew(1, 2025)
	termH2 = semester.MustNew(2, 2025)
	t0     = time.Date(2025, time.November, 20, 9, 0, 0, 0, time.UTC)
)

// fakeClock 可推进的测试时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testSemesterConfig() *config.SemesterConfig {
	return &config.SemesterConfig{
		DefaultGraceHours: 72,
		MaxGraceHours:     720,
		ActiveCacheTTL:    30 * time.Second,
		InvalidateChannel: "semester:active:changed",
		Timezone:          "UTC",
	}
}

// fixture 以 mock 仓储装配真实的服务实现
type fixture struct {
	repos    *mockRepos
	clock    *fakeClock
	pub      *mockPublisher
	active   *activeTermService
	store    *lockStore
	snapshot *snapshotService
	closure  *closureService
	guard    *writeGuard
	scope    *scopeService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repos := newMockRepos()
	seedRoster(repos)
	repos.metadata.meta = &model.SystemMetadata{Singleton: true, ActiveSemester: termH1.Label()}

	return buildFixture(repos)
}

// buildFixture 以同一组仓储构建一套服务（多次调用可模拟多个实例）
func buildFixture(repos *mockRepos) *fixture {
	cfg := testSemesterConfig()
	logger := zap.NewNop()
	clock := &fakeClock{now: t0}
	pub := &mockPublisher{}
	repo := repos.repository()

	active := NewActiveTermService(cfg, repo, pub, logger).(*activeTermService)
	active.now = clock.Now

	store := NewLockStore(repo, active).(*lockStore)

	snap := NewSnapshotService(repo, logger).(*snapshotService)
	snap.now = clock.Now

	cl := NewClosureService(cfg, repo, active, logger).(*closureService)
	cl.now = clock.Now

	guard := NewWriteGuard(cfg, repo, active, store, logger).(*writeGuard)
	guard.now = clock.Now

	return &fixture{
		repos:    repos,
		clock:    clock,
		pub:      pub,
		active:   active,
		store:    store,
		snapshot: snap,
		closure:  cl,
		guard:    guard,
		scope:    NewScopeService(repo, logger).(*scopeService),
	}
}

// seedRoster 班级 C1（班主任 T1，学生 U1/U2）与 C2（班主任 T2，学生 U3）
func seedRoster(repos *mockRepos) {
	students := []model.Student{
		{StudentID: "S1", UserID: "U1", ClassID: "C1", StudentCode: "2025001"},
		{StudentID: "S2", UserID: "U2", ClassID: "C1", StudentCode: "2025002"},
		{StudentID: "S3", UserID: "U3", ClassID: "C2", StudentCode: "2025003"},
	}
	repos.membership.classes["C1"] = "T1"
	repos.membership.classes["C2"] = "T2"
	repos.membership.students = students
	repos.membership.activities["A1"] = "U1"
	repos.membership.activities["A2"] = "T1"
	repos.membership.registrations["R1"] = "S1"
	repos.membership.registrations["R3"] = "S3"

	start := time.Date(2025, time.October, 1, 8, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	repos.term.students = students
	repos.term.activities = []model.Activity{
		{ActivityID: "A1", Name: "献血", HalfIndex: 1, AcademicYear: "2025-2026", CreatorID: "U1", Points: 5, StartAt: start, EndAt: start.Add(4 * time.Hour)},
		{ActivityID: "A2", Name: "植树", HalfIndex: 1, AcademicYear: "2025", CreatorID: "T1", Points: 3, StartAt: start, EndAt: start.Add(2 * time.Hour)},
		{ActivityID: "A3", Name: "春季运动会", HalfIndex: 2, AcademicYear: "2025", CreatorID: "U1", Points: 2, StartAt: start, EndAt: start},
	}
	repos.term.registrations = []model.Registration{
		{RegistrationID: "R1", StudentID: "S1", ActivityID: "A1", Status: model.RegistrationApproved, RegisteredAt: start},
		{RegistrationID: "R2", StudentID: "S2", ActivityID: "A2", Status: model.RegistrationParticipated, RegisteredAt: start},
		{RegistrationID: "R3", StudentID: "S3", ActivityID: "A1", Status: model.RegistrationPending, RegisteredAt: start},
	}
	repos.term.attendance = []model.Attendance{
		{AttendanceID: "AT1", StudentID: "S1", ActivityID: "A1", Status: "present", CheckedAt: start},
	}
}
