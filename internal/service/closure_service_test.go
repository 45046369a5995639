package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"activity-points/backend/internal/access"
	"activity-points/backend/internal/closure"
	"activity-points/backend/internal/model"
	pkgerrors "activity-points/backend/pkg/errors"
)

var (
	monitor = access.Actor{ID: "U1", Role: access.RoleClassMonitor, ClassID: "C1"}
	teacher = access.Actor{ID: "T1", Role: access.RoleTeacher}
	admin   = access.Actor{ID: "ADM", Role: access.RoleAdmin}
	student = access.Actor{ID: "U2", Role: access.RoleStudent, ClassID: "C1"}
)

func TestClosureService_Status_Default(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.closure.Status(ctx, "C1", termH1)
	if err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	if st.State() != closure.StateActive || st.Version != 0 {
		t.Errorf("活动学期默认应为 ACTIVE/v0，实际: %s/v%d", st.State(), st.Version)
	}

	st, err = f.closure.Status(ctx, "C1", termH1.Prev())
	if err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	if st.State() != closure.StateLockedHard {
		t.Errorf("非活动学期默认应为 LOCKED_HARD，实际: %s", st.State())
	}
	if f.repos.lock.writeCount() != 0 {
		t.Error("读取默认状态不应写库")
	}
}

func TestClosureService_ProposeClose_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.closure.ProposeClose(ctx, "C1", termH1, monitor)
	if err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	if first.State() != closure.StateClosing || first.Version != 1 {
		t.Fatalf("期望 CLOSING/v1，实际: %s/v%d", first.State(), first.Version)
	}

	second, err := f.closure.ProposeClose(ctx, "C1", termH1, monitor)
	if err != nil {
		t.Fatalf("重复提议期望成功，实际: %v", err)
	}
	if second.State() != closure.StateClosing {
		t.Errorf("期望 CLOSING，实际: %s", second.State())
	}
	if second.Version != 1 {
		t.Errorf("重复提议不应递增版本，实际: v%d", second.Version)
	}
	if f.repos.lock.writeCount() != 1 {
		t.Errorf("期望只写入 1 次，实际: %d", f.repos.lock.writeCount())
	}
}

func TestClosureService_ProposeClose_AlreadyLocked(t *testing.T) {
	f := newFixture(t)

	// 非活动学期默认 LOCKED_HARD
	_, err := f.closure.ProposeClose(context.Background(), "C1", termH1.Prev(), monitor)
	if !errors.Is(err, closure.ErrAlreadyLocked) {
		t.Errorf("期望 ErrAlreadyLocked，实际: %v", err)
	}
}

func TestClosureService_SoftLock_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.closure.SoftLock(ctx, "C1", termH1, teacher, 0)
	if err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	if st.State() != closure.StateLockedSoft || st.Version != 1 {
		t.Fatalf("期望 LOCKED_SOFT/v1，实际: %s/v%d", st.State(), st.Version)
	}
	grace, ok := st.GraceUntil()
	if !ok || !grace.Equal(t0.Add(72*time.Hour)) {
		t.Errorf("期望宽限期至 %v，实际: %v", t0.Add(72*time.Hour), grace)
	}
	if st.SnapshotChecksum() == "" {
		t.Error("期望记录快照校验和")
	}

	if f.repos.snapshot.count() != 1 {
		t.Fatalf("期望写入 1 份快照，实际: %d", f.repos.snapshot.count())
	}
	snap := f.repos.snapshot.snapshots[0]
	if snap.LockVersion != st.Version || snap.Checksum != st.SnapshotChecksum() {
		t.Errorf("快照与写锁不一致: snapshot=v%d/%s lock=v%d/%s", snap.LockVersion, snap.Checksum, st.Version, st.SnapshotChecksum())
	}
	if snap.ActivityCount != 2 || snap.RegistrationCount != 2 || snap.AttendanceCount != 1 {
		t.Errorf("快照记录数不符: %d/%d/%d", snap.ActivityCount, snap.RegistrationCount, snap.AttendanceCount)
	}

	persisted, err := f.closure.Status(ctx, "C1", termH1)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if persisted.State() != closure.StateLockedSoft || persisted.Version != 1 {
		t.Errorf("持久化状态不符: %s/v%d", persisted.State(), persisted.Version)
	}
}

func TestClosureService_SoftLock_FromClosingKeepsProposer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.closure.ProposeClose(ctx, "C1", termH1, monitor); err != nil {
		t.Fatalf("提议失败: %v", err)
	}
	st, err := f.closure.SoftLock(ctx, "C1", termH1, teacher, 24)
	if err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	p := st.Phase.(closure.SoftLocked)
	if p.ProposedBy != "U1" || p.ApprovedBy != "T1" {
		t.Errorf("期望 proposed_by=U1 approved_by=T1，实际: %s/%s", p.ProposedBy, p.ApprovedBy)
	}
	if st.Version != 2 {
		t.Errorf("期望 v2，实际: v%d", st.Version)
	}
	if !p.GraceUntil.Equal(t0.Add(24 * time.Hour)) {
		t.Errorf("期望宽限 24h，实际: %v", p.GraceUntil)
	}
}

func TestClosureService_SoftLock_PendingRegistrations(t *testing.T) {
	for _, status := range []string{model.RegistrationPending, model.RegistrationRejected} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t)
			f.repos.term.registrations = append(f.repos.term.registrations, model.Registration{
				RegistrationID: "R9", StudentID: "S2", ActivityID: "A1", Status: status, RegisteredAt: t0,
			})

			_, err := f.closure.SoftLock(context.Background(), "C1", termH1, teacher, 0)
			var pe *closure.PreconditionError
			if !errors.As(err, &pe) {
				t.Fatalf("期望 PreconditionError，实际: %v", err)
			}
			if pe.Reason != closure.ReasonPendingRegistrations || pe.Count != 1 {
				t.Errorf("期望 PENDING_REGISTRATIONS/1，实际: %s/%d", pe.Reason, pe.Count)
			}
			if f.repos.snapshot.count() != 0 || f.repos.lock.writeCount() != 0 {
				t.Error("前置条件不满足时不应写入任何数据")
			}
		})
	}
}

func TestClosureService_SoftLock_OtherClassPendingIgnored(t *testing.T) {
	f := newFixture(t)

	// R3 属于 C2 的学生，不影响 C1
	if _, err := f.closure.SoftLock(context.Background(), "C1", termH1, teacher, 0); err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	if _, err := f.closure.SoftLock(context.Background(), "C2", termH1, access.Actor{ID: "T2", Role: access.RoleTeacher}, 0); err == nil {
		t.Error("C2 存在待审核报名，期望失败")
	}
}

func TestClosureService_SoftLock_InvalidGraceHours(t *testing.T) {
	f := newFixture(t)
	for _, hours := range []int{-1, 721} {
		if _, err := f.closure.SoftLock(context.Background(), "C1", termH1, teacher, hours); !errors.Is(err, closure.ErrInvalidGraceHours) {
			t.Errorf("graceHours=%d 期望 ErrInvalidGraceHours，实际: %v", hours, err)
		}
	}
}

func TestClosureService_SoftLock_SnapshotFailureAbortsTransition(t *testing.T) {
	f := newFixture(t)
	f.repos.snapshot.createErr = errMockDB

	_, err := f.closure.SoftLock(context.Background(), "C1", termH1, teacher, 0)
	if !errors.Is(err, errMockDB) {
		t.Fatalf("期望快照写入错误，实际: %v", err)
	}
	if f.repos.lock.writeCount() != 0 {
		t.Error("快照失败时不应写入写锁状态")
	}
	st, _ := f.closure.Status(context.Background(), "C1", termH1)
	if st.State() != closure.StateActive {
		t.Errorf("期望仍为 ACTIVE，实际: %s", st.State())
	}
}

func TestClosureService_SoftLock_ReadFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.repos.term.err = errMockDB

	if _, err := f.closure.SoftLock(context.Background(), "C1", termH1, teacher, 0); !errors.Is(err, errMockDB) {
		t.Fatalf("期望读取错误，实际: %v", err)
	}
	if f.repos.snapshot.count() != 0 || f.repos.lock.writeCount() != 0 {
		t.Error("读取失败时不应写入任何数据")
	}
}

func TestClosureService_SoftLock_ChecksumDeterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.snapshot.Compute(ctx, "C1", termH1)
	if err != nil {
		t.Fatalf("计算快照失败: %v", err)
	}
	f.clock.Advance(time.Hour)
	second, err := f.snapshot.Compute(ctx, "C1", termH1)
	if err != nil {
		t.Fatalf("计算快照失败: %v", err)
	}
	if first.Checksum != second.Checksum {
		t.Errorf("相同数据应得到相同校验和: %s != %s", first.Checksum, second.Checksum)
	}

	// 通过加锁流程得到的校验和与直接计算一致
	st, err := f.closure.SoftLock(ctx, "C1", termH1, teacher, 0)
	if err != nil {
		t.Fatalf("加锁失败: %v", err)
	}
	if st.SnapshotChecksum() != first.Checksum {
		t.Errorf("加锁记录的校验和应与快照一致")
	}
}

func TestClosureService_Rollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.closure.SoftLock(ctx, "C1", termH1, teacher, 0); err != nil {
		t.Fatalf("加锁失败: %v", err)
	}
	f.clock.Advance(71 * time.Hour)

	st, err := f.closure.Rollback(ctx, "C1", termH1, teacher)
	if err != nil {
		t.Fatalf("宽限期内回滚期望成功，实际: %v", err)
	}
	if st.State() != closure.StateActive || st.Version != 2 {
		t.Errorf("期望 ACTIVE/v2，实际: %s/v%d", st.State(), st.Version)
	}
	if _, ok := st.GraceUntil(); ok {
		t.Error("回滚后不应保留宽限期")
	}
	row, _ := f.repos.lock.Get(ctx, "C1", termH1.Label())
	if row.GraceUntil != nil || row.ClosedBy != nil || row.ClosedAt != nil || row.ApprovedBy != nil || row.LockLevel != nil {
		t.Errorf("回滚后持久化字段应被清空: %+v", row)
	}
}

func TestClosureService_Rollback_GraceExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.closure.SoftLock(ctx, "C1", termH1, teacher, 1); err != nil {
		t.Fatalf("加锁失败: %v", err)
	}
	f.clock.Advance(2 * time.Hour)

	if _, err := f.closure.Rollback(ctx, "C1", termH1, teacher); !errors.Is(err, closure.ErrGraceExpired) {
		t.Errorf("期望 ErrGraceExpired，实际: %v", err)
	}
}

func TestClosureService_Rollback_FromClosing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.closure.ProposeClose(ctx, "C1", termH1, monitor); err != nil {
		t.Fatalf("提议失败: %v", err)
	}
	f.clock.Advance(365 * 24 * time.Hour)

	st, err := f.closure.Rollback(ctx, "C1", termH1, teacher)
	if err != nil {
		t.Fatalf("CLOSING 回滚期望无条件成功，实际: %v", err)
	}
	if st.State() != closure.StateActive {
		t.Errorf("期望 ACTIVE，实际: %s", st.State())
	}
}

func TestClosureService_Rollback_FromActive(t *testing.T) {
	f := newFixture(t)
	if _, err := f.closure.Rollback(context.Background(), "C1", termH1, teacher); !errors.Is(err, closure.ErrNotRollbackable) {
		t.Errorf("期望 ErrNotRollbackable，实际: %v", err)
	}
}

func TestClosureService_HardLock_TerminalForRollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.closure.SoftLock(ctx, "C1", termH1, teacher, 0); err != nil {
		t.Fatalf("加锁失败: %v", err)
	}
	st, err := f.closure.HardLock(ctx, "C1", termH1, admin)
	if err != nil {
		t.Fatalf("期望成功，实际: %v", err)
	}
	if st.State() != closure.StateLockedHard || st.Version != 2 {
		t.Errorf("期望 LOCKED_HARD/v2，实际: %s/v%d", st.State(), st.Version)
	}

	if _, err := f.closure.Rollback(ctx, "C1", termH1, admin); !errors.Is(err, closure.ErrNotRollbackable) {
		t.Errorf("硬锁后回滚期望失败，实际: %v", err)
	}

	again, err := f.closure.HardLock(ctx, "C1", termH1, admin)
	if err != nil {
		t.Fatalf("重复硬锁期望幂等成功，实际: %v", err)
	}
	if again.Version != 2 {
		t.Errorf("重复硬锁不应递增版本，实际: v%d", again.Version)
	}
}

func TestClosureService_CorruptedStateRejected(t *testing.T) {
	f := newFixture(t)
	f.repos.lock.put(model.SemesterLockState{ClassID: "C1", SemesterKey: termH1.Label(), State: "LOCKED_SOFT", Version: 3})

	if _, err := f.closure.HardLock(context.Background(), "C1", termH1, admin); !errors.Is(err, ErrStateCorrupted) {
		t.Errorf("期望 ErrStateCorrupted，实际: %v", err)
	}
}

// ── 并发 ──

// blockFirstCount 让第一个统计调用停在屏障处，直到 release 关闭
func blockFirstCount(f *fixture) (entered chan struct{}, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	f.repos.term.beforeCount = func() {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
	}
	return entered, release
}

func TestClosureService_ConcurrentSoftLock_SameInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entered, release := blockFirstCount(f)

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.closure.SoftLock(ctx, "C1", termH1, teacher, 0)
		firstErr <- err
	}()

	<-entered
	_, err := f.closure.SoftLock(ctx, "C1", termH1, teacher, 0)
	close(release)

	if !errors.Is(err, pkgerrors.ErrConcurrencyConflict) {
		t.Errorf("第二个请求期望 ErrConcurrencyConflict，实际: %v", err)
	}
	if err := <-firstErr; err != nil {
		t.Errorf("第一个请求期望成功，实际: %v", err)
	}

	st, _ := f.closure.Status(ctx, "C1", termH1)
	if st.Version != 1 || f.repos.snapshot.count() != 1 {
		t.Errorf("期望恰好一次写入: v%d snapshots=%d", st.Version, f.repos.snapshot.count())
	}
}

func TestClosureService_ConcurrentSoftLock_TwoInstances(t *testing.T) {
	first := newFixture(t)
	second := buildFixture(first.repos) // 共享存储，独立的进程内锁
	ctx := context.Background()
	entered, release := blockFirstCount(first)

	firstErr := make(chan error, 1)
	go func() {
		_, err := first.closure.SoftLock(ctx, "C1", termH1, teacher, 0)
		firstErr <- err
	}()

	<-entered
	// 第二个实例先完成写入
	if _, err := second.closure.SoftLock(ctx, "C1", termH1, teacher, 0); err != nil {
		t.Fatalf("第二个实例期望成功，实际: %v", err)
	}
	close(release)

	if err := <-firstErr; !errors.Is(err, pkgerrors.ErrConcurrencyConflict) {
		t.Errorf("第一个实例期望 ErrConcurrencyConflict，实际: %v", err)
	}

	st, _ := second.closure.Status(ctx, "C1", termH1)
	if st.State() != closure.StateLockedSoft || st.Version != 1 {
		t.Errorf("期望 LOCKED_SOFT/v1，实际: %s/v%d", st.State(), st.Version)
	}
}

func TestClosureService_DifferentKeysDoNotConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entered, release := blockFirstCount(f)

	done := make(chan error, 1)
	go func() {
		_, err := f.closure.SoftLock(ctx, "C1", termH1, teacher, 0)
		done <- err
	}()

	<-entered
	_, err := f.closure.ProposeClose(ctx, "C2", termH1, access.Actor{ID: "U3", Role: access.RoleClassMonitor})
	close(release)

	if err != nil {
		t.Errorf("不同班级不应互相阻塞，实际: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("期望成功，实际: %v", err)
	}
}

// ── 端到端 ──

func TestScenario_SoftLockThenRollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.closure.SoftLock(ctx, "C1", termH1, teacher, 0)
	if err != nil {
		t.Fatalf("加锁失败: %v", err)
	}
	grace, _ := st.GraceUntil()
	if d := grace.Sub(f.clock.Now()); d != 72*time.Hour {
		t.Errorf("期望宽限约 72h，实际: %v", d)
	}
	if st.SnapshotChecksum() == "" {
		t.Error("期望快照校验和非空")
	}

	st, err = f.closure.Rollback(ctx, "C1", termH1, teacher)
	if err != nil {
		t.Fatalf("回滚失败: %v", err)
	}
	if st.State() != closure.StateActive {
		t.Errorf("期望 ACTIVE，实际: %s", st.State())
	}
	if _, ok := st.GraceUntil(); ok {
		t.Error("期望宽限期为空")
	}
}

func TestScenario_HardLockThenTermMovesOn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.closure.HardLock(ctx, "C1", termH1, admin); err != nil {
		t.Fatalf("硬锁失败: %v", err)
	}
	if _, err := f.active.Activate(ctx, termH2, admin.ID); err != nil {
		t.Fatalf("切换活动学期失败: %v", err)
	}

	req := GuardRequest{ClassID: "C1", Half: "1", YearField: "2025-2026", ActorRole: access.RoleStudent}
	err := f.guard.Check(ctx, req)
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("期望 LockedError，实际: %v", err)
	}
	if locked.State != closure.StateLockedHard || locked.ClassID != "C1" || locked.SemesterLabel != "H1_2025" {
		t.Errorf("LockedError 详情不符: %+v", locked)
	}

	req.ActorRole = access.RoleAdmin
	if err := f.guard.Check(ctx, req); err != nil {
		t.Errorf("管理员期望放行，实际: %v", err)
	}
}
