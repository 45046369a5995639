package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"activity-points/backend/config"
	"activity-points/backend/internal/model"
	"activity-points/backend/internal/repository"
	"activity-points/backend/pkg/semester"
)

// Publisher 跨实例广播（*redis.Client 实现）
type Publisher interface {
	Publish(ctx context.Context, channel, payload string) error
}

// ActiveTermService 全局活动学期
// 读多写少：本地缓存 + TTL；Activate 写库后刷新本地缓存并广播失效，其他实例收到后调用 Invalidate
type ActiveTermService interface {
	Current(ctx context.Context) (semester.Key, error)
	// FromDate 由当前日期推导的学期（不读库）
	FromDate() semester.Key
	// Activate 设置活动学期，返回此前的活动学期
	Activate(ctx context.Context, key semester.Key, actorID string) (semester.Key, error)
	Invalidate()
}

type activeTermService struct {
	repo    *repository.Repository
	pub     Publisher
	channel string
	ttl     time.Duration
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.RWMutex
	cached    semester.Key
	hasCached bool
	expiresAt time.Time
	// generation 每次失效或切换时递增；读库期间发生变化则丢弃读到的值
	generation uint64
}

// NewActiveTermService 创建 ActiveTermService 实例
// pub 为 nil 时不做跨实例广播（单实例部署）
func NewActiveTermService(cfg *config.SemesterConfig, repo *repository.Repository, pub Publisher, logger *zap.Logger) ActiveTermService {
	return &activeTermService{
		repo:    repo,
		pub:     pub,
		channel: cfg.InvalidateChannel,
		ttl:     cfg.ActiveCacheTTL,
		loc:     cfg.Location(),
		logger:  logger,
		now:     time.Now,
	}
}

// ────────────────────── Current ──────────────────────

func (s *activeTermService) Current(ctx context.Context) (semester.Key, error) {
	now := s.now()

	s.mu.RLock()
	if s.hasCached && now.Before(s.expiresAt) {
		key := s.cached
		s.mu.RUnlock()
		return key, nil
	}
	gen := s.generation
	s.mu.RUnlock()

	key, err := s.load(ctx)
	if err != nil {
		return semester.Key{}, err
	}
	s.store(key, now, gen)
	return key, nil
}

// load 读取元数据；未设置时按日期推导
func (s *activeTermService) load(ctx context.Context) (semester.Key, error) {
	meta, err := s.repo.Metadata.Get(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.FromDate(), nil
	}
	if err != nil {
		return semester.Key{}, fmt.Errorf("读取活动学期失败: %w", err)
	}

	key, err := semester.ParseFull(meta.ActiveSemester)
	if err != nil {
		s.logger.Error("活动学期元数据无法解析", zap.String("value", meta.ActiveSemester), zap.Error(err))
		return semester.Key{}, fmt.Errorf("活动学期元数据无效: %w", err)
	}
	return key, nil
}

// store 仅在 gen 之后没有发生失效时写入缓存
func (s *activeTermService) store(key semester.Key, now time.Time, gen uint64) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.cached = key
	s.hasCached = true
	s.expiresAt = now.Add(s.ttl)
}

// replace 以刚写入的值覆盖缓存，并使进行中的读库结果作废
func (s *activeTermService) replace(key semester.Key, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.ttl <= 0 {
		s.hasCached = false
		return
	}
	s.cached = key
	s.hasCached = true
	s.expiresAt = now.Add(s.ttl)
}

func (s *activeTermService) FromDate() semester.Key {
	return semester.CurrentFromDate(s.now().In(s.loc))
}

// ────────────────────── Activate ──────────────────────

func (s *activeTermService) Activate(ctx context.Context, key semester.Key, actorID string) (semester.Key, error) {
	if !key.Valid() || key.Partial() {
		return semester.Key{}, fmt.Errorf("%w: 需要完整学期 %q", semester.ErrInvalidSemester, key.Label())
	}

	previous, err := s.load(ctx)
	if err != nil {
		return semester.Key{}, err
	}

	now := s.now()
	meta := &model.SystemMetadata{
		ActiveSemester: key.Label(),
		UpdatedBy:      &actorID,
		UpdatedAt:      now,
	}
	if err := s.repo.Metadata.Upsert(ctx, meta); err != nil {
		s.logger.Error("更新活动学期失败", zap.String("semester", key.Label()), zap.Error(err))
		return semester.Key{}, err
	}

	s.replace(key, now)

	if s.pub != nil {
		if err := s.pub.Publish(ctx, s.channel, key.Label()); err != nil {
			// 其他实例在缓存 TTL 内可能仍读到旧值
			s.logger.Warn("广播活动学期变更失败", zap.String("channel", s.channel), zap.Error(err))
		}
	}

	s.logger.Info("活动学期已切换",
		zap.String("from", previous.Label()),
		zap.String("to", key.Label()),
		zap.String("actor", actorID),
	)
	return previous, nil
}

// ────────────────────── Invalidate ──────────────────────

func (s *activeTermService) Invalidate() {
	s.mu.Lock()
	s.hasCached = false
	s.generation++
	s.mu.Unlock()
}
