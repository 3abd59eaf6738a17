// Package service 业务逻辑层
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/repository"
	"go.uber.org/zap"
)

var (
	ErrAuditFlushTimeout = errors.New("审计队列冲刷超时")
)

// AuditRecorder 审计事件入队接口
// 入队不阻塞调用方，写库由后台任务完成
type AuditRecorder interface {
	Record(event model.AuditEvent)
}

// AuditService 审计服务接口
type AuditService interface {
	AuditRecorder
	Query(ctx context.Context, filter *repository.AuditFilter, page *repository.Pagination) ([]*model.AuditEvent, int64, error)
	Dropped() uint64
	Close(grace time.Duration) error
}

// auditService 审计服务实现
// 有界队列：多个请求线程入队，单个后台任务批量落库
// 队列满时优先丢弃最旧的非拒绝事件，拒绝事件不丢弃
type auditService struct {
	repo     repository.AuditRepository
	logger   *zap.Logger
	capacity int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []model.AuditEvent
	closed bool
	done   chan struct{}

	dropped atomic.Uint64
}

// NewAuditService 创建审计服务并启动后台落库任务
func NewAuditService(repo repository.AuditRepository, logger *zap.Logger, capacity int) AuditService {
	if capacity <= 0 {
		capacity = 10000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &auditService{
		repo:     repo,
		logger:   logger,
		capacity: capacity,
		queue:    make([]model.AuditEvent, 0, 64),
		done:     make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	go s.drain()
	return s
}

// Record 入队审计事件
func (s *auditService) Record(event model.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if len(s.queue) >= s.capacity {
		if !s.evictLocked(event.Decision) {
			// 新事件不是拒绝且队列里没有可丢的非拒绝事件
			s.dropped.Add(1)
			s.logger.Warn("审计队列已满，丢弃事件", zap.Uint64("dropped_total", s.dropped.Load()))
			return
		}
	}

	s.queue = append(s.queue, event)
	s.cond.Signal()
}

// evictLocked 队列满时腾位置，返回是否可以入队
// 调用方持有锁
func (s *auditService) evictLocked(incoming string) bool {
	for i, ev := range s.queue {
		if ev.Decision != model.DecisionDeny {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.dropped.Add(1)
			s.logger.Warn("审计队列已满，丢弃最旧的非拒绝事件", zap.Uint64("dropped_total", s.dropped.Load()))
			return true
		}
	}
	// 队列全是拒绝事件
	if incoming != model.DecisionDeny {
		return false
	}
	s.queue = s.queue[1:]
	s.dropped.Add(1)
	s.logger.Error("审计队列被拒绝事件占满，被迫丢弃最旧事件", zap.Uint64("dropped_total", s.dropped.Load()))
	return true
}

// drain 后台落库任务
func (s *auditService) drain() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			close(s.done)
			return
		}
		batch := s.queue
		s.queue = make([]model.AuditEvent, 0, 64)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.repo.BatchCreate(ctx, batch); err != nil {
			s.logger.Error("审计事件落库失败", zap.Error(err), zap.Int("count", len(batch)))
		}
		cancel()
	}
}

// Query 查询审计事件
func (s *auditService) Query(ctx context.Context, filter *repository.AuditFilter, page *repository.Pagination) ([]*model.AuditEvent, int64, error) {
	return s.repo.List(ctx, filter, page)
}

// Dropped 返回累计丢弃的事件数
func (s *auditService) Dropped() uint64 {
	return s.dropped.Load()
}

// Close 关闭审计服务，在宽限期内冲刷剩余事件
func (s *auditService) Close(grace time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if grace <= 0 {
		grace = 5 * time.Second
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(grace):
		return ErrAuditFlushTimeout
	}
}
