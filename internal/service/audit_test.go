package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/repository"
	"github.com/stretchr/testify/assert"
)

// blockingAuditRepo 可阻塞的审计仓库
// 落库调用在 gate 关闭前挂起，用于让队列可控地填满
type blockingAuditRepo struct {
	mu      sync.Mutex
	events  []model.AuditEvent
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newBlockingAuditRepo() *blockingAuditRepo {
	return &blockingAuditRepo{
		started: make(chan struct{}),
		gate:    make(chan struct{}),
	}
}

func (r *blockingAuditRepo) Create(_ context.Context, event *model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *blockingAuditRepo) BatchCreate(_ context.Context, events []model.AuditEvent) error {
	r.once.Do(func() { close(r.started) })
	<-r.gate
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *blockingAuditRepo) List(_ context.Context, _ *repository.AuditFilter, _ *repository.Pagination) ([]*model.AuditEvent, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.AuditEvent, 0, len(r.events))
	for i := range r.events {
		clone := r.events[i]
		out = append(out, &clone)
	}
	return out, int64(len(out)), nil
}

func (r *blockingAuditRepo) release() {
	close(r.gate)
}

func (r *blockingAuditRepo) all() []model.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AuditEvent(nil), r.events...)
}

func allowEvent(subject string) model.AuditEvent {
	return model.AuditEvent{Subject: subject, Operation: model.OpCheckAccess, Decision: model.DecisionAllow}
}

func denyEvent(subject string) model.AuditEvent {
	return model.AuditEvent{Subject: subject, Operation: model.OpCheckAccess, Decision: model.DecisionDeny, ReasonCode: "NO_GRANT"}
}

// waitDrainBlocked 等待后台任务取走首个事件并挂在落库调用上
func waitDrainBlocked(t *testing.T, repo *blockingAuditRepo) {
	t.Helper()
	select {
	case <-repo.started:
	case <-time.After(time.Second):
		t.Fatal("后台落库任务未启动")
	}
}

func TestAudit_OverflowEvictsOldestNonDeny(t *testing.T) {
	repo := newBlockingAuditRepo()
	svc := NewAuditService(repo, nil, 4)

	// 先放一个事件让后台任务取走并挂起
	svc.Record(allowEvent("primer"))
	waitDrainBlocked(t, repo)

	// 填满队列
	svc.Record(allowEvent("a1"))
	svc.Record(allowEvent("a2"))
	svc.Record(denyEvent("d1"))
	svc.Record(allowEvent("a3"))

	// 队列已满：拒绝事件挤掉最旧的非拒绝事件 a1
	svc.Record(denyEvent("d2"))
	assert.Equal(t, uint64(1), svc.Dropped())

	// 放行事件同样挤掉最旧的非拒绝事件 a2
	svc.Record(allowEvent("a4"))
	assert.Equal(t, uint64(2), svc.Dropped())

	repo.release()
	assert.NoError(t, svc.Close(2*time.Second))

	subjects := make([]string, 0)
	for _, ev := range repo.all() {
		subjects = append(subjects, ev.Subject)
	}
	assert.Equal(t, []string{"primer", "d1", "a3", "d2", "a4"}, subjects)
}

func TestAudit_AllDenyQueueDropsIncomingAllow(t *testing.T) {
	repo := newBlockingAuditRepo()
	svc := NewAuditService(repo, nil, 2)

	svc.Record(denyEvent("primer"))
	waitDrainBlocked(t, repo)

	svc.Record(denyEvent("d1"))
	svc.Record(denyEvent("d2"))

	// 队列全是拒绝事件时，放行事件直接丢弃
	svc.Record(allowEvent("a1"))
	assert.Equal(t, uint64(1), svc.Dropped())

	// 拒绝事件被迫挤掉最旧的拒绝事件
	svc.Record(denyEvent("d3"))
	assert.Equal(t, uint64(2), svc.Dropped())

	repo.release()
	assert.NoError(t, svc.Close(2*time.Second))

	subjects := make([]string, 0)
	for _, ev := range repo.all() {
		subjects = append(subjects, ev.Subject)
	}
	assert.Equal(t, []string{"primer", "d2", "d3"}, subjects)
}

func TestAudit_CloseFlushesQueue(t *testing.T) {
	repo := newBlockingAuditRepo()
	repo.release()
	svc := NewAuditService(repo, nil, 100)

	for i := 0; i < 20; i++ {
		svc.Record(denyEvent("ev"))
	}

	assert.NoError(t, svc.Close(2*time.Second))
	assert.Len(t, repo.all(), 20)
	assert.Equal(t, uint64(0), svc.Dropped())
}

func TestAudit_CloseTimeout(t *testing.T) {
	repo := newBlockingAuditRepo()
	defer repo.release()
	svc := NewAuditService(repo, nil, 100)

	svc.Record(denyEvent("stuck"))
	waitDrainBlocked(t, repo)

	err := svc.Close(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrAuditFlushTimeout)
}

func TestAudit_RecordAfterClose(t *testing.T) {
	repo := newBlockingAuditRepo()
	repo.release()
	svc := NewAuditService(repo, nil, 100)

	assert.NoError(t, svc.Close(2*time.Second))

	// 关闭后入队被忽略，不 panic
	svc.Record(denyEvent("late"))
	assert.Empty(t, repo.all())
}
