package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/beacon/internal/config"
	"github.com/dushixiang/beacon/internal/repo"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const day = 24 * time.Hour

// RetentionScheduler 按 cron 表达式定期清理过期指标
type RetentionScheduler struct {
	mu        sync.RWMutex
	cron      *cron.Cron
	entryID   cron.EntryID
	policy    config.RetentionConfig
	retention repo.RetentionRepository
	logger    *zap.Logger
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewRetentionScheduler 创建指标清理调度器
func NewRetentionScheduler(retention repo.RetentionRepository, logger *zap.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		cron:      cron.New(cron.WithSeconds()), // 支持秒级调度
		retention: retention,
		logger:    logger,
		now:       time.Now,
		ctx:       context.Background(),
	}
}

// Start 启动调度器
func (s *RetentionScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("启动指标清理调度器")
	s.cron.Start()
}

// Stop 停止调度器，等待正在执行的清理结束
func (s *RetentionScheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("指标清理调度器已停止")
}

// Apply 应用保留策略，Days 为 0 时取消清理任务；配置热更新时重复调用
func (s *RetentionScheduler) Apply(policy config.RetentionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}
	s.policy = policy

	if policy.Days <= 0 {
		s.logger.Info("未配置指标保留天数，不清理指标")
		return nil
	}

	spec := policy.Cron
	if spec == "" {
		spec = "0 0 3 * * *"
	}
	entryID, err := s.cron.AddFunc(spec, s.execute)
	if err != nil {
		return fmt.Errorf("添加 cron 任务失败: %w", err)
	}
	s.entryID = entryID

	s.logger.Info("添加指标清理任务",
		zap.String("cron", spec),
		zap.Int("days", policy.Days))
	return nil
}

// RunOnce 立即按当前策略清理一次，返回删除条数
func (s *RetentionScheduler) RunOnce(ctx context.Context) (int64, error) {
	s.mu.RLock()
	days := s.policy.Days
	s.mu.RUnlock()
	if days <= 0 {
		return 0, nil
	}

	before := s.now().Add(-time.Duration(days) * day).UnixMilli()
	deleted, err := s.retention.DeleteMetricsBefore(ctx, before)
	if err != nil {
		return 0, err
	}
	s.logger.Info("清理过期指标",
		zap.Int("days", days),
		zap.Int64("before", before),
		zap.Int64("deleted", deleted))
	return deleted, nil
}

func (s *RetentionScheduler) execute() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("清理过期指标失败", zap.Error(err))
	}
}

// Status 获取调度状态
func (s *RetentionScheduler) Status() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := map[string]interface{}{
		"days":    s.policy.Days,
		"enabled": s.entryID != 0,
	}
	if s.entryID != 0 {
		entry := s.cron.Entry(s.entryID)
		if !entry.Next.IsZero() {
			status["nextRunTime"] = entry.Next.Format(time.RFC3339)
		}
	}
	return status
}
