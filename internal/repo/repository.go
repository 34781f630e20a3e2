package repo

import (
	"context"

	"github.com/dushixiang/beacon/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

// AgentRepository 探针的查询与变更
type AgentRepository interface {
	// FindById 按存储分配的 id 查询，不存在返回 errs.ErrNotFound
	FindById(ctx context.Context, id uint) (*models.Agent, error)
	// FindByUuid 按 uuid 查询，不存在返回 errs.ErrNotFound
	FindByUuid(ctx context.Context, uuid string) (*models.Agent, error)
	// FindByUsername 查询该用户名下在线的探针
	FindByUsername(ctx context.Context, username string) ([]models.Agent, error)
	// FindConnected 查询所有在线探针
	FindConnected(ctx context.Context) ([]models.Agent, error)
	FindAll(ctx context.Context) ([]models.Agent, error)
	// CreateOrUpdate 按 uuid 创建或覆盖探针，返回持久化后的记录
	CreateOrUpdate(ctx context.Context, data *models.Agent) (*models.Agent, error)
	// Upsert 同 CreateOrUpdate，额外返回写入前的记录（新建时为 nil），
	// 读取与写入在同一把锁、同一个事务内完成
	Upsert(ctx context.Context, data *models.Agent) (agent, previous *models.Agent, err error)
}

// MetricRepository 指标查询，范围限定在所属探针内
type MetricRepository interface {
	// FindByAgentUuid 返回探针上报过的指标类型名
	FindByAgentUuid(ctx context.Context, uuid string) ([]string, error)
	// FindByTypeAgentUuid 返回指定类型的指标，按创建时间倒序
	FindByTypeAgentUuid(ctx context.Context, metricType, uuid string) ([]models.Metric, error)
	// FindByTypeAgentUuidLimit 同 FindByTypeAgentUuid，limit <= 0 表示不限制
	FindByTypeAgentUuidLimit(ctx context.Context, metricType, uuid string, limit int) ([]models.Metric, error)
	// Create 为 uuid 对应的探针写入一条指标，探针不存在返回 errs.ErrNotFound
	Create(ctx context.Context, uuid string, metric *models.Metric) (*models.Metric, error)
}

// RetentionRepository 指标保留策略使用的清理操作
type RetentionRepository interface {
	DeleteMetricsBefore(ctx context.Context, timestamp int64) (int64, error)
}

// newRepository 构造 orz 仓库：优先使用 ctx 中由 orz.Service 开启的事务，
// 并把 ctx 绑定到每条语句上，超时与取消对所有查询生效
func newRepository[T any](db *gorm.DB) orz.Repository[T, uint] {
	base := orz.NewRepository[T, uint](db)
	return orz.NewRepositoryWithGetter[T, uint](func(ctx context.Context) *gorm.DB {
		return base.GetDB(ctx).WithContext(ctx)
	})
}
