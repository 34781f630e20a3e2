package repo

import (
	"context"
	"time"

	"github.com/dushixiang/beacon/internal/errs"
	"github.com/dushixiang/beacon/internal/models"
	"github.com/go-orz/cache"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

type MetricRepo struct {
	metrics orz.Repository[models.Metric, uint]
	agents  orz.Repository[models.Agent, uint]
	// uuid -> agent id，探针 id 一旦分配不会改变
	agentIDs cache.Cache[string, uint]
}

func NewMetricRepo(db *gorm.DB) *MetricRepo {
	return &MetricRepo{
		metrics:  newRepository[models.Metric](db),
		agents:   newRepository[models.Agent](db),
		agentIDs: cache.New[string, uint](time.Hour),
	}
}

var _ MetricRepository = (*MetricRepo)(nil)

// FindByAgentUuid 返回探针上报过的指标类型（去重，按名称排序）
func (r *MetricRepo) FindByAgentUuid(ctx context.Context, uuid string) ([]string, error) {
	types := make([]string, 0)
	err := r.metrics.GetDB(ctx).
		Model(&models.Metric{}).
		Joins("JOIN agents ON agents.id = metrics.agent_id").
		Where("agents.uuid = ?", uuid).
		Distinct().
		Order("metrics.type ASC").
		Pluck("metrics.type", &types).Error
	if err != nil {
		return nil, errs.Store(err)
	}
	if types == nil {
		types = make([]string, 0)
	}
	return types, nil
}

func (r *MetricRepo) FindByTypeAgentUuid(ctx context.Context, metricType, uuid string) ([]models.Metric, error) {
	return r.FindByTypeAgentUuidLimit(ctx, metricType, uuid, 0)
}

// FindByTypeAgentUuidLimit 按创建时间倒序返回指标，时间相同按 id 倒序
func (r *MetricRepo) FindByTypeAgentUuidLimit(ctx context.Context, metricType, uuid string, limit int) ([]models.Metric, error) {
	metrics := make([]models.Metric, 0)
	query := r.metrics.GetDB(ctx).
		Joins("JOIN agents ON agents.id = metrics.agent_id").
		Where("agents.uuid = ? AND metrics.type = ?", uuid, metricType).
		Order("metrics.created_at DESC").
		Order("metrics.id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&metrics).Error; err != nil {
		return nil, errs.Store(err)
	}
	return metrics, nil
}

// Create 写入指标，AgentID 由 uuid 解析得到；ctx 中带有事务时写入该事务
func (r *MetricRepo) Create(ctx context.Context, uuid string, metric *models.Metric) (*models.Metric, error) {
	agentID, err := r.resolveAgentID(ctx, uuid)
	if err != nil {
		return nil, err
	}

	metric.ID = 0
	metric.AgentID = agentID
	metric.Agent = nil
	if err := r.metrics.Create(ctx, metric); err != nil {
		return nil, errs.Store(err)
	}
	return metric, nil
}

func (r *MetricRepo) resolveAgentID(ctx context.Context, uuid string) (uint, error) {
	if id, ok := r.agentIDs.Get(uuid); ok {
		return id, nil
	}

	var agent models.Agent
	err := r.agents.GetDB(ctx).Select("id").Where("uuid = ?", uuid).First(&agent).Error
	if err != nil {
		return 0, notFound(err)
	}
	r.agentIDs.Set(uuid, agent.ID, time.Hour)
	return agent.ID, nil
}
