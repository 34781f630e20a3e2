package repo

import (
	"context"

	"github.com/dushixiang/beacon/internal/errs"
	"github.com/dushixiang/beacon/internal/models"
	"github.com/go-orz/orz"
	"gorm.io/gorm"
)

// RetentionRepo 指标保留策略的清理操作，核心查询不会删除数据
type RetentionRepo struct {
	metrics orz.Repository[models.Metric, uint]
}

func NewRetentionRepo(db *gorm.DB) *RetentionRepo {
	return &RetentionRepo{metrics: newRepository[models.Metric](db)}
}

var _ RetentionRepository = (*RetentionRepo)(nil)

// DeleteMetricsBefore 删除指定时间（毫秒）之前的指标，返回删除条数
func (r *RetentionRepo) DeleteMetricsBefore(ctx context.Context, timestamp int64) (int64, error) {
	result := r.metrics.GetDB(ctx).Where("created_at < ?", timestamp).Delete(&models.Metric{})
	if result.Error != nil {
		return 0, errs.Store(result.Error)
	}
	return result.RowsAffected, nil
}
