package service

import (
	"context"

	"github.com/dushixiang/beacon/internal/config"
	"github.com/dushixiang/beacon/internal/repo"
	"github.com/dushixiang/beacon/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 探针与指标的唯一访问入口。
// 连接池由 Services 持有，不对外暴露。
type Services struct {
	Agent     repo.AgentRepository
	Metric    repo.MetricRepository
	Retention repo.RetentionRepository

	db *gorm.DB
}

// Setup 初始化存储（连接、迁移、声明探针与指标的外键关系），并构造两个仓库。
// 连接描述错误或数据库不可达时返回 *errs.ConfigurationError。
func Setup(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Services, error) {
	db, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewServices(db), nil
}

// NewServices 基于已初始化的数据库构造仓库
func NewServices(db *gorm.DB) *Services {
	return &Services{
		Agent:     repo.NewAgentRepo(db),
		Metric:    repo.NewMetricRepo(db),
		Retention: repo.NewRetentionRepo(db),
		db:        db,
	}
}

// Close 关闭连接池
func (s *Services) Close() error {
	if s.db == nil {
		return nil
	}
	return store.Close(s.db)
}
