package app

import (
	"context"
	"time"

	"github.com/dushixiang/beacon/internal/config"
	"github.com/dushixiang/beacon/internal/handler"
	"github.com/dushixiang/beacon/internal/realtime"
	"github.com/dushixiang/beacon/internal/repo"
	"github.com/dushixiang/beacon/internal/scheduler"
	"github.com/dushixiang/beacon/internal/service"
	"github.com/google/wire"
	"go.uber.org/zap"
)

var providerSet = wire.NewSet(
	provideProvider,
	provideServices,
	provideAgentRepository,
	provideMetricRepository,
	provideRetentionRepository,
	provideHub,
	wire.Bind(new(service.EventPublisher), new(*realtime.Hub)),
	service.NewReportService,
	provideTokenIssuer,
	provideAccountHandler,
	handler.NewAgentHandler,
	handler.NewMetricHandler,
	handler.NewReportHandler,
	wire.Struct(new(Handlers), "*"),
	NewServer,
	scheduler.NewRetentionScheduler,
	NewApp,
)

func provideProvider(cfg *config.AppConfig, logger *zap.Logger) (*service.Provider, func()) {
	p := service.NewProvider(logger, cfg.Database)
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Error("关闭数据库连接失败", zap.Error(err))
		}
	}
}

func provideServices(ctx context.Context, p *service.Provider) (*service.Services, error) {
	return p.Get(ctx)
}

func provideAgentRepository(s *service.Services) repo.AgentRepository {
	return s.Agent
}

func provideMetricRepository(s *service.Services) repo.MetricRepository {
	return s.Metric
}

func provideRetentionRepository(s *service.Services) repo.RetentionRepository {
	return s.Retention
}

func provideHub(logger *zap.Logger, agents repo.AgentRepository) (*realtime.Hub, func()) {
	hub := realtime.NewHub(logger, agents)
	return hub, hub.Close
}

func provideTokenIssuer(cfg *config.AppConfig) *handler.TokenIssuer {
	return handler.NewTokenIssuer(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiresHours)*time.Hour)
}

func provideAccountHandler(logger *zap.Logger, issuer *handler.TokenIssuer, cfg *config.AppConfig) *handler.AccountHandler {
	return handler.NewAccountHandler(logger, issuer, cfg.Users)
}
