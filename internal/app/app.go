package app

import (
	"context"
	"time"

	"github.com/dushixiang/beacon/internal/config"
	"github.com/dushixiang/beacon/internal/handler"
	"github.com/dushixiang/beacon/internal/scheduler"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// App 组装后的服务端
type App struct {
	logger    *zap.Logger
	cfg       *config.AppConfig
	server    *Server
	scheduler *scheduler.RetentionScheduler
	account   *handler.AccountHandler
}

func NewApp(logger *zap.Logger, cfg *config.AppConfig, server *Server, retention *scheduler.RetentionScheduler, account *handler.AccountHandler) *App {
	return &App{
		logger:    logger,
		cfg:       cfg,
		server:    server,
		scheduler: retention,
		account:   account,
	}
}

// Run 启动 HTTP 服务和清理调度器，ctx 取消后优雅退出
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.Apply(a.cfg.Retention); err != nil {
		return err
	}
	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start(a.cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("正在关闭 HTTP 服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Reload 应用热更新后的配置，只有用户列表与保留策略会生效
func (a *App) Reload(cfg *config.AppConfig) {
	a.account.SetUsers(cfg.Users)
	if err := a.scheduler.Apply(cfg.Retention); err != nil {
		a.logger.Error("应用指标保留策略失败", zap.Error(err))
		return
	}
	a.logger.Info("配置已重新加载")
}
