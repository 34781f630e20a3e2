package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dushixiang/beacon/internal/app"
	"github.com/dushixiang/beacon/internal/config"
	"github.com/dushixiang/beacon/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, level, err := opts.load()
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("beacon 启动",
				zap.String("version", Version),
				zap.String("commit", GitCommit),
				zap.String("config", opts.configPath))

			application, cleanup, err := app.InitializeApp(ctx, cfg, log)
			if err != nil {
				log.Error("初始化失败", zap.Error(err))
				return err
			}
			defer cleanup()

			// 日志级别、用户和保留策略支持热更新，其余配置需要重启
			err = config.Watch(ctx, log, opts.fs, opts.configPath, func(next *config.AppConfig) {
				level.SetLevel(logger.ParseLevel(next.Log.Level))
				application.Reload(next)
			})
			if err != nil {
				log.Warn("监听配置文件失败，配置热更新不可用", zap.Error(err))
			}

			if err := application.Run(ctx); err != nil {
				log.Error("服务异常退出", zap.Error(err))
				return err
			}
			log.Info("beacon 已退出")
			return nil
		},
	}
}
