package main

import (
	"context"

	"github.com/dushixiang/beacon/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "同步表结构并执行旧数据迁移",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, _, err := opts.load()
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Database.ConnectTimeoutDuration()*2)
			defer cancel()

			services, err := service.Setup(ctx, cfg.Database, log)
			if err != nil {
				log.Error("迁移失败", zap.Error(err))
				return err
			}
			log.Info("迁移完成", zap.String("driver", cfg.Database.Driver))
			return services.Close()
		},
	}
}
