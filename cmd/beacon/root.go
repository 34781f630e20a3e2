package main

import (
	"github.com/dushixiang/beacon/internal/config"
	"github.com/dushixiang/beacon/internal/logger"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// 由 -ldflags "-X main.Version=..." 注入
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type options struct {
	configPath string
	fs         afero.Fs
}

func newRootCommand() *cobra.Command {
	opts := &options{fs: afero.NewOsFs()}

	root := &cobra.Command{
		Use:           "beacon",
		Short:         "探针与指标的存储和查询服务",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "配置文件路径")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newVersionCommand(),
	)
	return root
}

// load 读取配置并创建日志
func (o *options) load() (*config.AppConfig, *zap.Logger, zap.AtomicLevel, error) {
	cfg, err := config.Load(o.fs, o.configPath)
	if err != nil {
		return nil, nil, zap.AtomicLevel{}, err
	}
	log, level := logger.New(cfg.Log)
	return cfg, log, level, nil
}
