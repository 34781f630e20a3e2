package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Watch 监听配置文件变化，文件被写入或替换后重新加载并回调。
// 解析失败时保留旧配置，只记录日志。
func Watch(ctx context.Context, logger *zap.Logger, fs afero.Fs, path string, onChange func(*AppConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// 监听目录而非文件，兼容编辑器先删除再重建的保存方式
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(fs, path)
				if err != nil {
					logger.Warn("重新加载配置失败", zap.String("path", path), zap.Error(err))
					continue
				}
				logger.Info("配置已重新加载", zap.String("path", path))
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("配置文件监听错误", zap.Error(err))
			}
		}
	}()
	return nil
}
