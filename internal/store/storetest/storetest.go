// Package storetest 为测试提供临时 sqlite 数据库
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dushixiang/beacon/internal/config"
	"github.com/dushixiang/beacon/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config 返回指向测试临时目录的 sqlite 配置
func Config(t testing.TB) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:         "sqlite",
		DSN:            filepath.Join(t.TempDir(), "beacon.db"),
		ConnectTimeout: 5,
	}
}

// Open 打开已完成迁移的测试数据库，测试结束时自动关闭
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := store.Open(context.Background(), Config(t), zap.NewNop())
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(db)
	})
	return db
}
