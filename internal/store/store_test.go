package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dushixiang/beacon/internal/config"
	"github.com/dushixiang/beacon/internal/errs"
	"github.com/dushixiang/beacon/internal/models"
	"github.com/dushixiang/beacon/internal/store"
	"github.com/dushixiang/beacon/internal/store/storetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func TestOpenCreatesSchema(t *testing.T) {
	db := storetest.Open(t)
	migrator := db.Migrator()

	for _, table := range []string{"agents", "metrics"} {
		if !migrator.HasTable(table) {
			t.Errorf("缺少表 %s", table)
		}
	}
	if !migrator.HasIndex(&models.Agent{}, "ux_agents_uuid") {
		t.Errorf("缺少 uuid 唯一索引")
	}
	if !migrator.HasIndex(&models.Metric{}, "idx_metrics_agent_type_created") {
		t.Errorf("缺少指标查询索引")
	}
}

func TestOpenEnforcesConstraints(t *testing.T) {
	db := storetest.Open(t)

	// 指标必须引用已存在的探针
	err := db.Create(&models.Metric{AgentID: 42, Type: "ram", Value: "1064"}).Error
	if err == nil {
		t.Errorf("引用不存在探针的指标应写入失败")
	}

	if err := db.Create(&models.Agent{UUID: "yyy-yyy-yyy"}).Error; err != nil {
		t.Fatalf("创建探针失败: %v", err)
	}
	err = db.Create(&models.Agent{UUID: "yyy-yyy-yyy"}).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("重复 uuid 应返回 gorm.ErrDuplicatedKey，实际: %v", err)
	}
}

func TestOpenIsRepeatable(t *testing.T) {
	cfg := storetest.Config(t)
	for i := 0; i < 2; i++ {
		db, err := store.Open(context.Background(), cfg, zap.NewNop())
		if err != nil {
			t.Fatalf("第 %d 次 Open() 失败: %v", i+1, err)
		}
		_ = store.Close(db)
	}
}

func TestOpenConfigurationError(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
	}{
		{name: "未知驱动", cfg: config.DatabaseConfig{Driver: "oracle", DSN: "x"}},
		{name: "sqlite 缺少 DSN", cfg: config.DatabaseConfig{Driver: "sqlite"}},
		{name: "postgres 不可达", cfg: config.DatabaseConfig{Driver: "postgres", Host: "127.0.0.1", Port: 1, Name: "beacon", ConnectTimeout: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			_, err := store.Open(context.Background(), tt.cfg, zap.NewNop())
			if !errs.IsConfiguration(err) {
				t.Fatalf("应返回配置错误，实际: %v", err)
			}
			if time.Since(start) > 10*time.Second {
				t.Errorf("连接失败应在超时时间内返回")
			}
		})
	}
}

func TestGormLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db := storetest.Open(t)
	db = db.Session(&gorm.Session{Logger: store.NewGormLogger(zap.New(core), true)})

	var agents []models.Agent
	if err := db.Find(&agents).Error; err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if logs.FilterMessage("sql").Len() == 0 {
		t.Errorf("开启日志后应记录 SQL")
	}

	core, logs = observer.New(zapcore.DebugLevel)
	db = db.Session(&gorm.Session{Logger: store.NewGormLogger(zap.New(core), false)})
	var agent models.Agent
	_ = db.Where("uuid = ?", "missing").First(&agent).Error
	if logs.Len() != 0 {
		t.Errorf("关闭日志且无错误时不应输出，实际 %d 条", logs.Len())
	}
}
