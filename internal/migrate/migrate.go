package migrate

import (
	"github.com/dushixiang/beacon/internal/migrate/v0_2_0"
	"github.com/dushixiang/beacon/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Run 执行版本迁移，然后同步表结构。
// 版本迁移必须在 AutoMigrate 之前执行，否则唯一索引会因历史重复数据创建失败。
func Run(logger *zap.Logger, db *gorm.DB) error {
	if err := v0_2_0.Migrate(logger, db); err != nil {
		return err
	}

	if err := db.AutoMigrate(&models.Agent{}, &models.Metric{}); err != nil {
		logger.Error("同步表结构失败", zap.Error(err))
		return err
	}
	return nil
}
