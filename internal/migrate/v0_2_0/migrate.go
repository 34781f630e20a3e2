package v0_2_0

import (
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const uniqueIndex = "ux_agents_uuid"

type duplicate struct {
	UUID   string
	KeepID uint
	Total  int64
}

// Migrate 合并 uuid 重复的探针，为 ux_agents_uuid 唯一索引做准备。
// 保留 id 最大的一行（最近一次上线的数据），其余行的指标改挂到保留行后删除。
func Migrate(logger *zap.Logger, db *gorm.DB) error {
	logger.Info("开始执行 v0.2.0 版本数据迁移")

	migrator := db.Migrator()
	if migrator == nil {
		logger.Warn("无法获取数据库 migrator，跳过迁移")
		return nil
	}

	if !migrator.HasTable("agents") {
		logger.Info("未检测到 agents 表，跳过迁移")
		return nil
	}

	if migrator.HasIndex("agents", uniqueIndex) {
		logger.Debug("唯一索引已存在，跳过迁移", zap.String("index", uniqueIndex))
		return nil
	}

	var duplicates []duplicate
	if err := db.Table("agents").
		Select("uuid, MAX(id) AS keep_id, COUNT(*) AS total").
		Group("uuid").
		Having("COUNT(*) > ?", 1).
		Scan(&duplicates).Error; err != nil {
		logger.Error("查询重复探针失败", zap.Error(err))
		return err
	}

	if len(duplicates) == 0 {
		logger.Info("没有重复的探针，跳过迁移")
		return nil
	}

	logger.Info("找到重复的探针", zap.Int("count", len(duplicates)))

	hasMetrics := migrator.HasTable("metrics")
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, d := range duplicates {
			var staleIDs []uint
			if err := tx.Table("agents").
				Where("uuid = ? AND id <> ?", d.UUID, d.KeepID).
				Pluck("id", &staleIDs).Error; err != nil {
				return err
			}

			if hasMetrics {
				if err := tx.Exec("UPDATE metrics SET agent_id = ? WHERE agent_id IN ?", d.KeepID, staleIDs).Error; err != nil {
					logger.Error("迁移重复探针的指标失败",
						zap.String("uuid", d.UUID),
						zap.Uint("keepId", d.KeepID),
						zap.Error(err))
					return err
				}
			}

			if err := tx.Exec("DELETE FROM agents WHERE id IN ?", staleIDs).Error; err != nil {
				logger.Error("删除重复探针失败", zap.String("uuid", d.UUID), zap.Error(err))
				return err
			}

			logger.Debug("已合并重复探针",
				zap.String("uuid", d.UUID),
				zap.Uint("keepId", d.KeepID),
				zap.Int64("total", d.Total))
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("v0.2.0 版本数据迁移完成", zap.Int("merged", len(duplicates)))
	return nil
}
