package models

import (
	"time"

	"gorm.io/gorm"
)

// Metric 探针上报的指标，创建后不再修改
type Metric struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	AgentID   uint   `gorm:"not null;index:idx_metrics_agent_type_created,priority:1" json:"agentId"`      // 所属探针
	Type      string `gorm:"size:64;not null;index:idx_metrics_agent_type_created,priority:2" json:"type"` // 指标类型，如 ram、cpu、temperature
	Value     string `gorm:"type:text" json:"value"`                                                       // 指标值（字符串编码）
	CreatedAt int64  `gorm:"index:idx_metrics_agent_type_created,priority:3" json:"createdAt"`             // 创建时间（毫秒）
	Agent     *Agent `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
}

func (Metric) TableName() string {
	return "metrics"
}

// BeforeCreate GORM钩子：设置创建时间
func (m *Metric) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	return nil
}
