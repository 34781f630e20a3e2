package models

import (
	"time"

	"gorm.io/gorm"
)

// Agent 探针
type Agent struct {
	ID        uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID      string   `gorm:"column:uuid;uniqueIndex:ux_agents_uuid;size:64;not null" json:"uuid" validate:"required,max=64"` // 探针唯一标识（不可变）
	Name      string   `json:"name"`                                                                                           // 名称
	Username  string   `gorm:"index:idx_agents_username_connected,priority:1" json:"username"`                                 // 所属用户
	Hostname  string   `json:"hostname"`                                                                                       // 主机名
	Pid       int      `json:"pid"`                                                                                            // 进程号
	Connected bool     `gorm:"index:idx_agents_username_connected,priority:2;not null;default:false" json:"connected"`         // 是否在线
	Metrics   []Metric `gorm:"foreignKey:AgentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	CreatedAt int64    `json:"createdAt"`                             // 创建时间（毫秒）
	UpdatedAt int64    `json:"updatedAt" gorm:"autoUpdateTime:milli"` // 更新时间（毫秒）
}

func (Agent) TableName() string {
	return "agents"
}

// BeforeCreate GORM钩子：设置创建时间
func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UnixMilli()
	if a.CreatedAt == 0 {
		a.CreatedAt = now
	}
	if a.UpdatedAt == 0 {
		a.UpdatedAt = now
	}
	return nil
}
