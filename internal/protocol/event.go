package protocol

import "github.com/dushixiang/beacon/internal/models"

// EventType 推送给看板客户端的事件类型
type EventType string

const (
	EventAgentSnapshot     EventType = "agent/snapshot"     // 连接建立时的在线探针快照
	EventAgentConnected    EventType = "agent/connected"    // 探针上线
	EventAgentDisconnected EventType = "agent/disconnected" // 探针离线
	EventAgentMessage      EventType = "agent/message"      // 探针上报了新指标
)

// Event 实时推送事件
type Event struct {
	Event     EventType       `json:"event"`
	Agent     *models.Agent   `json:"agent,omitempty"`
	Agents    []models.Agent  `json:"agents,omitempty"`
	Metrics   []models.Metric `json:"metrics,omitempty"`
	Timestamp int64           `json:"timestamp"` // 毫秒
}
