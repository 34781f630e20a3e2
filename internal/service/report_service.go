package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dushixiang/beacon/internal/errs"
	"github.com/dushixiang/beacon/internal/models"
	"github.com/dushixiang/beacon/internal/protocol"
	"github.com/dushixiang/beacon/internal/repo"
	"github.com/dushixiang/beacon/internal/validation"
	"github.com/go-orz/orz"
	"go.uber.org/zap"
)

// EventPublisher 接收探针状态变化，由实时推送层实现
type EventPublisher interface {
	Publish(event protocol.Event)
}

// AgentReport 探针的一次上报（已由接入层解码）
type AgentReport struct {
	Agent     models.Agent   `json:"agent"`
	Metrics   []MetricReport `json:"metrics" validate:"dive"`
	Timestamp int64          `json:"timestamp"` // 毫秒，为 0 时使用服务端时间
}

// MetricReport 上报中的单个指标
type MetricReport struct {
	Type  string `json:"type" validate:"required,max=64"`
	Value string `json:"value"`
}

// ReportService 处理探针上报与离线，写入后通知实时推送层
type ReportService struct {
	*orz.Service
	logger    *zap.Logger
	agents    repo.AgentRepository
	metrics   repo.MetricRepository
	publisher EventPublisher
}

func NewReportService(logger *zap.Logger, services *Services, publisher EventPublisher) *ReportService {
	return &ReportService{
		Service:   orz.NewService(services.db),
		logger:    logger,
		agents:    services.Agent,
		metrics:   services.Metric,
		publisher: publisher,
	}
}

// Report 处理探针上报：标记探针在线并写入指标。
// 探针此前不存在或处于离线状态时，在写入指标之前推送 agent/connected；
// 同一次上报的指标在一个事务内写入，全部成功后推送 agent/message。
func (s *ReportService) Report(ctx context.Context, report *AgentReport) (*models.Agent, error) {
	if report == nil {
		return nil, fmt.Errorf("%w: report 不能为空", errs.ErrInvalidAgent)
	}
	if err := validation.Struct(report); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidAgent, err)
	}

	data := report.Agent
	data.Connected = true
	agent, previous, err := s.agents.Upsert(ctx, &data)
	if err != nil {
		return nil, err
	}
	if previous == nil || !previous.Connected {
		s.logger.Info("探针上线",
			zap.String("uuid", agent.UUID),
			zap.String("name", agent.Name),
			zap.String("hostname", agent.Hostname),
			zap.Int("pid", agent.Pid))
		s.publish(protocol.Event{Event: protocol.EventAgentConnected, Agent: agent})
	}

	timestamp := report.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	var saved []models.Metric
	err = s.Transaction(ctx, func(ctx context.Context) error {
		saved = make([]models.Metric, 0, len(report.Metrics))
		for _, m := range report.Metrics {
			created, err := s.metrics.Create(ctx, agent.UUID, &models.Metric{
				Type:      m.Type,
				Value:     m.Value,
				CreatedAt: timestamp,
			})
			if err != nil {
				return err
			}
			saved = append(saved, *created)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("保存指标失败", zap.String("uuid", agent.UUID), zap.Error(err))
		return nil, errs.Store(err)
	}

	s.publish(protocol.Event{Event: protocol.EventAgentMessage, Agent: agent, Metrics: saved})
	return agent, nil
}

// Disconnect 标记探针离线，探针不存在时返回 errs.ErrNotFound
func (s *ReportService) Disconnect(ctx context.Context, uuid string) (*models.Agent, error) {
	existing, err := s.agents.FindByUuid(ctx, uuid)
	if err != nil {
		return nil, err
	}

	data := *existing
	data.Connected = false
	agent, _, err := s.agents.Upsert(ctx, &data)
	if err != nil {
		return nil, err
	}

	s.logger.Info("探针离线", zap.String("uuid", uuid))
	s.publish(protocol.Event{Event: protocol.EventAgentDisconnected, Agent: agent})
	return agent, nil
}

func (s *ReportService) publish(event protocol.Event) {
	if s.publisher == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	s.publisher.Publish(event)
}
