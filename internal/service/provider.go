package service

import (
	"context"
	"sync"

	"github.com/dushixiang/beacon/internal/config"
	"github.com/dushixiang/beacon/internal/errs"
	"go.uber.org/zap"
)

type setupCall struct {
	done     chan struct{}
	services *Services
	err      error
}

// Provider 延迟初始化 Services。
// 并发调用 Get 时只会执行一次 Setup，其余调用等待并复用结果；失败的结果不缓存，下次 Get 会重试。
type Provider struct {
	logger *zap.Logger
	setup  func(ctx context.Context) (*Services, error)

	mu       sync.Mutex
	services *Services
	inflight *setupCall
}

func NewProvider(logger *zap.Logger, cfg config.DatabaseConfig) *Provider {
	return &Provider{
		logger: logger,
		setup: func(ctx context.Context) (*Services, error) {
			return Setup(ctx, cfg, logger)
		},
	}
}

// Get 返回已初始化的 Services。ctx 只约束当前调用方的等待时间，不会中断正在进行的初始化。
func (p *Provider) Get(ctx context.Context) (*Services, error) {
	p.mu.Lock()
	if p.services != nil {
		services := p.services
		p.mu.Unlock()
		return services, nil
	}

	call := p.inflight
	if call == nil {
		call = &setupCall{done: make(chan struct{})}
		p.inflight = call
		go p.run(context.WithoutCancel(ctx), call)
	}
	p.mu.Unlock()

	select {
	case <-call.done:
		return call.services, call.err
	case <-ctx.Done():
		return nil, errs.Store(ctx.Err())
	}
}

func (p *Provider) run(ctx context.Context, call *setupCall) {
	p.logger.Debug("初始化数据库连接")
	services, err := p.setup(ctx)

	p.mu.Lock()
	if err == nil {
		p.services = services
	} else {
		p.logger.Error("初始化数据库连接失败", zap.Error(err))
	}
	p.inflight = nil
	p.mu.Unlock()

	call.services, call.err = services, err
	close(call.done)
}

// Close 关闭已初始化的 Services
func (p *Provider) Close() error {
	p.mu.Lock()
	services := p.services
	p.services = nil
	p.mu.Unlock()

	if services == nil {
		return nil
	}
	return services.Close()
}
