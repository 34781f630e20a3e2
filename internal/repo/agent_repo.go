package repo

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dushixiang/beacon/internal/errs"
	"github.com/dushixiang/beacon/internal/models"
	"github.com/dushixiang/beacon/internal/validation"
	"github.com/go-orz/orz"
	"github.com/jpillora/backoff"
	"gorm.io/gorm"
)

// 跨进程并发创建同一 uuid 时，唯一索引冲突后的最大尝试次数
const maxUpsertAttempts = 3

type AgentRepo struct {
	*orz.Service
	agents orz.Repository[models.Agent, uint]
	locks  *keyedMutex
}

func NewAgentRepo(db *gorm.DB) *AgentRepo {
	return &AgentRepo{
		Service: orz.NewService(db),
		agents:  newRepository[models.Agent](db),
		locks:   newKeyedMutex(),
	}
}

var _ AgentRepository = (*AgentRepo)(nil)

func (r *AgentRepo) FindById(ctx context.Context, id uint) (*models.Agent, error) {
	agent, err := r.agents.FindById(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &agent, nil
}

func (r *AgentRepo) FindByUuid(ctx context.Context, uuid string) (*models.Agent, error) {
	var agent models.Agent
	err := r.agents.GetDB(ctx).Where("uuid = ?", uuid).First(&agent).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &agent, nil
}

func (r *AgentRepo) FindByUsername(ctx context.Context, username string) ([]models.Agent, error) {
	return r.find(r.agents.GetDB(ctx).Where("username = ? AND connected = ?", username, true))
}

func (r *AgentRepo) FindConnected(ctx context.Context) ([]models.Agent, error) {
	return r.find(r.agents.GetDB(ctx).Where("connected = ?", true))
}

func (r *AgentRepo) FindAll(ctx context.Context) ([]models.Agent, error) {
	agents, err := r.agents.FindAll(ctx)
	if err != nil {
		return nil, errs.Store(err)
	}
	if agents == nil {
		return make([]models.Agent, 0), nil
	}
	slices.SortFunc(agents, func(a, b models.Agent) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return agents, nil
}

func (r *AgentRepo) find(query *gorm.DB) ([]models.Agent, error) {
	agents := make([]models.Agent, 0)
	if err := query.Order("id ASC").Find(&agents).Error; err != nil {
		return nil, errs.Store(err)
	}
	return agents, nil
}

func (r *AgentRepo) CreateOrUpdate(ctx context.Context, data *models.Agent) (*models.Agent, error) {
	agent, _, err := r.Upsert(ctx, data)
	return agent, err
}

// Upsert 创建或更新探针
// 同一 uuid 在进程内按 uuid 串行；跨进程依赖唯一索引，冲突后退避重试，第二次会走更新分支。
// 调用方已经处于事务中时不重试，冲突会让外层事务失效。
func (r *AgentRepo) Upsert(ctx context.Context, data *models.Agent) (*models.Agent, *models.Agent, error) {
	if data == nil {
		return nil, nil, fmt.Errorf("%w: agent 不能为空", errs.ErrInvalidAgent)
	}
	if err := validation.Struct(data); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errs.ErrInvalidAgent, err)
	}

	unlock, err := r.locks.Lock(ctx, data.UUID)
	if err != nil {
		return nil, nil, errs.Store(err)
	}
	defer unlock()

	b := &backoff.Backoff{
		Min:    10 * time.Millisecond,
		Max:    200 * time.Millisecond,
		Factor: 2,
		Jitter: true,
	}

	for {
		agent, previous, err := r.upsert(ctx, data)
		if err == nil {
			return agent, previous, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || r.InTransaction(ctx) || b.Attempt()+1 >= maxUpsertAttempts {
			return nil, nil, errs.Store(err)
		}

		select {
		case <-ctx.Done():
			return nil, nil, errs.Store(ctx.Err())
		case <-time.After(b.Duration()):
		}
	}
}

// upsert 在一个事务内完成查询、写入和回读，超时或失败时整体回滚
func (r *AgentRepo) upsert(ctx context.Context, data *models.Agent) (agent, previous *models.Agent, err error) {
	err = r.Transaction(ctx, func(ctx context.Context) error {
		var (
			id       uint
			existing models.Agent
		)
		err := r.agents.GetDB(ctx).Where("uuid = ?", data.UUID).First(&existing).Error
		switch {
		case err == nil:
			previous = &existing
			id = existing.ID
			// 覆盖全部可变字段（包括零值）
			if err := r.agents.UpdateColumnsById(ctx, existing.ID, map[string]interface{}{
				"name":       data.Name,
				"username":   data.Username,
				"hostname":   data.Hostname,
				"pid":        data.Pid,
				"connected":  data.Connected,
				"updated_at": time.Now().UnixMilli(),
			}); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			created := models.Agent{
				UUID:      data.UUID,
				Name:      data.Name,
				Username:  data.Username,
				Hostname:  data.Hostname,
				Pid:       data.Pid,
				Connected: data.Connected,
			}
			// Select 保证 connected=false 也会写入，而不是依赖列默认值
			if err := r.agents.GetDB(ctx).
				Select("uuid", "name", "username", "hostname", "pid", "connected", "created_at", "updated_at").
				Create(&created).Error; err != nil {
				return err
			}
			id = created.ID
		default:
			return err
		}

		saved, err := r.agents.FindById(ctx, id)
		if err != nil {
			return err
		}
		agent = &saved
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return agent, previous, nil
}

// notFound 将 gorm.ErrRecordNotFound 转换为 errs.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrNotFound
	}
	return errs.Store(err)
}
