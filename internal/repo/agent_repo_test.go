package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dushixiang/beacon/internal/errs"
	"github.com/dushixiang/beacon/internal/models"
	"github.com/dushixiang/beacon/internal/store/storetest"
	"github.com/sourcegraph/conc"
	"gorm.io/gorm"
)

// seedAgents 写入与线上数据相似的探针
func seedAgents(t *testing.T, r *AgentRepo) {
	t.Helper()
	fixtures := []models.Agent{
		{UUID: "yyy-yyy-yyy", Name: "fixture", Username: "platzi", Hostname: "platzi-host", Pid: 0, Connected: true},
		{UUID: "yyy-yyy-yyw", Name: "fixture", Username: "platzi", Hostname: "platzi-host", Pid: 0, Connected: false},
		{UUID: "yyy-yyy-yyx", Name: "fixture", Username: "fixture", Hostname: "platzi-host", Pid: 0, Connected: true},
		{UUID: "yyy-yyy-yyz", Name: "fixture", Username: "test", Hostname: "platzi-host", Pid: 0, Connected: true},
	}
	for i := range fixtures {
		if _, err := r.CreateOrUpdate(context.Background(), &fixtures[i]); err != nil {
			t.Fatalf("写入探针 %s 失败: %v", fixtures[i].UUID, err)
		}
	}
}

func countByUuid(t *testing.T, db *gorm.DB, uuid string) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.Agent{}).Where("uuid = ?", uuid).Count(&count).Error; err != nil {
		t.Fatalf("统计探针失败: %v", err)
	}
	return count
}

func TestAgentFindById(t *testing.T) {
	r := NewAgentRepo(storetest.Open(t))
	seedAgents(t, r)
	ctx := context.Background()

	byUuid, err := r.FindByUuid(ctx, "yyy-yyy-yyx")
	if err != nil {
		t.Fatalf("FindByUuid() 失败: %v", err)
	}

	agent, err := r.FindById(ctx, byUuid.ID)
	if err != nil {
		t.Fatalf("FindById() 失败: %v", err)
	}
	if agent.UUID != "yyy-yyy-yyx" || agent.Username != "fixture" {
		t.Errorf("FindById() 返回了错误的探针: %+v", agent)
	}

	if _, err := r.FindById(ctx, 9999); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("不存在的 id 应返回 ErrNotFound，实际: %v", err)
	}
}

func TestAgentFindByUuidNotFound(t *testing.T) {
	r := NewAgentRepo(storetest.Open(t))

	agent, err := r.FindByUuid(context.Background(), "swdf")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("不存在的 uuid 应返回 ErrNotFound，实际: %v", err)
	}
	if agent != nil {
		t.Errorf("未找到时不应返回默认探针: %+v", agent)
	}
}

func TestAgentFindAll(t *testing.T) {
	r := NewAgentRepo(storetest.Open(t))
	ctx := context.Background()

	agents, err := r.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll() 失败: %v", err)
	}
	if agents == nil || len(agents) != 0 {
		t.Errorf("空库应返回空切片，实际: %v", agents)
	}

	seedAgents(t, r)
	agents, err = r.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll() 失败: %v", err)
	}
	if len(agents) != 4 {
		t.Errorf("FindAll() 应返回 4 个探针，实际 %d", len(agents))
	}
}

func TestAgentFilters(t *testing.T) {
	r := NewAgentRepo(storetest.Open(t))
	seedAgents(t, r)
	ctx := context.Background()

	connected, err := r.FindConnected(ctx)
	if err != nil {
		t.Fatalf("FindConnected() 失败: %v", err)
	}
	if len(connected) != 3 {
		t.Errorf("应有 3 个在线探针，实际 %d", len(connected))
	}
	for _, agent := range connected {
		if !agent.Connected {
			t.Errorf("FindConnected() 返回了离线探针 %s", agent.UUID)
		}
	}

	platzi, err := r.FindByUsername(ctx, "platzi")
	if err != nil {
		t.Fatalf("FindByUsername() 失败: %v", err)
	}
	if len(platzi) != 1 || platzi[0].UUID != "yyy-yyy-yyy" {
		t.Errorf("FindByUsername(platzi) 应只返回在线的 yyy-yyy-yyy，实际 %+v", platzi)
	}

	nobody, err := r.FindByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("FindByUsername() 失败: %v", err)
	}
	if len(nobody) != 0 {
		t.Errorf("未知用户应返回空结果，实际 %d", len(nobody))
	}
}

func TestAgentCreateOrUpdateNew(t *testing.T) {
	r := NewAgentRepo(storetest.Open(t))

	newAgent := &models.Agent{
		UUID:      "123-123-123",
		Name:      "test",
		Username:  "test",
		Hostname:  "test",
		Pid:       0,
		Connected: false,
	}
	agent, err := r.CreateOrUpdate(context.Background(), newAgent)
	if err != nil {
		t.Fatalf("CreateOrUpdate() 失败: %v", err)
	}
	if agent.ID == 0 {
		t.Errorf("新建探针应分配 id")
	}
	if agent.UUID != newAgent.UUID || agent.Name != "test" || agent.Connected {
		t.Errorf("返回值应与持久化数据一致: %+v", agent)
	}
	if agent.CreatedAt == 0 || agent.UpdatedAt == 0 {
		t.Errorf("应设置创建和更新时间: %+v", agent)
	}
}

func TestAgentCreateOrUpdateExisting(t *testing.T) {
	db := storetest.Open(t)
	r := NewAgentRepo(db)
	seedAgents(t, r)
	ctx := context.Background()

	before, _ := r.FindByUuid(ctx, "yyy-yyy-yyy")

	updated, err := r.CreateOrUpdate(ctx, &models.Agent{
		UUID:      "yyy-yyy-yyy",
		Name:      "renamed",
		Username:  "platzi",
		Hostname:  "new-host",
		Pid:       4242,
		Connected: false,
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate() 失败: %v", err)
	}

	if updated.ID != before.ID {
		t.Errorf("更新不应改变 id: %d -> %d", before.ID, updated.ID)
	}
	if updated.CreatedAt != before.CreatedAt {
		t.Errorf("更新不应改变创建时间")
	}

	found, err := r.FindByUuid(ctx, "yyy-yyy-yyy")
	if err != nil {
		t.Fatalf("FindByUuid() 失败: %v", err)
	}
	if found.Name != "renamed" || found.Hostname != "new-host" || found.Pid != 4242 || found.Connected {
		t.Errorf("字段未被覆盖: %+v", found)
	}
	if count := countByUuid(t, db, "yyy-yyy-yyy"); count != 1 {
		t.Errorf("更新后应只有 1 行，实际 %d", count)
	}

	// 离线后不再出现在在线列表中
	connected, _ := r.FindConnected(ctx)
	for _, agent := range connected {
		if agent.UUID == "yyy-yyy-yyy" {
			t.Errorf("离线的探针不应出现在 FindConnected() 中")
		}
	}
	platzi, _ := r.FindByUsername(ctx, "platzi")
	if len(platzi) != 0 {
		t.Errorf("platzi 已无在线探针，实际 %d", len(platzi))
	}
}

func TestAgentCreateOrUpdateIdempotent(t *testing.T) {
	db := storetest.Open(t)
	r := NewAgentRepo(db)
	ctx := context.Background()

	payload := models.Agent{UUID: "xxx", Name: "fixture", Username: "platzi", Hostname: "platzi-host", Pid: 7, Connected: true}

	first, err := r.CreateOrUpdate(ctx, &payload)
	if err != nil {
		t.Fatalf("第一次 CreateOrUpdate() 失败: %v", err)
	}
	second, err := r.CreateOrUpdate(ctx, &payload)
	if err != nil {
		t.Fatalf("第二次 CreateOrUpdate() 失败: %v", err)
	}

	if first.ID != second.ID || first.Name != second.Name || first.Username != second.Username ||
		first.Hostname != second.Hostname || first.Pid != second.Pid || first.Connected != second.Connected {
		t.Errorf("相同输入应得到相同的持久化结果: %+v vs %+v", first, second)
	}
	if count := countByUuid(t, db, "xxx"); count != 1 {
		t.Errorf("应只有 1 行，实际 %d", count)
	}
}

func TestAgentCreateOrUpdateInvalid(t *testing.T) {
	r := NewAgentRepo(storetest.Open(t))

	if _, err := r.CreateOrUpdate(context.Background(), &models.Agent{Name: "no-uuid"}); !errors.Is(err, errs.ErrInvalidAgent) {
		t.Errorf("缺少 uuid 应返回 ErrInvalidAgent，实际: %v", err)
	}
	if _, err := r.CreateOrUpdate(context.Background(), nil); !errors.Is(err, errs.ErrInvalidAgent) {
		t.Errorf("nil 输入应返回 ErrInvalidAgent，实际: %v", err)
	}
}

func TestAgentCreateOrUpdateConcurrent(t *testing.T) {
	db := storetest.Open(t)
	// 两个仓库实例模拟两个进程共享同一数据库
	repos := []*AgentRepo{NewAgentRepo(db), NewAgentRepo(db)}

	var wg conc.WaitGroup
	errCh := make(chan error, 40)
	for i := 0; i < 40; i++ {
		r := repos[i%len(repos)]
		pid := i
		wg.Go(func() {
			_, err := r.CreateOrUpdate(context.Background(), &models.Agent{
				UUID:      "yyy-yyy-yyy",
				Name:      fmt.Sprintf("agent-%d", pid),
				Username:  "platzi",
				Pid:       pid,
				Connected: pid%2 == 0,
			})
			errCh <- err
		})
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Errorf("并发 CreateOrUpdate() 失败: %v", err)
		}
	}
	if count := countByUuid(t, db, "yyy-yyy-yyy"); count != 1 {
		t.Fatalf("并发写入同一 uuid 后应只有 1 行，实际 %d", count)
	}
	for _, r := range repos {
		if size := r.locks.size(); size != 0 {
			t.Errorf("所有调用结束后锁应被回收，剩余 %d", size)
		}
	}
}

func TestAgentCreateOrUpdateTimeout(t *testing.T) {
	db := storetest.Open(t)
	r := NewAgentRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := r.CreateOrUpdate(ctx, &models.Agent{UUID: "late", Connected: true})
	if !errors.Is(err, errs.ErrStoreTimeout) {
		t.Fatalf("超时应返回 ErrStoreTimeout，实际: %v", err)
	}
	if count := countByUuid(t, db, "late"); count != 0 {
		t.Errorf("超时后不应写入任何数据，实际 %d 行", count)
	}
}

func TestAgentCreateOrUpdateDuplicateRetry(t *testing.T) {
	db := storetest.Open(t)
	r := NewAgentRepo(db)

	var creates, rivals int
	insertRival := func(tx *gorm.DB) {
		rivals++
		err := tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO agents (uuid, name, username, hostname, pid, connected, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			"yyy-yyy-yyy", "rival", "rival", "rival-host", 1, false, 1, 1,
		).Error
		if err != nil {
			t.Errorf("写入竞争记录失败: %v", err)
		}
	}

	// 第一次插入前另一个写入者抢先写入同一 uuid，插入触发唯一索引冲突
	err := db.Callback().Create().Before("gorm:create").Register("test:rival_create", func(tx *gorm.DB) {
		if tx.Statement.Table != "agents" {
			return
		}
		creates++
		if creates == 1 {
			insertRival(tx)
		}
	})
	if err != nil {
		t.Fatalf("注册回调失败: %v", err)
	}
	// 冲突回滚后，重试时对方的记录已经提交可见
	err = db.Callback().Query().Before("gorm:query").Register("test:rival_commit", func(tx *gorm.DB) {
		if tx.Statement.Table != "agents" || creates != 1 || rivals != 1 {
			return
		}
		insertRival(tx)
	})
	if err != nil {
		t.Fatalf("注册回调失败: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Callback().Create().Remove("test:rival_create")
		_ = db.Callback().Query().Remove("test:rival_commit")
	})

	agent, err := r.CreateOrUpdate(context.Background(), &models.Agent{
		UUID:      "yyy-yyy-yyy",
		Name:      "incoming",
		Username:  "platzi",
		Hostname:  "platzi-host",
		Pid:       42,
		Connected: true,
	})
	if err != nil {
		t.Fatalf("唯一索引冲突后应重试成功，实际: %v", err)
	}
	if creates != 1 || rivals != 2 {
		t.Errorf("重试应走更新分支，实际 creates=%d rivals=%d", creates, rivals)
	}
	if agent.CreatedAt != 1 {
		t.Errorf("更新分支应保留已有记录的创建时间，实际 %d", agent.CreatedAt)
	}
	if agent.Name != "incoming" || agent.Username != "platzi" || agent.Hostname != "platzi-host" || agent.Pid != 42 || !agent.Connected {
		t.Errorf("应写入本次的字段，实际 %+v", agent)
	}
	if count := countByUuid(t, db, "yyy-yyy-yyy"); count != 1 {
		t.Errorf("同一 uuid 只应有一条记录，实际 %d 行", count)
	}
}

func TestAgentUpsertPrevious(t *testing.T) {
	db := storetest.Open(t)
	r := NewAgentRepo(db)
	ctx := context.Background()

	_, previous, err := r.Upsert(ctx, &models.Agent{UUID: "yyy-yyy-yyy", Connected: false})
	if err != nil {
		t.Fatalf("Upsert() 失败: %v", err)
	}
	if previous != nil {
		t.Errorf("新建探针时 previous 应为 nil，实际 %+v", previous)
	}

	agent, previous, err := r.Upsert(ctx, &models.Agent{UUID: "yyy-yyy-yyy", Name: "fixture", Connected: true})
	if err != nil {
		t.Fatalf("Upsert() 失败: %v", err)
	}
	if previous == nil || previous.Connected || previous.Name != "" {
		t.Errorf("previous 应为写入前的记录，实际 %+v", previous)
	}
	if !agent.Connected || agent.Name != "fixture" {
		t.Errorf("应返回写入后的记录，实际 %+v", agent)
	}
	if agent.ID != previous.ID {
		t.Errorf("更新不应改变 id: %d != %d", agent.ID, previous.ID)
	}
}

func TestAgentCreateOrUpdateJoinsTransaction(t *testing.T) {
	db := storetest.Open(t)
	r := NewAgentRepo(db)

	errRollback := errors.New("rollback")
	err := r.Transaction(context.Background(), func(ctx context.Context) error {
		if _, err := r.CreateOrUpdate(ctx, &models.Agent{UUID: "yyy-yyy-yyy", Connected: true}); err != nil {
			return err
		}
		// 事务内可以读到未提交的写入
		if _, err := r.FindByUuid(ctx, "yyy-yyy-yyy"); err != nil {
			return err
		}
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("应返回回滚原因，实际: %v", err)
	}
	if count := countByUuid(t, db, "yyy-yyy-yyy"); count != 0 {
		t.Errorf("外层事务回滚后不应留下记录，实际 %d 行", count)
	}
}
