package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyedMutex(t *testing.T) {
	m := newKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock(a) 失败: %v", err)
	}

	// 不同 key 不阻塞
	unlockB, err := m.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock(b) 失败: %v", err)
	}
	unlockB()

	// 同一 key 在超时前拿不到锁
	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(timeout, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("同一 key 应等待到超时，实际: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		unlock, err := m.Lock(ctx, "a")
		if err == nil {
			close(acquired)
			unlock()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("持有锁期间不应被获取")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("释放后应能获取锁")
	}

	// 等待 goroutine 释放
	deadline := time.Now().Add(time.Second)
	for m.size() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.size() != 0 {
		t.Errorf("锁应被回收，剩余 %d", m.size())
	}
}
