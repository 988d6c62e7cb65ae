package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestShutdownRunsStagesInReverseOrder(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	var order []string
	record := func(name string) Handler {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	m.OnShutdown("store", record("store"))
	m.OnShutdown("sink", record("sink"))
	m.OnShutdownParallel("csv", record("csv"))
	m.OnShutdown("runner", record("runner"))

	m.ShutdownWithTimeout(time.Second)

	if len(order) != 4 {
		t.Fatalf("expected 4 callbacks, got %v", order)
	}
	if order[0] != "runner" || order[3] != "store" {
		t.Fatalf("unexpected order %v", order)
	}

	// 只执行一次
	m.ShutdownWithTimeout(time.Second)
	if len(order) != 4 {
		t.Fatalf("callbacks ran twice: %v", order)
	}
}

func TestShutdownStopsOnTimeout(t *testing.T) {
	m := NewManager()
	ran := false
	m.OnShutdown("last", func(ctx context.Context) error {
		ran = true
		return nil
	})
	m.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return errors.New("cancelled")
	})

	m.ShutdownWithTimeout(10 * time.Millisecond)
	if ran {
		t.Fatalf("later stage should not run after timeout")
	}
}
