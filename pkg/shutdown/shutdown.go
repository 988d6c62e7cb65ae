package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/pairsbot/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type callback struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器。
// 回调按注册的逆序分批执行：同一 stage 内并发，stage 之间串行（先停输入，再关输出）。
type Manager struct {
	mu     sync.Mutex
	stages [][]callback
	done   bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册到新的 stage（比之前注册的回调先执行）
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, []callback{{name: name, handler: handler}})
}

// OnShutdownParallel 注册到最近一个 stage，与其并发执行
func (m *Manager) OnShutdownParallel(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stages) == 0 {
		m.stages = append(m.stages, nil)
	}
	last := len(m.stages) - 1
	m.stages[last] = append(m.stages[last], callback{name: name, handler: handler})
}

// Shutdown 执行所有关闭回调（阻塞调用，只执行一次）。
// ctx 应该是一个带超时的 context，避免无限等待。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	stages := m.stages
	m.mu.Unlock()

	if len(stages) == 0 {
		logger.Info("没有注册的关闭回调")
		return
	}

	logger.Infof("开始优雅关闭，共 %d 个阶段", len(stages))
	start := time.Now()

	for i := len(stages) - 1; i >= 0; i-- {
		if !runStage(ctx, stages[i]) {
			logger.Warnf("关闭超时: %v", ctx.Err())
			return
		}
	}
	logger.Infof("所有关闭回调已完成 (%s)", time.Since(start).Round(time.Millisecond))
}

// ShutdownWithTimeout 带超时的 Shutdown
func (m *Manager) ShutdownWithTimeout(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	m.Shutdown(ctx)
}

func runStage(ctx context.Context, cbs []callback) bool {
	var wg sync.WaitGroup
	wg.Add(len(cbs))

	// 并发执行同一阶段的回调
	for _, cb := range cbs {
		go func(cb callback) {
			defer wg.Done()
			if err := cb.handler(ctx); err != nil {
				logger.Errorf("关闭 %s 失败: %v", cb.name, err)
				return
			}
			logger.Debugf("已关闭 %s", cb.name)
		}(cb)
	}

	// 等待所有回调完成或超时
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
