package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
}

// 常用端点的限制（多个配对共享同一个价格源与下单网关）
const (
	JupiterPrice = "jupiter:price:get"
	VenueOrder   = "venue:order:post"
)

// SlidingWindow 滑动窗口速率限制器
type SlidingWindow struct {
	limit      int           // 限制数量
	windowSize time.Duration // 窗口大小
	requests   []time.Time   // 请求时间戳（升序）
	now        func() time.Time
	mu         sync.Mutex
}

// NewSlidingWindow 创建新的滑动窗口速率限制器
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
	}
}

// prune 移除窗口外的请求（调用方持锁）
func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	sw.requests = sw.requests[i:]
}

// Allow 检查是否允许请求（允许时计入窗口）
func (sw *SlidingWindow) Allow() bool {
	_, ok := sw.reserve()
	return ok
}

// reserve 允许时计入并返回 0；否则返回需要等待的时间
func (sw *SlidingWindow) reserve() (time.Duration, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.prune(now)
	if sw.limit <= 0 || len(sw.requests) < sw.limit {
		sw.requests = append(sw.requests, now)
		return 0, true
	}
	return sw.requests[0].Add(sw.windowSize).Sub(now), false
}

// Wait 等待直到允许请求
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait, ok := sw.reserve()
		if ok {
			return nil
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// GetRemaining 获取剩余请求数
func (sw *SlidingWindow) GetRemaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(sw.now())
	return max(0, sw.limit-len(sw.requests))
}

// Manager 按端点管理限制器
type Manager struct {
	limiters map[string]RateLimiter
	mu       sync.RWMutex
}

// NewManager 创建带默认限制的管理器
func NewManager() *Manager {
	m := &Manager{limiters: make(map[string]RateLimiter)}
	// Jupiter 免费档 60 次/分钟
	m.Set(JupiterPrice, NewSlidingWindow(60, time.Minute))
	m.Set(VenueOrder, NewSlidingWindow(10, time.Second))
	return m
}

// Set 设置（或替换）端点的限制器
func (m *Manager) Set(endpoint string, l RateLimiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[endpoint] = l
}

// GetLimiter 获取指定端点的速率限制器；未配置的端点不限流
func (m *Manager) GetLimiter(endpoint string) RateLimiter {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limiters[endpoint]
}

// Wait 等待直到允许请求
func (m *Manager) Wait(ctx context.Context, endpoint string) error {
	if l := m.GetLimiter(endpoint); l != nil {
		return l.Wait(ctx)
	}
	return nil
}
