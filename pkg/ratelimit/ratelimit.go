// Package ratelimit 按交易所维度限制出站请求权重（令牌桶，惰性补充）。
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ErrWeightTooLarge 请求权重超过桶容量，永远无法满足，直接失败而不是永久阻塞。
var ErrWeightTooLarge = fmt.Errorf("ratelimit: weight exceeds bucket capacity")

// TokenBucket 加权令牌桶。
// 容量 C、速率 r 令牌/秒；补充在每次 Acquire 时惰性计算：
// tokens = min(C, tokens + elapsed*r)。不变量：0 <= tokens <= C。
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // 每秒补充令牌数
	lastRefill time.Time
}

// NewTokenBucket 创建令牌桶，初始为满。
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = capacity
	}
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// refill 惰性补充，调用方必须已持锁
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}

// TryAcquire 非阻塞获取；令牌不足时返回 false，绝不让余额变负。
func (tb *TokenBucket) TryAcquire(weight float64) bool {
	if weight <= 0 {
		return true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(time.Now())
	if tb.tokens >= weight {
		tb.tokens -= weight
		return true
	}
	return false
}

// Acquire 阻塞直到拿到 weight 个令牌（或 ctx 取消）。
// weight > capacity 立即返回 ErrWeightTooLarge。
// 并发安全；不保证公平，但任何成功的获取都不会使余额为负。
func (tb *TokenBucket) Acquire(ctx context.Context, weight float64) error {
	if weight <= 0 {
		return nil
	}
	if weight > tb.capacity {
		return ErrWeightTooLarge
	}
	for {
		tb.mu.Lock()
		now := time.Now()
		tb.refill(now)
		if tb.tokens >= weight {
			tb.tokens -= weight
			tb.mu.Unlock()
			return nil
		}
		// 余额不足：计算缺口对应的等待时间后重查
		// （不提前清零令牌，等待期间其他调用仍可竞争）
		deficit := weight - tb.tokens
		wait := time.Duration(deficit / tb.refillRate * float64(time.Second))
		tb.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
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

// Remaining 当前可用令牌数（先惰性补充）
func (tb *TokenBucket) Remaining() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(time.Now())
	return tb.tokens
}

// Manager 按交易所名称管理多个令牌桶
type Manager struct {
	mu      sync.RWMutex
	buckets map[string]*TokenBucket

	defaultCapacity float64
	defaultRate     float64
}

// NewManager 创建管理器；未注册的交易所使用默认容量/速率。
func NewManager(defaultCapacity, defaultRate float64) *Manager {
	return &Manager{
		buckets:         make(map[string]*TokenBucket),
		defaultCapacity: defaultCapacity,
		defaultRate:     defaultRate,
	}
}

// Register 为指定交易所注册独立配额
func (m *Manager) Register(venue string, capacity, refillRate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[venue] = NewTokenBucket(capacity, refillRate)
}

// For 返回交易所对应的令牌桶，未注册则按默认参数创建。
func (m *Manager) For(venue string) *TokenBucket {
	m.mu.RLock()
	tb, ok := m.buckets[venue]
	m.mu.RUnlock()
	if ok {
		return tb
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if tb, ok = m.buckets[venue]; ok {
		return tb
	}
	tb = NewTokenBucket(m.defaultCapacity, m.defaultRate)
	m.buckets[venue] = tb
	return tb
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
