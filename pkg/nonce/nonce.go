// Package nonce 维护每个 API 凭证独立的请求序列号。
//
// 交易所要求同一凭证的 nonce 严格递增以防止重放；并发下单时
// 任何两个调用都不能拿到相同的值，冲突后也绝不能复用被拒绝的值。
package nonce

import (
	"sync"
)

// Sequencer 单个凭证的 nonce 游标
type Sequencer struct {
	mu   sync.Mutex
	last uint64
}

// NewSequencer 创建游标。initial 为已知的最后使用值（首次使用传 0，
// 或从交易所查询到的当前水位）。
func NewSequencer(initial uint64) *Sequencer {
	return &Sequencer{last: initial}
}

// Next 返回下一个 nonce，跨并发调用严格递增、永不重复。
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}

// Resync 在交易所报告 nonce 冲突后，将游标推进到观测水位之上。
// 游标只前进不后退；被拒绝的值不会再次发出。
func (s *Sequencer) Resync(observedFloor uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if observedFloor > s.last {
		s.last = observedFloor
	}
}

// Current 返回最后发出的值（只读，用于日志/监控）
func (s *Sequencer) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Book 按凭证管理多个游标（每个 API key index 一条独立序列）
type Book struct {
	mu      sync.Mutex
	cursors map[string]*Sequencer
}

// NewBook 创建空游标簿
func NewBook() *Book {
	return &Book{cursors: make(map[string]*Sequencer)}
}

// For 返回指定凭证的游标，不存在则以 0 初始化。
func (b *Book) For(credential string) *Sequencer {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.cursors[credential]
	if !ok {
		s = NewSequencer(0)
		b.cursors[credential] = s
	}
	return s
}

// Seed 以已知水位初始化（或覆盖推进）某凭证的游标。
func (b *Book) Seed(credential string, floor uint64) *Sequencer {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.cursors[credential]
	if !ok {
		s = NewSequencer(floor)
		b.cursors[credential] = s
		return s
	}
	s.Resync(floor)
	return s
}
