// Package ports 定义组件之间的窄接口，避免包级循环依赖。
package ports

import (
	"github.com/aakaka525-design/auto-trade/internal/domain"
)

// RiskGate 引擎依赖的风控能力
type RiskGate interface {
	// Admit 下单前准入检查
	Admit(intent domain.Intent) domain.Decision

	// OnFill 成交核算（每次增量成交调用一次）
	OnFill(report domain.ExecutionReport)

	// OnUnmatchedFill 超时仍无法归属任务的成交
	OnUnmatchedFill(fill domain.FillEvent)
}

// NonceSource 提交路径依赖的 nonce 能力
type NonceSource interface {
	Next() uint64
	Resync(observedFloor uint64)
}
