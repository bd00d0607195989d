package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BreakerState 熔断器状态
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerCooldown BreakerState = "cooldown" // 冷却已过、等待下一次准入检查确认恢复
)

// PositionLot 某交易对的净持仓（带平均成本，用于平仓时计算已实现盈亏）
type PositionLot struct {
	Quantity decimal.Decimal `json:"quantity"`  // 有符号净持仓（买正卖负）
	AvgEntry decimal.Decimal `json:"avg_entry"` // 平均开仓价
}

// RiskState 进程级风控状态。
// 由 RiskGate 独占写入，每次变更后立即持久化（不是只在退出时）。
type RiskState struct {
	DailyRealizedPnl     decimal.Decimal        `json:"daily_realized_pnl"`
	ConsecutiveLossCount int                    `json:"consecutive_loss_count"`
	OpenPositionBySymbol map[string]PositionLot `json:"open_position_by_symbol"`

	BreakerState  BreakerState `json:"breaker_state"`
	CooldownUntil time.Time    `json:"cooldown_until,omitempty"`

	// UnreconciledFills 留在 holding 区超时仍无法匹配任务的成交数。
	// 非零值需要人工对账。
	UnreconciledFills int `json:"unreconciled_fills"`

	Day string `json:"day"` // YYYY-MM-DD，跨日时重置当日统计
}

// NewRiskState 返回默认风控状态
func NewRiskState() *RiskState {
	return &RiskState{
		OpenPositionBySymbol: make(map[string]PositionLot),
		BreakerState:         BreakerClosed,
		Day:                  time.Now().Format("2006-01-02"),
	}
}

// Position 返回某交易对的净持仓（不存在则为零值）
func (s *RiskState) Position(symbol string) PositionLot {
	if s.OpenPositionBySymbol == nil {
		return PositionLot{}
	}
	return s.OpenPositionBySymbol[symbol]
}
