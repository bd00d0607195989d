package risk

import (
	"github.com/shopspring/decimal"
)

// SizerConfig 仓位计算配置
type SizerConfig struct {
	// RiskPercent 单笔投入占账户权益的比例（如 0.02 表示 2%）
	RiskPercent decimal.Decimal

	// MaxNotional 单笔名义价值硬上限；<= 0 表示不限制
	MaxNotional decimal.Decimal

	// MinQuantity 交易所最小下单量；算出的数量低于该值时返回零
	MinQuantity decimal.Decimal
}

// PositionSizer 按风险比例计算下单数量，信号置信度在 [0,1]
// 内线性缩放投入。与准入检查相互独立：算出的单子仍要过 Gate.Admit。
type PositionSizer struct {
	cfg SizerConfig
}

// NewPositionSizer 创建仓位计算器
func NewPositionSizer(cfg SizerConfig) *PositionSizer {
	return &PositionSizer{cfg: cfg}
}

// Size 根据账户权益、价格与置信度计算下单数量。
// 权益或价格非正、或结果低于最小下单量时返回零。
func (s *PositionSizer) Size(equity, price decimal.Decimal, confidence float64) decimal.Decimal {
	if !equity.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	notional := equity.Mul(s.cfg.RiskPercent).Mul(decimal.NewFromFloat(confidence))
	if s.cfg.MaxNotional.IsPositive() && notional.GreaterThan(s.cfg.MaxNotional) {
		notional = s.cfg.MaxNotional
	}
	if !notional.IsPositive() {
		return decimal.Zero
	}

	qty := notional.Div(price)
	if s.cfg.MinQuantity.IsPositive() && qty.LessThan(s.cfg.MinQuantity) {
		return decimal.Zero
	}
	return qty
}
