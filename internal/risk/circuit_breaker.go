package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aakaka525-design/auto-trade/internal/domain"
)

// ErrCircuitBreakerOpen 表示熔断器已打开，禁止继续交易。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// BreakerConfig 熔断器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type BreakerConfig struct {
	// MaxConsecutiveLosses 连续亏损笔数上限
	MaxConsecutiveLosses int

	// DailyLossLimit 当日最大亏损（正数）；当日已实现盈亏 <= -limit 时熔断
	DailyLossLimit decimal.Decimal

	// Cooldown 熔断后的冷却时长
	Cooldown time.Duration
}

// Breaker 熔断器状态机，作用于 domain.RiskState 上的
// BreakerState / CooldownUntil 字段。调用方负责加锁与持久化。
//
// 恢复路径：open → 冷却期过后进入 cooldown → 下一次全部风控检查
// 通过的准入将其关闭；Resume() 为人工直接恢复。
type Breaker struct {
	cfg BreakerConfig
}

// NewBreaker 创建熔断器
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Breaker{cfg: cfg}
}

// Check 快路径检查是否允许交易。
// open 且冷却期已过时迁移到 cooldown 并放行（试探性恢复）。
func (b *Breaker) Check(st *domain.RiskState, now time.Time) error {
	switch st.BreakerState {
	case domain.BreakerOpen:
		if !st.CooldownUntil.IsZero() && now.After(st.CooldownUntil) {
			st.BreakerState = domain.BreakerCooldown
			return nil
		}
		return ErrCircuitBreakerOpen
	default:
		return nil
	}
}

// TripReason 根据当前统计判断是否需要熔断；返回触发原因。
func (b *Breaker) TripReason(st *domain.RiskState) (string, bool) {
	if b.cfg.MaxConsecutiveLosses > 0 && st.ConsecutiveLossCount >= b.cfg.MaxConsecutiveLosses {
		return "consecutive_losses", true
	}
	if b.cfg.DailyLossLimit.IsPositive() && st.DailyRealizedPnl.LessThanOrEqual(b.cfg.DailyLossLimit.Neg()) {
		return "daily_loss_limit", true
	}
	return "", false
}

// Trip 打开熔断器并设置冷却截止时间
func (b *Breaker) Trip(st *domain.RiskState, now time.Time) {
	st.BreakerState = domain.BreakerOpen
	st.CooldownUntil = now.Add(b.cfg.Cooldown)
}

// Resume 手动恢复（同时清空连续亏损计数）
func (b *Breaker) Resume(st *domain.RiskState) {
	st.BreakerState = domain.BreakerClosed
	st.CooldownUntil = time.Time{}
	st.ConsecutiveLossCount = 0
}

// CloseAfterProbe cooldown 状态下准入检查全部通过后关闭熔断器
func (b *Breaker) CloseAfterProbe(st *domain.RiskState) bool {
	if st.BreakerState != domain.BreakerCooldown {
		return false
	}
	st.BreakerState = domain.BreakerClosed
	st.CooldownUntil = time.Time{}
	return true
}
