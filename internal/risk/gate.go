// Package risk 提供下单前的风控准入与成交后的风险核算。
//
// Gate 是唯一写 RiskState 的组件；每次状态变更后立即持久化，
// 进程重启后从持久化状态恢复（熔断不会因为重启而消失）。
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aakaka525-design/auto-trade/internal/domain"
	"github.com/aakaka525-design/auto-trade/internal/events"
	"github.com/aakaka525-design/auto-trade/pkg/persistence"
)

// Config 风控配置
type Config struct {
	// MaxPositionPerSymbol 单交易对净持仓绝对值上限；<= 0 表示不限制
	MaxPositionPerSymbol decimal.Decimal

	// MaxOrderNotional 单笔订单名义价值上限；<= 0 表示不限制
	MaxOrderNotional decimal.Decimal

	Breaker BreakerConfig
}

// Gate 风控准入闸门
type Gate struct {
	mu      sync.Mutex
	cfg     Config
	breaker *Breaker
	state   *domain.RiskState
	store   persistence.Store
	bus     *events.Bus
	log     *logrus.Entry

	now func() time.Time // 测试注入
}

// NewGate 创建风控闸门；store 中存在历史状态时从中恢复
func NewGate(cfg Config, store persistence.Store, bus *events.Bus) (*Gate, error) {
	g := &Gate{
		cfg:     cfg,
		breaker: NewBreaker(cfg.Breaker),
		state:   domain.NewRiskState(),
		store:   store,
		bus:     bus,
		log:     logrus.WithField("component", "risk"),
		now:     time.Now,
	}
	if store != nil {
		st := domain.NewRiskState()
		err := store.Load(st)
		switch err {
		case nil:
			if st.OpenPositionBySymbol == nil {
				st.OpenPositionBySymbol = make(map[string]domain.PositionLot)
			}
			g.state = st
			g.log.Infof("恢复风控状态: 当日盈亏=%s 连亏=%d 熔断=%s",
				st.DailyRealizedPnl, st.ConsecutiveLossCount, st.BreakerState)
		case persistence.ErrNotExists:
		default:
			return nil, err
		}
	}
	return g, nil
}

// Admit 下单前准入检查。
// 检查顺序固定：熔断器 → 持仓限制 → 名义价值限制，返回第一个未通过的原因。
func (g *Gate) Admit(intent domain.Intent) domain.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollDayLocked(now)

	if err := g.breaker.Check(g.state, now); err != nil {
		return domain.Decision{Allow: false, Reason: "breaker_open"}
	}

	// 持仓限制：按本单全部成交后的净持仓预估
	if g.cfg.MaxPositionPerSymbol.IsPositive() {
		projected := g.state.Position(intent.Symbol).Quantity.Add(signedQty(intent.Side, intent.Quantity))
		if projected.Abs().GreaterThan(g.cfg.MaxPositionPerSymbol) {
			return domain.Decision{Allow: false, Reason: "position_limit"}
		}
	}

	// 名义价值限制（market 单无限价，跳过）
	if g.cfg.MaxOrderNotional.IsPositive() && intent.LimitPrice.IsPositive() {
		notional := intent.Quantity.Mul(intent.LimitPrice)
		if notional.GreaterThan(g.cfg.MaxOrderNotional) {
			return domain.Decision{Allow: false, Reason: "notional_limit"}
		}
	}

	// 冷却试探通过，关闭熔断器
	if g.breaker.CloseAfterProbe(g.state) {
		g.persistLocked()
		g.log.Info("熔断器冷却结束，已恢复交易")
		g.publish(events.TopicBreakerReset, events.BreakerEvent{Reason: "cooldown_elapsed"})
	}
	return domain.Decision{Allow: true}
}

// OnFill 成交后核算：更新持仓、计算已实现盈亏（平均成本法）、
// 维护连亏计数并判断是否触发熔断。
func (g *Gate) OnFill(report domain.ExecutionReport) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rollDayLocked(now)

	lot := g.state.Position(report.Symbol)
	fillQty := signedQty(report.Side, report.Quantity)
	realized := decimal.Zero

	switch {
	case lot.Quantity.IsZero() || lot.Quantity.Sign() == fillQty.Sign():
		// 开仓或加仓：更新加权平均开仓价
		total := lot.Quantity.Add(fillQty)
		if !total.IsZero() {
			cost := lot.Quantity.Abs().Mul(lot.AvgEntry).Add(fillQty.Abs().Mul(report.AvgPrice))
			lot.AvgEntry = cost.Div(total.Abs())
		}
		lot.Quantity = total

	default:
		// 减仓或反向：先按平均成本结算平掉的部分
		closed := decimal.Min(lot.Quantity.Abs(), fillQty.Abs())
		if lot.Quantity.Sign() > 0 {
			realized = report.AvgPrice.Sub(lot.AvgEntry).Mul(closed)
		} else {
			realized = lot.AvgEntry.Sub(report.AvgPrice).Mul(closed)
		}
		lot.Quantity = lot.Quantity.Add(fillQty)
		if lot.Quantity.IsZero() {
			lot.AvgEntry = decimal.Zero
		} else if lot.Quantity.Sign() == fillQty.Sign() {
			// 反手：剩余仓位以本次成交价为新的开仓价
			lot.AvgEntry = report.AvgPrice
		}
	}

	if lot.Quantity.IsZero() {
		delete(g.state.OpenPositionBySymbol, report.Symbol)
	} else {
		g.state.OpenPositionBySymbol[report.Symbol] = lot
	}

	// 手续费始终计入当日盈亏
	netRealized := realized.Sub(report.Fee)
	g.state.DailyRealizedPnl = g.state.DailyRealizedPnl.Add(netRealized)

	// 只有发生平仓的成交才计入连亏统计
	if !realized.IsZero() {
		if netRealized.IsNegative() {
			g.state.ConsecutiveLossCount++
		} else {
			g.state.ConsecutiveLossCount = 0
		}
	}

	if reason, trip := g.breaker.TripReason(g.state); trip && g.state.BreakerState != domain.BreakerOpen {
		g.breaker.Trip(g.state, now)
		g.log.Warnf("触发熔断: %s 当日盈亏=%s 连亏=%d 冷却至=%s",
			reason, g.state.DailyRealizedPnl, g.state.ConsecutiveLossCount,
			g.state.CooldownUntil.Format(time.RFC3339))
		g.publish(events.TopicBreakerTripped, events.BreakerEvent{
			Reason:        reason,
			DailyPnl:      g.state.DailyRealizedPnl,
			LossStreak:    g.state.ConsecutiveLossCount,
			CooldownUntil: g.state.CooldownUntil,
		})
	}

	g.persistLocked()
}

// OnUnmatchedFill 记录超时仍无法归属任务的成交，等待人工对账
func (g *Gate) OnUnmatchedFill(fill domain.FillEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state.UnreconciledFills++
	g.persistLocked()
	g.log.Errorf("成交无法对账: exchange_order_id=%s qty=%s（累计 %d 笔待人工处理）",
		fill.ExchangeOrderID, fill.FilledQty, g.state.UnreconciledFills)
	g.publish(events.TopicUnmatchedFill, events.FillMismatchEvent{
		ExchangeOrderID: fill.ExchangeOrderID,
		Fill:            fill,
	})
}

// Resume 人工恢复熔断器
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.breaker.Resume(g.state)
	g.persistLocked()
	g.log.Info("熔断器已人工恢复")
	g.publish(events.TopicBreakerReset, events.BreakerEvent{Reason: "manual_resume"})
}

// State 返回风控状态快照
func (g *Gate) State() domain.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := *g.state
	snap.OpenPositionBySymbol = make(map[string]domain.PositionLot, len(g.state.OpenPositionBySymbol))
	for k, v := range g.state.OpenPositionBySymbol {
		snap.OpenPositionBySymbol[k] = v
	}
	return snap
}

// rollDayLocked 跨日时重置当日统计（持仓与熔断状态保留）
func (g *Gate) rollDayLocked(now time.Time) {
	day := now.Format("2006-01-02")
	if g.state.Day == day {
		return
	}
	g.state.Day = day
	g.state.DailyRealizedPnl = decimal.Zero
	g.state.ConsecutiveLossCount = 0
	g.persistLocked()
}

func (g *Gate) persistLocked() {
	if g.store == nil {
		return
	}
	if err := g.store.Save(g.state); err != nil {
		// 持久化失败不阻塞交易路径，但必须可见
		g.log.Errorf("风控状态持久化失败: %v", err)
	}
}

func (g *Gate) publish(topic events.Topic, payload interface{}) {
	if g.bus != nil {
		g.bus.Publish(topic, payload)
	}
}

func signedQty(side domain.Side, qty decimal.Decimal) decimal.Decimal {
	if side == domain.SideSell {
		return qty.Neg()
	}
	return qty
}
