package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aakaka525-design/auto-trade/internal/domain"
	"github.com/aakaka525-design/auto-trade/pkg/persistence"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testConfig() Config {
	return Config{
		MaxPositionPerSymbol: d("10"),
		MaxOrderNotional:     d("1000"),
		Breaker: BreakerConfig{
			MaxConsecutiveLosses: 3,
			DailyLossLimit:       d("100"),
			Cooldown:             5 * time.Minute,
		},
	}
}

func newTestGate(t *testing.T, store persistence.Store) *Gate {
	t.Helper()
	g, err := NewGate(testConfig(), store, nil)
	require.NoError(t, err)
	return g
}

func buyIntent(qty, price string) domain.Intent {
	return domain.Intent{
		Symbol:     "BTC-USDT",
		Side:       domain.SideBuy,
		Quantity:   d(qty),
		OrderType:  domain.OrderTypeLimit,
		LimitPrice: d(price),
	}
}

func fillReport(side domain.Side, qty, price, fee string) domain.ExecutionReport {
	return domain.ExecutionReport{
		TaskID:    domain.NewTaskID(side),
		Symbol:    "BTC-USDT",
		Side:      side,
		Quantity:  d(qty),
		AvgPrice:  d(price),
		Fee:       d(fee),
		Timestamp: time.Now(),
	}
}

func TestAdmitAllows(t *testing.T) {
	g := newTestGate(t, nil)
	dec := g.Admit(buyIntent("1", "100"))
	assert.True(t, dec.Allow)
	assert.Empty(t, dec.Reason)
}

func TestAdmitPositionLimit(t *testing.T) {
	g := newTestGate(t, nil)

	// 已持仓 9，再买 2 会超过上限 10
	g.OnFill(fillReport(domain.SideBuy, "9", "100", "0"))
	dec := g.Admit(buyIntent("2", "100"))
	assert.False(t, dec.Allow)
	assert.Equal(t, "position_limit", dec.Reason)

	// 卖单减少净持仓，放行
	sell := buyIntent("2", "100")
	sell.Side = domain.SideSell
	assert.True(t, g.Admit(sell).Allow)
}

func TestAdmitNotionalLimit(t *testing.T) {
	g := newTestGate(t, nil)
	dec := g.Admit(buyIntent("5", "300")) // 1500 > 1000
	assert.False(t, dec.Allow)
	assert.Equal(t, "notional_limit", dec.Reason)
}

func TestAdmitMarketOrderSkipsNotional(t *testing.T) {
	g := newTestGate(t, nil)
	intent := domain.Intent{
		Symbol:    "BTC-USDT",
		Side:      domain.SideBuy,
		Quantity:  d("5"),
		OrderType: domain.OrderTypeMarket,
	}
	assert.True(t, g.Admit(intent).Allow)
}

func TestAdmitBreakerFirst(t *testing.T) {
	g := newTestGate(t, nil)

	// 连亏 3 笔触发熔断
	for i := 0; i < 3; i++ {
		g.OnFill(fillReport(domain.SideBuy, "1", "100", "0"))
		g.OnFill(fillReport(domain.SideSell, "1", "99", "0"))
	}
	require.Equal(t, domain.BreakerOpen, g.State().BreakerState)

	// 即使同时超出名义价值限制，原因也必须是熔断
	dec := g.Admit(buyIntent("5", "300"))
	assert.False(t, dec.Allow)
	assert.Equal(t, "breaker_open", dec.Reason)
}

func TestAvgCostRealizedPnl(t *testing.T) {
	g := newTestGate(t, nil)

	// 100 价买 2，110 价买 2 → 均价 105
	g.OnFill(fillReport(domain.SideBuy, "2", "100", "0"))
	g.OnFill(fillReport(domain.SideBuy, "2", "110", "0"))
	st := g.State()
	require.True(t, st.Position("BTC-USDT").AvgEntry.Equal(d("105")),
		"avg entry = %s", st.Position("BTC-USDT").AvgEntry)

	// 120 价卖 3：已实现 = (120-105)*3 = 45
	g.OnFill(fillReport(domain.SideSell, "3", "120", "1"))
	st = g.State()
	assert.True(t, st.DailyRealizedPnl.Equal(d("44")), "pnl = %s", st.DailyRealizedPnl)
	assert.True(t, st.Position("BTC-USDT").Quantity.Equal(d("1")))
	assert.True(t, st.Position("BTC-USDT").AvgEntry.Equal(d("105")))
}

func TestFlipPositionResetsEntry(t *testing.T) {
	g := newTestGate(t, nil)

	g.OnFill(fillReport(domain.SideBuy, "2", "100", "0"))
	// 卖 5 → 平 2 反手空 3，新开仓价 = 本次成交价
	g.OnFill(fillReport(domain.SideSell, "5", "110", "0"))

	st := g.State()
	lot := st.Position("BTC-USDT")
	assert.True(t, lot.Quantity.Equal(d("-3")))
	assert.True(t, lot.AvgEntry.Equal(d("110")))
	assert.True(t, st.DailyRealizedPnl.Equal(d("20")))
}

func TestClosedPositionRemoved(t *testing.T) {
	g := newTestGate(t, nil)
	g.OnFill(fillReport(domain.SideBuy, "2", "100", "0"))
	g.OnFill(fillReport(domain.SideSell, "2", "105", "0"))

	st := g.State()
	_, exists := st.OpenPositionBySymbol["BTC-USDT"]
	assert.False(t, exists)
	assert.True(t, st.DailyRealizedPnl.Equal(d("10")))
}

func TestConsecutiveLossBreaker(t *testing.T) {
	g := newTestGate(t, nil)

	loseOnce := func() {
		g.OnFill(fillReport(domain.SideBuy, "1", "100", "0"))
		g.OnFill(fillReport(domain.SideSell, "1", "99", "0"))
	}

	loseOnce()
	loseOnce()
	assert.Equal(t, domain.BreakerClosed, g.State().BreakerState)

	// 盈利一笔清零计数
	g.OnFill(fillReport(domain.SideBuy, "1", "100", "0"))
	g.OnFill(fillReport(domain.SideSell, "1", "105", "0"))
	assert.Equal(t, 0, g.State().ConsecutiveLossCount)

	loseOnce()
	loseOnce()
	loseOnce()
	st := g.State()
	assert.Equal(t, domain.BreakerOpen, st.BreakerState)
	assert.False(t, st.CooldownUntil.IsZero())
}

func TestDailyLossBreaker(t *testing.T) {
	g := newTestGate(t, nil)

	// 单笔亏 101 直接越过当日亏损线
	g.OnFill(fillReport(domain.SideBuy, "1", "200", "0"))
	g.OnFill(fillReport(domain.SideSell, "1", "99", "0"))

	assert.Equal(t, domain.BreakerOpen, g.State().BreakerState)
}

func TestBreakerCooldownRecovery(t *testing.T) {
	g := newTestGate(t, nil)

	g.OnFill(fillReport(domain.SideBuy, "1", "200", "0"))
	g.OnFill(fillReport(domain.SideSell, "1", "99", "0"))
	require.Equal(t, domain.BreakerOpen, g.State().BreakerState)

	// 冷却期内仍拒绝
	assert.Equal(t, "breaker_open", g.Admit(buyIntent("1", "100")).Reason)

	// 时间推进过冷却期：下一次通过的准入关闭熔断器
	g.now = func() time.Time { return time.Now().Add(6 * time.Minute) }
	dec := g.Admit(buyIntent("1", "100"))
	assert.True(t, dec.Allow)
	assert.Equal(t, domain.BreakerClosed, g.State().BreakerState)
}

func TestManualResume(t *testing.T) {
	g := newTestGate(t, nil)
	g.OnFill(fillReport(domain.SideBuy, "1", "200", "0"))
	g.OnFill(fillReport(domain.SideSell, "1", "99", "0"))
	require.Equal(t, domain.BreakerOpen, g.State().BreakerState)

	g.Resume()
	st := g.State()
	assert.Equal(t, domain.BreakerClosed, st.BreakerState)
	assert.Equal(t, 0, st.ConsecutiveLossCount)
	assert.True(t, g.Admit(buyIntent("1", "100")).Allow)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	svc := persistence.NewJSONFileService(t.TempDir())
	store := svc.NewStore("state", "test", "risk")

	g1 := newTestGate(t, store)
	g1.OnFill(fillReport(domain.SideBuy, "1", "200", "0"))
	g1.OnFill(fillReport(domain.SideSell, "1", "99", "0"))
	require.Equal(t, domain.BreakerOpen, g1.State().BreakerState)

	// 重启后熔断状态不丢失
	g2 := newTestGate(t, store)
	assert.Equal(t, domain.BreakerOpen, g2.State().BreakerState)
	assert.Equal(t, "breaker_open", g2.Admit(buyIntent("1", "100")).Reason)
}

func TestOnUnmatchedFill(t *testing.T) {
	g := newTestGate(t, nil)
	g.OnUnmatchedFill(domain.FillEvent{ExchangeOrderID: "X1", FilledQty: d("1")})
	g.OnUnmatchedFill(domain.FillEvent{ExchangeOrderID: "X2", FilledQty: d("2")})
	assert.Equal(t, 2, g.State().UnreconciledFills)
}

func TestDayRollover(t *testing.T) {
	g := newTestGate(t, nil)
	g.OnFill(fillReport(domain.SideBuy, "1", "100", "0"))
	g.OnFill(fillReport(domain.SideSell, "1", "99", "0"))
	require.True(t, g.State().DailyRealizedPnl.IsNegative())

	g.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	require.True(t, g.Admit(buyIntent("1", "100")).Allow)

	st := g.State()
	assert.True(t, st.DailyRealizedPnl.IsZero())
	assert.Equal(t, 0, st.ConsecutiveLossCount)
}
