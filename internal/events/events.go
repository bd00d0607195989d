package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aakaka525-design/auto-trade/internal/domain"
)

// Topic 事件主题
type Topic string

const (
	TopicOrderSubmitted       Topic = "order.submitted"
	TopicOrderFilled          Topic = "order.filled"
	TopicOrderPartiallyFilled Topic = "order.partially_filled"
	TopicOrderRejected        Topic = "order.rejected"
	TopicOrderCancelled       Topic = "order.cancelled"
	TopicOrderExpired         Topic = "order.expired"
	TopicOrderFailed          Topic = "order.failed"
	TopicRiskRejected         Topic = "risk.rejected"
	TopicBreakerTripped       Topic = "risk.breaker_tripped"
	TopicBreakerReset         Topic = "risk.breaker_reset"
	TopicUnmatchedFill        Topic = "fill.unmatched"
	TopicConnectorDown        Topic = "connector.disconnected"
	TopicConnectorUp          Topic = "connector.reconnected"
)

// Event 总线上流转的事件
type Event struct {
	Topic     Topic
	Payload   interface{}
	Timestamp time.Time
}

// OrderEvent 订单生命周期事件载荷
type OrderEvent struct {
	TaskID          string
	ExchangeOrderID string
	Symbol          string
	Side            domain.Side
	State           domain.OrderState
	FilledQty       decimal.Decimal
	AvgFillPrice    decimal.Decimal
	Reason          string
}

// FillMismatchEvent 找不到归属任务的成交
type FillMismatchEvent struct {
	ExchangeOrderID string
	Fill            domain.FillEvent
}

// BreakerEvent 熔断器状态变更事件载荷
type BreakerEvent struct {
	Reason        string
	DailyPnl      decimal.Decimal
	LossStreak    int
	CooldownUntil time.Time
}

// ConnectorEvent 连接器状态事件载荷
type ConnectorEvent struct {
	Venue  string
	Reason string
}
