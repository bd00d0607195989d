package domain

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderState 订单任务状态机
//
// PENDING → SUBMITTING → SUBMITTED → {PARTIALLY_FILLED ⇄, FILLED, REJECTED,
// CANCELLED, EXPIRED, FAILED}；后五个为终态。
type OrderState string

const (
	OrderStatePending         OrderState = "pending"          // 等待调度
	OrderStateSubmitting      OrderState = "submitting"       // 提交中（占用并发槽）
	OrderStateSubmitted       OrderState = "submitted"        // 交易所已确认
	OrderStatePartiallyFilled OrderState = "partially_filled" // 部分成交
	OrderStateFilled          OrderState = "filled"           // 全部成交
	OrderStateRejected        OrderState = "rejected"         // 交易所拒绝
	OrderStateCancelled       OrderState = "cancelled"        // 已取消
	OrderStateExpired         OrderState = "expired"          // 已过期
	OrderStateFailed          OrderState = "failed"           // 本地失败（重试耗尽等）
)

// IsTerminal 终态不允许再被任何事件覆盖
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateRejected, OrderStateCancelled,
		OrderStateExpired, OrderStateFailed:
		return true
	default:
		return false
	}
}

// Intent 调用方的交易意图（准入之前的原始请求）
type Intent struct {
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	OrderType  OrderType
	LimitPrice decimal.Decimal // market 单为零值
}

// Decision 风控准入结果
type Decision struct {
	Allow  bool
	Reason string // 第一个未通过的检查
}

// Ack 交易所下单确认
type Ack struct {
	ExchangeOrderID string
}

// FillEvent 交易所成交通知（异步通道送达，FilledQty 为累计值）
type FillEvent struct {
	ExchangeOrderID string
	FilledQty       decimal.Decimal
	AvgPrice        decimal.Decimal
	Fee             decimal.Decimal
	Timestamp       time.Time
}

// OrderStatus 主动查询交易所得到的订单快照，
// 用于歧义失败（超时）后的状态探查。
type OrderStatus struct {
	ExchangeOrderID string
	State           OrderState
	FilledQty       decimal.Decimal
	AvgPrice        decimal.Decimal
}

// ExecutionReport 引擎向风控上报的成交摘要
type ExecutionReport struct {
	TaskID    string
	Symbol    string
	Side      Side
	Quantity  decimal.Decimal
	AvgPrice  decimal.Decimal
	Fee       decimal.Decimal
	Timestamp time.Time
}

// OrderTask 引擎端到端跟踪的工作单元。
//
// 不变量：ExchangeOrderID 一旦写入，任务在其整个存活期内可同时通过
// TaskID 与 ExchangeOrderID 检索；两份索引随任务一起原子删除。
// 字段只由 ExecutionEngine 在表锁内修改。
type OrderTask struct {
	TaskID          string
	ExchangeOrderID string // 提交确认后才有值

	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	OrderType  OrderType
	LimitPrice decimal.Decimal

	State OrderState

	CreatedAt     time.Time
	SubmittedAt   time.Time // 零值表示尚未提交
	LastUpdatedAt time.Time
	ExpiresAt     time.Time

	FilledQuantity decimal.Decimal // 单调不减
	AvgFillPrice   decimal.Decimal

	// 终态为非 FILLED 时的可读原因与错误分类
	Reason  string
	ErrKind ErrorKind
}

// Snapshot 返回任务的浅拷贝（给 WaitFor / 事件订阅方，避免并发读写）
func (t *OrderTask) Snapshot() OrderTask {
	return *t
}

// taskSeq 进程内单调递增序列，保证同一纳秒内创建的任务 ID 仍可按创建顺序排序
var taskSeq atomic.Uint64

// NewTaskID 生成全局任务 ID。
// 格式: ORD_<SIDE>_<unix-nanos>_<seq>，唯一且按创建顺序可排序。
func NewTaskID(side Side) string {
	s := "BUY"
	if side == SideSell {
		s = "SELL"
	}
	return fmt.Sprintf("ORD_%s_%d_%04d", s, time.Now().UnixNano(), taskSeq.Add(1)%10000)
}
