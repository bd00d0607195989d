// Package connector 定义交易所连接器边界。
//
// 引擎只依赖本接口，不感知具体交易所；实现方负责把交易所私有的
// 错误码、精度与报文格式翻译成 domain 层的统一类型。
package connector

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/aakaka525-design/auto-trade/internal/domain"
)

// PlaceOrderRequest 下单请求
type PlaceOrderRequest struct {
	ClientOrderID string // 引擎侧任务 ID，用于幂等关联
	Symbol        string
	Side          domain.Side
	OrderType     domain.OrderType
	Quantity      decimal.Decimal
	LimitPrice    decimal.Decimal // market 单为零值
	Nonce         uint64
}

// Connector 交易所连接器。
// 所有方法必须并发安全；阻塞调用都接受 context 取消。
type Connector interface {
	// Name 交易所标识（日志与限流桶的 key）
	Name() string

	// PlaceOrder 提交订单；成功返回交易所订单 ID。
	// 失败时错误应可被 domain.KindOf 分类。
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Ack, error)

	// CancelOrder 取消订单；订单已不存在时返回 UnknownOrder 类错误
	CancelOrder(ctx context.Context, exchangeOrderID string) error

	// QueryOrder 查询订单状态；交易所没有该订单时返回 (nil, UnknownOrder 类错误)
	QueryOrder(ctx context.Context, exchangeOrderID string) (*domain.OrderStatus, error)

	// QueryByClientID 按客户端订单 ID 查询。
	// 用于歧义失败（下单超时）后的探查：此时本地还没有交易所订单 ID。
	QueryByClientID(ctx context.Context, clientOrderID string) (*domain.OrderStatus, error)

	// StreamFills 返回成交事件通道；连接断开时实现方自行重连，
	// 重连耗尽后关闭通道。
	StreamFills(ctx context.Context) (<-chan domain.FillEvent, error)

	// Healthy 连接健康状况（成交流在线且心跳正常）
	Healthy() bool
}
