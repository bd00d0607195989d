// Package paper 提供内存模拟连接器，用于测试与 dry-run。
//
// 行为完全可编程：可以注入下一次下单的错误、手动推送成交，
// 也可以开启自动成交模式模拟理想交易所。
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aakaka525-design/auto-trade/internal/connector"
	"github.com/aakaka525-design/auto-trade/internal/domain"
)

type paperOrder struct {
	req    connector.PlaceOrderRequest
	status domain.OrderStatus
}

// Connector 模拟交易所
type Connector struct {
	mu     sync.Mutex
	seq    int
	orders map[string]*paperOrder

	// 下一次 PlaceOrder 返回的脚本化错误（消费后清空）。
	// ackAnyway 为 true 时订单仍然落账（模拟“超时但实际已接受”）。
	nextErr   error
	ackAnyway bool

	fills   chan domain.FillEvent
	started bool

	// AutoFill 开启后每笔订单在 AutoFillDelay 后全量成交
	AutoFill      bool
	AutoFillDelay time.Duration

	healthy bool
}

var _ connector.Connector = (*Connector)(nil)

// New 创建模拟连接器
func New() *Connector {
	return &Connector{
		orders:  make(map[string]*paperOrder),
		fills:   make(chan domain.FillEvent, 256),
		healthy: true,
	}
}

// Name 实现 connector.Connector
func (c *Connector) Name() string { return "paper" }

// Healthy 实现 connector.Connector
func (c *Connector) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

// SetHealthy 测试辅助：切换健康状态
func (c *Connector) SetHealthy(v bool) {
	c.mu.Lock()
	c.healthy = v
	c.mu.Unlock()
}

// FailNext 注入下一次 PlaceOrder 的错误。
// ackAnyway 模拟歧义失败：调用方收到错误，但订单实际已被接受。
func (c *Connector) FailNext(err error, ackAnyway bool) {
	c.mu.Lock()
	c.nextErr = err
	c.ackAnyway = ackAnyway
	c.mu.Unlock()
}

// PlaceOrder 实现 connector.Connector
func (c *Connector) PlaceOrder(ctx context.Context, req connector.PlaceOrderRequest) (domain.Ack, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ack{}, err
	}

	c.mu.Lock()
	if err := c.nextErr; err != nil {
		c.nextErr = nil
		ack := c.ackAnyway
		c.ackAnyway = false
		if ack {
			id := c.acceptLocked(req)
			c.mu.Unlock()
			c.maybeAutoFill(id, req)
			return domain.Ack{}, err
		}
		c.mu.Unlock()
		return domain.Ack{}, err
	}
	id := c.acceptLocked(req)
	c.mu.Unlock()

	c.maybeAutoFill(id, req)
	return domain.Ack{ExchangeOrderID: id}, nil
}

func (c *Connector) acceptLocked(req connector.PlaceOrderRequest) string {
	c.seq++
	id := fmt.Sprintf("PAPER-%06d", c.seq)
	c.orders[id] = &paperOrder{
		req: req,
		status: domain.OrderStatus{
			ExchangeOrderID: id,
			State:           domain.OrderStateSubmitted,
		},
	}
	return id
}

func (c *Connector) maybeAutoFill(id string, req connector.PlaceOrderRequest) {
	if !c.AutoFill {
		return
	}
	delay := c.AutoFillDelay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		price := req.LimitPrice
		if price.IsZero() {
			price = decimal.NewFromInt(100)
		}
		c.Fill(id, req.Quantity, price, decimal.Zero)
	}()
}

// Fill 测试辅助：推送一笔累计成交并更新订单快照
func (c *Connector) Fill(exchangeOrderID string, cumQty, price, fee decimal.Decimal) {
	c.mu.Lock()
	if o, ok := c.orders[exchangeOrderID]; ok {
		o.status.FilledQty = cumQty
		o.status.AvgPrice = price
		if cumQty.GreaterThanOrEqual(o.req.Quantity) {
			o.status.State = domain.OrderStateFilled
		} else if cumQty.IsPositive() {
			o.status.State = domain.OrderStatePartiallyFilled
		}
	}
	c.mu.Unlock()

	c.fills <- domain.FillEvent{
		ExchangeOrderID: exchangeOrderID,
		FilledQty:       cumQty,
		AvgPrice:        price,
		Fee:             fee,
		Timestamp:       time.Now(),
	}
}

// PushRawFill 测试辅助：推送任意成交事件（可指向不存在的订单）
func (c *Connector) PushRawFill(fill domain.FillEvent) {
	c.fills <- fill
}

// OrderCount 测试辅助：已落账的订单总数
func (c *Connector) OrderCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.orders)
}

// CancelOrder 实现 connector.Connector
func (c *Connector) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders[exchangeOrderID]
	if !ok {
		return domain.NewVenueError(domain.ErrKindUnknownOrder, "order not found: "+exchangeOrderID)
	}
	if !o.status.State.IsTerminal() {
		o.status.State = domain.OrderStateCancelled
	}
	return nil
}

// QueryOrder 实现 connector.Connector
func (c *Connector) QueryOrder(ctx context.Context, exchangeOrderID string) (*domain.OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders[exchangeOrderID]
	if !ok {
		return nil, domain.NewVenueError(domain.ErrKindUnknownOrder, "order not found: "+exchangeOrderID)
	}
	st := o.status
	return &st, nil
}

// QueryByClientID 按客户端订单 ID 查找（歧义失败后的探查路径）
func (c *Connector) QueryByClientID(ctx context.Context, clientOrderID string) (*domain.OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, o := range c.orders {
		if o.req.ClientOrderID == clientOrderID {
			st := o.status
			return &st, nil
		}
	}
	return nil, domain.NewVenueError(domain.ErrKindUnknownOrder, "order not found: "+clientOrderID)
}

// StreamFills 实现 connector.Connector
func (c *Connector) StreamFills(ctx context.Context) (<-chan domain.FillEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, fmt.Errorf("fill stream already started")
	}
	c.started = true

	out := make(chan domain.FillEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case fill := <-c.fills:
				select {
				case out <- fill:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
