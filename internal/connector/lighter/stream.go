package lighter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aakaka525-design/auto-trade/internal/domain"
)

// fillStream 账户成交 WebSocket。
// 断线后指数退避重连；连续失败超过上限后放弃并关闭事件通道，
// 由上层决定是否降级（无成交流模式）或退出。
type fillStream struct {
	cfg Config

	mu      sync.Mutex
	started bool
	out     chan domain.FillEvent

	alive atomic.Bool
}

func newFillStream(cfg Config) *fillStream {
	return &fillStream{cfg: cfg}
}

func (s *fillStream) healthy() bool {
	return s.alive.Load()
}

func (s *fillStream) start(ctx context.Context) (<-chan domain.FillEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, fmt.Errorf("fill stream already started")
	}
	s.started = true
	s.out = make(chan domain.FillEvent, 256)

	go s.run(ctx)
	return s.out, nil
}

func (s *fillStream) run(ctx context.Context) {
	defer close(s.out)
	defer s.alive.Store(false)

	reconnects := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connectAndRead(ctx)
		s.alive.Store(false)
		if ctx.Err() != nil {
			return
		}

		reconnects++
		if reconnects > s.cfg.MaxReconnects {
			log.Errorf("成交流重连耗尽 (%d 次)，放弃", s.cfg.MaxReconnects)
			return
		}

		delay := time.Duration(1<<uint(reconnects-1)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		log.Warnf("成交流断开: %v - %s 后重连 (%d/%d)", err, delay, reconnects, s.cfg.MaxReconnects)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

type wsEnvelope struct {
	Type string `json:"type"`
	Fill struct {
		OrderHash  string `json:"order_hash"`
		MarketID   int    `json:"market_id"`
		FilledSize int64  `json:"filled_size"` // 累计成交量（缩放整数）
		AvgPrice   int64  `json:"avg_price"`
		Fee        int64  `json:"fee"`
		Timestamp  int64  `json:"timestamp"` // unix 毫秒
	} `json:"fill"`
}

// connectAndRead 建立一条连接并读取到断开为止；正常心跳期间标记健康
func (s *fillStream) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.WsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"type":       "subscribe",
		"channel":    "account_fills",
		"account_id": s.cfg.AccountID,
		"auth":       s.cfg.APIKey,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	s.alive.Store(true)
	log.Infof("成交流已连接: %s", s.cfg.WsURL)

	// ctx 取消时关闭连接，打断阻塞中的 ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// 心跳：定期 ping，长时间无 pong 视为死链
	lastPong := time.Now()
	var pongMu sync.Mutex
	conn.SetPongHandler(func(string) error {
		pongMu.Lock()
		lastPong = time.Now()
		pongMu.Unlock()
		return nil
	})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				pongMu.Lock()
				stale := time.Since(lastPong) > 60*time.Second
				pongMu.Unlock()
				if stale {
					conn.Close()
					return
				}
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Warnf("成交流消息解析失败: %v", err)
			continue
		}
		if env.Type != "fill" {
			continue
		}

		market, ok := marketByID(env.Fill.MarketID)
		if !ok {
			log.Warnf("成交消息携带未知 market_id: %d", env.Fill.MarketID)
			continue
		}
		fill := domain.FillEvent{
			ExchangeOrderID: env.Fill.OrderHash,
			FilledQty:       scaleFromInt(env.Fill.FilledSize, market.SizeDecimals),
			AvgPrice:        scaleFromInt(env.Fill.AvgPrice, market.PriceDecimals),
			Fee:             scaleFromInt(env.Fill.Fee, market.PriceDecimals),
			Timestamp:       time.UnixMilli(env.Fill.Timestamp),
		}

		select {
		case s.out <- fill:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
