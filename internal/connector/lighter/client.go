// Package lighter 实现 Lighter 交易所连接器。
//
// REST 侧负责下单/撤单/查单，WebSocket 侧推送成交；两者共用一份
// 凭证与健康状态。交易所错误码在本包内翻译成 domain 层的统一分类。
package lighter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aakaka525-design/auto-trade/internal/connector"
	"github.com/aakaka525-design/auto-trade/internal/domain"
	"github.com/aakaka525-design/auto-trade/pkg/cache"
)

var log = logrus.WithField("component", "lighter")

// API 权重（与交易所限流窗口一致，引擎按此权重取令牌）
const (
	WeightSendTx    = 6
	WeightNextNonce = 6
	WeightQuery     = 300
)

// Config 连接器配置
type Config struct {
	BaseURL       string // REST 入口，如 https://mainnet.zklighter.elliot.ai
	WsURL         string // WebSocket 入口
	APIKey        string
	AccountID     int64
	Timeout       time.Duration
	MaxReconnects int // 成交流重连上限，0 取默认值
}

// Client Lighter 连接器
type Client struct {
	cfg    Config
	http   *resty.Client
	stream *fillStream

	// 查单接口权重高达 300，短 TTL 缓存挡住重试风暴里的重复查询
	statusCache *cache.TTLCache[string, domain.OrderStatus]
}

var _ connector.Connector = (*Client)(nil)

// New 创建 Lighter 连接器
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 10
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Bearer "+cfg.APIKey)

	c := &Client{
		cfg:         cfg,
		http:        httpClient,
		statusCache: cache.NewTTL[string, domain.OrderStatus](time.Second),
	}
	c.stream = newFillStream(cfg)
	return c
}

// Name 实现 connector.Connector
func (c *Client) Name() string { return "lighter" }

// Healthy 实现 connector.Connector
func (c *Client) Healthy() bool { return c.stream.healthy() }

type txResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	OrderHash string `json:"order_hash"`
}

type orderResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Order   struct {
		OrderHash  string `json:"order_hash"`
		Status     string `json:"status"`
		FilledSize int64  `json:"filled_size"`
		AvgPrice   int64  `json:"avg_price"`
		MarketID   int    `json:"market_id"`
	} `json:"order"`
}

type nonceResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Nonce   int64  `json:"nonce"`
}

// NextNonce 查询当前凭证在交易所侧的 nonce 水位。
// 启动时用它初始化本地游标；nonce 冲突后也用它重同步。
func (c *Client) NextNonce(ctx context.Context) (uint64, error) {
	var out nonceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("account_index", strconv.FormatInt(c.cfg.AccountID, 10)).
		SetResult(&out).
		SetError(&out).
		Get("/api/v1/nextNonce")
	if err != nil {
		return 0, c.transportError("nextNonce", err)
	}
	if venueErr := c.checkResponse(resp, out.Code, out.Message); venueErr != nil {
		return 0, venueErr
	}
	return uint64(out.Nonce), nil
}

// attachNonceFloor nonce 冲突时回查交易所水位，上层据此重同步游标
func (c *Client) attachNonceFloor(ctx context.Context, err error) {
	var ve *domain.VenueError
	if !errors.As(err, &ve) || ve.Kind != domain.ErrKindNonceConflict {
		return
	}
	floor, qerr := c.NextNonce(ctx)
	if qerr != nil {
		log.Warnf("nonce 冲突后查询水位失败: %v", qerr)
		return
	}
	ve.NonceFloor = floor
}

// PlaceOrder 提交订单
func (c *Client) PlaceOrder(ctx context.Context, req connector.PlaceOrderRequest) (domain.Ack, error) {
	market, err := lookupMarket(req.Symbol)
	if err != nil {
		return domain.Ack{}, domain.NewVenueError(domain.ErrKindOrderRejected, err.Error())
	}

	body := map[string]interface{}{
		"market_id":       market.ID,
		"client_order_id": req.ClientOrderID,
		"is_ask":          req.Side == domain.SideSell,
		"order_type":      string(req.OrderType),
		"base_amount":     scaleToInt(req.Quantity, market.SizeDecimals),
		"nonce":           req.Nonce,
	}
	if req.OrderType == domain.OrderTypeLimit {
		body["price"] = scaleToInt(req.LimitPrice, market.PriceDecimals)
	}

	var out txResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/api/v1/sendTx")
	if err != nil {
		return domain.Ack{}, c.transportError("sendTx", err)
	}
	if venueErr := c.checkResponse(resp, out.Code, out.Message); venueErr != nil {
		c.attachNonceFloor(ctx, venueErr)
		return domain.Ack{}, venueErr
	}
	if out.OrderHash == "" {
		return domain.Ack{}, domain.NewVenueError(domain.ErrKindUnclassified, "sendTx 响应缺少 order_hash")
	}

	log.Debugf("下单成功: client_order_id=%s order_hash=%s", req.ClientOrderID, out.OrderHash)
	return domain.Ack{ExchangeOrderID: out.OrderHash}, nil
}

// CancelOrder 取消订单
func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	var out txResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"order_hash": exchangeOrderID}).
		SetResult(&out).
		SetError(&out).
		Post("/api/v1/cancelTx")
	if err != nil {
		return c.transportError("cancelTx", err)
	}
	return c.checkResponse(resp, out.Code, out.Message)
}

// QueryOrder 查询订单状态
func (c *Client) QueryOrder(ctx context.Context, exchangeOrderID string) (*domain.OrderStatus, error) {
	if st, ok := c.statusCache.Get(exchangeOrderID); ok {
		cp := st
		return &cp, nil
	}

	var out orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("order_hash", exchangeOrderID).
		SetQueryParam("account_id", strconv.FormatInt(c.cfg.AccountID, 10)).
		SetResult(&out).
		SetError(&out).
		Get("/api/v1/order")
	if err != nil {
		return nil, c.transportError("order", err)
	}
	if venueErr := c.checkResponse(resp, out.Code, out.Message); venueErr != nil {
		return nil, venueErr
	}

	market, ok := marketByID(out.Order.MarketID)
	if !ok {
		return nil, domain.NewVenueError(domain.ErrKindUnclassified,
			fmt.Sprintf("未知 market_id: %d", out.Order.MarketID))
	}
	st := domain.OrderStatus{
		ExchangeOrderID: out.Order.OrderHash,
		State:           mapOrderStatus(out.Order.Status),
		FilledQty:       scaleFromInt(out.Order.FilledSize, market.SizeDecimals),
		AvgPrice:        scaleFromInt(out.Order.AvgPrice, market.PriceDecimals),
	}
	c.statusCache.Set(exchangeOrderID, st)
	return &st, nil
}

// QueryByClientID 按客户端订单 ID 查询（下单超时后的探查路径）。
// 探查要求看到交易所的实时视图，这条路径不走缓存。
func (c *Client) QueryByClientID(ctx context.Context, clientOrderID string) (*domain.OrderStatus, error) {
	var out orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("client_order_id", clientOrderID).
		SetQueryParam("account_id", strconv.FormatInt(c.cfg.AccountID, 10)).
		SetResult(&out).
		SetError(&out).
		Get("/api/v1/order")
	if err != nil {
		return nil, c.transportError("order", err)
	}
	if venueErr := c.checkResponse(resp, out.Code, out.Message); venueErr != nil {
		return nil, venueErr
	}

	market, ok := marketByID(out.Order.MarketID)
	if !ok {
		return nil, domain.NewVenueError(domain.ErrKindUnclassified,
			fmt.Sprintf("未知 market_id: %d", out.Order.MarketID))
	}
	return &domain.OrderStatus{
		ExchangeOrderID: out.Order.OrderHash,
		State:           mapOrderStatus(out.Order.Status),
		FilledQty:       scaleFromInt(out.Order.FilledSize, market.SizeDecimals),
		AvgPrice:        scaleFromInt(out.Order.AvgPrice, market.PriceDecimals),
	}, nil
}

// StreamFills 实现 connector.Connector；由 fillStream 维护重连
func (c *Client) StreamFills(ctx context.Context) (<-chan domain.FillEvent, error) {
	return c.stream.start(ctx)
}

// checkResponse 把 HTTP 层与业务层错误统一翻译成 VenueError
func (c *Client) checkResponse(resp *resty.Response, code int, message string) error {
	if resp.StatusCode() == http.StatusTooManyRequests {
		return parseVenueError(23000, "HTTP 429", retryAfterOf(resp))
	}
	if code != 0 {
		return parseVenueError(code, message, retryAfterOf(resp))
	}
	if resp.IsError() {
		return domain.NewVenueError(domain.ErrKindUnclassified,
			fmt.Sprintf("http %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

// transportError 网络层错误：超时归为结果不确定的 ConnectionTimeout
func (c *Client) transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return domain.NewVenueError(domain.ErrKindConnectionTimeout,
			fmt.Sprintf("%s 超时: %v", op, err))
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.NewVenueError(domain.ErrKindConnectionTimeout,
		fmt.Sprintf("%s 网络错误: %v", op, err))
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}

func retryAfterOf(resp *resty.Response) time.Duration {
	raw := resp.Header().Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func marketByID(id int) (marketInfo, bool) {
	for _, m := range marketTable {
		if m.ID == id {
			return m, true
		}
	}
	return marketInfo{}, false
}

// mapOrderStatus 交易所状态 → 引擎状态
func mapOrderStatus(status string) domain.OrderState {
	switch status {
	case "open", "pending":
		return domain.OrderStateSubmitted
	case "partial":
		return domain.OrderStatePartiallyFilled
	case "filled":
		return domain.OrderStateFilled
	case "cancelled", "canceled":
		return domain.OrderStateCancelled
	case "expired":
		return domain.OrderStateExpired
	case "rejected":
		return domain.OrderStateRejected
	default:
		return domain.OrderStateSubmitted
	}
}
