package lighter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aakaka525-design/auto-trade/internal/connector"
	"github.com/aakaka525-design/auto-trade/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, WsURL: "ws://127.0.0.1:0", AccountID: 7})
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func TestParseVenueErrorKnownCodes(t *testing.T) {
	cases := []struct {
		code int
		kind domain.ErrorKind
	}{
		{21104, domain.ErrKindNonceConflict},
		{21110, domain.ErrKindInsufficientBalance},
		{21500, domain.ErrKindUnknownOrder},
		{21601, domain.ErrKindInsufficientLiquidity},
		{21700, domain.ErrKindOrderRejected},
		{21702, domain.ErrKindOrderRejected},
		{21703, domain.ErrKindOrderRejected},
		{23000, domain.ErrKindRateLimitExceeded},
	}
	for _, tc := range cases {
		ve := parseVenueError(tc.code, "msg", 0)
		assert.Equal(t, tc.kind, ve.Kind, "code %d", tc.code)
		assert.Equal(t, tc.code, ve.Code)
	}
}

func TestParseVenueErrorUnknownCodeFailsClosed(t *testing.T) {
	ve := parseVenueError(99999, "mystery", 0)
	assert.Equal(t, domain.ErrKindUnclassified, ve.Kind)
	assert.False(t, ve.Kind.Retryable())
}

func TestParseVenueErrorRateLimitCooldown(t *testing.T) {
	ve := parseVenueError(23000, "slow down", 3*time.Second)
	assert.Equal(t, 3*time.Second, ve.Cooldown)

	// 交易所没给 Retry-After 时使用保守默认值
	ve = parseVenueError(23000, "slow down", 0)
	assert.Equal(t, 10*time.Second, ve.Cooldown)
}

func TestNextNonce(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/nextNonce", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("account_index"))
		writeJSON(w, `{"code":0,"nonce":4187}`)
	})

	floor, err := c.NextNonce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4187), floor)
}

func TestPlaceOrderNonceConflictCarriesFloor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sendTx":
			writeJSON(w, `{"code":21104,"message":"nonce already used"}`)
		case "/api/v1/nextNonce":
			writeJSON(w, `{"code":0,"nonce":901}`)
		default:
			t.Errorf("意外的请求路径: %s", r.URL.Path)
		}
	})

	_, err := c.PlaceOrder(context.Background(), connector.PlaceOrderRequest{
		ClientOrderID: "ORD_BUY_1_0001",
		Symbol:        "ETH-USDC",
		Side:          domain.SideBuy,
		OrderType:     domain.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(1),
		LimitPrice:    decimal.NewFromInt(2000),
		Nonce:         900,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindNonceConflict, domain.KindOf(err))
	// 冲突错误带回交易所水位，上层据此 Resync
	assert.Equal(t, uint64(901), domain.NonceFloorOf(err))
}

func TestPlaceOrderRejectionSkipsNonceQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sendTx", r.URL.Path)
		writeJSON(w, `{"code":21703,"message":"invalid size"}`)
	})

	_, err := c.PlaceOrder(context.Background(), connector.PlaceOrderRequest{
		ClientOrderID: "ORD_BUY_1_0002",
		Symbol:        "ETH-USDC",
		Side:          domain.SideBuy,
		OrderType:     domain.OrderTypeLimit,
		Quantity:      decimal.NewFromInt(1),
		LimitPrice:    decimal.NewFromInt(2000),
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindOrderRejected, domain.KindOf(err))
	assert.Equal(t, uint64(0), domain.NonceFloorOf(err))
}

func TestMarketScaling(t *testing.T) {
	m, err := lookupMarket("ETH-USDC")
	require.NoError(t, err)

	price, err := decimal.NewFromString("3214.57")
	require.NoError(t, err)
	assert.Equal(t, int64(321457), scaleToInt(price, m.PriceDecimals))
	assert.True(t, scaleFromInt(321457, m.PriceDecimals).Equal(price))

	size, err := decimal.NewFromString("0.1234")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), scaleToInt(size, m.SizeDecimals))
}

func TestLookupMarketUnknown(t *testing.T) {
	_, err := lookupMarket("DOGE-USDC")
	assert.Error(t, err)
}

func TestMapOrderStatus(t *testing.T) {
	assert.Equal(t, domain.OrderStateSubmitted, mapOrderStatus("open"))
	assert.Equal(t, domain.OrderStatePartiallyFilled, mapOrderStatus("partial"))
	assert.Equal(t, domain.OrderStateFilled, mapOrderStatus("filled"))
	assert.Equal(t, domain.OrderStateCancelled, mapOrderStatus("cancelled"))
	assert.Equal(t, domain.OrderStateExpired, mapOrderStatus("expired"))
	assert.Equal(t, domain.OrderStateRejected, mapOrderStatus("rejected"))
	// 未知状态保守地当作仍在场内
	assert.Equal(t, domain.OrderStateSubmitted, mapOrderStatus("weird"))
}
