package domain

import (
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalStates(t *testing.T) {
	terminal := []OrderState{
		OrderStateFilled, OrderStateRejected, OrderStateCancelled,
		OrderStateExpired, OrderStateFailed,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "state %s", s)
	}

	active := []OrderState{
		OrderStatePending, OrderStateSubmitting,
		OrderStateSubmitted, OrderStatePartiallyFilled,
	}
	for _, s := range active {
		assert.False(t, s.IsTerminal(), "state %s", s)
	}
}

func TestNewTaskIDUniqueAndSortable(t *testing.T) {
	const n = 1000
	ids := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id := NewTaskID(SideBuy)
		require.False(t, seen[id], "任务 ID 重复: %s", id)
		seen[id] = true
		ids = append(ids, id)
	}

	// 同一方向生成的 ID 按字典序即按创建顺序
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	assert.Equal(t, ids, sorted)
}

func TestNewTaskIDEncodesSide(t *testing.T) {
	assert.Contains(t, NewTaskID(SideBuy), "ORD_BUY_")
	assert.Contains(t, NewTaskID(SideSell), "ORD_SELL_")
}

func TestErrorKindRetryable(t *testing.T) {
	retryable := []ErrorKind{
		ErrKindConnectionTimeout, ErrKindRateLimitExceeded,
		ErrKindNonceConflict, ErrKindWebSocketDisconnected,
	}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), "kind %s", k)
	}

	fatal := []ErrorKind{
		ErrKindOrderRejected, ErrKindInsufficientBalance,
		ErrKindInsufficientLiquidity, ErrKindUnknownOrder, ErrKindUnclassified,
	}
	for _, k := range fatal {
		assert.False(t, k.Retryable(), "kind %s", k)
	}
}

func TestOnlyTimeoutIsAmbiguous(t *testing.T) {
	assert.True(t, ErrKindConnectionTimeout.Ambiguous())
	assert.False(t, ErrKindRateLimitExceeded.Ambiguous())
	assert.False(t, ErrKindUnclassified.Ambiguous())
}

func TestKindOfFailsClosed(t *testing.T) {
	assert.Equal(t, ErrKindNone, KindOf(nil))
	assert.Equal(t, ErrKindUnclassified, KindOf(assert.AnError))

	ve := NewVenueError(ErrKindNonceConflict, "dup nonce")
	assert.Equal(t, ErrKindNonceConflict, KindOf(ve))
}

func TestKindOfSeesThroughWrapping(t *testing.T) {
	ve := NewVenueError(ErrKindRateLimitExceeded, "429")
	ve.Cooldown = 5 * time.Second

	wrapped := errors.Wrap(ve, "place order")
	assert.Equal(t, ErrKindRateLimitExceeded, KindOf(wrapped))
	assert.Equal(t, 5*time.Second, CooldownHintOf(wrapped))
}

func TestNonceFloorOf(t *testing.T) {
	ve := NewVenueError(ErrKindNonceConflict, "dup")
	ve.NonceFloor = 42
	assert.Equal(t, uint64(42), NonceFloorOf(ve))

	// 非 nonce 冲突错误不携带水位
	other := NewVenueError(ErrKindRateLimitExceeded, "429")
	other.NonceFloor = 42
	assert.Equal(t, uint64(0), NonceFloorOf(other))
}

func TestVenueErrorString(t *testing.T) {
	ve := NewVenueError(ErrKindOrderRejected, "invalid size")
	ve.Code = 21703
	assert.Equal(t, "order_rejected: [21703] invalid size", ve.Error())

	plain := NewVenueError(ErrKindConnectionTimeout, "read timeout")
	assert.Equal(t, "connection_timeout: read timeout", plain.Error())
}
