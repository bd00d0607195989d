package lighter

import (
	"fmt"
	"time"

	"github.com/aakaka525-design/auto-trade/internal/domain"
)

// Lighter API 错误码表。
// 23000 是限流，带 Retry-After；21xxx 为订单参数类拒绝。
var errorCodeTable = map[int]struct {
	name string
	kind domain.ErrorKind
}{
	21104: {"NonceConflict", domain.ErrKindNonceConflict},
	21110: {"InsufficientBalance", domain.ErrKindInsufficientBalance},
	21500: {"TransactionNotFound", domain.ErrKindUnknownOrder},
	21601: {"OrderBookFull", domain.ErrKindInsufficientLiquidity},
	21700: {"InvalidOrderIndex", domain.ErrKindOrderRejected},
	21702: {"InvalidPrice", domain.ErrKindOrderRejected},
	21703: {"InvalidSize", domain.ErrKindOrderRejected},
	23000: {"TooManyRequests", domain.ErrKindRateLimitExceeded},
}

// parseVenueError 把 Lighter 错误码翻译成 domain.VenueError。
// 表外错误码一律归为 Unclassified（不可重试，宁可失败不可重复下单）。
func parseVenueError(code int, message string, retryAfter time.Duration) *domain.VenueError {
	info, ok := errorCodeTable[code]
	if !ok {
		ve := domain.NewVenueError(domain.ErrKindUnclassified, message)
		ve.Code = code
		return ve
	}
	ve := domain.NewVenueError(info.kind, fmt.Sprintf("[%s] %s", info.name, message))
	ve.Code = code
	if info.kind == domain.ErrKindRateLimitExceeded {
		if retryAfter <= 0 {
			retryAfter = 10 * time.Second
		}
		ve.Cooldown = retryAfter
	}
	return ve
}
