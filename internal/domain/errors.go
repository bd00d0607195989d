package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind 错误分类（决定可重试性与退避策略）
type ErrorKind string

const (
	ErrKindNone                  ErrorKind = ""
	ErrKindConnectionTimeout     ErrorKind = "connection_timeout"
	ErrKindRateLimitExceeded     ErrorKind = "rate_limit_exceeded"
	ErrKindNonceConflict         ErrorKind = "nonce_conflict"
	ErrKindWebSocketDisconnected ErrorKind = "websocket_disconnected"
	ErrKindOrderRejected         ErrorKind = "order_rejected"
	ErrKindInsufficientBalance   ErrorKind = "insufficient_balance"
	ErrKindInsufficientLiquidity ErrorKind = "insufficient_liquidity"
	ErrKindUnknownOrder          ErrorKind = "unknown_order"
	ErrKindUnclassified          ErrorKind = "unclassified"
)

// Retryable 判断该分类是否可重试。
// 未分类错误按不可重试处理（fail closed）。
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindConnectionTimeout, ErrKindRateLimitExceeded,
		ErrKindNonceConflict, ErrKindWebSocketDisconnected:
		return true
	default:
		return false
	}
}

// Ambiguous 判断失败结果是否不确定（请求可能已被交易所接受）。
// 此类失败在重试前必须先做状态探查，避免重复下单。
func (k ErrorKind) Ambiguous() bool {
	return k == ErrKindConnectionTimeout
}

// VenueError 交易所侧错误，携带分类与可选的冷却提示
type VenueError struct {
	Kind     ErrorKind
	Code     int           // 交易所错误码（可选）
	Msg      string
	Cooldown time.Duration // 限流时交易所给出的等待提示（可选）

	// NonceFloor 交易所拒绝 nonce 时报告的已用水位（nonce 冲突时有效）
	NonceFloor uint64
}

func (e *VenueError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: [%d] %s", e.Kind, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// NewVenueError 创建交易所错误
func NewVenueError(kind ErrorKind, msg string) *VenueError {
	return &VenueError{Kind: kind, Msg: msg}
}

// KindOf 提取错误分类；非 VenueError 一律归为 Unclassified。
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrKindNone
	}
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ErrKindUnclassified
}

// CooldownHintOf 提取限流冷却提示，没有则返回 0
func CooldownHintOf(err error) time.Duration {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Cooldown
	}
	return 0
}

// NonceFloorOf 提取 nonce 冲突水位，没有则返回 0
func NonceFloorOf(err error) uint64 {
	var ve *VenueError
	if errors.As(err, &ve) && ve.Kind == ErrKindNonceConflict {
		return ve.NonceFloor
	}
	return 0
}
