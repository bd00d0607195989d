// Package retry 提供带分类的指数退避重试。
//
// 失败先经过错误分类（domain.ErrorKind）判定可否重试；可重试的按
// base*2^attempt 退避并叠加 ±25% 抖动，上限封顶；限流错误优先采用
// 交易所给出的冷却提示。对“结果不确定”的失败（提交超时），
// DoIdempotent 会先查询订单状态再决定是否重发，避免重复下单。
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aakaka525-design/auto-trade/internal/domain"
)

var log = logrus.WithField("component", "retry")

// Config 重试配置
type Config struct {
	MaxRetries      int           // 额外重试次数（总尝试 = MaxRetries+1）
	BaseDelay       time.Duration // 首次退避
	MaxDelay        time.Duration // 退避上限
	ExponentialBase float64       // 默认 2.0
	Jitter          bool          // 是否叠加 ±25% 抖动
}

// DefaultConfig 下单路径的默认参数
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

func (c Config) normalized() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.ExponentialBase < 1 {
		c.ExponentialBase = 2.0
	}
	return c
}

// Backoff 计算第 attempt 次（从 0 开始）重试前的等待时间
func Backoff(attempt int, cfg Config) time.Duration {
	cfg = cfg.normalized()
	d := float64(cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= cfg.ExponentialBase
		if time.Duration(d) >= cfg.MaxDelay {
			d = float64(cfg.MaxDelay)
			break
		}
	}
	delay := time.Duration(d)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		// 抖动 ±25%；下界 3/4*BaseDelay，不会出现非正等待
		jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
		delay += jitter
	}
	return delay
}

// Classifier 判断错误是否可重试；nil 时使用内建错误分类表。
type Classifier func(err error) bool

// OnRetry 每次重试前回调（用于 nonce 重同步、日志等）
type OnRetry func(err error, attempt int)

// Do 执行 op，失败且可重试时按退避计划重试；
// 耗尽预算或遇到不可重试错误时返回最后一次失败。
func Do(ctx context.Context, cfg Config, retryable Classifier, onRetry OnRetry, op func(ctx context.Context) error) error {
	cfg = cfg.normalized()
	if retryable == nil {
		retryable = func(err error) bool { return domain.KindOf(err).Retryable() }
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			log.Errorf("重试耗尽 (%d次): %v", cfg.MaxRetries, lastErr)
			return lastErr
		}

		delay := Backoff(attempt, cfg)
		// 限流：不早于交易所冷却提示
		if hint := domain.CooldownHintOf(lastErr); hint > delay {
			delay = hint
		}
		log.Warnf("重试 %d/%d: %v - 等待 %s", attempt+1, cfg.MaxRetries, lastErr, delay)

		if onRetry != nil {
			onRetry(lastErr, attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// Prober 歧义失败后的状态探查：返回已存在的订单（nil 表示交易所没有该订单）。
type Prober func(ctx context.Context) (*domain.OrderStatus, error)

// DoIdempotent 执行不可盲目重复的操作（下单）。
//
// 与 Do 的区别：当一次尝试以“结果不确定”失败（超时，订单可能已被接受）
// 时，重试前先通过 probe 查询交易所；查到订单则直接采纳已有的
// ExchangeOrderID（保证一个任务只关联一个交易所订单），查不到才安全重发。
func DoIdempotent(ctx context.Context, cfg Config, onRetry OnRetry, place func(ctx context.Context) (domain.Ack, error), probe Prober) (domain.Ack, error) {
	cfg = cfg.normalized()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		ack, err := place(ctx)
		if err == nil {
			return ack, nil
		}
		lastErr = err
		kind := domain.KindOf(err)

		// 结果不确定：先探查，避免把已成功的订单当失败重发
		if kind.Ambiguous() && probe != nil {
			if st, perr := probe(ctx); perr == nil && st != nil {
				log.Infof("歧义失败后探查到已有订单: %s", st.ExchangeOrderID)
				return domain.Ack{ExchangeOrderID: st.ExchangeOrderID}, nil
			}
			// 探查失败或没有订单：按可重试继续
		}

		if !kind.Retryable() {
			return domain.Ack{}, lastErr
		}
		if attempt == cfg.MaxRetries {
			log.Errorf("下单重试耗尽 (%d次): %v", cfg.MaxRetries, lastErr)
			return domain.Ack{}, lastErr
		}

		delay := Backoff(attempt, cfg)
		if hint := domain.CooldownHintOf(lastErr); hint > delay {
			delay = hint
		}
		if onRetry != nil {
			onRetry(lastErr, attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Ack{}, ctx.Err()
		case <-timer.C:
		}
	}
	return domain.Ack{}, lastErr
}
