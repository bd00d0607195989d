package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aakaka525-design/auto-trade/internal/connector"
	"github.com/aakaka525-design/auto-trade/internal/connector/lighter"
	"github.com/aakaka525-design/auto-trade/internal/connector/paper"
	"github.com/aakaka525-design/auto-trade/internal/engine"
	"github.com/aakaka525-design/auto-trade/internal/events"
	"github.com/aakaka525-design/auto-trade/internal/metrics"
	"github.com/aakaka525-design/auto-trade/internal/risk"
	"github.com/aakaka525-design/auto-trade/pkg/config"
	"github.com/aakaka525-design/auto-trade/pkg/logger"
	"github.com/aakaka525-design/auto-trade/pkg/nonce"
	"github.com/aakaka525-design/auto-trade/pkg/persistence"
	"github.com/aakaka525-design/auto-trade/pkg/ratelimit"
	"github.com/aakaka525-design/auto-trade/pkg/retry"
	"github.com/aakaka525-design/auto-trade/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 不存在不算错误
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		return err
	}
	logger.Infof("启动交易机器人: venue=%s", cfg.Venue.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sd := shutdown.NewManager()

	// 持久化
	var store persistence.Store
	switch cfg.Persistence.Backend {
	case "badger":
		svc, err := persistence.OpenBadger(cfg.Persistence.Dir)
		if err != nil {
			return err
		}
		sd.OnShutdown(func(context.Context) { _ = svc.Close() })
		store = svc.NewStore("state", cfg.Venue.Name, "risk")
	default:
		store = persistence.NewJSONFileService(cfg.Persistence.Dir).
			NewStore("state", cfg.Venue.Name, "risk")
	}

	// 事件总线 + 监控
	bus := events.NewBus()
	sd.OnShutdown(func(context.Context) { bus.Stop() })
	go metrics.Collect(ctx, bus)
	if cfg.Metrics.Enabled {
		if _, err := metrics.StartAsync(ctx, cfg.Metrics.ListenAddr); err != nil {
			return err
		}
		logger.Infof("监控服务已启动: %s", cfg.Metrics.ListenAddr)
	}

	// 风控
	gate, err := risk.NewGate(risk.Config{
		MaxPositionPerSymbol: cfg.RiskDecimal(cfg.Risk.MaxPositionPerSymbol),
		MaxOrderNotional:     cfg.RiskDecimal(cfg.Risk.MaxOrderNotional),
		Breaker: risk.BreakerConfig{
			MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
			DailyLossLimit:       cfg.RiskDecimal(cfg.Risk.DailyLossLimit),
			Cooldown:             cfg.Risk.Cooldown(),
		},
	}, store, bus)
	if err != nil {
		return err
	}

	// 限流与 nonce
	limits := ratelimit.NewManager(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	book := nonce.NewBook()

	// 连接器
	var conn connector.Connector
	switch cfg.Venue.Name {
	case "lighter":
		lc := lighter.New(lighter.Config{
			BaseURL:       cfg.Venue.BaseURL,
			WsURL:         cfg.Venue.WsURL,
			APIKey:        cfg.Venue.APIKey,
			AccountID:     cfg.Venue.AccountID,
			Timeout:       cfg.Venue.Timeout(),
			MaxReconnects: cfg.Venue.MaxReconnects,
		})
		seedNonce(ctx, lc, limits.For(lc.Name()), book)
		conn = lc
	default:
		p := paper.New()
		p.AutoFill = true
		p.AutoFillDelay = 50 * time.Millisecond
		conn = p
	}

	nonces := book.For(cfg.Venue.Name)

	// 执行引擎
	eng := engine.New(engine.Config{
		Workers:      cfg.Engine.Workers,
		QueueSize:    cfg.Engine.QueueSize,
		PlaceWeight:  cfg.Engine.PlaceWeight,
		CancelWeight: cfg.Engine.CancelWeight,
		QueryWeight:  cfg.Engine.QueryWeight,
		Retry: retry.Config{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay(),
			MaxDelay:   cfg.Retry.MaxDelay(),
			Jitter:     cfg.Retry.Jitter,
		},
		OrderTTL:          cfg.Engine.OrderTTL(),
		CleanupInterval:   cfg.Engine.CleanupInterval(),
		CleanupGrace:      cfg.Engine.CleanupGrace(),
		PendingFillTTL:    cfg.Engine.PendingFillTTL(),
		AssumeFilledOnAck: cfg.Engine.AssumeFilledOnAck,
	}, conn, gate, limits.For(conn.Name()), nonces, bus)

	if err := eng.Start(ctx); err != nil {
		return err
	}
	sd.OnShutdown(func(context.Context) { eng.Stop() })

	go watchAlerts(ctx, bus)

	<-ctx.Done()
	logger.Info("收到退出信号")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sd.Shutdown(shutdownCtx)

	stats := eng.Stats()
	logger.Infof("最终统计: 已提交=%d 已成交=%d 已拒绝=%d 失败=%d 未对账=%d",
		stats.Submitted, stats.Filled, stats.Rejected, stats.Failed, stats.Unreconciled)
	return nil
}

// seedNonce 以交易所侧水位初始化 nonce 游标。
// 不初始化会在重启后从 0 起步、每单都撞 nonce；查询失败时仍从 0
// 起步，首次冲突后连接器会带回水位重同步。
func seedNonce(ctx context.Context, lc *lighter.Client, bucket *ratelimit.TokenBucket, book *nonce.Book) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := bucket.Acquire(ctx, lighter.WeightNextNonce); err != nil {
		logger.Warnf("初始化 nonce 水位失败: %v", err)
		return
	}
	floor, err := lc.NextNonce(ctx)
	if err != nil {
		logger.Warnf("初始化 nonce 水位失败，从 0 起步: %v", err)
		return
	}
	book.Seed(lc.Name(), floor)
	logger.Infof("nonce 水位初始化: %d", floor)
}

// watchAlerts 把需要人工关注的事件写进日志
func watchAlerts(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(
		events.TopicBreakerTripped,
		events.TopicBreakerReset,
		events.TopicUnmatchedFill,
		events.TopicConnectorDown,
	)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			switch payload := ev.Payload.(type) {
			case events.BreakerEvent:
				if ev.Topic == events.TopicBreakerTripped {
					logger.Errorf("熔断触发: reason=%s 当日盈亏=%s 冷却至=%s",
						payload.Reason, payload.DailyPnl, payload.CooldownUntil.Format(time.RFC3339))
				} else {
					logger.Infof("熔断恢复: reason=%s", payload.Reason)
				}
			case events.FillMismatchEvent:
				logger.Errorf("待人工对账的成交: exchange_order_id=%s", payload.ExchangeOrderID)
			case events.ConnectorEvent:
				logger.Errorf("连接器离线: venue=%s reason=%s", payload.Venue, payload.Reason)
			}
		}
	}
}
