// Package engine 实现订单执行引擎。
//
// 职责链：风控准入 → 任务入队 → 限流取令牌 → nonce → 带幂等保护的
// 提交重试 → 确认后维护 TaskID/ExchangeOrderID 双索引 → 异步成交对账。
// 所有任务表的读写都在引擎唯一的一把互斥锁内完成（单写者约束），
// 工作协程、成交消费协程与清理协程之间不共享其它可变状态。
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aakaka525-design/auto-trade/internal/connector"
	"github.com/aakaka525-design/auto-trade/internal/domain"
	"github.com/aakaka525-design/auto-trade/internal/events"
	"github.com/aakaka525-design/auto-trade/internal/ports"
	"github.com/aakaka525-design/auto-trade/pkg/ratelimit"
	"github.com/aakaka525-design/auto-trade/pkg/retry"
	"github.com/aakaka525-design/auto-trade/pkg/syncgroup"
)

// ErrUnknownTask 任务不存在（或已被清理）
var ErrUnknownTask = errors.New("unknown task")

// ErrNotRunning 引擎未启动
var ErrNotRunning = errors.New("engine not running")

// ErrWaitTimeout WaitFor 超时（任务继续执行，只是调用方不再等）
var ErrWaitTimeout = errors.New("wait timeout")

// RiskRejectedError 风控拒绝（发生在提交之前，区别于交易所拒单）
type RiskRejectedError struct {
	Reason string
}

func (e *RiskRejectedError) Error() string {
	return "risk rejected: " + e.Reason
}

// Config 引擎配置
type Config struct {
	Workers      int     // 并发提交协程数
	QueueSize    int     // 待提交队列长度
	PlaceWeight  float64 // 下单请求的限流权重
	CancelWeight float64 // 撤单请求的限流权重
	QueryWeight  float64 // 查单（歧义失败探查）的限流权重

	Retry retry.Config

	OrderTTL time.Duration // 任务从创建到提交的存活期；0 表示不限

	CleanupInterval time.Duration // 终态任务清理扫描间隔
	CleanupGrace    time.Duration // 终态后保留时长（期间仍可吸收迟到成交）
	PendingFillTTL  time.Duration // 无主成交在 holding 区的存活期

	// AssumeFilledOnAck 无成交流模式：确认即视为全部成交。
	// 开启后不消费连接器的成交流（dry-run / 不支持 WS 的场景）。
	AssumeFilledOnAck bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.PlaceWeight <= 0 {
		c.PlaceWeight = 6
	}
	if c.CancelWeight <= 0 {
		c.CancelWeight = c.PlaceWeight
	}
	if c.QueryWeight <= 0 {
		c.QueryWeight = 300
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.CleanupGrace <= 0 {
		c.CleanupGrace = 10 * time.Minute
	}
	if c.PendingFillTTL <= 0 {
		c.PendingFillTTL = 2 * time.Minute
	}
	return c
}

// taskEntry 任务与其引擎侧附属状态
type taskEntry struct {
	task            domain.OrderTask
	cancelRequested bool          // Submitting 阶段收到取消请求
	done            chan struct{} // 进入终态时关闭
}

// heldFill holding 区中等待归属的成交
type heldFill struct {
	fill domain.FillEvent
	at   time.Time
}

// Stats 引擎运行统计快照
type Stats struct {
	Active    int `json:"active"`     // 任务表中的任务数（含终态未清理）
	Queued    int `json:"queued"`     // 待提交队列深度
	HeldFills int `json:"held_fills"` // holding 区成交数

	Submitted    uint64 `json:"submitted"`
	Filled       uint64 `json:"filled"`
	Rejected     uint64 `json:"rejected"`
	Cancelled    uint64 `json:"cancelled"`
	Expired      uint64 `json:"expired"`
	Failed       uint64 `json:"failed"`
	RiskRejected uint64 `json:"risk_rejected"`
	Unreconciled uint64 `json:"unreconciled"`
}

// Engine 订单执行引擎
type Engine struct {
	cfg     Config
	conn    connector.Connector
	gate    ports.RiskGate
	limiter *ratelimit.TokenBucket
	nonces  ports.NonceSource
	bus     *events.Bus
	log     *logrus.Entry

	mu           sync.Mutex
	tasks        map[string]*taskEntry
	byExchangeID map[string]string // ExchangeOrderID → TaskID
	held         map[string][]heldFill

	queue   chan string
	sg      *syncgroup.SyncGroup
	cancel  context.CancelFunc
	started bool

	now func() time.Time // 测试注入

	cSubmitted    atomic.Uint64
	cFilled       atomic.Uint64
	cRejected     atomic.Uint64
	cCancelled    atomic.Uint64
	cExpired      atomic.Uint64
	cFailed       atomic.Uint64
	cRiskRejected atomic.Uint64
	cUnreconciled atomic.Uint64
}

// New 创建执行引擎
func New(cfg Config, conn connector.Connector, gate ports.RiskGate,
	limiter *ratelimit.TokenBucket, nonces ports.NonceSource, bus *events.Bus) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:          cfg,
		conn:         conn,
		gate:         gate,
		limiter:      limiter,
		nonces:       nonces,
		bus:          bus,
		log:          logrus.WithField("component", "engine"),
		tasks:        make(map[string]*taskEntry),
		byExchangeID: make(map[string]string),
		held:         make(map[string][]heldFill),
		queue:        make(chan string, cfg.QueueSize),
		sg:           syncgroup.New(),
		now:          time.Now,
	}
}

// Start 启动工作协程、成交消费与清理循环
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.started = true
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if !e.cfg.AssumeFilledOnAck {
		fills, err := e.conn.StreamFills(runCtx)
		if err != nil {
			cancel()
			return errors.Wrap(err, "start fill stream")
		}
		e.sg.Go(func() { e.consumeFills(runCtx, fills) })
	}

	for i := 0; i < e.cfg.Workers; i++ {
		e.sg.Go(func() { e.worker(runCtx) })
	}
	e.sg.Go(func() { e.cleanupLoop(runCtx) })

	e.log.Infof("执行引擎已启动: workers=%d queue=%d venue=%s assume_filled=%v",
		e.cfg.Workers, e.cfg.QueueSize, e.conn.Name(), e.cfg.AssumeFilledOnAck)
	return nil
}

// Stop 停止引擎并等待所有协程退出
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	e.sg.Wait()

	// 协程都退出后队列里不再有人消费；滞留在 Pending 的任务统一收尾，
	// 不让 WaitFor 的调用方干等到超时
	e.mu.Lock()
	var drained []domain.OrderTask
	for _, entry := range e.tasks {
		if entry.task.State == domain.OrderStatePending {
			e.finalizeLocked(entry, domain.OrderStateCancelled, "engine_stopped", domain.ErrKindNone)
			drained = append(drained, entry.task.Snapshot())
		}
	}
	e.mu.Unlock()

	for _, snap := range drained {
		e.publishTask(events.TopicOrderCancelled, snap)
	}
	e.log.Info("执行引擎已停止")
}

// Submit 提交交易意图；通过风控后返回任务 ID。
// 风控拒绝返回 *RiskRejectedError，不会创建任务。
func (e *Engine) Submit(ctx context.Context, intent domain.Intent) (string, error) {
	e.mu.Lock()
	running := e.started
	e.mu.Unlock()
	if !running {
		return "", ErrNotRunning
	}

	if !intent.Quantity.IsPositive() {
		return "", fmt.Errorf("quantity must be positive: %s", intent.Quantity)
	}
	if intent.OrderType == domain.OrderTypeLimit && !intent.LimitPrice.IsPositive() {
		return "", fmt.Errorf("limit order requires positive price")
	}

	if dec := e.gate.Admit(intent); !dec.Allow {
		e.cRiskRejected.Add(1)
		e.log.Warnf("风控拒绝: %s %s %s reason=%s",
			intent.Side, intent.Quantity, intent.Symbol, dec.Reason)
		e.publish(events.TopicRiskRejected, events.OrderEvent{
			Symbol: intent.Symbol,
			Side:   intent.Side,
			Reason: dec.Reason,
		})
		return "", &RiskRejectedError{Reason: dec.Reason}
	}

	now := e.now()
	entry := &taskEntry{
		task: domain.OrderTask{
			TaskID:        domain.NewTaskID(intent.Side),
			Symbol:        intent.Symbol,
			Side:          intent.Side,
			Quantity:      intent.Quantity,
			OrderType:     intent.OrderType,
			LimitPrice:    intent.LimitPrice,
			State:         domain.OrderStatePending,
			CreatedAt:     now,
			LastUpdatedAt: now,
		},
		done: make(chan struct{}),
	}
	if e.cfg.OrderTTL > 0 {
		entry.task.ExpiresAt = now.Add(e.cfg.OrderTTL)
	}

	e.mu.Lock()
	e.tasks[entry.task.TaskID] = entry
	e.mu.Unlock()

	select {
	case e.queue <- entry.task.TaskID:
	case <-ctx.Done():
		e.mu.Lock()
		delete(e.tasks, entry.task.TaskID)
		e.mu.Unlock()
		return "", ctx.Err()
	}
	return entry.task.TaskID, nil
}

// Task 返回任务快照
func (e *Engine) Task(taskID string) (domain.OrderTask, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.tasks[taskID]
	if !ok {
		return domain.OrderTask{}, false
	}
	return entry.task.Snapshot(), true
}

// WaitFor 等待任务进入终态。
// 超时或 ctx 取消只是放弃等待，不取消任务本身。
func (e *Engine) WaitFor(ctx context.Context, taskID string, timeout time.Duration) (domain.OrderTask, error) {
	e.mu.Lock()
	entry, ok := e.tasks[taskID]
	e.mu.Unlock()
	if !ok {
		return domain.OrderTask{}, ErrUnknownTask
	}

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case <-entry.done:
		e.mu.Lock()
		snap := entry.task.Snapshot()
		e.mu.Unlock()
		return snap, nil
	case <-timeoutC:
		return domain.OrderTask{}, ErrWaitTimeout
	case <-ctx.Done():
		return domain.OrderTask{}, ctx.Err()
	}
}

// Cancel 取消任务。
// 终态任务上的取消是幂等 no-op；Submitting 阶段记录请求，
// 待确认返回后再向交易所发撤单。
func (e *Engine) Cancel(ctx context.Context, taskID string) error {
	e.mu.Lock()
	entry, ok := e.tasks[taskID]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownTask
	}
	state := entry.task.State
	exchangeID := entry.task.ExchangeOrderID

	switch {
	case state.IsTerminal():
		e.mu.Unlock()
		return nil

	case state == domain.OrderStatePending:
		e.finalizeLocked(entry, domain.OrderStateCancelled, "cancelled_before_submit", domain.ErrKindNone)
		snap := entry.task.Snapshot()
		e.mu.Unlock()
		e.publishTask(events.TopicOrderCancelled, snap)
		return nil

	case state == domain.OrderStateSubmitting:
		entry.cancelRequested = true
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	// Submitted / PartiallyFilled：向交易所撤单（撤单同样占限流预算）
	if err := e.limiter.Acquire(ctx, e.cfg.CancelWeight); err != nil {
		return errors.Wrap(err, "acquire cancel budget")
	}
	if err := e.conn.CancelOrder(ctx, exchangeID); err != nil {
		if domain.KindOf(err) != domain.ErrKindUnknownOrder {
			return errors.Wrap(err, "cancel order")
		}
		// 交易所已不认识该订单：按已取消处理
	}

	e.mu.Lock()
	if !entry.task.State.IsTerminal() {
		e.finalizeLocked(entry, domain.OrderStateCancelled, "user_requested", domain.ErrKindNone)
		snap := entry.task.Snapshot()
		e.mu.Unlock()
		e.publishTask(events.TopicOrderCancelled, snap)
		return nil
	}
	e.mu.Unlock()
	return nil
}

// Stats 返回运行统计
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	active := len(e.tasks)
	heldCount := 0
	for _, fills := range e.held {
		heldCount += len(fills)
	}
	e.mu.Unlock()

	return Stats{
		Active:       active,
		Queued:       len(e.queue),
		HeldFills:    heldCount,
		Submitted:    e.cSubmitted.Load(),
		Filled:       e.cFilled.Load(),
		Rejected:     e.cRejected.Load(),
		Cancelled:    e.cCancelled.Load(),
		Expired:      e.cExpired.Load(),
		Failed:       e.cFailed.Load(),
		RiskRejected: e.cRiskRejected.Load(),
		Unreconciled: e.cUnreconciled.Load(),
	}
}

// ---------------------------------------------------------------------------
// 提交路径

func (e *Engine) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-e.queue:
			e.process(ctx, taskID)
		}
	}
}

func (e *Engine) process(ctx context.Context, taskID string) {
	now := e.now()

	e.mu.Lock()
	entry, ok := e.tasks[taskID]
	if !ok || entry.task.State != domain.OrderStatePending {
		// 排队期间被取消或清理
		e.mu.Unlock()
		return
	}
	if !entry.task.ExpiresAt.IsZero() && now.After(entry.task.ExpiresAt) {
		e.finalizeLocked(entry, domain.OrderStateExpired, "ttl_exceeded", domain.ErrKindNone)
		snap := entry.task.Snapshot()
		e.mu.Unlock()
		e.publishTask(events.TopicOrderExpired, snap)
		return
	}
	entry.task.State = domain.OrderStateSubmitting
	entry.task.LastUpdatedAt = now
	req := connector.PlaceOrderRequest{
		ClientOrderID: entry.task.TaskID,
		Symbol:        entry.task.Symbol,
		Side:          entry.task.Side,
		OrderType:     entry.task.OrderType,
		Quantity:      entry.task.Quantity,
		LimitPrice:    entry.task.LimitPrice,
	}
	e.mu.Unlock()

	if err := e.limiter.Acquire(ctx, e.cfg.PlaceWeight); err != nil {
		e.failTask(entry, err)
		return
	}

	place := func(ctx context.Context) (domain.Ack, error) {
		r := req
		r.Nonce = e.nonces.Next()
		return e.conn.PlaceOrder(ctx, r)
	}
	onRetry := func(err error, attempt int) {
		if floor := domain.NonceFloorOf(err); floor > 0 {
			e.log.Warnf("nonce 冲突，按交易所水位 %d 重同步", floor)
			e.nonces.Resync(floor)
		}
	}
	probe := func(ctx context.Context) (*domain.OrderStatus, error) {
		if err := e.limiter.Acquire(ctx, e.cfg.QueryWeight); err != nil {
			return nil, err
		}
		return e.conn.QueryByClientID(ctx, req.ClientOrderID)
	}

	ack, err := retry.DoIdempotent(ctx, e.cfg.Retry, onRetry, place, probe)
	if err != nil {
		e.failTask(entry, err)
		return
	}
	e.ackTask(entry, ack)
}

// ackTask 记录交易所确认：写入双索引并回放 holding 区中匹配的成交
func (e *Engine) ackTask(entry *taskEntry, ack domain.Ack) {
	now := e.now()

	e.mu.Lock()
	entry.task.ExchangeOrderID = ack.ExchangeOrderID
	entry.task.State = domain.OrderStateSubmitted
	entry.task.SubmittedAt = now
	entry.task.LastUpdatedAt = now
	e.byExchangeID[ack.ExchangeOrderID] = entry.task.TaskID

	var reports []domain.ExecutionReport
	var published []publishItem
	var unmatched []domain.FillEvent

	// 先于确认到达的成交此刻回放
	if pending, ok := e.held[ack.ExchangeOrderID]; ok {
		delete(e.held, ack.ExchangeOrderID)
		for _, h := range pending {
			r, p, u := e.applyFillLocked(entry, h.fill)
			reports = append(reports, r...)
			published = append(published, p...)
			unmatched = append(unmatched, u...)
		}
	}

	// 无成交流模式：确认即视为按委托价全部成交
	if e.cfg.AssumeFilledOnAck && !entry.task.State.IsTerminal() {
		r, p, u := e.applyFillLocked(entry, domain.FillEvent{
			ExchangeOrderID: ack.ExchangeOrderID,
			FilledQty:       entry.task.Quantity,
			AvgPrice:        entry.task.LimitPrice,
			Timestamp:       now,
		})
		reports = append(reports, r...)
		published = append(published, p...)
		unmatched = append(unmatched, u...)
	}

	cancelAfterAck := entry.cancelRequested && !entry.task.State.IsTerminal()
	snap := entry.task.Snapshot()
	e.mu.Unlock()

	e.cSubmitted.Add(1)
	e.publishTask(events.TopicOrderSubmitted, snap)
	e.flushFillEffects(reports, published, unmatched)

	if cancelAfterAck {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Cancel(ctx, entry.task.TaskID); err != nil {
			e.log.Errorf("确认后补发撤单失败: task=%s err=%v", entry.task.TaskID, err)
		}
	}
}

// failTask 提交失败的终态归类：交易所明确拒绝记 Rejected，其余记 Failed
func (e *Engine) failTask(entry *taskEntry, err error) {
	kind := domain.KindOf(err)
	state := domain.OrderStateFailed
	topic := events.TopicOrderFailed
	switch kind {
	case domain.ErrKindOrderRejected, domain.ErrKindInsufficientBalance,
		domain.ErrKindInsufficientLiquidity:
		state = domain.OrderStateRejected
		topic = events.TopicOrderRejected
	}

	e.mu.Lock()
	if entry.task.State.IsTerminal() {
		e.mu.Unlock()
		return
	}
	e.finalizeLocked(entry, state, err.Error(), kind)
	snap := entry.task.Snapshot()
	e.mu.Unlock()

	e.log.Warnf("任务终止: task=%s state=%s kind=%s reason=%v",
		entry.task.TaskID, state, kind, err)
	e.publishTask(topic, snap)
}

// finalizeLocked 写入终态并唤醒等待者；调用方必须持有 e.mu
func (e *Engine) finalizeLocked(entry *taskEntry, state domain.OrderState, reason string, kind domain.ErrorKind) {
	entry.task.State = state
	entry.task.Reason = reason
	entry.task.ErrKind = kind
	entry.task.LastUpdatedAt = e.now()
	close(entry.done)

	switch state {
	case domain.OrderStateFilled:
		e.cFilled.Add(1)
	case domain.OrderStateRejected:
		e.cRejected.Add(1)
	case domain.OrderStateCancelled:
		e.cCancelled.Add(1)
	case domain.OrderStateExpired:
		e.cExpired.Add(1)
	case domain.OrderStateFailed:
		e.cFailed.Add(1)
	}
}

// ---------------------------------------------------------------------------
// 成交对账路径

func (e *Engine) consumeFills(ctx context.Context, fills <-chan domain.FillEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-fills:
			if !ok {
				// 连接器放弃重连：交易在线状态由 Healthy() 反映
				e.log.Error("成交流已关闭")
				e.publish(events.TopicConnectorDown, events.ConnectorEvent{
					Venue:  e.conn.Name(),
					Reason: "fill stream closed",
				})
				return
			}
			e.Reconcile(fill)
		}
	}
}

// Reconcile 处理一笔成交事件。
// 未知 ExchangeOrderID 进入 holding 区等待确认路径回放；
// 终态任务上的重复成交是 no-op，累计值更大的迟到成交转入人工对账。
func (e *Engine) Reconcile(fill domain.FillEvent) {
	e.mu.Lock()
	taskID, ok := e.byExchangeID[fill.ExchangeOrderID]
	if !ok {
		e.held[fill.ExchangeOrderID] = append(e.held[fill.ExchangeOrderID], heldFill{
			fill: fill,
			at:   e.now(),
		})
		e.mu.Unlock()
		e.log.Debugf("成交先于确认到达，暂存: exchange_order_id=%s", fill.ExchangeOrderID)
		return
	}

	entry := e.tasks[taskID]
	reports, published, unmatched := e.applyFillLocked(entry, fill)
	e.mu.Unlock()

	e.flushFillEffects(reports, published, unmatched)
}

type publishItem struct {
	topic events.Topic
	snap  domain.OrderTask
}

// applyFillLocked 把累计成交写进任务；调用方必须持有 e.mu。
// 返回需要在锁外执行的风控上报、事件发布与待人工对账的增量。
func (e *Engine) applyFillLocked(entry *taskEntry, fill domain.FillEvent) ([]domain.ExecutionReport, []publishItem, []domain.FillEvent) {
	task := &entry.task
	// FilledQty 为累计值；小于等于当前值的是重复或乱序，忽略
	if fill.FilledQty.LessThanOrEqual(task.FilledQuantity) {
		return nil, nil, nil
	}

	delta := fill.FilledQty.Sub(task.FilledQuantity)
	task.FilledQuantity = fill.FilledQty
	task.LastUpdatedAt = e.now()

	if task.State.IsTerminal() {
		// 终态之后累计值仍在涨：撤单/失败落地前交易所已执行的真实成交，
		// 不能静默丢掉，增量转入人工对账
		late := fill
		late.FilledQty = delta
		return nil, nil, []domain.FillEvent{late}
	}
	task.AvgFillPrice = fill.AvgPrice

	report := domain.ExecutionReport{
		TaskID:    task.TaskID,
		Symbol:    task.Symbol,
		Side:      task.Side,
		Quantity:  delta,
		AvgPrice:  fill.AvgPrice,
		Fee:       fill.Fee,
		Timestamp: fill.Timestamp,
	}

	var item publishItem
	if task.FilledQuantity.GreaterThanOrEqual(task.Quantity) {
		e.finalizeLocked(entry, domain.OrderStateFilled, "", domain.ErrKindNone)
		item = publishItem{topic: events.TopicOrderFilled, snap: task.Snapshot()}
	} else {
		task.State = domain.OrderStatePartiallyFilled
		item = publishItem{topic: events.TopicOrderPartiallyFilled, snap: task.Snapshot()}
	}
	return []domain.ExecutionReport{report}, []publishItem{item}, nil
}

// flushFillEffects 锁外执行成交的副作用（风控核算、事件发布与无主增量上报）
func (e *Engine) flushFillEffects(reports []domain.ExecutionReport, published []publishItem, unmatched []domain.FillEvent) {
	for _, r := range reports {
		e.gate.OnFill(r)
	}
	for _, p := range published {
		e.publishTask(p.topic, p.snap)
	}
	for _, f := range unmatched {
		e.cUnreconciled.Add(1)
		e.log.Errorf("终态任务收到迟到成交，转入人工对账: exchange_order_id=%s qty=%s",
			f.ExchangeOrderID, f.FilledQty)
		e.gate.OnUnmatchedFill(f)
	}
}

// ---------------------------------------------------------------------------
// 清理

func (e *Engine) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cleanup(e.now())
		}
	}
}

// cleanup 移除超过保留期的终态任务，并淘汰 holding 区的过期成交。
// 任务与其 ExchangeOrderID 反向索引在同一临界区内删除。
func (e *Engine) cleanup(now time.Time) {
	var expired []domain.FillEvent

	e.mu.Lock()
	for taskID, entry := range e.tasks {
		if !entry.task.State.IsTerminal() {
			continue
		}
		if now.Sub(entry.task.LastUpdatedAt) <= e.cfg.CleanupGrace {
			continue
		}
		exID := entry.task.ExchangeOrderID
		// holding 区还有同 ID 的成交时不清理，等它们被吸收或过期
		if exID != "" && len(e.held[exID]) > 0 {
			continue
		}
		delete(e.tasks, taskID)
		if exID != "" {
			delete(e.byExchangeID, exID)
		}
	}

	for exID, fills := range e.held {
		kept := fills[:0]
		for _, h := range fills {
			if now.Sub(h.at) > e.cfg.PendingFillTTL {
				expired = append(expired, h.fill)
			} else {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(e.held, exID)
		} else {
			e.held[exID] = kept
		}
	}
	e.mu.Unlock()

	for _, fill := range expired {
		e.cUnreconciled.Add(1)
		e.log.Errorf("成交在 holding 区超时仍无归属: exchange_order_id=%s qty=%s",
			fill.ExchangeOrderID, fill.FilledQty)
		e.gate.OnUnmatchedFill(fill)
	}
}

// ---------------------------------------------------------------------------

func (e *Engine) publish(topic events.Topic, payload interface{}) {
	if e.bus != nil {
		e.bus.Publish(topic, payload)
	}
}

func (e *Engine) publishTask(topic events.Topic, snap domain.OrderTask) {
	e.publish(topic, events.OrderEvent{
		TaskID:          snap.TaskID,
		ExchangeOrderID: snap.ExchangeOrderID,
		Symbol:          snap.Symbol,
		Side:            snap.Side,
		State:           snap.State,
		FilledQty:       snap.FilledQuantity,
		AvgFillPrice:    snap.AvgFillPrice,
		Reason:          snap.Reason,
	})
}
