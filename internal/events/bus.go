// Package events 提供进程内的发布订阅事件总线。
//
// 发布永不阻塞：每个订阅者持有自己的无界 FIFO 缓冲，由独立的泵
// goroutine 按序送入订阅者 channel。慢订阅者只会积压自己的缓冲，
// 不影响发布方和其他订阅者。不回放历史事件，晚订阅者只看到之后的事件。
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aakaka525-design/auto-trade/pkg/sigchan"
)

var log = logrus.WithField("component", "eventbus")

// Subscription 一个订阅者的接收端
type Subscription struct {
	id     string
	topics map[Topic]bool

	mu     sync.Mutex
	buf    []Event
	closed bool

	signal *sigchan.Chan
	ch     chan Event
	done   chan struct{}
}

// C 返回事件接收 channel；总线或订阅关闭后该 channel 被 close
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// ID 返回订阅者 ID
func (s *Subscription) ID() string {
	return s.id
}

// Close 取消订阅；缓冲中未消费的事件被丢弃
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.buf = nil
	close(s.done)
	s.mu.Unlock()
	s.signal.Emit()
}

func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()
	s.signal.Emit()
}

// pump 把缓冲中的事件按序送给订阅者
func (s *Subscription) pump() {
	defer close(s.ch)
	for {
		<-s.signal.C()
		for {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			if len(s.buf) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()

			select {
			case s.ch <- ev:
			case <-s.done:
				return
			}
		}
	}
}

// Bus 进程内事件总线
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	stopped bool
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscribe 订阅给定主题；不传主题则订阅全部
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		topics: make(map[Topic]bool, len(topics)),
		signal: sigchan.New(1),
		ch:     make(chan Event),
		done:   make(chan struct{}),
	}
	for _, t := range topics {
		sub.topics[t] = true
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.pump()
	return sub
}

// Unsubscribe 移除订阅
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
	sub.Close()
}

// Publish 发布事件（非阻塞）
func (b *Bus) Publish(topic Topic, payload interface{}) {
	ev := Event{Topic: topic, Payload: payload, Timestamp: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return
	}
	for _, sub := range b.subs {
		if len(sub.topics) == 0 || sub.topics[topic] {
			sub.enqueue(ev)
		}
	}
}

// Stop 关闭总线；所有订阅 channel 被 close，之后的 Publish 被忽略
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	log.Debugf("事件总线已停止, 清理 %d 个订阅", len(subs))
}
