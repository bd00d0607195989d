package metrics

import (
	"context"

	"github.com/aakaka525-design/auto-trade/internal/events"
)

// Collect 订阅事件总线并累计计数器。
// 独立于提交/准入热路径：慢的只是这个订阅者自己的缓冲。
func Collect(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(
		events.TopicOrderSubmitted,
		events.TopicOrderFilled,
		events.TopicOrderRejected,
		events.TopicOrderCancelled,
		events.TopicOrderExpired,
		events.TopicOrderFailed,
		events.TopicRiskRejected,
		events.TopicBreakerTripped,
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
			switch ev.Topic {
			case events.TopicOrderSubmitted:
				OrdersSubmitted.Add(1)
			case events.TopicOrderFilled:
				OrdersFilled.Add(1)
			case events.TopicOrderRejected:
				OrdersRejected.Add(1)
			case events.TopicOrderCancelled:
				OrdersCancelled.Add(1)
			case events.TopicOrderExpired:
				OrdersExpired.Add(1)
			case events.TopicOrderFailed:
				OrdersFailed.Add(1)
			case events.TopicRiskRejected:
				RiskRejections.Add(1)
			case events.TopicBreakerTripped:
				BreakerTrips.Add(1)
			case events.TopicUnmatchedFill:
				UnmatchedFills.Add(1)
			case events.TopicConnectorDown:
				ConnectorDrops.Add(1)
			}
		}
	}
}
