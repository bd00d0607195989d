package ratelimit

import (
	"testing"
	"testing/quick"
)

// 属性：对任意权重序列，成功获取的总权重不超过容量加补充量，
// 且余额任何时刻不为负。
func TestPropertyGrantedNeverExceedsBudget(t *testing.T) {
	property := func(raw []uint8) bool {
		const capacity = 50.0
		// 补充速率压到极低，观察窗口内近似纯消费
		tb := NewTokenBucket(capacity, 0.01)

		granted := 0.0
		for _, r := range raw {
			w := float64(r%100) / 10.0
			if tb.TryAcquire(w) {
				granted += w
			}
			if tb.Remaining() < 0 {
				return false
			}
		}
		return granted <= capacity+1.0
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 200}); err != nil {
		t.Error(err)
	}
}
