package nonce

import (
	"testing"
	"testing/quick"
)

// 属性：Next 与 Resync 任意交错后，Next 的输出仍严格递增。
func TestPropertyNextStrictlyIncreasingUnderResync(t *testing.T) {
	property := func(ops []uint16) bool {
		s := NewSequencer(0)
		prev := uint64(0)
		for _, op := range ops {
			if op%3 == 0 {
				s.Resync(uint64(op))
				continue
			}
			n := s.Next()
			if n <= prev {
				return false
			}
			prev = n
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 300}); err != nil {
		t.Error(err)
	}
}
