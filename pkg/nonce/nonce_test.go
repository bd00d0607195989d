package nonce

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStrictlyIncreasing(t *testing.T) {
	s := NewSequencer(0)
	prev := uint64(0)
	for i := 0; i < 1000; i++ {
		n := s.Next()
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestNextUniqueUnderConcurrency(t *testing.T) {
	s := NewSequencer(0)
	const goroutines = 16
	const perG = 500

	var mu sync.Mutex
	seen := make(map[uint64]bool, goroutines*perG)
	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perG)
			for i := 0; i < perG; i++ {
				local = append(local, s.Next())
			}
			mu.Lock()
			for _, n := range local {
				require.False(t, seen[n], "nonce %d 被重复发出", n)
				seen[n] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*perG)
}

func TestResyncAdvancesPastFloor(t *testing.T) {
	s := NewSequencer(10)
	s.Resync(100)
	assert.Equal(t, uint64(101), s.Next())
}

func TestResyncNeverGoesBackwards(t *testing.T) {
	s := NewSequencer(100)
	s.Resync(50)
	assert.Equal(t, uint64(101), s.Next())
}

func TestRejectedNonceNotReissued(t *testing.T) {
	s := NewSequencer(0)
	rejected := s.Next() // 假设此值被交易所拒绝
	s.Resync(rejected)
	for i := 0; i < 100; i++ {
		assert.Greater(t, s.Next(), rejected)
	}
}

func TestBookIsolatesCredentials(t *testing.T) {
	b := NewBook()
	a := b.For("key-a")
	c := b.For("key-b")

	assert.Equal(t, uint64(1), a.Next())
	assert.Equal(t, uint64(1), c.Next())
	assert.Same(t, a, b.For("key-a"))
}

func TestBookSeed(t *testing.T) {
	b := NewBook()
	s := b.Seed("key-a", 500)
	assert.Equal(t, uint64(501), s.Next())

	// 再次 Seed 只前进不后退
	b.Seed("key-a", 100)
	assert.Equal(t, uint64(502), b.For("key-a").Next())
}
