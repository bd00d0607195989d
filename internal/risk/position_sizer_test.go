package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizerBasic(t *testing.T) {
	s := NewPositionSizer(SizerConfig{RiskPercent: d("0.02")})

	// 10000 * 2% * 1.0 / 100 = 2
	qty := s.Size(d("10000"), d("100"), 1.0)
	assert.True(t, qty.Equal(d("2")), "qty = %s", qty)
}

func TestSizerConfidenceScaling(t *testing.T) {
	s := NewPositionSizer(SizerConfig{RiskPercent: d("0.02")})

	qty := s.Size(d("10000"), d("100"), 0.5)
	assert.True(t, qty.Equal(d("1")), "qty = %s", qty)

	// 置信度截断到 [0,1]
	assert.True(t, s.Size(d("10000"), d("100"), 2.0).Equal(d("2")))
	assert.True(t, s.Size(d("10000"), d("100"), -1).IsZero())
}

func TestSizerMaxNotionalCap(t *testing.T) {
	s := NewPositionSizer(SizerConfig{RiskPercent: d("0.5"), MaxNotional: d("100")})

	// 10000 * 50% = 5000 → 被上限截到 100 → 100/100 = 1
	qty := s.Size(d("10000"), d("100"), 1.0)
	assert.True(t, qty.Equal(d("1")), "qty = %s", qty)
}

func TestSizerMinQuantity(t *testing.T) {
	s := NewPositionSizer(SizerConfig{RiskPercent: d("0.001"), MinQuantity: d("1")})

	// 10000 * 0.1% / 100 = 0.1 < 最小下单量 1
	assert.True(t, s.Size(d("10000"), d("100"), 1.0).IsZero())
}

func TestSizerDegenerateInputs(t *testing.T) {
	s := NewPositionSizer(SizerConfig{RiskPercent: d("0.02")})
	assert.True(t, s.Size(d("0"), d("100"), 1.0).IsZero())
	assert.True(t, s.Size(d("10000"), d("0"), 1.0).IsZero())
}
