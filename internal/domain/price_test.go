package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceSample_Change(t *testing.T) {
	s := PriceSample{Price: KnownPrice(decimal.NewFromInt(50500))}
	_, _, ok := s.Change()
	assert.False(t, ok)

	s.Previous = KnownPrice(decimal.NewFromInt(50000))
	abs, pct, ok := s.Change()
	assert.True(t, ok)
	assert.True(t, abs.Equal(decimal.NewFromInt(500)))
	assert.True(t, pct.Equal(decimal.NewFromInt(1)))
}
