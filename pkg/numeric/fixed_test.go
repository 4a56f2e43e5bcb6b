package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFloatRoundTrip(t *testing.T) {
	t.Parallel()
	tick := 0.01
	cases := []float64{100.00, 100.004, 100.005, 100.006, 99.995, 0.0, -50.125}
	for _, x := range cases {
		p := FromFloatPrice(x, tick)
		got := p.ToFloat()
		require.LessOrEqualf(t, math.Abs(got-x), tick/2+1e-9, "from_double(%v) = %v, want within %v", x, got, tick/2)
	}
}

func TestFromFloatIdempotent(t *testing.T) {
	t.Parallel()
	tick := 0.01
	p := FromFloatPrice(100.004, tick)
	p2 := FromFloatPrice(p.ToFloat(), tick)
	assert.Equal(t, p, p2)
}

func TestBankersRoundingOnTie(t *testing.T) {
	t.Parallel()
	// 0.125 with tick 0.01 -> exactly 12.5 ticks, rounds to even (12)
	p := FromFloatPrice(0.125, 0.01)
	assert.Equal(t, Price(12000000), p)
}

func TestPriceQuantityMulRescales(t *testing.T) {
	t.Parallel()
	price := FromFloatPrice(100.01, 0.01)
	qty := FromFloatQuantity(5, 1)
	vol := price.Mul(qty)
	assert.InDelta(t, 500.05, vol.ToFloat(), 1e-6)
}

func TestQuantityMulCommutes(t *testing.T) {
	t.Parallel()
	price := FromFloatPrice(99.99, 0.01)
	qty := FromFloatQuantity(10, 1)
	assert.Equal(t, price.Mul(qty), qty.Mul(price))
}

func TestDivIntStaysInTag(t *testing.T) {
	t.Parallel()
	p := FromFloatPrice(100, 0.01)
	half := p.DivInt(2)
	assert.Equal(t, FromFloatPrice(50, 0.01), half)
}

func TestRatioDimensionless(t *testing.T) {
	t.Parallel()
	a := FromFloatPrice(100, 0.01)
	b := FromFloatPrice(25, 0.01)
	assert.InDelta(t, 4.0, a.Ratio(b), 1e-9)
}

func TestAccumulatorSumsExactly(t *testing.T) {
	t.Parallel()
	var acc Accumulator
	price := FromFloatPrice(100.01, 0.01)
	for i := 0; i < 5; i++ {
		acc.Add(price.Mul(FromFloatQuantity(1, 1)))
	}
	want := price.Mul(FromFloatQuantity(5, 1))
	assert.Equal(t, want, acc.Volume())
}

func TestHalfAvoidsDivisionBias(t *testing.T) {
	t.Parallel()
	bid := FromFloatPrice(99.99, 0.01)
	ask := FromFloatPrice(100.01, 0.01)
	mid := bid.Half().Add(ask.Half())
	assert.InDelta(t, 100.00, mid.ToFloat(), 1e-6)
}
