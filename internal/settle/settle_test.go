package settle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const unit = 1_000_000 // 1.0 in micro-units

func TestPayoutProportionalSplit(t *testing.T) {
	// 2.0 on YES vs 1.0 on NO, YES wins, 2% fee:
	// share = floor(2*1/2) = 1.0, fee = floor(1.0*200/10000) = 0.02,
	// payout = 2 + 1 - 0.02 = 2.98.
	pools := [2]int64{2 * unit, 1 * unit}

	payout, fee := Payout(2*unit, pools, 0, 200)
	assert.Equal(t, int64(2_980_000), payout)
	assert.Equal(t, int64(20_000), fee)
}

func TestPayoutZeroLosingPool(t *testing.T) {
	// Everyone bet the winning side: principal back, no profit, no fee.
	pools := [2]int64{3 * unit, 0}

	payout, fee := Payout(2*unit, pools, 0, 200)
	assert.Equal(t, int64(2*unit), payout)
	assert.Zero(t, fee)

	payout, fee = Payout(1*unit, pools, 0, 200)
	assert.Equal(t, int64(1*unit), payout)
	assert.Zero(t, fee)
}

func TestShareFloorsTowardPlatform(t *testing.T) {
	// 1/3 of a 1.0 losing pool: floor(1_000_000/3) = 333_333, never rounded up.
	assert.Equal(t, int64(333_333), Share(1*unit, 1*unit, 3*unit))

	// Dust case: share smaller than one micro-unit floors to zero.
	assert.Zero(t, Share(1, 1, 10))
}

func TestShareLargePoolsNoOverflow(t *testing.T) {
	// amount * losingPool overflows int64; big.Int keeps the quotient exact.
	amount := int64(5_000_000_000 * unit)
	losing := int64(9_000_000_000 * unit)
	winning := int64(10_000_000_000 * unit)

	assert.Equal(t, int64(4_500_000_000*unit), Share(amount, losing, winning))
}

func TestFee(t *testing.T) {
	assert.Equal(t, int64(20_000), Fee(1*unit, 200))
	assert.Equal(t, int64(100_000), Fee(1*unit, MaxFeeBps))
	assert.Zero(t, Fee(0, 200))
	assert.Zero(t, Fee(1*unit, 0))
	// Sub-bps profit floors to zero fee.
	assert.Zero(t, Fee(49, 200))
}

func TestFeeLargeProfitNoOverflow(t *testing.T) {
	// profit * feeBps overflows int64 at pool sizes pools can accumulate to;
	// big.Int keeps the fee exact and non-negative.
	profit := int64(9_300_000_000_000_000)

	fee := Fee(profit, MaxFeeBps)
	assert.Equal(t, int64(930_000_000_000_000), fee)
	assert.GreaterOrEqual(t, fee, int64(0))
}

func TestPayoutLargePoolsBounded(t *testing.T) {
	// A whale's claim against huge accumulated pools stays within principal
	// plus profit, with the fee taken out rather than added back.
	amount := int64(1_000_000_000_000_000)
	pools := [2]int64{1_000_000_000_000_000, 9_300_000_000_000_000}

	payout, fee := Payout(amount, pools, 0, MaxFeeBps)
	assert.Equal(t, int64(930_000_000_000_000), fee)
	assert.Equal(t, int64(9_370_000_000_000_000), payout)
	assert.LessOrEqual(t, payout, amount+pools[1])
}

func TestConservationAcrossWinners(t *testing.T) {
	// Two winners split a losing pool; total payouts plus fees never exceed
	// the market's total pool.
	pools := [2]int64{3 * unit, 2 * unit}
	feeBps := int64(500)

	p1, f1 := Payout(2*unit, pools, 0, feeBps)
	p2, f2 := Payout(1*unit, pools, 0, feeBps)

	total := pools[0] + pools[1]
	assert.LessOrEqual(t, p1+p2+f1+f2, total)
	// Winners always get at least their principal back.
	assert.GreaterOrEqual(t, p1, int64(2*unit))
	assert.GreaterOrEqual(t, p2, int64(1*unit))
}

func TestOdds(t *testing.T) {
	// Empty market defaults to 2.0x/2.0x.
	assert.Equal(t, [2]float64{2.0, 2.0}, Odds([2]int64{0, 0}))

	// One-sided market: the empty side keeps the default.
	odds := Odds([2]int64{4 * unit, 0})
	assert.Equal(t, 1.0, odds[0])
	assert.Equal(t, 2.0, odds[1])

	// Balanced pools pay 2x either way.
	assert.Equal(t, [2]float64{2.0, 2.0}, Odds([2]int64{5 * unit, 5 * unit}))

	// 3:1 pools.
	odds = Odds([2]int64{3 * unit, 1 * unit})
	assert.InDelta(t, 4.0/3.0, odds[0], 1e-9)
	assert.InDelta(t, 4.0, odds[1], 1e-9)
}
