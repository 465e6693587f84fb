// Package settle implements the parimutuel payout arithmetic: winners split
// the losing pool pro rata to their stake, the platform takes a basis-point
// cut of profit only, and every division floors so rounding dust stays with
// the platform rather than the bettor.
package settle

import "math/big"

const (
	// FeeDenominator is the basis-point denominator (10000 = 100%).
	FeeDenominator = 10_000

	// MaxFeeBps is the platform fee ceiling (10%).
	MaxFeeBps = 1_000
)

// Share returns the bettor's proportional claim on the losing pool:
// floor(amount * losingPool / winningPool). A zero losing pool means all
// stake sat on the winning side and there is no profit to distribute.
//
// The intermediate product can exceed int64, so it is taken in big.Int.
func Share(amount, losingPool, winningPool int64) int64 {
	if losingPool == 0 || winningPool == 0 {
		return 0
	}
	num := new(big.Int).Mul(big.NewInt(amount), big.NewInt(losingPool))
	num.Quo(num, big.NewInt(winningPool))
	return num.Int64()
}

// Fee returns the platform cut of a profit amount: floor(profit * feeBps / 10000).
//
// Profit scales with the losing pool, which is unbounded, so the product is
// taken in big.Int like Share's.
func Fee(profit, feeBps int64) int64 {
	if profit <= 0 || feeBps <= 0 {
		return 0
	}
	num := new(big.Int).Mul(big.NewInt(profit), big.NewInt(feeBps))
	num.Quo(num, big.NewInt(FeeDenominator))
	return num.Int64()
}

// Payout computes the settlement for a single winning bet against frozen
// pools. Principal is always returned in full; only profit is taxed.
func Payout(amount int64, pools [2]int64, winningOption int, feeBps int64) (payout, fee int64) {
	winning := pools[winningOption]
	losing := pools[1-winningOption]

	profit := Share(amount, losing, winning)
	fee = Fee(profit, feeBps)
	return amount + profit - fee, fee
}

// Odds returns the implied multiplier totalPool/optionPool per option, with
// a 2.0x default for an empty pool (50/50 implied probability).
func Odds(pools [2]int64) [2]float64 {
	total := pools[0] + pools[1]
	odds := [2]float64{2.0, 2.0}
	for i, pool := range pools {
		if pool > 0 {
			odds[i] = float64(total) / float64(pool)
		}
	}
	return odds
}
