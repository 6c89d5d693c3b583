package credit

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	wad         = big.NewInt(1_000_000_000_000_000_000) // 1e18 fixed-point scale
	// Virtual offsets added to both sides of every share conversion. They pin
	// the initial exchange rate and keep a first depositor from skewing the
	// rate with a dust deposit.
	virtualShares = big.NewInt(1_000_000)
	virtualAssets = big.NewInt(1)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDivDown computes a*b/denominator rounding toward zero.
func mulDivDown(a, b, denominator *big.Int) *big.Int {
	if a == nil || b == nil || denominator == nil || denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, denominator)
}

// mulDivUp computes a*b/denominator rounding away from zero.
func mulDivUp(a, b, denominator *big.Int) *big.Int {
	if a == nil || b == nil || denominator == nil || denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, new(big.Int).Sub(denominator, big.NewInt(1)))
	return product.Quo(product, denominator)
}

func wMulDown(a, b *big.Int) *big.Int { return mulDivDown(a, b, wad) }

// toSupplySharesDown converts a supply asset amount to shares, rounding down
// so the pool keeps the remainder.
func toSupplySharesDown(assets, totalAssets, totalShares *big.Int) *big.Int {
	return mulDivDown(assets, addVirtualShares(totalShares), addVirtualAssets(totalAssets))
}

// toSupplyAssetsDown converts supply shares back to assets, rounding down.
func toSupplyAssetsDown(shares, totalAssets, totalShares *big.Int) *big.Int {
	return mulDivDown(shares, addVirtualAssets(totalAssets), addVirtualShares(totalShares))
}

// toBorrowSharesUp converts a borrow asset amount to shares, rounding up so
// the borrower owes at least the nominal amount.
func toBorrowSharesUp(assets, totalAssets, totalShares *big.Int) *big.Int {
	return mulDivUp(assets, addVirtualShares(totalShares), addVirtualAssets(totalAssets))
}

// toBorrowSharesDown converts a repaid asset amount to shares, rounding down
// so the burn never exceeds what the payment covers.
func toBorrowSharesDown(assets, totalAssets, totalShares *big.Int) *big.Int {
	return mulDivDown(assets, addVirtualShares(totalShares), addVirtualAssets(totalAssets))
}

// toBorrowAssetsUp converts borrow shares to the debt value owed, rounding up
// in the pool's favour.
func toBorrowAssetsUp(shares, totalAssets, totalShares *big.Int) *big.Int {
	return mulDivUp(shares, addVirtualAssets(totalAssets), addVirtualShares(totalShares))
}

// toBorrowAssetsDown converts borrow shares to assets, rounding down. Used to
// detect draws that net zero assets after the virtual offset.
func toBorrowAssetsDown(shares, totalAssets, totalShares *big.Int) *big.Int {
	return mulDivDown(shares, addVirtualAssets(totalAssets), addVirtualShares(totalShares))
}

func addVirtualShares(totalShares *big.Int) *big.Int {
	if totalShares == nil {
		return new(big.Int).Set(virtualShares)
	}
	return new(big.Int).Add(totalShares, virtualShares)
}

func addVirtualAssets(totalAssets *big.Int) *big.Int {
	if totalAssets == nil {
		return new(big.Int).Set(virtualAssets)
	}
	return new(big.Int).Add(totalAssets, virtualAssets)
}

// compoundFactor approximates e^(rate*elapsed) - 1 with a three-term Taylor
// expansion, all terms rounded down. The rate is a per-second value scaled by
// 1e18. This is the single source of truth for compounding: every component
// that layers growth on top of the base rate must use the same expansion.
func compoundFactor(ratePerSecond *big.Int, elapsed int64) *big.Int {
	if ratePerSecond == nil || ratePerSecond.Sign() <= 0 || elapsed <= 0 {
		return big.NewInt(0)
	}
	x := new(big.Int).Mul(ratePerSecond, big.NewInt(elapsed))
	second := mulDivDown(x, x, new(big.Int).Lsh(wad, 1))
	third := mulDivDown(second, x, new(big.Int).Mul(wad, big.NewInt(3)))
	sum := new(big.Int).Add(x, second)
	return sum.Add(sum, third)
}

func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	return mulDivDown(amount, new(big.Int).SetUint64(bps), basisPoints)
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
