package credit

import "math/big"

// Params groups the authority-controlled limits and windows governing credit
// activity. Durations are expressed in seconds, rates as per-second 1e18
// fixed-point values unless stated otherwise.
type Params struct {
	// MaxPremiumRatePerSecond caps the per-borrower premium rate the credit
	// authority may set.
	MaxPremiumRatePerSecond *big.Int
	// PenaltyRatePerSecond is the additional rate applied against an unpaid
	// obligation's ending balance once the grace period has lapsed.
	PenaltyRatePerSecond *big.Int
	// MinBorrowAmount rejects draws that would leave a position's debt below
	// the floor. A full repayment to exactly zero is always allowed.
	MinBorrowAmount *big.Int
	// MinPremiumAmount is the dust threshold below which a premium accrual
	// advances the clock without minting.
	MinPremiumAmount *big.Int
	// GracePeriod is the window after a cycle end during which an unpaid
	// obligation carries no penalty.
	GracePeriod int64
	// DelinquencyPeriod is the window after the grace period before the
	// borrower is considered in default.
	DelinquencyPeriod int64
	// FullMarkdownDuration is the time in default after which a position is
	// marked down to its full debt value.
	FullMarkdownDuration int64
	// MinCycleDuration enforces the minimum spacing between payment cycle
	// end dates.
	MinCycleDuration int64
	// MaxAccrualWindow caps the elapsed time counted by a single premium
	// accrual to bound compounding error on stale positions.
	MaxAccrualWindow int64
}

// DefaultParams returns the production defaults: 7 day grace, 23 day
// delinquency window, 70 day linear markdown, monthly cycles and a one year
// accrual cap. The premium cap corresponds to roughly 50% annually and the
// penalty rate to roughly 10% annually.
func DefaultParams() Params {
	return Params{
		MaxPremiumRatePerSecond: mustBigInt("15854895991"),
		PenaltyRatePerSecond:    mustBigInt("3170979198"),
		MinBorrowAmount:         mustBigInt("1000000000000000000"),
		MinPremiumAmount:        mustBigInt("1000000000000"),
		GracePeriod:             7 * 24 * 3600,
		DelinquencyPeriod:       23 * 24 * 3600,
		FullMarkdownDuration:    70 * 24 * 3600,
		MinCycleDuration:        28 * 24 * 3600,
		MaxAccrualWindow:        secondsPerYear,
	}
}

// Clone returns a deep copy of the parameter set.
func (p Params) Clone() Params {
	clone := p
	if p.MaxPremiumRatePerSecond != nil {
		clone.MaxPremiumRatePerSecond = new(big.Int).Set(p.MaxPremiumRatePerSecond)
	}
	if p.PenaltyRatePerSecond != nil {
		clone.PenaltyRatePerSecond = new(big.Int).Set(p.PenaltyRatePerSecond)
	}
	if p.MinBorrowAmount != nil {
		clone.MinBorrowAmount = new(big.Int).Set(p.MinBorrowAmount)
	}
	if p.MinPremiumAmount != nil {
		clone.MinPremiumAmount = new(big.Int).Set(p.MinPremiumAmount)
	}
	return clone
}

func (p Params) minBorrow() *big.Int {
	if p.MinBorrowAmount == nil {
		return big.NewInt(0)
	}
	return p.MinBorrowAmount
}

func (p Params) minPremium() *big.Int {
	if p.MinPremiumAmount == nil {
		return big.NewInt(0)
	}
	return p.MinPremiumAmount
}

func (p Params) penaltyRate() *big.Int {
	if p.PenaltyRatePerSecond == nil {
		return big.NewInt(0)
	}
	return p.PenaltyRatePerSecond
}
