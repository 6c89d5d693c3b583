package credit

import "math/big"

const secondsPerYear = 31_536_000

// RateModel supplies the market-wide base borrow rate. The ledger consumes
// the model as an opaque function of market state; the returned value is a
// per-second rate scaled by 1e18.
type RateModel interface {
	RatePerSecond(market *Market) *big.Int
}

// KinkedRateModel derives the base rate from pool utilisation with a two
// slope curve: a gentle slope up to the kink utilisation and a steeper slope
// beyond it to pull utilisation back toward the kink.
type KinkedRateModel struct {
	// BaseRate is the minimum annual borrow rate applied at zero utilisation.
	BaseRate *big.Rat
	// Slope1 is the annual rate increase per unit of utilisation below the
	// kink.
	Slope1 *big.Rat
	// Slope2 governs the additional increase applied beyond the kink.
	Slope2 *big.Rat
	// Kink is the utilisation ratio where the slope changes.
	Kink *big.Rat
}

// NewKinkedRateModel constructs a rate model from decimal inputs, e.g. a 2%
// base rate is expressed as 0.02 and an 80% kink utilisation as 0.8.
func NewKinkedRateModel(baseRate, slope1, slope2, kink float64) *KinkedRateModel {
	model := &KinkedRateModel{
		BaseRate: new(big.Rat),
		Slope1:   new(big.Rat),
		Slope2:   new(big.Rat),
		Kink:     new(big.Rat),
	}
	model.BaseRate.SetFloat64(baseRate)
	model.Slope1.SetFloat64(slope1)
	model.Slope2.SetFloat64(slope2)
	model.Kink.SetFloat64(kink)
	return model
}

// Clone returns a deep copy of the rate model.
func (m *KinkedRateModel) Clone() *KinkedRateModel {
	if m == nil {
		return nil
	}
	clone := &KinkedRateModel{
		BaseRate: cloneRat(m.BaseRate),
		Slope1:   cloneRat(m.Slope1),
		Slope2:   cloneRat(m.Slope2),
		Kink:     cloneRat(m.Kink),
	}
	return clone
}

// Utilisation computes U = totalBorrowAssets / totalSupplyAssets. With no
// liquidity the utilisation is defined as zero.
func (m *KinkedRateModel) Utilisation(market *Market) *big.Rat {
	if market == nil || market.TotalBorrowAssets == nil || market.TotalBorrowAssets.Sign() == 0 {
		return new(big.Rat)
	}
	if market.TotalSupplyAssets == nil || market.TotalSupplyAssets.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(market.TotalBorrowAssets, market.TotalSupplyAssets)
}

// AnnualRate derives the annual borrow rate for the current utilisation.
func (m *KinkedRateModel) AnnualRate(market *Market) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	rate := cloneRat(m.BaseRate)
	utilisation := m.Utilisation(market)
	if utilisation.Sign() == 0 {
		return rate
	}

	kink := cloneRat(m.Kink)
	slope1 := cloneRat(m.Slope1)
	slope2 := cloneRat(m.Slope2)
	if kink.Sign() == 0 || utilisation.Cmp(kink) <= 0 {
		// Linear region before the kink.
		return rate.Add(rate, new(big.Rat).Mul(slope1, utilisation))
	}

	rate.Add(rate, new(big.Rat).Mul(slope1, kink))

	excess := new(big.Rat).Sub(utilisation, kink)
	if excess.Sign() < 0 {
		excess.SetInt64(0)
	}
	return rate.Add(rate, new(big.Rat).Mul(slope2, excess))
}

// RatePerSecond converts the annual rate to the per-second 1e18 fixed-point
// value consumed by the accrual paths.
func (m *KinkedRateModel) RatePerSecond(market *Market) *big.Int {
	annual := m.AnnualRate(market)
	if annual.Sign() <= 0 {
		return big.NewInt(0)
	}
	perSecond := new(big.Rat).Quo(annual, new(big.Rat).SetInt64(secondsPerYear))
	return ratToWad(perSecond)
}

func ratToWad(r *big.Rat) *big.Int {
	if r == nil || r.Sign() <= 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(wad))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}

// DefaultRateModel provides a reasonable starting configuration featuring a
// kinked curve with a modest base rate.
var DefaultRateModel = NewKinkedRateModel(0.02, 0.1, 0.75, 0.85)

// FixedRateModel returns the same per-second rate regardless of market state.
// Primarily useful for deterministic tests and bootstrap markets.
type FixedRateModel struct {
	Rate *big.Int
}

func (m *FixedRateModel) RatePerSecond(*Market) *big.Int {
	if m == nil || m.Rate == nil || m.Rate.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(m.Rate)
}
