package credit

import (
	"math/big"

	"creditnet/crypto"
	nativecommon "creditnet/native/common"
)

// AccrueBorrowerPremium brings a single borrower's premium and penalty
// accrual current. The market base rate is always accrued first so the
// layered components compute against fresh totals. Borrowers without a
// credit line fail with errNoPremiumRecord.
func (e *Engine) AccrueBorrowerPremium(borrower crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	if err := e.accrueInterest(market); err != nil {
		return err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return err
	}
	premium, err := e.state.GetPremium(e.marketID, borrower)
	if err != nil {
		return err
	}
	if premium == nil {
		return errNoPremiumRecord
	}
	if err := e.accruePremium(market, borrower); err != nil {
		return err
	}
	if err := e.applyMarkdown(market, borrower); err != nil {
		return err
	}
	return e.state.PutMarket(e.marketID, market)
}

// AccrueBorrowerPremiumBatch accrues a list of borrowers in one pass. Each
// borrower is accrued independently; the outcome does not depend on the order
// of the list beyond share rounding. Borrowers without a credit line are
// skipped rather than failing the batch.
func (e *Engine) AccrueBorrowerPremiumBatch(borrowers []crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	if err := e.accrueInterest(market); err != nil {
		return err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return err
	}
	for _, borrower := range borrowers {
		if err := e.accruePremium(market, borrower); err != nil {
			return err
		}
		if err := e.applyMarkdown(market, borrower); err != nil {
			return err
		}
	}
	return e.state.PutMarket(e.marketID, market)
}

// accruePremium applies the borrower's premium and any delinquency penalty
// for the window since the last accrual. The caller must already hold the
// engine lock and have accrued the market base rate.
//
// The borrower's snapshot divides into the current debt value to back out the
// base growth the position actually experienced, so the layered amount is
// computed directly as debt * (compound(additionalRate, dt) - 1): the base
// factor cancels out of totalGrowth/baseGrowth and is never applied twice.
func (e *Engine) accruePremium(market *Market, borrower crypto.Address) error {
	premium, err := e.state.GetPremium(e.marketID, borrower)
	if err != nil {
		return err
	}
	if premium == nil {
		// No credit line, nothing layered on top of the base rate.
		return nil
	}
	now := e.clock()
	if premium.LastAccrualTime == 0 {
		premium.LastAccrualTime = now
		return e.state.PutPremium(e.marketID, borrower, premium)
	}
	elapsed := now - premium.LastAccrualTime
	if elapsed <= 0 {
		return nil
	}
	// Clamp very stale windows; the excess simply waits for the next call.
	accrualEnd := now
	if e.params.MaxAccrualWindow > 0 && elapsed > e.params.MaxAccrualWindow {
		elapsed = e.params.MaxAccrualWindow
		accrualEnd = premium.LastAccrualTime + elapsed
	}

	position, err := e.ensurePosition(borrower)
	if err != nil {
		return err
	}
	debt := toBorrowAssetsUp(position.BorrowShares, market.TotalBorrowAssets, market.TotalBorrowShares)
	if debt.Sign() == 0 {
		premium.LastAccrualTime = accrualEnd
		premium.BorrowAssetsAtLastAccrual = big.NewInt(0)
		return e.state.PutPremium(e.marketID, borrower, premium)
	}

	amount := big.NewInt(0)
	if premium.RatePerSecond != nil && premium.RatePerSecond.Sign() > 0 {
		amount = wMulDown(debt, compoundFactor(premium.RatePerSecond, elapsed))
	}

	penalty, err := e.penaltyAmount(premium.LastAccrualTime, accrualEnd, now, borrower)
	if err != nil {
		return err
	}
	amount = amount.Add(amount, penalty)

	if amount.Cmp(e.params.minPremium()) < 0 {
		// Below the dust threshold: advance the clock without minting so
		// repeated micro-accruals stay no-ops.
		premium.LastAccrualTime = accrualEnd
		return e.state.PutPremium(e.marketID, borrower, premium)
	}

	minted := toBorrowSharesUp(amount, market.TotalBorrowAssets, market.TotalBorrowShares)
	position.BorrowShares = new(big.Int).Add(position.BorrowShares, minted)
	market.TotalBorrowShares = new(big.Int).Add(market.TotalBorrowShares, minted)
	market.TotalBorrowAssets = new(big.Int).Add(market.TotalBorrowAssets, amount)
	market.TotalSupplyAssets = new(big.Int).Add(market.TotalSupplyAssets, amount)
	if err := e.mintFeeShares(market, amount); err != nil {
		return err
	}

	premium.BorrowAssetsAtLastAccrual = toBorrowAssetsUp(position.BorrowShares, market.TotalBorrowAssets, market.TotalBorrowShares)
	premium.LastAccrualTime = accrualEnd
	if err := e.state.PutPosition(e.marketID, position); err != nil {
		return err
	}
	return e.state.PutPremium(e.marketID, borrower, premium)
}

// penaltyAmount computes the penalty component for the accrual window
// [windowStart, windowEnd]. The penalty rate runs only over the portion of
// the window past the oldest unpaid obligation's grace deadline and accrues
// against the obligation's ending balance, not the live debt. A window
// straddling the deadline contributes only its post-deadline sub-duration.
func (e *Engine) penaltyAmount(windowStart, windowEnd, now int64, borrower crypto.Address) (*big.Int, error) {
	obligation, err := e.state.GetObligation(e.marketID, borrower)
	if err != nil {
		return nil, err
	}
	if obligation == nil || obligation.AmountDue == nil || obligation.AmountDue.Sign() == 0 {
		return big.NewInt(0), nil
	}
	cycle, err := e.state.GetCycle(e.marketID, obligation.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return big.NewInt(0), nil
	}
	deadline := cycle.EndDate + e.params.GracePeriod

	// First crossing into default is pinned to the deterministic boundary,
	// not the observation time, so markdown does not depend on call timing.
	defaultBoundary := deadline + e.params.DelinquencyPeriod
	if obligation.DefaultStartTime == 0 && now > defaultBoundary {
		obligation.DefaultStartTime = defaultBoundary
		if err := e.state.PutObligation(e.marketID, borrower, obligation); err != nil {
			return nil, err
		}
	}

	start := maxInt64(windowStart, deadline)
	if windowEnd <= start {
		return big.NewInt(0), nil
	}
	rate := e.params.penaltyRate()
	if rate.Sign() == 0 || obligation.EndingBalance == nil || obligation.EndingBalance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	growth := compoundFactor(rate, windowEnd-start)
	return wMulDown(obligation.EndingBalance, growth), nil
}
