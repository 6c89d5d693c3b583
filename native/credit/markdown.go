package credit

import (
	"math/big"

	"creditnet/crypto"
	nativecommon "creditnet/native/common"
)

// MarkdownPolicy values a defaulted position's expected credit loss as a
// function of its live debt value and the time spent in default. Enabled
// gates markdown per borrower.
type MarkdownPolicy interface {
	Amount(debtValue *big.Int, timeInDefault int64) *big.Int
	Enabled(borrower crypto.Address) bool
}

// LinearMarkdownPolicy writes a position down linearly over FullDuration,
// capped at the full debt value.
type LinearMarkdownPolicy struct {
	FullDuration int64
}

// NewLinearMarkdownPolicy constructs the canonical linear policy.
func NewLinearMarkdownPolicy(fullDuration int64) *LinearMarkdownPolicy {
	return &LinearMarkdownPolicy{FullDuration: fullDuration}
}

func (p *LinearMarkdownPolicy) Amount(debtValue *big.Int, timeInDefault int64) *big.Int {
	if p == nil || p.FullDuration <= 0 || debtValue == nil || debtValue.Sign() <= 0 || timeInDefault <= 0 {
		return big.NewInt(0)
	}
	elapsed := minInt64(timeInDefault, p.FullDuration)
	return mulDivDown(debtValue, big.NewInt(elapsed), big.NewInt(p.FullDuration))
}

func (p *LinearMarkdownPolicy) Enabled(crypto.Address) bool { return true }

// applyMarkdown refreshes the markdown recorded against a borrower. While the
// borrower is in default the pool's reported supply shrinks by the delta
// between the newly computed markdown and the recorded one; the borrower's
// share-denominated debt is untouched. Deltas may be negative when the debt
// value fell since the last observation.
func (e *Engine) applyMarkdown(market *Market, borrower crypto.Address) error {
	status, err := e.repaymentStatus(borrower)
	if err != nil {
		return err
	}
	if status != StatusDefault {
		return nil
	}
	if e.markdownPolicy == nil || !e.markdownPolicy.Enabled(borrower) {
		return nil
	}
	obligation, err := e.state.GetObligation(e.marketID, borrower)
	if err != nil {
		return err
	}
	if obligation == nil {
		return nil
	}
	defaultStart := obligation.DefaultStartTime
	if defaultStart == 0 {
		// First observation of the default: pin the start to the boundary.
		cycle, err := e.state.GetCycle(e.marketID, obligation.CycleID)
		if err != nil {
			return err
		}
		if cycle == nil {
			return nil
		}
		defaultStart = cycle.EndDate + e.params.GracePeriod + e.params.DelinquencyPeriod
		obligation.DefaultStartTime = defaultStart
		if err := e.state.PutObligation(e.marketID, borrower, obligation); err != nil {
			return err
		}
	}

	position, err := e.ensurePosition(borrower)
	if err != nil {
		return err
	}
	debt := toBorrowAssetsUp(position.BorrowShares, market.TotalBorrowAssets, market.TotalBorrowShares)
	markdown := e.markdownPolicy.Amount(debt, e.clock()-defaultStart)
	if markdown.Cmp(debt) > 0 {
		markdown = new(big.Int).Set(debt)
	}

	record, err := e.ensureMarkdown(borrower)
	if err != nil {
		return err
	}
	delta := new(big.Int).Sub(markdown, record.Amount)
	if delta.Sign() == 0 {
		return nil
	}
	if delta.Sign() > 0 && delta.Cmp(market.TotalSupplyAssets) > 0 {
		return errMarkdownExceedsSupply
	}
	market.TotalSupplyAssets = new(big.Int).Sub(market.TotalSupplyAssets, delta)
	market.TotalMarkdownAmount = new(big.Int).Add(market.TotalMarkdownAmount, delta)
	record.Amount = markdown
	return e.state.PutMarkdown(e.marketID, borrower, record)
}

// reverseMarkdown restores any recorded markdown to the pool, used when a
// defaulted obligation is repaid in full.
func (e *Engine) reverseMarkdown(market *Market, borrower crypto.Address) error {
	record, err := e.ensureMarkdown(borrower)
	if err != nil {
		return err
	}
	if record.Amount.Sign() == 0 {
		return nil
	}
	market.TotalSupplyAssets = new(big.Int).Add(market.TotalSupplyAssets, record.Amount)
	market.TotalMarkdownAmount = new(big.Int).Sub(market.TotalMarkdownAmount, record.Amount)
	if market.TotalMarkdownAmount.Sign() < 0 {
		market.TotalMarkdownAmount = big.NewInt(0)
	}
	record.Amount = big.NewInt(0)
	return e.state.PutMarkdown(e.marketID, borrower, record)
}

// SettleAccount finalises a written-off position. Authority only and one-way:
// accrual is brought current, the borrower's debt minus any external cover
// contribution is written off against the pool, their borrow shares and
// recorded markdown are zeroed and the obligation is cleared. The written-off
// amount is returned.
func (e *Engine) SettleAccount(caller, borrower crypto.Address, coverAmount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.requireAuthority(caller); err != nil {
		return nil, err
	}
	if coverAmount == nil {
		coverAmount = big.NewInt(0)
	}
	if coverAmount.Sign() < 0 {
		return nil, errInvalidAmount
	}

	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrueInterest(market); err != nil {
		return nil, err
	}
	if err := e.accruePremium(market, borrower); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, err
	}

	position, err := e.ensurePosition(borrower)
	if err != nil {
		return nil, err
	}
	if position.BorrowShares.Sign() == 0 {
		return nil, errSettlementWithoutShares
	}
	debt := toBorrowAssetsUp(position.BorrowShares, market.TotalBorrowAssets, market.TotalBorrowShares)
	if coverAmount.Cmp(debt) > 0 {
		return nil, errCoverExceedsDebt
	}
	writeOff := new(big.Int).Sub(debt, coverAmount)

	// The recorded markdown already lowered the pool; back it out first so
	// the final write-off lands exactly once.
	if err := e.reverseMarkdown(market, borrower); err != nil {
		return nil, err
	}

	market.TotalBorrowShares = new(big.Int).Sub(market.TotalBorrowShares, position.BorrowShares)
	market.TotalBorrowAssets = new(big.Int).Sub(market.TotalBorrowAssets, debt)
	if market.TotalBorrowAssets.Sign() < 0 {
		market.TotalBorrowAssets = big.NewInt(0)
	}
	if market.TotalBorrowShares.Sign() == 0 {
		market.TotalBorrowAssets = big.NewInt(0)
	}
	market.TotalSupplyAssets = new(big.Int).Sub(market.TotalSupplyAssets, writeOff)
	if market.TotalSupplyAssets.Sign() < 0 {
		market.TotalSupplyAssets = big.NewInt(0)
	}
	position.BorrowShares = big.NewInt(0)

	obligation, err := e.state.GetObligation(e.marketID, borrower)
	if err != nil {
		return nil, err
	}
	if obligation != nil && obligation.AmountDue != nil && obligation.AmountDue.Sign() > 0 {
		obligation.AmountDue = big.NewInt(0)
		if err := e.state.PutObligation(e.marketID, borrower, obligation); err != nil {
			return nil, err
		}
	}

	premium, err := e.state.GetPremium(e.marketID, borrower)
	if err != nil {
		return nil, err
	}
	if premium != nil {
		premium.BorrowAssetsAtLastAccrual = big.NewInt(0)
		premium.LastAccrualTime = e.clock()
		if err := e.state.PutPremium(e.marketID, borrower, premium); err != nil {
			return nil, err
		}
	}

	if err := e.state.PutPosition(e.marketID, position); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, err
	}
	return writeOff, nil
}

func (e *Engine) ensureMarkdown(borrower crypto.Address) (*MarkdownRecord, error) {
	record, err := e.state.GetMarkdown(e.marketID, borrower)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &MarkdownRecord{}
	}
	if record.Amount == nil {
		record.Amount = big.NewInt(0)
	}
	return record, nil
}
