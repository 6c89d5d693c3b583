package credit

import (
	"math/big"

	"creditnet/crypto"
	nativecommon "creditnet/native/common"
)

// ObligationPosting pairs a borrower with the basis-points fraction of their
// ending balance that falls due for the closing cycle.
type ObligationPosting struct {
	Borrower      crypto.Address
	Bps           uint64
	EndingBalance *big.Int
}

// BuildPostings zips parallel borrower, bps and ending-balance slices into
// postings, failing when the lengths disagree.
func BuildPostings(borrowers []crypto.Address, bps []uint64, endingBalances []*big.Int) ([]ObligationPosting, error) {
	if len(borrowers) != len(bps) || len(borrowers) != len(endingBalances) {
		return nil, errLengthMismatch
	}
	postings := make([]ObligationPosting, 0, len(borrowers))
	for i := range borrowers {
		postings = append(postings, ObligationPosting{
			Borrower:      borrowers[i],
			Bps:           bps[i],
			EndingBalance: endingBalances[i],
		})
	}
	return postings, nil
}

// CloseCycleAndPostObligations appends a new payment cycle ending at endDate
// and overwrites each listed borrower's repayment obligation with
// endingBalance*bps/10000. Authority only. The end date must not be in the
// future and must respect the minimum cycle spacing.
func (e *Engine) CloseCycleAndPostObligations(caller crypto.Address, endDate int64, postings []ObligationPosting) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.requireAuthority(caller); err != nil {
		return 0, err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return 0, err
	}
	if err := e.accrueInterest(market); err != nil {
		return 0, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return 0, err
	}

	now := e.clock()
	if endDate > now {
		return 0, errFutureCycleDate
	}
	count, err := e.state.CycleCount(e.marketID)
	if err != nil {
		return 0, err
	}
	previousEnd := market.CreatedAt
	if count > 0 {
		previous, err := e.state.GetCycle(e.marketID, count-1)
		if err != nil {
			return 0, err
		}
		if previous != nil {
			previousEnd = previous.EndDate
		}
	}
	if endDate-previousEnd < e.params.MinCycleDuration {
		return 0, errCycleTooSoon
	}

	cycleID, err := e.state.AppendCycle(e.marketID, &PaymentCycle{EndDate: endDate})
	if err != nil {
		return 0, err
	}
	if err := e.postObligations(cycleID, postings); err != nil {
		return 0, err
	}
	return cycleID, nil
}

// AddObligationsToLatestCycle posts obligations against the already-latest
// cycle without creating a new one. Authority only; fails when no cycle
// exists yet.
func (e *Engine) AddObligationsToLatestCycle(caller crypto.Address, postings []ObligationPosting) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.requireAuthority(caller); err != nil {
		return 0, err
	}
	market, err := e.ensureMarket()
	if err != nil {
		return 0, err
	}
	if err := e.accrueInterest(market); err != nil {
		return 0, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return 0, err
	}

	count, err := e.state.CycleCount(e.marketID)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, errNoCycle
	}
	cycleID := count - 1
	if err := e.postObligations(cycleID, postings); err != nil {
		return 0, err
	}
	return cycleID, nil
}

func (e *Engine) postObligations(cycleID uint64, postings []ObligationPosting) error {
	for _, posting := range postings {
		if len(posting.Borrower.Bytes()) == 0 {
			return errZeroAddress
		}
		if posting.Bps > 10_000 {
			return errObligationAboveBalance
		}
		if posting.EndingBalance == nil || posting.EndingBalance.Sign() < 0 {
			return errInvalidAmount
		}
		amountDue := bpsShare(posting.EndingBalance, posting.Bps)
		obligation := &RepaymentObligation{
			CycleID:       cycleID,
			AmountDue:     amountDue,
			EndingBalance: new(big.Int).Set(posting.EndingBalance),
		}
		if err := e.state.PutObligation(e.marketID, posting.Borrower, obligation); err != nil {
			return err
		}
	}
	return nil
}
