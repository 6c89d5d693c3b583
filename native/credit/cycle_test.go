package credit

import (
	"math/big"
	"testing"

	"creditnet/crypto"
)

func TestBuildPostingsLengthMismatch(t *testing.T) {
	_, err := BuildPostings(
		[]crypto.Address{borrowerAddr},
		[]uint64{5000, 2500},
		[]*big.Int{big.NewInt(100)},
	)
	if err != errLengthMismatch {
		t.Fatalf("expected errLengthMismatch, got %v", err)
	}
}

func TestBuildPostingsZipsSlices(t *testing.T) {
	second := testAddress(0x03)
	postings, err := BuildPostings(
		[]crypto.Address{borrowerAddr, second},
		[]uint64{5000, 10_000},
		[]*big.Int{big.NewInt(100), big.NewInt(200)},
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(postings))
	}
	if postings[1].Bps != 10_000 || postings[1].EndingBalance.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected posting %+v", postings[1])
	}
}

func TestCloseCycleRequiresAuthority(t *testing.T) {
	env := newTestEnv(t)
	env.advance(29 * 24 * 3600)
	_, err := env.engine.CloseCycleAndPostObligations(borrowerAddr, env.now, nil)
	if err != errNotAuthority {
		t.Fatalf("expected errNotAuthority, got %v", err)
	}
}

func TestCloseCycleRejectsFutureDate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now+1, nil)
	if err != errFutureCycleDate {
		t.Fatalf("expected errFutureCycleDate, got %v", err)
	}
}

func TestCloseCycleEnforcesSpacing(t *testing.T) {
	env := newTestEnv(t)

	// Too close to market creation.
	env.advance(10 * 24 * 3600)
	if _, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, nil); err != errCycleTooSoon {
		t.Fatalf("expected errCycleTooSoon, got %v", err)
	}

	env.advance(19 * 24 * 3600)
	firstEnd := env.now
	cycleID, err := env.engine.CloseCycleAndPostObligations(authorityAddr, firstEnd, nil)
	if err != nil {
		t.Fatalf("close first cycle: %v", err)
	}
	if cycleID != 0 {
		t.Fatalf("first cycle id %d, want 0", cycleID)
	}

	// Spacing is measured from the previous cycle end, not market creation.
	env.advance(14 * 24 * 3600)
	if _, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, nil); err != errCycleTooSoon {
		t.Fatalf("expected errCycleTooSoon after first cycle, got %v", err)
	}
	env.advance(15 * 24 * 3600)
	cycleID, err = env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, nil)
	if err != nil {
		t.Fatalf("close second cycle: %v", err)
	}
	if cycleID != 1 {
		t.Fatalf("second cycle id %d, want 1", cycleID)
	}
}

func TestCloseCycleRejectsBpsAboveFull(t *testing.T) {
	env := newTestEnv(t)
	env.advance(29 * 24 * 3600)
	postings := []ObligationPosting{{Borrower: borrowerAddr, Bps: 10_001, EndingBalance: big.NewInt(1000)}}
	if _, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, postings); err != errObligationAboveBalance {
		t.Fatalf("expected errObligationAboveBalance, got %v", err)
	}
}

func TestCloseCyclePostsBpsShare(t *testing.T) {
	env := newTestEnv(t)
	env.advance(29 * 24 * 3600)
	postings := []ObligationPosting{
		{Borrower: borrowerAddr, Bps: 2500, EndingBalance: big.NewInt(1001)},
	}
	cycleID, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, postings)
	if err != nil {
		t.Fatalf("close cycle: %v", err)
	}
	obligation, err := env.state.GetObligation(testMarketID, borrowerAddr)
	if err != nil || obligation == nil {
		t.Fatalf("obligation missing: %v", err)
	}
	if obligation.CycleID != cycleID {
		t.Fatalf("cycle id %d, want %d", obligation.CycleID, cycleID)
	}
	// 1001 * 2500 / 10000 rounds down.
	if obligation.AmountDue.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("amount due %s, want 250", obligation.AmountDue)
	}
	if obligation.EndingBalance.Cmp(big.NewInt(1001)) != 0 {
		t.Fatalf("ending balance %s, want 1001", obligation.EndingBalance)
	}
}

func TestCloseCycleOverwritesObligation(t *testing.T) {
	env := newTestEnv(t)
	env.advance(29 * 24 * 3600)
	postings := []ObligationPosting{{Borrower: borrowerAddr, Bps: 10_000, EndingBalance: big.NewInt(500)}}
	if _, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, postings); err != nil {
		t.Fatalf("close first cycle: %v", err)
	}

	env.advance(29 * 24 * 3600)
	postings = []ObligationPosting{{Borrower: borrowerAddr, Bps: 1000, EndingBalance: big.NewInt(900)}}
	cycleID, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, postings)
	if err != nil {
		t.Fatalf("close second cycle: %v", err)
	}
	obligation, _ := env.state.GetObligation(testMarketID, borrowerAddr)
	if obligation.CycleID != cycleID || obligation.AmountDue.Cmp(big.NewInt(90)) != 0 {
		t.Fatalf("obligation not replaced: %+v", obligation)
	}
}

func TestAddObligationsRequiresExistingCycle(t *testing.T) {
	env := newTestEnv(t)
	postings := []ObligationPosting{{Borrower: borrowerAddr, Bps: 5000, EndingBalance: big.NewInt(100)}}
	if _, err := env.engine.AddObligationsToLatestCycle(authorityAddr, postings); err != errNoCycle {
		t.Fatalf("expected errNoCycle, got %v", err)
	}
}

func TestAddObligationsTargetsLatestCycle(t *testing.T) {
	env := newTestEnv(t)
	env.advance(29 * 24 * 3600)
	if _, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, nil); err != nil {
		t.Fatalf("close first cycle: %v", err)
	}
	env.advance(29 * 24 * 3600)
	if _, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, nil); err != nil {
		t.Fatalf("close second cycle: %v", err)
	}

	postings := []ObligationPosting{{Borrower: borrowerAddr, Bps: 5000, EndingBalance: big.NewInt(300)}}
	cycleID, err := env.engine.AddObligationsToLatestCycle(authorityAddr, postings)
	if err != nil {
		t.Fatalf("add obligations: %v", err)
	}
	if cycleID != 1 {
		t.Fatalf("cycle id %d, want 1", cycleID)
	}
	obligation, _ := env.state.GetObligation(testMarketID, borrowerAddr)
	if obligation == nil || obligation.CycleID != 1 || obligation.AmountDue.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("unexpected obligation %+v", obligation)
	}
}

func TestPostObligationsRejectsNegativeBalance(t *testing.T) {
	env := newTestEnv(t)
	env.advance(29 * 24 * 3600)
	postings := []ObligationPosting{{Borrower: borrowerAddr, Bps: 5000, EndingBalance: big.NewInt(-1)}}
	if _, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, postings); err != errInvalidAmount {
		t.Fatalf("expected errInvalidAmount, got %v", err)
	}
}
