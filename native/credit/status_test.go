package credit

import (
	"math/big"
	"testing"
)

func TestClassifyObligation(t *testing.T) {
	params := testParams()
	cycleEnd := int64(1_700_000_000)
	unpaid := &RepaymentObligation{AmountDue: big.NewInt(500)}

	cases := []struct {
		name       string
		obligation *RepaymentObligation
		now        int64
		want       RepaymentStatus
	}{
		{"no obligation", nil, cycleEnd + 100*24*3600, StatusCurrent},
		{"paid obligation", &RepaymentObligation{AmountDue: big.NewInt(0)}, cycleEnd + 100*24*3600, StatusCurrent},
		{"nil amount due", &RepaymentObligation{}, cycleEnd + 100*24*3600, StatusCurrent},
		{"just posted", unpaid, cycleEnd, StatusGracePeriod},
		{"grace boundary inclusive", unpaid, cycleEnd + params.GracePeriod, StatusGracePeriod},
		{"ten days unpaid", unpaid, cycleEnd + 10*24*3600, StatusDelinquent},
		{"delinquency boundary inclusive", unpaid, cycleEnd + params.GracePeriod + params.DelinquencyPeriod, StatusDelinquent},
		{"past delinquency window", unpaid, cycleEnd + params.GracePeriod + params.DelinquencyPeriod + 1, StatusDefault},
		{"deep default", unpaid, cycleEnd + 365*24*3600, StatusDefault},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyObligation(tc.obligation, cycleEnd, params, tc.now)
			if got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRepaymentStatusProgression(t *testing.T) {
	env := newTestEnv(t)

	status, err := env.engine.RepaymentStatusOf(borrowerAddr)
	if err != nil || status != StatusCurrent {
		t.Fatalf("fresh borrower: status %s err %v", status, err)
	}

	env.advance(29 * 24 * 3600)
	cycleEnd := env.now
	postings := []ObligationPosting{{Borrower: borrowerAddr, Bps: 5000, EndingBalance: big.NewInt(1000)}}
	if _, err := env.engine.CloseCycleAndPostObligations(authorityAddr, cycleEnd, postings); err != nil {
		t.Fatalf("close cycle: %v", err)
	}

	steps := []struct {
		at   int64
		want RepaymentStatus
	}{
		{cycleEnd + 24*3600, StatusGracePeriod},
		{cycleEnd + 10*24*3600, StatusDelinquent},
		{cycleEnd + 40*24*3600, StatusDefault},
	}
	for _, step := range steps {
		env.now = step.at
		status, err := env.engine.RepaymentStatusOf(borrowerAddr)
		if err != nil {
			t.Fatalf("status at %d: %v", step.at, err)
		}
		if status != step.want {
			t.Fatalf("status at %d is %s, want %s", step.at, status, step.want)
		}
	}
}

func TestRepaymentStatusResetsOnFullPayment(t *testing.T) {
	env := newTestEnv(t)
	env.state.setBalance(supplierAddr, 10_000)
	env.state.setBalance(borrowerAddr, 10_000)
	env.mustSupply(t, supplierAddr, 5_000)
	env.mustSetLine(t, borrowerAddr, 5_000, 0)
	env.mustBorrow(t, borrowerAddr, 1_000)

	env.advance(29 * 24 * 3600)
	postings := []ObligationPosting{{Borrower: borrowerAddr, Bps: 5000, EndingBalance: big.NewInt(1000)}}
	if _, err := env.engine.CloseCycleAndPostObligations(authorityAddr, env.now, postings); err != nil {
		t.Fatalf("close cycle: %v", err)
	}
	env.advance(10 * 24 * 3600)
	status, _ := env.engine.RepaymentStatusOf(borrowerAddr)
	if status != StatusDelinquent {
		t.Fatalf("status %s, want delinquent", status)
	}

	if _, err := env.engine.Repay(borrowerAddr, big.NewInt(500)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	status, _ = env.engine.RepaymentStatusOf(borrowerAddr)
	if status != StatusCurrent {
		t.Fatalf("status after full payment %s, want current", status)
	}
}

func TestStatusStringNames(t *testing.T) {
	cases := map[RepaymentStatus]string{
		StatusCurrent:      "current",
		StatusGracePeriod:  "grace_period",
		StatusDelinquent:   "delinquent",
		StatusDefault:      "default",
		RepaymentStatus(9): "unknown",
	}
	for status, want := range cases {
		if status.String() != want {
			t.Fatalf("%d.String() = %q, want %q", status, status.String(), want)
		}
	}
}
