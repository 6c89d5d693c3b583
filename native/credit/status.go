package credit

import (
	"creditnet/crypto"
)

// RepaymentStatus classifies a borrower by the age of their latest unpaid
// obligation. The progression is monotonic in unpaid time; Current is also
// the terminal state reached by full payment.
type RepaymentStatus uint8

const (
	// StatusCurrent means the borrower has no unpaid obligation.
	StatusCurrent RepaymentStatus = iota
	// StatusGracePeriod means an obligation is unpaid but inside the grace
	// window; no penalty accrues yet.
	StatusGracePeriod
	// StatusDelinquent means the grace window lapsed; the penalty rate runs.
	StatusDelinquent
	// StatusDefault means the delinquency window also lapsed; markdown
	// applies until settlement.
	StatusDefault
)

func (s RepaymentStatus) String() string {
	switch s {
	case StatusCurrent:
		return "current"
	case StatusGracePeriod:
		return "grace_period"
	case StatusDelinquent:
		return "delinquent"
	case StatusDefault:
		return "default"
	default:
		return "unknown"
	}
}

// classifyObligation derives the status from obligation age alone. With
// amountDue zero (or no obligation ever posted) the status is Current
// regardless of time.
func classifyObligation(obligation *RepaymentObligation, cycleEndDate int64, params Params, now int64) RepaymentStatus {
	if obligation == nil || obligation.AmountDue == nil || obligation.AmountDue.Sign() == 0 {
		return StatusCurrent
	}
	age := now - cycleEndDate
	switch {
	case age <= params.GracePeriod:
		return StatusGracePeriod
	case age <= params.GracePeriod+params.DelinquencyPeriod:
		return StatusDelinquent
	default:
		return StatusDefault
	}
}

// RepaymentStatusOf reports the borrower's current repayment state. The
// classification is a pure function of the stored obligation and the clock;
// it performs no accrual.
func (e *Engine) RepaymentStatusOf(borrower crypto.Address) (RepaymentStatus, error) {
	if e == nil || e.state == nil {
		return StatusCurrent, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repaymentStatus(borrower)
}

func (e *Engine) repaymentStatus(borrower crypto.Address) (RepaymentStatus, error) {
	obligation, err := e.state.GetObligation(e.marketID, borrower)
	if err != nil {
		return StatusCurrent, err
	}
	if obligation == nil || obligation.AmountDue == nil || obligation.AmountDue.Sign() == 0 {
		return StatusCurrent, nil
	}
	cycle, err := e.state.GetCycle(e.marketID, obligation.CycleID)
	if err != nil {
		return StatusCurrent, err
	}
	if cycle == nil {
		return StatusCurrent, nil
	}
	return classifyObligation(obligation, cycle.EndDate, e.params, e.clock()), nil
}
