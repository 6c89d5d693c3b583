package credit

import (
	"math/big"

	"creditnet/crypto"
)

// Market captures the pooled accounting state for a single credit market.
// Amount values are denominated in wei and expressed as big integers to keep
// deterministic precision across accruals.
type Market struct {
	// TotalSupplyAssets is the aggregate asset value currently credited to
	// suppliers, including accrued interest and net of markdowns.
	TotalSupplyAssets *big.Int
	// TotalSupplyShares is the outstanding supply share count.
	TotalSupplyShares *big.Int
	// TotalBorrowAssets tracks the outstanding debt value across all
	// borrowers, including accrued interest.
	TotalBorrowAssets *big.Int
	// TotalBorrowShares is the outstanding borrow share count.
	TotalBorrowShares *big.Int
	// LastUpdate records the unix timestamp of the last base-rate accrual.
	LastUpdate int64
	// CreatedAt is the market genesis timestamp; the first payment cycle
	// implicitly starts here.
	CreatedAt int64
	// FeeRateBps defines the share of accrued interest routed to the fee
	// recipient, expressed in basis points.
	FeeRateBps uint64
	// TotalMarkdownAmount is the cumulative value written down from
	// TotalSupplyAssets for defaulted positions that have not settled yet.
	TotalMarkdownAmount *big.Int
}

// Position maintains the per-account state inside a market. Accounts may hold
// supply shares, borrow shares, or both.
type Position struct {
	// Address is the unique account identifier.
	Address crypto.Address
	// SupplyShares is the account's claim on the supply side of the pool.
	SupplyShares *big.Int
	// BorrowShares is the account's share-denominated debt.
	BorrowShares *big.Int
	// CreditLimit is the borrowing ceiling granted by the credit authority.
	// The limit is a cap on debt value, not collateral.
	CreditLimit *big.Int
}

// BorrowerPremium is the per-borrower accrual anchor for the premium and
// penalty rate components layered on top of the market base rate.
type BorrowerPremium struct {
	// LastAccrualTime is the unix timestamp the premium window starts from.
	LastAccrualTime int64
	// RatePerSecond is the additive per-second premium over the base rate,
	// scaled by 1e18.
	RatePerSecond *big.Int
	// BorrowAssetsAtLastAccrual snapshots the borrower's debt value at the
	// last accrual. Dividing the current debt value by this snapshot backs
	// out the base growth the position actually experienced, so premium is
	// never applied on top of growth it already includes.
	BorrowAssetsAtLastAccrual *big.Int
}

// PaymentCycle is one entry of the append-only cycle log. A cycle's implicit
// start is the previous cycle's EndDate plus one second; cycle zero starts at
// the market's CreatedAt.
type PaymentCycle struct {
	// EndDate is the unix timestamp the cycle closed at. Strictly increasing
	// across the log, never in the future at creation time.
	EndDate int64
}

// RepaymentObligation records the most recent unpaid obligation for a
// borrower. It is overwritten, not accumulated, at each cycle close and
// cleared only by a full repayment.
type RepaymentObligation struct {
	// CycleID indexes the payment cycle that produced the obligation.
	CycleID uint64
	// AmountDue is the amount that must be repaid in full, computed as a
	// basis-points fraction of the ending balance at cycle close.
	AmountDue *big.Int
	// EndingBalance snapshots the borrower's balance the obligation was
	// computed from; the penalty rate accrues against this value.
	EndingBalance *big.Int
	// DefaultStartTime is the unix timestamp the obligation first crossed
	// into default, zero while the borrower has not defaulted.
	DefaultStartTime int64
}

// MarkdownRecord tracks the markdown currently applied to a defaulted
// borrower's debt. The market's TotalMarkdownAmount is the sum of these
// records.
type MarkdownRecord struct {
	// Amount is the value currently written down for the borrower.
	Amount *big.Int
}
