package credit

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"creditnet/core/types"
	"creditnet/crypto"
	nativecommon "creditnet/native/common"
)

var (
	errNilState                = errors.New("credit engine: state not configured")
	errNilMarket               = errors.New("credit engine: market not initialised")
	errMarketExists            = errors.New("credit engine: market already exists")
	errMarketNotConfigured     = errors.New("credit engine: market identifier not configured")
	errInvalidAmount           = errors.New("credit engine: amount must be positive")
	errZeroAddress             = errors.New("credit engine: zero address")
	errNotAuthority            = errors.New("credit engine: caller is not the credit authority")
	errInsufficientBalance     = errors.New("credit engine: insufficient balance")
	errInsufficientLiquidity   = errors.New("credit engine: insufficient liquidity")
	errInsufficientBorrow      = errors.New("credit engine: borrow converts to zero assets")
	errBelowMinimumBorrow      = errors.New("credit engine: debt would fall below minimum borrow amount")
	errCreditLimitExceeded     = errors.New("credit engine: draw exceeds credit limit")
	errNoDebtToRepay           = errors.New("credit engine: no outstanding debt to repay")
	errMustPayFullObligation   = errors.New("credit engine: repayment must cover the full obligation")
	errObligationOverpayment   = errors.New("credit engine: repayment exceeds the outstanding obligation")
	errRateAboveMaximum        = errors.New("credit engine: premium rate above maximum")
	errFutureCycleDate         = errors.New("credit engine: cycle end date is in the future")
	errCycleTooSoon            = errors.New("credit engine: cycle end date below minimum spacing")
	errNoCycle                 = errors.New("credit engine: no payment cycle exists")
	errLengthMismatch          = errors.New("credit engine: array length mismatch")
	errObligationAboveBalance  = errors.New("credit engine: obligation bps above 100%")
	errCoverExceedsDebt        = errors.New("credit engine: cover amount exceeds outstanding debt")
	errNoPremiumRecord         = errors.New("credit engine: borrower has no credit line")
	errFeeRecipientUnset       = errors.New("credit engine: fee recipient not configured")
	errMarkdownExceedsSupply   = errors.New("credit engine: markdown exceeds pool supply")
	errSettlementWithoutShares = errors.New("credit engine: borrower has no debt to settle")
)

const moduleName = "credit"

// engineState is the persistence boundary for the ledger. All mutation flows
// through the documented entry points so the market invariants stay
// enforceable in one place; the store itself carries no ledger logic.
type engineState interface {
	GetMarket(marketID string) (*Market, error)
	PutMarket(marketID string, market *Market) error
	GetPosition(marketID string, addr crypto.Address) (*Position, error)
	PutPosition(marketID string, position *Position) error
	GetPremium(marketID string, addr crypto.Address) (*BorrowerPremium, error)
	PutPremium(marketID string, addr crypto.Address, premium *BorrowerPremium) error
	GetObligation(marketID string, addr crypto.Address) (*RepaymentObligation, error)
	PutObligation(marketID string, addr crypto.Address, obligation *RepaymentObligation) error
	CycleCount(marketID string) (uint64, error)
	GetCycle(marketID string, id uint64) (*PaymentCycle, error)
	AppendCycle(marketID string, cycle *PaymentCycle) (uint64, error)
	GetMarkdown(marketID string, addr crypto.Address) (*MarkdownRecord, error)
	PutMarkdown(marketID string, addr crypto.Address, record *MarkdownRecord) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Engine orchestrates the state transitions for the credit ledger. Every
// exported entry point is atomic: the engine is a single-writer state machine
// and callers may interleave arbitrarily.
type Engine struct {
	mu sync.Mutex

	state          engineState
	vaultAddress   crypto.Address
	authority      crypto.Address
	feeRecipient   crypto.Address
	params         Params
	rateModel      RateModel
	markdownPolicy MarkdownPolicy
	marketID       string
	pauses         nativecommon.PauseView
	clock          func() int64
}

// NewEngine constructs a credit engine bound to the vault address holding
// pooled liquidity and the credit authority allowed to administer lines,
// cycles and settlements.
func NewEngine(vaultAddr, authority crypto.Address, params Params) *Engine {
	return &Engine{
		vaultAddress:   vaultAddr,
		authority:      authority,
		params:         params.Clone(),
		markdownPolicy: NewLinearMarkdownPolicy(params.FullMarkdownDuration),
		clock:          func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses installs the module pause view consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetRateModel configures the base rate model used during accrual.
func (e *Engine) SetRateModel(model RateModel) {
	if e == nil {
		return
	}
	e.rateModel = model
}

// SetMarkdownPolicy replaces the valuation policy applied to defaulted
// positions.
func (e *Engine) SetMarkdownPolicy(policy MarkdownPolicy) {
	if e == nil || policy == nil {
		return
	}
	e.markdownPolicy = policy
}

// SetFeeRecipient configures the account credited with the fee share of
// accrued interest.
func (e *Engine) SetFeeRecipient(addr crypto.Address) {
	if e == nil {
		return
	}
	e.feeRecipient = addr
}

// SetMarketID assigns the market identifier subsequent operations operate
// against.
func (e *Engine) SetMarketID(marketID string) {
	if e == nil {
		return
	}
	e.marketID = strings.TrimSpace(marketID)
}

// MarketID returns the currently configured market identifier.
func (e *Engine) MarketID() string {
	if e == nil {
		return ""
	}
	return e.marketID
}

// SetClock overrides the time source. Intended for deterministic tests.
func (e *Engine) SetClock(clock func() int64) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

// Params returns a copy of the configured parameter set.
func (e *Engine) Params() Params {
	if e == nil {
		return Params{}
	}
	return e.params.Clone()
}

// CreateMarket initialises an empty market with the given fee rate. Only the
// credit authority may create markets.
func (e *Engine) CreateMarket(caller crypto.Address, feeRateBps uint64) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAuthority(caller); err != nil {
		return nil, err
	}
	if strings.TrimSpace(e.marketID) == "" {
		return nil, errMarketNotConfigured
	}
	existing, err := e.state.GetMarket(e.marketID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errMarketExists
	}
	now := e.clock()
	market := &Market{
		TotalSupplyAssets:   big.NewInt(0),
		TotalSupplyShares:   big.NewInt(0),
		TotalBorrowAssets:   big.NewInt(0),
		TotalBorrowShares:   big.NewInt(0),
		LastUpdate:          now,
		CreatedAt:           now,
		FeeRateBps:          feeRateBps,
		TotalMarkdownAmount: big.NewInt(0),
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, err
	}
	return market, nil
}

// Supply transfers assets from the supplier into the pool and mints supply
// shares at the current exchange rate, rounding in the pool's favour. The
// minted share count is returned.
func (e *Engine) Supply(supplier crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if len(supplier.Bytes()) == 0 {
		return nil, errZeroAddress
	}

	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrueInterest(market); err != nil {
		return nil, err
	}
	// Accrual already persisted positions; the market must follow even when
	// a later check rejects the call.
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, err
	}

	mintedShares := toSupplySharesDown(amount, market.TotalSupplyAssets, market.TotalSupplyShares)
	if mintedShares.Sign() == 0 {
		return nil, errInvalidAmount
	}

	supplierAcc, err := e.loadAccount(supplier)
	if err != nil {
		return nil, err
	}
	if supplierAcc.Balance.Cmp(amount) < 0 {
		return nil, errInsufficientBalance
	}
	vaultAcc, err := e.loadAccount(e.vaultAddress)
	if err != nil {
		return nil, err
	}

	supplierAcc.Balance = new(big.Int).Sub(supplierAcc.Balance, amount)
	vaultAcc.Balance = new(big.Int).Add(vaultAcc.Balance, amount)
	if err := e.state.PutAccount(supplier, supplierAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(e.vaultAddress, vaultAcc); err != nil {
		return nil, err
	}

	position, err := e.ensurePosition(supplier)
	if err != nil {
		return nil, err
	}
	position.SupplyShares = new(big.Int).Add(position.SupplyShares, mintedShares)
	market.TotalSupplyAssets = new(big.Int).Add(market.TotalSupplyAssets, amount)
	market.TotalSupplyShares = new(big.Int).Add(market.TotalSupplyShares, mintedShares)

	if err := e.state.PutPosition(e.marketID, position); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, err
	}
	return mintedShares, nil
}

// Withdraw burns supply shares and releases the corresponding assets back to
// the supplier. The redeemed asset value is returned.
func (e *Engine) Withdraw(supplier crypto.Address, shares *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if len(supplier.Bytes()) == 0 {
		return nil, errZeroAddress
	}

	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrueInterest(market); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, err
	}

	position, err := e.ensurePosition(supplier)
	if err != nil {
		return nil, err
	}
	if position.SupplyShares.Cmp(shares) < 0 {
		return nil, errInsufficientBalance
	}

	redeemAmount := toSupplyAssetsDown(shares, market.TotalSupplyAssets, market.TotalSupplyShares)
	if redeemAmount.Sign() == 0 {
		return nil, errInvalidAmount
	}
	liquidity := e.availableLiquidity(market)
	if liquidity.Cmp(redeemAmount) < 0 {
		return nil, errInsufficientLiquidity
	}

	vaultAcc, err := e.loadAccount(e.vaultAddress)
	if err != nil {
		return nil, err
	}
	if vaultAcc.Balance.Cmp(redeemAmount) < 0 {
		return nil, errInsufficientLiquidity
	}
	supplierAcc, err := e.loadAccount(supplier)
	if err != nil {
		return nil, err
	}

	vaultAcc.Balance = new(big.Int).Sub(vaultAcc.Balance, redeemAmount)
	supplierAcc.Balance = new(big.Int).Add(supplierAcc.Balance, redeemAmount)
	if err := e.state.PutAccount(e.vaultAddress, vaultAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(supplier, supplierAcc); err != nil {
		return nil, err
	}

	position.SupplyShares = new(big.Int).Sub(position.SupplyShares, shares)
	market.TotalSupplyShares = new(big.Int).Sub(market.TotalSupplyShares, shares)
	market.TotalSupplyAssets = new(big.Int).Sub(market.TotalSupplyAssets, redeemAmount)
	if market.TotalSupplyShares.Sign() == 0 {
		// The last burn may strand a rounding remnant; shares and assets
		// reach zero together.
		market.TotalSupplyAssets = big.NewInt(0)
	}

	if err := e.state.PutPosition(e.marketID, position); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, err
	}
	return redeemAmount, nil
}

// Borrow draws assets against the borrower's credit line. Exactly one of
// assets or shares must be positive: asset draws convert to shares rounding
// up, share draws convert to assets rounding down and are rejected when they
// net zero assets after the virtual offset. The drawn asset amount is
// returned.
func (e *Engine) Borrow(borrower crypto.Address, assets, shares *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	assetsSet := assets != nil && assets.Sign() > 0
	sharesSet := shares != nil && shares.Sign() > 0
	if assetsSet == sharesSet {
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

	var drawAssets, drawShares *big.Int
	if assetsSet {
		drawAssets = new(big.Int).Set(assets)
		drawShares = toBorrowSharesUp(drawAssets, market.TotalBorrowAssets, market.TotalBorrowShares)
	} else {
		drawShares = new(big.Int).Set(shares)
		drawAssets = toBorrowAssetsDown(drawShares, market.TotalBorrowAssets, market.TotalBorrowShares)
		if drawAssets.Sign() == 0 {
			return nil, errInsufficientBorrow
		}
	}

	position, err := e.ensurePosition(borrower)
	if err != nil {
		return nil, err
	}

	projectedShares := new(big.Int).Add(position.BorrowShares, drawShares)
	projectedAssets := new(big.Int).Add(market.TotalBorrowAssets, drawAssets)
	projectedTotalShares := new(big.Int).Add(market.TotalBorrowShares, drawShares)
	projectedDebt := toBorrowAssetsUp(projectedShares, projectedAssets, projectedTotalShares)
	if projectedDebt.Cmp(e.params.minBorrow()) < 0 {
		return nil, errBelowMinimumBorrow
	}
	if position.CreditLimit == nil || projectedDebt.Cmp(position.CreditLimit) > 0 {
		return nil, errCreditLimitExceeded
	}

	liquidity := e.availableLiquidity(market)
	if liquidity.Cmp(drawAssets) < 0 {
		return nil, errInsufficientLiquidity
	}
	vaultAcc, err := e.loadAccount(e.vaultAddress)
	if err != nil {
		return nil, err
	}
	if vaultAcc.Balance.Cmp(drawAssets) < 0 {
		return nil, errInsufficientLiquidity
	}
	borrowerAcc, err := e.loadAccount(borrower)
	if err != nil {
		return nil, err
	}

	vaultAcc.Balance = new(big.Int).Sub(vaultAcc.Balance, drawAssets)
	borrowerAcc.Balance = new(big.Int).Add(borrowerAcc.Balance, drawAssets)
	if err := e.state.PutAccount(e.vaultAddress, vaultAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(borrower, borrowerAcc); err != nil {
		return nil, err
	}

	position.BorrowShares = projectedShares
	market.TotalBorrowAssets = projectedAssets
	market.TotalBorrowShares = projectedTotalShares

	if err := e.syncPremiumSnapshot(market, borrower, position); err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(e.marketID, position); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, err
	}
	return drawAssets, nil
}

// Repay transfers assets from the borrower back into the pool and burns the
// matching borrow shares. While an obligation is outstanding the payment must
// equal its AmountDue exactly: partial payments fail with
// errMustPayFullObligation, larger payments with errObligationOverpayment.
// With no outstanding obligation the payment is capped at the current debt.
// The repaid asset amount is returned.
func (e *Engine) Repay(borrower crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
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
	debt := toBorrowAssetsUp(position.BorrowShares, market.TotalBorrowAssets, market.TotalBorrowShares)
	if debt.Sign() == 0 {
		return nil, errNoDebtToRepay
	}

	obligation, err := e.state.GetObligation(e.marketID, borrower)
	if err != nil {
		return nil, err
	}
	obligationDue := obligation != nil && obligation.AmountDue != nil && obligation.AmountDue.Sign() > 0

	repayAmount := new(big.Int).Set(amount)
	if obligationDue {
		switch repayAmount.Cmp(obligation.AmountDue) {
		case -1:
			return nil, errMustPayFullObligation
		case 1:
			return nil, errObligationOverpayment
		}
		if repayAmount.Cmp(debt) > 0 {
			repayAmount = new(big.Int).Set(debt)
		}
	} else if repayAmount.Cmp(debt) > 0 {
		repayAmount = new(big.Int).Set(debt)
	}

	borrowerAcc, err := e.loadAccount(borrower)
	if err != nil {
		return nil, err
	}
	if borrowerAcc.Balance.Cmp(repayAmount) < 0 {
		return nil, errInsufficientBalance
	}
	vaultAcc, err := e.loadAccount(e.vaultAddress)
	if err != nil {
		return nil, err
	}

	borrowerAcc.Balance = new(big.Int).Sub(borrowerAcc.Balance, repayAmount)
	vaultAcc.Balance = new(big.Int).Add(vaultAcc.Balance, repayAmount)
	if err := e.state.PutAccount(borrower, borrowerAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(e.vaultAddress, vaultAcc); err != nil {
		return nil, err
	}

	burnedShares := toBorrowSharesDown(repayAmount, market.TotalBorrowAssets, market.TotalBorrowShares)
	if repayAmount.Cmp(debt) == 0 {
		// Full repayment always clears the position exactly.
		burnedShares = new(big.Int).Set(position.BorrowShares)
	}
	if burnedShares.Cmp(position.BorrowShares) > 0 {
		burnedShares = new(big.Int).Set(position.BorrowShares)
	}
	position.BorrowShares = new(big.Int).Sub(position.BorrowShares, burnedShares)
	market.TotalBorrowShares = new(big.Int).Sub(market.TotalBorrowShares, burnedShares)
	market.TotalBorrowAssets = new(big.Int).Sub(market.TotalBorrowAssets, repayAmount)
	if market.TotalBorrowAssets.Sign() < 0 {
		market.TotalBorrowAssets = big.NewInt(0)
	}
	if market.TotalBorrowShares.Sign() == 0 {
		market.TotalBorrowAssets = big.NewInt(0)
	}

	if obligationDue {
		obligation.AmountDue = big.NewInt(0)
		obligation.DefaultStartTime = 0
		if err := e.state.PutObligation(e.marketID, borrower, obligation); err != nil {
			return nil, err
		}
		if err := e.reverseMarkdown(market, borrower); err != nil {
			return nil, err
		}
	}

	if err := e.syncPremiumSnapshot(market, borrower, position); err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(e.marketID, position); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, err
	}
	return repayAmount, nil
}

// SetCreditLine installs or updates a borrower's credit limit and premium
// rate. Authority only. Any pending premium is accrued at the old rate before
// the new rate takes effect.
func (e *Engine) SetCreditLine(caller, borrower crypto.Address, creditLimit, ratePerSecond *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireAuthority(caller); err != nil {
		return err
	}
	if len(borrower.Bytes()) == 0 {
		return errZeroAddress
	}
	if creditLimit == nil || creditLimit.Sign() < 0 || ratePerSecond == nil || ratePerSecond.Sign() < 0 {
		return errInvalidAmount
	}
	if e.params.MaxPremiumRatePerSecond != nil && ratePerSecond.Cmp(e.params.MaxPremiumRatePerSecond) > 0 {
		return errRateAboveMaximum
	}

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	if err := e.accrueInterest(market); err != nil {
		return err
	}
	if err := e.accruePremium(market, borrower); err != nil {
		return err
	}

	position, err := e.ensurePosition(borrower)
	if err != nil {
		return err
	}
	position.CreditLimit = new(big.Int).Set(creditLimit)

	premium, err := e.state.GetPremium(e.marketID, borrower)
	if err != nil {
		return err
	}
	debt := toBorrowAssetsUp(position.BorrowShares, market.TotalBorrowAssets, market.TotalBorrowShares)
	if premium == nil {
		premium = &BorrowerPremium{
			LastAccrualTime:           e.clock(),
			BorrowAssetsAtLastAccrual: debt,
		}
	}
	premium.RatePerSecond = new(big.Int).Set(ratePerSecond)
	if err := e.state.PutPremium(e.marketID, borrower, premium); err != nil {
		return err
	}
	if err := e.state.PutPosition(e.marketID, position); err != nil {
		return err
	}
	return e.state.PutMarket(e.marketID, market)
}

// MarketSnapshot returns the market after bringing accrual current. The
// stored market is updated so repeated reads observe a monotonic LastUpdate.
func (e *Engine) MarketSnapshot() (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	if err := e.accrueInterest(market); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, err
	}
	return market, nil
}

// PositionSnapshot returns the stored position together with its current
// share-implied debt value.
func (e *Engine) PositionSnapshot(addr crypto.Address) (*Position, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	market, err := e.ensureMarket()
	if err != nil {
		return nil, nil, err
	}
	if err := e.accrueInterest(market); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutMarket(e.marketID, market); err != nil {
		return nil, nil, err
	}
	position, err := e.ensurePosition(addr)
	if err != nil {
		return nil, nil, err
	}
	debt := toBorrowAssetsUp(position.BorrowShares, market.TotalBorrowAssets, market.TotalBorrowShares)
	return position, debt, nil
}

// ObligationSnapshot returns the borrower's latest obligation, or nil when
// none has ever been posted.
func (e *Engine) ObligationSnapshot(addr crypto.Address) (*RepaymentObligation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if strings.TrimSpace(e.marketID) == "" {
		return nil, errMarketNotConfigured
	}
	return e.state.GetObligation(e.marketID, addr)
}

func (e *Engine) requireAuthority(caller crypto.Address) error {
	if len(e.authority.Bytes()) == 0 || !e.authority.Equal(caller) {
		return errNotAuthority
	}
	return nil
}

func (e *Engine) ensureMarket() (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if strings.TrimSpace(e.marketID) == "" {
		return nil, errMarketNotConfigured
	}
	market, err := e.state.GetMarket(e.marketID)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, errNilMarket
	}
	if market.TotalSupplyAssets == nil {
		market.TotalSupplyAssets = big.NewInt(0)
	}
	if market.TotalSupplyShares == nil {
		market.TotalSupplyShares = big.NewInt(0)
	}
	if market.TotalBorrowAssets == nil {
		market.TotalBorrowAssets = big.NewInt(0)
	}
	if market.TotalBorrowShares == nil {
		market.TotalBorrowShares = big.NewInt(0)
	}
	if market.TotalMarkdownAmount == nil {
		market.TotalMarkdownAmount = big.NewInt(0)
	}
	return market, nil
}

func (e *Engine) ensurePosition(addr crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if strings.TrimSpace(e.marketID) == "" {
		return nil, errMarketNotConfigured
	}
	position, err := e.state.GetPosition(e.marketID, addr)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{Address: addr}
	}
	if position.SupplyShares == nil {
		position.SupplyShares = big.NewInt(0)
	}
	if position.BorrowShares == nil {
		position.BorrowShares = big.NewInt(0)
	}
	if position.CreditLimit == nil {
		position.CreditLimit = big.NewInt(0)
	}
	return position, nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, errInsufficientBalance
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

func (e *Engine) availableLiquidity(market *Market) *big.Int {
	liquidity := new(big.Int).Sub(market.TotalSupplyAssets, market.TotalBorrowAssets)
	if liquidity.Sign() < 0 {
		return big.NewInt(0)
	}
	return liquidity
}

// accrueInterest rolls the market forward to the current time using the base
// rate model. It must run before any other component reads market totals so
// interest is never computed against a stale exchange rate. The accrued
// amount grows both sides of the pool; the configured fee fraction is minted
// to the fee recipient as supply shares and the remainder reaches suppliers
// through the unchanged share count. LastUpdate advances on every call,
// including zero-growth ones. Accrual never fails on arithmetic: elapsed time
// and growth factors are clamped.
func (e *Engine) accrueInterest(market *Market) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if market == nil {
		return errNilMarket
	}
	now := e.clock()
	if now <= market.LastUpdate {
		return nil
	}
	elapsed := now - market.LastUpdate
	market.LastUpdate = now

	if e.rateModel == nil || market.TotalBorrowAssets.Sign() == 0 {
		return nil
	}
	rate := e.rateModel.RatePerSecond(market)
	if rate == nil || rate.Sign() <= 0 {
		return nil
	}

	growth := compoundFactor(rate, elapsed)
	interest := wMulDown(market.TotalBorrowAssets, growth)
	if interest.Sign() == 0 {
		return nil
	}

	market.TotalBorrowAssets = new(big.Int).Add(market.TotalBorrowAssets, interest)
	market.TotalSupplyAssets = new(big.Int).Add(market.TotalSupplyAssets, interest)
	return e.mintFeeShares(market, interest)
}

// mintFeeShares credits the fee recipient with supply shares worth the fee
// fraction of the accrued amount. The share price used excludes the fee so
// the recipient does not earn on its own mint.
func (e *Engine) mintFeeShares(market *Market, accrued *big.Int) error {
	if market.FeeRateBps == 0 || accrued == nil || accrued.Sign() == 0 {
		return nil
	}
	if len(e.feeRecipient.Bytes()) == 0 {
		return errFeeRecipientUnset
	}
	feeAmount := bpsShare(accrued, market.FeeRateBps)
	if feeAmount.Sign() == 0 {
		return nil
	}
	baseAssets := new(big.Int).Sub(market.TotalSupplyAssets, feeAmount)
	feeShares := toSupplySharesDown(feeAmount, baseAssets, market.TotalSupplyShares)
	if feeShares.Sign() == 0 {
		return nil
	}
	feePosition, err := e.ensurePosition(e.feeRecipient)
	if err != nil {
		return err
	}
	feePosition.SupplyShares = new(big.Int).Add(feePosition.SupplyShares, feeShares)
	market.TotalSupplyShares = new(big.Int).Add(market.TotalSupplyShares, feeShares)
	return e.state.PutPosition(e.marketID, feePosition)
}

// syncPremiumSnapshot re-anchors the borrower's premium snapshot to the
// post-mutation debt value so the next accrual window starts clean.
func (e *Engine) syncPremiumSnapshot(market *Market, borrower crypto.Address, position *Position) error {
	premium, err := e.state.GetPremium(e.marketID, borrower)
	if err != nil {
		return err
	}
	if premium == nil {
		return nil
	}
	debt := toBorrowAssetsUp(position.BorrowShares, market.TotalBorrowAssets, market.TotalBorrowShares)
	premium.BorrowAssetsAtLastAccrual = debt
	return e.state.PutPremium(e.marketID, borrower, premium)
}
