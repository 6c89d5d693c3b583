package modules

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"creditnet/crypto"
	"creditnet/native/credit"
	"creditnet/observability/metrics"
)

// CreditModule adapts the credit engine to the JSON-RPC surface. It owns
// error translation and synthesises transaction hashes for mutations so
// clients get a stable receipt format.
type CreditModule struct {
	engine  *credit.Engine
	metrics *metrics.CreditMetrics
}

func NewCreditModule(engine *credit.Engine) *CreditModule {
	return &CreditModule{engine: engine, metrics: metrics.Credit()}
}

func (m *CreditModule) moduleUnavailable() *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "credit module not available"}
}

func (m *CreditModule) Supply(addr crypto.Address, amount *big.Int) (string, *big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return "", nil, m.moduleUnavailable()
	}
	minted, err := m.engine.Supply(addr, amount)
	if err != nil {
		return "", nil, m.wrapError(err)
	}
	m.metrics.ObserveSupply()
	return m.makeTxHash("supply", addr.String(), amount, minted), minted, nil
}

func (m *CreditModule) Withdraw(addr crypto.Address, shares *big.Int) (string, *big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return "", nil, m.moduleUnavailable()
	}
	redeemed, err := m.engine.Withdraw(addr, shares)
	if err != nil {
		return "", nil, m.wrapError(err)
	}
	m.metrics.ObserveWithdraw()
	return m.makeTxHash("withdraw", addr.String(), shares, redeemed), redeemed, nil
}

func (m *CreditModule) Borrow(addr crypto.Address, assets, shares *big.Int) (string, *big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return "", nil, m.moduleUnavailable()
	}
	drawn, err := m.engine.Borrow(addr, assets, shares)
	if err != nil {
		return "", nil, m.wrapError(err)
	}
	m.metrics.ObserveBorrow()
	return m.makeTxHash("borrow", addr.String(), assets, shares, drawn), drawn, nil
}

func (m *CreditModule) Repay(addr crypto.Address, amount *big.Int) (string, *big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return "", nil, m.moduleUnavailable()
	}
	repaid, err := m.engine.Repay(addr, amount)
	if err != nil {
		return "", nil, m.wrapError(err)
	}
	m.metrics.ObserveRepayment()
	return m.makeTxHash("repay", addr.String(), amount, repaid), repaid, nil
}

func (m *CreditModule) SetCreditLine(caller, borrower crypto.Address, creditLimit, ratePerSecond *big.Int) (string, *ModuleError) {
	if m == nil || m.engine == nil {
		return "", m.moduleUnavailable()
	}
	if err := m.engine.SetCreditLine(caller, borrower, creditLimit, ratePerSecond); err != nil {
		return "", m.wrapError(err)
	}
	return m.makeTxHash("set-credit-line", borrower.String(), creditLimit, ratePerSecond), nil
}

func (m *CreditModule) CloseCycle(caller crypto.Address, endDate int64, postings []credit.ObligationPosting) (uint64, *ModuleError) {
	if m == nil || m.engine == nil {
		return 0, m.moduleUnavailable()
	}
	cycleID, err := m.engine.CloseCycleAndPostObligations(caller, endDate, postings)
	if err != nil {
		return 0, m.wrapError(err)
	}
	m.metrics.ObserveCycleClosed()
	m.metrics.ObserveObligationsPosted(len(postings))
	return cycleID, nil
}

func (m *CreditModule) PostObligations(caller crypto.Address, postings []credit.ObligationPosting) (uint64, *ModuleError) {
	if m == nil || m.engine == nil {
		return 0, m.moduleUnavailable()
	}
	cycleID, err := m.engine.AddObligationsToLatestCycle(caller, postings)
	if err != nil {
		return 0, m.wrapError(err)
	}
	m.metrics.ObserveObligationsPosted(len(postings))
	return cycleID, nil
}

func (m *CreditModule) AccruePremium(borrower crypto.Address) *ModuleError {
	if m == nil || m.engine == nil {
		return m.moduleUnavailable()
	}
	if err := m.engine.AccrueBorrowerPremium(borrower); err != nil {
		return m.wrapError(err)
	}
	m.metrics.ObservePremiumAccrual("single")
	return nil
}

func (m *CreditModule) AccruePremiumBatch(borrowers []crypto.Address) *ModuleError {
	if m == nil || m.engine == nil {
		return m.moduleUnavailable()
	}
	if err := m.engine.AccrueBorrowerPremiumBatch(borrowers); err != nil {
		return m.wrapError(err)
	}
	m.metrics.ObservePremiumAccrual("batch")
	return nil
}

func (m *CreditModule) SettleAccount(caller, borrower crypto.Address, coverAmount *big.Int) (string, *big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return "", nil, m.moduleUnavailable()
	}
	writeOff, err := m.engine.SettleAccount(caller, borrower, coverAmount)
	if err != nil {
		return "", nil, m.wrapError(err)
	}
	m.metrics.ObserveSettlement()
	if market, err := m.engine.MarketSnapshot(); err == nil {
		m.observePool(market)
	}
	return m.makeTxHash("settle", borrower.String(), coverAmount, writeOff), writeOff, nil
}

func (m *CreditModule) GetMarket() (*credit.Market, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	market, err := m.engine.MarketSnapshot()
	if err != nil {
		return nil, m.wrapError(err)
	}
	m.observePool(market)
	return market, nil
}

func (m *CreditModule) GetPosition(addr crypto.Address) (*credit.Position, *big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, nil, m.moduleUnavailable()
	}
	position, debt, err := m.engine.PositionSnapshot(addr)
	if err != nil {
		return nil, nil, m.wrapError(err)
	}
	return position, debt, nil
}

func (m *CreditModule) GetObligation(addr crypto.Address) (*credit.RepaymentObligation, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, m.moduleUnavailable()
	}
	obligation, err := m.engine.ObligationSnapshot(addr)
	if err != nil {
		return nil, m.wrapError(err)
	}
	return obligation, nil
}

func (m *CreditModule) GetStatus(addr crypto.Address) (credit.RepaymentStatus, *ModuleError) {
	if m == nil || m.engine == nil {
		return credit.StatusCurrent, m.moduleUnavailable()
	}
	status, err := m.engine.RepaymentStatusOf(addr)
	if err != nil {
		return credit.StatusCurrent, m.wrapError(err)
	}
	m.metrics.ObserveStatusCheck(status.String())
	return status, nil
}

// observePool refreshes the market-level gauges from a snapshot. Precision
// loss in the float conversion is acceptable for metrics.
func (m *CreditModule) observePool(market *credit.Market) {
	if market == nil {
		return
	}
	utilisation := 0.0
	if market.TotalSupplyAssets != nil && market.TotalSupplyAssets.Sign() > 0 && market.TotalBorrowAssets != nil {
		utilisation, _ = new(big.Rat).SetFrac(market.TotalBorrowAssets, market.TotalSupplyAssets).Float64()
	}
	m.metrics.SetUtilisation(utilisation)
	markdown := 0.0
	if market.TotalMarkdownAmount != nil {
		markdown, _ = new(big.Float).SetInt(market.TotalMarkdownAmount).Float64()
	}
	m.metrics.SetMarkdownTotal(markdown)
}

func (m *CreditModule) makeTxHash(kind, primary string, amounts ...*big.Int) string {
	parts := []string{kind, primary}
	for _, amount := range amounts {
		if amount != nil {
			parts = append(parts, amount.String())
		}
	}
	parts = append(parts, fmt.Sprintf("%d", time.Now().UTC().UnixNano()))
	payload := strings.Join(parts, "|")
	hash := ethcrypto.Keccak256([]byte(payload))
	return "0x" + hex.EncodeToString(hash)
}

func (m *CreditModule) wrapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	status := http.StatusInternalServerError
	code := codeServerError
	message := err.Error()
	if strings.HasPrefix(message, "credit engine:") {
		status = http.StatusBadRequest
		code = codeInvalidParams
	}
	return &ModuleError{HTTPStatus: status, Code: code, Message: message}
}
