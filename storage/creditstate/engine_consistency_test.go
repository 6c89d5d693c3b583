package creditstate

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"creditnet/core/types"
	"creditnet/crypto"
	"creditnet/native/credit"
	"creditnet/storage"
)

// newLedger wires an engine against the real rlp store so persisted records
// are observed exactly as a restart would see them.
func newLedger(t *testing.T) (*credit.Engine, *Store, *int64) {
	t.Helper()
	store := NewStore(storage.NewMemDB())
	params := credit.Params{
		MaxPremiumRatePerSecond: big.NewInt(100_000_000_000),
		PenaltyRatePerSecond:    big.NewInt(3_170_979_198),
		MinBorrowAmount:         big.NewInt(100),
		MinPremiumAmount:        big.NewInt(1),
		GracePeriod:             7 * 24 * 3600,
		DelinquencyPeriod:       23 * 24 * 3600,
		FullMarkdownDuration:    70 * 24 * 3600,
		MinCycleDuration:        28 * 24 * 3600,
		MaxAccrualWindow:        365 * 24 * 3600,
	}
	engine := credit.NewEngine(testAddr(0xF0), testAddr(0xF1), params)
	engine.SetState(store)
	engine.SetMarketID(testMarket)
	now := new(int64)
	*now = 1_700_000_000
	engine.SetClock(func() int64 { return *now })
	_, err := engine.CreateMarket(testAddr(0xF1), 0)
	require.NoError(t, err)
	return engine, store, now
}

func fundAccount(t *testing.T, store *Store, addr crypto.Address, amount int64) {
	t.Helper()
	account := types.NewAccount()
	account.Balance = big.NewInt(amount)
	require.NoError(t, store.PutAccount(addr, account))
}

func TestRejectedRepayLeavesStoreConsistent(t *testing.T) {
	engine, store, now := newLedger(t)
	authority := testAddr(0xF1)
	supplier := testAddr(0x01)
	borrower := testAddr(0x02)
	fundAccount(t, store, supplier, 1_000_000)
	fundAccount(t, store, borrower, 1_000_000)

	_, err := engine.Supply(supplier, big.NewInt(100_000))
	require.NoError(t, err)
	require.NoError(t, engine.SetCreditLine(authority, borrower, big.NewInt(100_000), big.NewInt(31_709_791_983)))
	_, err = engine.Borrow(borrower, big.NewInt(50_000), nil)
	require.NoError(t, err)

	*now += 29 * 24 * 3600
	postings := []credit.ObligationPosting{{Borrower: borrower, Bps: 5000, EndingBalance: big.NewInt(50_000)}}
	_, err = engine.CloseCycleAndPostObligations(authority, *now, postings)
	require.NoError(t, err)

	// A month of premium accrues inside the rejected call; the mint must not
	// outlive the rejection half-applied.
	*now += 10 * 24 * 3600
	_, err = engine.Repay(borrower, big.NewInt(100))
	require.ErrorContains(t, err, "full obligation")

	market, err := store.GetMarket(testMarket)
	require.NoError(t, err)
	position, err := store.GetPosition(testMarket, borrower)
	require.NoError(t, err)
	require.True(t, position.BorrowShares.Cmp(market.TotalBorrowShares) <= 0,
		"stored borrow shares %s exceed market total %s", position.BorrowShares, market.TotalBorrowShares)
	require.Equal(t, *now, market.LastUpdate, "accrued market not persisted")
}

func TestRejectedBorrowPersistsAccrual(t *testing.T) {
	engine, store, now := newLedger(t)
	authority := testAddr(0xF1)
	supplier := testAddr(0x01)
	borrower := testAddr(0x02)
	fundAccount(t, store, supplier, 1_000_000)

	_, err := engine.Supply(supplier, big.NewInt(100_000))
	require.NoError(t, err)
	require.NoError(t, engine.SetCreditLine(authority, borrower, big.NewInt(10_000), big.NewInt(31_709_791_983)))
	_, err = engine.Borrow(borrower, big.NewInt(5_000), nil)
	require.NoError(t, err)

	*now += 30 * 24 * 3600
	_, err = engine.Borrow(borrower, big.NewInt(50_000), nil)
	require.ErrorContains(t, err, "exceeds credit limit")

	market, err := store.GetMarket(testMarket)
	require.NoError(t, err)
	require.Equal(t, *now, market.LastUpdate, "accrued market not persisted")
	position, err := store.GetPosition(testMarket, borrower)
	require.NoError(t, err)
	require.True(t, position.BorrowShares.Cmp(market.TotalBorrowShares) <= 0)
}
