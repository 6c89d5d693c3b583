package creditstate

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"creditnet/crypto"
	"creditnet/native/credit"
	"creditnet/storage"
)

const testMarket = "credit/default"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemDB())
}

func testAddr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.CreditPrefix, raw)
}

func TestStoreMarketRoundTrip(t *testing.T) {
	store := newTestStore(t)

	missing, err := store.GetMarket(testMarket)
	require.NoError(t, err)
	require.Nil(t, missing)

	market := &credit.Market{
		TotalSupplyAssets:   big.NewInt(1_000_000),
		TotalSupplyShares:   big.NewInt(999_000),
		TotalBorrowAssets:   big.NewInt(500_000),
		TotalBorrowShares:   big.NewInt(480_000),
		LastUpdate:          1_700_000_000,
		CreatedAt:           1_690_000_000,
		FeeRateBps:          250,
		TotalMarkdownAmount: big.NewInt(42),
	}
	require.NoError(t, store.PutMarket(testMarket, market))

	loaded, err := store.GetMarket(testMarket)
	require.NoError(t, err)
	require.Equal(t, market, loaded)
}

func TestStorePositionKeyedByAddress(t *testing.T) {
	store := newTestStore(t)
	alice := testAddr(0x01)
	bob := testAddr(0x02)

	require.NoError(t, store.PutPosition(testMarket, &credit.Position{
		Address:      alice,
		SupplyShares: big.NewInt(10),
		BorrowShares: big.NewInt(3),
		CreditLimit:  big.NewInt(100),
	}))

	loaded, err := store.GetPosition(testMarket, alice)
	require.NoError(t, err)
	require.True(t, loaded.Address.Equal(alice))
	require.Equal(t, big.NewInt(10), loaded.SupplyShares)
	require.Equal(t, big.NewInt(3), loaded.BorrowShares)
	require.Equal(t, big.NewInt(100), loaded.CreditLimit)

	other, err := store.GetPosition(testMarket, bob)
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestStorePremiumRoundTrip(t *testing.T) {
	store := newTestStore(t)
	alice := testAddr(0x01)

	premium := &credit.BorrowerPremium{
		LastAccrualTime:           1_700_000_000,
		RatePerSecond:             big.NewInt(3_170_979_198),
		BorrowAssetsAtLastAccrual: big.NewInt(12_345),
	}
	require.NoError(t, store.PutPremium(testMarket, alice, premium))

	loaded, err := store.GetPremium(testMarket, alice)
	require.NoError(t, err)
	require.Equal(t, premium, loaded)
}

func TestStoreObligationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	alice := testAddr(0x01)

	missing, err := store.GetObligation(testMarket, alice)
	require.NoError(t, err)
	require.Nil(t, missing)

	obligation := &credit.RepaymentObligation{
		CycleID:          3,
		AmountDue:        big.NewInt(5_000),
		EndingBalance:    big.NewInt(100_000),
		DefaultStartTime: 1_701_000_000,
	}
	require.NoError(t, store.PutObligation(testMarket, alice, obligation))

	loaded, err := store.GetObligation(testMarket, alice)
	require.NoError(t, err)
	require.Equal(t, obligation, loaded)

	// Clearing an obligation is a plain overwrite with a zero amount.
	obligation.AmountDue = big.NewInt(0)
	require.NoError(t, store.PutObligation(testMarket, alice, obligation))
	cleared, err := store.GetObligation(testMarket, alice)
	require.NoError(t, err)
	require.Zero(t, cleared.AmountDue.Sign())
}

func TestStoreCycleLogAppendsInOrder(t *testing.T) {
	store := newTestStore(t)

	count, err := store.CycleCount(testMarket)
	require.NoError(t, err)
	require.Zero(t, count)

	first, err := store.AppendCycle(testMarket, &credit.PaymentCycle{EndDate: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(0), first)

	second, err := store.AppendCycle(testMarket, &credit.PaymentCycle{EndDate: 200})
	require.NoError(t, err)
	require.Equal(t, uint64(1), second)

	count, err = store.CycleCount(testMarket)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	cycle, err := store.GetCycle(testMarket, 1)
	require.NoError(t, err)
	require.Equal(t, int64(200), cycle.EndDate)

	absent, err := store.GetCycle(testMarket, 2)
	require.NoError(t, err)
	require.Nil(t, absent)
}

func TestStoreMarkdownRoundTrip(t *testing.T) {
	store := newTestStore(t)
	alice := testAddr(0x01)

	require.NoError(t, store.PutMarkdown(testMarket, alice, &credit.MarkdownRecord{Amount: big.NewInt(777)}))
	loaded, err := store.GetMarkdown(testMarket, alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(777), loaded.Amount)
}

func TestStoreAccountDefaultsToEmpty(t *testing.T) {
	store := newTestStore(t)
	alice := testAddr(0x01)

	account, err := store.GetAccount(alice)
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Zero(t, account.Balance.Sign())

	account.Balance = big.NewInt(9_999)
	require.NoError(t, store.PutAccount(alice, account))

	loaded, err := store.GetAccount(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9_999), loaded.Balance)
}

func TestStoreMarketsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	alice := testAddr(0x01)

	require.NoError(t, store.PutPosition("credit/a", &credit.Position{
		Address:      alice,
		SupplyShares: big.NewInt(1),
		BorrowShares: big.NewInt(0),
		CreditLimit:  big.NewInt(0),
	}))

	other, err := store.GetPosition("credit/b", alice)
	require.NoError(t, err)
	require.Nil(t, other)
}
