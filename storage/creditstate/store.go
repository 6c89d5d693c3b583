package creditstate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"creditnet/core/types"
	"creditnet/crypto"
	"creditnet/native/credit"
	"creditnet/storage"
)

var (
	marketPrefix     = []byte("credit/market/")
	positionPrefix   = []byte("credit/position/")
	premiumPrefix    = []byte("credit/premium/")
	obligationPrefix = []byte("credit/obligation/")
	markdownPrefix   = []byte("credit/markdown/")
	cyclePrefix      = []byte("credit/cycle/")
	cycleCountPrefix = []byte("credit/cyclecount/")
	accountPrefix    = []byte("credit/account/")
)

// Store persists the credit ledger state in a key-value database using rlp
// encoded records. It implements the engine's state interface; all ledger
// logic stays in the engine.
type Store struct {
	db storage.Database
	mu sync.RWMutex
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// rlp cannot carry signed integers or unexported fields, so each record type
// has a flat storage twin with uint64 timestamps.

type storedMarket struct {
	TotalSupplyAssets   *big.Int
	TotalSupplyShares   *big.Int
	TotalBorrowAssets   *big.Int
	TotalBorrowShares   *big.Int
	LastUpdate          uint64
	CreatedAt           uint64
	FeeRateBps          uint64
	TotalMarkdownAmount *big.Int
}

type storedPosition struct {
	SupplyShares *big.Int
	BorrowShares *big.Int
	CreditLimit  *big.Int
}

type storedPremium struct {
	LastAccrualTime           uint64
	RatePerSecond             *big.Int
	BorrowAssetsAtLastAccrual *big.Int
}

type storedCycle struct {
	EndDate uint64
}

type storedObligation struct {
	CycleID          uint64
	AmountDue        *big.Int
	EndingBalance    *big.Int
	DefaultStartTime uint64
}

type storedMarkdown struct {
	Amount *big.Int
}

type storedAccount struct {
	Balance *big.Int
}

func (s *Store) GetMarket(marketID string) (*credit.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var record storedMarket
	ok, err := s.load(buildKey(marketPrefix, marketID), &record)
	if err != nil || !ok {
		return nil, err
	}
	return &credit.Market{
		TotalSupplyAssets:   orZero(record.TotalSupplyAssets),
		TotalSupplyShares:   orZero(record.TotalSupplyShares),
		TotalBorrowAssets:   orZero(record.TotalBorrowAssets),
		TotalBorrowShares:   orZero(record.TotalBorrowShares),
		LastUpdate:          int64(record.LastUpdate),
		CreatedAt:           int64(record.CreatedAt),
		FeeRateBps:          record.FeeRateBps,
		TotalMarkdownAmount: orZero(record.TotalMarkdownAmount),
	}, nil
}

func (s *Store) PutMarket(marketID string, market *credit.Market) error {
	if market == nil {
		return fmt.Errorf("creditstate: nil market")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record := storedMarket{
		TotalSupplyAssets:   orZero(market.TotalSupplyAssets),
		TotalSupplyShares:   orZero(market.TotalSupplyShares),
		TotalBorrowAssets:   orZero(market.TotalBorrowAssets),
		TotalBorrowShares:   orZero(market.TotalBorrowShares),
		LastUpdate:          uint64(market.LastUpdate),
		CreatedAt:           uint64(market.CreatedAt),
		FeeRateBps:          market.FeeRateBps,
		TotalMarkdownAmount: orZero(market.TotalMarkdownAmount),
	}
	return s.save(buildKey(marketPrefix, marketID), &record)
}

func (s *Store) GetPosition(marketID string, addr crypto.Address) (*credit.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var record storedPosition
	ok, err := s.load(buildAddrKey(positionPrefix, marketID, addr), &record)
	if err != nil || !ok {
		return nil, err
	}
	return &credit.Position{
		Address:      addr,
		SupplyShares: orZero(record.SupplyShares),
		BorrowShares: orZero(record.BorrowShares),
		CreditLimit:  orZero(record.CreditLimit),
	}, nil
}

func (s *Store) PutPosition(marketID string, position *credit.Position) error {
	if position == nil {
		return fmt.Errorf("creditstate: nil position")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record := storedPosition{
		SupplyShares: orZero(position.SupplyShares),
		BorrowShares: orZero(position.BorrowShares),
		CreditLimit:  orZero(position.CreditLimit),
	}
	return s.save(buildAddrKey(positionPrefix, marketID, position.Address), &record)
}

func (s *Store) GetPremium(marketID string, addr crypto.Address) (*credit.BorrowerPremium, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var record storedPremium
	ok, err := s.load(buildAddrKey(premiumPrefix, marketID, addr), &record)
	if err != nil || !ok {
		return nil, err
	}
	return &credit.BorrowerPremium{
		LastAccrualTime:           int64(record.LastAccrualTime),
		RatePerSecond:             orZero(record.RatePerSecond),
		BorrowAssetsAtLastAccrual: orZero(record.BorrowAssetsAtLastAccrual),
	}, nil
}

func (s *Store) PutPremium(marketID string, addr crypto.Address, premium *credit.BorrowerPremium) error {
	if premium == nil {
		return fmt.Errorf("creditstate: nil premium")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record := storedPremium{
		LastAccrualTime:           uint64(premium.LastAccrualTime),
		RatePerSecond:             orZero(premium.RatePerSecond),
		BorrowAssetsAtLastAccrual: orZero(premium.BorrowAssetsAtLastAccrual),
	}
	return s.save(buildAddrKey(premiumPrefix, marketID, addr), &record)
}

func (s *Store) GetObligation(marketID string, addr crypto.Address) (*credit.RepaymentObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var record storedObligation
	ok, err := s.load(buildAddrKey(obligationPrefix, marketID, addr), &record)
	if err != nil || !ok {
		return nil, err
	}
	return &credit.RepaymentObligation{
		CycleID:          record.CycleID,
		AmountDue:        orZero(record.AmountDue),
		EndingBalance:    orZero(record.EndingBalance),
		DefaultStartTime: int64(record.DefaultStartTime),
	}, nil
}

func (s *Store) PutObligation(marketID string, addr crypto.Address, obligation *credit.RepaymentObligation) error {
	if obligation == nil {
		return fmt.Errorf("creditstate: nil obligation")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record := storedObligation{
		CycleID:          obligation.CycleID,
		AmountDue:        orZero(obligation.AmountDue),
		EndingBalance:    orZero(obligation.EndingBalance),
		DefaultStartTime: uint64(obligation.DefaultStartTime),
	}
	return s.save(buildAddrKey(obligationPrefix, marketID, addr), &record)
}

func (s *Store) CycleCount(marketID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycleCount(marketID)
}

func (s *Store) GetCycle(marketID string, id uint64) (*credit.PaymentCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var record storedCycle
	ok, err := s.load(buildCycleKey(marketID, id), &record)
	if err != nil || !ok {
		return nil, err
	}
	return &credit.PaymentCycle{EndDate: int64(record.EndDate)}, nil
}

// AppendCycle writes the cycle at the next index and bumps the count,
// returning the new cycle's identifier.
func (s *Store) AppendCycle(marketID string, cycle *credit.PaymentCycle) (uint64, error) {
	if cycle == nil {
		return 0, fmt.Errorf("creditstate: nil cycle")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count, err := s.cycleCount(marketID)
	if err != nil {
		return 0, err
	}
	record := storedCycle{EndDate: uint64(cycle.EndDate)}
	if err := s.save(buildCycleKey(marketID, count), &record); err != nil {
		return 0, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], count+1)
	if err := s.db.Put(buildKey(cycleCountPrefix, marketID), buf[:]); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GetMarkdown(marketID string, addr crypto.Address) (*credit.MarkdownRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var record storedMarkdown
	ok, err := s.load(buildAddrKey(markdownPrefix, marketID, addr), &record)
	if err != nil || !ok {
		return nil, err
	}
	return &credit.MarkdownRecord{Amount: orZero(record.Amount)}, nil
}

func (s *Store) PutMarkdown(marketID string, addr crypto.Address, record *credit.MarkdownRecord) error {
	if record == nil {
		return fmt.Errorf("creditstate: nil markdown record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := storedMarkdown{Amount: orZero(record.Amount)}
	return s.save(buildAddrKey(markdownPrefix, marketID, addr), &stored)
}

func (s *Store) GetAccount(addr crypto.Address) (*types.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var record storedAccount
	ok, err := s.load(append(append([]byte(nil), accountPrefix...), addr.String()...), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	return &types.Account{Balance: orZero(record.Balance)}, nil
}

func (s *Store) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("creditstate: nil account")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record := storedAccount{Balance: orZero(account.Balance)}
	return s.save(append(append([]byte(nil), accountPrefix...), addr.String()...), &record)
}

func (s *Store) cycleCount(marketID string) (uint64, error) {
	raw, err := s.db.Get(buildKey(cycleCountPrefix, marketID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("creditstate: malformed cycle count")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (s *Store) load(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("creditstate: store not initialised")
	}
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("creditstate: decode record: %w", err)
	}
	return true, nil
}

func (s *Store) save(key []byte, record interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("creditstate: store not initialised")
	}
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("creditstate: encode record: %w", err)
	}
	return s.db.Put(key, encoded)
}

func buildKey(prefix []byte, marketID string) []byte {
	key := append([]byte(nil), prefix...)
	return append(key, marketID...)
}

func buildAddrKey(prefix []byte, marketID string, addr crypto.Address) []byte {
	key := buildKey(prefix, marketID)
	key = append(key, '/')
	return append(key, addr.String()...)
}

func buildCycleKey(marketID string, id uint64) []byte {
	key := buildKey(cyclePrefix, marketID)
	key = append(key, '/')
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return append(key, buf[:]...)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
