package types

import "math/big"

// Account holds the transferable asset balance for an address. The ledger
// moves value between user accounts and the market vault; balances are wei
// denominated big integers.
type Account struct {
	Balance *big.Int
}

// NewAccount returns an account with a zeroed balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}
