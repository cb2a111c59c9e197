package types

import (
	"math/big"
	"strings"
)

// SettlementSymbol is the ledger symbol of the settlement currency.
const SettlementSymbol = "USD"

// AssetBalance holds the amount of a single asset inside an account. Balances
// are stored as a slice of pairs rather than a map so records stay RLP
// encodable.
type AssetBalance struct {
	Symbol string
	Amount *big.Int
}

// Account tracks the spendable balances for a participant or module treasury.
// The "USD" symbol carries the settlement currency; every other symbol is a
// collateral asset denominated in its smallest on-chain unit.
type Account struct {
	Nonce    uint64
	Balances []AssetBalance
}

// Clone returns a deep copy so callers can mutate freely before persisting.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce}
	clone.Balances = make([]AssetBalance, 0, len(a.Balances))
	for _, bal := range a.Balances {
		entry := AssetBalance{Symbol: bal.Symbol}
		if bal.Amount != nil {
			entry.Amount = new(big.Int).Set(bal.Amount)
		} else {
			entry.Amount = big.NewInt(0)
		}
		clone.Balances = append(clone.Balances, entry)
	}
	return clone
}

// Balance returns the stored amount for the symbol, zero when absent. The
// returned value is a copy.
func (a *Account) Balance(symbol string) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	needle := normalizeSymbol(symbol)
	for _, bal := range a.Balances {
		if normalizeSymbol(bal.Symbol) == needle {
			if bal.Amount == nil {
				return big.NewInt(0)
			}
			return new(big.Int).Set(bal.Amount)
		}
	}
	return big.NewInt(0)
}

// Credit adds amount to the symbol's balance, creating the entry when missing.
func (a *Account) Credit(symbol string, amount *big.Int) {
	if a == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	needle := normalizeSymbol(symbol)
	for i := range a.Balances {
		if normalizeSymbol(a.Balances[i].Symbol) == needle {
			current := a.Balances[i].Amount
			if current == nil {
				current = big.NewInt(0)
			}
			a.Balances[i].Amount = new(big.Int).Add(current, amount)
			return
		}
	}
	a.Balances = append(a.Balances, AssetBalance{Symbol: needle, Amount: new(big.Int).Set(amount)})
}

// Debit subtracts amount from the symbol's balance. It reports false when the
// balance is insufficient, leaving the account untouched.
func (a *Account) Debit(symbol string, amount *big.Int) bool {
	if a == nil || amount == nil || amount.Sign() <= 0 {
		return false
	}
	needle := normalizeSymbol(symbol)
	for i := range a.Balances {
		if normalizeSymbol(a.Balances[i].Symbol) == needle {
			current := a.Balances[i].Amount
			if current == nil || current.Cmp(amount) < 0 {
				return false
			}
			a.Balances[i].Amount = new(big.Int).Sub(current, amount)
			return true
		}
	}
	return false
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
