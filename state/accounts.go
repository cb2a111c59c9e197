package state

import (
	"fmt"
	"math/big"

	"creditnet/core/types"
)

var accountPrefix = []byte("account/")

func accountKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", accountPrefix, addr))
}

// GetAccount loads the account record for addr. Missing accounts materialise
// as empty records so balance checks degrade to insufficient-balance errors at
// the engine layer.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	account := &types.Account{}
	ok, err := m.KVGet(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{}, nil
	}
	for i := range account.Balances {
		if account.Balances[i].Amount == nil {
			account.Balances[i].Amount = big.NewInt(0)
		}
	}
	return account, nil
}

// PutAccount persists the account record for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		account = &types.Account{}
	}
	return m.KVPut(accountKey(addr), account)
}
