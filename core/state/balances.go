package state

import (
	"fmt"
	"math/big"

	"escrowchain/core/types"
)

type storedBalance struct {
	Free     *big.Int
	Reserved *big.Int
}

// Balance returns the free and reserved holdings of asset for account. A
// missing entry yields a zero balance.
func (m *Manager) Balance(asset string, account [20]byte) (*types.Balance, error) {
	var stored storedBalance
	ok, err := m.KVGet(BalanceKey(asset, account), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: decode balance: %w", err)
	}
	if !ok {
		return types.NewBalance(), nil
	}
	return &types.Balance{Free: nonNil(stored.Free), Reserved: nonNil(stored.Reserved)}, nil
}

// SetBalance stores the holdings of asset for account. Zero balances are
// removed from state.
func (m *Manager) SetBalance(asset string, account [20]byte, bal *types.Balance) error {
	if bal == nil {
		bal = types.NewBalance()
	}
	free, reserved := nonNil(bal.Free), nonNil(bal.Reserved)
	if free.Sign() < 0 || reserved.Sign() < 0 {
		return fmt.Errorf("state: balance must not be negative")
	}
	if free.Sign() == 0 && reserved.Sign() == 0 {
		return m.KVDelete(BalanceKey(asset, account))
	}
	return m.KVPut(BalanceKey(asset, account), &storedBalance{Free: free, Reserved: reserved})
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
