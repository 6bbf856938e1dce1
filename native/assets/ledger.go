package assets

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	coreerrors "escrowchain/core/errors"
	"escrowchain/core/types"
)

type ledgerState interface {
	Balance(asset string, account [20]byte) (*types.Balance, error)
	SetBalance(asset string, account [20]byte, bal *types.Balance) error
	AssetExists(symbol string) bool
}

// Ledger moves fungible balances between the free and reserved buckets of
// registered assets. Every method validates fully before writing, so a
// returned error leaves balances untouched.
type Ledger struct {
	state ledgerState
}

// NewLedger binds a ledger to the supplied state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

// Balance returns the holdings of asset for account.
func (l *Ledger) Balance(asset string, account [20]byte) (*types.Balance, error) {
	symbol, err := l.asset(asset)
	if err != nil {
		return nil, err
	}
	return l.state.Balance(symbol, account)
}

// Deposit credits amount to the free balance of account.
func (l *Ledger) Deposit(asset string, account [20]byte, amount *big.Int) error {
	symbol, err := l.prepare(asset, amount)
	if err != nil {
		return err
	}
	bal, err := l.state.Balance(symbol, account)
	if err != nil {
		return err
	}
	free, err := checkedAdd(bal.Free, amount)
	if err != nil {
		return err
	}
	bal.Free = free
	return l.state.SetBalance(symbol, account, bal)
}

// Lock moves amount from the free to the reserved balance of account.
func (l *Ledger) Lock(asset string, account [20]byte, amount *big.Int) error {
	symbol, err := l.prepare(asset, amount)
	if err != nil {
		return err
	}
	bal, err := l.state.Balance(symbol, account)
	if err != nil {
		return err
	}
	if bal.Free.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s free %s < %s", coreerrors.ErrInsufficientFunds, symbol, bal.Free, amount)
	}
	reserved, err := checkedAdd(bal.Reserved, amount)
	if err != nil {
		return err
	}
	bal.Free = new(big.Int).Sub(bal.Free, amount)
	bal.Reserved = reserved
	return l.state.SetBalance(symbol, account, bal)
}

// Unlock returns amount from the reserved to the free balance of account.
func (l *Ledger) Unlock(asset string, account [20]byte, amount *big.Int) error {
	symbol, err := l.prepare(asset, amount)
	if err != nil {
		return err
	}
	bal, err := l.state.Balance(symbol, account)
	if err != nil {
		return err
	}
	if bal.Reserved.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s reserved %s < %s", coreerrors.ErrInsufficientFunds, symbol, bal.Reserved, amount)
	}
	free, err := checkedAdd(bal.Free, amount)
	if err != nil {
		return err
	}
	bal.Reserved = new(big.Int).Sub(bal.Reserved, amount)
	bal.Free = free
	return l.state.SetBalance(symbol, account, bal)
}

// TransferLocked debits amount from the reserved balance of from and credits
// the free balance of to.
func (l *Ledger) TransferLocked(asset string, from, to [20]byte, amount *big.Int) error {
	symbol, err := l.prepare(asset, amount)
	if err != nil {
		return err
	}
	if from == to {
		return l.Unlock(symbol, from, amount)
	}
	src, err := l.state.Balance(symbol, from)
	if err != nil {
		return err
	}
	if src.Reserved.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s reserved %s < %s", coreerrors.ErrInsufficientFunds, symbol, src.Reserved, amount)
	}
	dst, err := l.state.Balance(symbol, to)
	if err != nil {
		return err
	}
	credited, err := checkedAdd(dst.Free, amount)
	if err != nil {
		return err
	}
	src.Reserved = new(big.Int).Sub(src.Reserved, amount)
	dst.Free = credited
	if err := l.state.SetBalance(symbol, from, src); err != nil {
		return err
	}
	return l.state.SetBalance(symbol, to, dst)
}

func (l *Ledger) asset(asset string) (string, error) {
	if l == nil || l.state == nil {
		return "", fmt.Errorf("assets: state not configured")
	}
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	if !l.state.AssetExists(symbol) {
		return "", fmt.Errorf("%w: %q", coreerrors.ErrUnknownAsset, asset)
	}
	return symbol, nil
}

func (l *Ledger) prepare(asset string, amount *big.Int) (string, error) {
	symbol, err := l.asset(asset)
	if err != nil {
		return "", err
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", coreerrors.ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return "", coreerrors.ErrBalanceOverflow
	}
	return symbol, nil
}

// checkedAdd returns a+b, rejecting results that do not fit in 256 bits.
func checkedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if _, overflow := uint256.FromBig(sum); overflow {
		return nil, coreerrors.ErrBalanceOverflow
	}
	return sum, nil
}
