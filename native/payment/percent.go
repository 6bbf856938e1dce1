package payment

import (
	"fmt"
	"math/big"
)

// Percent is a whole percentage in [0, 100].
type Percent uint8

// MaxPercent is the share that awards the recipient the full amount.
const MaxPercent Percent = 100

// NewPercent validates v and returns it as a Percent.
func NewPercent(v uint64) (Percent, error) {
	if v > uint64(MaxPercent) {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidShare, v)
	}
	return Percent(v), nil
}

func (p Percent) Valid() bool { return p <= MaxPercent }

// Split divides amount so the recipient receives floor(amount*p/100) and the
// payer the exact remainder. The two parts always sum to amount.
func (p Percent) Split(amount *big.Int) (recipient, payer *big.Int) {
	total := cloneBigInt(amount)
	recipient = new(big.Int).Mul(total, big.NewInt(int64(p)))
	recipient.Quo(recipient, big.NewInt(int64(MaxPercent)))
	payer = new(big.Int).Sub(total, recipient)
	return recipient, payer
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
