package types

import "math/big"

// Balance is the per-asset holding of a single account. Reserved funds are
// locked on behalf of an escrow and cannot be spent until unlocked or
// transferred out of the lock.
type Balance struct {
	Free     *big.Int `json:"free"`
	Reserved *big.Int `json:"reserved"`
}

// NewBalance returns a zeroed balance.
func NewBalance() *Balance {
	return &Balance{Free: big.NewInt(0), Reserved: big.NewInt(0)}
}

// Clone returns a deep copy with nil amounts normalised to zero.
func (b *Balance) Clone() *Balance {
	out := NewBalance()
	if b == nil {
		return out
	}
	if b.Free != nil {
		out.Free.Set(b.Free)
	}
	if b.Reserved != nil {
		out.Reserved.Set(b.Reserved)
	}
	return out
}

// Total returns free plus reserved funds.
func (b *Balance) Total() *big.Int {
	c := b.Clone()
	return new(big.Int).Add(c.Free, c.Reserved)
}
