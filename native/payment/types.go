package payment

import (
	"fmt"
	"math/big"
	"strings"
)

// PaymentState represents the lifecycle states of a live payment. Released,
// cancelled and resolved payments are removed from storage rather than kept
// in a terminal state.
type PaymentState uint8

const (
	StateCreated PaymentState = iota
	StateRefundRequested
	StateDisputed
	// StatePaymentRequested marks a recipient-issued request that has not been
	// funded yet. No funds are locked while a payment is in this state.
	StatePaymentRequested
)

// Valid reports whether the state value is within the supported range.
func (s PaymentState) Valid() bool {
	switch s {
	case StateCreated, StateRefundRequested, StateDisputed, StatePaymentRequested:
		return true
	default:
		return false
	}
}

// Funded reports whether funds are locked for a payment in this state.
func (s PaymentState) Funded() bool {
	return s.Valid() && s != StatePaymentRequested
}

func (s PaymentState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRefundRequested:
		return "refund_requested"
	case StateDisputed:
		return "disputed"
	case StatePaymentRequested:
		return "payment_requested"
	default:
		return "unknown"
	}
}

// Task identifies the deferred action stored in the scheduled-task registry.
type Task uint8

const (
	// TaskCancel returns the locked funds to the payer once due.
	TaskCancel Task = iota
)

func (t Task) Valid() bool { return t == TaskCancel }

func (t Task) String() string {
	if t == TaskCancel {
		return "cancel"
	}
	return "unknown"
}

// Payment is a single escrow keyed by the ordered (payer, recipient) pair.
type Payment struct {
	Payer     [20]byte
	Recipient [20]byte
	Asset     string
	Amount    *big.Int
	State     PaymentState
	Resolver  [20]byte
	Remark    []byte
	CreatedAt uint64
}

// Clone returns a deep copy of the payment so callers can safely mutate the
// copy without affecting the stored instance.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if p.Remark != nil {
		clone.Remark = append([]byte(nil), p.Remark...)
	}
	return &clone
}

// ScheduledTask is a pending deferred action for a payment pair.
type ScheduledTask struct {
	Payer     [20]byte
	Recipient [20]byte
	Task      Task
	When      uint64
}

func (t *ScheduledTask) Clone() *ScheduledTask {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// Due reports whether the task should run at the supplied height.
func (t *ScheduledTask) Due(now uint64) bool {
	return t != nil && t.When <= now
}

const maxAssetSymbolLength = 16

// NormalizeAsset trims and upper-cases an asset symbol, rejecting empty or
// malformed identifiers.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" || len(trimmed) > maxAssetSymbolLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidAsset, symbol)
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q", ErrInvalidAsset, symbol)
		}
	}
	return trimmed, nil
}

// SanitizePayment validates and normalises a stored payment definition,
// returning a cloned instance. The original is not mutated.
func SanitizePayment(p *Payment) (*Payment, error) {
	if p == nil {
		return nil, fmt.Errorf("payment: nil payment")
	}
	clone := p.Clone()
	asset, err := NormalizeAsset(clone.Asset)
	if err != nil {
		return nil, err
	}
	clone.Asset = asset
	if clone.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("payment: invalid state %d", clone.State)
	}
	if clone.Payer == clone.Recipient {
		return nil, ErrSelfPayment
	}
	return clone, nil
}
