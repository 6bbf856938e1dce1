package state

import (
	"fmt"
	"math/big"

	"escrowchain/native/payment"
)

type storedPayment struct {
	Payer     [20]byte
	Recipient [20]byte
	Asset     string
	Amount    *big.Int
	State     uint8
	Resolver  [20]byte
	Remark    []byte
	CreatedAt uint64
}

func newStoredPayment(p *payment.Payment) *storedPayment {
	return &storedPayment{
		Payer:     p.Payer,
		Recipient: p.Recipient,
		Asset:     p.Asset,
		Amount:    new(big.Int).Set(p.Amount),
		State:     uint8(p.State),
		Resolver:  p.Resolver,
		Remark:    append([]byte(nil), p.Remark...),
		CreatedAt: p.CreatedAt,
	}
}

func (s *storedPayment) toPayment() *payment.Payment {
	amount := big.NewInt(0)
	if s.Amount != nil {
		amount = new(big.Int).Set(s.Amount)
	}
	p := &payment.Payment{
		Payer:     s.Payer,
		Recipient: s.Recipient,
		Asset:     s.Asset,
		Amount:    amount,
		State:     payment.PaymentState(s.State),
		Resolver:  s.Resolver,
		CreatedAt: s.CreatedAt,
	}
	if len(s.Remark) > 0 {
		p.Remark = append([]byte(nil), s.Remark...)
	}
	return p
}

// PaymentPut validates and stores the payment under its pair key.
func (m *Manager) PaymentPut(p *payment.Payment) error {
	sanitized, err := payment.SanitizePayment(p)
	if err != nil {
		return err
	}
	return m.KVPut(PaymentKey(sanitized.Payer, sanitized.Recipient), newStoredPayment(sanitized))
}

// PaymentGet loads the payment for the pair.
func (m *Manager) PaymentGet(payer, recipient [20]byte) (*payment.Payment, bool, error) {
	var stored storedPayment
	ok, err := m.KVGet(PaymentKey(payer, recipient), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: decode payment: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toPayment(), true, nil
}

// PaymentDelete removes the payment for the pair.
func (m *Manager) PaymentDelete(payer, recipient [20]byte) error {
	return m.KVDelete(PaymentKey(payer, recipient))
}
