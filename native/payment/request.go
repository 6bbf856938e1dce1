package payment

import (
	"math/big"

	"escrowchain/core/events"
)

// RequestPayment records an unfunded request from recipient to payer. No
// funds move until the payer accepts.
func (e *Engine) RequestPayment(recipient, payer [20]byte, asset string, amount *big.Int) (*Payment, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	normalized, err := e.validateTerms(payer, recipient, asset, amount)
	if err != nil {
		return nil, err
	}
	if err := e.ensureVacant(payer, recipient); err != nil {
		return nil, err
	}
	p := &Payment{
		Payer:     payer,
		Recipient: recipient,
		Asset:     normalized,
		Amount:    cloneBigInt(amount),
		State:     StatePaymentRequested,
		Resolver:  e.params.Resolver,
		CreatedAt: e.height(),
	}
	if err := e.state.PaymentPut(p); err != nil {
		return nil, err
	}
	e.emit(events.PaymentRequestCreated{From: payer, To: recipient})
	return p.Clone(), nil
}

// AcceptAndPay funds a pending request and releases it to the recipient in
// one step.
func (e *Engine) AcceptAndPay(payer, recipient [20]byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	p, ok, err := e.state.PaymentGet(payer, recipient)
	if err != nil {
		return err
	}
	if !ok || p == nil || p.State != StatePaymentRequested {
		return ErrRequestNotFound
	}
	if err := e.ledger.Lock(p.Asset, payer, p.Amount); err != nil {
		return err
	}
	if err := e.ledger.TransferLocked(p.Asset, payer, recipient, p.Amount); err != nil {
		return err
	}
	if err := e.state.PaymentDelete(payer, recipient); err != nil {
		return err
	}
	e.emit(events.PaymentRequestCompleted{From: payer, To: recipient})
	return nil
}
