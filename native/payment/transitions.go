package payment

import (
	"fmt"
	"log/slog"
	"math/big"

	"escrowchain/core/events"
	"escrowchain/crypto"
	"escrowchain/observability/logging"
)

// Pay locks amount of asset from the payer and records a Created payment
// towards recipient.
func (e *Engine) Pay(payer, recipient [20]byte, asset string, amount *big.Int, remark []byte) (*Payment, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	normalized, err := e.validateTerms(payer, recipient, asset, amount)
	if err != nil {
		return nil, err
	}
	if len(remark) > e.params.MaxRemarkLength {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrRemarkTooLong, len(remark), e.params.MaxRemarkLength)
	}
	if err := e.ensureVacant(payer, recipient); err != nil {
		return nil, err
	}
	if err := e.ledger.Lock(normalized, payer, amount); err != nil {
		return nil, err
	}
	p := &Payment{
		Payer:     payer,
		Recipient: recipient,
		Asset:     normalized,
		Amount:    cloneBigInt(amount),
		State:     StateCreated,
		Resolver:  e.params.Resolver,
		CreatedAt: e.height(),
	}
	if len(remark) > 0 {
		p.Remark = append([]byte(nil), remark...)
	}
	if err := e.state.PaymentPut(p); err != nil {
		return nil, err
	}
	e.emit(events.PaymentCreated{
		From:   payer,
		To:     recipient,
		Asset:  normalized,
		Amount: cloneBigInt(amount),
		Remark: p.Remark,
	})
	e.logger.Debug("payment locked",
		slog.String("payer", crypto.FormatAccount(payer)),
		slog.String("recipient", crypto.FormatAccount(recipient)),
		slog.String("asset", normalized),
		logging.MaskBytes("remark", p.Remark))
	return p.Clone(), nil
}

// Release transfers the locked funds to the recipient. Only the payer can
// release, which is implied by the payment being keyed by the caller.
func (e *Engine) Release(payer, recipient [20]byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	p, err := e.loadPayment(payer, recipient)
	if err != nil {
		return err
	}
	if !p.State.Funded() {
		return ErrNotFunded
	}
	if err := e.ledger.TransferLocked(p.Asset, payer, recipient, p.Amount); err != nil {
		return err
	}
	if err := e.dropTask(payer, recipient); err != nil {
		return err
	}
	if err := e.state.PaymentDelete(payer, recipient); err != nil {
		return err
	}
	e.emit(events.PaymentReleased{From: payer, To: recipient})
	return nil
}

// Cancel is invoked by the recipient and returns the locked funds to payer.
// Cancelling an unfunded payment request withdraws it without touching the
// ledger.
func (e *Engine) Cancel(recipient, payer [20]byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	p, err := e.loadPayment(payer, recipient)
	if err != nil {
		return err
	}
	if err := e.cancel(p); err != nil {
		return err
	}
	e.emit(events.PaymentCancelled{From: payer, To: recipient})
	return nil
}

func (e *Engine) cancel(p *Payment) error {
	if p.State.Funded() {
		if err := e.ledger.Unlock(p.Asset, p.Payer, p.Amount); err != nil {
			return err
		}
	}
	if err := e.dropTask(p.Payer, p.Recipient); err != nil {
		return err
	}
	return e.state.PaymentDelete(p.Payer, p.Recipient)
}
