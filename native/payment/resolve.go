package payment

import "escrowchain/core/events"

// ResolvePayment lets the payment's resolver split the locked funds: the
// recipient receives floor(amount*share/100), the payer the remainder. Any
// pending auto-cancel is superseded.
func (e *Engine) ResolvePayment(caller, payer, recipient [20]byte, share Percent) error {
	if err := e.guard(); err != nil {
		return err
	}
	if !share.Valid() {
		return ErrInvalidShare
	}
	p, err := e.loadPayment(payer, recipient)
	if err != nil {
		return err
	}
	if caller != p.Resolver {
		return ErrUnauthorized
	}
	if !p.State.Funded() {
		return ErrNotFunded
	}
	toRecipient, toPayer := share.Split(p.Amount)
	if toRecipient.Sign() > 0 {
		if err := e.ledger.TransferLocked(p.Asset, payer, recipient, toRecipient); err != nil {
			return err
		}
	}
	if toPayer.Sign() > 0 {
		if err := e.ledger.Unlock(p.Asset, payer, toPayer); err != nil {
			return err
		}
	}
	if err := e.dropTask(payer, recipient); err != nil {
		return err
	}
	if err := e.state.PaymentDelete(payer, recipient); err != nil {
		return err
	}
	e.emit(events.PaymentResolved{From: payer, To: recipient, RecipientShare: uint8(share)})
	return nil
}
