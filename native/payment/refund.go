package payment

import (
	"fmt"
	"math"

	"escrowchain/core/events"
)

// RequestRefund moves a Created payment into RefundRequested and schedules
// its cancellation RefundWindow blocks from now. The expiry height is
// returned.
func (e *Engine) RequestRefund(payer, recipient [20]byte) (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	p, err := e.loadPayment(payer, recipient)
	if err != nil {
		return 0, err
	}
	if p.State != StateCreated {
		return 0, ErrInvalidState
	}
	now := e.height()
	if now > math.MaxUint64-e.params.RefundWindow {
		return 0, fmt.Errorf("%w: refund expiry overflows", ErrInvalidState)
	}
	expiry := now + e.params.RefundWindow
	if err := e.reserveTaskSlot(payer, recipient); err != nil {
		return 0, err
	}
	task := &ScheduledTask{Payer: payer, Recipient: recipient, Task: TaskCancel, When: expiry}
	if err := e.state.ScheduledTaskPut(task); err != nil {
		return 0, err
	}
	p.State = StateRefundRequested
	if err := e.state.PaymentPut(p); err != nil {
		return 0, err
	}
	e.emit(events.PaymentCreatorRequestedRefund{From: payer, To: recipient, Expiry: expiry})
	return expiry, nil
}

// DisputeRefund is invoked by the recipient to contest a pending refund. The
// scheduled cancellation is removed so only the resolver can settle the
// payment afterwards.
func (e *Engine) DisputeRefund(recipient, payer [20]byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	p, err := e.loadPayment(payer, recipient)
	if err != nil {
		return err
	}
	if p.State != StateRefundRequested {
		return ErrInvalidState
	}
	if err := e.dropTask(payer, recipient); err != nil {
		return err
	}
	p.State = StateDisputed
	if err := e.state.PaymentPut(p); err != nil {
		return err
	}
	e.emit(events.PaymentRefundDisputed{From: payer, To: recipient})
	return nil
}

func (e *Engine) reserveTaskSlot(payer, recipient [20]byte) error {
	if _, ok, err := e.state.ScheduledTaskGet(payer, recipient); err != nil {
		return err
	} else if ok {
		// A stale entry for the same pair is overwritten in place.
		return nil
	}
	tasks, err := e.state.ScheduledTasks()
	if err != nil {
		return err
	}
	if e.params.MaxScheduledTasks > 0 && len(tasks) >= e.params.MaxScheduledTasks {
		return ErrCapacityExceeded
	}
	return nil
}
