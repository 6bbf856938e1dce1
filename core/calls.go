package core

import (
	"math/big"

	"escrowchain/core/types"
	"escrowchain/native/payment"
)

const (
	OpPay            = "pay"
	OpRelease        = "release"
	OpCancel         = "cancel"
	OpRequestRefund  = "request_refund"
	OpDisputeRefund  = "dispute_refund"
	OpResolvePayment = "resolve_payment"
	OpRequestPayment = "request_payment"
	OpAcceptAndPay   = "accept_and_pay"
	OpRemoveTask     = "remove_task"
	OpTick           = "tick"
	OpGenesis        = "genesis"
)

// Call is a user operation bound to its caller and arguments.
type Call struct {
	Operation string
	apply     func(*payment.Engine) error
}

// Result reports the outcome of one applied call.
type Result struct {
	Operation string
	Height    uint64
	Events    []types.Event
	Err       error
}

// Pay locks amount from caller towards recipient.
func Pay(caller, recipient [20]byte, asset string, amount *big.Int, remark []byte) Call {
	return Call{Operation: OpPay, apply: func(e *payment.Engine) error {
		_, err := e.Pay(caller, recipient, asset, amount, remark)
		return err
	}}
}

// Release is issued by the payer.
func Release(caller, recipient [20]byte) Call {
	return Call{Operation: OpRelease, apply: func(e *payment.Engine) error {
		return e.Release(caller, recipient)
	}}
}

// Cancel is issued by the recipient of the payment from payer.
func Cancel(caller, payer [20]byte) Call {
	return Call{Operation: OpCancel, apply: func(e *payment.Engine) error {
		return e.Cancel(caller, payer)
	}}
}

// RequestRefund is issued by the payer.
func RequestRefund(caller, recipient [20]byte) Call {
	return Call{Operation: OpRequestRefund, apply: func(e *payment.Engine) error {
		_, err := e.RequestRefund(caller, recipient)
		return err
	}}
}

// DisputeRefund is issued by the recipient.
func DisputeRefund(caller, payer [20]byte) Call {
	return Call{Operation: OpDisputeRefund, apply: func(e *payment.Engine) error {
		return e.DisputeRefund(caller, payer)
	}}
}

// ResolvePayment is issued by the payment's resolver.
func ResolvePayment(caller, payer, recipient [20]byte, share payment.Percent) Call {
	return Call{Operation: OpResolvePayment, apply: func(e *payment.Engine) error {
		return e.ResolvePayment(caller, payer, recipient, share)
	}}
}

// RequestPayment is issued by the recipient against payer.
func RequestPayment(caller, payer [20]byte, asset string, amount *big.Int) Call {
	return Call{Operation: OpRequestPayment, apply: func(e *payment.Engine) error {
		_, err := e.RequestPayment(caller, payer, asset, amount)
		return err
	}}
}

// AcceptAndPay is issued by the payer of a pending request.
func AcceptAndPay(caller, recipient [20]byte) Call {
	return Call{Operation: OpAcceptAndPay, apply: func(e *payment.Engine) error {
		return e.AcceptAndPay(caller, recipient)
	}}
}

// RemoveTask prunes an orphaned registry entry.
func RemoveTask(payer, recipient [20]byte) Call {
	return Call{Operation: OpRemoveTask, apply: func(e *payment.Engine) error {
		return e.RemoveTask(payer, recipient)
	}}
}
