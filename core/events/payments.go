package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"escrowchain/core/types"
	"escrowchain/crypto"
)

const (
	TypePaymentCreated          = "payment.created"
	TypePaymentReleased         = "payment.released"
	TypePaymentCancelled        = "payment.cancelled"
	TypePaymentResolved         = "payment.resolved"
	TypePaymentRefundRequested  = "payment.refund_requested"
	TypePaymentRefundDisputed   = "payment.refund_disputed"
	TypePaymentRequestCreated   = "payment.request_created"
	TypePaymentRequestCompleted = "payment.request_completed"
	TypeScheduledTaskRemoved    = "payment.task_removed"
)

// PaymentCreated is emitted when a payer locks funds for a recipient.
type PaymentCreated struct {
	From   [20]byte
	To     [20]byte
	Asset  string
	Amount *big.Int
	Remark []byte
}

func (PaymentCreated) EventType() string { return TypePaymentCreated }

func (e PaymentCreated) Event() *types.Event {
	attrs := map[string]string{
		"from":   crypto.FormatAccount(e.From),
		"to":     crypto.FormatAccount(e.To),
		"asset":  normalizeAsset(e.Asset),
		"amount": formatAmount(e.Amount),
	}
	if len(e.Remark) > 0 {
		attrs["remark"] = hex.EncodeToString(e.Remark)
	}
	return &types.Event{Type: TypePaymentCreated, Attributes: attrs}
}

// PaymentReleased is emitted when the payer releases the locked funds to the
// recipient.
type PaymentReleased struct {
	From [20]byte
	To   [20]byte
}

func (PaymentReleased) EventType() string { return TypePaymentReleased }

func (e PaymentReleased) Event() *types.Event {
	return partiesEvent(TypePaymentReleased, e.From, e.To)
}

// PaymentCancelled is emitted when locked funds return to the payer, either
// because the recipient cancelled or because the refund window elapsed.
type PaymentCancelled struct {
	From      [20]byte
	To        [20]byte
	Scheduled bool
}

func (PaymentCancelled) EventType() string { return TypePaymentCancelled }

func (e PaymentCancelled) Event() *types.Event {
	evt := partiesEvent(TypePaymentCancelled, e.From, e.To)
	if e.Scheduled {
		evt.Attributes["trigger"] = "scheduler"
	}
	return evt
}

// PaymentResolved is emitted when the resolver splits a payment.
type PaymentResolved struct {
	From           [20]byte
	To             [20]byte
	RecipientShare uint8
}

func (PaymentResolved) EventType() string { return TypePaymentResolved }

func (e PaymentResolved) Event() *types.Event {
	evt := partiesEvent(TypePaymentResolved, e.From, e.To)
	evt.Attributes["recipientShare"] = strconv.FormatUint(uint64(e.RecipientShare), 10)
	return evt
}

// PaymentCreatorRequestedRefund is emitted when the payer asks for a refund;
// Expiry is the height at which the payment is cancelled absent a dispute.
type PaymentCreatorRequestedRefund struct {
	From   [20]byte
	To     [20]byte
	Expiry uint64
}

func (PaymentCreatorRequestedRefund) EventType() string { return TypePaymentRefundRequested }

func (e PaymentCreatorRequestedRefund) Event() *types.Event {
	evt := partiesEvent(TypePaymentRefundRequested, e.From, e.To)
	evt.Attributes["expiry"] = strconv.FormatUint(e.Expiry, 10)
	return evt
}

// PaymentRefundDisputed is emitted when the recipient disputes a refund.
type PaymentRefundDisputed struct {
	From [20]byte
	To   [20]byte
}

func (PaymentRefundDisputed) EventType() string { return TypePaymentRefundDisputed }

func (e PaymentRefundDisputed) Event() *types.Event {
	return partiesEvent(TypePaymentRefundDisputed, e.From, e.To)
}

// PaymentRequestCreated is emitted when a recipient requests payment. From is
// the account expected to pay.
type PaymentRequestCreated struct {
	From [20]byte
	To   [20]byte
}

func (PaymentRequestCreated) EventType() string { return TypePaymentRequestCreated }

func (e PaymentRequestCreated) Event() *types.Event {
	return partiesEvent(TypePaymentRequestCreated, e.From, e.To)
}

// PaymentRequestCompleted is emitted once the payer accepts and pays a
// request.
type PaymentRequestCompleted struct {
	From [20]byte
	To   [20]byte
}

func (PaymentRequestCompleted) EventType() string { return TypePaymentRequestCompleted }

func (e PaymentRequestCompleted) Event() *types.Event {
	return partiesEvent(TypePaymentRequestCompleted, e.From, e.To)
}

// ScheduledTaskRemoved is emitted when an orphaned registry entry is pruned.
type ScheduledTaskRemoved struct {
	From [20]byte
	To   [20]byte
}

func (ScheduledTaskRemoved) EventType() string { return TypeScheduledTaskRemoved }

func (e ScheduledTaskRemoved) Event() *types.Event {
	return partiesEvent(TypeScheduledTaskRemoved, e.From, e.To)
}

func partiesEvent(eventType string, from, to [20]byte) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"from": crypto.FormatAccount(from),
			"to":   crypto.FormatAccount(to),
		},
	}
}
