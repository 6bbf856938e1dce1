package payment

import (
	"errors"
	"fmt"

	coreerrors "escrowchain/core/errors"
	"escrowchain/native/common"
)

var (
	ErrNotFound         = errors.New("payment: not found")
	ErrInvalidState     = errors.New("payment: invalid state for operation")
	ErrUnauthorized     = errors.New("payment: not authorized")
	ErrCapacityExceeded = errors.New("payment: scheduled task capacity exceeded")
	ErrInvalidArgument  = errors.New("payment: invalid argument")

	// ErrInsufficientFunds is raised by the ledger and returned unchanged.
	ErrInsufficientFunds = coreerrors.ErrInsufficientFunds

	ErrPaymentExists   = fmt.Errorf("%w: payment already exists for pair", ErrInvalidState)
	ErrNotFunded       = fmt.Errorf("%w: payment is not funded", ErrInvalidState)
	ErrTaskActive      = fmt.Errorf("%w: scheduled task still guards a refund", ErrInvalidState)
	ErrRequestNotFound = fmt.Errorf("%w: payment request", ErrNotFound)
	ErrTaskNotFound    = fmt.Errorf("%w: scheduled task", ErrNotFound)

	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	ErrInvalidAsset  = fmt.Errorf("%w: asset symbol", ErrInvalidArgument)
	ErrRemarkTooLong = fmt.Errorf("%w: remark too long", ErrInvalidArgument)
	ErrInvalidShare  = fmt.Errorf("%w: recipient share must be within [0,100]", ErrInvalidArgument)
	ErrSelfPayment   = fmt.Errorf("%w: payer and recipient must differ", ErrInvalidArgument)

	errNilState              = errors.New("payment engine: state not configured")
	errNilLedger             = errors.New("payment engine: ledger not configured")
	errResolverNotConfigured = errors.New("payment engine: resolver not configured")
)

// ErrorKind is a coarse classification of engine errors used for transport
// status codes and metric labels.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindNotFound          ErrorKind = "not_found"
	KindInvalidState      ErrorKind = "invalid_state"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindCapacityExceeded  ErrorKind = "capacity_exceeded"
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindPaused            ErrorKind = "paused"
	KindInternal          ErrorKind = "internal"
)

// Kind classifies err into one of the engine error kinds.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrCapacityExceeded):
		return KindCapacityExceeded
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, coreerrors.ErrUnknownAsset),
		errors.Is(err, coreerrors.ErrInvalidAmount),
		errors.Is(err, coreerrors.ErrBalanceOverflow):
		return KindInvalidArgument
	case errors.Is(err, common.ErrModulePaused):
		return KindPaused
	default:
		return KindInternal
	}
}
