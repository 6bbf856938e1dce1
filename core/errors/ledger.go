package errors

import stderrors "errors"

var (
	ErrInsufficientFunds = stderrors.New("ledger: insufficient funds")
	ErrUnknownAsset      = stderrors.New("ledger: unknown asset")
	ErrBalanceOverflow   = stderrors.New("ledger: balance overflow")
	ErrInvalidAmount     = stderrors.New("ledger: amount must be positive")
)
