package ledger

import "errors"

// Refusal reasons. Operations wrap these with context; match with errors.Is.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrReservedAccount   = errors.New("reserved account")
	ErrSelfTransfer      = errors.New("sender and recipient are the same account")
)
