package domain

import "errors"

// Error taxonomy shared by every service. Handlers map these onto HTTP
// status codes; everything else is treated as an internal failure.
var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state for operation")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrPriceUnavailable     = errors.New("price unavailable")
	ErrSymbolUnsupported    = errors.New("symbol not supported")
	ErrStoreFailure         = errors.New("store failure")
)
