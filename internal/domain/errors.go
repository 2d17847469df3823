package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrCatalogMismatch        = errors.New("amount or duration does not match catalog")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrVersionConflict        = errors.New("optimistic lock conflict")
	ErrConflict               = errors.New("concurrent modification, retry later")
	ErrManualCompleteDisabled = errors.New("manual completion is disabled")
	ErrDuplicateEvent         = errors.New("event already received")
)
