package model

import "errors"

// Validation errors, returned synchronously from order placement.
// No Order record or ledger mutation is created when these are returned.
var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrMissingPrice    = errors.New("order type requires a limit or trigger price")
	ErrSymbolNotFound  = errors.New("symbol not resolvable via quote source")
)

// ErrBrokerUnavailable is returned when the real-mode order submission
// channel cannot be reached within its timeout. The order is not created.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// ErrRiskLimit is returned when a configured pre-trade risk limit would
// be breached. The order is not created.
var ErrRiskLimit = errors.New("risk limit breached")

// ErrInvalidTransition is returned when an operation is not legal for the
// order's current status, e.g. cancelling an EXECUTED order.
var ErrInvalidTransition = errors.New("invalid order state transition")

// Business-rule rejections raised during evaluation. The order transitions
// to REJECTED with the matching reason string and no ledger mutation occurs.
var (
	ErrInsufficientHoldings = errors.New("sell quantity exceeds held quantity")
	ErrInsufficientFunds    = errors.New("order value exceeds available funds")
)

// Rejection reason strings stored on REJECTED orders.
const (
	ReasonInsufficientHoldings = "InsufficientHoldings"
	ReasonInsufficientFunds    = "InsufficientFunds"
)

// RejectionReason maps a business-rule error to its stored reason string.
// Returns "" for errors that are not rejections.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientHoldings):
		return ReasonInsufficientHoldings
	case errors.Is(err, ErrInsufficientFunds):
		return ReasonInsufficientFunds
	}
	return ""
}
