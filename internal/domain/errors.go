package domain

import "errors"

// Sentinel errors for domain-level error handling. Rejected commands carry
// one of these on their terminal execution; the handler layer maps them to
// HTTP status codes.
var (
	ErrPortfolioNotFound      = errors.New("portfolio_not_found")
	ErrSecurityNotFound       = errors.New("security_not_found")
	ErrSecurityNotTradable    = errors.New("security_not_tradable")
	ErrOrderNotFound          = errors.New("order_not_found")
	ErrDuplicateTransaction   = errors.New("duplicate_transaction")
	ErrInsufficientFunds      = errors.New("insufficient_funds")
	ErrShortSellingNotAllowed = errors.New("short_selling_not_allowed")
	ErrNoLiquidity            = errors.New("no_liquidity")
	ErrInjectedRejection      = errors.New("injected_rejection")
	ErrCrossedBook            = errors.New("crossed_book")
	ErrSessionAlreadyExists   = errors.New("session_already_exists")
	ErrSessionNotFound        = errors.New("session_not_found")
	ErrSessionClosed          = errors.New("session_closed")
)

// ValidationError represents a command or request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
