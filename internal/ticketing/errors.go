package ticketing

import "errors"

var (
	// ErrInsufficientInventory means the section does not hold enough
	// available tickets for the requested quantity. Recoverable: the caller
	// may retry with a different section or quantity.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrInvalidTransition means a lifecycle operation found the ticket in a
	// state it cannot legally leave from. This is an invariant violation,
	// never recovered locally.
	ErrInvalidTransition = errors.New("invalid ticket state transition")

	ErrTicketNotFound  = errors.New("ticket not found")
	ErrSectionNotFound = errors.New("section not found")
)
