package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable covers network failures and provider 5xx
	// responses. Refunds retry it with backoff; purchases surface it
	// immediately.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrDuplicateWebhook marks a webhook for an already-completed
	// transaction. Expected under at-least-once delivery; treated as a
	// successful no-op.
	ErrDuplicateWebhook = errors.New("duplicate webhook")

	ErrTransactionNotFound = errors.New("transaction not found")
)

// RejectionError is the structured business outcome of a rejected charge.
type RejectionError struct {
	Subcode   string
	Detail    string
	Message   string
	Retryable bool
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("payment rejected (%s): %s", e.Subcode, e.Detail)
}
