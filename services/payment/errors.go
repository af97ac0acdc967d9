package payment

import (
	"errors"
	"fmt"
)

var (
	ErrInvoiceNotFound      = errors.New("invalid or expired invoice reference")
	ErrInvoiceExists        = errors.New("an invoice with this id already exists")
	ErrInvoiceAlreadyPaid   = errors.New("this invoice has already been paid")
	ErrAmountMismatch       = errors.New("amount mismatch with invoice")
	ErrCurrencyMismatch     = errors.New("currency mismatch with invoice")
	ErrAttemptNotFound      = errors.New("payment attempt not found for this transaction")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrVerificationFailed   = errors.New("payment verification failed")
	ErrOrphanAttempt        = errors.New("no invoice found linked to this payment attempt")
)

// ValidationError reports a bad or missing request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
