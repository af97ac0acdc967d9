package ledgerRepo

import (
	"context"
	"errors"
	"time"

	"urbana/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicate           = errors.New("duplicate record")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletLocked        = errors.New("wallet is locked by a withdrawal in progress")
	ErrEscrowNotHeld       = errors.New("escrow already processed")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOrphanAttempt       = errors.New("no invoice linked to payment attempt")
	ErrInvoiceSettled      = errors.New("invoice already settled by another payment")
)

// FinalizeParams describes a verified-successful attempt to be turned into a Payment.
type FinalizeParams struct {
	AttemptID          string
	Processor          models.Processor
	ProcessorPaymentID string
	PaidAt             time.Time
}

// WebhookFilter narrows ListWebhookLogs. Zero values match everything.
type WebhookFilter struct {
	Processor models.Processor
	Reference string
	Limit     int
}

// LedgerRepository is the durable store behind the payment core. Every method is atomic on its own;
// methods touching several records run in a single transaction.
type LedgerRepository interface {
	// CreateInvoice inserts a new invoice. Called by checkout.
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	// GetInvoice returns ErrNotFound for unknown ids.
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	ListInvoicesByUser(ctx context.Context, userID string) ([]models.Invoice, error)

	// AttachAttempt inserts the attempt and adds it to the invoice's attempt set in one unit.
	AttachAttempt(ctx context.Context, invoiceID string, attempt *models.PaymentAttempt) error
	SetAttemptExternalReference(ctx context.Context, attemptID, externalRef string) error
	// FindAttempt looks an attempt up by reference, then by processor payment id.
	FindAttempt(ctx context.Context, processor models.Processor, reference string) (*models.PaymentAttempt, error)
	// MarkAttemptFailed never downgrades a successful attempt.
	MarkAttemptFailed(ctx context.Context, attemptID string) error
	MarkAttemptSucceeded(ctx context.Context, attemptID, processorPaymentID string) error
	InvoicesForAttempt(ctx context.Context, attemptID string) ([]models.Invoice, error)

	// Finalize get-or-creates the Payment keyed by the first linked invoice and attaches it to every
	// invoice linked to the attempt. Returns ErrOrphanAttempt when the attempt has no invoice.
	Finalize(ctx context.Context, params FinalizeParams) (*models.FinalizeResult, error)
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error)

	LogWebhook(ctx context.Context, log *models.PaymentWebhookLog) error
	MarkWebhookProcessed(ctx context.Context, id string) error
	ListWebhookLogs(ctx context.Context, filter WebhookFilter) ([]models.PaymentWebhookLog, error)

	GetOrCreateWallet(ctx context.Context, userID, currency string) (*models.Wallet, error)
	// ListWalletTransactions returns newest first. limit <= 0 returns all.
	ListWalletTransactions(ctx context.Context, walletID string, limit int) ([]models.WalletTransaction, error)

	// HoldEscrow inserts a held escrow and books the designer share as pending.
	HoldEscrow(ctx context.Context, escrow *models.Escrow) error
	GetEscrow(ctx context.Context, id string) (*models.Escrow, error)
	// ReleaseEscrow credits the designer and the platform commission. Only legal from held.
	ReleaseEscrow(ctx context.Context, id, platformUserID string) (*models.Escrow, error)
	// RefundEscrow returns the full amount to the customer's wallet. Only legal from held.
	RefundEscrow(ctx context.Context, id string) (*models.Escrow, error)

	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	GetWithdrawalByReference(ctx context.Context, reference string) (*models.Withdrawal, error)
	ListWithdrawalsByUser(ctx context.Context, userID string) ([]models.Withdrawal, error)
	// ListStalledWithdrawals returns processing withdrawals that started processing before the cutoff,
	// oldest first. limit <= 0 returns all.
	ListStalledWithdrawals(ctx context.Context, processedBefore time.Time, limit int) ([]models.Withdrawal, error)
	// ProcessWithdrawal debits and locks the wallet and moves the withdrawal pending→processing.
	ProcessWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	SetWithdrawalTransfer(ctx context.Context, id, transferID, transferStatus string) error
	// CompleteWithdrawal moves processing→completed and unlocks the wallet.
	CompleteWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	// FailWithdrawal moves processing→failed, credits the amount back and unlocks the wallet.
	FailWithdrawal(ctx context.Context, id, reason string) (*models.Withdrawal, error)
	// RejectWithdrawal moves pending→rejected without touching the wallet.
	RejectWithdrawal(ctx context.Context, id, reason string) (*models.Withdrawal, error)
}
