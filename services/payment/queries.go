package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ledgerRepo "urbana/database/repository/ledger"
	"urbana/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceRequest is what checkout sends when an order needs paying.
type InvoiceRequest struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	Purpose    string     `json:"purpose"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

// CreateInvoice records a payable invoice. An empty id gets a generated one.
func (s *DefaultPaymentService) CreateInvoice(ctx context.Context, req InvoiceRequest) (*models.Invoice, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, NewValidationError("user_id", "user_id is required")
	}
	if req.Amount <= 0 {
		return nil, NewValidationError("amount", "amount must be positive")
	}
	if req.StartDate != nil && req.ExpiryDate != nil && req.ExpiryDate.Before(*req.StartDate) {
		return nil, NewValidationError("expiry_date", "expiry_date is before start_date")
	}

	inv := &models.Invoice{
		ID:                strings.TrimSpace(req.ID),
		UserID:            req.UserID,
		Amount:            req.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(req.Currency)),
		Purpose:           req.Purpose,
		StartDate:         req.StartDate,
		ExpiryDate:        req.ExpiryDate,
		PaymentAttemptIDs: []string{},
		CreatedAt:         time.Now().UTC(),
	}
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.Currency == "" {
		inv.Currency = s.opts.DefaultCurrency
	}

	if err := s.ledger.CreateInvoice(ctx, inv); err != nil {
		if errors.Is(err, ledgerRepo.ErrDuplicate) {
			return nil, ErrInvoiceExists
		}
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}
	s.logger.Info("Invoice created",
		zap.String("invoice_id", inv.ID), zap.String("user_id", inv.UserID), zap.Int64("amount", inv.Amount))
	return inv, nil
}

// GetInvoice returns the user's own invoice. Other users' invoices look missing.
func (s *DefaultPaymentService) GetInvoice(ctx context.Context, userID, invoiceID string) (*models.Invoice, error) {
	inv, err := s.ledger.GetInvoice(ctx, invoiceID)
	if errors.Is(err, ledgerRepo.ErrNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	if inv.UserID != userID || inv.IsDeleted {
		return nil, ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *DefaultPaymentService) ListInvoices(ctx context.Context, userID string) ([]models.Invoice, error) {
	return s.ledger.ListInvoicesByUser(ctx, userID)
}

// GetPayment accepts either the payment reference (the settled invoice id) or the payment id.
func (s *DefaultPaymentService) GetPayment(ctx context.Context, userID, reference string) (*models.Payment, error) {
	p, err := s.ledger.GetPaymentByReference(ctx, reference)
	if errors.Is(err, ledgerRepo.ErrNotFound) {
		p, err = s.ledger.GetPayment(ctx, reference)
	}
	if errors.Is(err, ledgerRepo.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

func (s *DefaultPaymentService) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	return s.ledger.ListPaymentsByUser(ctx, userID)
}

// ListWebhookLogs is the audit trail behind the admin surface.
func (s *DefaultPaymentService) ListWebhookLogs(ctx context.Context, filter ledgerRepo.WebhookFilter) ([]models.PaymentWebhookLog, error) {
	return s.ledger.ListWebhookLogs(ctx, filter)
}
