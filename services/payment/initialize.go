package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ledgerRepo "urbana/database/repository/ledger"
	"urbana/models"
	"urbana/services/processor"
	"urbana/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Customer is the acting user as the auth layer sees them.
type Customer struct {
	ID    string
	Email string
	Name  string
}

type InitRequest struct {
	Processor models.Processor
	InvoiceID string
	Amount    int64
	Currency  string
	User      Customer
}

// InitResponse carries what the client needs to launch the processor's checkout.
type InitResponse struct {
	Status        string           `json:"status"`
	Processor     models.Processor `json:"processor"`
	PublicKey     string           `json:"public_key"`
	ClientSecret  string           `json:"client_secret,omitempty"`
	Reference     string           `json:"reference"`
	InvoiceID     string           `json:"invoice_id"`
	Amount        int64            `json:"amount"`
	DisplayAmount string           `json:"display_amount,omitempty"`
	Currency      string           `json:"currency"`
	Email         string           `json:"email"`
	CustomerName  string           `json:"customer_name,omitempty"`
	Description   string           `json:"description,omitempty"`
}

// Initialize validates the invoice is payable and records a new attempt against it. Repeated calls
// create repeated attempts; only one of them can ever settle the invoice.
func (s *DefaultPaymentService) Initialize(ctx context.Context, req InitRequest) (*InitResponse, error) {
	adapter, err := s.processors.Get(req.Processor)
	if err != nil {
		return nil, err
	}

	invoice, err := s.payableInvoice(ctx, req)
	if err != nil {
		return nil, err
	}

	currency, err := s.resolveCurrency(req, invoice)
	if err != nil {
		return nil, err
	}

	reference, err := utils.NewReference()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	attempt := &models.PaymentAttempt{
		ID:        uuid.New().String(),
		UserID:    req.User.ID,
		Amount:    invoice.Amount,
		Currency:  currency,
		Processor: req.Processor,
		Reference: reference,
		Status:    models.StatusInitialized,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.ledger.AttachAttempt(ctx, invoice.ID, attempt); err != nil {
		return nil, fmt.Errorf("failed to record payment attempt: %w", err)
	}

	resp := &InitResponse{
		Status:    "success",
		Processor: req.Processor,
		PublicKey: adapter.PublicKey(),
		Reference: attempt.Reference,
		InvoiceID: invoice.ID,
		Amount:    invoice.Amount,
		Currency:  currency,
		Email:     req.User.Email,
	}

	switch req.Processor {
	case models.ProcessorFlutterwave:
		resp.DisplayAmount = processor.DisplayAmount(invoice.Amount, currency)
		resp.CustomerName = req.User.Name
		resp.Description = invoice.Purpose
		if resp.Description == "" {
			resp.Description = "Invoice Payment"
		}
	case models.ProcessorStripe:
		creator, ok := adapter.(processor.IntentCreator)
		if !ok {
			break
		}
		intent, err := creator.CreateIntent(ctx, processor.IntentRequest{
			Amount:           invoice.Amount,
			Currency:         currency,
			InvoiceID:        invoice.ID,
			AttemptReference: attempt.Reference,
			UserID:           req.User.ID,
		})
		if err != nil {
			s.logger.Error("Failed to create payment intent",
				zap.String("reference", attempt.Reference), zap.Error(err))
			if markErr := s.ledger.MarkAttemptFailed(ctx, attempt.ID); markErr != nil {
				s.logger.Error("Failed to mark attempt failed", zap.String("reference", attempt.Reference), zap.Error(markErr))
			}
			return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
		}
		if err := s.ledger.SetAttemptExternalReference(ctx, attempt.ID, intent.ID); err != nil {
			return nil, fmt.Errorf("failed to store payment intent: %w", err)
		}
		resp.ClientSecret = intent.ClientSecret
	}

	s.logger.Info("Payment attempt initialized",
		zap.String("processor", string(req.Processor)),
		zap.String("invoice_id", invoice.ID),
		zap.String("reference", attempt.Reference))
	return resp, nil
}

// payableInvoice runs the validation chain in order: required fields, existence, not yet paid, exact
// amount.
func (s *DefaultPaymentService) payableInvoice(ctx context.Context, req InitRequest) (*models.Invoice, error) {
	if strings.TrimSpace(req.InvoiceID) == "" || req.Amount <= 0 {
		return nil, NewValidationError("reference", "Reference and amount are required")
	}

	invoice, err := s.ledger.GetInvoice(ctx, req.InvoiceID)
	if errors.Is(err, ledgerRepo.ErrNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	if invoice.IsDeleted || (req.User.ID != "" && invoice.UserID != req.User.ID) {
		return nil, ErrInvoiceNotFound
	}

	// Payments are only ever linked once paid, so a linked invoice is a paid invoice.
	if invoice.Settled() {
		return nil, ErrInvoiceAlreadyPaid
	}

	if invoice.Amount != req.Amount {
		return nil, ErrAmountMismatch
	}
	return invoice, nil
}

func (s *DefaultPaymentService) resolveCurrency(req InitRequest, invoice *models.Invoice) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	invoiceCurrency := strings.ToUpper(invoice.Currency)
	switch {
	case currency != "" && invoiceCurrency != "" && currency != invoiceCurrency:
		return "", ErrCurrencyMismatch
	case currency != "":
		return currency, nil
	case invoiceCurrency != "":
		return invoiceCurrency, nil
	case req.Processor == models.ProcessorStripe:
		return "USD", nil
	default:
		return s.opts.DefaultCurrency, nil
	}
}
