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
	"urbana/services/tasks"
	"urbana/utils"

	"go.uber.org/zap"
)

// ConfirmRequest is a client's report of a completed payment. A non-empty UserID restricts the lookup to
// that user's own attempts.
type ConfirmRequest struct {
	Processor     models.Processor
	UserID        string
	Reference     string
	TransactionID string
}

type ConfirmResult struct {
	Status     string   `json:"status"`
	Message    string   `json:"message"`
	InvoiceIDs []string `json:"invoice_ids"`
	PaymentID  string   `json:"payment_id"`
	Created    bool     `json:"created"`
}

// Confirm verifies a client-reported payment with the processor and finalizes it on success.
//
// An ambiguous verification (processor unreachable, garbled answer) leaves the attempt untouched so
// the client can retry. Only an explicit negative answer marks the attempt failed.
func (s *DefaultPaymentService) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	adapter, err := s.processors.Get(req.Processor)
	if err != nil {
		return nil, err
	}

	lookup := strings.TrimSpace(req.Reference)
	if lookup == "" {
		lookup = strings.TrimSpace(req.TransactionID)
	}
	if lookup == "" {
		return nil, NewValidationError("reference", "reference is required")
	}

	attempt, err := s.ledger.FindAttempt(ctx, req.Processor, lookup)
	if errors.Is(err, ledgerRepo.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	if req.UserID != "" && attempt.UserID != req.UserID {
		s.logger.Warn("Confirm for another user's payment attempt",
			zap.String("reference", attempt.Reference), zap.String("user_id", req.UserID))
		return nil, ErrAttemptNotFound
	}

	if attempt.Status == models.StatusSuccess {
		// Already verified by an earlier confirm or a webhook.
		return s.confirmed(ctx, attempt, attempt.ProcessorPaymentID)
	}

	verifyID, err := verificationID(req, attempt)
	if err != nil {
		return nil, err
	}

	res := adapter.Verify(ctx, verifyID)
	utils.RecordVerification(string(req.Processor), string(res.Status))

	switch res.Status {
	case processor.VerifyError:
		s.logger.Warn("Verification inconclusive, attempt left pending",
			zap.String("reference", attempt.Reference), zap.String("message", res.Message))
		return nil, fmt.Errorf("%w: %s", ErrProcessorUnavailable, res.Message)
	case processor.VerifyDeclined:
		return nil, s.reject(ctx, attempt, res.Message)
	}

	if reason := checkVerified(adapter, attempt, res.Data); reason != "" {
		return nil, s.reject(ctx, attempt, reason)
	}

	processorPaymentID := res.Data.ProcessorPaymentID(verifyID)
	if err := s.ledger.MarkAttemptSucceeded(ctx, attempt.ID, processorPaymentID); err != nil {
		return nil, fmt.Errorf("failed to mark attempt successful: %w", err)
	}
	return s.confirmed(ctx, attempt, processorPaymentID)
}

func (s *DefaultPaymentService) confirmed(ctx context.Context, attempt *models.PaymentAttempt, processorPaymentID string) (*ConfirmResult, error) {
	res, err := s.Finalize(ctx, attempt, processorPaymentID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Invoices))
	for _, inv := range res.Invoices {
		ids = append(ids, inv.ID)
	}
	return &ConfirmResult{
		Status:     "success",
		Message:    fmt.Sprintf("%s payment verified successfully", titleCase(string(attempt.Processor))),
		InvoiceIDs: ids,
		PaymentID:  res.Payment.ID,
		Created:    res.Created,
	}, nil
}

// reject marks the attempt failed after a definitive negative verification.
func (s *DefaultPaymentService) reject(ctx context.Context, attempt *models.PaymentAttempt, reason string) error {
	if err := s.ledger.MarkAttemptFailed(ctx, attempt.ID); err != nil {
		return fmt.Errorf("failed to mark attempt failed: %w", err)
	}
	s.logger.Info("Payment attempt rejected", zap.String("reference", attempt.Reference), zap.String("reason", reason))
	if reason == "" {
		reason = "Verification failed"
	}
	return fmt.Errorf("%w: %s", ErrVerificationFailed, reason)
}

// verificationID is the id the processor's verify endpoint expects.
func verificationID(req ConfirmRequest, attempt *models.PaymentAttempt) (string, error) {
	if id := strings.TrimSpace(req.TransactionID); id != "" {
		return id, nil
	}
	switch attempt.Processor {
	case models.ProcessorPaystack:
		return attempt.Reference, nil
	case models.ProcessorStripe:
		if attempt.ExternalReference != "" {
			return attempt.ExternalReference, nil
		}
	}
	return "", NewValidationError("transaction_id", "transaction_id is required")
}

// checkVerified applies the processor's success predicate and ties the verified transaction to the
// attempt. Returns an empty string when the transaction settles the attempt.
func checkVerified(adapter processor.Adapter, attempt *models.PaymentAttempt, tx *processor.Transaction) string {
	switch {
	case tx == nil || !adapter.Succeeded(tx):
		return "Transaction not successful"
	case tx.Reference != "" && tx.Reference != attempt.Reference:
		return "Transaction does not belong to this payment"
	case tx.Amount != attempt.Amount:
		return "Amount mismatch"
	case tx.Currency != "" && attempt.Currency != "" && !strings.EqualFold(tx.Currency, attempt.Currency):
		return "Currency mismatch"
	}
	return ""
}

// Finalize turns a successful attempt into a settled Payment and activates every invoice linked to
// it. Safe to call any number of times, from confirm and webhook paths concurrently.
func (s *DefaultPaymentService) Finalize(ctx context.Context, attempt *models.PaymentAttempt, processorPaymentID string) (*models.FinalizeResult, error) {
	res, err := s.ledger.Finalize(ctx, ledgerRepo.FinalizeParams{
		AttemptID:          attempt.ID,
		Processor:          attempt.Processor,
		ProcessorPaymentID: processorPaymentID,
		PaidAt:             time.Now().UTC(),
	})
	switch {
	case errors.Is(err, ledgerRepo.ErrOrphanAttempt):
		s.logger.Error("Successful attempt has no invoice", zap.String("reference", attempt.Reference))
		return nil, ErrOrphanAttempt
	case err != nil:
		return nil, fmt.Errorf("failed to finalize payment: %w", err)
	}

	utils.RecordFinalize(string(attempt.Processor), res.Created)
	if res.Created {
		s.logger.Info("Payment settled",
			zap.String("payment_id", res.Payment.ID),
			zap.String("reference", attempt.Reference),
			zap.Int("invoices", len(res.Invoices)))
		s.enqueueReceipt(ctx, res)
	}
	return res, nil
}

// enqueueReceipt is best effort. The payment is already committed.
func (s *DefaultPaymentService) enqueueReceipt(ctx context.Context, res *models.FinalizeResult) {
	if s.queue == nil {
		return
	}
	ids := make([]string, 0, len(res.Invoices))
	for _, inv := range res.Invoices {
		ids = append(ids, inv.ID)
	}
	task, opts, err := tasks.NewPaymentReceiptTask(tasks.ReceiptPayload{
		PaymentID:  res.Payment.ID,
		UserID:     res.Payment.UserID,
		Amount:     res.Payment.Amount,
		Currency:   res.Payment.Currency,
		InvoiceIDs: ids,
	})
	if err == nil {
		_, err = s.queue.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		s.logger.Warn("Failed to enqueue payment receipt", zap.String("payment_id", res.Payment.ID), zap.Error(err))
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
