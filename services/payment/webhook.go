package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	ledgerRepo "urbana/database/repository/ledger"
	"urbana/models"
	"urbana/services/processor"
	"urbana/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const webhookDedupeTTL = 24 * time.Hour

// WebhookOutcome is the answer sent back to the processor.
type WebhookOutcome struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

func ok(status string) WebhookOutcome { return WebhookOutcome{StatusCode: http.StatusOK, Status: status} }

func failed(code int, msg string) WebhookOutcome { return WebhookOutcome{StatusCode: code, Error: msg} }

// HandleWebhook authenticates, logs and applies one processor callback.
//
// Every authenticated payload is logged before anything else happens. Once logged, unrecognized or
// unmatched events are acknowledged with 200 so the processor stops retrying; internal failures get
// a 500 so it retries.
func (s *DefaultPaymentService) HandleWebhook(ctx context.Context, p models.Processor, body []byte, header http.Header) WebhookOutcome {
	adapter, err := s.processors.Get(p)
	if err != nil {
		return failed(http.StatusNotFound, err.Error())
	}
	logger := s.logger.With(zap.String("processor", string(p)))

	if err := adapter.VerifySignature(body, header); err != nil {
		logger.Warn("Webhook rejected", zap.Error(err))
		s.logRejected(ctx, p, "invalid_signature", body)
		utils.RecordWebhook(string(p), "invalid_signature")
		return failed(http.StatusBadRequest, "Invalid signature")
	}

	event, err := adapter.ParseWebhook(body)
	if err != nil {
		logger.Warn("Webhook payload is not valid JSON", zap.Error(err))
		s.logRejected(ctx, p, "invalid_json", body)
		utils.RecordWebhook(string(p), "invalid_json")
		return failed(http.StatusBadRequest, "Invalid payload")
	}

	entry := &models.PaymentWebhookLog{
		ID:         uuid.New().String(),
		Processor:  p,
		EventType:  eventType(event.Type),
		Reference:  event.Reference,
		RawPayload: string(body),
		StatusCode: http.StatusOK,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.ledger.LogWebhook(ctx, entry); err != nil {
		logger.Error("Failed to log webhook event", zap.String("reference", event.Reference), zap.Error(err))
		utils.RecordWebhook(string(p), "error")
		return failed(http.StatusInternalServerError, "Webhook processing failed")
	}
	logger.Info("Webhook event logged", zap.String("event", event.Type), zap.String("reference", event.Reference))

	if event.Reference == "" || !s.actionable(event) {
		utils.RecordWebhook(string(p), "ignored")
		return ok("ignored")
	}

	key := dedupeKey(p, event)
	if s.alreadyProcessed(ctx, key) {
		utils.RecordWebhook(string(p), "duplicate")
		return ok("duplicate")
	}

	var status string
	switch event.Kind {
	case processor.EventCharge:
		status, err = s.applyCharge(ctx, p, event)
	case processor.EventTransfer:
		status, err = s.applyTransfer(ctx, event)
	}
	if err != nil {
		logger.Error("Webhook processing failed", zap.String("reference", event.Reference), zap.Error(err))
		utils.RecordWebhook(string(p), "error")
		return failed(http.StatusInternalServerError, "Webhook processing failed")
	}
	if status != "ok" {
		utils.RecordWebhook(string(p), status)
		return ok(status)
	}

	if err := s.ledger.MarkWebhookProcessed(ctx, entry.ID); err != nil {
		logger.Warn("Failed to flag webhook as processed", zap.String("log_id", entry.ID), zap.Error(err))
	}
	s.markProcessed(ctx, key)
	utils.RecordWebhook(string(p), "processed")
	return ok("ok")
}

// actionable reports whether the event can change ledger state.
func (s *DefaultPaymentService) actionable(ev *processor.WebhookEvent) bool {
	switch ev.Kind {
	case processor.EventCharge:
		return ev.Succeeded
	case processor.EventTransfer:
		return s.transfers != nil && ev.TransferState.Terminal()
	}
	return false
}

// applyCharge settles the attempt a success event refers to. Unknown attempts and tampered amounts are
// acknowledged without any ledger change.
func (s *DefaultPaymentService) applyCharge(ctx context.Context, p models.Processor, ev *processor.WebhookEvent) (string, error) {
	attempt, err := s.ledger.FindAttempt(ctx, p, ev.Reference)
	if errors.Is(err, ledgerRepo.ErrNotFound) {
		s.logger.Warn("Webhook for unknown payment attempt", zap.String("processor", string(p)), zap.String("reference", ev.Reference))
		return "ignored", nil
	}
	if err != nil {
		return "", err
	}

	if attempt.Status != models.StatusSuccess {
		if reason := mismatch(attempt, ev); reason != "" {
			s.logger.Warn("Webhook does not match attempt",
				zap.String("reference", ev.Reference), zap.String("reason", reason),
				zap.Int64("expected_amount", attempt.Amount), zap.Int64("amount", ev.Amount),
				zap.String("expected_currency", attempt.Currency), zap.String("currency", ev.Currency))
			if err := s.ledger.MarkAttemptFailed(ctx, attempt.ID); err != nil {
				return "", err
			}
			return "rejected", nil
		}
		ppid := ev.ProcessorPaymentID
		if ppid == "" {
			ppid = ev.Reference
		}
		if err := s.ledger.MarkAttemptSucceeded(ctx, attempt.ID, ppid); err != nil {
			return "", fmt.Errorf("mark attempt succeeded: %w", err)
		}
		attempt.ProcessorPaymentID = ppid
	}

	if _, err := s.Finalize(ctx, attempt, attempt.ProcessorPaymentID); err != nil {
		switch {
		case errors.Is(err, ErrOrphanAttempt):
			return "ignored", nil
		case errors.Is(err, ledgerRepo.ErrInvoiceSettled):
			s.logger.Error("Invoice already settled by another payment", zap.String("reference", ev.Reference))
			return "conflict", nil
		}
		return "", err
	}
	return "ok", nil
}

// mismatch applies the same amount and currency rule as Confirm. Returns an empty string on a match.
func mismatch(attempt *models.PaymentAttempt, ev *processor.WebhookEvent) string {
	switch {
	case ev.Amount != attempt.Amount:
		return "Amount mismatch"
	case ev.Currency != "" && attempt.Currency != "" && !strings.EqualFold(ev.Currency, attempt.Currency):
		return "Currency mismatch"
	}
	return ""
}

func (s *DefaultPaymentService) applyTransfer(ctx context.Context, ev *processor.WebhookEvent) (string, error) {
	err := s.transfers.ReconcileTransfer(ctx, ev.Reference, ev.TransferState, ev.Type)
	if errors.Is(err, ledgerRepo.ErrNotFound) {
		return "ignored", nil
	}
	if err != nil {
		return "", err
	}
	return "ok", nil
}

// logRejected records a payload that failed authentication or parsing. Failure to log here does not
// change the answer.
func (s *DefaultPaymentService) logRejected(ctx context.Context, p models.Processor, eventType string, body []byte) {
	entry := &models.PaymentWebhookLog{
		Processor:  p,
		EventType:  eventType,
		RawPayload: string(body),
		StatusCode: http.StatusBadRequest,
	}
	if err := s.ledger.LogWebhook(ctx, entry); err != nil {
		s.logger.Error("Failed to log rejected webhook", zap.String("processor", string(p)), zap.Error(err))
	}
}

func dedupeKey(p models.Processor, ev *processor.WebhookEvent) string {
	return fmt.Sprintf("webhook:processed:%s:%s:%s", p, ev.Type, ev.Reference)
}

// alreadyProcessed consults the cache. A cache outage falls through to re-processing, which is safe
// because finalization is idempotent.
func (s *DefaultPaymentService) alreadyProcessed(ctx context.Context, key string) bool {
	if s.cache == nil {
		return false
	}
	n, err := s.cache.Exists(ctx, key).Result()
	if err != nil {
		s.logger.Warn("Webhook dedupe lookup failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

func (s *DefaultPaymentService) markProcessed(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, "1", webhookDedupeTTL).Err(); err != nil {
		s.logger.Warn("Failed to store webhook dedupe key", zap.String("key", key), zap.Error(err))
	}
}

func eventType(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}
