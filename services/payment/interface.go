package payment

import (
	"context"
	"net/http"

	ledgerRepo "urbana/database/repository/ledger"
	"urbana/models"
	"urbana/services/processor"
	"urbana/services/tasks"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PaymentService is the payment core: initialization, client confirmation, processor webhooks and
// the read side the HTTP layer needs.
type PaymentService interface {
	Initialize(ctx context.Context, req InitRequest) (*InitResponse, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error)
	Finalize(ctx context.Context, attempt *models.PaymentAttempt, processorPaymentID string) (*models.FinalizeResult, error)
	HandleWebhook(ctx context.Context, p models.Processor, body []byte, header http.Header) WebhookOutcome

	CreateInvoice(ctx context.Context, req InvoiceRequest) (*models.Invoice, error)
	GetInvoice(ctx context.Context, userID, invoiceID string) (*models.Invoice, error)
	ListInvoices(ctx context.Context, userID string) ([]models.Invoice, error)
	GetPayment(ctx context.Context, userID, reference string) (*models.Payment, error)
	ListPayments(ctx context.Context, userID string) ([]models.Payment, error)
	ListWebhookLogs(ctx context.Context, filter ledgerRepo.WebhookFilter) ([]models.PaymentWebhookLog, error)
}

// TransferReconciler settles a withdrawal from a transfer webhook.
type TransferReconciler interface {
	ReconcileTransfer(ctx context.Context, reference string, state processor.TransferState, reason string) error
}

// Options carries the settings the service reads from config.
type Options struct {
	DefaultCurrency string
}

// DefaultPaymentService implements PaymentService on top of the ledger store.
type DefaultPaymentService struct {
	ledger     ledgerRepo.LedgerRepository
	processors *processor.Registry
	queue      tasks.Enqueuer
	cache      *redis.Client
	transfers  TransferReconciler
	logger     *zap.Logger
	opts       Options
}

// NewDefaultPaymentService wires the service. queue and cache are optional: without a queue no
// receipts are sent, without a cache duplicate webhooks are re-processed idempotently.
func NewDefaultPaymentService(
	ledger ledgerRepo.LedgerRepository,
	processors *processor.Registry,
	queue tasks.Enqueuer,
	cache *redis.Client,
	logger *zap.Logger,
	opts Options,
) *DefaultPaymentService {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "NGN"
	}
	return &DefaultPaymentService{
		ledger:     ledger,
		processors: processors,
		queue:      queue,
		cache:      cache,
		logger:     logger,
		opts:       opts,
	}
}

// SetTransferReconciler enables transfer webhook handling. It is set after construction because the
// withdrawal service is built later.
func (s *DefaultPaymentService) SetTransferReconciler(r TransferReconciler) {
	s.transfers = r
}

var _ PaymentService = (*DefaultPaymentService)(nil)
