package settlement

import (
	"context"
	"errors"
	"fmt"

	ledgerRepo "urbana/database/repository/ledger"
	"urbana/models"

	"go.uber.org/zap"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPaymentNotPaid  = errors.New("payment has not been settled")
	ErrEscrowNotFound  = errors.New("escrow not found")
	ErrEscrowProcessed = errors.New("escrow already processed")
)

// ValidationError reports a bad hold request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SettlementService moves order funds between customer, designer and platform wallets.
type SettlementService interface {
	Hold(ctx context.Context, req HoldRequest) (*models.Escrow, error)
	Release(ctx context.Context, escrowID string) (*models.Escrow, error)
	Refund(ctx context.Context, escrowID string) (*models.Escrow, error)
	GetEscrow(ctx context.Context, escrowID string) (*models.Escrow, error)
}

type Options struct {
	PlatformUserID string
	CommissionBPS  int64
}

type DefaultSettlementService struct {
	ledger ledgerRepo.LedgerRepository
	logger *zap.Logger
	opts   Options
}

func NewDefaultSettlementService(ledger ledgerRepo.LedgerRepository, logger *zap.Logger, opts Options) *DefaultSettlementService {
	if opts.PlatformUserID == "" {
		opts.PlatformUserID = "platform"
	}
	return &DefaultSettlementService{ledger: ledger, logger: logger, opts: opts}
}

var _ SettlementService = (*DefaultSettlementService)(nil)
