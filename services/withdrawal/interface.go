package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	ledgerRepo "urbana/database/repository/ledger"
	"urbana/models"
	"urbana/services/processor"
	"urbana/services/tasks"

	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance  = errors.New("insufficient wallet balance")
	ErrWithdrawalInProgress = errors.New("another withdrawal is already in progress")
	ErrWithdrawalNotFound   = errors.New("withdrawal not found")
	ErrInvalidState         = errors.New("withdrawal is not in a state that allows this action")
)

// ValidationError reports a bad withdrawal request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Notifier is told when a withdrawal reaches a terminal state.
type Notifier interface {
	NotifyWithdrawal(ctx context.Context, w *models.Withdrawal) error
}

// WithdrawalService pays wallet balances out to bank accounts and serves the wallet read side.
type WithdrawalService interface {
	Request(ctx context.Context, req WithdrawalRequest) (*models.Withdrawal, error)
	Process(ctx context.Context, withdrawalID string) (*models.Withdrawal, error)
	Dispatch(ctx context.Context, withdrawalID string) error
	Poll(ctx context.Context, withdrawalID string, attempt int) error
	Recheck(ctx context.Context, withdrawalID string) error
	SweepStalledTransfers(ctx context.Context) (int, error)
	Complete(ctx context.Context, withdrawalID string) (*models.Withdrawal, error)
	Fail(ctx context.Context, withdrawalID, reason string) (*models.Withdrawal, error)
	Reject(ctx context.Context, withdrawalID, reason string) (*models.Withdrawal, error)
	ReconcileTransfer(ctx context.Context, reference string, state processor.TransferState, reason string) error

	GetWithdrawal(ctx context.Context, withdrawalID string) (*models.Withdrawal, error)
	Dashboard(ctx context.Context, userID string) (*Dashboard, error)
	ListTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error)
	ListWithdrawals(ctx context.Context, userID string) ([]models.Withdrawal, error)
	ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*processor.BankAccount, error)
}

type Options struct {
	Currency          string
	TransferProcessor models.Processor
	PollInterval      time.Duration
	MaxPolls          int
	// StaleAfter is how long a withdrawal may sit in processing before a sweep rechecks it.
	StaleAfter time.Duration
	SweepBatch int
}

type DefaultWithdrawalService struct {
	ledger     ledgerRepo.LedgerRepository
	processors *processor.Registry
	queue      tasks.Enqueuer
	notifier   Notifier
	logger     *zap.Logger
	opts       Options
}

// NewDefaultWithdrawalService wires the service. notifier may be nil.
func NewDefaultWithdrawalService(
	ledger ledgerRepo.LedgerRepository,
	processors *processor.Registry,
	queue tasks.Enqueuer,
	notifier Notifier,
	logger *zap.Logger,
	opts Options,
) *DefaultWithdrawalService {
	if opts.Currency == "" {
		opts.Currency = "NGN"
	}
	if opts.TransferProcessor == "" {
		opts.TransferProcessor = models.ProcessorPaystack
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 4 * time.Second
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 5
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 10 * time.Minute
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 100
	}
	return &DefaultWithdrawalService{
		ledger:     ledger,
		processors: processors,
		queue:      queue,
		notifier:   notifier,
		logger:     logger,
		opts:       opts,
	}
}

// mapLedgerError translates store sentinels into the service's own.
func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledgerRepo.ErrNotFound):
		return ErrWithdrawalNotFound
	case errors.Is(err, ledgerRepo.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, ledgerRepo.ErrWalletLocked):
		return ErrWithdrawalInProgress
	case errors.Is(err, ledgerRepo.ErrInvalidTransition):
		return ErrInvalidState
	}
	return err
}

var _ WithdrawalService = (*DefaultWithdrawalService)(nil)
