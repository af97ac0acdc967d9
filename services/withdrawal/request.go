package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"urbana/models"
	"urbana/services/tasks"
	"urbana/utils"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type WithdrawalRequest struct {
	UserID        string `json:"-"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	BankName      string `json:"bank_name"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

func (r WithdrawalRequest) validate() error {
	switch {
	case r.Amount <= 0:
		return &ValidationError{Field: "amount", Message: "amount must be positive"}
	case strings.TrimSpace(r.BankCode) == "":
		return &ValidationError{Field: "bank_code", Message: "bank_code is required"}
	case strings.TrimSpace(r.AccountNumber) == "":
		return &ValidationError{Field: "account_number", Message: "account_number is required"}
	case strings.TrimSpace(r.AccountName) == "":
		return &ValidationError{Field: "account_name", Message: "account_name is required"}
	}
	return nil
}

// Request records a withdrawal and immediately debits the wallet. A request the wallet cannot cover
// writes nothing.
func (s *DefaultWithdrawalService) Request(ctx context.Context, req WithdrawalRequest) (*models.Withdrawal, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.opts.Currency
	}

	wallet, err := s.ledger.GetOrCreateWallet(ctx, req.UserID, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	if wallet.IsLocked {
		return nil, ErrWithdrawalInProgress
	}
	if wallet.AvailableBalance < req.Amount {
		return nil, ErrInsufficientBalance
	}

	reference, err := utils.NewReference()
	if err != nil {
		return nil, err
	}
	w := &models.Withdrawal{
		ID:                uuid.New().String(),
		WalletID:          wallet.ID,
		UserID:            req.UserID,
		Amount:            req.Amount,
		Currency:          currency,
		Reference:         reference,
		TransferProcessor: s.opts.TransferProcessor,
		BankName:          strings.TrimSpace(req.BankName),
		BankCode:          strings.TrimSpace(req.BankCode),
		AccountNumber:     strings.TrimSpace(req.AccountNumber),
		AccountName:       strings.TrimSpace(req.AccountName),
	}
	if err := s.ledger.CreateWithdrawal(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to record withdrawal: %w", err)
	}
	utils.RecordWithdrawal(string(models.WithdrawalPending))
	s.logger.Info("Withdrawal requested",
		zap.String("withdrawal_id", w.ID), zap.String("user_id", w.UserID), zap.Int64("amount", w.Amount))

	return s.Process(ctx, w.ID)
}

// Process debits and locks the wallet, then queues the bank transfer. A withdrawal the wallet can no
// longer cover stays pending.
func (s *DefaultWithdrawalService) Process(ctx context.Context, withdrawalID string) (*models.Withdrawal, error) {
	w, err := s.ledger.ProcessWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	utils.RecordWithdrawal(string(models.WithdrawalProcessing))
	s.logger.Info("Withdrawal processing", zap.String("withdrawal_id", w.ID), zap.String("reference", w.Reference))

	if err := s.enqueueDispatch(ctx, w.ID); err != nil {
		// The debit is committed. The transfer can be dispatched again from the admin surface.
		s.logger.Error("Failed to enqueue transfer dispatch", zap.String("withdrawal_id", w.ID), zap.Error(err))
	}
	return w, nil
}

func (s *DefaultWithdrawalService) enqueueDispatch(ctx context.Context, withdrawalID string) error {
	if s.queue == nil {
		return errors.New("no task queue configured")
	}
	task, opts, err := tasks.NewTransferDispatchTask(withdrawalID)
	if err != nil {
		return err
	}
	_, err = s.queue.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// Reject declines a pending withdrawal. Nothing was debited yet.
func (s *DefaultWithdrawalService) Reject(ctx context.Context, withdrawalID, reason string) (*models.Withdrawal, error) {
	w, err := s.ledger.RejectWithdrawal(ctx, withdrawalID, reason)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	utils.RecordWithdrawal(string(models.WithdrawalRejected))
	s.logger.Info("Withdrawal rejected", zap.String("withdrawal_id", w.ID), zap.String("reason", reason))
	s.notify(ctx, w)
	return w, nil
}

func (s *DefaultWithdrawalService) notify(ctx context.Context, w *models.Withdrawal) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyWithdrawal(ctx, w); err != nil {
		s.logger.Warn("Failed to notify withdrawal update", zap.String("withdrawal_id", w.ID), zap.Error(err))
	}
}
