package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"urbana/models"
	"urbana/services/processor"
	"urbana/services/tasks"
	"urbana/utils"

	"go.uber.org/zap"
)

// Dispatch starts the bank transfer for a processing withdrawal. It runs on the queue and is safe to
// redeliver: withdrawals that already have a transfer or left processing are skipped.
func (s *DefaultWithdrawalService) Dispatch(ctx context.Context, withdrawalID string) error {
	w, err := s.ledger.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return mapLedgerError(err)
	}
	logger := s.logger.With(zap.String("withdrawal_id", w.ID), zap.String("reference", w.Reference))
	if w.Status != models.WithdrawalProcessing || w.TransferID != "" {
		logger.Debug("Transfer dispatch skipped", zap.String("status", string(w.Status)))
		return nil
	}

	transferer, err := s.processors.Transferer(s.transferProcessor(w))
	if err != nil {
		return err
	}

	tr, err := transferer.CreateTransfer(ctx, processor.TransferRequest{
		Reference:     w.Reference,
		Amount:        w.Amount,
		Currency:      w.Currency,
		BankCode:      w.BankCode,
		AccountNumber: w.AccountNumber,
		AccountName:   w.AccountName,
		Narration:     "Wallet withdrawal " + w.Reference,
	})
	if err != nil {
		if processor.IsRejection(err) {
			logger.Warn("Transfer rejected by processor", zap.Error(err))
			_, ferr := s.Fail(ctx, w.ID, err.Error())
			return ferr
		}
		return fmt.Errorf("failed to create transfer: %w", err)
	}

	if err := s.ledger.SetWithdrawalTransfer(ctx, w.ID, tr.ID, string(tr.State)); err != nil {
		return fmt.Errorf("failed to store transfer id: %w", err)
	}
	logger.Info("Transfer dispatched", zap.String("transfer_id", tr.ID), zap.String("state", string(tr.State)))

	return s.settle(ctx, w.ID, tr, 0)
}

// Poll checks a dispatched transfer. Pending transfers are re-checked until the poll budget runs out;
// after that the processor's webhook settles the withdrawal.
func (s *DefaultWithdrawalService) Poll(ctx context.Context, withdrawalID string, attempt int) error {
	w, err := s.ledger.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return mapLedgerError(err)
	}
	if w.Status != models.WithdrawalProcessing || w.TransferID == "" {
		return nil
	}

	transferer, err := s.processors.Transferer(s.transferProcessor(w))
	if err != nil {
		return err
	}
	tr, err := transferer.FetchTransfer(ctx, w.TransferID)
	if err != nil {
		return fmt.Errorf("failed to fetch transfer: %w", err)
	}
	if err := s.ledger.SetWithdrawalTransfer(ctx, w.ID, "", string(tr.State)); err != nil {
		return fmt.Errorf("failed to store transfer status: %w", err)
	}
	return s.settle(ctx, w.ID, tr, attempt)
}

// Recheck recovers a processing withdrawal whose dispatch task or poll budget ran out. Without a transfer
// it dispatches one; otherwise it fetches the transfer once and settles it. A transfer that is still
// pending is left for the next recheck.
func (s *DefaultWithdrawalService) Recheck(ctx context.Context, withdrawalID string) error {
	w, err := s.ledger.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return mapLedgerError(err)
	}
	switch {
	case w.Status != models.WithdrawalProcessing:
		return nil
	case w.TransferID == "":
		return s.Dispatch(ctx, w.ID)
	}
	return s.Poll(ctx, w.ID, s.opts.MaxPolls)
}

// SweepStalledTransfers rechecks withdrawals that have been processing longer than StaleAfter. A
// failing withdrawal does not stop the sweep. Returns how many were rechecked.
func (s *DefaultWithdrawalService) SweepStalledTransfers(ctx context.Context) (int, error) {
	stalled, err := s.ledger.ListStalledWithdrawals(ctx, time.Now().UTC().Add(-s.opts.StaleAfter), s.opts.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stalled withdrawals: %w", err)
	}
	checked := 0
	for _, w := range stalled {
		if err := s.Recheck(ctx, w.ID); err != nil {
			s.logger.Warn("Stalled transfer recheck failed", zap.String("withdrawal_id", w.ID), zap.Error(err))
			continue
		}
		checked++
	}
	if len(stalled) > 0 {
		s.logger.Info("Stalled transfers rechecked", zap.Int("found", len(stalled)), zap.Int("rechecked", checked))
	}
	return checked, nil
}

// settle applies a transfer's state to the withdrawal, scheduling another poll while it is pending.
func (s *DefaultWithdrawalService) settle(ctx context.Context, withdrawalID string, tr *processor.Transfer, attempt int) error {
	switch tr.State {
	case processor.TransferSuccess:
		_, err := s.Complete(ctx, withdrawalID)
		return err
	case processor.TransferFailed, processor.TransferReversed:
		reason := tr.Message
		if reason == "" {
			reason = "transfer " + string(tr.State)
		}
		_, err := s.Fail(ctx, withdrawalID, reason)
		return err
	}

	next := attempt + 1
	if next > s.opts.MaxPolls {
		s.logger.Info("Transfer still pending, awaiting webhook",
			zap.String("withdrawal_id", withdrawalID), zap.Int("polls", attempt))
		return nil
	}
	task, opts, err := tasks.NewTransferPollTask(withdrawalID, next, s.opts.PollInterval)
	if err != nil {
		return err
	}
	if s.queue == nil {
		return errors.New("no task queue configured")
	}
	if _, err := s.queue.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to schedule transfer poll: %w", err)
	}
	return nil
}

// Complete marks the transfer paid and unlocks the wallet.
func (s *DefaultWithdrawalService) Complete(ctx context.Context, withdrawalID string) (*models.Withdrawal, error) {
	before, err := s.ledger.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	w, err := s.ledger.CompleteWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if before.Status != models.WithdrawalCompleted {
		utils.RecordWithdrawal(string(models.WithdrawalCompleted))
		s.logger.Info("Withdrawal completed", zap.String("withdrawal_id", w.ID), zap.String("reference", w.Reference))
		s.notify(ctx, w)
	}
	return w, nil
}

// Fail returns the amount to the wallet and unlocks it.
func (s *DefaultWithdrawalService) Fail(ctx context.Context, withdrawalID, reason string) (*models.Withdrawal, error) {
	before, err := s.ledger.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	w, err := s.ledger.FailWithdrawal(ctx, withdrawalID, reason)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if before.Status != models.WithdrawalFailed {
		utils.RecordWithdrawal(string(models.WithdrawalFailed))
		s.logger.Warn("Withdrawal failed, funds returned",
			zap.String("withdrawal_id", w.ID), zap.String("reference", w.Reference), zap.String("reason", reason))
		s.notify(ctx, w)
	}
	return w, nil
}

// ReconcileTransfer settles the withdrawal a transfer webhook refers to. Unknown references surface
// ledger ErrNotFound so the caller can acknowledge them.
func (s *DefaultWithdrawalService) ReconcileTransfer(ctx context.Context, reference string, state processor.TransferState, reason string) error {
	w, err := s.ledger.GetWithdrawalByReference(ctx, reference)
	if err != nil {
		return err
	}
	if w.Status != models.WithdrawalProcessing {
		if !alreadyApplied(w.Status, state) {
			s.logger.Warn("Transfer event conflicts with withdrawal state",
				zap.String("withdrawal_id", w.ID), zap.String("status", string(w.Status)), zap.String("state", string(state)))
		}
		return nil
	}
	if err := s.ledger.SetWithdrawalTransfer(ctx, w.ID, "", string(state)); err != nil {
		return err
	}

	switch state {
	case processor.TransferSuccess:
		_, err = s.Complete(ctx, w.ID)
	case processor.TransferFailed, processor.TransferReversed:
		_, err = s.Fail(ctx, w.ID, reason)
	}
	if errors.Is(err, ErrInvalidState) {
		// Settled concurrently by a poll.
		return nil
	}
	return err
}

func alreadyApplied(status models.WithdrawalStatus, state processor.TransferState) bool {
	switch state {
	case processor.TransferSuccess:
		return status == models.WithdrawalCompleted
	case processor.TransferFailed, processor.TransferReversed:
		return status == models.WithdrawalFailed
	}
	return true
}

func (s *DefaultWithdrawalService) transferProcessor(w *models.Withdrawal) models.Processor {
	if w.TransferProcessor != "" {
		return w.TransferProcessor
	}
	return s.opts.TransferProcessor
}
