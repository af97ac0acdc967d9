package ledgerRepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"urbana/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// walletForUser creates the user's wallet if needed and returns it. With lock set the row is
// locked for the rest of the transaction.
func walletForUser(ctx context.Context, q queryer, userID, currency string, lock bool) (*models.Wallet, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO wallets (id, user_id, currency) VALUES ($1, $2, $3) ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), userID, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet for %s: %w", userID, err)
	}

	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var w models.Wallet
	if err := sqlx.GetContext(ctx, q, &w, query, userID); err != nil {
		return nil, pgErr(err)
	}
	return &w, nil
}

func (r *PostgresLedgerRepo) GetOrCreateWallet(ctx context.Context, userID, currency string) (*models.Wallet, error) {
	return walletForUser(ctx, r.db, userID, currency, false)
}

func (r *PostgresLedgerRepo) ListWalletTransactions(ctx context.Context, walletID string, limit int) ([]models.WalletTransaction, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	var txs []models.WalletTransaction
	err := r.db.SelectContext(ctx, &txs,
		`SELECT `+txColumns+` FROM wallet_transactions WHERE wallet_id = $1 ORDER BY seq DESC LIMIT $2`,
		walletID, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions of wallet %s: %w", walletID, err)
	}
	return txs, nil
}

func insertWalletTx(ctx context.Context, tx *sqlx.Tx, w *models.Wallet, txType models.TransactionType,
	status models.TransactionStatus, amount int64, reference, description, paymentID, orderID string) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if status == models.TxCompleted {
		completedAt = &now
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions (id, wallet_id, user_id, transaction_type, status, amount, reference,
			description, related_payment_id, related_order_id, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.New().String(), w.ID, w.UserID, txType, status, amount, reference, description,
		paymentID, orderID, now, completedAt,
	)
	return pgErr(err)
}

func adjustWallet(ctx context.Context, tx *sqlx.Tx, walletID string, available, pending int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE wallets SET available_balance = available_balance + $1, pending_balance = pending_balance + $2,
			updated_at = NOW()
		 WHERE id = $3`,
		available, pending, walletID)
	if err != nil {
		return fmt.Errorf("wallet update failed: %w", err)
	}
	return nil
}

func (r *PostgresLedgerRepo) HoldEscrow(ctx context.Context, escrow *models.Escrow) error {
	escrow.Status = models.EscrowHeld
	escrow.CreatedAt = time.Now().UTC()

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		designer, err := walletForUser(ctx, tx, escrow.DesignerID, escrow.Currency, true)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO escrows (id, order_id, payment_id, customer_id, designer_id, currency, amount,
				platform_commission, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			escrow.ID, escrow.OrderID, escrow.PaymentID, escrow.CustomerID, escrow.DesignerID,
			escrow.Currency, escrow.Amount, escrow.PlatformCommission, escrow.Status, escrow.CreatedAt,
		)
		if err != nil {
			return pgErr(err)
		}
		if err := insertWalletTx(ctx, tx, designer, models.TxEscrowHold, models.TxPending, escrow.DesignerShare(),
			escrow.HoldReference(), "Escrow hold for order "+escrow.OrderID, escrow.PaymentID, escrow.OrderID); err != nil {
			return err
		}
		return adjustWallet(ctx, tx, designer.ID, 0, escrow.DesignerShare())
	})
}

func (r *PostgresLedgerRepo) GetEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	var e models.Escrow
	if err := r.db.GetContext(ctx, &e, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id); err != nil {
		return nil, pgErr(err)
	}
	return &e, nil
}

func lockHeldEscrow(ctx context.Context, tx *sqlx.Tx, id string) (*models.Escrow, error) {
	var e models.Escrow
	if err := tx.GetContext(ctx, &e, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, pgErr(err)
	}
	if e.Status != models.EscrowHeld {
		return nil, ErrEscrowNotHeld
	}
	return &e, nil
}

func setWalletTxStatus(ctx context.Context, tx *sqlx.Tx, reference string, status models.TransactionStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE wallet_transactions SET status = $1, completed_at = NOW() WHERE reference = $2`,
		status, reference)
	return err
}

func (r *PostgresLedgerRepo) ReleaseEscrow(ctx context.Context, id, platformUserID string) (*models.Escrow, error) {
	var released *models.Escrow
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		e, err := lockHeldEscrow(ctx, tx, id)
		if err != nil {
			return err
		}
		designer, err := walletForUser(ctx, tx, e.DesignerID, e.Currency, true)
		if err != nil {
			return err
		}

		share := e.DesignerShare()
		if err := insertWalletTx(ctx, tx, designer, models.TxEscrowRelease, models.TxCompleted, share,
			e.ReleaseReference(), "Escrow release for order "+e.OrderID, e.PaymentID, e.OrderID); err != nil {
			return err
		}
		if err := setWalletTxStatus(ctx, tx, e.HoldReference(), models.TxCompleted); err != nil {
			return err
		}
		if err := adjustWallet(ctx, tx, designer.ID, share, -share); err != nil {
			return err
		}

		if e.PlatformCommission > 0 {
			platform, err := walletForUser(ctx, tx, platformUserID, e.Currency, true)
			if err != nil {
				return err
			}
			if err := insertWalletTx(ctx, tx, platform, models.TxCommission, models.TxCompleted, e.PlatformCommission,
				e.CommissionReference(), "Platform commission for order "+e.OrderID, e.PaymentID, e.OrderID); err != nil {
				return err
			}
			if err := adjustWallet(ctx, tx, platform.ID, e.PlatformCommission, 0); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE escrows SET status = $1, released_at = $2 WHERE id = $3`,
			models.EscrowReleased, now, e.ID); err != nil {
			return fmt.Errorf("failed to release escrow %s: %w", e.ID, err)
		}
		e.Status = models.EscrowReleased
		e.ReleasedAt = &now
		released = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func (r *PostgresLedgerRepo) RefundEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	var refunded *models.Escrow
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		e, err := lockHeldEscrow(ctx, tx, id)
		if err != nil {
			return err
		}
		designer, err := walletForUser(ctx, tx, e.DesignerID, e.Currency, true)
		if err != nil {
			return err
		}
		customer, err := walletForUser(ctx, tx, e.CustomerID, e.Currency, true)
		if err != nil {
			return err
		}

		if err := insertWalletTx(ctx, tx, customer, models.TxRefund, models.TxCompleted, e.Amount,
			e.RefundReference(), "Escrow refund for order "+e.OrderID, e.PaymentID, e.OrderID); err != nil {
			return err
		}
		if err := setWalletTxStatus(ctx, tx, e.HoldReference(), models.TxFailed); err != nil {
			return err
		}
		if err := adjustWallet(ctx, tx, designer.ID, 0, -e.DesignerShare()); err != nil {
			return err
		}
		if err := adjustWallet(ctx, tx, customer.ID, e.Amount, 0); err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE escrows SET status = $1, refunded_at = $2 WHERE id = $3`,
			models.EscrowRefunded, now, e.ID); err != nil {
			return fmt.Errorf("failed to refund escrow %s: %w", e.ID, err)
		}
		e.Status = models.EscrowRefunded
		e.RefundedAt = &now
		refunded = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refunded, nil
}

func (r *PostgresLedgerRepo) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	ok, err := exists(ctx, r.db, `SELECT EXISTS(SELECT 1 FROM wallets WHERE id = $1)`, w.WalletID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	w.Status = models.WithdrawalPending
	w.CreatedAt = time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO withdrawals (id, wallet_id, user_id, amount, currency, status, reference, transfer_processor,
			bank_name, bank_code, account_number, account_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		w.ID, w.WalletID, w.UserID, w.Amount, w.Currency, w.Status, w.Reference, w.TransferProcessor,
		w.BankName, w.BankCode, w.AccountNumber, w.AccountName, w.CreatedAt,
	)
	return pgErr(err)
}

func (r *PostgresLedgerRepo) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.db.GetContext(ctx, &w, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id); err != nil {
		return nil, pgErr(err)
	}
	return &w, nil
}

func (r *PostgresLedgerRepo) GetWithdrawalByReference(ctx context.Context, reference string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := r.db.GetContext(ctx, &w, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE reference = $1`, reference); err != nil {
		return nil, pgErr(err)
	}
	return &w, nil
}

func (r *PostgresLedgerRepo) ListWithdrawalsByUser(ctx context.Context, userID string) ([]models.Withdrawal, error) {
	var out []models.Withdrawal
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals for user %s: %w", userID, err)
	}
	return out, nil
}

func (r *PostgresLedgerRepo) ListStalledWithdrawals(ctx context.Context, processedBefore time.Time, limit int) ([]models.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals
		WHERE status = $1 AND processed_at < $2 ORDER BY processed_at ASC`
	args := []interface{}{string(models.WithdrawalProcessing), processedBefore}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	var out []models.Withdrawal
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list stalled withdrawals: %w", err)
	}
	return out, nil
}

func lockWithdrawal(ctx context.Context, tx *sqlx.Tx, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := tx.GetContext(ctx, &w, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, pgErr(err)
	}
	return &w, nil
}

func (r *PostgresLedgerRepo) ProcessWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	var processed *models.Withdrawal
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		w, err := lockWithdrawal(ctx, tx, id)
		if err != nil {
			return err
		}
		if w.Status != models.WithdrawalPending {
			return ErrInvalidTransition
		}

		var wallet models.Wallet
		if err := tx.GetContext(ctx, &wallet,
			`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, w.WalletID); err != nil {
			return pgErr(err)
		}
		if wallet.IsLocked {
			return ErrWalletLocked
		}
		if wallet.AvailableBalance < w.Amount {
			return ErrInsufficientBalance
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE wallets SET available_balance = available_balance - $1, is_locked = TRUE, updated_at = NOW()
			 WHERE id = $2`,
			w.Amount, wallet.ID); err != nil {
			return fmt.Errorf("wallet debit failed: %w", err)
		}
		if err := insertWalletTx(ctx, tx, &wallet, models.TxWithdrawal, models.TxCompleted, w.Amount,
			w.DebitReference(), "Withdrawal to bank", "", ""); err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE withdrawals SET status = $1, processed_at = $2 WHERE id = $3`,
			models.WithdrawalProcessing, now, w.ID); err != nil {
			return fmt.Errorf("failed to update withdrawal %s: %w", w.ID, err)
		}
		w.Status = models.WithdrawalProcessing
		w.ProcessedAt = &now
		processed = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return processed, nil
}

func (r *PostgresLedgerRepo) SetWithdrawalTransfer(ctx context.Context, id, transferID, transferStatus string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE withdrawals SET transfer_id = COALESCE(NULLIF($1, ''), transfer_id), transfer_status = $2
		 WHERE id = $3`,
		transferID, transferStatus, id)
	if err != nil {
		return fmt.Errorf("failed to update transfer of withdrawal %s: %w", id, err)
	}
	return rowsAffectedOrNotFound(res)
}

// settleWithdrawal finishes a processing withdrawal. credit is returned to the wallet, which is
// unlocked either way. A withdrawal already in the target state is returned unchanged.
func (r *PostgresLedgerRepo) settleWithdrawal(ctx context.Context, id string, to models.WithdrawalStatus,
	reason string, credit bool) (*models.Withdrawal, error) {
	var settled *models.Withdrawal
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		w, err := lockWithdrawal(ctx, tx, id)
		if err != nil {
			return err
		}
		if w.Status == to {
			settled = w
			return nil
		}
		if w.Status != models.WithdrawalProcessing {
			return ErrInvalidTransition
		}

		var wallet models.Wallet
		if err := tx.GetContext(ctx, &wallet,
			`SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, w.WalletID); err != nil {
			return pgErr(err)
		}
		var amount int64
		if credit {
			amount = w.Amount
			if err := insertWalletTx(ctx, tx, &wallet, models.TxRefund, models.TxCompleted, w.Amount,
				w.ReversalReference(), "Reversal of failed withdrawal", "", ""); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE wallets SET available_balance = available_balance + $1, is_locked = FALSE, updated_at = NOW()
			 WHERE id = $2`,
			amount, wallet.ID); err != nil {
			return fmt.Errorf("wallet unlock failed: %w", err)
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE withdrawals SET status = $1, completed_at = $2, failure_reason = $3 WHERE id = $4`,
			to, now, reason, w.ID); err != nil {
			return fmt.Errorf("failed to update withdrawal %s: %w", w.ID, err)
		}
		w.Status = to
		w.CompletedAt = &now
		w.FailureReason = reason
		settled = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func (r *PostgresLedgerRepo) CompleteWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	return r.settleWithdrawal(ctx, id, models.WithdrawalCompleted, "", false)
}

func (r *PostgresLedgerRepo) FailWithdrawal(ctx context.Context, id, reason string) (*models.Withdrawal, error) {
	return r.settleWithdrawal(ctx, id, models.WithdrawalFailed, reason, true)
}

func (r *PostgresLedgerRepo) RejectWithdrawal(ctx context.Context, id, reason string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := r.db.GetContext(ctx, &w,
		`UPDATE withdrawals SET status = $1, failure_reason = $2 WHERE id = $3 AND status = $4
		 RETURNING `+withdrawalColumns,
		models.WithdrawalRejected, reason, id, models.WithdrawalPending)
	if err == sql.ErrNoRows {
		if _, gerr := r.GetWithdrawal(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
