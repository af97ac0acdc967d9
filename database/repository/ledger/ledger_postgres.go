package ledgerRepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	invoiceColumns = `id, user_id, amount, currency, purpose, start_date, expiry_date, is_active, is_expired,
		is_used, is_deleted, expire_notification_sent, COALESCE(payment_id, '') AS payment_id, created_at`
	attemptColumns = `id, user_id, amount, currency, processor, processor_payment_id, external_reference,
		reference, status, is_successful, created_at, updated_at`
	paymentColumns = `id, user_id, amount, currency, reference, processor, processor_payment_id, status,
		is_paid, date_time_paid, created_at`
	walletColumns = `id, user_id, currency, available_balance, pending_balance, is_locked, created_at, updated_at`
	txColumns     = `id, wallet_id, user_id, transaction_type, status, amount, reference, description,
		related_payment_id, related_order_id, created_at, completed_at`
	escrowColumns = `id, order_id, payment_id, customer_id, designer_id, currency, amount, platform_commission,
		status, created_at, released_at, refunded_at`
	withdrawalColumns = `id, wallet_id, user_id, amount, currency, status, reference, transfer_processor,
		transfer_id, transfer_status, failure_reason, bank_name, bank_code, account_number, account_name,
		created_at, processed_at, completed_at`
	webhookLogColumns = `id, processor, event_type, reference, raw_payload, status_code, processed, created_at,
		processed_at`
)

// PostgresLedgerRepo implements LedgerRepository on PostgreSQL. Rows that an operation mutates are
// read with SELECT ... FOR UPDATE inside the operation's transaction.
type PostgresLedgerRepo struct {
	db *sqlx.DB
}

func NewPostgresLedgerRepo(db *sqlx.DB) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{db: db}
}

func (r *PostgresLedgerRepo) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// pgErr converts driver errors into the package sentinels.
func pgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

func rowsAffectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

func exists(ctx context.Context, q queryer, query string, args ...interface{}) (bool, error) {
	var ok bool
	if err := sqlx.GetContext(ctx, q, &ok, query, args...); err != nil {
		return false, fmt.Errorf("existence check failed: %w", err)
	}
	return ok, nil
}

var _ LedgerRepository = (*PostgresLedgerRepo)(nil)
