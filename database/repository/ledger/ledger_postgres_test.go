package ledgerRepo

import (
	"context"
	"regexp"
	"testing"
	"time"

	"urbana/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedgerMock(t *testing.T) (*PostgresLedgerRepo, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { sqlxDB.Close() })
	return NewPostgresLedgerRepo(sqlxDB), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var (
	withdrawalRowCols = []string{"id", "wallet_id", "user_id", "amount", "currency", "status", "reference"}
	walletRowCols     = []string{"id", "user_id", "currency", "available_balance", "pending_balance", "is_locked"}
)

func TestProcessWithdrawal_DebitsAndLocks(t *testing.T) {
	repo, mock := setupLedgerMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM withdrawals WHERE id = $1 FOR UPDATE")).
		WithArgs("wd-1").
		WillReturnRows(sqlmock.NewRows(withdrawalRowCols).
			AddRow("wd-1", "wal-1", "designer-1", 2000, "NGN", "pending", "WD-1"))
	mock.ExpectQuery(q("FROM wallets WHERE id = $1 FOR UPDATE")).
		WithArgs("wal-1").
		WillReturnRows(sqlmock.NewRows(walletRowCols).AddRow("wal-1", "designer-1", "NGN", 5000, 0, false))
	mock.ExpectExec(q("UPDATE wallets SET available_balance = available_balance - $1, is_locked = TRUE")).
		WithArgs(int64(2000), "wal-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO wallet_transactions")).
		WithArgs(sqlmock.AnyArg(), "wal-1", "designer-1", "withdrawal", "completed", int64(2000), "WDR-wd-1",
			"Withdrawal to bank", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q("UPDATE withdrawals SET status = $1, processed_at = $2 WHERE id = $3")).
		WithArgs("processing", sqlmock.AnyArg(), "wd-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w, err := repo.ProcessWithdrawal(ctx, "wd-1")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalProcessing, w.Status)
	assert.NotNil(t, w.ProcessedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessWithdrawal_InsufficientBalanceRollsBack(t *testing.T) {
	repo, mock := setupLedgerMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM withdrawals WHERE id = $1 FOR UPDATE")).
		WithArgs("wd-2").
		WillReturnRows(sqlmock.NewRows(withdrawalRowCols).
			AddRow("wd-2", "wal-1", "designer-1", 9000, "NGN", "pending", "WD-2"))
	mock.ExpectQuery(q("FROM wallets WHERE id = $1 FOR UPDATE")).
		WithArgs("wal-1").
		WillReturnRows(sqlmock.NewRows(walletRowCols).AddRow("wal-1", "designer-1", "NGN", 500, 0, false))
	mock.ExpectRollback()

	_, err := repo.ProcessWithdrawal(context.Background(), "wd-2")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessWithdrawal_LockedWallet(t *testing.T) {
	repo, mock := setupLedgerMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM withdrawals WHERE id = $1 FOR UPDATE")).
		WithArgs("wd-3").
		WillReturnRows(sqlmock.NewRows(withdrawalRowCols).
			AddRow("wd-3", "wal-1", "designer-1", 100, "NGN", "pending", "WD-3"))
	mock.ExpectQuery(q("FROM wallets WHERE id = $1 FOR UPDATE")).
		WithArgs("wal-1").
		WillReturnRows(sqlmock.NewRows(walletRowCols).AddRow("wal-1", "designer-1", "NGN", 5000, 0, true))
	mock.ExpectRollback()

	_, err := repo.ProcessWithdrawal(context.Background(), "wd-3")
	assert.ErrorIs(t, err, ErrWalletLocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseEscrow_AlreadyReleased(t *testing.T) {
	repo, mock := setupLedgerMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM escrows WHERE id = $1 FOR UPDATE")).
		WithArgs("esc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "payment_id", "designer_id", "amount", "platform_commission", "status"}).
			AddRow("esc-1", "order-1", "pay-1", "designer-1", 10000, 1000, "released"))
	mock.ExpectRollback()

	_, err := repo.ReleaseEscrow(context.Background(), "esc-1", "platform")
	assert.ErrorIs(t, err, ErrEscrowNotHeld)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalize_ExistingPaymentIsReused(t *testing.T) {
	repo, mock := setupLedgerMock(t)
	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM payment_attempts WHERE id = $1)")).
		WithArgs("att-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q("WHERE id IN (SELECT invoice_id FROM invoice_payment_attempts WHERE attempt_id = $1)")).
		WithArgs("att-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "currency", "is_active", "payment_id", "created_at"}).
			AddRow("inv-1", "user-1", 5000, "NGN", true, "pay-1", paidAt))
	mock.ExpectQuery(q("FROM payments WHERE reference = $1")).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "currency", "reference", "status", "is_paid", "date_time_paid"}).
			AddRow("pay-1", "user-1", 5000, "NGN", "inv-1", "success", true, paidAt))
	mock.ExpectQuery(q("FROM invoice_payment_attempts WHERE invoice_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"invoice_id", "attempt_id"}).AddRow("inv-1", "att-1"))
	mock.ExpectCommit()

	res, err := repo.Finalize(context.Background(), FinalizeParams{AttemptID: "att-1", Processor: models.ProcessorPaystack})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "pay-1", res.Payment.ID)
	assert.Equal(t, []string{"att-1"}, res.Invoices[0].PaymentAttemptIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalize_InvoiceSettledByAnotherPayment(t *testing.T) {
	repo, mock := setupLedgerMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM payment_attempts WHERE id = $1)")).
		WithArgs("att-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q("WHERE id IN (SELECT invoice_id FROM invoice_payment_attempts WHERE attempt_id = $1)")).
		WithArgs("att-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "currency", "payment_id", "created_at"}).
			AddRow("inv-2", "user-1", 5000, "NGN", "pay-other", now))
	mock.ExpectQuery(q("FROM payments WHERE reference = $1")).
		WithArgs("inv-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reference", "date_time_paid"}).AddRow("pay-2", "inv-2", now))
	mock.ExpectRollback()

	_, err := repo.Finalize(context.Background(), FinalizeParams{AttemptID: "att-2"})
	assert.ErrorIs(t, err, ErrInvoiceSettled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvoice_DuplicateMapsToSentinel(t *testing.T) {
	repo, mock := setupLedgerMock(t)

	mock.ExpectExec(q("INSERT INTO invoices")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.CreateInvoice(context.Background(), &models.Invoice{ID: "inv-1", UserID: "u", Amount: 1, Currency: "NGN"})
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListWalletTransactions_NoLimitPassesNull(t *testing.T) {
	repo, mock := setupLedgerMock(t)

	mock.ExpectQuery(q("FROM wallet_transactions WHERE wallet_id = $1 ORDER BY seq DESC LIMIT $2")).
		WithArgs("wal-1", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_id", "transaction_type", "status", "amount", "reference"}).
			AddRow("tx-1", "wal-1", "escrow_release", "completed", 900, "ESCROW-1"))

	txs, err := repo.ListWalletTransactions(context.Background(), "wal-1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxEscrowRelease, txs[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListStalledWithdrawals(t *testing.T) {
	repo, mock := setupLedgerMock(t)
	cutoff := time.Now().Add(-10 * time.Minute)

	mock.ExpectQuery(q("FROM withdrawals WHERE status = $1 AND processed_at < $2 ORDER BY processed_at ASC LIMIT $3")).
		WithArgs("processing", cutoff, int64(50)).
		WillReturnRows(sqlmock.NewRows(withdrawalRowCols).
			AddRow("wd-3", "wal-1", "designer-1", 2000, "NGN", "processing", "WD-3"))

	list, err := repo.ListStalledWithdrawals(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wd-3", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
