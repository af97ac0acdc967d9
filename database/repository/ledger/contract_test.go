package ledgerRepo_test

import (
	"context"
	"sync"
	"testing"
	"time"

	ledgerRepo "urbana/database/repository/ledger"
	"urbana/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runLedgerContract exercises behaviour every LedgerRepository backend must share.
func runLedgerContract(t *testing.T, newRepo func(t *testing.T) ledgerRepo.LedgerRepository) {
	t.Run("attempts", func(t *testing.T) { testAttempts(t, newRepo(t)) })
	t.Run("finalize is idempotent", func(t *testing.T) { testFinalizeIdempotent(t, newRepo(t)) })
	t.Run("concurrent finalize creates one payment", func(t *testing.T) { testFinalizeConcurrent(t, newRepo(t)) })
	t.Run("escrow release", func(t *testing.T) { testEscrowRelease(t, newRepo(t)) })
	t.Run("escrow refund", func(t *testing.T) { testEscrowRefund(t, newRepo(t)) })
	t.Run("withdrawal lifecycle", func(t *testing.T) { testWithdrawals(t, newRepo(t)) })
	t.Run("webhook logs", func(t *testing.T) { testWebhookLogs(t, newRepo(t)) })
}

func newInvoice(t *testing.T, repo ledgerRepo.LedgerRepository, userID string, amount int64) *models.Invoice {
	t.Helper()
	inv := &models.Invoice{
		ID:       uuid.New().String(),
		UserID:   userID,
		Amount:   amount,
		Currency: "NGN",
		Purpose:  "order",
	}
	require.NoError(t, repo.CreateInvoice(context.Background(), inv))
	return inv
}

func newAttempt(t *testing.T, repo ledgerRepo.LedgerRepository, inv *models.Invoice) *models.PaymentAttempt {
	t.Helper()
	a := &models.PaymentAttempt{
		ID:        uuid.New().String(),
		UserID:    inv.UserID,
		Amount:    inv.Amount,
		Currency:  inv.Currency,
		Processor: models.ProcessorPaystack,
		Reference: "ATT-" + uuid.New().String(),
		Status:    models.StatusInitialized,
	}
	require.NoError(t, repo.AttachAttempt(context.Background(), inv.ID, a))
	return a
}

// paidPayment walks an invoice through to a settled Payment.
func paidPayment(t *testing.T, repo ledgerRepo.LedgerRepository, userID string, amount int64) *models.Payment {
	t.Helper()
	ctx := context.Background()
	inv := newInvoice(t, repo, userID, amount)
	a := newAttempt(t, repo, inv)
	require.NoError(t, repo.MarkAttemptSucceeded(ctx, a.ID, "ps_"+a.Reference))
	res, err := repo.Finalize(ctx, ledgerRepo.FinalizeParams{
		AttemptID: a.ID, Processor: a.Processor, ProcessorPaymentID: "ps_" + a.Reference, PaidAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return res.Payment
}

func assertReconciled(t *testing.T, repo ledgerRepo.LedgerRepository, userID string) *models.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := repo.GetOrCreateWallet(ctx, userID, "NGN")
	require.NoError(t, err)
	txs, err := repo.ListWalletTransactions(ctx, w.ID, 0)
	require.NoError(t, err)
	available, pending := models.Reconcile(txs)
	assert.Equal(t, available, w.AvailableBalance, "available balance drifted from ledger")
	assert.Equal(t, pending, w.PendingBalance, "pending balance drifted from ledger")
	assert.GreaterOrEqual(t, w.AvailableBalance, int64(0))
	return w
}

func testAttempts(t *testing.T, repo ledgerRepo.LedgerRepository) {
	ctx := context.Background()
	inv := newInvoice(t, repo, "user-1", 5000)
	a := newAttempt(t, repo, inv)

	dup := *a
	dup.ID = uuid.New().String()
	assert.ErrorIs(t, repo.AttachAttempt(ctx, inv.ID, &dup), ledgerRepo.ErrDuplicate)

	orphan := &models.PaymentAttempt{ID: uuid.New().String(), Reference: "ATT-" + uuid.New().String(),
		Processor: models.ProcessorPaystack, Status: models.StatusInitialized, Currency: "NGN", Amount: 1}
	assert.ErrorIs(t, repo.AttachAttempt(ctx, "missing-invoice", orphan), ledgerRepo.ErrNotFound)

	stored, err := repo.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, stored.PaymentAttemptIDs)

	found, err := repo.FindAttempt(ctx, models.ProcessorPaystack, a.Reference)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	_, err = repo.FindAttempt(ctx, models.ProcessorStripe, a.Reference)
	assert.ErrorIs(t, err, ledgerRepo.ErrNotFound)

	require.NoError(t, repo.MarkAttemptFailed(ctx, a.ID))
	require.NoError(t, repo.MarkAttemptSucceeded(ctx, a.ID, "txn_991"))
	require.NoError(t, repo.MarkAttemptFailed(ctx, a.ID))

	found, err = repo.FindAttempt(ctx, models.ProcessorPaystack, "txn_991")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, found.Status)
	assert.True(t, found.IsSuccessful)

	assert.ErrorIs(t, repo.MarkAttemptFailed(ctx, "missing"), ledgerRepo.ErrNotFound)
}

func testFinalizeIdempotent(t *testing.T, repo ledgerRepo.LedgerRepository) {
	ctx := context.Background()
	userID := "user-" + uuid.New().String()
	inv := newInvoice(t, repo, userID, 12000)
	a := newAttempt(t, repo, inv)
	params := ledgerRepo.FinalizeParams{
		AttemptID: a.ID, Processor: a.Processor, ProcessorPaymentID: "pp-1", PaidAt: time.Now().UTC(),
	}

	first, err := repo.Finalize(ctx, params)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.Payment.IsPaid)
	assert.Equal(t, inv.ID, first.Payment.Reference)
	require.Len(t, first.Invoices, 1)
	assert.True(t, first.Invoices[0].IsActive)
	require.NotNil(t, first.Invoices[0].ExpiryDate)

	second, err := repo.Finalize(ctx, params)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)

	stored, err := repo.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Payment.ID, stored.PaymentID)

	payments, err := repo.ListPaymentsByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	_, err = repo.Finalize(ctx, ledgerRepo.FinalizeParams{AttemptID: "missing"})
	assert.ErrorIs(t, err, ledgerRepo.ErrNotFound)
}

func testFinalizeConcurrent(t *testing.T, repo ledgerRepo.LedgerRepository) {
	ctx := context.Background()
	inv := newInvoice(t, repo, "user-3", 7000)
	a := newAttempt(t, repo, inv)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.Finalize(ctx, ledgerRepo.FinalizeParams{AttemptID: a.ID, Processor: a.Processor})
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[res.Payment.ID] = true
			if res.Created {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
}

func testEscrowRelease(t *testing.T, repo ledgerRepo.LedgerRepository) {
	ctx := context.Background()
	payment := paidPayment(t, repo, "customer-r", 10000)
	designerID := "designer-" + uuid.New().String()
	platformID := "platform-" + uuid.New().String()

	escrow := &models.Escrow{
		ID: uuid.New().String(), OrderID: "order-1", PaymentID: payment.ID, CustomerID: "customer-r",
		DesignerID: designerID, Currency: "NGN", Amount: 10000, PlatformCommission: 1000,
	}
	require.NoError(t, repo.HoldEscrow(ctx, escrow))
	assert.ErrorIs(t, repo.HoldEscrow(ctx, escrow), ledgerRepo.ErrDuplicate)

	w := assertReconciled(t, repo, designerID)
	assert.Equal(t, int64(9000), w.PendingBalance)
	assert.Equal(t, int64(0), w.AvailableBalance)

	released, err := repo.ReleaseEscrow(ctx, escrow.ID, platformID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowReleased, released.Status)
	assert.NotNil(t, released.ReleasedAt)

	w = assertReconciled(t, repo, designerID)
	assert.Equal(t, int64(9000), w.AvailableBalance)
	assert.Equal(t, int64(0), w.PendingBalance)

	p := assertReconciled(t, repo, platformID)
	assert.Equal(t, int64(1000), p.AvailableBalance)

	_, err = repo.ReleaseEscrow(ctx, escrow.ID, platformID)
	assert.ErrorIs(t, err, ledgerRepo.ErrEscrowNotHeld)
	_, err = repo.RefundEscrow(ctx, escrow.ID)
	assert.ErrorIs(t, err, ledgerRepo.ErrEscrowNotHeld)

	w = assertReconciled(t, repo, designerID)
	assert.Equal(t, int64(9000), w.AvailableBalance, "second release must not credit twice")

	_, err = repo.ReleaseEscrow(ctx, "missing", platformID)
	assert.ErrorIs(t, err, ledgerRepo.ErrNotFound)
}

func testEscrowRefund(t *testing.T, repo ledgerRepo.LedgerRepository) {
	ctx := context.Background()
	customerID := "customer-" + uuid.New().String()
	designerID := "designer-" + uuid.New().String()
	payment := paidPayment(t, repo, customerID, 8000)

	escrow := &models.Escrow{
		ID: uuid.New().String(), OrderID: "order-2", PaymentID: payment.ID, CustomerID: customerID,
		DesignerID: designerID, Currency: "NGN", Amount: 8000, PlatformCommission: 800,
	}
	require.NoError(t, repo.HoldEscrow(ctx, escrow))

	refunded, err := repo.RefundEscrow(ctx, escrow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EscrowRefunded, refunded.Status)

	d := assertReconciled(t, repo, designerID)
	assert.Equal(t, int64(0), d.PendingBalance)
	assert.Equal(t, int64(0), d.AvailableBalance)

	c := assertReconciled(t, repo, customerID)
	assert.Equal(t, int64(8000), c.AvailableBalance)
}

// fundedWallet releases an escrow to give userID spendable balance.
func fundedWallet(t *testing.T, repo ledgerRepo.LedgerRepository, userID string, amount int64) *models.Wallet {
	t.Helper()
	ctx := context.Background()
	payment := paidPayment(t, repo, "buyer-"+uuid.New().String(), amount)
	escrow := &models.Escrow{
		ID: uuid.New().String(), OrderID: "order-f", PaymentID: payment.ID, CustomerID: payment.UserID,
		DesignerID: userID, Currency: "NGN", Amount: amount,
	}
	require.NoError(t, repo.HoldEscrow(ctx, escrow))
	_, err := repo.ReleaseEscrow(ctx, escrow.ID, "platform")
	require.NoError(t, err)
	w, err := repo.GetOrCreateWallet(ctx, userID, "NGN")
	require.NoError(t, err)
	return w
}

func newWithdrawal(t *testing.T, repo ledgerRepo.LedgerRepository, w *models.Wallet, amount int64) *models.Withdrawal {
	t.Helper()
	id := uuid.New().String()
	wd := &models.Withdrawal{
		ID: id, WalletID: w.ID, UserID: w.UserID, Amount: amount, Currency: "NGN", Reference: "WD-" + id,
		TransferProcessor: models.ProcessorPaystack, BankCode: "058", AccountNumber: "0123456789",
		AccountName: "Ada Obi", BankName: "GTBank",
	}
	require.NoError(t, repo.CreateWithdrawal(context.Background(), wd))
	return wd
}

func testWithdrawals(t *testing.T, repo ledgerRepo.LedgerRepository) {
	ctx := context.Background()
	userID := "designer-" + uuid.New().String()
	w := fundedWallet(t, repo, userID, 5000)

	tooBig := newWithdrawal(t, repo, w, 6000)
	_, err := repo.ProcessWithdrawal(ctx, tooBig.ID)
	assert.ErrorIs(t, err, ledgerRepo.ErrInsufficientBalance)
	unchanged := assertReconciled(t, repo, userID)
	assert.Equal(t, int64(5000), unchanged.AvailableBalance)
	assert.False(t, unchanged.IsLocked)

	rejected, err := repo.RejectWithdrawal(ctx, tooBig.ID, "amount exceeds balance")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalRejected, rejected.Status)

	first := newWithdrawal(t, repo, w, 2000)
	processed, err := repo.ProcessWithdrawal(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalProcessing, processed.Status)

	locked := assertReconciled(t, repo, userID)
	assert.Equal(t, int64(3000), locked.AvailableBalance)
	assert.True(t, locked.IsLocked)

	second := newWithdrawal(t, repo, w, 1000)
	_, err = repo.ProcessWithdrawal(ctx, second.ID)
	assert.ErrorIs(t, err, ledgerRepo.ErrWalletLocked)

	stalled, err := repo.ListStalledWithdrawals(ctx, time.Now().Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Contains(t, withdrawalIDs(stalled), first.ID)
	assert.NotContains(t, withdrawalIDs(stalled), second.ID)
	fresh, err := repo.ListStalledWithdrawals(ctx, time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.NotContains(t, withdrawalIDs(fresh), first.ID)

	require.NoError(t, repo.SetWithdrawalTransfer(ctx, first.ID, "TRF_1", "pending"))
	completed, err := repo.CompleteWithdrawal(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, completed.Status)
	assert.Equal(t, "TRF_1", completed.TransferID)

	again, err := repo.CompleteWithdrawal(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, again.Status)
	_, err = repo.FailWithdrawal(ctx, first.ID, "late failure")
	assert.ErrorIs(t, err, ledgerRepo.ErrInvalidTransition)

	_, err = repo.ProcessWithdrawal(ctx, second.ID)
	require.NoError(t, err)
	failed, err := repo.FailWithdrawal(ctx, second.ID, "account closed")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalFailed, failed.Status)
	assert.Equal(t, "account closed", failed.FailureReason)

	final := assertReconciled(t, repo, userID)
	assert.Equal(t, int64(3000), final.AvailableBalance)
	assert.False(t, final.IsLocked)

	byRef, err := repo.GetWithdrawalByReference(ctx, second.Reference)
	require.NoError(t, err)
	assert.Equal(t, second.ID, byRef.ID)

	list, err := repo.ListWithdrawalsByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func withdrawalIDs(list []models.Withdrawal) []string {
	ids := make([]string, 0, len(list))
	for _, w := range list {
		ids = append(ids, w.ID)
	}
	return ids
}

func testWebhookLogs(t *testing.T, repo ledgerRepo.LedgerRepository) {
	ctx := context.Background()
	ref := "ref-" + uuid.New().String()

	first := &models.PaymentWebhookLog{Processor: models.ProcessorPaystack, EventType: "charge.success",
		Reference: ref, RawPayload: `{"event":"charge.success"}`, StatusCode: 200}
	require.NoError(t, repo.LogWebhook(ctx, first))
	require.NotEmpty(t, first.ID)

	second := &models.PaymentWebhookLog{Processor: models.ProcessorPaystack, EventType: "charge.success",
		Reference: ref, RawPayload: `{"event":"charge.success"}`, StatusCode: 200}
	require.NoError(t, repo.LogWebhook(ctx, second))
	require.NoError(t, repo.MarkWebhookProcessed(ctx, second.ID))

	logs, err := repo.ListWebhookLogs(ctx, ledgerRepo.WebhookFilter{Reference: ref})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, second.ID, logs[0].ID)
	assert.True(t, logs[0].Processed)
	assert.False(t, logs[1].Processed)

	limited, err := repo.ListWebhookLogs(ctx, ledgerRepo.WebhookFilter{Reference: ref, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	assert.ErrorIs(t, repo.MarkWebhookProcessed(ctx, "missing"), ledgerRepo.ErrNotFound)
}
