package ledgerRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"urbana/models"

	"github.com/google/uuid"
)

// MemoryLedgerRepo keeps the ledger in process memory. A single mutex serializes every operation,
// which gives each method the same all-or-nothing behaviour the database backends get from
// transactions.
type MemoryLedgerRepo struct {
	mu sync.Mutex

	invoices    map[string]*models.Invoice
	attempts    map[string]*models.PaymentAttempt
	payments    map[string]*models.Payment
	wallets     map[string]*models.Wallet // keyed by wallet id
	txs         []*models.WalletTransaction
	escrows     map[string]*models.Escrow
	withdrawals map[string]*models.Withdrawal
	webhooks    []*models.PaymentWebhookLog
}

// NewMemoryLedgerRepo constructs an empty in-memory ledger.
func NewMemoryLedgerRepo() *MemoryLedgerRepo {
	return &MemoryLedgerRepo{
		invoices:    make(map[string]*models.Invoice),
		attempts:    make(map[string]*models.PaymentAttempt),
		payments:    make(map[string]*models.Payment),
		wallets:     make(map[string]*models.Wallet),
		escrows:     make(map[string]*models.Escrow),
		withdrawals: make(map[string]*models.Withdrawal),
	}
}

func copyInvoice(inv *models.Invoice) *models.Invoice {
	c := *inv
	c.PaymentAttemptIDs = append([]string(nil), inv.PaymentAttemptIDs...)
	return &c
}

func (r *MemoryLedgerRepo) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.invoices[inv.ID]; ok {
		return ErrDuplicate
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	r.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (r *MemoryLedgerRepo) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInvoice(inv), nil
}

func (r *MemoryLedgerRepo) ListInvoicesByUser(ctx context.Context, userID string) ([]models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Invoice
	for _, inv := range r.invoices {
		if inv.UserID == userID && !inv.IsDeleted {
			out = append(out, *copyInvoice(inv))
		}
	}
	sortInvoices(out)
	return out, nil
}

func (r *MemoryLedgerRepo) AttachAttempt(ctx context.Context, invoiceID string, attempt *models.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[invoiceID]
	if !ok {
		return ErrNotFound
	}
	for _, a := range r.attempts {
		if a.Reference == attempt.Reference || a.ID == attempt.ID {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	c := *attempt
	r.attempts[attempt.ID] = &c
	inv.PaymentAttemptIDs = append(inv.PaymentAttemptIDs, attempt.ID)
	return nil
}

func (r *MemoryLedgerRepo) SetAttemptExternalReference(ctx context.Context, attemptID, externalRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[attemptID]
	if !ok {
		return ErrNotFound
	}
	a.ExternalReference = externalRef
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryLedgerRepo) FindAttempt(ctx context.Context, processor models.Processor, reference string) (*models.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.attempts {
		if a.Processor == processor && a.Reference == reference {
			c := *a
			return &c, nil
		}
	}
	for _, a := range r.attempts {
		if a.Processor == processor && a.ProcessorPaymentID != "" && a.ProcessorPaymentID == reference {
			c := *a
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryLedgerRepo) MarkAttemptFailed(ctx context.Context, attemptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[attemptID]
	if !ok {
		return ErrNotFound
	}
	if a.Status == models.StatusSuccess {
		return nil
	}
	a.Status = models.StatusFailed
	a.IsSuccessful = false
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryLedgerRepo) MarkAttemptSucceeded(ctx context.Context, attemptID, processorPaymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.attempts[attemptID]
	if !ok {
		return ErrNotFound
	}
	if a.Status == models.StatusSuccess {
		return nil
	}
	a.Status = models.StatusSuccess
	a.IsSuccessful = true
	a.ProcessorPaymentID = processorPaymentID
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryLedgerRepo) InvoicesForAttempt(ctx context.Context, attemptID string) ([]models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invoicesForAttemptLocked(attemptID), nil
}

func (r *MemoryLedgerRepo) invoicesForAttemptLocked(attemptID string) []models.Invoice {
	var out []models.Invoice
	for _, inv := range r.invoices {
		for _, id := range inv.PaymentAttemptIDs {
			if id == attemptID {
				out = append(out, *copyInvoice(inv))
				break
			}
		}
	}
	sortInvoices(out)
	return out
}

func (r *MemoryLedgerRepo) Finalize(ctx context.Context, params FinalizeParams) (*models.FinalizeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.attempts[params.AttemptID]; !ok {
		return nil, ErrNotFound
	}
	invoices := r.invoicesForAttemptLocked(params.AttemptID)
	if len(invoices) == 0 {
		return nil, ErrOrphanAttempt
	}

	first := invoices[0]
	var payment *models.Payment
	for _, p := range r.payments {
		if p.Reference == first.ID {
			payment = p
			break
		}
	}
	created := false
	if payment == nil {
		payment = newSettlingPayment(first, params)
		created = true
	}

	// Check every invoice before mutating any of them.
	for _, inv := range invoices {
		if inv.PaymentID != "" && inv.PaymentID != payment.ID {
			return nil, ErrInvoiceSettled
		}
	}

	if created {
		r.payments[payment.ID] = payment
	}
	paidAt := *payment.DateTimePaid
	for i := range invoices {
		stored := r.invoices[invoices[i].ID]
		if stored.PaymentID == "" {
			stored.Activate(payment.ID, paidAt)
		}
		invoices[i] = *copyInvoice(stored)
	}

	c := *payment
	return &models.FinalizeResult{Payment: &c, Invoices: invoices, Created: created}, nil
}

func (r *MemoryLedgerRepo) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *MemoryLedgerRepo) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payments {
		if p.Reference == reference {
			c := *p
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryLedgerRepo) ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryLedgerRepo) LogWebhook(ctx context.Context, log *models.PaymentWebhookLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	c := *log
	r.webhooks = append(r.webhooks, &c)
	return nil
}

func (r *MemoryLedgerRepo) MarkWebhookProcessed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.webhooks {
		if l.ID == id {
			now := time.Now().UTC()
			l.Processed = true
			l.ProcessedAt = &now
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryLedgerRepo) ListWebhookLogs(ctx context.Context, filter WebhookFilter) ([]models.PaymentWebhookLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.PaymentWebhookLog
	for i := len(r.webhooks) - 1; i >= 0; i-- {
		l := r.webhooks[i]
		if filter.Processor != "" && l.Processor != filter.Processor {
			continue
		}
		if filter.Reference != "" && l.Reference != filter.Reference {
			continue
		}
		out = append(out, *l)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryLedgerRepo) GetOrCreateWallet(ctx context.Context, userID, currency string) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *r.walletForUserLocked(userID, currency)
	return &c, nil
}

func (r *MemoryLedgerRepo) walletForUserLocked(userID, currency string) *models.Wallet {
	for _, w := range r.wallets {
		if w.UserID == userID {
			return w
		}
	}
	now := time.Now().UTC()
	w := &models.Wallet{
		ID:        uuid.New().String(),
		UserID:    userID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.wallets[w.ID] = w
	return w
}

func (r *MemoryLedgerRepo) ListWalletTransactions(ctx context.Context, walletID string, limit int) ([]models.WalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.WalletTransaction
	for i := len(r.txs) - 1; i >= 0; i-- {
		if r.txs[i].WalletID != walletID {
			continue
		}
		out = append(out, *r.txs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryLedgerRepo) appendTxLocked(w *models.Wallet, txType models.TransactionType, status models.TransactionStatus,
	amount int64, reference, description, paymentID, orderID string) error {
	for _, tx := range r.txs {
		if tx.Reference == reference {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	tx := &models.WalletTransaction{
		ID:               uuid.New().String(),
		WalletID:         w.ID,
		UserID:           w.UserID,
		Type:             txType,
		Status:           status,
		Amount:           amount,
		Reference:        reference,
		Description:      description,
		RelatedPaymentID: paymentID,
		RelatedOrderID:   orderID,
		CreatedAt:        now,
	}
	if status == models.TxCompleted {
		tx.CompletedAt = &now
	}
	r.txs = append(r.txs, tx)
	return nil
}

func (r *MemoryLedgerRepo) setTxStatusLocked(reference string, status models.TransactionStatus) {
	for _, tx := range r.txs {
		if tx.Reference == reference {
			now := time.Now().UTC()
			tx.Status = status
			tx.CompletedAt = &now
			return
		}
	}
}

func (r *MemoryLedgerRepo) HoldEscrow(ctx context.Context, escrow *models.Escrow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.escrows[escrow.ID]; ok {
		return ErrDuplicate
	}
	escrow.Status = models.EscrowHeld
	escrow.CreatedAt = time.Now().UTC()

	w := r.walletForUserLocked(escrow.DesignerID, escrow.Currency)
	if err := r.appendTxLocked(w, models.TxEscrowHold, models.TxPending, escrow.DesignerShare(),
		escrow.HoldReference(), "Escrow hold for order "+escrow.OrderID, escrow.PaymentID, escrow.OrderID); err != nil {
		return err
	}
	w.PendingBalance += escrow.DesignerShare()
	w.UpdatedAt = escrow.CreatedAt

	c := *escrow
	r.escrows[escrow.ID] = &c
	return nil
}

func (r *MemoryLedgerRepo) GetEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.escrows[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *e
	return &c, nil
}

func (r *MemoryLedgerRepo) ReleaseEscrow(ctx context.Context, id, platformUserID string) (*models.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.escrows[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Status != models.EscrowHeld {
		return nil, ErrEscrowNotHeld
	}

	designer := r.walletForUserLocked(e.DesignerID, e.Currency)
	share := e.DesignerShare()
	if err := r.appendTxLocked(designer, models.TxEscrowRelease, models.TxCompleted, share,
		e.ReleaseReference(), "Escrow release for order "+e.OrderID, e.PaymentID, e.OrderID); err != nil {
		return nil, err
	}
	if e.PlatformCommission > 0 {
		platform := r.walletForUserLocked(platformUserID, e.Currency)
		if err := r.appendTxLocked(platform, models.TxCommission, models.TxCompleted, e.PlatformCommission,
			e.CommissionReference(), "Platform commission for order "+e.OrderID, e.PaymentID, e.OrderID); err != nil {
			return nil, err
		}
		platform.AvailableBalance += e.PlatformCommission
		platform.UpdatedAt = time.Now().UTC()
	}
	r.setTxStatusLocked(e.HoldReference(), models.TxCompleted)

	now := time.Now().UTC()
	designer.AvailableBalance += share
	designer.PendingBalance -= share
	designer.UpdatedAt = now

	e.Status = models.EscrowReleased
	e.ReleasedAt = &now
	c := *e
	return &c, nil
}

func (r *MemoryLedgerRepo) RefundEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.escrows[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.Status != models.EscrowHeld {
		return nil, ErrEscrowNotHeld
	}

	customer := r.walletForUserLocked(e.CustomerID, e.Currency)
	if err := r.appendTxLocked(customer, models.TxRefund, models.TxCompleted, e.Amount,
		e.RefundReference(), "Escrow refund for order "+e.OrderID, e.PaymentID, e.OrderID); err != nil {
		return nil, err
	}
	r.setTxStatusLocked(e.HoldReference(), models.TxFailed)

	now := time.Now().UTC()
	designer := r.walletForUserLocked(e.DesignerID, e.Currency)
	designer.PendingBalance -= e.DesignerShare()
	designer.UpdatedAt = now
	customer.AvailableBalance += e.Amount
	customer.UpdatedAt = now

	e.Status = models.EscrowRefunded
	e.RefundedAt = &now
	c := *e
	return &c, nil
}

func (r *MemoryLedgerRepo) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.withdrawals {
		if existing.ID == w.ID || existing.Reference == w.Reference {
			return ErrDuplicate
		}
	}
	if _, ok := r.wallets[w.WalletID]; !ok {
		return ErrNotFound
	}
	w.Status = models.WithdrawalPending
	w.CreatedAt = time.Now().UTC()
	c := *w
	r.withdrawals[w.ID] = &c
	return nil
}

func (r *MemoryLedgerRepo) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *w
	return &c, nil
}

func (r *MemoryLedgerRepo) GetWithdrawalByReference(ctx context.Context, reference string) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.withdrawals {
		if w.Reference == reference {
			c := *w
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryLedgerRepo) ListWithdrawalsByUser(ctx context.Context, userID string) ([]models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Withdrawal
	for _, w := range r.withdrawals {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryLedgerRepo) ListStalledWithdrawals(ctx context.Context, processedBefore time.Time, limit int) ([]models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Withdrawal
	for _, w := range r.withdrawals {
		if w.Status == models.WithdrawalProcessing && w.ProcessedAt != nil && w.ProcessedAt.Before(processedBefore) {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.Before(*out[j].ProcessedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryLedgerRepo) ProcessWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return nil, ErrNotFound
	}
	if w.Status != models.WithdrawalPending {
		return nil, ErrInvalidTransition
	}
	wallet, ok := r.wallets[w.WalletID]
	if !ok {
		return nil, ErrNotFound
	}
	if wallet.IsLocked {
		return nil, ErrWalletLocked
	}
	if wallet.AvailableBalance < w.Amount {
		return nil, ErrInsufficientBalance
	}
	if err := r.appendTxLocked(wallet, models.TxWithdrawal, models.TxCompleted, w.Amount,
		w.DebitReference(), "Withdrawal to bank", "", ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	wallet.AvailableBalance -= w.Amount
	wallet.IsLocked = true
	wallet.UpdatedAt = now

	w.Status = models.WithdrawalProcessing
	w.ProcessedAt = &now
	c := *w
	return &c, nil
}

func (r *MemoryLedgerRepo) SetWithdrawalTransfer(ctx context.Context, id, transferID, transferStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return ErrNotFound
	}
	if transferID != "" {
		w.TransferID = transferID
	}
	w.TransferStatus = transferStatus
	return nil
}

func (r *MemoryLedgerRepo) CompleteWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch w.Status {
	case models.WithdrawalCompleted:
		c := *w
		return &c, nil
	case models.WithdrawalProcessing:
	default:
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	if wallet, ok := r.wallets[w.WalletID]; ok {
		wallet.IsLocked = false
		wallet.UpdatedAt = now
	}
	w.Status = models.WithdrawalCompleted
	w.CompletedAt = &now
	c := *w
	return &c, nil
}

func (r *MemoryLedgerRepo) FailWithdrawal(ctx context.Context, id, reason string) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return nil, ErrNotFound
	}
	switch w.Status {
	case models.WithdrawalFailed:
		c := *w
		return &c, nil
	case models.WithdrawalProcessing:
	default:
		return nil, ErrInvalidTransition
	}
	wallet, ok := r.wallets[w.WalletID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := r.appendTxLocked(wallet, models.TxRefund, models.TxCompleted, w.Amount,
		w.ReversalReference(), "Reversal of failed withdrawal", "", ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	wallet.AvailableBalance += w.Amount
	wallet.IsLocked = false
	wallet.UpdatedAt = now

	w.Status = models.WithdrawalFailed
	w.FailureReason = reason
	w.CompletedAt = &now
	c := *w
	return &c, nil
}

func (r *MemoryLedgerRepo) RejectWithdrawal(ctx context.Context, id, reason string) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return nil, ErrNotFound
	}
	if w.Status != models.WithdrawalPending {
		return nil, ErrInvalidTransition
	}
	w.Status = models.WithdrawalRejected
	w.FailureReason = reason
	c := *w
	return &c, nil
}

var _ LedgerRepository = (*MemoryLedgerRepo)(nil)
