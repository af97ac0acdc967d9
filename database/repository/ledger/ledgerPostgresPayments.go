package ledgerRepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"urbana/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func (r *PostgresLedgerRepo) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invoices (id, user_id, amount, currency, purpose, start_date, expiry_date, is_active,
			is_expired, is_used, is_deleted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inv.ID, inv.UserID, inv.Amount, inv.Currency, inv.Purpose, inv.StartDate, inv.ExpiryDate,
		inv.IsActive, inv.IsExpired, inv.IsUsed, inv.IsDeleted, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice %s: %w", inv.ID, pgErr(err))
	}
	return nil
}

// loadAttemptIDs fills PaymentAttemptIDs from the link table.
func loadAttemptIDs(ctx context.Context, q queryer, invoices []models.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	ids := make([]string, len(invoices))
	for i := range invoices {
		ids[i] = invoices[i].ID
	}

	var links []struct {
		InvoiceID string `db:"invoice_id"`
		AttemptID string `db:"attempt_id"`
	}
	err := sqlx.SelectContext(ctx, q, &links,
		`SELECT invoice_id, attempt_id FROM invoice_payment_attempts WHERE invoice_id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load attempt links: %w", err)
	}

	byInvoice := make(map[string][]string, len(invoices))
	for _, l := range links {
		byInvoice[l.InvoiceID] = append(byInvoice[l.InvoiceID], l.AttemptID)
	}
	for i := range invoices {
		invoices[i].PaymentAttemptIDs = byInvoice[invoices[i].ID]
	}
	return nil
}

func (r *PostgresLedgerRepo) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.GetContext(ctx, &inv, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id); err != nil {
		return nil, pgErr(err)
	}
	one := []models.Invoice{inv}
	if err := loadAttemptIDs(ctx, r.db, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

func (r *PostgresLedgerRepo) ListInvoicesByUser(ctx context.Context, userID string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.SelectContext(ctx, &invoices,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 AND is_deleted = FALSE ORDER BY created_at, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for user %s: %w", userID, err)
	}
	if err := loadAttemptIDs(ctx, r.db, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *PostgresLedgerRepo) AttachAttempt(ctx context.Context, invoiceID string, attempt *models.PaymentAttempt) error {
	now := time.Now().UTC()
	attempt.CreatedAt, attempt.UpdatedAt = now, now

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM invoices WHERE id = $1 FOR UPDATE`, invoiceID); err != nil {
			return pgErr(err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payment_attempts (id, user_id, amount, currency, processor, processor_payment_id,
				external_reference, reference, status, is_successful, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			attempt.ID, attempt.UserID, attempt.Amount, attempt.Currency, attempt.Processor,
			attempt.ProcessorPaymentID, attempt.ExternalReference, attempt.Reference, attempt.Status,
			attempt.IsSuccessful, attempt.CreatedAt, attempt.UpdatedAt,
		)
		if err != nil {
			return pgErr(err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO invoice_payment_attempts (invoice_id, attempt_id) VALUES ($1, $2)`,
			invoiceID, attempt.ID)
		return pgErr(err)
	})
}

func (r *PostgresLedgerRepo) SetAttemptExternalReference(ctx context.Context, attemptID, externalRef string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_attempts SET external_reference = $1, updated_at = NOW() WHERE id = $2`,
		externalRef, attemptID)
	if err != nil {
		return fmt.Errorf("failed to update attempt %s: %w", attemptID, err)
	}
	return rowsAffectedOrNotFound(res)
}

func (r *PostgresLedgerRepo) FindAttempt(ctx context.Context, processor models.Processor, reference string) (*models.PaymentAttempt, error) {
	if reference == "" {
		return nil, ErrNotFound
	}
	var a models.PaymentAttempt
	err := r.db.GetContext(ctx, &a,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE processor = $1 AND reference = $2`,
		processor, reference)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.db.GetContext(ctx, &a,
			`SELECT `+attemptColumns+` FROM payment_attempts WHERE processor = $1 AND processor_payment_id = $2 LIMIT 1`,
			processor, reference)
	}
	if err != nil {
		return nil, pgErr(err)
	}
	return &a, nil
}

func (r *PostgresLedgerRepo) updateAttemptUnlessSucceeded(ctx context.Context, attemptID, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update attempt %s: %w", attemptID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	ok, err := exists(ctx, r.db, `SELECT EXISTS(SELECT 1 FROM payment_attempts WHERE id = $1)`, attemptID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresLedgerRepo) MarkAttemptFailed(ctx context.Context, attemptID string) error {
	return r.updateAttemptUnlessSucceeded(ctx, attemptID,
		`UPDATE payment_attempts SET status = $1, is_successful = FALSE, updated_at = NOW()
		 WHERE id = $2 AND status <> $3`,
		models.StatusFailed, attemptID, models.StatusSuccess)
}

func (r *PostgresLedgerRepo) MarkAttemptSucceeded(ctx context.Context, attemptID, processorPaymentID string) error {
	return r.updateAttemptUnlessSucceeded(ctx, attemptID,
		`UPDATE payment_attempts SET status = $1, is_successful = TRUE, processor_payment_id = $2, updated_at = NOW()
		 WHERE id = $3 AND status <> $1`,
		models.StatusSuccess, processorPaymentID, attemptID)
}

const invoicesForAttemptQuery = `SELECT ` + invoiceColumns + ` FROM invoices
	WHERE id IN (SELECT invoice_id FROM invoice_payment_attempts WHERE attempt_id = $1)
	ORDER BY created_at, id`

func (r *PostgresLedgerRepo) InvoicesForAttempt(ctx context.Context, attemptID string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, invoicesForAttemptQuery, attemptID); err != nil {
		return nil, fmt.Errorf("failed to load invoices for attempt %s: %w", attemptID, err)
	}
	if err := loadAttemptIDs(ctx, r.db, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// Finalize locks the attempt's invoices first, so concurrent finalizations of the same invoices
// queue behind each other and the second one finds the first one's Payment.
func (r *PostgresLedgerRepo) Finalize(ctx context.Context, params FinalizeParams) (*models.FinalizeResult, error) {
	var result *models.FinalizeResult

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := exists(ctx, tx, `SELECT EXISTS(SELECT 1 FROM payment_attempts WHERE id = $1)`, params.AttemptID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}

		var invoices []models.Invoice
		if err := tx.SelectContext(ctx, &invoices, invoicesForAttemptQuery+` FOR UPDATE`, params.AttemptID); err != nil {
			return fmt.Errorf("failed to lock invoices: %w", err)
		}
		if len(invoices) == 0 {
			return ErrOrphanAttempt
		}
		sortInvoices(invoices)

		created := false
		var payment models.Payment
		err = tx.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, invoices[0].ID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			p := newSettlingPayment(invoices[0], params)
			res, err := tx.ExecContext(ctx,
				`INSERT INTO payments (id, user_id, amount, currency, reference, processor, processor_payment_id,
					status, is_paid, date_time_paid, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				 ON CONFLICT (reference) DO NOTHING`,
				p.ID, p.UserID, p.Amount, p.Currency, p.Reference, p.Processor, p.ProcessorPaymentID,
				p.Status, p.IsPaid, p.DateTimePaid, p.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to create payment: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				if err := tx.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, invoices[0].ID); err != nil {
					return pgErr(err)
				}
			} else {
				payment = *p
				created = true
			}
		case err != nil:
			return err
		}

		for _, inv := range invoices {
			if inv.PaymentID != "" && inv.PaymentID != payment.ID {
				return ErrInvoiceSettled
			}
		}

		paidAt := time.Now().UTC()
		if payment.DateTimePaid != nil {
			paidAt = *payment.DateTimePaid
		}
		for i := range invoices {
			if invoices[i].PaymentID == payment.ID {
				continue
			}
			invoices[i].Activate(payment.ID, paidAt)
			_, err := tx.ExecContext(ctx,
				`UPDATE invoices SET payment_id = $1, is_active = TRUE, is_expired = FALSE, is_used = FALSE,
					start_date = $2, expiry_date = $3
				 WHERE id = $4`,
				payment.ID, invoices[i].StartDate, invoices[i].ExpiryDate, invoices[i].ID)
			if err != nil {
				return fmt.Errorf("failed to activate invoice %s: %w", invoices[i].ID, err)
			}
		}
		if err := loadAttemptIDs(ctx, tx, invoices); err != nil {
			return err
		}

		result = &models.FinalizeResult{Payment: &payment, Invoices: invoices, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresLedgerRepo) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id); err != nil {
		return nil, pgErr(err)
	}
	return &p, nil
}

func (r *PostgresLedgerRepo) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference); err != nil {
		return nil, pgErr(err)
	}
	return &p, nil
}

func (r *PostgresLedgerRepo) ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.SelectContext(ctx, &payments,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for user %s: %w", userID, err)
	}
	return payments, nil
}

func (r *PostgresLedgerRepo) LogWebhook(ctx context.Context, log *models.PaymentWebhookLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_webhook_logs (id, processor, event_type, reference, raw_payload, status_code,
			processed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.Processor, log.EventType, log.Reference, log.RawPayload, log.StatusCode,
		log.Processed, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log webhook: %w", err)
	}
	return nil
}

func (r *PostgresLedgerRepo) MarkWebhookProcessed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_webhook_logs SET processed = TRUE, processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook %s processed: %w", id, err)
	}
	return rowsAffectedOrNotFound(res)
}

func (r *PostgresLedgerRepo) ListWebhookLogs(ctx context.Context, filter WebhookFilter) ([]models.PaymentWebhookLog, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Processor != "" {
		args = append(args, filter.Processor)
		where = append(where, fmt.Sprintf("processor = $%d", len(args)))
	}
	if filter.Reference != "" {
		args = append(args, filter.Reference)
		where = append(where, fmt.Sprintf("reference = $%d", len(args)))
	}

	query := `SELECT ` + webhookLogColumns + ` FROM payment_webhook_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var logs []models.PaymentWebhookLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list webhook logs: %w", err)
	}
	return logs, nil
}
