package ledgerRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"urbana/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var invoiceOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}}

func (r *MongoLedgerRepo) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if inv.PaymentAttemptIDs == nil {
		inv.PaymentAttemptIDs = []string{}
	}
	if _, err := r.invoiceColl.InsertOne(ctx, inv); err != nil {
		return fmt.Errorf("failed to create invoice %s: %w", inv.ID, mapErr(err))
	}
	return nil
}

func (r *MongoLedgerRepo) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()
	return findOne[models.Invoice](ctx, r.invoiceColl, bson.M{"id": id})
}

func (r *MongoLedgerRepo) ListInvoicesByUser(ctx context.Context, userID string) ([]models.Invoice, error) {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"user_id": userID, "is_deleted": false}
	invoices, err := findMany[models.Invoice](ctx, r.invoiceColl, filter, options.Find().SetSort(invoiceOrder))
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for user %s: %w", userID, err)
	}
	return invoices, nil
}

func (r *MongoLedgerRepo) AttachAttempt(ctx context.Context, invoiceID string, attempt *models.PaymentAttempt) error {
	now := time.Now().UTC()
	attempt.CreatedAt, attempt.UpdatedAt = now, now

	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := r.attemptColl.InsertOne(sc, attempt); err != nil {
			return mapErr(err)
		}
		res, err := r.invoiceColl.UpdateOne(sc,
			bson.M{"id": invoiceID},
			bson.M{"$addToSet": bson.M{"payment_attempt_ids": attempt.ID}},
		)
		if err != nil {
			return fmt.Errorf("link attempt to invoice failed: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *MongoLedgerRepo) SetAttemptExternalReference(ctx context.Context, attemptID, externalRef string) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	res, err := r.attemptColl.UpdateOne(ctx,
		bson.M{"id": attemptID},
		bson.M{"$set": bson.M{"external_reference": externalRef, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update attempt %s: %w", attemptID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoLedgerRepo) FindAttempt(ctx context.Context, processor models.Processor, reference string) (*models.PaymentAttempt, error) {
	if reference == "" {
		return nil, ErrNotFound
	}
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	attempt, err := findOne[models.PaymentAttempt](ctx, r.attemptColl, bson.M{"processor": processor, "reference": reference})
	if errors.Is(err, ErrNotFound) {
		return findOne[models.PaymentAttempt](ctx, r.attemptColl, bson.M{"processor": processor, "processor_payment_id": reference})
	}
	return attempt, err
}

// updateAttemptUnlessSucceeded applies set to a non-successful attempt. A successful attempt is
// left as is.
func (r *MongoLedgerRepo) updateAttemptUnlessSucceeded(ctx context.Context, attemptID string, set bson.M) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	set["updated_at"] = time.Now().UTC()
	res, err := r.attemptColl.UpdateOne(ctx,
		bson.M{"id": attemptID, "status": bson.M{"$ne": models.StatusSuccess}},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to update attempt %s: %w", attemptID, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := r.attemptColl.CountDocuments(ctx, bson.M{"id": attemptID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoLedgerRepo) MarkAttemptFailed(ctx context.Context, attemptID string) error {
	return r.updateAttemptUnlessSucceeded(ctx, attemptID, bson.M{
		"status":        models.StatusFailed,
		"is_successful": false,
	})
}

func (r *MongoLedgerRepo) MarkAttemptSucceeded(ctx context.Context, attemptID, processorPaymentID string) error {
	return r.updateAttemptUnlessSucceeded(ctx, attemptID, bson.M{
		"status":               models.StatusSuccess,
		"is_successful":        true,
		"processor_payment_id": processorPaymentID,
	})
}

func (r *MongoLedgerRepo) InvoicesForAttempt(ctx context.Context, attemptID string) ([]models.Invoice, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()
	return findMany[models.Invoice](ctx, r.invoiceColl, bson.M{"payment_attempt_ids": attemptID},
		options.Find().SetSort(invoiceOrder))
}

// Finalize runs in one transaction. Two finalizations racing on the same first invoice both try to
// insert the Payment; the loser hits the unique reference index and retries, this time reading the
// winner's Payment.
func (r *MongoLedgerRepo) Finalize(ctx context.Context, params FinalizeParams) (*models.FinalizeResult, error) {
	result, err := r.finalizeOnce(ctx, params)
	if errors.Is(err, ErrDuplicate) {
		result, err = r.finalizeOnce(ctx, params)
	}
	return result, err
}

func (r *MongoLedgerRepo) finalizeOnce(ctx context.Context, params FinalizeParams) (*models.FinalizeResult, error) {
	var result *models.FinalizeResult

	err := r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		result = nil
		n, err := r.attemptColl.CountDocuments(sc, bson.M{"id": params.AttemptID})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}

		invoices, err := findMany[models.Invoice](sc, r.invoiceColl, bson.M{"payment_attempt_ids": params.AttemptID},
			options.Find().SetSort(invoiceOrder))
		if err != nil {
			return fmt.Errorf("failed to load invoices: %w", err)
		}
		if len(invoices) == 0 {
			return ErrOrphanAttempt
		}
		sortInvoices(invoices)

		created := false
		payment, err := findOne[models.Payment](sc, r.paymentColl, bson.M{"reference": invoices[0].ID})
		switch {
		case errors.Is(err, ErrNotFound):
			payment = newSettlingPayment(invoices[0], params)
			created = true
		case err != nil:
			return err
		}

		for _, inv := range invoices {
			if inv.PaymentID != "" && inv.PaymentID != payment.ID {
				return ErrInvoiceSettled
			}
		}

		if created {
			if _, err := r.paymentColl.InsertOne(sc, payment); err != nil {
				return mapErr(err)
			}
		}

		paidAt := *payment.DateTimePaid
		for i := range invoices {
			if invoices[i].PaymentID == payment.ID {
				continue
			}
			invoices[i].Activate(payment.ID, paidAt)
			_, err := r.invoiceColl.UpdateOne(sc, bson.M{"id": invoices[i].ID}, bson.M{"$set": bson.M{
				"payment_id":  payment.ID,
				"is_active":   true,
				"is_expired":  false,
				"is_used":     false,
				"start_date":  invoices[i].StartDate,
				"expiry_date": invoices[i].ExpiryDate,
			}})
			if err != nil {
				return fmt.Errorf("failed to activate invoice %s: %w", invoices[i].ID, err)
			}
		}

		result = &models.FinalizeResult{Payment: payment, Invoices: invoices, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *MongoLedgerRepo) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()
	return findOne[models.Payment](ctx, r.paymentColl, bson.M{"id": id})
}

func (r *MongoLedgerRepo) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()
	return findOne[models.Payment](ctx, r.paymentColl, bson.M{"reference": reference})
}

func (r *MongoLedgerRepo) ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()
	return findMany[models.Payment](ctx, r.paymentColl, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (r *MongoLedgerRepo) LogWebhook(ctx context.Context, log *models.PaymentWebhookLog) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if _, err := r.webhookLogColl.InsertOne(ctx, log); err != nil {
		return fmt.Errorf("failed to log webhook: %w", err)
	}
	return nil
}

func (r *MongoLedgerRepo) MarkWebhookProcessed(ctx context.Context, id string) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	res, err := r.webhookLogColl.UpdateOne(ctx, bson.M{"id": id},
		bson.M{"$set": bson.M{"processed": true, "processed_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to mark webhook %s processed: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoLedgerRepo) ListWebhookLogs(ctx context.Context, filter WebhookFilter) ([]models.PaymentWebhookLog, error) {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{}
	if filter.Processor != "" {
		query["processor"] = filter.Processor
	}
	if filter.Reference != "" {
		query["reference"] = filter.Reference
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return findMany[models.PaymentWebhookLog](ctx, r.webhookLogColl, query, opts)
}
