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

// GetOrCreateWallet upserts on the unique user_id index. A concurrent creator losing the race gets a
// duplicate key error and simply reads the winner's wallet.
func (r *MongoLedgerRepo) GetOrCreateWallet(ctx context.Context, userID, currency string) (*models.Wallet, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{"$setOnInsert": bson.M{
		"id":                uuid.New().String(),
		"user_id":           userID,
		"currency":          currency,
		"available_balance": int64(0),
		"pending_balance":   int64(0),
		"is_locked":         false,
		"created_at":        now,
		"updated_at":        now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var wallet models.Wallet
	err := r.walletColl.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update, opts).Decode(&wallet)
	if mongo.IsDuplicateKeyError(err) {
		return findOne[models.Wallet](ctx, r.walletColl, bson.M{"user_id": userID})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get or create wallet for %s: %w", userID, err)
	}
	return &wallet, nil
}

func (r *MongoLedgerRepo) ListWalletTransactions(ctx context.Context, walletID string, limit int) ([]models.WalletTransaction, error) {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findMany[models.WalletTransaction](ctx, r.txColl, bson.M{"wallet_id": walletID}, opts)
}

// insertTx writes one ledger entry inside a transaction.
func (r *MongoLedgerRepo) insertTx(sc mongo.SessionContext, w *models.Wallet, txType models.TransactionType,
	status models.TransactionStatus, amount int64, reference, description, paymentID, orderID string) error {
	now := time.Now().UTC()
	tx := models.WalletTransaction{
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
	if _, err := r.txColl.InsertOne(sc, tx); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *MongoLedgerRepo) setTxStatus(sc mongo.SessionContext, reference string, status models.TransactionStatus) error {
	_, err := r.txColl.UpdateOne(sc, bson.M{"reference": reference},
		bson.M{"$set": bson.M{"status": status, "completed_at": time.Now().UTC()}})
	return err
}

func (r *MongoLedgerRepo) incWallet(sc mongo.SessionContext, walletID string, available, pending int64) error {
	res, err := r.walletColl.UpdateOne(sc, bson.M{"id": walletID}, bson.M{
		"$inc": bson.M{"available_balance": available, "pending_balance": pending},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("wallet update failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoLedgerRepo) HoldEscrow(ctx context.Context, escrow *models.Escrow) error {
	designer, err := r.GetOrCreateWallet(ctx, escrow.DesignerID, escrow.Currency)
	if err != nil {
		return err
	}
	escrow.Status = models.EscrowHeld
	escrow.CreatedAt = time.Now().UTC()

	return r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := r.escrowColl.InsertOne(sc, escrow); err != nil {
			return mapErr(err)
		}
		if err := r.insertTx(sc, designer, models.TxEscrowHold, models.TxPending, escrow.DesignerShare(),
			escrow.HoldReference(), "Escrow hold for order "+escrow.OrderID, escrow.PaymentID, escrow.OrderID); err != nil {
			return err
		}
		return r.incWallet(sc, designer.ID, 0, escrow.DesignerShare())
	})
}

func (r *MongoLedgerRepo) GetEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()
	return findOne[models.Escrow](ctx, r.escrowColl, bson.M{"id": id})
}

// claimEscrow moves a held escrow to status. The conditional filter is what stops a second
// release or refund.
func (r *MongoLedgerRepo) claimEscrow(sc mongo.SessionContext, id string, status models.EscrowStatus, stampField string) (*models.Escrow, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var escrow models.Escrow
	err := r.escrowColl.FindOneAndUpdate(sc,
		bson.M{"id": id, "status": models.EscrowHeld},
		bson.M{"$set": bson.M{"status": status, stampField: time.Now().UTC()}},
		opts,
	).Decode(&escrow)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := r.escrowColl.CountDocuments(sc, bson.M{"id": id})
		if cerr != nil {
			return nil, cerr
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrEscrowNotHeld
	}
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}

func (r *MongoLedgerRepo) ReleaseEscrow(ctx context.Context, id, platformUserID string) (*models.Escrow, error) {
	current, err := r.GetEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.EscrowHeld {
		return nil, ErrEscrowNotHeld
	}
	designer, err := r.GetOrCreateWallet(ctx, current.DesignerID, current.Currency)
	if err != nil {
		return nil, err
	}
	var platform *models.Wallet
	if current.PlatformCommission > 0 {
		if platform, err = r.GetOrCreateWallet(ctx, platformUserID, current.Currency); err != nil {
			return nil, err
		}
	}

	var released *models.Escrow
	err = r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		e, err := r.claimEscrow(sc, id, models.EscrowReleased, "released_at")
		if err != nil {
			return err
		}
		share := e.DesignerShare()
		if err := r.insertTx(sc, designer, models.TxEscrowRelease, models.TxCompleted, share,
			e.ReleaseReference(), "Escrow release for order "+e.OrderID, e.PaymentID, e.OrderID); err != nil {
			return err
		}
		if err := r.setTxStatus(sc, e.HoldReference(), models.TxCompleted); err != nil {
			return err
		}
		if err := r.incWallet(sc, designer.ID, share, -share); err != nil {
			return err
		}
		if platform != nil {
			if err := r.insertTx(sc, platform, models.TxCommission, models.TxCompleted, e.PlatformCommission,
				e.CommissionReference(), "Platform commission for order "+e.OrderID, e.PaymentID, e.OrderID); err != nil {
				return err
			}
			if err := r.incWallet(sc, platform.ID, e.PlatformCommission, 0); err != nil {
				return err
			}
		}
		released = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func (r *MongoLedgerRepo) RefundEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	current, err := r.GetEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.EscrowHeld {
		return nil, ErrEscrowNotHeld
	}
	designer, err := r.GetOrCreateWallet(ctx, current.DesignerID, current.Currency)
	if err != nil {
		return nil, err
	}
	customer, err := r.GetOrCreateWallet(ctx, current.CustomerID, current.Currency)
	if err != nil {
		return nil, err
	}

	var refunded *models.Escrow
	err = r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		e, err := r.claimEscrow(sc, id, models.EscrowRefunded, "refunded_at")
		if err != nil {
			return err
		}
		if err := r.insertTx(sc, customer, models.TxRefund, models.TxCompleted, e.Amount,
			e.RefundReference(), "Escrow refund for order "+e.OrderID, e.PaymentID, e.OrderID); err != nil {
			return err
		}
		if err := r.setTxStatus(sc, e.HoldReference(), models.TxFailed); err != nil {
			return err
		}
		if err := r.incWallet(sc, designer.ID, 0, -e.DesignerShare()); err != nil {
			return err
		}
		if err := r.incWallet(sc, customer.ID, e.Amount, 0); err != nil {
			return err
		}
		refunded = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refunded, nil
}

func (r *MongoLedgerRepo) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	n, err := r.walletColl.CountDocuments(ctx, bson.M{"id": w.WalletID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	w.Status = models.WithdrawalPending
	w.CreatedAt = time.Now().UTC()
	if _, err := r.withdrawalColl.InsertOne(ctx, w); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *MongoLedgerRepo) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()
	return findOne[models.Withdrawal](ctx, r.withdrawalColl, bson.M{"id": id})
}

func (r *MongoLedgerRepo) GetWithdrawalByReference(ctx context.Context, reference string) (*models.Withdrawal, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()
	return findOne[models.Withdrawal](ctx, r.withdrawalColl, bson.M{"reference": reference})
}

func (r *MongoLedgerRepo) ListWithdrawalsByUser(ctx context.Context, userID string) ([]models.Withdrawal, error) {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()
	return findMany[models.Withdrawal](ctx, r.withdrawalColl, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (r *MongoLedgerRepo) ListStalledWithdrawals(ctx context.Context, processedBefore time.Time, limit int) ([]models.Withdrawal, error) {
	ctx, cancel := newContext(ctx, 10*time.Second)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "processed_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findMany[models.Withdrawal](ctx, r.withdrawalColl, bson.M{
		"status":       models.WithdrawalProcessing,
		"processed_at": bson.M{"$lt": processedBefore},
	}, opts)
}

// transitionWithdrawal moves a withdrawal from one status to another inside sc and returns the
// updated document. A withdrawal already in the target state is returned unchanged with done=true.
func (r *MongoLedgerRepo) transitionWithdrawal(sc mongo.SessionContext, id string, from, to models.WithdrawalStatus,
	set bson.M) (w *models.Withdrawal, done bool, err error) {
	current, err := findOne[models.Withdrawal](sc, r.withdrawalColl, bson.M{"id": id})
	if err != nil {
		return nil, false, err
	}
	if current.Status == to {
		return current, true, nil
	}
	if current.Status != from {
		return nil, false, ErrInvalidTransition
	}
	if set == nil {
		set = bson.M{}
	}
	set["status"] = to

	var updated models.Withdrawal
	err = r.withdrawalColl.FindOneAndUpdate(sc,
		bson.M{"id": id, "status": from},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, false, mapErr(err)
	}
	return &updated, false, nil
}

func (r *MongoLedgerRepo) ProcessWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	var processed *models.Withdrawal
	err := r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		current, err := findOne[models.Withdrawal](sc, r.withdrawalColl, bson.M{"id": id})
		if err != nil {
			return err
		}
		if current.Status != models.WithdrawalPending {
			return ErrInvalidTransition
		}

		var wallet models.Wallet
		err = r.walletColl.FindOneAndUpdate(sc,
			bson.M{
				"id":                current.WalletID,
				"is_locked":         false,
				"available_balance": bson.M{"$gte": current.Amount},
			},
			bson.M{
				"$inc": bson.M{"available_balance": -current.Amount},
				"$set": bson.M{"is_locked": true, "updated_at": time.Now().UTC()},
			},
		).Decode(&wallet)
		if errors.Is(err, mongo.ErrNoDocuments) {
			existing, ferr := findOne[models.Wallet](sc, r.walletColl, bson.M{"id": current.WalletID})
			if ferr != nil {
				return ferr
			}
			if existing.IsLocked {
				return ErrWalletLocked
			}
			return ErrInsufficientBalance
		}
		if err != nil {
			return fmt.Errorf("wallet debit failed: %w", err)
		}

		if err := r.insertTx(sc, &wallet, models.TxWithdrawal, models.TxCompleted, current.Amount,
			current.DebitReference(), "Withdrawal to bank", "", ""); err != nil {
			return err
		}
		w, _, err := r.transitionWithdrawal(sc, id, models.WithdrawalPending, models.WithdrawalProcessing,
			bson.M{"processed_at": time.Now().UTC()})
		if err != nil {
			return err
		}
		processed = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return processed, nil
}

func (r *MongoLedgerRepo) SetWithdrawalTransfer(ctx context.Context, id, transferID, transferStatus string) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{"transfer_status": transferStatus}
	if transferID != "" {
		set["transfer_id"] = transferID
	}
	res, err := r.withdrawalColl.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update transfer of withdrawal %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoLedgerRepo) unlockWallet(sc mongo.SessionContext, walletID string, credit int64) error {
	res, err := r.walletColl.UpdateOne(sc, bson.M{"id": walletID}, bson.M{
		"$inc": bson.M{"available_balance": credit},
		"$set": bson.M{"is_locked": false, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("wallet unlock failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoLedgerRepo) CompleteWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	var completed *models.Withdrawal
	err := r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		w, done, err := r.transitionWithdrawal(sc, id, models.WithdrawalProcessing, models.WithdrawalCompleted,
			bson.M{"completed_at": time.Now().UTC()})
		if err != nil {
			return err
		}
		completed = w
		if done {
			return nil
		}
		return r.unlockWallet(sc, w.WalletID, 0)
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

func (r *MongoLedgerRepo) FailWithdrawal(ctx context.Context, id, reason string) (*models.Withdrawal, error) {
	var failed *models.Withdrawal
	err := r.withTransaction(ctx, func(sc mongo.SessionContext) error {
		w, done, err := r.transitionWithdrawal(sc, id, models.WithdrawalProcessing, models.WithdrawalFailed,
			bson.M{"completed_at": time.Now().UTC(), "failure_reason": reason})
		if err != nil {
			return err
		}
		failed = w
		if done {
			return nil
		}
		wallet, err := findOne[models.Wallet](sc, r.walletColl, bson.M{"id": w.WalletID})
		if err != nil {
			return err
		}
		if err := r.insertTx(sc, wallet, models.TxRefund, models.TxCompleted, w.Amount,
			w.ReversalReference(), "Reversal of failed withdrawal", "", ""); err != nil {
			return err
		}
		return r.unlockWallet(sc, w.WalletID, w.Amount)
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

func (r *MongoLedgerRepo) RejectWithdrawal(ctx context.Context, id, reason string) (*models.Withdrawal, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	var w models.Withdrawal
	err := r.withdrawalColl.FindOneAndUpdate(ctx,
		bson.M{"id": id, "status": models.WithdrawalPending},
		bson.M{"$set": bson.M{"status": models.WithdrawalRejected, "failure_reason": reason}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
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
