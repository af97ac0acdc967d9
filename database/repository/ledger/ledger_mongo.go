package ledgerRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoLedgerRepo implements LedgerRepository using MongoDB. Multi-document operations run in a
// session transaction, so the deployment must be a replica set.
type MongoLedgerRepo struct {
	client         *mongo.Client
	invoiceColl    *mongo.Collection
	attemptColl    *mongo.Collection
	paymentColl    *mongo.Collection
	walletColl     *mongo.Collection
	txColl         *mongo.Collection
	escrowColl     *mongo.Collection
	withdrawalColl *mongo.Collection
	webhookLogColl *mongo.Collection
}

// NewMongoLedgerRepo binds the ledger collections of db and makes sure their indexes exist.
func NewMongoLedgerRepo(db *mongo.Database) (*MongoLedgerRepo, error) {
	repo := &MongoLedgerRepo{
		client:         db.Client(),
		invoiceColl:    db.Collection("invoices"),
		attemptColl:    db.Collection("payment_attempts"),
		paymentColl:    db.Collection("payments"),
		walletColl:     db.Collection("wallets"),
		txColl:         db.Collection("wallet_transactions"),
		escrowColl:     db.Collection("escrows"),
		withdrawalColl: db.Collection("withdrawals"),
		webhookLogColl: db.Collection("payment_webhook_logs"),
	}
	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

// newContext creates a context with the given timeout.
func newContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

// withTransaction runs fn inside a majority-committed session transaction. Transient errors are
// retried by the driver.
func (r *MongoLedgerRepo) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, txnOpts)
	return err
}

// mapErr converts driver errors into the package sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	}
	return err
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOneOptions) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter, opts...).Decode(&out); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func findMany[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ LedgerRepository = (*MongoLedgerRepo)(nil)
