package ledgerRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ensureIndexes creates the unique keys the ledger relies on for idempotency, plus the lookup
// indexes used by the read surface.
func (r *MongoLedgerRepo) ensureIndexes() error {
	ctx, cancel := newContext(context.Background(), 10*time.Second)
	defer cancel()

	unique := func(keys ...string) mongo.IndexModel {
		d := bson.D{}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return mongo.IndexModel{Keys: d, Options: options.Index().SetUnique(true)}
	}
	plain := func(key string, order int) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: key, Value: order}}}
	}

	plan := map[*mongo.Collection][]mongo.IndexModel{
		r.invoiceColl:    {unique("id"), plain("user_id", 1), plain("payment_attempt_ids", 1)},
		r.attemptColl:    {unique("id"), unique("reference"), plain("processor_payment_id", 1)},
		r.paymentColl:    {unique("id"), unique("reference"), plain("user_id", 1)},
		r.walletColl:     {unique("id"), unique("user_id")},
		r.txColl:         {unique("id"), unique("reference"), plain("wallet_id", 1)},
		r.escrowColl:     {unique("id"), plain("order_id", 1)},
		r.withdrawalColl: {unique("id"), unique("reference"), plain("user_id", 1),
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "processed_at", Value: 1}}}},
		r.webhookLogColl: {unique("id"), plain("reference", 1), plain("created_at", -1)},
	}

	for coll, models := range plan {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}
