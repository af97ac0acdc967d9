package deviceRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"urbana/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDeviceRepo implements DeviceRepository using MongoDB.
type MongoDeviceRepo struct {
	coll *mongo.Collection
}

func NewMongoDeviceRepo(db *mongo.Database) (*MongoDeviceRepo, error) {
	repo := &MongoDeviceRepo{coll: db.Collection("push_devices")}
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

func (r *MongoDeviceRepo) ensureIndexes() error {
	ctx, cancel := newContext(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoDeviceRepo) Upsert(ctx context.Context, device *models.PushDevice) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	device.UpdatedAt = time.Now().UTC()
	_, err := r.coll.ReplaceOne(ctx, bson.M{"user_id": device.UserID}, device, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save device for user %s: %w", device.UserID, err)
	}
	return nil
}

func (r *MongoDeviceRepo) GetByUser(ctx context.Context, userID string) (*models.PushDevice, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	var device models.PushDevice
	err := r.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&device)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoDevice
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device for user %s: %w", userID, err)
	}
	return &device, nil
}

func (r *MongoDeviceRepo) Delete(ctx context.Context, userID string) error {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to delete device for user %s: %w", userID, err)
	}
	return nil
}

var _ DeviceRepository = (*MongoDeviceRepo)(nil)
