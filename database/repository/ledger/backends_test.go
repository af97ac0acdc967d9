package ledgerRepo_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"urbana/database"
	ledgerRepo "urbana/database/repository/ledger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMemoryLedgerContract(t *testing.T) {
	runLedgerContract(t, func(t *testing.T) ledgerRepo.LedgerRepository {
		return ledgerRepo.NewMemoryLedgerRepo()
	})
}

// TestMongoLedgerContract needs a replica set, e.g. TEST_MONGO_URL=mongodb://localhost:27017/?replicaSet=rs0
func TestMongoLedgerContract(t *testing.T) {
	url := os.Getenv("TEST_MONGO_URL")
	if url == "" {
		t.Skip("TEST_MONGO_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	runLedgerContract(t, func(t *testing.T) ledgerRepo.LedgerRepository {
		db := client.Database("urbana_test_" + strings.ReplaceAll(uuid.New().String()[:8], "-", ""))
		t.Cleanup(func() { _ = db.Drop(context.Background()) })
		repo, err := ledgerRepo.NewMongoLedgerRepo(db)
		require.NoError(t, err)
		return repo
	})
}

func TestPostgresLedgerContract(t *testing.T) {
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	db, err := database.ConnectPostgres(url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.RunMigrations(db, "../../migrations"))

	runLedgerContract(t, func(t *testing.T) ledgerRepo.LedgerRepository {
		return ledgerRepo.NewPostgresLedgerRepo(db)
	})
}
