//go:build integration

// Package testhelpers starts backing services for integration tests.
package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultMongoImage = "mongo:7"

// MongoURI returns a connection string for integration tests. When
// INTEGRATION_MONGODB_URI is set it is used as-is; otherwise a MongoDB
// container is started and terminated on test cleanup.
func MongoURI(ctx context.Context, t *testing.T) string {
	t.Helper()
	if uri := os.Getenv("INTEGRATION_MONGODB_URI"); uri != "" {
		return uri
	}

	image := os.Getenv("INTEGRATION_MONGODB_IMAGE")
	if image == "" {
		image = defaultMongoImage
	}
	container, err := mongodb.Run(ctx, image)
	if err != nil {
		t.Skipf("mongodb container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate mongodb container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err, "mongodb connection string")
	return uri
}

// MongoClient connects to MongoURI and disconnects on cleanup.
func MongoClient(ctx context.Context, t *testing.T) *mongo.Client {
	t.Helper()
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(MongoURI(ctx, t)))
	require.NoError(t, err, "mongo connect")
	require.NoError(t, client.Ping(connectCtx, nil), "mongo ping")
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})
	return client
}
