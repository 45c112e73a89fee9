package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OpenReviewStore connects to MongoDB and returns a review repository with
// its indexes in place. The returned close func disconnects the client.
// The client is disconnected again when any setup step fails.
func OpenReviewStore(ctx context.Context, uri, database string) (*MongoReviewRepository, func(context.Context) error, error) {
	// reviews are a low-volume side store next to Postgres; a small pool is enough
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName("storefront-reviews").
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20).
		SetMinPoolSize(2)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	repo := NewMongoReviewRepository(client.Database(database))
	if err := repo.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, err
	}

	return repo, client.Disconnect, nil
}
