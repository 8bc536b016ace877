// Package mongo is a Post Store backed by MongoDB. Each post is one
// document holding its likes and comments, so a save is a single
// conditional replace.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/msomdec/postwall/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const postsCollection = "posts"

// DB wraps a MongoDB client and implements domain.Database.
type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
	posts    *PostRepository
}

var _ domain.Database = (*DB)(nil)

// New connects to uri and selects the named database.
func New(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := client.Database(database)
	return &DB{
		Client:   client,
		Database: db,
		posts:    NewPostRepository(db.Collection(postsCollection)),
	}, nil
}

// Migrate ensures the listing index exists.
func (db *DB) Migrate(ctx context.Context) error {
	name, err := db.Database.Collection(postsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create posts index: %w", err)
	}
	slog.InfoContext(ctx, "mongo indexes ensured", "index", name)
	return nil
}

// Posts returns the post repository.
func (db *DB) Posts() domain.PostRepository {
	return db.posts
}

// Close disconnects the client.
func (db *DB) Close() error {
	return db.Client.Disconnect(context.Background())
}
