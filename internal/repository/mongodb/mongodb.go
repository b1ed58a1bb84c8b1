// Package mongodb implements the repository interfaces on MongoDB, the
// document store the Vind data set lives in.
//
// Two historical quirks of that data are handled here and nowhere else:
// followers/following fields that were stored as bare counts, and videos that
// are addressed either by their native ObjectID or by a string "id" field.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/vind/internal/repository"
)

// Collection names.
const (
	UsersCollection    = "users"
	VideosCollection   = "videos"
	CommentsCollection = "comments"
	LikesCollection    = "user_likes"
	SavesCollection    = "user_saves"
)

var _ repository.Store = (*Store)(nil)

// Store owns one client connection and the Vind collections.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	users    *mongo.Collection
	videos   *mongo.Collection
	comments *mongo.Collection
	likes    *mongo.Collection
	saves    *mongo.Collection
}

// New connects to uri, verifies the connection and ensures indexes exist on
// database dbName.
func New(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetAppName("vind").
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	s := newStore(client, dbName)
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: creating indexes: %w", err)
	}
	return s, nil
}

func newStore(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		client:   client,
		db:       db,
		users:    db.Collection(UsersCollection),
		videos:   db.Collection(VideosCollection),
		comments: db.Collection(CommentsCollection),
		likes:    db.Collection(LikesCollection),
		saves:    db.Collection(SavesCollection),
	}
}

// Collection returns a named collection of the Vind database.
func (s *Store) Collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// Ping checks the connection to the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client, waiting at most ten seconds for in-flight
// operations.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	specs := map[*mongo.Collection][]mongo.IndexModel{
		s.users: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{
				Keys: bson.D{{Key: "githubId", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "githubId", Value: bson.D{{Key: "$exists", Value: true}}}}),
			},
		},
		s.videos: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "username", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "asset_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		s.comments: {
			{Keys: bson.D{{Key: "videoId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		s.likes: {
			{Keys: bson.D{{Key: "username", Value: 1}, {Key: "videoId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username", Value: 1}, {Key: "likedAt", Value: -1}}},
		},
		s.saves: {
			{Keys: bson.D{{Key: "username", Value: 1}, {Key: "videoId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username", Value: 1}, {Key: "savedAt", Value: -1}}},
		},
	}

	for coll, models := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", coll.Name(), err)
		}
	}
	return nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
