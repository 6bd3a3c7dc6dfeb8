package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-chat-relay/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

func newMongoStore(client *mongo.Client, db *mongo.Database, timeout time.Duration) *MongoStore {
	return &MongoStore{client: client, db: db, timeout: timeout}
}

func wrapMongoError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("unique key conflicts: %w", err)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("document does not exist: %w", err)
	}
	return fmt.Errorf("database operation failed: %w", err)
}

func (ms *MongoStore) Save(ctx context.Context, record Record) (Record, error) {
	record, err := prepare(record, uuid.NewString, time.Now)
	if err != nil {
		return Record{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()

	startTime := time.Now()
	if _, err := ms.db.Collection(MessageCollectionName).InsertOne(ctx, record); err != nil {
		return Record{}, wrapMongoError(err)
	}
	logger.DebugF("message insert cost: %v", time.Since(startTime))
	return record, nil
}

func historyFilter(chat ChatID) bson.D {
	if chat.Kind == KindGroup {
		return bson.D{{Key: "kind", Value: KindGroup}, {Key: "receiver", Value: chat.Room}}
	}
	a, b := chat.Peers[0], chat.Peers[1]
	return bson.D{
		{Key: "kind", Value: KindDirect},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "sender", Value: a}, {Key: "receiver", Value: b}},
			bson.D{{Key: "sender", Value: b}, {Key: "receiver", Value: a}},
		}},
	}
}

func (ms *MongoStore) History(ctx context.Context, chat ChatID) ([]Record, error) {
	if err := chat.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()

	startTime := time.Now()
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := ms.db.Collection(MessageCollectionName).Find(ctx, historyFilter(chat), opts)
	if err != nil {
		return nil, wrapMongoError(err)
	}
	records := make([]Record, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, wrapMongoError(err)
	}
	logger.DebugF("history query %s cost: %v", chat, time.Since(startTime))
	return records, nil
}

func (ms *MongoStore) ListUsers(ctx context.Context) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}})
	cursor, err := ms.db.Collection(UserCollectionName).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, wrapMongoError(err)
	}
	users := make([]User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, wrapMongoError(err)
	}
	return users, nil
}

func (ms *MongoStore) ListGroupsFor(ctx context.Context, userID string) ([]Group, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", ErrEmptyField)
	}

	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := ms.db.Collection(GroupCollectionName).Find(ctx, bson.D{{Key: "members", Value: userID}}, opts)
	if err != nil {
		return nil, wrapMongoError(err)
	}
	groups := make([]Group, 0)
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, wrapMongoError(err)
	}
	return groups, nil
}

func (ms *MongoStore) Close(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}
