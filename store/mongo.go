package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sweetpotato0/ai-advocate/message"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps one document per record.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "ai_advocate",
		Collection: "chat_sessions",
	}
}

type mongoRecord struct {
	ID        string         `bson:"_id"`
	SessionID string         `bson:"session_id"`
	Role      string         `bson:"role"`
	Content   string         `bson:"content"`
	Metadata  map[string]any `bson:"metadata"`
	CreatedAt time.Time      `bson:"created_at"`
	Seq       int64          `bson:"seq"`
}

// NewMongoStore connects, verifies the connection and creates indexes.
func NewMongoStore(ctx context.Context, config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Nested documents decode as maps so traces keep their JSON shape.
	opts := options.Client().
		ApplyURI(config.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}
	if err := store.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "seq", Value: 1}},
	}
	_, err := s.collection.Indexes().CreateOne(ctx, indexModel)
	return err
}

// Append implements Recorder.
func (s *MongoStore) Append(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	doc := mongoRecord{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		Role:      string(rec.Role),
		Content:   rec.Content,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
		Seq:       time.Now().UnixNano(),
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append record to MongoDB: %w", err)
	}
	return nil
}

// History implements HistoryReader.
func (s *MongoStore) History(ctx context.Context, sessionID string) ([]*Record, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"session_id": sessionID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoRecord
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	records := make([]*Record, len(docs))
	for i, d := range docs {
		records[i] = &Record{
			ID:        d.ID,
			SessionID: d.SessionID,
			Role:      message.Role(d.Role),
			Content:   d.Content,
			Metadata:  d.Metadata,
			CreatedAt: d.CreatedAt,
		}
	}
	return records, nil
}

// Ping checks if MongoDB connection is alive
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
