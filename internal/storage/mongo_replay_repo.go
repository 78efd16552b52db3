package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/annel0/blockroll/internal/replay"
)

// MongoConfig contains connection settings for the MongoDB replay repository.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. blockroll
	Collection string // e.g. replays
}

// MongoReplayRepo implements ReplayRepo on MongoDB backend.
// The recording itself is kept zstd-compressed in the data field.
type MongoReplayRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

type replayDoc struct {
	ID        string    `bson:"_id"`
	SessionID string    `bson:"session_id"`
	LevelID   string    `bson:"level_id"`
	Moves     int       `bson:"moves"`
	Completed bool      `bson:"completed"`
	CreatedAt time.Time `bson:"created_at"`
	Data      []byte    `bson:"data"`
}

// NewMongoReplayRepo establishes connection and returns repository.
func NewMongoReplayRepo(cfg MongoConfig) (*MongoReplayRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "blockroll"
	}
	if cfg.Collection == "" {
		cfg.Collection = "replays"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	repo := &MongoReplayRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (m *MongoReplayRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	levelIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "level_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("level_created"),
	}
	_, err := m.collection.Indexes().CreateOne(ctx, levelIdx)
	return err
}

// Save implements ReplayRepo (upsert by id).
func (m *MongoReplayRepo) Save(ctx context.Context, rec *replay.Recording) error {
	if rec.ID == "" {
		return fmt.Errorf("storage: replay without id")
	}
	data, err := replay.Encode(rec)
	if err != nil {
		return err
	}
	doc := replayDoc{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		LevelID:   rec.LevelID,
		Moves:     len(rec.Steps),
		Completed: rec.Completed,
		CreatedAt: rec.CreatedAt,
		Data:      data,
	}

	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	_, err = m.collection.ReplaceOne(ctx, bson.M{"_id": rec.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// Get implements ReplayRepo.
func (m *MongoReplayRepo) Get(ctx context.Context, id string) (*replay.Recording, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	var doc replayDoc
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("replay %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return replay.Decode(doc.Data)
}

// List implements ReplayRepo.
func (m *MongoReplayRepo) List(ctx context.Context, levelID string) ([]*replay.Recording, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	filter := bson.M{}
	if levelID != "" {
		filter["level_id"] = levelID
	}
	cur, err := m.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*replay.Recording{}
	for cur.Next(ctx) {
		var doc replayDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		rec, err := replay.Decode(doc.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, cur.Err()
}

// Delete implements ReplayRepo.
func (m *MongoReplayRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	res, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("replay %q: %w", id, ErrNotFound)
	}
	return nil
}

// Close disconnects the client.
func (m *MongoReplayRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
