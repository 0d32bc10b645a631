package record

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ingest/internal/logger"
	"ingest/pkg/models"
)

// mongoBatch is the stored document shape.
type mongoBatch struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	BatchName string             `bson:"batch_name"`
	Addresses []string           `bson:"addresses"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (b mongoBatch) summary() models.BatchSummary {
	return models.BatchSummary{
		ID:        b.ID.Hex(),
		BatchName: b.BatchName,
		Addresses: b.Addresses,
		CreatedAt: b.CreatedAt.UTC(),
	}
}

// MongoStore stores one document per batch in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        zerolog.Logger
}

// OpenMongo connects to uri and ensures a unique index on batch_name.
func OpenMongo(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	const op = "OpenMongo"
	log := logger.WithComponent("mongo")

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri).SetAppName("ingest"))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		log.Error().Err(err).Msg("Failed to reach MongoDB")
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "batch_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: create index: %w", op, err)
	}

	log.Info().
		Str("database", database).
		Str("collection", collection).
		Msg("Connected to MongoDB")
	return &MongoStore{client: client, collection: coll, log: log}, nil
}

func (m *MongoStore) Insert(ctx context.Context, summary models.BatchSummary) (*models.BatchSummary, error) {
	rec, err := prepare(summary, time.Now())
	if err != nil {
		return nil, err
	}
	doc := mongoBatch{
		BatchName: rec.BatchName,
		Addresses: rec.Addresses,
		CreatedAt: rec.CreatedAt,
	}

	res, err := m.collection.InsertOne(ctx, doc)
	if err != nil {
		m.log.Error().Err(err).Str("batch_name", rec.BatchName).Msg("InsertOne failed")
		return nil, insertError("mongo", err)
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, insertError("mongo", fmt.Errorf("unexpected inserted ID type %T", res.InsertedID))
	}
	doc.ID = id

	// Read back the stored document; it is already persisted, so a failed
	// read falls back to the document that was sent.
	var stored mongoBatch
	if err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&stored); err != nil {
		m.log.Warn().Err(err).Str("id", id.Hex()).Msg("Read-back after insert failed")
		stored = doc
	}

	out := stored.summary()
	return &out, nil
}

func (m *MongoStore) List(ctx context.Context, limit int) ([]models.BatchSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(listLimit(limit)))

	cur, err := m.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	var docs []mongoBatch
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("List: decode: %w", err)
	}

	out := make([]models.BatchSummary, len(docs))
	for i, d := range docs {
		out[i] = d.summary()
	}
	return out, nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
