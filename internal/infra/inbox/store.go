package inbox

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store dedups broker deliveries in MongoDB through a unique index on
// (delivery_id, consumer). Records expire after the retention window.
type Store struct {
	col      *mongo.Collection
	consumer string
}

func NewStore(ctx context.Context, db *mongo.Database, consumer string, retention time.Duration) (*Store, error) {
	col := db.Collection("rentsync_inbox")
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "delivery_id", Value: 1}, {Key: "consumer", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "received_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention / time.Second)),
		})
	}
	if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, err
	}
	return &Store{col: col, consumer: consumer}, nil
}

func (s *Store) Seen(ctx context.Context, deliveryID string) (bool, error) {
	doc := bson.M{"delivery_id": deliveryID, "consumer": s.consumer, "received_at": time.Now().UTC()}
	_, err := s.col.InsertOne(ctx, doc)
	if err == nil {
		return false, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return true, nil
	}
	return false, err
}
