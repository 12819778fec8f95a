package persistence

import (
	"context"
	"fmt"
	"time"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/utils"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const metricsSnapshotCollection = "metrics_snapshots"

// MetricsSnapshotRepositoryMongo keeps snapshots as documents, for deployments that
// route high-volume metrics away from the relational store.
type MetricsSnapshotRepositoryMongo struct {
	collection *mongo.Collection
}

func NewMetricsSnapshotRepositoryMongo(client *mongo.Client, database string) *MetricsSnapshotRepositoryMongo {
	return &MetricsSnapshotRepositoryMongo{collection: client.Database(database).Collection(metricsSnapshotCollection)}
}

var _ repository.IMetricsSnapshot = (*MetricsSnapshotRepositoryMongo)(nil)

func (r *MetricsSnapshotRepositoryMongo) Append(ctx context.Context, s *model.MetricsSnapshot) error {
	if s.ID == "" {
		s.ID = utils.NewID()
	}
	if s.CapturedAt.IsZero() {
		s.CapturedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, s); err != nil {
		return fmt.Errorf("insert metrics snapshot: %w", err)
	}
	return nil
}

func (r *MetricsSnapshotRepositoryMongo) LatestPostSnapshots(ctx context.Context, ownerID string, from, to time.Time) ([]*model.MetricsSnapshot, error) {
	match := bson.D{
		{Key: "owner_id", Value: ownerID},
		{Key: "scope", Value: string(model.ScopePost)},
		{Key: "captured_at", Value: bson.D{{Key: "$gte", Value: from}, {Key: "$lte", Value: to}}},
	}
	group := bson.D{{Key: "job", Value: "$publish_job_id"}, {Key: "network", Value: "$network"}}
	return r.latest(ctx, match, group)
}

func (r *MetricsSnapshotRepositoryMongo) LatestAccountSnapshots(ctx context.Context, ownerID string) ([]*model.MetricsSnapshot, error) {
	match := bson.D{
		{Key: "owner_id", Value: ownerID},
		{Key: "scope", Value: string(model.ScopeAccount)},
	}
	return r.latest(ctx, match, "$network")
}

// latest sorts newest first and keeps the first document of each group.
func (r *MetricsSnapshotRepositoryMongo) latest(ctx context.Context, match bson.D, groupKey interface{}) ([]*model.MetricsSnapshot, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "captured_at", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: groupKey},
			{Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		if err := cursor.Close(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while closing cursor")
		}
	}(cursor, ctx)

	var out []*model.MetricsSnapshot
	for cursor.Next(ctx) {
		var s model.MetricsSnapshot
		if err := cursor.Decode(&s); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while decoding snapshot")
			continue
		}
		out = append(out, &s)
	}
	return out, cursor.Err()
}
