package persistence

import (
	"context"
	"fmt"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
	"yt-pipeline/infrastructure/logger"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const videoCollection = "videos"

// VideoRepository stores normalized video records in MongoDB, one document per video_id.
type VideoRepository struct {
	collection *mongo.Collection
}

func NewVideoRepository(client *mongo.Client, database string) *VideoRepository {
	return &VideoRepository{collection: client.Database(database).Collection(videoCollection)}
}

var _ repository.IVideoStore = (*VideoRepository)(nil)

// EnsureIndexes creates the unique video_id index the upsert relies on.
func (r *VideoRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "video_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_video_id"),
		},
		{
			Keys:    bson.D{{Key: "channel_id", Value: 1}, {Key: "upload_date", Value: -1}},
			Options: options.Index().SetName("idx_channel_upload_date"),
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create video indexes: %w", err)
	}
	return nil
}

func (r *VideoRepository) Upsert(ctx context.Context, record *model.VideoRecord) (bool, error) {
	if record.IngestedAt.IsZero() {
		record.IngestedAt = time.Now().UTC()
	}
	opts := options.Replace().SetUpsert(true)
	res, err := r.collection.ReplaceOne(ctx, videoFilter(record.VideoID), record, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an insert race with a concurrent upsert; the document now exists.
		logger.GetLogger().WithField("videoId", record.VideoID).Debug("duplicate key on upsert, replacing")
		res, err = r.collection.ReplaceOne(ctx, videoFilter(record.VideoID), record)
	}
	if err != nil {
		return false, fmt.Errorf("upsert video %s: %w", record.VideoID, err)
	}
	return res.UpsertedCount > 0, nil
}

func (r *VideoRepository) Exists(ctx context.Context, videoID string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, videoFilter(videoID), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count video %s: %w", videoID, err)
	}
	return n > 0, nil
}

func (r *VideoRepository) CountSince(ctx context.Context, channelID string, cutoff time.Time) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, sinceFilter(channelID, cutoff))
	if err != nil {
		return 0, fmt.Errorf("count videos for %s: %w", channelID, err)
	}
	return n, nil
}

func videoFilter(videoID string) bson.D {
	return bson.D{{Key: "video_id", Value: videoID}}
}

func sinceFilter(channelID string, cutoff time.Time) bson.D {
	return bson.D{
		{Key: "channel_id", Value: channelID},
		{Key: "upload_date", Value: bson.D{{Key: "$gte", Value: cutoff.UTC()}}},
	}
}
