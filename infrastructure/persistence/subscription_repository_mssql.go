package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
)

// EnsureSubscriptionSchemaMSSQL creates the lease table in SQL Server if missing.
func EnsureSubscriptionSchemaMSSQL(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := `IF OBJECT_ID('dbo.channel_subscriptions', 'U') IS NULL
BEGIN
CREATE TABLE dbo.[channel_subscriptions] (
  channel_id NVARCHAR(64) NOT NULL PRIMARY KEY,
  topic_url NVARCHAR(512) NOT NULL,
  callback_url NVARCHAR(512) NOT NULL,
  state NVARCHAR(32) NOT NULL,
  lease_seconds BIGINT NOT NULL,
  lease_expires_at DATETIME2 NULL,
  last_renewal_attempt_at DATETIME2 NULL,
  renewal_failures INT NOT NULL DEFAULT 0,
  verify_pending BIT NOT NULL DEFAULT 0,
  unsubscribe_pending BIT NOT NULL DEFAULT 0,
  last_error NVARCHAR(MAX) NULL,
  created_at DATETIME2 NOT NULL,
  updated_at DATETIME2 NOT NULL
)
END`
	if _, err := db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure channel_subscriptions table: %w", err)
	}
	return nil
}

// SubscriptionRepositoryMSSQL persists leases in SQL Server/Azure SQL using database/sql.
type SubscriptionRepositoryMSSQL struct{ db *sql.DB }

func NewSubscriptionRepositoryMSSQL(db *sql.DB) repository.ISubscription {
	return &SubscriptionRepositoryMSSQL{db: db}
}

func (r *SubscriptionRepositoryMSSQL) Save(ctx context.Context, sub *model.ChannelSubscription) error {
	sub.UpdatedAt = time.Now().UTC()
	q := `MERGE dbo.[channel_subscriptions] AS target
USING (VALUES (@p1)) AS src(channel_id)
ON target.channel_id = src.channel_id
WHEN MATCHED THEN UPDATE SET
  topic_url = @p2, callback_url = @p3, state = @p4, lease_seconds = @p5, lease_expires_at = @p6,
  last_renewal_attempt_at = @p7, renewal_failures = @p8, verify_pending = @p9, unsubscribe_pending = @p10,
  last_error = @p11, updated_at = @p13
WHEN NOT MATCHED THEN
  INSERT (channel_id, topic_url, callback_url, state, lease_seconds, lease_expires_at, last_renewal_attempt_at,
    renewal_failures, verify_pending, unsubscribe_pending, last_error, created_at, updated_at)
  VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9, @p10, @p11, @p12, @p13);`
	if _, err := r.db.ExecContext(ctx, q, subscriptionArgs(sub)...); err != nil {
		return fmt.Errorf("save subscription %s: %w", sub.ChannelID, err)
	}
	return nil
}

func (r *SubscriptionRepositoryMSSQL) Delete(ctx context.Context, channelID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM dbo.[channel_subscriptions] WHERE channel_id=@p1`, channelID); err != nil {
		return fmt.Errorf("delete subscription %s: %w", channelID, err)
	}
	return nil
}

func (r *SubscriptionRepositoryMSSQL) List(ctx context.Context) ([]*model.ChannelSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM dbo.[channel_subscriptions] ORDER BY channel_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}
