package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"yt-pipeline/domain/model"
	"yt-pipeline/domain/repository"
)

// EnsureSubscriptionSchema creates the lease table if not exists
func EnsureSubscriptionSchema(db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS channel_subscriptions (
        channel_id TEXT PRIMARY KEY,
        topic_url TEXT NOT NULL,
        callback_url TEXT NOT NULL,
        state TEXT NOT NULL,
        lease_seconds BIGINT NOT NULL,
        lease_expires_at TIMESTAMPTZ NULL,
        last_renewal_attempt_at TIMESTAMPTZ NULL,
        renewal_failures INT NOT NULL DEFAULT 0,
        verify_pending BOOLEAN NOT NULL DEFAULT FALSE,
        unsubscribe_pending BOOLEAN NOT NULL DEFAULT FALSE,
        last_error TEXT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create channel_subscriptions table: %w", err)
	}
	return nil
}

// SubscriptionRepository persists leases in PostgreSQL.
type SubscriptionRepository struct{ db *sql.DB }

func NewSubscriptionRepository(db *sql.DB) repository.ISubscription {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Save(ctx context.Context, sub *model.ChannelSubscription) error {
	sub.UpdatedAt = time.Now().UTC()
	q := `INSERT INTO channel_subscriptions (channel_id, topic_url, callback_url, state, lease_seconds, lease_expires_at,
        last_renewal_attempt_at, renewal_failures, verify_pending, unsubscribe_pending, last_error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (channel_id) DO UPDATE SET
    topic_url = EXCLUDED.topic_url,
    callback_url = EXCLUDED.callback_url,
    state = EXCLUDED.state,
    lease_seconds = EXCLUDED.lease_seconds,
    lease_expires_at = EXCLUDED.lease_expires_at,
    last_renewal_attempt_at = EXCLUDED.last_renewal_attempt_at,
    renewal_failures = EXCLUDED.renewal_failures,
    verify_pending = EXCLUDED.verify_pending,
    unsubscribe_pending = EXCLUDED.unsubscribe_pending,
    last_error = EXCLUDED.last_error,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, q, subscriptionArgs(sub)...); err != nil {
		return fmt.Errorf("save subscription %s: %w", sub.ChannelID, err)
	}
	return nil
}

func (r *SubscriptionRepository) Delete(ctx context.Context, channelID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM channel_subscriptions WHERE channel_id=$1`, channelID); err != nil {
		return fmt.Errorf("delete subscription %s: %w", channelID, err)
	}
	return nil
}

func (r *SubscriptionRepository) List(ctx context.Context) ([]*model.ChannelSubscription, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM channel_subscriptions ORDER BY channel_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

const subscriptionColumns = `channel_id, topic_url, callback_url, state, lease_seconds, lease_expires_at,
last_renewal_attempt_at, renewal_failures, verify_pending, unsubscribe_pending, last_error, created_at, updated_at`

func subscriptionArgs(sub *model.ChannelSubscription) []any {
	return []any{
		sub.ChannelID, sub.TopicURL, sub.CallbackURL, string(sub.State), sub.LeaseSeconds,
		nullTime(sub.LeaseExpiresAt), nullTime(sub.LastRenewalAttemptAt), sub.RenewalFailures,
		sub.VerifyPending, sub.UnsubscribePending, nullString(sub.LastError), sub.CreatedAt, sub.UpdatedAt,
	}
}

func scanSubscriptions(rows *sql.Rows) ([]*model.ChannelSubscription, error) {
	var list []*model.ChannelSubscription
	for rows.Next() {
		sub := &model.ChannelSubscription{}
		var state string
		var expiresAt, attemptAt sql.NullTime
		var lastErr sql.NullString
		if err := rows.Scan(&sub.ChannelID, &sub.TopicURL, &sub.CallbackURL, &state, &sub.LeaseSeconds, &expiresAt,
			&attemptAt, &sub.RenewalFailures, &sub.VerifyPending, &sub.UnsubscribePending, &lastErr, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		sub.State = model.LeaseState(state)
		if expiresAt.Valid {
			t := expiresAt.Time.UTC()
			sub.LeaseExpiresAt = &t
		}
		if attemptAt.Valid {
			t := attemptAt.Time.UTC()
			sub.LastRenewalAttemptAt = &t
		}
		if lastErr.Valid {
			sub.LastError = &lastErr.String
		}
		list = append(list, sub)
	}
	return list, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
