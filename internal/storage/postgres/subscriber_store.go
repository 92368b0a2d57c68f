package postgres

import (
	"context"
	"fmt"

	"github.com/mferrill/workherald/internal/workmeta"
)

// SubscriberStore implements workmeta.SubscriberStore on Postgres.
type SubscriberStore struct {
	pool pgxIface
}

// NewSubscriberStore connects a SubscriberStore using the provided config.
func NewSubscriberStore(ctx context.Context, cfg Config) (*SubscriberStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SubscriberStore{pool: pool}, nil
}

// NewSubscriberStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewSubscriberStoreWithPool(pool pgxIface) (*SubscriberStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SubscriberStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *SubscriberStore) Close() {
	s.pool.Close()
}

// AddSubscriber upserts a subscription keyed by (job, requester). A repeat
// subscribe updates the channel and mention preference in place.
func (s *SubscriberStore) AddSubscriber(ctx context.Context, sub workmeta.Subscriber) error {
	query := `
		INSERT INTO subscribers (job_id, requester_id, channel_id, mention, added_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (job_id, requester_id)
		DO UPDATE SET channel_id = EXCLUDED.channel_id, mention = EXCLUDED.mention;
	`
	_, err := s.pool.Exec(ctx, query, sub.JobID, sub.RequesterID, nullable(sub.ChannelID), sub.Mention)
	if err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	return nil
}

// ListSubscribers returns a job's subscribers in registration order.
func (s *SubscriberStore) ListSubscribers(ctx context.Context, jobID string) ([]workmeta.Subscriber, error) {
	query := `
		SELECT job_id, requester_id, channel_id, mention FROM subscribers
		WHERE job_id = $1
		ORDER BY added_at ASC;
	`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []workmeta.Subscriber
	for rows.Next() {
		var (
			sub     workmeta.Subscriber
			channel *string
		)
		if err := rows.Scan(&sub.JobID, &sub.RequesterID, &channel, &sub.Mention); err != nil {
			return nil, fmt.Errorf("scan subscriber row: %w", err)
		}
		if channel != nil {
			sub.ChannelID = *channel
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriber rows: %w", err)
	}
	return subs, nil
}

// DeleteSubscribers removes every subscription for a job.
func (s *SubscriberStore) DeleteSubscribers(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM subscribers WHERE job_id = $1;`, jobID)
	if err != nil {
		return fmt.Errorf("delete subscribers: %w", err)
	}
	return nil
}
