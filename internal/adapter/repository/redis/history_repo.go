package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	goredis "github.com/redis/go-redis/v9"

	"github.com/simaogato/treasury-backend/internal/domain"
)

// historyRepository implements domain.HistoryRepository on a Redis list.
// The list index is the sequence number: RPUSH appends and reports the new
// length in one atomic command, so ids are gap-free and never reused.
type historyRepository struct {
	client goredis.UniversalClient
	key    string
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewHistoryRepository creates a history repository stored under keyPrefix
func NewHistoryRepository(client goredis.UniversalClient, keyPrefix string) domain.HistoryRepository {
	return &historyRepository{
		client: client,
		key:    keyPrefix + ":records",
	}
}

// Append pushes the record and returns its index as the assigned id
func (r *historyRepository) Append(ctx context.Context, record *domain.TransferHistory) (uint64, error) {
	if err := record.Validate(); err != nil {
		return 0, fmt.Errorf("invalid history record: %w", err)
	}

	stored := *record
	stored.ID = 0 // derived from the list index on read
	payload, err := json.Marshal(&stored)
	if err != nil {
		return 0, fmt.Errorf("failed to encode history record: %w", err)
	}

	length, err := r.client.RPush(ctx, r.key, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to append history record: %w", err)
	}

	return uint64(length - 1), nil
}

// Len returns the number of records in the log
func (r *historyRepository) Len(ctx context.Context) (uint64, error) {
	length, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count transfer history: %w", err)
	}
	return uint64(length), nil
}

// List returns a snapshot of records in ascending sequence order
func (r *historyRepository) List(ctx context.Context, offset, limit int) ([]*domain.TransferHistory, error) {
	if offset < 0 {
		offset = 0
	}
	start := int64(offset)
	stop := int64(-1)
	if limit > 0 && int64(limit) <= math.MaxInt64-start {
		stop = start + int64(limit) - 1
	}

	payloads, err := r.client.LRange(ctx, r.key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list transfer history: %w", err)
	}

	records := make([]*domain.TransferHistory, 0, len(payloads))
	for i, payload := range payloads {
		var record domain.TransferHistory
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, fmt.Errorf("failed to decode history record %d: %w", offset+i, err)
		}
		record.ID = uint64(offset + i)
		records = append(records, &record)
	}

	return records, nil
}
