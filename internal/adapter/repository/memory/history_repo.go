package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/simaogato/treasury-backend/internal/domain"
)

// historyRepository implements domain.HistoryRepository in process memory.
// Records are stored encoded so neither writers nor readers share mutable state with the log.
type historyRepository struct {
	mu      sync.RWMutex
	records [][]byte
}

// NewHistoryRepository creates a new, empty in-memory history repository
func NewHistoryRepository() domain.HistoryRepository {
	return &historyRepository{}
}

// Append stores the record under the next sequence number
func (r *historyRepository) Append(ctx context.Context, record *domain.TransferHistory) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := record.Validate(); err != nil {
		return 0, fmt.Errorf("invalid history record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uint64(len(r.records))
	stored := *record
	stored.ID = id

	data, err := json.Marshal(&stored)
	if err != nil {
		return 0, fmt.Errorf("failed to encode history record: %w", err)
	}

	r.records = append(r.records, data)
	return id, nil
}

// Len returns the number of records in the log
func (r *historyRepository) Len(ctx context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.records)), nil
}

// List returns a snapshot of records in ascending sequence order
func (r *historyRepository) List(ctx context.Context, offset, limit int) ([]*domain.TransferHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start, end := window(len(r.records), offset, limit)
	out := make([]*domain.TransferHistory, 0, end-start)
	for _, data := range r.records[start:end] {
		var record domain.TransferHistory
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to decode history record: %w", err)
		}
		out = append(out, &record)
	}

	return out, nil
}

// window clamps an offset/limit page to [0, n)
func window(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && limit < n-offset {
		end = offset + limit
	}
	return offset, end
}
