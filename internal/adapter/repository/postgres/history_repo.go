package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/simaogato/treasury-backend/internal/domain"
)

// historyAppendLockKey is the advisory lock serializing appends across connections
const historyAppendLockKey int64 = 0x74726561737279

// historyRepository implements domain.HistoryRepository
type historyRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) domain.HistoryRepository {
	return &historyRepository{db: db}
}

// Append reserves the next id and inserts the record in one database transaction.
// A transaction-scoped advisory lock makes read-max-then-insert a single critical section.
func (r *historyRepository) Append(ctx context.Context, record *domain.TransferHistory) (uint64, error) {
	if err := record.Validate(); err != nil {
		return 0, fmt.Errorf("invalid history record: %w", err)
	}

	// Start a database transaction
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, historyAppendLockKey); err != nil {
		return 0, fmt.Errorf("failed to lock transfer history: %w", err)
	}

	var id uint64
	if err := dbTx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id) + 1, 0) FROM transfer_history`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to reserve history id: %w", err)
	}

	stored := *record
	stored.ID = id
	payload, err := json.Marshal(&stored)
	if err != nil {
		return 0, fmt.Errorf("failed to encode history record: %w", err)
	}

	insertQuery := `
		INSERT INTO transfer_history (id, kind, request_id, caller, record, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = dbTx.ExecContext(ctx, insertQuery,
		int64(id),
		string(stored.Kind),
		stored.RequestID,
		stored.Caller.String(),
		string(payload), // lib/pq sends []byte as bytea
		stored.RecordedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert history record: %w", err)
	}

	// Commit the transaction
	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

// Len returns the number of records in the log
func (r *historyRepository) Len(ctx context.Context) (uint64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transfer_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transfer history: %w", err)
	}
	return uint64(count), nil
}

// List returns a snapshot of records in ascending id order
func (r *historyRepository) List(ctx context.Context, offset, limit int) ([]*domain.TransferHistory, error) {
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT record
		FROM transfer_history
		ORDER BY id ASC
		OFFSET $1
	`
	args := []any{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfer history: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.TransferHistory, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}

		var record domain.TransferHistory
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("failed to decode history record: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history records: %w", err)
	}

	return records, nil
}
