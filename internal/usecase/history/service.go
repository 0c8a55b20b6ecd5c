package history

import (
	"context"
	"fmt"

	"github.com/simaogato/treasury-backend/internal/domain"
)

// MaxPageLimit caps a single page; larger limits are clamped
const MaxPageLimit = 1000

// HistoryService exposes read-only access to the transfer history log.
// Reads never call the ledger and need no authorization: they expose no mutation capability.
type HistoryService struct {
	HistoryRepo domain.HistoryRepository
}

// NewHistoryService creates a new HistoryService instance
func NewHistoryService(historyRepo domain.HistoryRepository) *HistoryService {
	return &HistoryService{
		HistoryRepo: historyRepo,
	}
}

// CountHistory returns the number of recorded transfer attempts
func (s *HistoryService) CountHistory(ctx context.Context) (uint64, error) {
	count, err := s.HistoryRepo.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count transfer history: %w", err)
	}
	return count, nil
}

// ListHistory returns every record in insertion order
func (s *HistoryService) ListHistory(ctx context.Context) ([]*domain.TransferHistory, error) {
	return s.ListHistoryPage(ctx, 0, 0)
}

// ListHistoryPage returns a page of records in insertion order.
// limit 0 returns everything from offset onwards; a positive limit is clamped to MaxPageLimit.
func (s *HistoryService) ListHistoryPage(ctx context.Context, offset, limit int) ([]*domain.TransferHistory, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be non-negative", domain.ErrValidationFailed)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be non-negative", domain.ErrValidationFailed)
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	records, err := s.HistoryRepo.List(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfer history: %w", err)
	}
	return records, nil
}
