package balance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/simaogato/treasury-backend/internal/domain"
)

// BalanceService queries the ledger for the treasury's own balance.
// Nothing is cached: the treasury balance may change between queries
// through operations outside this agent's control.
type BalanceService struct {
	Ledger   domain.Ledger
	Treasury domain.Principal
}

// NewBalanceService creates a new BalanceService instance
func NewBalanceService(ledger domain.Ledger, treasury domain.Principal) *BalanceService {
	return &BalanceService{
		Ledger:   ledger,
		Treasury: treasury,
	}
}

// BalanceOf returns the treasury balance on the named ledger at call time.
// A failed or malformed query is always an error, never zero.
func (s *BalanceService) BalanceOf(ctx context.Context, ledgerID domain.Principal) (decimal.Decimal, error) {
	balance, err := s.Ledger.BalanceOf(ctx, ledgerID, s.Treasury)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query balance of %s on ledger %s: %w", s.Treasury, ledgerID, err)
	}

	if balance.IsNegative() || !balance.Equal(balance.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("%w: ledger %s reported malformed balance %s", domain.ErrLedgerCallFailed, ledgerID, balance)
	}

	return balance, nil
}

// EnsureSufficient returns ErrInsufficientBalance when requested exceeds the current balance
func (s *BalanceService) EnsureSufficient(ctx context.Context, ledgerID domain.Principal, requested decimal.Decimal) error {
	balance, err := s.BalanceOf(ctx, ledgerID)
	if err != nil {
		return err
	}

	if requested.GreaterThan(balance) {
		return fmt.Errorf("%w: requested %s exceeds balance %s on ledger %s",
			domain.ErrInsufficientBalance, requested, balance, ledgerID)
	}

	return nil
}
