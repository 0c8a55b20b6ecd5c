package balance

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/treasury-backend/internal/domain"
)

const (
	treasury domain.Principal = "be2us-64aaa-aaaaa-qaabq-cai"
	ledgerID domain.Principal = "ryjl3-tyaaa-aaaaa-aaaba-cai"
)

// MockLedger is a mock implementation of Ledger for testing
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Transfer(ctx context.Context, ledger domain.Principal, args domain.TransferArgs) (uint64, error) {
	ret := m.Called(ctx, ledger, args)
	return ret.Get(0).(uint64), ret.Error(1)
}

func (m *MockLedger) BalanceOf(ctx context.Context, ledger domain.Principal, account domain.Principal) (decimal.Decimal, error) {
	ret := m.Called(ctx, ledger, account)
	return ret.Get(0).(decimal.Decimal), ret.Error(1)
}

func TestBalanceService_BalanceOf(t *testing.T) {
	ctx := context.Background()
	mockLedger := new(MockLedger)
	mockLedger.On("BalanceOf", ctx, ledgerID, treasury).Return(decimal.NewFromInt(100), nil).Twice()

	service := NewBalanceService(mockLedger, treasury)

	// Every call reaches the ledger
	for i := 0; i < 2; i++ {
		balance, err := service.BalanceOf(ctx, ledgerID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(100).Equal(balance))
	}

	mockLedger.AssertExpectations(t)
	mockLedger.AssertNumberOfCalls(t, "BalanceOf", 2)
}

func TestBalanceService_FailureIsNeverZero(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		balance decimal.Decimal
		err     error
		target  error
	}{
		{
			name:    "Unreachable ledger",
			balance: decimal.Zero,
			err:     errors.Join(domain.ErrLedgerCallFailed, errors.New("connection refused")),
			target:  domain.ErrLedgerCallFailed,
		},
		{
			name:    "Negative balance is malformed",
			balance: decimal.NewFromInt(-1),
			target:  domain.ErrLedgerCallFailed,
		},
		{
			name:    "Fractional balance is malformed",
			balance: decimal.RequireFromString("1.5"),
			target:  domain.ErrLedgerCallFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockLedger := new(MockLedger)
			mockLedger.On("BalanceOf", ctx, ledgerID, treasury).Return(tt.balance, tt.err)

			service := NewBalanceService(mockLedger, treasury)
			_, err := service.BalanceOf(ctx, ledgerID)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)

			err = service.EnsureSufficient(ctx, ledgerID, decimal.NewFromInt(1))
			assert.ErrorIs(t, err, tt.target)
			assert.NotErrorIs(t, err, domain.ErrInsufficientBalance)
		})
	}
}

func TestBalanceService_EnsureSufficient(t *testing.T) {
	ctx := context.Background()
	mockLedger := new(MockLedger)
	mockLedger.On("BalanceOf", ctx, ledgerID, treasury).Return(decimal.NewFromInt(100), nil)

	service := NewBalanceService(mockLedger, treasury)

	assert.NoError(t, service.EnsureSufficient(ctx, ledgerID, decimal.NewFromInt(100)))

	err := service.EnsureSufficient(ctx, ledgerID, decimal.NewFromInt(150))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "requested 150 exceeds balance 100")
}
