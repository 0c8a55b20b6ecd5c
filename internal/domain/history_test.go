package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTransferHistory_Validate(t *testing.T) {
	now := time.Now()
	single := SingleTransfer{Principal: testRecipient, Amount: 5, LedgerID: testLedger}
	batch := BatchTransfer{Principals: []Recipient{{Principal: testRecipient, Amount: 5}}, LedgerID: testLedger}

	tests := []struct {
		name    string
		record  *TransferHistory
		wantErr bool
	}{
		{
			name:    "Single record should pass",
			record:  NewSingleHistory(uuid.New(), testOther, single, 7, now),
			wantErr: false,
		},
		{
			name:    "Batch record should pass",
			record:  NewBatchHistory(uuid.New(), testOther, batch, []uint64{7}, now),
			wantErr: false,
		},
		{
			name:    "Unknown kind should fail",
			record:  &TransferHistory{Kind: "REFUND", Single: &single},
			wantErr: true,
		},
		{
			name:    "Single kind carrying a batch should fail",
			record:  &TransferHistory{Kind: HistoryKindTransferToPrincipal, Single: &single, Batch: &batch},
			wantErr: true,
		},
		{
			name:    "Batch kind without a batch should fail",
			record:  &TransferHistory{Kind: HistoryKindTransferToMultiple},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewBatchHistory_CopiesRequest(t *testing.T) {
	batch := BatchTransfer{Principals: []Recipient{{Principal: testRecipient, Amount: 5}}, LedgerID: testLedger}
	receipts := []uint64{1}

	record := NewBatchHistory(uuid.New(), testOther, batch, receipts, time.Now())
	batch.Principals[0].Amount = 999
	receipts[0] = 42

	assert.Equal(t, uint64(5), record.Batch.Principals[0].Amount)
	assert.Equal(t, []uint64{1}, record.Receipts)
}

func TestErrorTaxonomy(t *testing.T) {
	rejection := &TransferError{Kind: TransferErrorBadFee, ExpectedFee: 10000}
	assert.True(t, errors.Is(rejection, ErrLedgerRejected))
	assert.Equal(t, "ledger transfer error: BAD_FEE (expected fee 10000)", rejection.Error())

	batchErr := &BatchError{
		Index:     1,
		Recipient: Recipient{Principal: testOther, Amount: 20},
		Completed: []uint64{3},
		Err:       rejection,
	}
	assert.True(t, errors.Is(batchErr, ErrLedgerRejected))
	assert.Contains(t, batchErr.Error(), "batch aborted at recipient 1")
	assert.Contains(t, batchErr.Error(), "amount 20")

	var te *TransferError
	assert.True(t, errors.As(batchErr, &te))
	assert.Equal(t, uint64(10000), te.ExpectedFee)

	oracleErr := &OracleError{Message: "canister_status rejected for rrkah-fqaaa-aaaaa-aaaaq-cai"}
	assert.True(t, errors.Is(oracleErr, ErrOracleUnavailable))
	assert.Contains(t, oracleErr.Error(), "rrkah-fqaaa-aaaaa-aaaaq-cai")
}
