package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// HistoryKind tags which variant a TransferHistory record holds
type HistoryKind string

const (
	HistoryKindTransferToPrincipal HistoryKind = "TRANSFER_TO_PRINCIPAL"
	HistoryKindTransferToMultiple  HistoryKind = "TRANSFER_TO_MULTIPLE"
)

// TransferHistory is an immutable audit record of one transfer attempt.
// Exactly one of Single or Batch is set, matching Kind. The request is stored
// verbatim so the audit trail is self-describing.
type TransferHistory struct {
	ID         uint64          `json:"id"` // assigned by the HistoryRepository at append time
	Kind       HistoryKind     `json:"kind"`
	Single     *SingleTransfer `json:"transfer_to_principal,omitempty"`
	Batch      *BatchTransfer  `json:"transfer_to_multiple,omitempty"`
	RequestID  uuid.UUID       `json:"request_id"`
	Caller     Principal       `json:"caller"`
	Receipts   []uint64        `json:"receipts"` // ledger block indexes, one per recipient
	RecordedAt time.Time       `json:"recorded_at"`
}

// NewSingleHistory builds the history record of a completed single transfer
func NewSingleHistory(requestID uuid.UUID, caller Principal, req SingleTransfer, receipt uint64, at time.Time) *TransferHistory {
	return &TransferHistory{
		Kind:       HistoryKindTransferToPrincipal,
		Single:     &req,
		RequestID:  requestID,
		Caller:     caller,
		Receipts:   []uint64{receipt},
		RecordedAt: at,
	}
}

// NewBatchHistory builds the history record of a completed batch transfer
func NewBatchHistory(requestID uuid.UUID, caller Principal, req BatchTransfer, receipts []uint64, at time.Time) *TransferHistory {
	batch := req
	batch.Principals = append([]Recipient(nil), req.Principals...)
	return &TransferHistory{
		Kind:       HistoryKindTransferToMultiple,
		Batch:      &batch,
		RequestID:  requestID,
		Caller:     caller,
		Receipts:   append([]uint64(nil), receipts...),
		RecordedAt: at,
	}
}

// Validate ensures the record is a well-formed tagged variant
func (h *TransferHistory) Validate() error {
	switch h.Kind {
	case HistoryKindTransferToPrincipal:
		if h.Single == nil || h.Batch != nil {
			return errors.New("transfer to principal history must carry exactly the single request")
		}
	case HistoryKindTransferToMultiple:
		if h.Batch == nil || h.Single != nil {
			return errors.New("transfer to multiple history must carry exactly the batch request")
		}
	default:
		return errors.New("history kind must be TRANSFER_TO_PRINCIPAL or TRANSFER_TO_MULTIPLE")
	}
	return nil
}
