package grpc

// Wire messages of the TreasuryService. Amounts and receipts are natural
// numbers; totals are decimal strings since a batch total can exceed uint64.

// RecipientMessage is one (principal, amount) pair of a batch
type RecipientMessage struct {
	Principal string `json:"principal"`
	Amount    uint64 `json:"amount"`
}

// TransferToPrincipalRequest is the single transfer request (also used by PreviewTransfer)
type TransferToPrincipalRequest struct {
	Principal string `json:"principal"`
	Amount    uint64 `json:"amount"`
	LedgerID  string `json:"ledger_id"`
}

// TransferToMultipleRequest is the batch transfer request (also used by PreviewBatchTransfer)
type TransferToMultipleRequest struct {
	Principals []RecipientMessage `json:"principals"`
	LedgerID   string             `json:"ledger_id"`
}

// PreviewResponse is the validation summary of a request that was not executed
type PreviewResponse struct {
	Summary        string `json:"summary"`
	Total          string `json:"total"`
	RecipientCount int    `json:"recipient_count"`
	LedgerID       string `json:"ledger_id"`
}

// TransferToPrincipalResponse carries the ledger receipt of a single transfer
type TransferToPrincipalResponse struct {
	RequestID  string `json:"request_id"`
	BlockIndex uint64 `json:"block_index"`
	HistoryID  uint64 `json:"history_id"`
}

// TransferToMultipleResponse carries one ledger receipt per recipient, in request order
type TransferToMultipleResponse struct {
	RequestID string   `json:"request_id"`
	Receipts  []uint64 `json:"receipts"`
	HistoryID uint64   `json:"history_id"`
}

// CountHistoryRequest is empty
type CountHistoryRequest struct{}

// CountHistoryResponse carries the number of recorded transfers
type CountHistoryResponse struct {
	Count uint64 `json:"count"`
}

// ListHistoryRequest optionally pages the history. Zero limit means no limit.
type ListHistoryRequest struct {
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`
}

// ListHistoryResponse lists records in ascending id order
type ListHistoryResponse struct {
	Records []HistoryRecordMessage `json:"records"`
}

// HistoryRecordMessage is one history record. Exactly one of
// TransferToPrincipal and TransferToMultiple is set, matching Kind.
type HistoryRecordMessage struct {
	ID                  uint64                      `json:"id"`
	Kind                string                      `json:"kind"`
	TransferToPrincipal *TransferToPrincipalRequest `json:"transfer_to_principal,omitempty"`
	TransferToMultiple  *TransferToMultipleRequest  `json:"transfer_to_multiple,omitempty"`
	RequestID           string                      `json:"request_id"`
	Caller              string                      `json:"caller"`
	Receipts            []uint64                    `json:"receipts"`
	RecordedAt          string                      `json:"recorded_at"`
}
