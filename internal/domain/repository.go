package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// HistoryRepository defines the interface for the append-only transfer history log
type HistoryRepository interface {
	// Append atomically reserves the next sequence number, stores the record under it
	// and returns the assigned ID. It is the sole mutator of the log.
	// Sequence numbers start at 0, are strictly increasing and never reused.
	Append(ctx context.Context, record *TransferHistory) (uint64, error)

	// Len returns the number of records in the log
	Len(ctx context.Context) (uint64, error)

	// List returns a snapshot of records in ascending sequence order.
	// offset skips the first records; limit <= 0 means no limit.
	List(ctx context.Context, offset, limit int) ([]*TransferHistory, error)
}

// TransferArgs is the ledger-level transfer call for one recipient
type TransferArgs struct {
	To            Principal
	Amount        uint64
	Memo          []byte
	CreatedAtTime uint64 // nanoseconds since epoch, used by the ledger for deduplication
}

// Ledger defines the interface for the external token ledger service.
// The ledger is named per call so the agent can operate against multiple token ledgers.
type Ledger interface {
	// Transfer moves tokens out of the treasury account and returns the ledger block index.
	// A ledger-reported rejection is returned as *TransferError (matches ErrLedgerRejected);
	// transport failures match ErrLedgerCallFailed.
	Transfer(ctx context.Context, ledgerID Principal, args TransferArgs) (uint64, error)

	// BalanceOf queries the current balance of account on the named ledger
	BalanceOf(ctx context.Context, ledgerID Principal, account Principal) (decimal.Decimal, error)
}

// ControllerOracle defines the interface for the identity oracle reporting who controls this agent
type ControllerOracle interface {
	// Controllers returns the authorized-operator set of the agent.
	// Failures are returned as *OracleError.
	Controllers(ctx context.Context) ([]Principal, error)
}

// OracleError is a failed controller query. Message is the oracle's raw error text,
// which may embed the identity of the caller that triggered the query.
type OracleError struct {
	Message string
}

func (e *OracleError) Error() string {
	return ErrOracleUnavailable.Error() + ": " + e.Message
}

func (e *OracleError) Is(target error) bool {
	return target == ErrOracleUnavailable
}
