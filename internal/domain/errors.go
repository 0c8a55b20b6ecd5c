package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized signals the caller is not in the authorized-operator set.
	ErrUnauthorized = errors.New("caller is not a controller")
	// ErrValidationFailed signals a malformed transfer request.
	ErrValidationFailed = errors.New("validation failed")
	// ErrInsufficientBalance signals the requested total exceeds the treasury balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrLedgerCallFailed signals a transport or serialization failure reaching the ledger.
	ErrLedgerCallFailed = errors.New("failed to call ledger")
	// ErrLedgerRejected signals the ledger processed the call and returned a transfer error.
	ErrLedgerRejected = errors.New("ledger transfer error")
	// ErrHistoryAppendFailed signals the ledger moved funds but the audit record was not written.
	ErrHistoryAppendFailed = errors.New("failed to append transfer history")
	// ErrOracleUnavailable signals the controller oracle could not be queried.
	ErrOracleUnavailable = errors.New("controller oracle unavailable")
)

// validationError wraps ErrValidationFailed with a reason
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

// TransferErrorKind enumerates the transfer-level errors a ledger may report
type TransferErrorKind string

const (
	TransferErrorBadFee                 TransferErrorKind = "BAD_FEE"
	TransferErrorBadBurn                TransferErrorKind = "BAD_BURN"
	TransferErrorInsufficientFunds      TransferErrorKind = "INSUFFICIENT_FUNDS"
	TransferErrorTooOld                 TransferErrorKind = "TOO_OLD"
	TransferErrorCreatedInFuture        TransferErrorKind = "CREATED_IN_FUTURE"
	TransferErrorDuplicate              TransferErrorKind = "DUPLICATE"
	TransferErrorTemporarilyUnavailable TransferErrorKind = "TEMPORARILY_UNAVAILABLE"
	TransferErrorGeneric                TransferErrorKind = "GENERIC_ERROR"
)

// TransferError is a ledger-reported rejection of a transfer call.
// Only the fields relevant to Kind are populated.
type TransferError struct {
	Kind        TransferErrorKind `json:"kind"`
	ExpectedFee uint64            `json:"expected_fee,omitempty"`
	MinBurn     uint64            `json:"min_burn_amount,omitempty"`
	Balance     uint64            `json:"balance,omitempty"`
	DuplicateOf uint64            `json:"duplicate_of,omitempty"`
	LedgerTime  uint64            `json:"ledger_time,omitempty"`
	Code        uint64            `json:"error_code,omitempty"`
	Message     string            `json:"message,omitempty"`
}

func (e *TransferError) Error() string {
	var b strings.Builder
	b.WriteString(ErrLedgerRejected.Error())
	b.WriteString(": ")
	b.WriteString(string(e.Kind))

	switch e.Kind {
	case TransferErrorBadFee:
		fmt.Fprintf(&b, " (expected fee %d)", e.ExpectedFee)
	case TransferErrorBadBurn:
		fmt.Fprintf(&b, " (min burn amount %d)", e.MinBurn)
	case TransferErrorInsufficientFunds:
		fmt.Fprintf(&b, " (balance %d)", e.Balance)
	case TransferErrorDuplicate:
		fmt.Fprintf(&b, " (duplicate of block %d)", e.DuplicateOf)
	case TransferErrorCreatedInFuture:
		fmt.Fprintf(&b, " (ledger time %d)", e.LedgerTime)
	case TransferErrorGeneric:
		fmt.Fprintf(&b, " (code %d: %s)", e.Code, e.Message)
	}

	return b.String()
}

// Is lets errors.Is(err, ErrLedgerRejected) match any TransferError
func (e *TransferError) Is(target error) bool {
	return target == ErrLedgerRejected
}

// BatchError reports a fail-fast abort of a batch transfer.
// Recipients before Index were paid and are NOT recorded in history.
type BatchError struct {
	Index     int
	Recipient Recipient
	Completed []uint64 // ledger receipts of the recipients already paid
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch aborted at recipient %d (%s, amount %d) after %d completed transfers: %v",
		e.Index, e.Recipient.Principal, e.Recipient.Amount, len(e.Completed), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
