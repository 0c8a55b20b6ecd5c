package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// SingleTransfer represents a request to pay Amount of the named ledger's token to Principal.
// Adheres to the Transfer Request (Single) data model.
type SingleTransfer struct {
	Principal Principal `json:"principal"`
	Amount    uint64    `json:"amount"`
	LedgerID  Principal `json:"ledger_id"`
}

// Recipient is one (destination, amount) pair of a batch transfer
type Recipient struct {
	Principal Principal `json:"principal"`
	Amount    uint64    `json:"amount"`
}

// BatchTransfer represents a request to pay every recipient, in order, against the same ledger.
// Adheres to the Transfer Request (Batch) data model.
type BatchTransfer struct {
	Principals []Recipient `json:"principals"`
	LedgerID   Principal   `json:"ledger_id"`
}

// TransferSummary is the human-readable preview of a validated request
type TransferSummary struct {
	Total          decimal.Decimal
	RecipientCount int
	LedgerID       Principal
}

// String renders the summary for display before execution
func (s TransferSummary) String() string {
	noun := "recipients"
	if s.RecipientCount == 1 {
		noun = "recipient"
	}
	return fmt.Sprintf("transfer %s tokens to %d %s on ledger %s",
		s.Total.String(), s.RecipientCount, noun, s.LedgerID)
}

// AmountToDecimal converts a raw token quantity to a decimal without overflow
func AmountToDecimal(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)
}

// Validate ensures the single transfer adheres to domain rules.
// Checks run in order and stop at the first failure:
//  1. amount strictly greater than zero
//  2. destination not anonymous
//  3. ledger not anonymous
//  4. destination and ledger are well-formed principals
func (t *SingleTransfer) Validate() error {
	if t.Amount == 0 {
		return validationError("transfer amount must be positive, got %d", t.Amount)
	}

	if t.Principal.IsAnonymous() {
		return validationError("destination %q must not be anonymous", t.Principal)
	}

	if t.LedgerID.IsAnonymous() {
		return validationError("ledger id %q must not be anonymous", t.LedgerID)
	}

	if err := t.Principal.Validate(); err != nil {
		return validationError("invalid destination: %v", err)
	}

	if err := t.LedgerID.Validate(); err != nil {
		return validationError("invalid ledger id: %v", err)
	}

	return nil
}

// Summary returns the preview of a single transfer, validating it first
func (t *SingleTransfer) Summary() (TransferSummary, error) {
	if err := t.Validate(); err != nil {
		return TransferSummary{}, err
	}

	return TransferSummary{
		Total:          AmountToDecimal(t.Amount),
		RecipientCount: 1,
		LedgerID:       t.LedgerID,
	}, nil
}

// Validate ensures the batch transfer adheres to domain rules.
// Checks run in order and stop at the first failure:
//  1. recipient list non-empty
//  2. every recipient amount strictly greater than zero
//  3. ledger not anonymous
//  4. no recipient is anonymous
//  5. ledger and every recipient are well-formed principals
func (t *BatchTransfer) Validate() error {
	if len(t.Principals) == 0 {
		return validationError("batch transfer must have at least one recipient")
	}

	for i, r := range t.Principals {
		if r.Amount == 0 {
			return validationError("recipient %d (%s) amount must be positive, got %d", i, r.Principal, r.Amount)
		}
	}

	if t.LedgerID.IsAnonymous() {
		return validationError("ledger id %q must not be anonymous", t.LedgerID)
	}

	for i, r := range t.Principals {
		if r.Principal.IsAnonymous() {
			return validationError("recipient %d %q must not be anonymous", i, r.Principal)
		}
	}

	if err := t.LedgerID.Validate(); err != nil {
		return validationError("invalid ledger id: %v", err)
	}

	for i, r := range t.Principals {
		if err := r.Principal.Validate(); err != nil {
			return validationError("invalid recipient %d: %v", i, err)
		}
	}

	return nil
}

// Total returns the sum of all recipient amounts.
// Computed in decimal so that large batches cannot overflow.
func (t *BatchTransfer) Total() decimal.Decimal {
	total := decimal.Zero
	for _, r := range t.Principals {
		total = total.Add(AmountToDecimal(r.Amount))
	}
	return total
}

// Summary returns the preview of a batch transfer, validating it first
func (t *BatchTransfer) Summary() (TransferSummary, error) {
	if err := t.Validate(); err != nil {
		return TransferSummary{}, err
	}

	return TransferSummary{
		Total:          t.Total(),
		RecipientCount: len(t.Principals),
		LedgerID:       t.LedgerID,
	}, nil
}
