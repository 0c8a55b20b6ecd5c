package transfer

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simaogato/treasury-backend/internal/domain"
	"github.com/simaogato/treasury-backend/internal/usecase/authorization"
	"github.com/simaogato/treasury-backend/internal/usecase/balance"
)

// TransferResult is returned by a successful single transfer
type TransferResult struct {
	RequestID  uuid.UUID
	BlockIndex uint64 // ledger receipt
	HistoryID  uint64
}

// BatchResult is returned by a successful batch transfer
type BatchResult struct {
	RequestID uuid.UUID
	Receipts  []uint64 // one ledger receipt per recipient, in request order
	HistoryID uint64
}

// TransferService authorizes, validates and executes treasury transfers
type TransferService struct {
	Guard       *authorization.Guard
	Balance     *balance.BalanceService
	Ledger      domain.Ledger
	HistoryRepo domain.HistoryRepository
	Logger      *zap.Logger

	now          func() time.Time
	newRequestID func() uuid.UUID
}

// NewTransferService creates a new TransferService instance
func NewTransferService(
	guard *authorization.Guard,
	balanceService *balance.BalanceService,
	ledger domain.Ledger,
	historyRepo domain.HistoryRepository,
	logger *zap.Logger,
) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{
		Guard:        guard,
		Balance:      balanceService,
		Ledger:       ledger,
		HistoryRepo:  historyRepo,
		Logger:       logger,
		now:          time.Now,
		newRequestID: uuid.New,
	}
}

// PreviewTransfer validates a single transfer and returns its summary without executing it
func (s *TransferService) PreviewTransfer(req domain.SingleTransfer) (domain.TransferSummary, error) {
	return req.Summary()
}

// PreviewBatchTransfer validates a batch transfer and returns its summary without executing it
func (s *TransferService) PreviewBatchTransfer(req domain.BatchTransfer) (domain.TransferSummary, error) {
	return req.Summary()
}

// TransferToPrincipal executes a single transfer
// Logic:
//  1. Authorize the caller (nothing else happens for a non-controller)
//  2. Validate the request
//  3. Check the treasury balance covers the amount
//  4. Issue exactly one ledger transfer
//  5. On success, append one history record and return the ledger receipt
//
// A ledger failure returns the error and appends nothing.
func (s *TransferService) TransferToPrincipal(ctx context.Context, caller domain.Principal, req domain.SingleTransfer) (*TransferResult, error) {
	// 1. Authorize
	if err := s.Guard.Authorize(ctx, caller); err != nil {
		return nil, err
	}

	// Once authorized the request runs to completion, even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	// 2. Validate
	if err := req.Validate(); err != nil {
		return nil, err
	}

	requestID := s.newRequestID()
	logger := s.Logger.With(
		zap.String("request_id", requestID.String()),
		zap.String("caller", caller.String()),
		zap.String("ledger_id", req.LedgerID.String()),
	)

	// 3. Balance sufficiency
	if err := s.Balance.EnsureSufficient(ctx, req.LedgerID, domain.AmountToDecimal(req.Amount)); err != nil {
		logger.Info("transfer rejected before ledger call", zap.Uint64("amount", req.Amount), zap.Error(err))
		return nil, err
	}

	// 4. Ledger transfer
	blockIndex, err := s.transfer(ctx, requestID[:], req.LedgerID, req.Principal, req.Amount)
	if err != nil {
		logger.Warn("transfer failed", zap.String("to", req.Principal.String()), zap.Uint64("amount", req.Amount), zap.Error(err))
		return nil, err
	}

	// 5. Record
	record := domain.NewSingleHistory(requestID, caller, req, blockIndex, s.now())
	historyID, err := s.HistoryRepo.Append(ctx, record)
	if err != nil {
		logger.Error("transfer executed but history append failed",
			zap.String("to", req.Principal.String()),
			zap.Uint64("amount", req.Amount),
			zap.Uint64("block_index", blockIndex),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: transfer executed at block %d: %v", domain.ErrHistoryAppendFailed, blockIndex, err)
	}

	logger.Info("transfer executed",
		zap.String("to", req.Principal.String()),
		zap.Uint64("amount", req.Amount),
		zap.Uint64("block_index", blockIndex),
		zap.Uint64("history_id", historyID),
	)

	return &TransferResult{
		RequestID:  requestID,
		BlockIndex: blockIndex,
		HistoryID:  historyID,
	}, nil
}

// TransferToMultiple executes a batch transfer with fail-fast semantics
// Logic:
//  1. Authorize the caller
//  2. Validate the request
//  3. Check the treasury balance covers the TOTAL of all recipients
//  4. Transfer to each recipient strictly in order, one call at a time
//  5. After every recipient succeeded, append ONE history record for the whole batch
//
// The first failing recipient aborts the batch. Recipients already paid stay paid
// and the batch is NOT recorded in history; the returned *domain.BatchError lists
// their receipts so the operator can reconcile. Nothing is retried.
func (s *TransferService) TransferToMultiple(ctx context.Context, caller domain.Principal, req domain.BatchTransfer) (*BatchResult, error) {
	// 1. Authorize
	if err := s.Guard.Authorize(ctx, caller); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	// 2. Validate
	if err := req.Validate(); err != nil {
		return nil, err
	}

	requestID := s.newRequestID()
	total := req.Total()
	logger := s.Logger.With(
		zap.String("request_id", requestID.String()),
		zap.String("caller", caller.String()),
		zap.String("ledger_id", req.LedgerID.String()),
		zap.String("total", total.String()),
		zap.Int("recipients", len(req.Principals)),
	)

	// 3. Balance sufficiency against the total
	if err := s.Balance.EnsureSufficient(ctx, req.LedgerID, total); err != nil {
		logger.Info("batch transfer rejected before ledger call", zap.Error(err))
		return nil, err
	}

	// 4. Sequential, fail-fast
	receipts := make([]uint64, 0, len(req.Principals))
	for i, recipient := range req.Principals {
		blockIndex, err := s.transfer(ctx, BatchMemo(requestID, i), req.LedgerID, recipient.Principal, recipient.Amount)
		if err != nil {
			batchErr := &domain.BatchError{
				Index:     i,
				Recipient: recipient,
				Completed: receipts,
				Err:       err,
			}
			logger.Warn("batch transfer aborted, earlier recipients were paid and are not recorded",
				zap.Int("failed_index", i),
				zap.String("to", recipient.Principal.String()),
				zap.Uint64("amount", recipient.Amount),
				zap.Uint64s("completed_receipts", receipts),
				zap.Error(err),
			)
			return nil, batchErr
		}
		receipts = append(receipts, blockIndex)
	}

	// 5. Record the batch once
	record := domain.NewBatchHistory(requestID, caller, req, receipts, s.now())
	historyID, err := s.HistoryRepo.Append(ctx, record)
	if err != nil {
		logger.Error("batch transfer executed but history append failed",
			zap.Uint64s("receipts", receipts),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: batch executed at blocks %v: %v", domain.ErrHistoryAppendFailed, receipts, err)
	}

	logger.Info("batch transfer executed",
		zap.Uint64s("receipts", receipts),
		zap.Uint64("history_id", historyID),
	)

	return &BatchResult{
		RequestID: requestID,
		Receipts:  receipts,
		HistoryID: historyID,
	}, nil
}

// BatchMemo is the memo of the index-th transfer of a batch: the request id
// followed by the big-endian recipient index. Repeated identical entries in one
// batch carry distinct memos, so the ledger never reports them as duplicates.
func BatchMemo(requestID uuid.UUID, index int) []byte {
	memo := make([]byte, len(requestID), len(requestID)+4)
	copy(memo, requestID[:])
	return binary.BigEndian.AppendUint32(memo, uint32(index))
}

// transfer issues one ledger call, stamped with the creation time and memo
func (s *TransferService) transfer(ctx context.Context, memo []byte, ledgerID, to domain.Principal, amount uint64) (uint64, error) {
	args := domain.TransferArgs{
		To:            to,
		Amount:        amount,
		Memo:          memo,
		CreatedAtTime: uint64(s.now().UnixNano()),
	}

	blockIndex, err := s.Ledger.Transfer(ctx, ledgerID, args)
	if err != nil {
		return 0, fmt.Errorf("transfer of %d to %s on ledger %s: %w", amount, to, ledgerID, err)
	}

	return blockIndex, nil
}
