package grpc

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/simaogato/treasury-backend/internal/domain"
	"github.com/simaogato/treasury-backend/internal/usecase/history"
	"github.com/simaogato/treasury-backend/internal/usecase/transfer"
)

// BatchAbortedReason is the ErrorInfo reason attached to a fail-fast batch abort
const BatchAbortedReason = "BATCH_ABORTED"

// Server implements the TreasuryService gRPC server
type Server struct {
	TransferService *transfer.TransferService
	HistoryService  *history.HistoryService
}

var _ TreasuryServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(
	transferService *transfer.TransferService,
	historyService *history.HistoryService,
) *Server {
	return &Server{
		TransferService: transferService,
		HistoryService:  historyService,
	}
}

// PreviewTransfer handles the PreviewTransfer RPC
func (s *Server) PreviewTransfer(ctx context.Context, req *TransferToPrincipalRequest) (*PreviewResponse, error) {
	summary, err := s.TransferService.PreviewTransfer(singleToDomain(req))
	if err != nil {
		return nil, mapError(err)
	}
	return summaryToMessage(summary), nil
}

// PreviewBatchTransfer handles the PreviewBatchTransfer RPC
func (s *Server) PreviewBatchTransfer(ctx context.Context, req *TransferToMultipleRequest) (*PreviewResponse, error) {
	summary, err := s.TransferService.PreviewBatchTransfer(batchToDomain(req))
	if err != nil {
		return nil, mapError(err)
	}
	return summaryToMessage(summary), nil
}

// TransferToPrincipal handles the TransferToPrincipal RPC
func (s *Server) TransferToPrincipal(ctx context.Context, req *TransferToPrincipalRequest) (*TransferToPrincipalResponse, error) {
	result, err := s.TransferService.TransferToPrincipal(ctx, CallerFromContext(ctx), singleToDomain(req))
	if err != nil {
		return nil, mapError(err)
	}

	return &TransferToPrincipalResponse{
		RequestID:  result.RequestID.String(),
		BlockIndex: result.BlockIndex,
		HistoryID:  result.HistoryID,
	}, nil
}

// TransferToMultiple handles the TransferToMultiple RPC
func (s *Server) TransferToMultiple(ctx context.Context, req *TransferToMultipleRequest) (*TransferToMultipleResponse, error) {
	result, err := s.TransferService.TransferToMultiple(ctx, CallerFromContext(ctx), batchToDomain(req))
	if err != nil {
		return nil, mapError(err)
	}

	return &TransferToMultipleResponse{
		RequestID: result.RequestID.String(),
		Receipts:  result.Receipts,
		HistoryID: result.HistoryID,
	}, nil
}

// CountHistory handles the CountHistory RPC
func (s *Server) CountHistory(ctx context.Context, req *CountHistoryRequest) (*CountHistoryResponse, error) {
	count, err := s.HistoryService.CountHistory(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &CountHistoryResponse{Count: count}, nil
}

// ListHistory handles the ListHistory RPC
func (s *Server) ListHistory(ctx context.Context, req *ListHistoryRequest) (*ListHistoryResponse, error) {
	records, err := s.HistoryService.ListHistoryPage(ctx, req.Offset, req.Limit)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListHistoryResponse{
		Records: make([]HistoryRecordMessage, 0, len(records)),
	}
	for _, record := range records {
		resp.Records = append(resp.Records, historyToMessage(record))
	}
	return resp, nil
}

func singleToDomain(req *TransferToPrincipalRequest) domain.SingleTransfer {
	return domain.SingleTransfer{
		Principal: domain.Principal(req.Principal),
		Amount:    req.Amount,
		LedgerID:  domain.Principal(req.LedgerID),
	}
}

func batchToDomain(req *TransferToMultipleRequest) domain.BatchTransfer {
	recipients := make([]domain.Recipient, 0, len(req.Principals))
	for _, r := range req.Principals {
		recipients = append(recipients, domain.Recipient{
			Principal: domain.Principal(r.Principal),
			Amount:    r.Amount,
		})
	}
	return domain.BatchTransfer{
		Principals: recipients,
		LedgerID:   domain.Principal(req.LedgerID),
	}
}

func singleToMessage(t *domain.SingleTransfer) *TransferToPrincipalRequest {
	return &TransferToPrincipalRequest{
		Principal: t.Principal.String(),
		Amount:    t.Amount,
		LedgerID:  t.LedgerID.String(),
	}
}

func batchToMessage(t *domain.BatchTransfer) *TransferToMultipleRequest {
	recipients := make([]RecipientMessage, 0, len(t.Principals))
	for _, r := range t.Principals {
		recipients = append(recipients, RecipientMessage{
			Principal: r.Principal.String(),
			Amount:    r.Amount,
		})
	}
	return &TransferToMultipleRequest{
		Principals: recipients,
		LedgerID:   t.LedgerID.String(),
	}
}

func summaryToMessage(summary domain.TransferSummary) *PreviewResponse {
	return &PreviewResponse{
		Summary:        summary.String(),
		Total:          summary.Total.String(),
		RecipientCount: summary.RecipientCount,
		LedgerID:       summary.LedgerID.String(),
	}
}

func historyToMessage(record *domain.TransferHistory) HistoryRecordMessage {
	msg := HistoryRecordMessage{
		ID:         record.ID,
		Kind:       string(record.Kind),
		RequestID:  record.RequestID.String(),
		Caller:     record.Caller.String(),
		Receipts:   record.Receipts,
		RecordedAt: record.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
	if record.Single != nil {
		msg.TransferToPrincipal = singleToMessage(record.Single)
	}
	if record.Batch != nil {
		msg.TransferToMultiple = batchToMessage(record.Batch)
	}
	return msg
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrValidationFailed):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrInsufficientBalance):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrLedgerCallFailed):
		code = codes.Unavailable
	case errors.Is(err, domain.ErrLedgerRejected):
		code = codes.Aborted
	default:
		code = codes.Internal
	}

	st := status.New(code, err.Error())

	// A partially paid batch carries the receipts needed for manual reconciliation
	var batchErr *domain.BatchError
	if errors.As(err, &batchErr) {
		completed := make([]string, 0, len(batchErr.Completed))
		for _, receipt := range batchErr.Completed {
			completed = append(completed, strconv.FormatUint(receipt, 10))
		}
		detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{
			Reason: BatchAbortedReason,
			Domain: TreasuryServiceName,
			Metadata: map[string]string{
				"failed_index":       strconv.Itoa(batchErr.Index),
				"failed_principal":   batchErr.Recipient.Principal.String(),
				"completed_receipts": strings.Join(completed, ","),
			},
		})
		if detailErr == nil {
			st = detailed
		}
	}

	return st.Err()
}
