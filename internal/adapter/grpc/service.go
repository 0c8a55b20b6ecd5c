package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// TreasuryServiceName is the fully-qualified gRPC service name
const TreasuryServiceName = "treasury.v1.TreasuryService"

// TreasuryServiceServer is the server API for the TreasuryService
type TreasuryServiceServer interface {
	PreviewTransfer(context.Context, *TransferToPrincipalRequest) (*PreviewResponse, error)
	PreviewBatchTransfer(context.Context, *TransferToMultipleRequest) (*PreviewResponse, error)
	TransferToPrincipal(context.Context, *TransferToPrincipalRequest) (*TransferToPrincipalResponse, error)
	TransferToMultiple(context.Context, *TransferToMultipleRequest) (*TransferToMultipleResponse, error)
	CountHistory(context.Context, *CountHistoryRequest) (*CountHistoryResponse, error)
	ListHistory(context.Context, *ListHistoryRequest) (*ListHistoryResponse, error)
}

// RegisterTreasuryServiceServer registers srv on s
func RegisterTreasuryServiceServer(s grpc.ServiceRegistrar, srv TreasuryServiceServer) {
	s.RegisterService(&TreasuryServiceDesc, srv)
}

// unaryHandler adapts a typed method into a grpc.MethodHandler, running interceptors
func unaryHandler[Req any, Resp any](method string, call func(TreasuryServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TreasuryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + TreasuryServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TreasuryServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TreasuryServiceDesc is the grpc.ServiceDesc for the TreasuryService
var TreasuryServiceDesc = grpc.ServiceDesc{
	ServiceName: TreasuryServiceName,
	HandlerType: (*TreasuryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PreviewTransfer",
			Handler:    unaryHandler("PreviewTransfer", TreasuryServiceServer.PreviewTransfer),
		},
		{
			MethodName: "PreviewBatchTransfer",
			Handler:    unaryHandler("PreviewBatchTransfer", TreasuryServiceServer.PreviewBatchTransfer),
		},
		{
			MethodName: "TransferToPrincipal",
			Handler:    unaryHandler("TransferToPrincipal", TreasuryServiceServer.TransferToPrincipal),
		},
		{
			MethodName: "TransferToMultiple",
			Handler:    unaryHandler("TransferToMultiple", TreasuryServiceServer.TransferToMultiple),
		},
		{
			MethodName: "CountHistory",
			Handler:    unaryHandler("CountHistory", TreasuryServiceServer.CountHistory),
		},
		{
			MethodName: "ListHistory",
			Handler:    unaryHandler("ListHistory", TreasuryServiceServer.ListHistory),
		},
	},
	Streams: []grpc.StreamDesc{},
}
