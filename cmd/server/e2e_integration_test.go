//go:build integration

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	grpcadapter "github.com/simaogato/treasury-backend/internal/adapter/grpc"
	"github.com/simaogato/treasury-backend/internal/adapter/grpc/jsoncodec"
	"github.com/simaogato/treasury-backend/internal/adapter/identity"
	"github.com/simaogato/treasury-backend/internal/adapter/ledger"
	"github.com/simaogato/treasury-backend/internal/config"
	"github.com/simaogato/treasury-backend/internal/domain"
)

const (
	apiToken     = "e2e-token"
	callerSecret = "e2e-caller-secret-0123456789abcdef"

	treasury   domain.Principal = "be2us-64aaa-aaaaa-qaabq-cai"
	ledgerID   domain.Principal = "ryjl3-tyaaa-aaaaa-aaaba-cai"
	operator   domain.Principal = "aaaaa-aa"
	stranger   domain.Principal = "qhbym-qaaaa-aaaaa-aaafq-cai"
	recipientA domain.Principal = "rrkah-fqaaa-aaaaa-aaaaq-cai"
	recipientB domain.Principal = "r7inp-6aaaa-aaaaa-aaabq-cai"
	frozen     domain.Principal = "rkp4c-7iaaa-aaaaa-aaaca-cai"
)

var (
	dbConnStr  string
	grpcConn   *grpc.ClientConn
	fakeLedger *ledgerGateway
)

// ledgerGateway is an in-memory ledger: a single treasury balance that
// rejects transfers to the frozen account.
type ledgerGateway struct {
	mu      sync.Mutex
	balance uint64
	blocks  uint64
}

func (l *ledgerGateway) transfer(req *ledger.TransferRequest) *ledger.TransferReply {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req.To.Owner == frozen {
		return &ledger.TransferReply{Err: &domain.TransferError{Kind: domain.TransferErrorGeneric, Code: 1, Message: "account frozen"}}
	}
	if req.Amount > l.balance {
		return &ledger.TransferReply{Err: &domain.TransferError{Kind: domain.TransferErrorInsufficientFunds, Balance: l.balance}}
	}

	l.balance -= req.Amount
	index := l.blocks
	l.blocks++
	return &ledger.TransferReply{Ok: &index}
}

func (l *ledgerGateway) balanceOf() *ledger.BalanceOfReply {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &ledger.BalanceOfReply{Balance: fmt.Sprintf("%d", l.balance)}
}

func (l *ledgerGateway) state() (blocks, balance uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocks, l.balance
}

func (l *ledgerGateway) serviceDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: "treasury.ledger.v1.LedgerGateway",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Icrc1Transfer",
				Handler: func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					req := new(ledger.TransferRequest)
					if err := dec(req); err != nil {
						return nil, err
					}
					return l.transfer(req), nil
				},
			},
			{
				MethodName: "Icrc1BalanceOf",
				Handler: func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
					req := new(ledger.BalanceOfRequest)
					if err := dec(req); err != nil {
						return nil, err
					}
					return l.balanceOf(), nil
				},
			},
		},
	}
}

func oracleDesc() *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: "treasury.identity.v1.ControllerOracle",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "ListControllers",
			Handler: func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				req := new(identity.ListControllersRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				return &identity.ListControllersReply{Controllers: []domain.Principal{operator}}, nil
			},
		}},
	}
}

// serveDownstream starts the fake ledger gateway and identity oracle on one listener
func serveDownstream() (string, func(), error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	srv := grpc.NewServer()
	srv.RegisterService(fakeLedger.serviceDesc(), struct{}{})
	srv.RegisterService(oracleDesc(), struct{}{})
	go func() { _ = srv.Serve(lis) }()
	return lis.Addr().String(), srv.Stop, nil
}

func freeAddr() (string, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer lis.Close()
	return lis.Addr().String(), nil
}

// TestMain starts Postgres (unless TEST_DB_CONN_STR is set), the fake downstream
// services and the treasury server, then connects a gRPC client to it
func TestMain(m *testing.M) {
	ctx := context.Background()

	dbConnStr = os.Getenv("TEST_DB_CONN_STR")
	var container *tcpostgres.PostgresContainer
	if dbConnStr == "" {
		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16",
			tcpostgres.WithDatabase("treasury"),
			tcpostgres.WithUsername("treasury"),
			tcpostgres.WithPassword("treasury"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			panic(fmt.Sprintf("Failed to start postgres container: %v", err))
		}
		dbConnStr, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			panic(fmt.Sprintf("Failed to get connection string: %v", err))
		}
	}

	fakeLedger = &ledgerGateway{balance: 1000, blocks: 100}
	downstreamAddr, stopDownstream, err := serveDownstream()
	if err != nil {
		panic(fmt.Sprintf("Failed to start downstream services: %v", err))
	}

	grpcAddr, err := freeAddr()
	if err != nil {
		panic(fmt.Sprintf("Failed to pick server address: %v", err))
	}

	cfg := &config.Config{
		GRPCAddr:           grpcAddr,
		APIToken:           apiToken,
		CallerTokenSecret:  callerSecret,
		TreasuryPrincipal:  treasury.String(),
		HistoryStore:       config.StorePostgres,
		DBConnStr:          dbConnStr,
		LedgerGatewayAddr:  downstreamAddr,
		IdentityOracleAddr: downstreamAddr,
		LedgerCallTimeout:  5 * time.Second,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 30 * time.Second,
		AuthOracleFallback: "deny",
		LogLevel:           "info",
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid test configuration: %v", err))
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	serverDone := make(chan error, 1)
	go func() { serverDone <- run(serverCtx, cfg, zap.NewNop()) }()

	grpcConn, err = grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to gRPC server: %v", err))
	}
	if err := waitServing(ctx); err != nil {
		panic(fmt.Sprintf("Server did not become healthy: %v", err))
	}

	code := m.Run()

	_ = grpcConn.Close()
	stopServer()
	if err := <-serverDone; err != nil {
		fmt.Fprintf(os.Stderr, "server exited with error: %v\n", err)
		code = 1
	}
	stopDownstream()
	if container != nil {
		_ = container.Terminate(ctx)
	}
	os.Exit(code)
}

func waitServing(ctx context.Context) error {
	client := healthpb.NewHealthClient(grpcConn)
	deadline := time.Now().Add(30 * time.Second)
	for {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: grpcadapter.TreasuryServiceName})
		if err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("health check: %v", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func call(caller domain.Principal, method string, req, resp any) error {
	token, err := grpcadapter.SignCallerToken([]byte(callerSecret), caller, time.Minute)
	if err != nil {
		return err
	}
	ctx := metadata.AppendToOutgoingContext(context.Background(),
		"authorization", apiToken,
		grpcadapter.CallerMetadataKey, token,
	)
	return grpcConn.Invoke(ctx, "/"+grpcadapter.TreasuryServiceName+"/"+method, req, resp, jsoncodec.CallOption())
}

func countHistory(t *testing.T) uint64 {
	t.Helper()
	var resp grpcadapter.CountHistoryResponse
	require.NoError(t, call(stranger, "CountHistory", &grpcadapter.CountHistoryRequest{}, &resp))
	return resp.Count
}

// The scenarios share the server and the ledger, so they run in order
func TestTreasuryEndToEnd(t *testing.T) {
	start := countHistory(t)

	t.Run("Controller transfers to one principal", func(t *testing.T) {
		var resp grpcadapter.TransferToPrincipalResponse
		err := call(operator, "TransferToPrincipal", &grpcadapter.TransferToPrincipalRequest{
			Principal: recipientA.String(),
			Amount:    100,
			LedgerID:  ledgerID.String(),
		}, &resp)

		require.NoError(t, err)
		assert.Equal(t, uint64(100), resp.BlockIndex)
		assert.Equal(t, start, resp.HistoryID)
		assert.Equal(t, start+1, countHistory(t))
	})

	t.Run("Controller transfers to many principals", func(t *testing.T) {
		var resp grpcadapter.TransferToMultipleResponse
		err := call(operator, "TransferToMultiple", &grpcadapter.TransferToMultipleRequest{
			Principals: []grpcadapter.RecipientMessage{
				{Principal: recipientA.String(), Amount: 10},
				{Principal: recipientB.String(), Amount: 20},
			},
			LedgerID: ledgerID.String(),
		}, &resp)

		require.NoError(t, err)
		assert.Equal(t, []uint64{101, 102}, resp.Receipts)
		assert.Equal(t, start+1, resp.HistoryID)
		assert.Equal(t, start+2, countHistory(t))
	})

	t.Run("Non-controller is denied and nothing moves", func(t *testing.T) {
		var resp grpcadapter.TransferToPrincipalResponse
		err := call(stranger, "TransferToPrincipal", &grpcadapter.TransferToPrincipalRequest{
			Principal: recipientA.String(),
			Amount:    1,
			LedgerID:  ledgerID.String(),
		}, &resp)

		assert.Equal(t, codes.PermissionDenied, status.Code(err))
		assert.Equal(t, start+2, countHistory(t))
	})

	t.Run("Amount above balance is rejected before the ledger", func(t *testing.T) {
		var resp grpcadapter.TransferToPrincipalResponse
		err := call(operator, "TransferToPrincipal", &grpcadapter.TransferToPrincipalRequest{
			Principal: recipientA.String(),
			Amount:    1_000_000,
			LedgerID:  ledgerID.String(),
		}, &resp)

		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
		assert.Equal(t, start+2, countHistory(t))
	})

	t.Run("Batch aborts at the first rejected recipient", func(t *testing.T) {
		var resp grpcadapter.TransferToMultipleResponse
		err := call(operator, "TransferToMultiple", &grpcadapter.TransferToMultipleRequest{
			Principals: []grpcadapter.RecipientMessage{
				{Principal: recipientA.String(), Amount: 5},
				{Principal: frozen.String(), Amount: 5},
				{Principal: recipientB.String(), Amount: 5},
			},
			LedgerID: ledgerID.String(),
		}, &resp)

		require.Error(t, err)
		assert.Equal(t, codes.Aborted, status.Code(err))
		assert.Contains(t, status.Convert(err).Message(), "account frozen")
		assert.Equal(t, start+2, countHistory(t))

		// The first recipient was paid (block 103); the third was never attempted
		blocks, balance := fakeLedger.state()
		assert.Equal(t, uint64(104), blocks)
		assert.Equal(t, uint64(1000-100-30-5), balance)
	})

	t.Run("History lists records in order", func(t *testing.T) {
		var resp grpcadapter.ListHistoryResponse
		require.NoError(t, call(stranger, "ListHistory", &grpcadapter.ListHistoryRequest{Offset: int(start)}, &resp))

		require.Len(t, resp.Records, 2)
		assert.Equal(t, start, resp.Records[0].ID)
		assert.Equal(t, string(domain.HistoryKindTransferToPrincipal), resp.Records[0].Kind)
		assert.Equal(t, []uint64{100}, resp.Records[0].Receipts)
		assert.Equal(t, start+1, resp.Records[1].ID)
		assert.Equal(t, string(domain.HistoryKindTransferToMultiple), resp.Records[1].Kind)
		require.NotNil(t, resp.Records[1].TransferToMultiple)
		assert.Len(t, resp.Records[1].TransferToMultiple.Principals, 2)
		assert.Equal(t, operator.String(), resp.Records[1].Caller)
	})
}
