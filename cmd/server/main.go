package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/simaogato/treasury-backend/internal/adapter/grpc"
	"github.com/simaogato/treasury-backend/internal/adapter/identity"
	"github.com/simaogato/treasury-backend/internal/adapter/ledger"
	"github.com/simaogato/treasury-backend/internal/adapter/repository/memory"
	"github.com/simaogato/treasury-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/treasury-backend/internal/adapter/repository/redis"
	"github.com/simaogato/treasury-backend/internal/config"
	"github.com/simaogato/treasury-backend/internal/domain"
	"github.com/simaogato/treasury-backend/internal/logging"
	"github.com/simaogato/treasury-backend/internal/usecase/authorization"
	"github.com/simaogato/treasury-backend/internal/usecase/balance"
	"github.com/simaogato/treasury-backend/internal/usecase/history"
	"github.com/simaogato/treasury-backend/internal/usecase/transfer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

// run wires the server and blocks until ctx is done, then stops gracefully
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// 1. Open the history store
	historyRepo, closeStore, err := openHistoryStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("history store opened", zap.String("store", cfg.HistoryStore))

	// 2. Dial the ledger gateway and the identity oracle
	ledgerConn, err := grpclib.NewClient(cfg.LedgerGatewayAddr, grpclib.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create ledger gateway client: %w", err)
	}
	defer ledgerConn.Close()

	oracleConn, err := grpclib.NewClient(cfg.IdentityOracleAddr, grpclib.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create identity oracle client: %w", err)
	}
	defer oracleConn.Close()

	treasury := domain.Principal(cfg.TreasuryPrincipal)
	ledgerClient := ledger.NewClient(ledgerConn, ledger.Options{
		CallTimeout:      cfg.LedgerCallTimeout,
		MaxFailures:      cfg.BreakerMaxFailures,
		BreakerOpenDelay: cfg.BreakerOpenTimeout,
		Logger:           logger,
	})
	oracleClient := identity.NewClient(oracleConn, treasury, cfg.LedgerCallTimeout)

	// 3. Initialize Services (Use Cases)
	fallback, err := authorization.ParseFallbackPolicy(cfg.AuthOracleFallback)
	if err != nil {
		return err
	}
	guard := authorization.NewGuard(oracleClient, fallback, logger)
	balanceService := balance.NewBalanceService(ledgerClient, treasury)
	transferService := transfer.NewTransferService(guard, balanceService, ledgerClient, historyRepo, logger)
	historyService := history.NewHistoryService(historyRepo)

	// 4. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.ForService(grpcadapter.TreasuryServiceName, grpcadapter.AuthInterceptor(cfg.APIToken)),
			grpcadapter.ForService(grpcadapter.TreasuryServiceName, grpcadapter.CallerInterceptor([]byte(cfg.CallerTokenSecret))),
		),
	)
	grpcadapter.RegisterTreasuryServiceServer(grpcServer, grpcadapter.NewServer(transferService, historyService))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcadapter.TreasuryServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr), zap.String("treasury", treasury.String()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpclib.ErrServerStopped) {
			return fmt.Errorf("failed to serve gRPC server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	return g.Wait()
}

// openHistoryStore opens the configured history backend and returns its closer
func openHistoryStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (domain.HistoryRepository, func(), error) {
	switch cfg.HistoryStore {
	case config.StorePostgres:
		db, err := postgres.NewDB(cfg.DBConnStr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.NewHistoryRepository(db), func() { _ = db.Close() }, nil

	case config.StoreRedis:
		client, err := redis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewHistoryRepository(client, cfg.RedisKeyPrefix), func() { _ = client.Close() }, nil

	case config.StoreMemory:
		logger.Warn("history store is in process memory, the audit trail is lost on restart; use only for development")
		return memory.NewHistoryRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown history store %q", cfg.HistoryStore)
	}
}
