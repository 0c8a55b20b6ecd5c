package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/simaogato/treasury-backend/internal/adapter/grpc/jsoncodec"
	"github.com/simaogato/treasury-backend/internal/domain"
)

// Full method names served by the ledger gateway
const (
	TransferMethod  = "/treasury.ledger.v1.LedgerGateway/Icrc1Transfer"
	BalanceOfMethod = "/treasury.ledger.v1.LedgerGateway/Icrc1BalanceOf"
)

// Account is an ICRC-1 account without sub-account
type Account struct {
	Owner domain.Principal `json:"owner"`
}

// TransferRequest is the gateway request for one ICRC-1 transfer
type TransferRequest struct {
	LedgerID      domain.Principal `json:"ledger_id"`
	To            Account          `json:"to"`
	Amount        uint64           `json:"amount"`
	Memo          []byte           `json:"memo,omitempty"`
	CreatedAtTime uint64           `json:"created_at_time"`
}

// TransferReply carries either the block index or the ledger's transfer error
type TransferReply struct {
	Ok  *uint64               `json:"ok,omitempty"`
	Err *domain.TransferError `json:"err,omitempty"`
}

// BalanceOfRequest is the gateway request for an ICRC-1 balance query
type BalanceOfRequest struct {
	LedgerID domain.Principal `json:"ledger_id"`
	Account  Account          `json:"account"`
}

// BalanceOfReply carries the balance as a decimal string (ledger balances are unbounded naturals)
type BalanceOfReply struct {
	Balance string `json:"balance"`
}

// Options configures the ledger client
type Options struct {
	CallTimeout      time.Duration // per ledger call
	MaxFailures      uint32        // consecutive transport failures before the breaker opens
	BreakerOpenDelay time.Duration // how long an open breaker rejects calls
	MaxBreakers      int           // distinct ledgers tracked before closed breakers are evicted
	Logger           *zap.Logger
}

// Client implements domain.Ledger against the ledger gateway.
// Each ledger gets its own circuit breaker; only transport failures count toward tripping it.
// Calls are never retried.
type Client struct {
	conn    grpc.ClientConnInterface
	opts    Options
	logger  *zap.Logger
	mu      sync.Mutex
	breaker map[domain.Principal]*gobreaker.CircuitBreaker
}

var _ domain.Ledger = (*Client)(nil)

// NewClient creates a ledger client over an established connection
func NewClient(conn grpc.ClientConnInterface, opts Options) *Client {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = 5
	}
	if opts.BreakerOpenDelay <= 0 {
		opts.BreakerOpenDelay = 30 * time.Second
	}
	if opts.MaxBreakers <= 0 {
		opts.MaxBreakers = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		conn:    conn,
		opts:    opts,
		logger:  logger,
		breaker: make(map[domain.Principal]*gobreaker.CircuitBreaker),
	}
}

// Transfer issues one ICRC-1 transfer and returns the ledger block index
func (c *Client) Transfer(ctx context.Context, ledgerID domain.Principal, args domain.TransferArgs) (uint64, error) {
	req := &TransferRequest{
		LedgerID:      ledgerID,
		To:            Account{Owner: args.To},
		Amount:        args.Amount,
		Memo:          args.Memo,
		CreatedAtTime: args.CreatedAtTime,
	}

	var reply TransferReply
	if err := c.invoke(ctx, ledgerID, TransferMethod, req, &reply); err != nil {
		return 0, err
	}

	if reply.Err != nil {
		return 0, reply.Err
	}
	if reply.Ok == nil {
		return 0, fmt.Errorf("%w: ledger %s returned neither a block index nor an error", domain.ErrLedgerCallFailed, ledgerID)
	}

	return *reply.Ok, nil
}

// BalanceOf queries the balance of account on the named ledger
func (c *Client) BalanceOf(ctx context.Context, ledgerID domain.Principal, account domain.Principal) (decimal.Decimal, error) {
	req := &BalanceOfRequest{
		LedgerID: ledgerID,
		Account:  Account{Owner: account},
	}

	var reply BalanceOfReply
	if err := c.invoke(ctx, ledgerID, BalanceOfMethod, req, &reply); err != nil {
		return decimal.Zero, err
	}

	balance, err := decimal.NewFromString(reply.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: ledger %s returned malformed balance %q: %v", domain.ErrLedgerCallFailed, ledgerID, reply.Balance, err)
	}

	return balance, nil
}

// invoke runs one gateway call through the ledger's circuit breaker
func (c *Client) invoke(ctx context.Context, ledgerID domain.Principal, method string, req, reply any) error {
	_, err := c.breakerFor(ledgerID).Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
		return nil, c.conn.Invoke(callCtx, method, req, reply, jsoncodec.CallOption())
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: ledger %s circuit open: %v", domain.ErrLedgerCallFailed, ledgerID, err)
	}
	return fmt.Errorf("%w: ledger %s: %v", domain.ErrLedgerCallFailed, ledgerID, err)
}

func (c *Client) breakerFor(ledgerID domain.Principal) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breaker[ledgerID]; ok {
		return cb
	}
	if len(c.breaker) >= c.opts.MaxBreakers {
		c.evictLocked()
	}

	maxFailures := c.opts.MaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ledger:" + ledgerID.String(),
		Timeout: c.opts.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return !isTransportFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("ledger circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	c.breaker[ledgerID] = cb
	return cb
}

// evictLocked drops one closed breaker, or any breaker when none is closed.
// The caller holds c.mu.
func (c *Client) evictLocked() {
	var victim domain.Principal
	for id, cb := range c.breaker {
		victim = id
		if cb.State() == gobreaker.StateClosed {
			break
		}
	}
	delete(c.breaker, victim)
}

// isTransportFailure reports whether err means the ledger could not be reached.
// Status codes the gateway returns for a request it understood and refused
// (unknown ledger, bad argument) do not count against the ledger's health.
func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	}
	return false
}
