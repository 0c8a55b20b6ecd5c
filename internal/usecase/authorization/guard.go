package authorization

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/simaogato/treasury-backend/internal/domain"
)

// FallbackPolicy decides what the guard does when the controller oracle fails
type FallbackPolicy string

const (
	// FallbackErrorText authorizes the caller when the oracle's error text names
	// the caller's own principal as a whole token. Favors availability during
	// oracle outages. Security relevant: this is a text match, not a proof of control.
	FallbackErrorText FallbackPolicy = "error_text"
	// FallbackDeny rejects every caller while the oracle is unreachable
	FallbackDeny FallbackPolicy = "deny"
)

// ParseFallbackPolicy converts a configuration value to a FallbackPolicy
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case FallbackErrorText:
		return FallbackErrorText, nil
	case FallbackDeny:
		return FallbackDeny, nil
	}
	return "", fmt.Errorf("unknown oracle fallback policy %q", s)
}

// Guard determines whether a caller is a member of the authorized-operator set
type Guard struct {
	Oracle   domain.ControllerOracle
	Fallback FallbackPolicy
	Logger   *zap.Logger
}

// NewGuard creates a new Guard instance
func NewGuard(oracle domain.ControllerOracle, fallback FallbackPolicy, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		Oracle:   oracle,
		Fallback: fallback,
		Logger:   logger,
	}
}

// IsAuthorized reports whether caller controls this agent.
// Logic:
//  1. Anonymous and malformed callers are never authorized
//  2. Query the oracle for the controller set and test membership
//  3. On oracle failure, apply the configured fallback policy
func (g *Guard) IsAuthorized(ctx context.Context, caller domain.Principal) bool {
	if caller.IsAnonymous() || caller.Validate() != nil {
		return false
	}

	controllers, err := g.Oracle.Controllers(ctx)
	if err == nil {
		return slices.Contains(controllers, caller)
	}

	return g.fallback(caller, err)
}

// Authorize returns ErrUnauthorized when caller is not a controller
func (g *Guard) Authorize(ctx context.Context, caller domain.Principal) error {
	if !g.IsAuthorized(ctx, caller) {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, caller)
	}
	return nil
}

func (g *Guard) fallback(caller domain.Principal, err error) bool {
	var oracleErr *domain.OracleError
	if !errors.As(err, &oracleErr) {
		oracleErr = &domain.OracleError{Message: err.Error()}
	}

	switch g.Fallback {
	case FallbackErrorText:
		matched := slices.Contains(domain.PrincipalsIn(oracleErr.Message), caller)
		g.Logger.Warn("controller oracle failed, applied error text fallback",
			zap.String("caller", caller.String()),
			zap.String("oracle_error", oracleErr.Message),
			zap.Bool("authorized", matched),
		)
		return matched
	default:
		g.Logger.Warn("controller oracle failed, denying caller",
			zap.String("caller", caller.String()),
			zap.String("oracle_error", oracleErr.Message),
		)
		return false
	}
}
