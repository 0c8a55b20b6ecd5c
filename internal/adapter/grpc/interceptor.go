package grpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/simaogato/treasury-backend/internal/domain"
)

// CallerMetadataKey is the metadata key carrying the caller's signed identity token
const CallerMetadataKey = "x-caller-token"

var callerSigningMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

type callerKey struct{}

// AuthInterceptor returns a gRPC unary server interceptor that validates
// the authorization token from request metadata.
// If the token is missing or invalid, it returns status.Unauthenticated.
// If valid, it calls the handler with the original context.
func AuthInterceptor(validToken string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get("authorization")
		if len(authHeaders) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		if authHeaders[0] != validToken {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(ctx, req)
	}
}

// CallerInterceptor returns a gRPC unary server interceptor that resolves the
// immediate caller's principal from a signed token in request metadata and
// stores it in the context.
// A missing token resolves to the anonymous principal. A token that is
// unsigned, forged, expired or names a malformed subject is rejected with
// status.Unauthenticated.
func CallerInterceptor(secret []byte) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		caller := domain.AnonymousPrincipal

		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(CallerMetadataKey); len(values) > 0 && values[0] != "" {
				verified, err := VerifyCallerToken(secret, values[0])
				if err != nil {
					return nil, status.Errorf(codes.Unauthenticated, "invalid caller token: %v", err)
				}
				caller = verified
			}
		}

		return handler(WithCaller(ctx, caller), req)
	}
}

// SignCallerToken issues an HS256 token naming caller as its subject, valid for ttl
func SignCallerToken(secret []byte, caller domain.Principal, ttl time.Duration) (string, error) {
	if err := caller.Validate(); err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyCallerToken checks a caller token's signature and expiry and returns its subject
func VerifyCallerToken(secret []byte, tokenString string) (domain.Principal, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods(callerSigningMethods), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	caller := domain.Principal(claims.Subject)
	if err := caller.Validate(); err != nil {
		return "", fmt.Errorf("invalid subject: %w", err)
	}
	return caller, nil
}

// WithCaller returns a context carrying the caller's principal
func WithCaller(ctx context.Context, caller domain.Principal) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored by CallerInterceptor, or the anonymous principal
func CallerFromContext(ctx context.Context) domain.Principal {
	if caller, ok := ctx.Value(callerKey{}).(domain.Principal); ok {
		return caller
	}
	return domain.AnonymousPrincipal
}

// ForService applies interceptor only to methods of the named service.
// Other services on the same server (health checks) pass straight through.
func ForService(service string, interceptor grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	prefix := "/" + service + "/"
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
		return interceptor(ctx, req, info, handler)
	}
}
