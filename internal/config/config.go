package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/simaogato/treasury-backend/internal/domain"
)

// History store backends. Only postgres and redis survive a restart.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

const (
	defaultGRPCAddr          = ":8080"
	defaultAPIToken          = "dev-token"
	defaultRedisAddr         = "localhost:6379"
	defaultRedisKeyPrefix    = "treasury:history"
	defaultLedgerCallTimeout = 10 * time.Second
	defaultBreakerFailures   = 5
	defaultBreakerOpen       = 30 * time.Second
)

// Config holds the process configuration read from the environment.
// The env tag names the variable each field comes from.
type Config struct {
	GRPCAddr string `env:"GRPC_ADDR" validate:"required"`
	APIToken string `env:"API_TOKEN" validate:"required"`

	CallerTokenSecret string `env:"CALLER_TOKEN_SECRET" validate:"required,min=32"`

	TreasuryPrincipal string `env:"TREASURY_PRINCIPAL" validate:"required,principal"`

	HistoryStore   string `env:"HISTORY_STORE" validate:"oneof=memory postgres redis"`
	DBConnStr      string `env:"DB_CONN_STR" validate:"required_if=HistoryStore postgres"`
	RedisAddr      string `env:"REDIS_ADDR" validate:"required_if=HistoryStore redis"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" validate:"required_if=HistoryStore redis"`

	LedgerGatewayAddr  string `env:"LEDGER_GATEWAY_ADDR" validate:"required"`
	IdentityOracleAddr string `env:"IDENTITY_ORACLE_ADDR" validate:"required"`

	LedgerCallTimeout  time.Duration `env:"LEDGER_CALL_TIMEOUT" validate:"gt=0"`
	BreakerMaxFailures uint32        `env:"BREAKER_MAX_FAILURES" validate:"gt=0"`
	BreakerOpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" validate:"gt=0"`

	AuthOracleFallback string `env:"AUTH_ORACLE_FALLBACK" validate:"oneof=error_text deny"`
	LogLevel           string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	cfg := &Config{
		GRPCAddr:           getenv("GRPC_ADDR", defaultGRPCAddr),
		APIToken:           getenv("API_TOKEN", defaultAPIToken),
		CallerTokenSecret:  os.Getenv("CALLER_TOKEN_SECRET"),
		TreasuryPrincipal:  os.Getenv("TREASURY_PRINCIPAL"),
		HistoryStore:       getenv("HISTORY_STORE", StorePostgres),
		DBConnStr:          dbConnStr(),
		RedisAddr:          getenv("REDIS_ADDR", defaultRedisAddr),
		RedisKeyPrefix:     getenv("REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
		LedgerGatewayAddr:  os.Getenv("LEDGER_GATEWAY_ADDR"),
		IdentityOracleAddr: os.Getenv("IDENTITY_ORACLE_ADDR"),
		AuthOracleFallback: getenv("AUTH_ORACLE_FALLBACK", "error_text"),
		LogLevel:           strings.ToLower(getenv("LOG_LEVEL", "info")),
	}

	var err error
	if cfg.LedgerCallTimeout, err = durationEnv("LEDGER_CALL_TIMEOUT", defaultLedgerCallTimeout); err != nil {
		return nil, err
	}
	if cfg.BreakerOpenTimeout, err = durationEnv("BREAKER_OPEN_TIMEOUT", defaultBreakerOpen); err != nil {
		return nil, err
	}
	if cfg.BreakerMaxFailures, err = uint32Env("BREAKER_MAX_FAILURES", defaultBreakerFailures); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required values and enum values.
// Errors name the offending environment variable.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		problems := make([]string, 0, len(fieldErrors))
		for _, fe := range fieldErrors {
			problems = append(problems, describe(fe))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("env")
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("principal", func(fl validator.FieldLevel) bool {
		return domain.Principal(fl.Field().String()).Validate() == nil
	})
	return v
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "principal":
		return fmt.Sprintf("%s is not a well-formed principal: %q", fe.Field(), fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// dbConnStr uses DB_CONN_STR, or builds it from individual vars (Docker friendly)
func dbConnStr() string {
	if connStr := os.Getenv("DB_CONN_STR"); connStr != "" {
		return connStr
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getenv("DB_HOST", "localhost"),
		getenv("DB_PORT", "5432"),
		getenv("DB_USER", "postgres"),
		getenv("DB_PASSWORD", "postgres"),
		getenv("DB_NAME", "treasury"),
	)
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid configuration: %s: %w", key, err)
	}
	return d, nil
}

func uint32Env(key string, fallback uint32) (uint32, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid configuration: %s: %w", key, err)
	}
	return uint32(n), nil
}
