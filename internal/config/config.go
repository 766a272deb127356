package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
)

const (
	StoreMemory = "memory"
	StoreGorm   = "gorm"
	StorePgx    = "pgx"

	defaultHTTPListenAddr  = ":8080"
	defaultGRPCListenAddr  = ":7000"
	defaultDatabaseURL     = "sqlite:///tmp/wallet.db"
	defaultAllowedOrigin   = "http://localhost:8000"
	defaultSessionIssuer   = "tauth"
	defaultSessionCookie   = "app_session"
	defaultRequestTimeout  = 5 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultCurrencyCode    = "INR"
	defaultMinimumMajor    = "100"
	defaultShutdownTimeout = 5 * time.Second
)

// Config aggregates runtime settings for walletd.
type Config struct {
	HTTPListenAddr    string
	GRPCListenAddr    string
	StoreKind         string
	DatabaseURL       string
	AllowNonAtomic    bool
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	WebhookSecret     string
	GatewayKeyID      string
	GatewayKeySecret  string
	GatewayBaseURL    string
	TestDeposits      bool
	Currency          string
	MinimumWithdrawal string
	RedisURL          string
	IdempotencyTTL    time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

// Validate applies defaults and rejects unusable settings.
func (cfg *Config) Validate() error {
	cfg.HTTPListenAddr = defaultIfEmpty(cfg.HTTPListenAddr, defaultHTTPListenAddr)
	cfg.GRPCListenAddr = strings.TrimSpace(cfg.GRPCListenAddr)
	cfg.StoreKind = strings.ToLower(defaultIfEmpty(cfg.StoreKind, StoreGorm))
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	cfg.Currency = defaultIfEmpty(cfg.Currency, defaultCurrencyCode)
	cfg.MinimumWithdrawal = defaultIfEmpty(cfg.MinimumWithdrawal, defaultMinimumMajor)
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	switch cfg.StoreKind {
	case StoreMemory, StoreGorm:
	case StorePgx:
		if !strings.HasPrefix(cfg.DatabaseURL, "postgres://") && !strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
			return fmt.Errorf("pgx store requires a postgres database url")
		}
	default:
		return fmt.Errorf("unsupported store %q", cfg.StoreKind)
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	if _, err := ledger.NewCurrency(cfg.Currency); err != nil {
		return err
	}
	if _, err := ledger.ParseMajorAmount(cfg.MinimumWithdrawal); err != nil {
		return fmt.Errorf("minimum withdrawal: %w", err)
	}
	if (cfg.GatewayKeyID == "") != (cfg.GatewayKeySecret == "") {
		return fmt.Errorf("gateway key id and secret must be set together")
	}
	return nil
}

// CurrencyCode returns the validated settlement currency.
func (cfg Config) CurrencyCode() ledger.Currency {
	currency, err := ledger.NewCurrency(cfg.Currency)
	if err != nil {
		return ledger.DefaultCurrency
	}
	return currency
}

// MinimumWithdrawalAmount returns the configured minimum in minor units.
func (cfg Config) MinimumWithdrawalAmount() ledger.PositiveAmountCents {
	amount, err := ledger.ParseMajorAmount(cfg.MinimumWithdrawal)
	if err != nil {
		return ledger.DefaultMinimumWithdrawal
	}
	return amount
}

// GatewayEnabled reports whether deposit orders can be opened.
func (cfg Config) GatewayEnabled() bool {
	return cfg.GatewayKeyID != "" && cfg.GatewayKeySecret != ""
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
