package config

import (
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
)

func TestValidateAppliesDefaults(test *testing.T) {
	test.Parallel()
	cfg := Config{SessionSigningKey: "secret"}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.HTTPListenAddr != defaultHTTPListenAddr || cfg.StoreKind != StoreGorm || cfg.DatabaseURL != defaultDatabaseURL {
		test.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.GRPCListenAddr != "" {
		test.Fatalf("expected grpc disabled by default, got %q", cfg.GRPCListenAddr)
	}
	if cfg.SessionIssuer != defaultSessionIssuer || cfg.SessionCookieName != defaultSessionCookie {
		test.Fatalf("unexpected session defaults %+v", cfg)
	}
	if cfg.RequestTimeout != defaultRequestTimeout || cfg.IdempotencyTTL != 24*time.Hour {
		test.Fatalf("unexpected timeouts %+v", cfg)
	}
	if cfg.CurrencyCode() != ledger.Currency("INR") {
		test.Fatalf("unexpected currency %s", cfg.CurrencyCode())
	}
	if cfg.MinimumWithdrawalAmount() != ledger.DefaultMinimumWithdrawal {
		test.Fatalf("unexpected minimum %d", cfg.MinimumWithdrawalAmount())
	}
	if cfg.GatewayEnabled() {
		test.Fatalf("gateway should be disabled without keys")
	}
}

func TestValidateRejectsInvalidSettings(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(*Config)
	}{
		{name: "missing signing key", configure: func(cfg *Config) { cfg.SessionSigningKey = "" }},
		{name: "unknown store", configure: func(cfg *Config) { cfg.StoreKind = "mongo" }},
		{name: "pgx with sqlite url", configure: func(cfg *Config) { cfg.StoreKind = StorePgx; cfg.DatabaseURL = "sqlite:///tmp/x.db" }},
		{name: "bad currency", configure: func(cfg *Config) { cfg.Currency = "RUPEE" }},
		{name: "bad minimum", configure: func(cfg *Config) { cfg.MinimumWithdrawal = "-5" }},
		{name: "half gateway credentials", configure: func(cfg *Config) { cfg.GatewayKeyID = "rzp_test" }},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			cfg := Config{SessionSigningKey: "secret"}
			testCase.configure(&cfg)
			if err := cfg.Validate(); err == nil {
				test.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsPgxWithPostgresURL(test *testing.T) {
	test.Parallel()
	cfg := Config{SessionSigningKey: "secret", StoreKind: "PGX", DatabaseURL: "postgres://wallet@localhost/wallet", MinimumWithdrawal: "250.50"}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.StoreKind != StorePgx {
		test.Fatalf("expected normalized store kind, got %q", cfg.StoreKind)
	}
	if cfg.MinimumWithdrawalAmount() != 25050 {
		test.Fatalf("expected 25050 minor units, got %d", cfg.MinimumWithdrawalAmount())
	}
}

func TestParseAllowedOrigins(test *testing.T) {
	test.Parallel()
	origins := ParseAllowedOrigins(" http://a.test , ,http://b.test")
	if len(origins) != 2 || origins[0] != "http://a.test" || origins[1] != "http://b.test" {
		test.Fatalf("unexpected origins %v", origins)
	}
	if len(ParseAllowedOrigins("  ")) != 0 {
		test.Fatalf("expected empty origins")
	}
}
