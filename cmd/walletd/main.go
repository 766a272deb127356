package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/wallet/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagHTTPListenAddr    = "http-listen-addr"
	flagGRPCListenAddr    = "grpc-listen-addr"
	flagStore             = "store"
	flagDatabaseURL       = "database-url"
	flagAllowNonAtomic    = "allow-non-atomic"
	flagAllowedOrigins    = "allowed-origins"
	flagJWTSigningKey     = "jwt-signing-key"
	flagJWTIssuer         = "jwt-issuer"
	flagJWTCookieName     = "jwt-cookie-name"
	flagWebhookSecret     = "webhook-secret"
	flagGatewayKeyID      = "gateway-key-id"
	flagGatewayKeySecret  = "gateway-key-secret"
	flagGatewayBaseURL    = "gateway-base-url"
	flagTestDeposits      = "enable-test-deposits"
	flagCurrency          = "currency"
	flagMinimumWithdrawal = "min-withdrawal"
	flagRedisURL          = "redis-url"
	flagIdempotencyTTL    = "idempotency-ttl"
	flagRequestTimeout    = "request-timeout"
	envPrefix             = "WALLETD"
)

var boundFlags = []string{
	flagHTTPListenAddr, flagGRPCListenAddr, flagStore, flagDatabaseURL, flagAllowNonAtomic,
	flagAllowedOrigins, flagJWTSigningKey, flagJWTIssuer, flagJWTCookieName, flagWebhookSecret,
	flagGatewayKeyID, flagGatewayKeySecret, flagGatewayBaseURL, flagTestDeposits, flagCurrency,
	flagMinimumWithdrawal, flagRedisURL, flagIdempotencyTTL, flagRequestTimeout,
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "walletd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "walletd",
		Short:         "Wallet ledger HTTP and gRPC server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *cfg)
		},
	}

	cmd.Flags().String(flagHTTPListenAddr, ":8080", "HTTP listen address")
	cmd.Flags().String(flagGRPCListenAddr, "", "gRPC listen address (empty disables gRPC)")
	cmd.Flags().String(flagStore, config.StoreGorm, "ledger store: gorm, pgx, or memory")
	cmd.Flags().String(flagDatabaseURL, "sqlite:///tmp/wallet.db", "postgres:// or sqlite:// connection string")
	cmd.Flags().Bool(flagAllowNonAtomic, false, "allow step-by-step operations on stores without atomic scopes (the memory store then runs without them)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "tauth", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "app_session", "JWT cookie name")
	cmd.Flags().String(flagWebhookSecret, "", "payment gateway webhook secret")
	cmd.Flags().String(flagGatewayKeyID, "", "payment gateway key id")
	cmd.Flags().String(flagGatewayKeySecret, "", "payment gateway key secret")
	cmd.Flags().String(flagGatewayBaseURL, "", "payment gateway API base URL")
	cmd.Flags().Bool(flagTestDeposits, false, "allow gateway-free test deposits")
	cmd.Flags().String(flagCurrency, "INR", "wallet currency code")
	cmd.Flags().String(flagMinimumWithdrawal, "100", "minimum withdrawal in major units")
	cmd.Flags().String(flagRedisURL, "", "redis URL for Idempotency-Key replay (empty disables)")
	cmd.Flags().Duration(flagIdempotencyTTL, 0, "how long idempotent responses are kept")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request ledger timeout")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range boundFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.HTTPListenAddr = strings.TrimSpace(v.GetString(flagHTTPListenAddr))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.StoreKind = strings.TrimSpace(v.GetString(flagStore))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.AllowNonAtomic = v.GetBool(flagAllowNonAtomic)
	cfg.AllowedOrigins = config.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagJWTSigningKey)
	cfg.SessionIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagJWTCookieName))
	cfg.WebhookSecret = v.GetString(flagWebhookSecret)
	cfg.GatewayKeyID = strings.TrimSpace(v.GetString(flagGatewayKeyID))
	cfg.GatewayKeySecret = strings.TrimSpace(v.GetString(flagGatewayKeySecret))
	cfg.GatewayBaseURL = strings.TrimSpace(v.GetString(flagGatewayBaseURL))
	cfg.TestDeposits = v.GetBool(flagTestDeposits)
	cfg.Currency = strings.TrimSpace(v.GetString(flagCurrency))
	cfg.MinimumWithdrawal = strings.TrimSpace(v.GetString(flagMinimumWithdrawal))
	cfg.RedisURL = strings.TrimSpace(v.GetString(flagRedisURL))
	cfg.IdempotencyTTL = v.GetDuration(flagIdempotencyTTL)
	cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)

	return cfg.Validate()
}
