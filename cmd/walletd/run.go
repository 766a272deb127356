package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/internal/audit"
	"github.com/MarkoPoloResearchLab/wallet/internal/config"
	"github.com/MarkoPoloResearchLab/wallet/internal/gateway"
	"github.com/MarkoPoloResearchLab/wallet/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/wallet/internal/httpapi"
	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

type components struct {
	service     *ledger.Service
	deposits    *ledger.DepositReconciler
	withdrawals *ledger.WithdrawalWorkflow
}

func buildComponents(store ledger.Store, cfg config.Config, operationLogger ledger.OperationLogger) (components, error) {
	options := []ledger.ServiceOption{
		ledger.WithOperationLogger(operationLogger),
		ledger.WithCurrency(cfg.CurrencyCode()),
	}
	if cfg.AllowNonAtomic {
		options = append(options, ledger.WithNonAtomicFallback())
	}
	service, err := ledger.NewService(store, func() time.Time { return time.Now().UTC() }, options...)
	if err != nil {
		return components{}, fmt.Errorf("ledger service init: %w", err)
	}

	depositConfig := ledger.DepositConfig{
		WebhookSecret:       cfg.WebhookSecret,
		TestDepositsEnabled: cfg.TestDeposits,
	}
	if cfg.GatewayEnabled() {
		client, err := gateway.NewClient(cfg.GatewayKeyID, cfg.GatewayKeySecret, gateway.WithBaseURL(cfg.GatewayBaseURL))
		if err != nil {
			return components{}, fmt.Errorf("gateway init: %w", err)
		}
		depositConfig.Gateway = client
	}
	deposits, err := ledger.NewDepositReconciler(service, depositConfig)
	if err != nil {
		return components{}, fmt.Errorf("deposit reconciler init: %w", err)
	}
	withdrawals, err := ledger.NewWithdrawalWorkflow(service, ledger.WithMinimumWithdrawal(cfg.MinimumWithdrawalAmount()))
	if err != nil {
		return components{}, fmt.Errorf("withdrawal workflow init: %w", err)
	}
	return components{service: service, deposits: deposits, withdrawals: withdrawals}, nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	operationLogger := audit.Fanout(audit.NewZapLogger(logger), audit.NewMetrics(registry))
	built, err := buildComponents(store, cfg, operationLogger)
	if err != nil {
		return err
	}
	if cfg.AllowNonAtomic {
		logger.Warn("non-atomic fallback enabled; balance changes may run without transactions")
	}
	if cfg.WebhookSecret == "" {
		logger.Warn("webhook secret not configured; payment webhooks will be rejected")
	}

	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer cache.Close()
	}

	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Service:          built.service,
		Deposits:         built.deposits,
		Withdrawals:      built.withdrawals,
		SessionValidator: sessionValidator,
		Logger:           logger,
		AllowedOrigins:   cfg.AllowedOrigins,
		RequestTimeout:   cfg.RequestTimeout,
		Cache:            cache,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		Registerer:       registry,
		Gatherer:         registry,
	})
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpapi.Serve(groupCtx, cfg.HTTPListenAddr, router, logger, cfg.ShutdownTimeout)
	})
	if cfg.GRPCListenAddr != "" {
		walletServer, err := grpcserver.NewWalletServer(built.service, built.deposits, built.withdrawals)
		if err != nil {
			return err
		}
		group.Go(func() error {
			return serveGRPC(groupCtx, cfg.GRPCListenAddr, walletServer, logger)
		})
	}
	return group.Wait()
}

func serveGRPC(ctx context.Context, listenAddr string, walletServer *grpcserver.WalletServer, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	grpcServer := grpcserver.NewServer()
	grpcserver.RegisterWalletServiceServer(grpcServer, walletServer)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server starting", zap.String("listen_addr", listenAddr))
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("gRPC shutdown requested")
		grpcServer.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}
