// Package httpapi exposes the wallet ledger over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/internal/requestid"
	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey       = "auth_claims"
	signatureHeader        = "X-Razorpay-Signature"
	adminRole              = "admin"
	defaultRequestTimeout  = 5 * time.Second
	maxWebhookBodyBytes    = 1 << 20
	healthPath             = "/healthz"
	metricsPath            = "/metrics"
	webhookPath            = "/webhooks/payments"
	ownerIDParam           = "ownerID"
	withdrawalIDParam      = "withdrawalID"
	defaultShutdownTimeout = 5 * time.Second
)

// Dependencies groups everything the router needs.
type Dependencies struct {
	Service          *ledger.Service
	Deposits         *ledger.DepositReconciler
	Withdrawals      *ledger.WithdrawalWorkflow
	SessionValidator *sessionvalidator.Validator
	Logger           *zap.Logger
	AllowedOrigins   []string
	RequestTimeout   time.Duration
	// Cache enables Idempotency-Key replay when set.
	Cache          *redis.Client
	IdempotencyTTL time.Duration
	Registerer     prometheus.Registerer
	Gatherer       prometheus.Gatherer
}

func (deps Dependencies) validate() error {
	switch {
	case deps.Service == nil:
		return errors.New("httpapi: service is required")
	case deps.Deposits == nil:
		return errors.New("httpapi: deposit reconciler is required")
	case deps.Withdrawals == nil:
		return errors.New("httpapi: withdrawal workflow is required")
	case deps.SessionValidator == nil:
		return errors.New("httpapi: session validator is required")
	}
	return nil
}

type httpHandler struct {
	service     *ledger.Service
	deposits    *ledger.DepositReconciler
	withdrawals *ledger.WithdrawalWorkflow
	logger      *zap.Logger
	timeout     time.Duration
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		if asGatherer, ok := registerer.(prometheus.Gatherer); ok {
			gatherer = asGatherer
		} else {
			gatherer = prometheus.DefaultGatherer
		}
	}
	handler := &httpHandler{
		service:     deps.Service,
		deposits:    deps.Deposits,
		withdrawals: deps.Withdrawals,
		logger:      logger,
		timeout:     timeout,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger.Named("http")))
	router.Use(newRequestMetrics(registerer).middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", idempotencyKeyHeader, requestid.Header},
		ExposeHeaders:    []string{requestid.Header, idempotencyReplayHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET(healthPath, func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.POST(webhookPath, handler.handlePaymentWebhook)

	api := router.Group("/api")
	api.Use(deps.SessionValidator.GinMiddleware(claimsContextKey))
	if deps.Cache != nil {
		api.Use(Idempotency(deps.Cache, deps.IdempotencyTTL, logger))
	}

	api.GET("/session", handler.handleSession)
	api.POST("/bootstrap", handler.handleBootstrap)
	api.GET("/wallet", handler.handleWallet)
	api.GET("/wallet/transactions", handler.handleTransactions)
	api.POST("/deposits/test", handler.handleTestDeposit)
	api.POST("/deposits/orders", handler.handleCreateOrder)
	api.POST("/withdrawals", handler.handleCreateWithdrawal)
	api.GET("/withdrawals", handler.handleListWithdrawals)

	admin := api.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.GET("/accounts", handler.handleAdminAccounts)
	admin.GET("/accounts/:"+ownerIDParam, handler.handleAdminAccount)
	admin.POST("/accounts/:"+ownerIDParam+"/freeze", handler.handleAdminFreeze(true))
	admin.POST("/accounts/:"+ownerIDParam+"/unfreeze", handler.handleAdminFreeze(false))
	admin.GET("/accounts/:"+ownerIDParam+"/wallet", handler.handleAdminWallet)
	admin.GET("/accounts/:"+ownerIDParam+"/transactions", handler.handleAdminTransactions)
	admin.POST("/accounts/:"+ownerIDParam+"/adjustments", handler.handleAdminAdjustment)
	admin.GET("/withdrawals", handler.handleAdminWithdrawals)
	admin.POST("/withdrawals/:"+withdrawalIDParam+"/approve", handler.handleAdminApprove)
	admin.POST("/withdrawals/:"+withdrawalIDParam+"/reject", handler.handleAdminReject)

	return router, nil
}

// Serve runs handler on listenAddr until ctx is cancelled.
func Serve(ctx context.Context, listenAddr string, handler http.Handler, logger *zap.Logger, shutdownTimeout time.Duration) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", listenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	}
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.timeout)
}
