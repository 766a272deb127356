// Package audit delivers ledger operation logs to zap and Prometheus.
package audit

import (
	"context"

	"github.com/MarkoPoloResearchLab/wallet/internal/requestid"
	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	metricsNamespace = "wallet"
	metricsSubsystem = "ledger"
	statusOK         = "ok"
)

// ZapLogger writes one structured line per ledger operation.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps logger; a nil logger discards entries.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("audit")}
}

// LogOperation implements ledger.OperationLogger.
func (auditLogger *ZapLogger) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if id := requestid.FromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if !entry.OwnerID.IsZero() {
		fields = append(fields, zap.String("owner_id", entry.OwnerID.String()))
	}
	if !entry.ActorID.IsZero() {
		fields = append(fields, zap.String("actor_id", entry.ActorID.String()))
	}
	if entry.TransactionType != "" {
		fields = append(fields, zap.String("type", string(entry.TransactionType)))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount.Int64()))
	}
	if entry.Error == nil && entry.TransactionType != "" {
		fields = append(fields, zap.Int64("balance_after", entry.BalanceAfter.Int64()))
	}
	if !entry.ReferenceID.IsZero() {
		fields = append(fields, zap.String("reference_id", entry.ReferenceID.String()))
	}
	if entry.WithdrawalID.String() != "" {
		fields = append(fields, zap.String("withdrawal_id", entry.WithdrawalID.String()))
	}
	if entry.OrderID.String() != "" {
		fields = append(fields, zap.String("order_id", entry.OrderID.String()))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		fields = append(fields, zap.String("kind", ledger.KindOf(entry.Error).String()), zap.Error(entry.Error))
	}
	auditLogger.logger.Log(levelFor(entry), "ledger operation", fields...)
}

func levelFor(entry ledger.OperationLog) zapcore.Level {
	if entry.Error == nil {
		return zapcore.InfoLevel
	}
	if ledger.KindOf(entry.Error) == ledger.KindInternal {
		return zapcore.ErrorLevel
	}
	return zapcore.WarnLevel
}

// Metrics counts ledger operations by outcome.
type Metrics struct {
	operations *prometheus.CounterVec
	volume     *prometheus.CounterVec
}

// NewMetrics registers the ledger counters with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "operations_total",
			Help:      "Ledger operations by operation, status, and error kind.",
		}, []string{"operation", "status", "kind"}),
		volume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "volume_minor_units_total",
			Help:      "Absolute minor units moved by successful operations, by transaction type.",
		}, []string{"type"}),
	}
}

// LogOperation implements ledger.OperationLogger.
func (metrics *Metrics) LogOperation(_ context.Context, entry ledger.OperationLog) {
	metrics.operations.WithLabelValues(entry.Operation, entry.Status, ledger.KindOf(entry.Error).String()).Inc()
	if entry.Status != statusOK || entry.TransactionType == "" || entry.Amount == 0 {
		return
	}
	amount := entry.Amount.Int64()
	if amount < 0 {
		amount = -amount
	}
	metrics.volume.WithLabelValues(string(entry.TransactionType)).Add(float64(amount))
}

// Fanout delivers each entry to every non-nil logger in order.
func Fanout(loggers ...ledger.OperationLogger) ledger.OperationLogger {
	targets := make([]ledger.OperationLogger, 0, len(loggers))
	for _, logger := range loggers {
		if logger != nil {
			targets = append(targets, logger)
		}
	}
	return fanout(targets)
}

type fanout []ledger.OperationLogger

func (targets fanout) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	for _, target := range targets {
		target.LogOperation(ctx, entry)
	}
}
