package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/wallet/internal/requestid"
	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerWritesStructuredFields(test *testing.T) {
	test.Parallel()
	core, observed := observer.New(zapcore.DebugLevel)
	auditLogger := NewZapLogger(zap.New(core))
	ownerID, _ := ledger.NewOwnerID("user-1")

	auditLogger.LogOperation(context.Background(), ledger.OperationLog{
		Operation:       "apply_balance_change",
		OwnerID:         ownerID,
		TransactionType: ledger.TransactionTypeDeposit,
		Amount:          10000,
		BalanceAfter:    10000,
		ReferenceID:     ledger.NewReferenceID("pay_1"),
		Status:          "ok",
	})

	entries := observed.All()
	if len(entries) != 1 {
		test.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel || entry.LoggerName != "audit" {
		test.Fatalf("unexpected entry %+v", entry.Entry)
	}
	fields := entry.ContextMap()
	if fields["owner_id"] != "user-1" || fields["reference_id"] != "pay_1" || fields["balance_after"] != int64(10000) {
		test.Fatalf("unexpected fields %+v", fields)
	}
}

func TestZapLoggerIncludesRequestID(test *testing.T) {
	test.Parallel()
	core, observed := observer.New(zapcore.DebugLevel)
	auditLogger := NewZapLogger(zap.New(core))

	auditLogger.LogOperation(requestid.WithID(context.Background(), "req-9"), ledger.OperationLog{Operation: "freeze_account", Status: "ok"})
	auditLogger.LogOperation(context.Background(), ledger.OperationLog{Operation: "freeze_account", Status: "ok"})

	entries := observed.All()
	if len(entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if id := entries[0].ContextMap()["request_id"]; id != "req-9" {
		test.Fatalf("expected request id req-9, got %v", id)
	}
	if _, ok := entries[1].ContextMap()["request_id"]; ok {
		test.Fatalf("expected no request id without one on the context")
	}
}

func TestZapLoggerLevels(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		err      error
		expected zapcore.Level
	}{
		{name: "ok", err: nil, expected: zapcore.InfoLevel},
		{name: "domain failure", err: ledger.ErrInsufficientBalance, expected: zapcore.WarnLevel},
		{name: "internal failure", err: errors.New("disk on fire"), expected: zapcore.ErrorLevel},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			core, observed := observer.New(zapcore.DebugLevel)
			NewZapLogger(zap.New(core)).LogOperation(context.Background(), ledger.OperationLog{Operation: "withdrawal_create", Error: testCase.err})
			entries := observed.All()
			if len(entries) != 1 || entries[0].Level != testCase.expected {
				test.Fatalf("expected one %s entry, got %+v", testCase.expected, entries)
			}
		})
	}
}

func TestMetricsCountOperations(test *testing.T) {
	test.Parallel()
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	ctx := context.Background()

	metrics.LogOperation(ctx, ledger.OperationLog{Operation: "withdrawal_create", Status: "ok", TransactionType: ledger.TransactionTypeWithdrawalRequest, Amount: -20000})
	metrics.LogOperation(ctx, ledger.OperationLog{Operation: "withdrawal_create", Status: "error", Error: ledger.ErrBelowMinimum, TransactionType: ledger.TransactionTypeWithdrawalRequest, Amount: -50})
	metrics.LogOperation(ctx, ledger.OperationLog{Operation: "reconcile_deposit", Status: "skipped", Detail: "already_settled", TransactionType: ledger.TransactionTypeDeposit, Amount: 100})

	if value := testutil.ToFloat64(metrics.operations.WithLabelValues("withdrawal_create", "ok", "")); value != 1 {
		test.Fatalf("expected 1 ok create, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.operations.WithLabelValues("withdrawal_create", "error", "below_minimum")); value != 1 {
		test.Fatalf("expected 1 failed create, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.volume.WithLabelValues("withdrawal_request")); value != 20000 {
		test.Fatalf("expected volume 20000, got %v", value)
	}
	if value := testutil.ToFloat64(metrics.volume.WithLabelValues("deposit")); value != 0 {
		test.Fatalf("expected skipped deposit to add no volume, got %v", value)
	}
}

type countingLogger struct {
	count int
}

func (logger *countingLogger) LogOperation(context.Context, ledger.OperationLog) {
	logger.count++
}

func TestFanoutSkipsNilTargets(test *testing.T) {
	test.Parallel()
	first := &countingLogger{}
	second := &countingLogger{}
	Fanout(first, nil, second).LogOperation(context.Background(), ledger.OperationLog{Operation: "test"})
	if first.count != 1 || second.count != 1 {
		test.Fatalf("expected both loggers called once, got %d and %d", first.count, second.count)
	}
}
