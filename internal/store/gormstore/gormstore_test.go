package gormstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteStore(test *testing.T) *Store {
	test.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(test.TempDir(), "wallet.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() {
		_ = sqlDB.Close()
	})
	store := New(db)
	if err := store.Migrate(context.Background()); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	return store
}

type sqliteFixture struct {
	store       *Store
	service     *ledger.Service
	deposits    *ledger.DepositReconciler
	withdrawals *ledger.WithdrawalWorkflow
	now         time.Time
}

func newSQLiteFixture(test *testing.T) *sqliteFixture {
	test.Helper()
	store := newSQLiteStore(test)
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	service, err := ledger.NewService(store, func() time.Time { return now })
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	deposits, err := ledger.NewDepositReconciler(service, ledger.DepositConfig{WebhookSecret: "secret", TestDepositsEnabled: true})
	if err != nil {
		test.Fatalf("deposits: %v", err)
	}
	withdrawals, err := ledger.NewWithdrawalWorkflow(service)
	if err != nil {
		test.Fatalf("withdrawals: %v", err)
	}
	return &sqliteFixture{store: store, service: service, deposits: deposits, withdrawals: withdrawals, now: now}
}

func (env *sqliteFixture) register(test *testing.T, raw string) ledger.OwnerID {
	test.Helper()
	ownerID := mustOwnerID(test, raw)
	if _, err := env.service.RegisterAccount(context.Background(), ownerID, raw+"@example.com", ledger.AccountRoleUser); err != nil {
		test.Fatalf("register: %v", err)
	}
	return ownerID
}

func (env *sqliteFixture) balance(test *testing.T, ownerID ledger.OwnerID) int64 {
	test.Helper()
	wallet, err := env.service.Wallet(context.Background(), ownerID)
	if err != nil {
		test.Fatalf("wallet: %v", err)
	}
	return wallet.AvailableBalance.Int64()
}

func (env *sqliteFixture) assertLedgerConsistent(test *testing.T, ownerID ledger.OwnerID) {
	test.Helper()
	page, err := env.service.Transactions(context.Background(), ownerID, ledger.PageRequest{Page: 1, Limit: ledger.MaxPageLimit})
	if err != nil {
		test.Fatalf("transactions: %v", err)
	}
	var sum int64
	for index, transaction := range page.Items {
		sum += transaction.Amount.Int64()
		if index+1 < len(page.Items) && page.Items[index+1].BalanceAfter != transaction.BalanceBefore {
			test.Fatalf("chain gap at %d", index)
		}
	}
	if balance := env.balance(test, ownerID); balance != sum {
		test.Fatalf("balance %d differs from ledger sum %d", balance, sum)
	}
}

func TestBalanceChangeRoundTrip(test *testing.T) {
	test.Parallel()
	env := newSQLiteFixture(test)
	ctx := context.Background()
	ownerID := mustOwnerID(test, "user-1")

	if _, err := env.service.ApplyBalanceChange(ctx, ledger.BalanceChange{
		OwnerID:     ownerID,
		Type:        ledger.TransactionTypeDeposit,
		Amount:      50000,
		ReferenceID: ledger.NewReferenceID("pay_1"),
		Metadata:    ledger.NewMetadataFields(map[string]string{"order_id": "order_1"}),
	}); err != nil {
		test.Fatalf("deposit: %v", err)
	}
	if _, err := env.service.ApplyBalanceChange(ctx, ledger.BalanceChange{
		OwnerID: ownerID,
		Type:    ledger.TransactionTypeAdminAdjustment,
		Amount:  -60000,
	}); !errors.Is(err, ledger.ErrInsufficientBalance) {
		test.Fatalf("expected insufficient balance, got %v", err)
	}
	page, err := env.service.Transactions(ctx, ownerID, ledger.PageRequest{Page: 1, Limit: 10})
	if err != nil {
		test.Fatalf("transactions: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 {
		test.Fatalf("expected one transaction, got %+v", page)
	}
	transaction := page.Items[0]
	if transaction.ReferenceID.String() != "pay_1" || transaction.BalanceAfter != 50000 || !transaction.CreatedAt.Equal(env.now) {
		test.Fatalf("unexpected transaction %+v", transaction)
	}
	if transaction.Metadata.String() != `{"order_id":"order_1"}` {
		test.Fatalf("unexpected metadata %s", transaction.Metadata)
	}
	if balance := env.balance(test, ownerID); balance != 50000 {
		test.Fatalf("expected balance 50000, got %d", balance)
	}
}

func TestConcurrentMutationsSerialize(test *testing.T) {
	test.Parallel()
	env := newSQLiteFixture(test)
	ownerID := mustOwnerID(test, "user-concurrent")
	const workers = 20
	var waitGroup sync.WaitGroup
	for index := 0; index < workers; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			if _, err := env.service.ApplyBalanceChange(context.Background(), ledger.BalanceChange{
				OwnerID: ownerID,
				Type:    ledger.TransactionTypeDeposit,
				Amount:  1,
			}); err != nil {
				test.Errorf("apply: %v", err)
			}
		}()
	}
	waitGroup.Wait()
	if balance := env.balance(test, ownerID); balance != workers {
		test.Fatalf("expected balance %d, got %d", workers, balance)
	}
	env.assertLedgerConsistent(test, ownerID)
}

func TestWithdrawalRejectScenario(test *testing.T) {
	test.Parallel()
	env := newSQLiteFixture(test)
	ctx := context.Background()
	ownerID := env.register(test, "user-scenario")
	adminID := mustAdminID(test, "admin-1")
	if _, err := env.deposits.CreditTestDeposit(ctx, ownerID, 50000); err != nil {
		test.Fatalf("test deposit: %v", err)
	}

	request, err := env.withdrawals.Create(ctx, ownerID, 20000)
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	if balance := env.balance(test, ownerID); balance != 30000 {
		test.Fatalf("expected 30000, got %d", balance)
	}
	pending, err := env.withdrawals.ListPending(ctx)
	if err != nil || len(pending) != 1 {
		test.Fatalf("expected one pending request, got %d (%v)", len(pending), err)
	}
	rejected, err := env.withdrawals.Reject(ctx, request.WithdrawalID, adminID)
	if err != nil {
		test.Fatalf("reject: %v", err)
	}
	if rejected.ProcessedBy != adminID {
		test.Fatalf("expected processed by %s, got %s", adminID, rejected.ProcessedBy)
	}
	if _, err := env.withdrawals.Reject(ctx, request.WithdrawalID, adminID); !errors.Is(err, ledger.ErrAlreadyProcessed) {
		test.Fatalf("expected already processed, got %v", err)
	}
	if balance := env.balance(test, ownerID); balance != 50000 {
		test.Fatalf("expected 50000, got %d", balance)
	}
	stored, err := env.withdrawals.Get(ctx, request.WithdrawalID)
	if err != nil {
		test.Fatalf("get: %v", err)
	}
	if stored.Status != ledger.WithdrawalStatusRejected || stored.ProcessedBy != adminID || !stored.ProcessedAt.Equal(env.now) {
		test.Fatalf("unexpected stored request %+v", stored)
	}
	env.assertLedgerConsistent(test, ownerID)
}

func TestFailedWithdrawalRollsBackRequest(test *testing.T) {
	test.Parallel()
	env := newSQLiteFixture(test)
	ctx := context.Background()
	ownerID := env.register(test, "user-rollback")
	if _, err := env.deposits.CreditTestDeposit(ctx, ownerID, 5000); err != nil {
		test.Fatalf("test deposit: %v", err)
	}
	if _, err := env.withdrawals.Create(ctx, ownerID, 10000); !errors.Is(err, ledger.ErrInsufficientBalance) {
		test.Fatalf("expected insufficient balance, got %v", err)
	}
	all, err := env.withdrawals.ListAll(ctx)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		test.Fatalf("expected the request insert to roll back, found %d", len(all))
	}
}

type fixedGateway struct{}

func (fixedGateway) CreateOrder(_ context.Context, request ledger.GatewayOrderRequest) (ledger.GatewayOrder, error) {
	orderID, err := ledger.NewPaymentOrderID("order_X")
	if err != nil {
		return ledger.GatewayOrder{}, err
	}
	return ledger.GatewayOrder{OrderID: orderID, Amount: request.Amount, Currency: request.Currency}, nil
}

func TestReconcileDepositIsIdempotent(test *testing.T) {
	test.Parallel()
	env := newSQLiteFixture(test)
	ctx := context.Background()
	deposits, err := ledger.NewDepositReconciler(env.service, ledger.DepositConfig{WebhookSecret: "secret", Gateway: fixedGateway{}})
	if err != nil {
		test.Fatalf("deposits: %v", err)
	}
	ownerID := env.register(test, "user-deposit")
	record, err := deposits.CreateDepositOrder(ctx, ownerID, 10000)
	if err != nil {
		test.Fatalf("create order: %v", err)
	}
	if _, err := deposits.CreateDepositOrder(ctx, ownerID, 10000); !errors.Is(err, ledger.ErrPaymentExists) {
		test.Fatalf("expected duplicate order rejected, got %v", err)
	}
	confirmation := ledger.DepositConfirmation{
		OrderID:          record.OrderID,
		PaymentID:        mustPaymentID(test, "pay_1"),
		AmountMinorUnits: 10000,
	}
	for attempt := 0; attempt < 3; attempt++ {
		if _, err := deposits.ReconcileDeposit(ctx, confirmation); err != nil {
			test.Fatalf("reconcile attempt %d: %v", attempt, err)
		}
	}
	if balance := env.balance(test, ownerID); balance != 10000 {
		test.Fatalf("expected single credit, got %d", balance)
	}
	payment, err := env.store.GetPaymentForUpdate(ctx, record.OrderID)
	if err != nil {
		test.Fatalf("payment: %v", err)
	}
	if !payment.Settled() || payment.PaymentID.String() != "pay_1" {
		test.Fatalf("unexpected payment %+v", payment)
	}
}

func TestStoreConditionalUpdates(test *testing.T) {
	test.Parallel()
	store := newSQLiteStore(test)
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	withdrawalID, err := ledger.NewWithdrawalID("wd-1")
	if err != nil {
		test.Fatalf("withdrawal id: %v", err)
	}
	if err := store.CreateWithdrawal(ctx, ledger.WithdrawalRequest{
		WithdrawalID: withdrawalID,
		OwnerID:      mustOwnerID(test, "user"),
		Amount:       10000,
		Status:       ledger.WithdrawalStatusPending,
		RequestedAt:  now,
	}); err != nil {
		test.Fatalf("create withdrawal: %v", err)
	}
	update := ledger.WithdrawalStatusUpdate{
		WithdrawalID: withdrawalID,
		From:         ledger.WithdrawalStatusPending,
		To:           ledger.WithdrawalStatusApproved,
		ProcessedAt:  now,
		ProcessedBy:  mustAdminID(test, "admin"),
	}
	if err := store.UpdateWithdrawalStatus(ctx, update); err != nil {
		test.Fatalf("first update: %v", err)
	}
	if err := store.UpdateWithdrawalStatus(ctx, update); !errors.Is(err, ledger.ErrAlreadyProcessed) {
		test.Fatalf("expected already processed, got %v", err)
	}
	missingID, _ := ledger.NewWithdrawalID("wd-missing")
	update.WithdrawalID = missingID
	if err := store.UpdateWithdrawalStatus(ctx, update); !errors.Is(err, ledger.ErrWithdrawalNotFound) {
		test.Fatalf("expected not found, got %v", err)
	}

	orderID, _ := ledger.NewPaymentOrderID("order_missing")
	if err := store.MarkPaymentPaid(ctx, orderID, mustPaymentID(test, "pay"), now); !errors.Is(err, ledger.ErrPaymentNotFound) {
		test.Fatalf("expected payment not found, got %v", err)
	}
	ownerID := mustOwnerID(test, "user")
	if err := store.CreateWallet(ctx, ledger.Wallet{OwnerID: ownerID, Currency: "INR", CreatedAt: now, UpdatedAt: now}); err != nil {
		test.Fatalf("create wallet: %v", err)
	}
	if err := store.CreateWallet(ctx, ledger.Wallet{OwnerID: ownerID, Currency: "INR", CreatedAt: now, UpdatedAt: now}); !errors.Is(err, ledger.ErrWalletExists) {
		test.Fatalf("expected wallet exists, got %v", err)
	}
	if err := store.SetAccountFrozen(ctx, ownerID, true, now); !errors.Is(err, ledger.ErrAccountNotFound) {
		test.Fatalf("expected account not found, got %v", err)
	}
}

func TestWithTxRollsBackOnError(test *testing.T) {
	test.Parallel()
	store := newSQLiteStore(test)
	ctx := context.Background()
	ownerID := mustOwnerID(test, "user-tx")
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	sentinel := errors.New("abort")
	err := store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		if err := txStore.CreateWallet(ctx, ledger.Wallet{OwnerID: ownerID, Currency: "INR", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		return txStore.WithTx(ctx, func(ctx context.Context, nested ledger.Store) error {
			return sentinel
		})
	})
	if !errors.Is(err, sentinel) {
		test.Fatalf("expected sentinel, got %v", err)
	}
	if _, err := store.GetWallet(ctx, ownerID); !errors.Is(err, ledger.ErrWalletNotFound) {
		test.Fatalf("expected rolled back wallet, got %v", err)
	}
}

func mustOwnerID(test *testing.T, raw string) ledger.OwnerID {
	test.Helper()
	ownerID, err := ledger.NewOwnerID(raw)
	if err != nil {
		test.Fatalf("owner id: %v", err)
	}
	return ownerID
}

func mustAdminID(test *testing.T, raw string) ledger.AdminID {
	test.Helper()
	adminID, err := ledger.NewAdminID(raw)
	if err != nil {
		test.Fatalf("admin id: %v", err)
	}
	return adminID
}

func mustPaymentID(test *testing.T, raw string) ledger.PaymentID {
	test.Helper()
	paymentID, err := ledger.NewPaymentID(raw)
	if err != nil {
		test.Fatalf("payment id: %v", err)
	}
	return paymentID
}
