package ledger_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
)

const testWebhookSecret = "whsec_test"

type testClock struct {
	mutex   sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (clock *testClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.current
}

func (clock *testClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = clock.current.Add(duration)
}

type recordingLogger struct {
	mutex   sync.Mutex
	entries []ledger.OperationLog
}

func (logger *recordingLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recordingLogger) last(test *testing.T) ledger.OperationLog {
	test.Helper()
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	if len(logger.entries) == 0 {
		test.Fatalf("expected at least one operation log")
	}
	return logger.entries[len(logger.entries)-1]
}

func (logger *recordingLogger) byOperation(operation string) []ledger.OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	var matches []ledger.OperationLog
	for _, entry := range logger.entries {
		if entry.Operation == operation {
			matches = append(matches, entry)
		}
	}
	return matches
}

type stubGateway struct {
	mutex    sync.Mutex
	orderIDs []string
	requests []ledger.GatewayOrderRequest
}

func (gateway *stubGateway) CreateOrder(_ context.Context, request ledger.GatewayOrderRequest) (ledger.GatewayOrder, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.requests = append(gateway.requests, request)
	orderID, err := ledger.NewPaymentOrderID(gateway.orderIDs[0])
	if err != nil {
		return ledger.GatewayOrder{}, err
	}
	gateway.orderIDs = gateway.orderIDs[1:]
	return ledger.GatewayOrder{OrderID: orderID, Amount: request.Amount, Currency: request.Currency}, nil
}

type fixture struct {
	store       *memstore.Store
	clock       *testClock
	logger      *recordingLogger
	gateway     *stubGateway
	service     *ledger.Service
	deposits    *ledger.DepositReconciler
	withdrawals *ledger.WithdrawalWorkflow
}

type fixtureConfig struct {
	storeOptions   []memstore.Option
	serviceOptions []ledger.ServiceOption
	deposit        ledger.DepositConfig
	withoutGateway bool
}

func newFixture(test *testing.T, configure func(*fixtureConfig)) *fixture {
	test.Helper()
	config := fixtureConfig{
		deposit: ledger.DepositConfig{WebhookSecret: testWebhookSecret, TestDepositsEnabled: true},
	}
	if configure != nil {
		configure(&config)
	}
	clock := newTestClock()
	logger := &recordingLogger{}
	gateway := &stubGateway{orderIDs: []string{"order_X", "order_Y", "order_Z"}}
	if config.deposit.Gateway == nil && !config.withoutGateway {
		config.deposit.Gateway = gateway
	}
	store := memstore.New(config.storeOptions...)
	options := append([]ledger.ServiceOption{ledger.WithOperationLogger(logger)}, config.serviceOptions...)
	service, err := ledger.NewService(store, clock.Now, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	deposits, err := ledger.NewDepositReconciler(service, config.deposit)
	if err != nil {
		test.Fatalf("new deposit reconciler: %v", err)
	}
	withdrawals, err := ledger.NewWithdrawalWorkflow(service)
	if err != nil {
		test.Fatalf("new withdrawal workflow: %v", err)
	}
	return &fixture{
		store:       store,
		clock:       clock,
		logger:      logger,
		gateway:     gateway,
		service:     service,
		deposits:    deposits,
		withdrawals: withdrawals,
	}
}

func (env *fixture) register(test *testing.T, raw string) ledger.OwnerID {
	test.Helper()
	ownerID := mustOwnerID(test, raw)
	if _, err := env.service.RegisterAccount(context.Background(), ownerID, raw+"@example.com", ledger.AccountRoleUser); err != nil {
		test.Fatalf("register account: %v", err)
	}
	return ownerID
}

func (env *fixture) fund(test *testing.T, ownerID ledger.OwnerID, minor int64) {
	test.Helper()
	if _, err := env.service.ApplyBalanceChange(context.Background(), ledger.BalanceChange{
		OwnerID:     ownerID,
		Type:        ledger.TransactionTypeDeposit,
		Amount:      mustSignedAmount(test, minor),
		ReferenceID: ledger.NewReferenceID("seed"),
	}); err != nil {
		test.Fatalf("fund: %v", err)
	}
}

func (env *fixture) balance(test *testing.T, ownerID ledger.OwnerID) int64 {
	test.Helper()
	wallet, err := env.service.Wallet(context.Background(), ownerID)
	if err != nil {
		test.Fatalf("wallet: %v", err)
	}
	return wallet.AvailableBalance.Int64()
}

func (env *fixture) history(test *testing.T, ownerID ledger.OwnerID) []ledger.Transaction {
	test.Helper()
	var items []ledger.Transaction
	for page := 1; ; page++ {
		result, err := env.service.Transactions(context.Background(), ownerID, ledger.PageRequest{Page: page, Limit: ledger.MaxPageLimit})
		if err != nil {
			test.Fatalf("transactions: %v", err)
		}
		items = append(items, result.Items...)
		if int64(len(items)) >= result.Total || len(result.Items) == 0 {
			return items
		}
	}
}

// assertLedgerConsistent checks the balance invariant and the before/after chain.
func (env *fixture) assertLedgerConsistent(test *testing.T, ownerID ledger.OwnerID) {
	test.Helper()
	items := env.history(test, ownerID)
	var sum int64
	for index, transaction := range items {
		sum += transaction.Amount.Int64()
		if transaction.BalanceAfter.Int64() != transaction.BalanceBefore.Int64()+transaction.Amount.Int64() {
			test.Fatalf("transaction %s: before %d + amount %d != after %d", transaction.TransactionID, transaction.BalanceBefore, transaction.Amount, transaction.BalanceAfter)
		}
		if index+1 < len(items) && items[index+1].BalanceAfter != transaction.BalanceBefore {
			test.Fatalf("chain gap at %d: previous after %d, next before %d", index, items[index+1].BalanceAfter, transaction.BalanceBefore)
		}
	}
	if balance := env.balance(test, ownerID); balance != sum {
		test.Fatalf("balance %d differs from ledger sum %d", balance, sum)
	}
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func capturedPayload(orderID string, paymentID string, amount int64) []byte {
	return []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"` + paymentID + `","order_id":"` + orderID + `","amount":` + strconv.FormatInt(amount, 10) + `}}}}`)
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

func mustPositiveAmount(test *testing.T, raw int64) ledger.PositiveAmountCents {
	test.Helper()
	amount, err := ledger.NewPositiveAmountCents(raw)
	if err != nil {
		test.Fatalf("positive amount: %v", err)
	}
	return amount
}

func mustSignedAmount(test *testing.T, raw int64) ledger.SignedAmountCents {
	test.Helper()
	amount, err := ledger.NewSignedAmountCents(raw)
	if err != nil {
		test.Fatalf("signed amount: %v", err)
	}
	return amount
}
