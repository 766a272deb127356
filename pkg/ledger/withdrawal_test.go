package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
)

func TestWithdrawalRejectRefundsExactlyOnce(test *testing.T) {
	test.Parallel()
	env := newFixture(test, nil)
	ctx := context.Background()
	ownerID := env.register(test, "user-reject")
	adminID := mustAdminID(test, "admin-1")
	env.fund(test, ownerID, 50000)

	request, err := env.withdrawals.Create(ctx, ownerID, mustPositiveAmount(test, 20000))
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	if request.Status != ledger.WithdrawalStatusPending {
		test.Fatalf("expected pending, got %s", request.Status)
	}
	if balance := env.balance(test, ownerID); balance != 30000 {
		test.Fatalf("expected balance 30000 after request, got %d", balance)
	}
	debit := env.history(test, ownerID)[0]
	if debit.Type != ledger.TransactionTypeWithdrawalRequest || debit.Amount != -20000 || debit.ReferenceID.String() != request.WithdrawalID.String() {
		test.Fatalf("unexpected debit %+v", debit)
	}

	rejected, err := env.withdrawals.Reject(ctx, request.WithdrawalID, adminID)
	if err != nil {
		test.Fatalf("reject: %v", err)
	}
	if rejected.Status != ledger.WithdrawalStatusRejected || rejected.ProcessedBy != adminID || rejected.ProcessedAt.IsZero() {
		test.Fatalf("unexpected rejected request %+v", rejected)
	}
	if balance := env.balance(test, ownerID); balance != 50000 {
		test.Fatalf("expected balance 50000 after reject, got %d", balance)
	}

	if _, err := env.withdrawals.Reject(ctx, request.WithdrawalID, adminID); !errors.Is(err, ledger.ErrAlreadyProcessed) {
		test.Fatalf("expected already processed, got %v", err)
	}
	if _, err := env.withdrawals.Approve(ctx, request.WithdrawalID, adminID); !errors.Is(err, ledger.ErrAlreadyProcessed) {
		test.Fatalf("expected already processed on approve, got %v", err)
	}
	refunds := 0
	for _, transaction := range env.history(test, ownerID) {
		if transaction.Type == ledger.TransactionTypeWithdrawalRefund {
			refunds++
			if transaction.Amount != 20000 {
				test.Fatalf("unexpected refund amount %d", transaction.Amount)
			}
		}
	}
	if refunds != 1 {
		test.Fatalf("expected exactly one refund, got %d", refunds)
	}
	if balance := env.balance(test, ownerID); balance != 50000 {
		test.Fatalf("expected balance still 50000, got %d", balance)
	}
	env.assertLedgerConsistent(test, ownerID)
}

func TestWithdrawalApproveMovesNoMoney(test *testing.T) {
	test.Parallel()
	env := newFixture(test, nil)
	ctx := context.Background()
	ownerID := env.register(test, "user-approve")
	adminID := mustAdminID(test, "admin-2")
	env.fund(test, ownerID, 15000)

	request, err := env.withdrawals.Create(ctx, ownerID, mustPositiveAmount(test, 10000))
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	approved, err := env.withdrawals.Approve(ctx, request.WithdrawalID, adminID)
	if err != nil {
		test.Fatalf("approve: %v", err)
	}
	if approved.Status != ledger.WithdrawalStatusApproved || approved.ProcessedBy != adminID {
		test.Fatalf("unexpected approved request %+v", approved)
	}
	if balance := env.balance(test, ownerID); balance != 5000 {
		test.Fatalf("expected balance 5000, got %d", balance)
	}
	if count := len(env.history(test, ownerID)); count != 2 {
		test.Fatalf("expected seed and debit only, got %d", count)
	}
	if _, err := env.withdrawals.Reject(ctx, request.WithdrawalID, adminID); !errors.Is(err, ledger.ErrAlreadyProcessed) {
		test.Fatalf("expected already processed, got %v", err)
	}
	stored, err := env.withdrawals.Get(ctx, request.WithdrawalID)
	if err != nil {
		test.Fatalf("get: %v", err)
	}
	if stored.Status != ledger.WithdrawalStatusApproved {
		test.Fatalf("expected stored approved status, got %s", stored.Status)
	}
}

func TestWithdrawalCreateFailuresLeaveNoTrace(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name        string
		storeConfig func(*fixtureConfig)
		configure   func(test *testing.T, env *fixture) ledger.OwnerID
		amount      int64
		expected    error
		kind        ledger.ErrorKind
	}{
		{
			name: "unknown account",
			configure: func(test *testing.T, env *fixture) ledger.OwnerID {
				return mustOwnerID(test, "ghost")
			},
			amount:   10000,
			expected: ledger.ErrAccountNotFound,
			kind:     ledger.KindNotFound,
		},
		{
			name: "frozen account",
			configure: func(test *testing.T, env *fixture) ledger.OwnerID {
				ownerID := env.register(test, "user-frozen")
				env.fund(test, ownerID, 50000)
				if _, err := env.service.FreezeAccount(context.Background(), ownerID, mustAdminID(test, "admin"), true); err != nil {
					test.Fatalf("freeze: %v", err)
				}
				return ownerID
			},
			amount:   10000,
			expected: ledger.ErrAccountFrozen,
			kind:     ledger.KindAccountFrozen,
		},
		{
			name: "below minimum",
			configure: func(test *testing.T, env *fixture) ledger.OwnerID {
				ownerID := env.register(test, "user-small")
				env.fund(test, ownerID, 50000)
				return ownerID
			},
			amount:   9999,
			expected: ledger.ErrBelowMinimum,
			kind:     ledger.KindBelowMinimum,
		},
		{
			name: "insufficient balance",
			configure: func(test *testing.T, env *fixture) ledger.OwnerID {
				ownerID := env.register(test, "user-poor")
				env.fund(test, ownerID, 5000)
				return ownerID
			},
			amount:   10000,
			expected: ledger.ErrInsufficientBalance,
			kind:     ledger.KindInsufficientBalance,
		},
		{
			name: "insufficient balance without atomic scope",
			storeConfig: func(config *fixtureConfig) {
				config.storeOptions = []memstore.Option{memstore.WithoutTransactions()}
				config.serviceOptions = []ledger.ServiceOption{ledger.WithNonAtomicFallback()}
			},
			configure: func(test *testing.T, env *fixture) ledger.OwnerID {
				ownerID := env.register(test, "user-poor-degraded")
				env.fund(test, ownerID, 5000)
				return ownerID
			},
			amount:   10000,
			expected: ledger.ErrInsufficientBalance,
			kind:     ledger.KindInsufficientBalance,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			env := newFixture(test, testCase.storeConfig)
			ownerID := testCase.configure(test, env)
			balanceBefore := env.balance(test, ownerID)

			_, err := env.withdrawals.Create(context.Background(), ownerID, mustPositiveAmount(test, testCase.amount))
			if !errors.Is(err, testCase.expected) {
				test.Fatalf("expected %v, got %v", testCase.expected, err)
			}
			if kind := ledger.KindOf(err); kind != testCase.kind {
				test.Fatalf("expected kind %s, got %s", testCase.kind, kind)
			}
			all, err := env.withdrawals.ListAll(context.Background())
			if err != nil {
				test.Fatalf("list all: %v", err)
			}
			if len(all) != 0 {
				test.Fatalf("expected no withdrawal requests, got %d", len(all))
			}
			if balance := env.balance(test, ownerID); balance != balanceBefore {
				test.Fatalf("expected balance %d unchanged, got %d", balanceBefore, balance)
			}
		})
	}
}

func TestWithdrawalUnknownRequest(test *testing.T) {
	test.Parallel()
	env := newFixture(test, nil)
	withdrawalID, err := ledger.NewWithdrawalID("missing")
	if err != nil {
		test.Fatalf("withdrawal id: %v", err)
	}
	if _, err := env.withdrawals.Approve(context.Background(), withdrawalID, mustAdminID(test, "admin")); !errors.Is(err, ledger.ErrWithdrawalNotFound) {
		test.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.withdrawals.Reject(context.Background(), withdrawalID, mustAdminID(test, "admin")); !errors.Is(err, ledger.ErrWithdrawalNotFound) {
		test.Fatalf("expected not found, got %v", err)
	}
}

func TestWithdrawalConservation(test *testing.T) {
	test.Parallel()
	env := newFixture(test, nil)
	ctx := context.Background()
	ownerID := env.register(test, "user-conserve")
	adminID := mustAdminID(test, "admin-3")
	env.fund(test, ownerID, 100000)

	var approvedTotal int64
	for index, minor := range []int64{10000, 20000, 15000, 12500} {
		env.clock.Advance(time.Minute)
		request, err := env.withdrawals.Create(ctx, ownerID, mustPositiveAmount(test, minor))
		if err != nil {
			test.Fatalf("create: %v", err)
		}
		if index%2 == 0 {
			if _, err := env.withdrawals.Approve(ctx, request.WithdrawalID, adminID); err != nil {
				test.Fatalf("approve: %v", err)
			}
			approvedTotal += minor
			continue
		}
		if _, err := env.withdrawals.Reject(ctx, request.WithdrawalID, adminID); err != nil {
			test.Fatalf("reject: %v", err)
		}
	}
	if balance := env.balance(test, ownerID); balance != 100000-approvedTotal {
		test.Fatalf("expected balance %d, got %d", 100000-approvedTotal, balance)
	}
	env.assertLedgerConsistent(test, ownerID)
}

func TestConcurrentWithdrawalProcessingHappensOnce(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(*fixtureConfig)
	}{
		{name: "atomic store"},
		{
			name: "non-atomic fallback",
			configure: func(config *fixtureConfig) {
				config.storeOptions = []memstore.Option{memstore.WithoutTransactions()}
				config.serviceOptions = []ledger.ServiceOption{ledger.WithNonAtomicFallback()}
			},
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			env := newFixture(test, testCase.configure)
			ctx := context.Background()
			ownerID := env.register(test, "user-race")
			adminID := mustAdminID(test, "admin-4")
			env.fund(test, ownerID, 30000)
			request, err := env.withdrawals.Create(ctx, ownerID, mustPositiveAmount(test, 20000))
			if err != nil {
				test.Fatalf("create: %v", err)
			}

			const attempts = 10
			var waitGroup sync.WaitGroup
			var mutex sync.Mutex
			succeeded := 0
			for index := 0; index < attempts; index++ {
				waitGroup.Add(1)
				go func(index int) {
					defer waitGroup.Done()
					var err error
					if index%2 == 0 {
						_, err = env.withdrawals.Reject(ctx, request.WithdrawalID, adminID)
					} else {
						_, err = env.withdrawals.Approve(ctx, request.WithdrawalID, adminID)
					}
					if err == nil {
						mutex.Lock()
						succeeded++
						mutex.Unlock()
						return
					}
					if !errors.Is(err, ledger.ErrAlreadyProcessed) {
						test.Errorf("unexpected error: %v", err)
					}
				}(index)
			}
			waitGroup.Wait()
			if succeeded != 1 {
				test.Fatalf("expected exactly one transition, got %d", succeeded)
			}
			stored, err := env.withdrawals.Get(ctx, request.WithdrawalID)
			if err != nil {
				test.Fatalf("get: %v", err)
			}
			expected := int64(10000)
			if stored.Status == ledger.WithdrawalStatusRejected {
				expected = 30000
			}
			if balance := env.balance(test, ownerID); balance != expected {
				test.Fatalf("expected balance %d for %s, got %d", expected, stored.Status, balance)
			}
			env.assertLedgerConsistent(test, ownerID)
		})
	}
}

func TestWithdrawalListings(test *testing.T) {
	test.Parallel()
	env := newFixture(test, nil)
	ctx := context.Background()
	first := env.register(test, "user-a")
	second := env.register(test, "user-b")
	adminID := mustAdminID(test, "admin-5")
	env.fund(test, first, 100000)
	env.fund(test, second, 100000)

	var created []ledger.WithdrawalRequest
	for _, ownerID := range []ledger.OwnerID{first, second, first} {
		env.clock.Advance(time.Minute)
		request, err := env.withdrawals.Create(ctx, ownerID, mustPositiveAmount(test, 10000))
		if err != nil {
			test.Fatalf("create: %v", err)
		}
		created = append(created, request)
	}
	if _, err := env.withdrawals.Approve(ctx, created[1].WithdrawalID, adminID); err != nil {
		test.Fatalf("approve: %v", err)
	}

	pending, err := env.withdrawals.ListPending(ctx)
	if err != nil {
		test.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].WithdrawalID != created[0].WithdrawalID || pending[1].WithdrawalID != created[2].WithdrawalID {
		test.Fatalf("expected pending oldest first, got %+v", pending)
	}
	all, err := env.withdrawals.ListAll(ctx)
	if err != nil {
		test.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].WithdrawalID != created[2].WithdrawalID {
		test.Fatalf("expected all newest first, got %+v", all)
	}
	mine, err := env.withdrawals.ListForOwner(ctx, first)
	if err != nil {
		test.Fatalf("list for owner: %v", err)
	}
	if len(mine) != 2 || mine[0].WithdrawalID != created[2].WithdrawalID || mine[1].WithdrawalID != created[0].WithdrawalID {
		test.Fatalf("expected owner requests newest first, got %+v", mine)
	}
}

func TestWithdrawalCustomMinimum(test *testing.T) {
	test.Parallel()
	env := newFixture(test, nil)
	workflow, err := ledger.NewWithdrawalWorkflow(env.service, ledger.WithMinimumWithdrawal(mustPositiveAmount(test, 500)))
	if err != nil {
		test.Fatalf("workflow: %v", err)
	}
	ownerID := env.register(test, "user-min")
	env.fund(test, ownerID, 1000)
	if _, err := workflow.Create(context.Background(), ownerID, mustPositiveAmount(test, 500)); err != nil {
		test.Fatalf("create at minimum: %v", err)
	}
	if workflow.Minimum() != 500 {
		test.Fatalf("unexpected minimum %d", workflow.Minimum())
	}
}
