package ledger

import (
	"context"
	"time"
)

// Store persists wallet state. It enforces no business rules.
//
// WithTx opens an atomic scope: operations issued on txStore participate in it, and the scope
// commits only when fn returns nil. Calling WithTx on a txStore joins the current scope. A store
// that cannot provide multi-step atomicity returns ErrAtomicScopeUnsupported without invoking fn.
//
// The ForUpdate reads take a per-entity lock held until the enclosing scope ends.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	CreateAccountIfMissing(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, ownerID OwnerID) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	SetAccountFrozen(ctx context.Context, ownerID OwnerID, frozen bool, updatedAt time.Time) error

	GetWallet(ctx context.Context, ownerID OwnerID) (Wallet, error)
	GetWalletForUpdate(ctx context.Context, ownerID OwnerID) (Wallet, error)
	CreateWallet(ctx context.Context, wallet Wallet) error
	UpdateWalletBalance(ctx context.Context, ownerID OwnerID, available AmountCents, updatedAt time.Time) error

	InsertTransaction(ctx context.Context, transaction Transaction) error
	ListTransactions(ctx context.Context, ownerID OwnerID, offset int, limit int) ([]Transaction, error)
	CountTransactions(ctx context.Context, ownerID OwnerID) (int64, error)

	CreateWithdrawal(ctx context.Context, request WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, withdrawalID WithdrawalID) (WithdrawalRequest, error)
	GetWithdrawalForUpdate(ctx context.Context, withdrawalID WithdrawalID) (WithdrawalRequest, error)
	UpdateWithdrawalStatus(ctx context.Context, update WithdrawalStatusUpdate) error
	ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]WithdrawalRequest, error)

	CreatePayment(ctx context.Context, payment PaymentRecord) error
	GetPaymentForUpdate(ctx context.Context, orderID PaymentOrderID) (PaymentRecord, error)
	MarkPaymentPaid(ctx context.Context, orderID PaymentOrderID, paymentID PaymentID, updatedAt time.Time) error
}
