package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/internal/keylock"
	"github.com/oklog/ulid/v2"
)

// Service owns every balance mutation and the wallet read and admin accessors.
type Service struct {
	store             Store
	clock             func() time.Time
	logger            OperationLogger
	currency          Currency
	nonAtomicFallback bool
	ownerLocks        *keylock.Locker
	newTransactionID  func() TransactionID
}

// BalanceChange describes one signed mutation of an owner's available balance.
type BalanceChange struct {
	OwnerID     OwnerID
	Type        TransactionType
	Amount      SignedAmountCents
	ReferenceID ReferenceID
	Metadata    MetadataJSON
}

// AdminAdjustment is a manual correction applied by an administrator.
type AdminAdjustment struct {
	OwnerID OwnerID
	AdminID AdminID
	Amount  SignedAmountCents
	Reason  string
}

// scope carries the store an operation runs against and whether it is atomic.
type scope struct {
	store  Store
	atomic bool
}

// NewService wires a Service.
func NewService(store Store, clock func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if clock == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:      store,
		clock:      clock,
		currency:   DefaultCurrency,
		ownerLocks: keylock.New(),
		newTransactionID: func() TransactionID {
			return TransactionID{value: ulid.Make().String()}
		},
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

func (service *Service) now() time.Time {
	return service.clock().UTC()
}

// runInScope executes fn inside one atomic store scope. When the store cannot open one and the
// non-atomic fallback is enabled, fn runs against the root store and degraded is reported.
func (service *Service) runInScope(ctx context.Context, fn func(ctx context.Context, current scope) error) (degraded bool, err error) {
	err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		return fn(ctx, scope{store: txStore, atomic: true})
	})
	if !errors.Is(err, ErrAtomicScopeUnsupported) || !service.nonAtomicFallback {
		return false, err
	}
	return true, fn(ctx, scope{store: service.store, atomic: false})
}

func scopeDetail(degraded bool) string {
	if degraded {
		return detailNonAtomicFallback
	}
	return ""
}

// ApplyBalanceChange appends one ledger transaction and moves the owner's balance with it.
func (service *Service) ApplyBalanceChange(ctx context.Context, change BalanceChange) (AmountCents, error) {
	var transaction Transaction
	degraded, operationError := service.runInScope(ctx, func(ctx context.Context, current scope) error {
		applied, err := service.applyBalanceChange(ctx, current, change)
		transaction = applied
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationApplyBalanceChange,
		OwnerID:         change.OwnerID,
		TransactionType: change.Type,
		Amount:          change.Amount,
		BalanceAfter:    transaction.BalanceAfter,
		ReferenceID:     change.ReferenceID,
		Detail:          scopeDetail(degraded),
		Error:           operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return transaction.BalanceAfter, nil
}

// applyBalanceChange is the single mutation path. It must run inside current.
func (service *Service) applyBalanceChange(ctx context.Context, current scope, change BalanceChange) (Transaction, error) {
	if change.OwnerID.IsZero() {
		return Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidOwnerID)
	}
	if _, err := ParseTransactionType(string(change.Type)); err != nil {
		return Transaction{}, err
	}
	if _, err := NewSignedAmountCents(change.Amount.Int64()); err != nil {
		return Transaction{}, err
	}
	if !current.atomic {
		unlock := service.ownerLocks.Lock(change.OwnerID.String())
		defer unlock()
	}
	wallet, err := service.loadWalletForUpdate(ctx, current.store, change.OwnerID)
	if err != nil {
		return Transaction{}, err
	}
	balanceAfter, err := change.Amount.applyTo(wallet.AvailableBalance)
	if err != nil {
		return Transaction{}, err
	}
	now := service.now()
	transaction := Transaction{
		TransactionID: service.newTransactionID(),
		OwnerID:       change.OwnerID,
		Type:          change.Type,
		Amount:        change.Amount,
		BalanceBefore: wallet.AvailableBalance,
		BalanceAfter:  balanceAfter,
		Status:        TransactionStatusCompleted,
		ReferenceID:   change.ReferenceID,
		Metadata:      change.Metadata,
		CreatedAt:     now,
	}
	if err := current.store.InsertTransaction(ctx, transaction); err != nil {
		return Transaction{}, err
	}
	if err := current.store.UpdateWalletBalance(ctx, change.OwnerID, balanceAfter, now); err != nil {
		return Transaction{}, err
	}
	return transaction, nil
}

// loadWalletForUpdate locks the owner's wallet, creating an empty one first if needed.
func (service *Service) loadWalletForUpdate(ctx context.Context, store Store, ownerID OwnerID) (Wallet, error) {
	wallet, err := store.GetWalletForUpdate(ctx, ownerID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return Wallet{}, err
	}
	if err := store.CreateWallet(ctx, service.emptyWallet(ownerID)); err != nil && !errors.Is(err, ErrWalletExists) {
		return Wallet{}, err
	}
	return store.GetWalletForUpdate(ctx, ownerID)
}

func (service *Service) emptyWallet(ownerID OwnerID) Wallet {
	now := service.now()
	return Wallet{
		OwnerID:   ownerID,
		Currency:  service.currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Wallet returns the owner's wallet, creating an empty one on first access.
func (service *Service) Wallet(ctx context.Context, ownerID OwnerID) (Wallet, error) {
	wallet, err := service.store.GetWallet(ctx, ownerID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return Wallet{}, err
	}
	if err := service.store.CreateWallet(ctx, service.emptyWallet(ownerID)); err != nil && !errors.Is(err, ErrWalletExists) {
		return Wallet{}, err
	}
	return service.store.GetWallet(ctx, ownerID)
}

// Transactions returns one page of the owner's history, newest first.
func (service *Service) Transactions(ctx context.Context, ownerID OwnerID, request PageRequest) (TransactionPage, error) {
	normalized, err := NewPageRequest(request.Page, request.Limit)
	if err != nil {
		return TransactionPage{}, err
	}
	items, err := service.store.ListTransactions(ctx, ownerID, normalized.Offset(), normalized.Limit)
	if err != nil {
		return TransactionPage{}, err
	}
	total, err := service.store.CountTransactions(ctx, ownerID)
	if err != nil {
		return TransactionPage{}, err
	}
	if items == nil {
		items = []Transaction{}
	}
	return TransactionPage{
		Items: items,
		Total: total,
		Page:  normalized.Page,
		Limit: normalized.Limit,
	}, nil
}

// RegisterAccount records an owner on first sign-in and returns the stored account.
func (service *Service) RegisterAccount(ctx context.Context, ownerID OwnerID, email string, role AccountRole) (Account, error) {
	if ownerID.IsZero() {
		return Account{}, fmt.Errorf("%w: empty value", ErrInvalidOwnerID)
	}
	normalizedRole, err := ParseAccountRole(string(role))
	if err != nil {
		return Account{}, err
	}
	now := service.now()
	account := Account{
		OwnerID:   ownerID,
		Email:     email,
		Role:      normalizedRole,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := service.store.CreateAccountIfMissing(ctx, account); err != nil {
		return Account{}, err
	}
	return service.store.GetAccount(ctx, ownerID)
}

// Account returns a registered account.
func (service *Service) Account(ctx context.Context, ownerID OwnerID) (Account, error) {
	return service.store.GetAccount(ctx, ownerID)
}

// Accounts lists every registered account.
func (service *Service) Accounts(ctx context.Context) ([]Account, error) {
	accounts, err := service.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []Account{}
	}
	return accounts, nil
}

// FreezeAccount sets or clears the frozen flag that blocks new withdrawals.
func (service *Service) FreezeAccount(ctx context.Context, ownerID OwnerID, adminID AdminID, frozen bool) (Account, error) {
	operation := operationFreezeAccount
	if !frozen {
		operation = operationUnfreezeAccount
	}
	account, operationError := service.setAccountFrozen(ctx, ownerID, frozen)
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		OwnerID:   ownerID,
		ActorID:   adminID,
		Error:     operationError,
	})
	return account, operationError
}

func (service *Service) setAccountFrozen(ctx context.Context, ownerID OwnerID, frozen bool) (Account, error) {
	if err := service.store.SetAccountFrozen(ctx, ownerID, frozen, service.now()); err != nil {
		return Account{}, err
	}
	return service.store.GetAccount(ctx, ownerID)
}

// AdjustBalance applies an administrator correction to a registered account.
func (service *Service) AdjustBalance(ctx context.Context, adjustment AdminAdjustment) (AmountCents, error) {
	referenceID := NewReferenceID(adjustment.Reason)
	if referenceID.IsZero() {
		referenceID = NewReferenceID(adminReferencePrefix + adjustment.AdminID.String())
	}
	change := BalanceChange{
		OwnerID:     adjustment.OwnerID,
		Type:        TransactionTypeAdminAdjustment,
		Amount:      adjustment.Amount,
		ReferenceID: referenceID,
		Metadata: NewMetadataFields(map[string]string{
			metadataKeyAdminID: adjustment.AdminID.String(),
			metadataKeyReason:  adjustment.Reason,
		}),
	}
	var transaction Transaction
	degraded, operationError := service.runInScope(ctx, func(ctx context.Context, current scope) error {
		if adjustment.AdminID.IsZero() {
			return fmt.Errorf("%w: empty value", ErrInvalidAdminID)
		}
		if _, err := current.store.GetAccount(ctx, adjustment.OwnerID); err != nil {
			return err
		}
		applied, err := service.applyBalanceChange(ctx, current, change)
		transaction = applied
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationAdjustBalance,
		OwnerID:         adjustment.OwnerID,
		ActorID:         adjustment.AdminID,
		TransactionType: TransactionTypeAdminAdjustment,
		Amount:          adjustment.Amount,
		BalanceAfter:    transaction.BalanceAfter,
		ReferenceID:     referenceID,
		Detail:          scopeDetail(degraded),
		Error:           operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return transaction.BalanceAfter, nil
}
