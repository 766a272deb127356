// Package memstore keeps the ledger in process memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/internal/keylock"
	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
)

const (
	lockPrefixWallet     = "wallet:"
	lockPrefixWithdrawal = "withdrawal:"
	lockPrefixPayment    = "payment:"
)

// Option configures a Store.
type Option func(*Store)

// WithoutTransactions makes WithTx report ledger.ErrAtomicScopeUnsupported.
func WithoutTransactions() Option {
	return func(store *Store) {
		store.transactional = false
	}
}

var _ ledger.Store = (*Store)(nil)

// Store implements ledger.Store over maps guarded by a mutex.
type Store struct {
	state         *state
	locks         *keylock.Locker
	transactional bool
	tx            *txState
}

type state struct {
	mutex           sync.Mutex
	sequence        int64
	accounts        map[string]ledger.Account
	wallets         map[string]ledger.Wallet
	transactions    []ledger.Transaction
	transactionIDs  map[string]struct{}
	withdrawals     map[string]withdrawalRow
	payments        map[string]ledger.PaymentRecord
	accountSequence map[string]int64
}

type withdrawalRow struct {
	request  ledger.WithdrawalRequest
	sequence int64
}

type txState struct {
	accounts     map[string]ledger.Account
	wallets      map[string]ledger.Wallet
	transactions []ledger.Transaction
	withdrawals  map[string]withdrawalRow
	payments     map[string]ledger.PaymentRecord
	held         map[string]func()
}

// New constructs an empty Store.
func New(options ...Option) *Store {
	store := &Store{
		state: &state{
			accounts:        make(map[string]ledger.Account),
			wallets:         make(map[string]ledger.Wallet),
			transactionIDs:  make(map[string]struct{}),
			withdrawals:     make(map[string]withdrawalRow),
			payments:        make(map[string]ledger.PaymentRecord),
			accountSequence: make(map[string]int64),
		},
		locks:         keylock.New(),
		transactional: true,
	}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

// WithTx runs fn against a staged view that is published only when fn returns nil.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.tx != nil {
		return fn(ctx, store)
	}
	if !store.transactional {
		return ledger.ErrAtomicScopeUnsupported
	}
	txStore := &Store{
		state:         store.state,
		locks:         store.locks,
		transactional: true,
		tx: &txState{
			accounts:    make(map[string]ledger.Account),
			wallets:     make(map[string]ledger.Wallet),
			withdrawals: make(map[string]withdrawalRow),
			payments:    make(map[string]ledger.PaymentRecord),
			held:        make(map[string]func()),
		},
	}
	defer txStore.releaseLocks()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, txStore); err != nil {
		return err
	}
	return txStore.commit()
}

func (store *Store) releaseLocks() {
	for _, unlock := range store.tx.held {
		unlock()
	}
	store.tx.held = nil
}

func (store *Store) lock(key string) {
	if store.tx == nil {
		return
	}
	if _, ok := store.tx.held[key]; ok {
		return
	}
	store.tx.held[key] = store.locks.Lock(key)
}

func (store *Store) commit() error {
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	for _, transaction := range store.tx.transactions {
		if _, exists := current.transactionIDs[transaction.TransactionID.String()]; exists {
			return wrap("commit", "transaction", "duplicate", ledger.ErrDuplicateTransaction)
		}
	}
	for key, account := range store.tx.accounts {
		if _, exists := current.accountSequence[key]; !exists {
			current.sequence++
			current.accountSequence[key] = current.sequence
		}
		current.accounts[key] = account
	}
	for key, wallet := range store.tx.wallets {
		current.wallets[key] = wallet
	}
	for _, transaction := range store.tx.transactions {
		current.transactionIDs[transaction.TransactionID.String()] = struct{}{}
		current.transactions = append(current.transactions, transaction)
	}
	for key, row := range store.tx.withdrawals {
		if existing, ok := current.withdrawals[key]; ok {
			row.sequence = existing.sequence
		} else {
			current.sequence++
			row.sequence = current.sequence
		}
		current.withdrawals[key] = row
	}
	for key, payment := range store.tx.payments {
		current.payments[key] = payment
	}
	return nil
}

func wrap(operation string, subject string, code string, err error) error {
	return ledger.WrapError("store", subject, code, fmt.Errorf("%s: %w", operation, err))
}

// CreateAccountIfMissing registers an account unless it already exists.
func (store *Store) CreateAccountIfMissing(ctx context.Context, account ledger.Account) error {
	key := account.OwnerID.String()
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	if store.tx != nil {
		if _, ok := store.tx.accounts[key]; ok {
			return nil
		}
		if _, ok := current.accounts[key]; ok {
			return nil
		}
		store.tx.accounts[key] = account
		return nil
	}
	if _, ok := current.accounts[key]; ok {
		return nil
	}
	current.sequence++
	current.accountSequence[key] = current.sequence
	current.accounts[key] = account
	return nil
}

// GetAccount returns one account.
func (store *Store) GetAccount(ctx context.Context, ownerID ledger.OwnerID) (ledger.Account, error) {
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	account, ok := store.viewAccount(ownerID.String())
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return account, nil
}

func (store *Store) viewAccount(key string) (ledger.Account, bool) {
	if store.tx != nil {
		if account, ok := store.tx.accounts[key]; ok {
			return account, true
		}
	}
	account, ok := store.state.accounts[key]
	return account, ok
}

// ListAccounts returns accounts in registration order.
func (store *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	keys := make([]string, 0, len(current.accounts))
	for key := range current.accounts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(left, right int) bool {
		return current.accountSequence[keys[left]] < current.accountSequence[keys[right]]
	})
	if store.tx != nil {
		staged := make([]string, 0, len(store.tx.accounts))
		for key := range store.tx.accounts {
			if _, committed := current.accounts[key]; !committed {
				staged = append(staged, key)
			}
		}
		sort.Strings(staged)
		keys = append(keys, staged...)
	}
	accounts := make([]ledger.Account, 0, len(keys))
	for _, key := range keys {
		account, _ := store.viewAccount(key)
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// SetAccountFrozen sets the frozen flag.
func (store *Store) SetAccountFrozen(ctx context.Context, ownerID ledger.OwnerID, frozen bool, updatedAt time.Time) error {
	key := ownerID.String()
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	account, ok := store.viewAccount(key)
	if !ok {
		return ledger.ErrAccountNotFound
	}
	account.Frozen = frozen
	account.UpdatedAt = updatedAt
	if store.tx != nil {
		store.tx.accounts[key] = account
		return nil
	}
	current.accounts[key] = account
	return nil
}

// GetWallet returns the committed or staged wallet.
func (store *Store) GetWallet(ctx context.Context, ownerID ledger.OwnerID) (ledger.Wallet, error) {
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	wallet, ok := store.viewWallet(ownerID.String())
	if !ok {
		return ledger.Wallet{}, ledger.ErrWalletNotFound
	}
	return wallet, nil
}

// GetWalletForUpdate locks the owner's wallet key for the rest of the scope, even when absent.
func (store *Store) GetWalletForUpdate(ctx context.Context, ownerID ledger.OwnerID) (ledger.Wallet, error) {
	store.lock(lockPrefixWallet + ownerID.String())
	return store.GetWallet(ctx, ownerID)
}

func (store *Store) viewWallet(key string) (ledger.Wallet, bool) {
	if store.tx != nil {
		if wallet, ok := store.tx.wallets[key]; ok {
			return wallet, true
		}
	}
	wallet, ok := store.state.wallets[key]
	return wallet, ok
}

// CreateWallet inserts a new wallet.
func (store *Store) CreateWallet(ctx context.Context, wallet ledger.Wallet) error {
	key := wallet.OwnerID.String()
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	if _, exists := store.viewWallet(key); exists {
		return ledger.ErrWalletExists
	}
	if store.tx != nil {
		store.tx.wallets[key] = wallet
		return nil
	}
	current.wallets[key] = wallet
	return nil
}

// UpdateWalletBalance overwrites the available balance.
func (store *Store) UpdateWalletBalance(ctx context.Context, ownerID ledger.OwnerID, available ledger.AmountCents, updatedAt time.Time) error {
	key := ownerID.String()
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	wallet, ok := store.viewWallet(key)
	if !ok {
		return ledger.ErrWalletNotFound
	}
	wallet.AvailableBalance = available
	wallet.UpdatedAt = updatedAt
	if store.tx != nil {
		store.tx.wallets[key] = wallet
		return nil
	}
	current.wallets[key] = wallet
	return nil
}

// InsertTransaction appends a ledger transaction.
func (store *Store) InsertTransaction(ctx context.Context, transaction ledger.Transaction) error {
	id := transaction.TransactionID.String()
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	if _, exists := current.transactionIDs[id]; exists {
		return wrap("insert", "transaction", "duplicate", ledger.ErrDuplicateTransaction)
	}
	if store.tx != nil {
		for _, staged := range store.tx.transactions {
			if staged.TransactionID.String() == id {
				return wrap("insert", "transaction", "duplicate", ledger.ErrDuplicateTransaction)
			}
		}
		store.tx.transactions = append(store.tx.transactions, transaction)
		return nil
	}
	current.transactionIDs[id] = struct{}{}
	current.transactions = append(current.transactions, transaction)
	return nil
}

func (store *Store) ownerTransactions(ownerID ledger.OwnerID) []ledger.Transaction {
	var matches []ledger.Transaction
	collect := func(transactions []ledger.Transaction) {
		for _, transaction := range transactions {
			if transaction.OwnerID == ownerID {
				matches = append(matches, transaction)
			}
		}
	}
	collect(store.state.transactions)
	if store.tx != nil {
		collect(store.tx.transactions)
	}
	return matches
}

// ListTransactions returns the owner's transactions, newest first.
func (store *Store) ListTransactions(ctx context.Context, ownerID ledger.OwnerID, offset int, limit int) ([]ledger.Transaction, error) {
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	matches := store.ownerTransactions(ownerID)
	sort.SliceStable(matches, func(left, right int) bool {
		if !matches[left].CreatedAt.Equal(matches[right].CreatedAt) {
			return matches[left].CreatedAt.After(matches[right].CreatedAt)
		}
		return matches[left].TransactionID.String() > matches[right].TransactionID.String()
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matches) {
		return []ledger.Transaction{}, nil
	}
	end := len(matches)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page := make([]ledger.Transaction, end-offset)
	copy(page, matches[offset:end])
	return page, nil
}

// CountTransactions counts the owner's transactions.
func (store *Store) CountTransactions(ctx context.Context, ownerID ledger.OwnerID) (int64, error) {
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	return int64(len(store.ownerTransactions(ownerID))), nil
}

func (store *Store) viewWithdrawal(key string) (withdrawalRow, bool) {
	if store.tx != nil {
		if row, ok := store.tx.withdrawals[key]; ok {
			return row, true
		}
	}
	row, ok := store.state.withdrawals[key]
	return row, ok
}

// CreateWithdrawal inserts a withdrawal request.
func (store *Store) CreateWithdrawal(ctx context.Context, request ledger.WithdrawalRequest) error {
	key := request.WithdrawalID.String()
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	if _, exists := store.viewWithdrawal(key); exists {
		return wrap("insert", "withdrawal", "duplicate", ledger.ErrWithdrawalExists)
	}
	if store.tx != nil {
		store.tx.withdrawals[key] = withdrawalRow{request: request}
		return nil
	}
	current.sequence++
	current.withdrawals[key] = withdrawalRow{request: request, sequence: current.sequence}
	return nil
}

// GetWithdrawal returns one request.
func (store *Store) GetWithdrawal(ctx context.Context, withdrawalID ledger.WithdrawalID) (ledger.WithdrawalRequest, error) {
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	row, ok := store.viewWithdrawal(withdrawalID.String())
	if !ok {
		return ledger.WithdrawalRequest{}, ledger.ErrWithdrawalNotFound
	}
	return row.request, nil
}

// GetWithdrawalForUpdate locks the request for the rest of the scope.
func (store *Store) GetWithdrawalForUpdate(ctx context.Context, withdrawalID ledger.WithdrawalID) (ledger.WithdrawalRequest, error) {
	store.lock(lockPrefixWithdrawal + withdrawalID.String())
	return store.GetWithdrawal(ctx, withdrawalID)
}

// UpdateWithdrawalStatus applies the update only while the request is still in update.From.
func (store *Store) UpdateWithdrawalStatus(ctx context.Context, update ledger.WithdrawalStatusUpdate) error {
	key := update.WithdrawalID.String()
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	row, ok := store.viewWithdrawal(key)
	if !ok {
		return ledger.ErrWithdrawalNotFound
	}
	if row.request.Status != update.From {
		return ledger.ErrAlreadyProcessed
	}
	row.request.Status = update.To
	row.request.ProcessedAt = update.ProcessedAt
	row.request.ProcessedBy = update.ProcessedBy
	if store.tx != nil {
		store.tx.withdrawals[key] = row
		return nil
	}
	current.withdrawals[key] = row
	return nil
}

// ListWithdrawals returns matching requests, newest first unless filter.OldestFirst.
func (store *Store) ListWithdrawals(ctx context.Context, filter ledger.WithdrawalFilter) ([]ledger.WithdrawalRequest, error) {
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	rows := make(map[string]withdrawalRow, len(current.withdrawals))
	for key, row := range current.withdrawals {
		rows[key] = row
	}
	if store.tx != nil {
		for key, row := range store.tx.withdrawals {
			if existing, ok := current.withdrawals[key]; ok {
				row.sequence = existing.sequence
			} else {
				row.sequence = current.sequence + 1
			}
			rows[key] = row
		}
	}
	matches := make([]withdrawalRow, 0, len(rows))
	for _, row := range rows {
		if !filter.OwnerID.IsZero() && row.request.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && row.request.Status != filter.Status {
			continue
		}
		matches = append(matches, row)
	}
	sort.Slice(matches, func(left, right int) bool {
		leftRequest, rightRequest := matches[left].request, matches[right].request
		if !leftRequest.RequestedAt.Equal(rightRequest.RequestedAt) {
			if filter.OldestFirst {
				return leftRequest.RequestedAt.Before(rightRequest.RequestedAt)
			}
			return leftRequest.RequestedAt.After(rightRequest.RequestedAt)
		}
		if filter.OldestFirst {
			return matches[left].sequence < matches[right].sequence
		}
		return matches[left].sequence > matches[right].sequence
	})
	requests := make([]ledger.WithdrawalRequest, 0, len(matches))
	for _, row := range matches {
		requests = append(requests, row.request)
	}
	return requests, nil
}

func (store *Store) viewPayment(key string) (ledger.PaymentRecord, bool) {
	if store.tx != nil {
		if payment, ok := store.tx.payments[key]; ok {
			return payment, true
		}
	}
	payment, ok := store.state.payments[key]
	return payment, ok
}

// CreatePayment inserts a payment record keyed by order id.
func (store *Store) CreatePayment(ctx context.Context, payment ledger.PaymentRecord) error {
	key := payment.OrderID.String()
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	if _, exists := store.viewPayment(key); exists {
		return wrap("insert", "payment", "duplicate", ledger.ErrPaymentExists)
	}
	if store.tx != nil {
		store.tx.payments[key] = payment
		return nil
	}
	current.payments[key] = payment
	return nil
}

// GetPaymentForUpdate locks the order for the rest of the scope.
func (store *Store) GetPaymentForUpdate(ctx context.Context, orderID ledger.PaymentOrderID) (ledger.PaymentRecord, error) {
	key := orderID.String()
	store.lock(lockPrefixPayment + key)
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	payment, ok := store.viewPayment(key)
	if !ok {
		return ledger.PaymentRecord{}, ledger.ErrPaymentNotFound
	}
	return payment, nil
}

// MarkPaymentPaid settles the order unless it is already settled.
func (store *Store) MarkPaymentPaid(ctx context.Context, orderID ledger.PaymentOrderID, paymentID ledger.PaymentID, updatedAt time.Time) error {
	key := orderID.String()
	current := store.state
	current.mutex.Lock()
	defer current.mutex.Unlock()
	payment, ok := store.viewPayment(key)
	if !ok {
		return ledger.ErrPaymentNotFound
	}
	if payment.Settled() {
		return ledger.ErrPaymentAlreadySettled
	}
	payment.Status = ledger.PaymentStatusPaid
	payment.Verified = true
	payment.PaymentID = paymentID
	payment.UpdatedAt = updatedAt
	if store.tx != nil {
		store.tx.payments[key] = payment
		return nil
	}
	current.payments[key] = payment
	return nil
}
