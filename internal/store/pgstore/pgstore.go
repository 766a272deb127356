package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolationCode   = "23505"
	errorOperationStore     = "store"
	errorSubjectAccount     = "account"
	errorSubjectWallet      = "wallet"
	errorSubjectTransaction = "transaction"
	errorSubjectWithdrawal  = "withdrawal"
	errorSubjectPayment     = "payment"
	errorSubjectSchema      = "schema"
	errorSubjectScope       = "scope"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeCount          = "count"
	errorCodeMigrate        = "migrate"
	errorCodeUpdate         = "update"
	errorCodeUpdateStatus   = "update_status"

	sqlInsertAccount = `
		insert into accounts(owner_id, email, role, frozen, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (owner_id) do nothing
	`

	sqlSelectAccount = `
		select owner_id, email, role, frozen, created_at, updated_at
		from accounts where owner_id = $1
	`

	sqlListAccounts = `
		select owner_id, email, role, frozen, created_at, updated_at
		from accounts order by created_at asc, owner_id asc
	`

	sqlUpdateAccountFrozen = `
		update accounts set frozen = $2, updated_at = $3 where owner_id = $1
	`

	sqlSelectWallet = `
		select owner_id, available_balance, locked_balance, currency, created_at, updated_at
		from wallets where owner_id = $1
	`

	sqlSelectWalletForUpdate = sqlSelectWallet + ` for update`

	sqlInsertWallet = `
		insert into wallets(owner_id, available_balance, locked_balance, currency, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (owner_id) do nothing
	`

	sqlUpdateWalletBalance = `
		update wallets set available_balance = $2, updated_at = $3 where owner_id = $1
	`

	sqlInsertTransaction = `
		insert into wallet_transactions(
			transaction_id, owner_id, type, amount, balance_before, balance_after, status, reference_id, metadata, created_at
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8, coalesce(nullif($9,''),'{}')::jsonb, $10)
	`

	sqlListTransactions = `
		select transaction_id, owner_id, type, amount, balance_before, balance_after, status, reference_id,
			coalesce(metadata::text,'{}'), created_at
		from wallet_transactions
		where owner_id = $1
		order by created_at desc, transaction_id desc
		offset $2 limit $3
	`

	sqlCountTransactions = `
		select count(*) from wallet_transactions where owner_id = $1
	`

	sqlInsertWithdrawal = `
		insert into withdrawal_requests(withdrawal_id, owner_id, amount, status, requested_at)
		values ($1, $2, $3, $4, $5)
	`

	sqlSelectWithdrawal = `
		select withdrawal_id, owner_id, amount, status, requested_at, processed_at, coalesce(processed_by,'')
		from withdrawal_requests where withdrawal_id = $1
	`

	sqlSelectWithdrawalForUpdate = sqlSelectWithdrawal + ` for update`

	sqlUpdateWithdrawalStatus = `
		update withdrawal_requests
		set status = $3, processed_at = $4, processed_by = $5
		where withdrawal_id = $1 and status = $2
	`

	sqlListWithdrawals = `
		select withdrawal_id, owner_id, amount, status, requested_at, processed_at, coalesce(processed_by,'')
		from withdrawal_requests
		where ($1 = '' or owner_id = $1) and ($2 = '' or status = $2)
	`

	sqlOrderOldestFirst = ` order by requested_at asc, withdrawal_id asc`
	sqlOrderNewestFirst = ` order by requested_at desc, withdrawal_id desc`

	sqlInsertPayment = `
		insert into payment_records(payment_record_id, owner_id, order_id, payment_id, amount, currency, status, verified, created_at, updated_at)
		values ($1, $2, $3, nullif($4,''), $5, $6, $7, $8, $9, $10)
	`

	sqlSelectPaymentForUpdate = `
		select payment_record_id, owner_id, order_id, coalesce(payment_id,''), amount, currency, status, verified, created_at, updated_at
		from payment_records where order_id = $1
		for update
	`

	sqlMarkPaymentPaid = `
		update payment_records
		set status = 'paid', verified = true, payment_id = $2, updated_at = $3
		where order_id = $1 and not (status = 'paid' and verified)
	`

	sqlPaymentExists = `
		select exists(select 1 from payment_records where order_id = $1)
	`
)

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Store = (*TxStore)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// queries holds the statements shared by Store and TxStore.
type queries struct {
	db querier
}

// Store implements ledger.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements ledger.Store for an active transaction.
type TxStore struct {
	queries
	tx pgx.Tx
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// Migrate applies the embedded schema.
func (store *Store) Migrate(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, schemaSQL); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectScope, errorCodeBegin, err)
	}
	transactionStore := &TxStore{queries: queries{db: tx}, tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectScope, errorCodeCommit, err)
	}
	return nil
}

// WithTx joins the open transaction.
func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, store)
}

func (q queries) CreateAccountIfMissing(ctx context.Context, account ledger.Account) error {
	_, err := q.db.Exec(ctx, sqlInsertAccount,
		account.OwnerID.String(),
		account.Email,
		string(account.Role),
		account.Frozen,
		account.CreatedAt.UTC(),
		account.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (q queries) GetAccount(ctx context.Context, ownerID ledger.OwnerID) (ledger.Account, error) {
	account, err := scanAccount(q.db.QueryRow(ctx, sqlSelectAccount, ownerID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrAccountNotFound)
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return account, nil
}

func (q queries) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := q.db.Query(ctx, sqlListAccounts)
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	defer rows.Close()
	var accounts []ledger.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	return accounts, nil
}

func (q queries) SetAccountFrozen(ctx context.Context, ownerID ledger.OwnerID, frozen bool, updatedAt time.Time) error {
	tag, err := q.db.Exec(ctx, sqlUpdateAccountFrozen, ownerID.String(), frozen, updatedAt.UTC())
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrAccountNotFound)
	}
	return nil
}

func (q queries) GetWallet(ctx context.Context, ownerID ledger.OwnerID) (ledger.Wallet, error) {
	return q.selectWallet(ctx, sqlSelectWallet, ownerID)
}

func (q queries) GetWalletForUpdate(ctx context.Context, ownerID ledger.OwnerID) (ledger.Wallet, error) {
	return q.selectWallet(ctx, sqlSelectWalletForUpdate, ownerID)
}

func (q queries) selectWallet(ctx context.Context, statement string, ownerID ledger.OwnerID) (ledger.Wallet, error) {
	var (
		ownerValue string
		available  int64
		locked     int64
		currency   string
		wallet     ledger.Wallet
	)
	err := q.db.QueryRow(ctx, statement, ownerID.String()).Scan(&ownerValue, &available, &locked, &currency, &wallet.CreatedAt, &wallet.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, ledger.ErrWalletNotFound)
	}
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	if wallet.OwnerID, err = ledger.NewOwnerID(ownerValue); err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	if wallet.AvailableBalance, err = ledger.NewAmountCents(available); err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	if wallet.LockedBalance, err = ledger.NewAmountCents(locked); err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	if wallet.Currency, err = ledger.NewCurrency(currency); err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	wallet.CreatedAt = wallet.CreatedAt.UTC()
	wallet.UpdatedAt = wallet.UpdatedAt.UTC()
	return wallet, nil
}

func (q queries) CreateWallet(ctx context.Context, wallet ledger.Wallet) error {
	tag, err := q.db.Exec(ctx, sqlInsertWallet,
		wallet.OwnerID.String(),
		wallet.AvailableBalance.Int64(),
		wallet.LockedBalance.Int64(),
		string(wallet.Currency),
		wallet.CreatedAt.UTC(),
		wallet.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeCreate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectWallet, errorCodeDuplicate, ledger.ErrWalletExists)
	}
	return nil
}

func (q queries) UpdateWalletBalance(ctx context.Context, ownerID ledger.OwnerID, available ledger.AmountCents, updatedAt time.Time) error {
	tag, err := q.db.Exec(ctx, sqlUpdateWalletBalance, ownerID.String(), available.Int64(), updatedAt.UTC())
	if err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, ledger.ErrWalletNotFound)
	}
	return nil
}

func (q queries) InsertTransaction(ctx context.Context, transaction ledger.Transaction) error {
	_, err := q.db.Exec(ctx, sqlInsertTransaction,
		transaction.TransactionID.String(),
		transaction.OwnerID.String(),
		string(transaction.Type),
		transaction.Amount.Int64(),
		transaction.BalanceBefore.Int64(),
		transaction.BalanceAfter.Int64(),
		string(transaction.Status),
		transaction.ReferenceID.String(),
		transaction.Metadata.String(),
		transaction.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateTransaction)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (q queries) ListTransactions(ctx context.Context, ownerID ledger.OwnerID, offset int, limit int) ([]ledger.Transaction, error) {
	rows, err := q.db.Query(ctx, sqlListTransactions, ownerID.String(), offset, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()
	var transactions []ledger.Transaction
	for rows.Next() {
		var (
			transactionValue string
			ownerValue       string
			typeValue        string
			amount           int64
			before           int64
			after            int64
			statusValue      string
			referenceValue   string
			metadataValue    string
			createdAt        time.Time
		)
		if err := rows.Scan(&transactionValue, &ownerValue, &typeValue, &amount, &before, &after, &statusValue, &referenceValue, &metadataValue, &createdAt); err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
		}
		transaction, err := buildTransaction(transactionValue, ownerValue, typeValue, amount, before, after, statusValue, referenceValue, metadataValue, createdAt)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	return transactions, nil
}

func (q queries) CountTransactions(ctx context.Context, ownerID ledger.OwnerID) (int64, error) {
	var total int64
	if err := q.db.QueryRow(ctx, sqlCountTransactions, ownerID.String()).Scan(&total); err != nil {
		return 0, wrapStoreError(errorSubjectTransaction, errorCodeCount, err)
	}
	return total, nil
}

func (q queries) CreateWithdrawal(ctx context.Context, request ledger.WithdrawalRequest) error {
	_, err := q.db.Exec(ctx, sqlInsertWithdrawal,
		request.WithdrawalID.String(),
		request.OwnerID.String(),
		request.Amount.Int64(),
		string(request.Status),
		request.RequestedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeDuplicate, ledger.ErrWithdrawalExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeCreate, err)
	}
	return nil
}

func (q queries) GetWithdrawal(ctx context.Context, withdrawalID ledger.WithdrawalID) (ledger.WithdrawalRequest, error) {
	return q.selectWithdrawal(ctx, sqlSelectWithdrawal, withdrawalID)
}

func (q queries) GetWithdrawalForUpdate(ctx context.Context, withdrawalID ledger.WithdrawalID) (ledger.WithdrawalRequest, error) {
	return q.selectWithdrawal(ctx, sqlSelectWithdrawalForUpdate, withdrawalID)
}

func (q queries) selectWithdrawal(ctx context.Context, statement string, withdrawalID ledger.WithdrawalID) (ledger.WithdrawalRequest, error) {
	request, err := scanWithdrawal(q.db.QueryRow(ctx, statement, withdrawalID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, ledger.ErrWithdrawalNotFound)
	}
	if err != nil {
		return ledger.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, err)
	}
	return request, nil
}

func (q queries) UpdateWithdrawalStatus(ctx context.Context, update ledger.WithdrawalStatusUpdate) error {
	tag, err := q.db.Exec(ctx, sqlUpdateWithdrawalStatus,
		update.WithdrawalID.String(),
		string(update.From),
		string(update.To),
		update.ProcessedAt.UTC(),
		update.ProcessedBy.String(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := q.GetWithdrawal(ctx, update.WithdrawalID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, ledger.ErrAlreadyProcessed)
	}
	return nil
}

func (q queries) ListWithdrawals(ctx context.Context, filter ledger.WithdrawalFilter) ([]ledger.WithdrawalRequest, error) {
	statement := sqlListWithdrawals + sqlOrderNewestFirst
	if filter.OldestFirst {
		statement = sqlListWithdrawals + sqlOrderOldestFirst
	}
	rows, err := q.db.Query(ctx, statement, filter.OwnerID.String(), string(filter.Status))
	if err != nil {
		return nil, wrapStoreError(errorSubjectWithdrawal, errorCodeList, err)
	}
	defer rows.Close()
	var requests []ledger.WithdrawalRequest
	for rows.Next() {
		request, err := scanWithdrawal(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectWithdrawal, errorCodeList, err)
	}
	return requests, nil
}

func (q queries) CreatePayment(ctx context.Context, payment ledger.PaymentRecord) error {
	_, err := q.db.Exec(ctx, sqlInsertPayment,
		payment.PaymentRecordID,
		payment.OwnerID.String(),
		payment.OrderID.String(),
		payment.PaymentID.String(),
		payment.Amount.Int64(),
		string(payment.Currency),
		string(payment.Status),
		payment.Verified,
		payment.CreatedAt.UTC(),
		payment.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, ledger.ErrPaymentExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeCreate, err)
	}
	return nil
}

func (q queries) GetPaymentForUpdate(ctx context.Context, orderID ledger.PaymentOrderID) (ledger.PaymentRecord, error) {
	var (
		recordID     string
		ownerValue   string
		orderValue   string
		paymentValue string
		amount       int64
		currency     string
		statusValue  string
		record       ledger.PaymentRecord
	)
	err := q.db.QueryRow(ctx, sqlSelectPaymentForUpdate, orderID.String()).Scan(
		&recordID, &ownerValue, &orderValue, &paymentValue, &amount, &currency, &statusValue, &record.Verified, &record.CreatedAt, &record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeGet, ledger.ErrPaymentNotFound)
	}
	if err != nil {
		return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	record.PaymentRecordID = recordID
	if record.OwnerID, err = ledger.NewOwnerID(ownerValue); err != nil {
		return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	if record.OrderID, err = ledger.NewPaymentOrderID(orderValue); err != nil {
		return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	if paymentValue != "" {
		if record.PaymentID, err = ledger.NewPaymentID(paymentValue); err != nil {
			return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
		}
	}
	if record.Amount, err = ledger.NewPositiveAmountCents(amount); err != nil {
		return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	if record.Currency, err = ledger.NewCurrency(currency); err != nil {
		return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	if record.Status, err = ledger.ParsePaymentStatus(statusValue); err != nil {
		return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func (q queries) MarkPaymentPaid(ctx context.Context, orderID ledger.PaymentOrderID, paymentID ledger.PaymentID, updatedAt time.Time) error {
	tag, err := q.db.Exec(ctx, sqlMarkPaymentPaid, orderID.String(), paymentID.String(), updatedAt.UTC())
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := q.db.QueryRow(ctx, sqlPaymentExists, orderID.String()).Scan(&exists); err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, err)
	}
	if !exists {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, ledger.ErrPaymentNotFound)
	}
	return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, ledger.ErrPaymentAlreadySettled)
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var (
		ownerValue string
		roleValue  string
		account    ledger.Account
	)
	if err := row.Scan(&ownerValue, &account.Email, &roleValue, &account.Frozen, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return ledger.Account{}, err
	}
	ownerID, err := ledger.NewOwnerID(ownerValue)
	if err != nil {
		return ledger.Account{}, err
	}
	role, err := ledger.ParseAccountRole(roleValue)
	if err != nil {
		return ledger.Account{}, err
	}
	account.OwnerID = ownerID
	account.Role = role
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return account, nil
}

func scanWithdrawal(row pgx.Row) (ledger.WithdrawalRequest, error) {
	var (
		withdrawalValue string
		ownerValue      string
		amount          int64
		statusValue     string
		requestedAt     time.Time
		processedAt     *time.Time
		processedBy     string
	)
	if err := row.Scan(&withdrawalValue, &ownerValue, &amount, &statusValue, &requestedAt, &processedAt, &processedBy); err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	withdrawalID, err := ledger.NewWithdrawalID(withdrawalValue)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	ownerID, err := ledger.NewOwnerID(ownerValue)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	positive, err := ledger.NewPositiveAmountCents(amount)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	status, err := ledger.ParseWithdrawalStatus(statusValue)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	request := ledger.WithdrawalRequest{
		WithdrawalID: withdrawalID,
		OwnerID:      ownerID,
		Amount:       positive,
		Status:       status,
		RequestedAt:  requestedAt.UTC(),
	}
	if processedAt != nil {
		request.ProcessedAt = processedAt.UTC()
	}
	if processedBy != "" {
		adminID, err := ledger.NewAdminID(processedBy)
		if err != nil {
			return ledger.WithdrawalRequest{}, err
		}
		request.ProcessedBy = adminID
	}
	return request, nil
}

func buildTransaction(transactionValue, ownerValue, typeValue string, amount, before, after int64, statusValue, referenceValue, metadataValue string, createdAt time.Time) (ledger.Transaction, error) {
	transactionID, err := ledger.NewTransactionID(transactionValue)
	if err != nil {
		return ledger.Transaction{}, err
	}
	ownerID, err := ledger.NewOwnerID(ownerValue)
	if err != nil {
		return ledger.Transaction{}, err
	}
	transactionType, err := ledger.ParseTransactionType(typeValue)
	if err != nil {
		return ledger.Transaction{}, err
	}
	signedAmount, err := ledger.NewSignedAmountCents(amount)
	if err != nil {
		return ledger.Transaction{}, err
	}
	balanceBefore, err := ledger.NewAmountCents(before)
	if err != nil {
		return ledger.Transaction{}, err
	}
	balanceAfter, err := ledger.NewAmountCents(after)
	if err != nil {
		return ledger.Transaction{}, err
	}
	status, err := ledger.ParseTransactionStatus(statusValue)
	if err != nil {
		return ledger.Transaction{}, err
	}
	metadata, err := ledger.NewMetadataJSON(metadataValue)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return ledger.Transaction{
		TransactionID: transactionID,
		OwnerID:       ownerID,
		Type:          transactionType,
		Amount:        signedAmount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Status:        status,
		ReferenceID:   ledger.NewReferenceID(referenceValue),
		Metadata:      metadata,
		CreatedAt:     createdAt.UTC(),
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}
