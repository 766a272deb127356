package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON     = "{}"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	errorOperationStore     = "store"
	errorSubjectAccount     = "account"
	errorSubjectWallet      = "wallet"
	errorSubjectTransaction = "transaction"
	errorSubjectWithdrawal  = "withdrawal"
	errorSubjectPayment     = "payment"
	errorSubjectSchema      = "schema"
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
)

var _ ledger.Store = (*Store)(nil)

// Store implements ledger.Store using GORM.
type Store struct {
	db   *gorm.DB
	inTx bool
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the wallet tables.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

// WithTx executes fn within a transaction. Nested calls join the open transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, inTx: true})
	})
}

func (store *Store) forUpdate(ctx context.Context) *gorm.DB {
	return store.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (store *Store) CreateAccountIfMissing(ctx context.Context, account ledger.Account) error {
	model := Account{
		OwnerID:   account.OwnerID.String(),
		Email:     account.Email,
		Role:      string(account.Role),
		Frozen:    account.Frozen,
		CreatedAt: account.CreatedAt.UTC(),
		UpdatedAt: account.UpdatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, ownerID ledger.OwnerID) (ledger.Account, error) {
	var model Account
	err := store.db.WithContext(ctx).Where("owner_id = ?", ownerID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrAccountNotFound)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

func (store *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	var rows []Account
	if err := store.db.WithContext(ctx).Order("created_at ASC, owner_id ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	accounts := make([]ledger.Account, 0, len(rows))
	for _, row := range rows {
		account, err := mapAccount(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (store *Store) SetAccountFrozen(ctx context.Context, ownerID ledger.OwnerID, frozen bool, updatedAt time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("owner_id = ?", ownerID.String()).
		Updates(map[string]any{"frozen": frozen, "updated_at": updatedAt.UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) GetWallet(ctx context.Context, ownerID ledger.OwnerID) (ledger.Wallet, error) {
	return store.takeWallet(store.db.WithContext(ctx), ownerID)
}

func (store *Store) GetWalletForUpdate(ctx context.Context, ownerID ledger.OwnerID) (ledger.Wallet, error) {
	return store.takeWallet(store.forUpdate(ctx), ownerID)
}

func (store *Store) takeWallet(query *gorm.DB, ownerID ledger.OwnerID) (ledger.Wallet, error) {
	var model Wallet
	err := query.Where("owner_id = ?", ownerID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, ledger.ErrWalletNotFound)
		}
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	wallet, err := mapWallet(model)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	return wallet, nil
}

func (store *Store) CreateWallet(ctx context.Context, wallet ledger.Wallet) error {
	model := Wallet{
		OwnerID:          wallet.OwnerID.String(),
		AvailableBalance: wallet.AvailableBalance.Int64(),
		LockedBalance:    wallet.LockedBalance.Int64(),
		Currency:         string(wallet.Currency),
		CreatedAt:        wallet.CreatedAt.UTC(),
		UpdatedAt:        wallet.UpdatedAt.UTC(),
	}
	result := store.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if result.Error != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeCreate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWallet, errorCodeDuplicate, ledger.ErrWalletExists)
	}
	return nil
}

func (store *Store) UpdateWalletBalance(ctx context.Context, ownerID ledger.OwnerID, available ledger.AmountCents, updatedAt time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("owner_id = ?", ownerID.String()).
		Updates(map[string]any{"available_balance": available.Int64(), "updated_at": updatedAt.UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, ledger.ErrWalletNotFound)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction ledger.Transaction) error {
	model := WalletTransaction{
		TransactionID: transaction.TransactionID.String(),
		OwnerID:       transaction.OwnerID.String(),
		Type:          string(transaction.Type),
		Amount:        transaction.Amount.Int64(),
		BalanceBefore: transaction.BalanceBefore.Int64(),
		BalanceAfter:  transaction.BalanceAfter.Int64(),
		Status:        string(transaction.Status),
		ReferenceID:   transaction.ReferenceID.String(),
		Metadata:      datatypesJSON(transaction.Metadata.String()),
		CreatedAt:     transaction.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateTransaction)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, ownerID ledger.OwnerID, offset int, limit int) ([]ledger.Transaction, error) {
	var rows []WalletTransaction
	err := store.db.WithContext(ctx).
		Where("owner_id = ?", ownerID.String()).
		Order("created_at DESC, transaction_id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) CountTransactions(ctx context.Context, ownerID ledger.OwnerID) (int64, error) {
	var total int64
	err := store.db.WithContext(ctx).
		Model(&WalletTransaction{}).
		Where("owner_id = ?", ownerID.String()).
		Count(&total).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectTransaction, errorCodeCount, err)
	}
	return total, nil
}

func (store *Store) CreateWithdrawal(ctx context.Context, request ledger.WithdrawalRequest) error {
	model := WithdrawalRequest{
		WithdrawalID: request.WithdrawalID.String(),
		OwnerID:      request.OwnerID.String(),
		Amount:       request.Amount.Int64(),
		Status:       string(request.Status),
		RequestedAt:  request.RequestedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeDuplicate, ledger.ErrWithdrawalExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetWithdrawal(ctx context.Context, withdrawalID ledger.WithdrawalID) (ledger.WithdrawalRequest, error) {
	return store.takeWithdrawal(store.db.WithContext(ctx), withdrawalID)
}

func (store *Store) GetWithdrawalForUpdate(ctx context.Context, withdrawalID ledger.WithdrawalID) (ledger.WithdrawalRequest, error) {
	return store.takeWithdrawal(store.forUpdate(ctx), withdrawalID)
}

func (store *Store) takeWithdrawal(query *gorm.DB, withdrawalID ledger.WithdrawalID) (ledger.WithdrawalRequest, error) {
	var model WithdrawalRequest
	err := query.Where("withdrawal_id = ?", withdrawalID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, ledger.ErrWithdrawalNotFound)
		}
		return ledger.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, err)
	}
	request, err := mapWithdrawal(model)
	if err != nil {
		return ledger.WithdrawalRequest{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	return request, nil
}

func (store *Store) UpdateWithdrawalStatus(ctx context.Context, update ledger.WithdrawalStatusUpdate) error {
	processedAt := update.ProcessedAt.UTC()
	processedBy := update.ProcessedBy.String()
	result := store.db.WithContext(ctx).
		Model(&WithdrawalRequest{}).
		Where("withdrawal_id = ? AND status = ?", update.WithdrawalID.String(), string(update.From)).
		Updates(map[string]any{
			"status":       string(update.To),
			"processed_at": &processedAt,
			"processed_by": &processedBy,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetWithdrawal(ctx, update.WithdrawalID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, ledger.ErrAlreadyProcessed)
	}
	return nil
}

func (store *Store) ListWithdrawals(ctx context.Context, filter ledger.WithdrawalFilter) ([]ledger.WithdrawalRequest, error) {
	query := store.db.WithContext(ctx).Model(&WithdrawalRequest{})
	if !filter.OwnerID.IsZero() {
		query = query.Where("owner_id = ?", filter.OwnerID.String())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.OldestFirst {
		query = query.Order("requested_at ASC, withdrawal_id ASC")
	} else {
		query = query.Order("requested_at DESC, withdrawal_id DESC")
	}
	var rows []WithdrawalRequest
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectWithdrawal, errorCodeList, err)
	}
	requests := make([]ledger.WithdrawalRequest, 0, len(rows))
	for _, row := range rows {
		request, err := mapWithdrawal(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
		}
		requests = append(requests, request)
	}
	return requests, nil
}

func (store *Store) CreatePayment(ctx context.Context, payment ledger.PaymentRecord) error {
	model := PaymentRecord{
		PaymentRecordID: payment.PaymentRecordID,
		OwnerID:         payment.OwnerID.String(),
		OrderID:         payment.OrderID.String(),
		Amount:          payment.Amount.Int64(),
		Currency:        string(payment.Currency),
		Status:          string(payment.Status),
		Verified:        payment.Verified,
		CreatedAt:       payment.CreatedAt.UTC(),
		UpdatedAt:       payment.UpdatedAt.UTC(),
	}
	if !payment.PaymentID.IsZero() {
		paymentID := payment.PaymentID.String()
		model.PaymentID = &paymentID
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, ledger.ErrPaymentExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetPaymentForUpdate(ctx context.Context, orderID ledger.PaymentOrderID) (ledger.PaymentRecord, error) {
	var model PaymentRecord
	err := store.forUpdate(ctx).Where("order_id = ?", orderID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeGet, ledger.ErrPaymentNotFound)
		}
		return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	record, err := mapPayment(model)
	if err != nil {
		return ledger.PaymentRecord{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return record, nil
}

func (store *Store) MarkPaymentPaid(ctx context.Context, orderID ledger.PaymentOrderID, paymentID ledger.PaymentID, updatedAt time.Time) error {
	paymentValue := paymentID.String()
	result := store.db.WithContext(ctx).
		Model(&PaymentRecord{}).
		Where("order_id = ? AND NOT (status = ? AND verified = ?)", orderID.String(), string(ledger.PaymentStatusPaid), true).
		Updates(map[string]any{
			"status":     string(ledger.PaymentStatusPaid),
			"verified":   true,
			"payment_id": &paymentValue,
			"updated_at": updatedAt.UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := store.db.WithContext(ctx).Model(&PaymentRecord{}).Where("order_id = ?", orderID.String()).Count(&count).Error; err != nil {
			return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, err)
		}
		if count == 0 {
			return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, ledger.ErrPaymentNotFound)
		}
		return wrapStoreError(errorSubjectPayment, errorCodeUpdateStatus, ledger.ErrPaymentAlreadySettled)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func mapAccount(row Account) (ledger.Account, error) {
	ownerID, err := ledger.NewOwnerID(row.OwnerID)
	if err != nil {
		return ledger.Account{}, err
	}
	role, err := ledger.ParseAccountRole(row.Role)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{
		OwnerID:   ownerID,
		Email:     row.Email,
		Role:      role,
		Frozen:    row.Frozen,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func mapWallet(row Wallet) (ledger.Wallet, error) {
	ownerID, err := ledger.NewOwnerID(row.OwnerID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	available, err := ledger.NewAmountCents(row.AvailableBalance)
	if err != nil {
		return ledger.Wallet{}, err
	}
	locked, err := ledger.NewAmountCents(row.LockedBalance)
	if err != nil {
		return ledger.Wallet{}, err
	}
	currency, err := ledger.NewCurrency(row.Currency)
	if err != nil {
		return ledger.Wallet{}, err
	}
	return ledger.Wallet{
		OwnerID:          ownerID,
		AvailableBalance: available,
		LockedBalance:    locked,
		Currency:         currency,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}, nil
}

func mapTransaction(row WalletTransaction) (ledger.Transaction, error) {
	transactionID, err := ledger.NewTransactionID(row.TransactionID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	ownerID, err := ledger.NewOwnerID(row.OwnerID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	transactionType, err := ledger.ParseTransactionType(row.Type)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount, err := ledger.NewSignedAmountCents(row.Amount)
	if err != nil {
		return ledger.Transaction{}, err
	}
	before, err := ledger.NewAmountCents(row.BalanceBefore)
	if err != nil {
		return ledger.Transaction{}, err
	}
	after, err := ledger.NewAmountCents(row.BalanceAfter)
	if err != nil {
		return ledger.Transaction{}, err
	}
	status, err := ledger.ParseTransactionStatus(row.Status)
	if err != nil {
		return ledger.Transaction{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Transaction{}, err
	}
	return ledger.Transaction{
		TransactionID: transactionID,
		OwnerID:       ownerID,
		Type:          transactionType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        status,
		ReferenceID:   ledger.NewReferenceID(row.ReferenceID),
		Metadata:      metadata,
		CreatedAt:     row.CreatedAt.UTC(),
	}, nil
}

func mapWithdrawal(row WithdrawalRequest) (ledger.WithdrawalRequest, error) {
	withdrawalID, err := ledger.NewWithdrawalID(row.WithdrawalID)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	ownerID, err := ledger.NewOwnerID(row.OwnerID)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	amount, err := ledger.NewPositiveAmountCents(row.Amount)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	status, err := ledger.ParseWithdrawalStatus(row.Status)
	if err != nil {
		return ledger.WithdrawalRequest{}, err
	}
	request := ledger.WithdrawalRequest{
		WithdrawalID: withdrawalID,
		OwnerID:      ownerID,
		Amount:       amount,
		Status:       status,
		RequestedAt:  row.RequestedAt.UTC(),
	}
	if row.ProcessedAt != nil {
		request.ProcessedAt = row.ProcessedAt.UTC()
	}
	if row.ProcessedBy != nil && *row.ProcessedBy != "" {
		adminID, err := ledger.NewAdminID(*row.ProcessedBy)
		if err != nil {
			return ledger.WithdrawalRequest{}, err
		}
		request.ProcessedBy = adminID
	}
	return request, nil
}

func mapPayment(row PaymentRecord) (ledger.PaymentRecord, error) {
	ownerID, err := ledger.NewOwnerID(row.OwnerID)
	if err != nil {
		return ledger.PaymentRecord{}, err
	}
	orderID, err := ledger.NewPaymentOrderID(row.OrderID)
	if err != nil {
		return ledger.PaymentRecord{}, err
	}
	amount, err := ledger.NewPositiveAmountCents(row.Amount)
	if err != nil {
		return ledger.PaymentRecord{}, err
	}
	status, err := ledger.ParsePaymentStatus(row.Status)
	if err != nil {
		return ledger.PaymentRecord{}, err
	}
	currency, err := ledger.NewCurrency(row.Currency)
	if err != nil {
		return ledger.PaymentRecord{}, err
	}
	record := ledger.PaymentRecord{
		PaymentRecordID: row.PaymentRecordID,
		OwnerID:         ownerID,
		OrderID:         orderID,
		Amount:          amount,
		Currency:        currency,
		Status:          status,
		Verified:        row.Verified,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.PaymentID != nil && *row.PaymentID != "" {
		paymentID, err := ledger.NewPaymentID(*row.PaymentID)
		if err != nil {
			return ledger.PaymentRecord{}, err
		}
		record.PaymentID = paymentID
	}
	return record, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
