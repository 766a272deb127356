package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account mirrors the accounts table.
type Account struct {
	OwnerID   string    `gorm:"primaryKey"`
	Email     string    `gorm:"not null;default:''"`
	Role      string    `gorm:"not null"`
	Frozen    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// Wallet mirrors the wallets table.
type Wallet struct {
	OwnerID          string    `gorm:"primaryKey"`
	AvailableBalance int64     `gorm:"not null;default:0;check:available_balance >= 0"`
	LockedBalance    int64     `gorm:"not null;default:0"`
	Currency         string    `gorm:"size:3;not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

// WalletTransaction mirrors the wallet_transactions table.
type WalletTransaction struct {
	TransactionID string         `gorm:"primaryKey"`
	OwnerID       string         `gorm:"not null;index:idx_wallet_transactions_owner_created,priority:1"`
	Type          string         `gorm:"not null"`
	Amount        int64          `gorm:"not null"`
	BalanceBefore int64          `gorm:"not null"`
	BalanceAfter  int64          `gorm:"not null"`
	Status        string         `gorm:"not null"`
	ReferenceID   string         `gorm:"not null;default:'';index"`
	Metadata      datatypes.JSON `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_wallet_transactions_owner_created,priority:2"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

// WithdrawalRequest mirrors the withdrawal_requests table.
type WithdrawalRequest struct {
	WithdrawalID string     `gorm:"primaryKey"`
	OwnerID      string     `gorm:"not null;index"`
	Amount       int64      `gorm:"not null"`
	Status       string     `gorm:"not null;index:idx_withdrawal_requests_status_requested,priority:1"`
	RequestedAt  time.Time  `gorm:"not null;index:idx_withdrawal_requests_status_requested,priority:2"`
	ProcessedAt  *time.Time `gorm:""`
	ProcessedBy  *string    `gorm:""`
}

func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }

func (request *WithdrawalRequest) BeforeCreate(tx *gorm.DB) error {
	if request.WithdrawalID == "" {
		request.WithdrawalID = uuid.NewString()
	}
	return nil
}

// PaymentRecord mirrors the payment_records table.
type PaymentRecord struct {
	PaymentRecordID string    `gorm:"primaryKey"`
	OwnerID         string    `gorm:"not null;index"`
	OrderID         string    `gorm:"not null;uniqueIndex"`
	PaymentID       *string   `gorm:""`
	Amount          int64     `gorm:"not null"`
	Currency        string    `gorm:"size:3;not null"`
	Status          string    `gorm:"not null"`
	Verified        bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

func (record *PaymentRecord) BeforeCreate(tx *gorm.DB) error {
	if record.PaymentRecordID == "" {
		record.PaymentRecordID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Account{},
		&Wallet{},
		&WalletTransaction{},
		&WithdrawalRequest{},
		&PaymentRecord{},
	}
}
