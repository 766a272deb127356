package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// AmountCents is a non-negative amount in minor currency units.
type AmountCents int64

// PositiveAmountCents is a strictly positive amount in minor currency units.
type PositiveAmountCents int64

// SignedAmountCents is a non-zero signed delta in minor currency units.
type SignedAmountCents int64

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// Int64 returns the raw minor units.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// NewPositiveAmountCents validates a strictly positive amount.
func NewPositiveAmountCents(raw int64) (PositiveAmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmountCents)
	}
	return PositiveAmountCents(raw), nil
}

// Int64 returns the raw minor units.
func (amount PositiveAmountCents) Int64() int64 {
	return int64(amount)
}

// ToAmountCents widens the amount.
func (amount PositiveAmountCents) ToAmountCents() AmountCents {
	return AmountCents(amount)
}

// Credit returns the amount as a positive delta.
func (amount PositiveAmountCents) Credit() SignedAmountCents {
	return SignedAmountCents(amount)
}

// Debit returns the amount as a negative delta.
func (amount PositiveAmountCents) Debit() SignedAmountCents {
	return SignedAmountCents(-int64(amount))
}

// NewSignedAmountCents validates a non-zero delta.
func NewSignedAmountCents(raw int64) (SignedAmountCents, error) {
	if raw == 0 {
		return 0, fmt.Errorf("%w: must not be zero", ErrInvalidAmountCents)
	}
	if raw == math.MinInt64 {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmountCents)
	}
	return SignedAmountCents(raw), nil
}

// Int64 returns the raw minor units.
func (amount SignedAmountCents) Int64() int64 {
	return int64(amount)
}

// applyTo computes before + amount, rejecting negative results.
func (amount SignedAmountCents) applyTo(before AmountCents) (AmountCents, error) {
	delta := int64(amount)
	if delta > 0 && before.Int64() > math.MaxInt64-delta {
		return 0, fmt.Errorf("%w: balance overflow", ErrInvalidAmountCents)
	}
	after := before.Int64() + delta
	if after < 0 {
		return 0, ErrInsufficientBalance
	}
	return AmountCents(after), nil
}

// OwnerID identifies a wallet owner.
type OwnerID struct {
	value string
}

// AdminID identifies an administrator acting on the ledger.
type AdminID struct {
	value string
}

// WithdrawalID identifies a withdrawal request.
type WithdrawalID struct {
	value string
}

// TransactionID identifies a ledger transaction.
type TransactionID struct {
	value string
}

// ReferenceID links a transaction to its cause. The zero value means no reference.
type ReferenceID struct {
	value string
}

// PaymentOrderID is the external gateway order identifier.
type PaymentOrderID struct {
	value string
}

// PaymentID is the external gateway payment identifier.
type PaymentID struct {
	value string
}

func normalizeIdentifier(raw string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", sentinel)
	}
	return trimmed, nil
}

// NewOwnerID validates and normalizes an owner id.
func NewOwnerID(raw string) (OwnerID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidOwnerID)
	if err != nil {
		return OwnerID{}, err
	}
	return OwnerID{value: value}, nil
}

// String returns the normalized identifier.
func (id OwnerID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id OwnerID) IsZero() bool {
	return id.value == ""
}

// NewAdminID validates and normalizes an admin id.
func NewAdminID(raw string) (AdminID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidAdminID)
	if err != nil {
		return AdminID{}, err
	}
	return AdminID{value: value}, nil
}

// String returns the normalized identifier.
func (id AdminID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id AdminID) IsZero() bool {
	return id.value == ""
}

// NewWithdrawalID validates and normalizes a withdrawal id.
func NewWithdrawalID(raw string) (WithdrawalID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidWithdrawalID)
	if err != nil {
		return WithdrawalID{}, err
	}
	return WithdrawalID{value: value}, nil
}

// String returns the normalized identifier.
func (id WithdrawalID) String() string {
	return id.value
}

// NewTransactionID validates and normalizes a transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidTransactionID)
	if err != nil {
		return TransactionID{}, err
	}
	return TransactionID{value: value}, nil
}

// String returns the normalized identifier.
func (id TransactionID) String() string {
	return id.value
}

// NewReferenceID normalizes a reference id; blank input yields the zero value.
func NewReferenceID(raw string) ReferenceID {
	return ReferenceID{value: strings.TrimSpace(raw)}
}

// String returns the normalized reference.
func (id ReferenceID) String() string {
	return id.value
}

// IsZero reports whether the reference is unset.
func (id ReferenceID) IsZero() bool {
	return id.value == ""
}

// NewPaymentOrderID validates and normalizes a gateway order id.
func NewPaymentOrderID(raw string) (PaymentOrderID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidPaymentOrderID)
	if err != nil {
		return PaymentOrderID{}, err
	}
	return PaymentOrderID{value: value}, nil
}

// String returns the normalized identifier.
func (id PaymentOrderID) String() string {
	return id.value
}

// NewPaymentID validates and normalizes a gateway payment id.
func NewPaymentID(raw string) (PaymentID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidPaymentID)
	if err != nil {
		return PaymentID{}, err
	}
	return PaymentID{value: value}, nil
}

// String returns the normalized identifier.
func (id PaymentID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id PaymentID) IsZero() bool {
	return id.value == ""
}

// MetadataJSON stores arbitrary transaction metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// NewMetadataFields encodes a flat string map as metadata.
func NewMetadataFields(fields map[string]string) MetadataJSON {
	if len(fields) == 0 {
		return MetadataJSON{value: "{}"}
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return MetadataJSON{value: "{}"}
	}
	return MetadataJSON{value: string(encoded)}
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// Currency is an ISO 4217 code.
type Currency string

// NewCurrency validates a three-letter currency code.
func NewCurrency(raw string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if len(normalized) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, raw)
	}
	for _, character := range normalized {
		if character < 'A' || character > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, raw)
		}
	}
	return Currency(normalized), nil
}

// TransactionType enumerates ledger transaction kinds.
type TransactionType string

// TransactionTypeWithdrawalComplete is accepted for externally settled payouts; the workflow never writes it.
const (
	TransactionTypeDeposit            TransactionType = "deposit"
	TransactionTypeWithdrawalRequest  TransactionType = "withdrawal_request"
	TransactionTypeWithdrawalComplete TransactionType = "withdrawal_complete"
	TransactionTypeWithdrawalRefund   TransactionType = "withdrawal_refund"
	TransactionTypeAdminAdjustment    TransactionType = "admin_adjustment"
)

// ParseTransactionType validates a transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch candidate := TransactionType(strings.TrimSpace(raw)); candidate {
	case TransactionTypeDeposit, TransactionTypeWithdrawalRequest, TransactionTypeWithdrawalComplete, TransactionTypeWithdrawalRefund, TransactionTypeAdminAdjustment:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
	}
}

// TransactionStatus enumerates transaction states. Recorded transactions are always completed.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// ParseTransactionStatus validates a transaction status.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	switch candidate := TransactionStatus(strings.TrimSpace(raw)); candidate {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionStatus, raw)
	}
}

// WithdrawalStatus defines the withdrawal lifecycle.
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

// ParseWithdrawalStatus validates a withdrawal status.
func ParseWithdrawalStatus(raw string) (WithdrawalStatus, error) {
	switch candidate := WithdrawalStatus(strings.TrimSpace(raw)); candidate {
	case WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusRejected:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWithdrawalStatus, raw)
	}
}

// PaymentStatus defines the payment record lifecycle.
type PaymentStatus string

const (
	PaymentStatusCreated PaymentStatus = "created"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// ParsePaymentStatus validates a payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch candidate := PaymentStatus(strings.TrimSpace(raw)); candidate {
	case PaymentStatusCreated, PaymentStatusPaid, PaymentStatusFailed:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, raw)
	}
}

// AccountRole distinguishes regular users from administrators.
type AccountRole string

const (
	AccountRoleUser  AccountRole = "user"
	AccountRoleAdmin AccountRole = "admin"
)

// ParseAccountRole validates a role, defaulting blank input to user.
func ParseAccountRole(raw string) (AccountRole, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return AccountRoleUser, nil
	}
	switch candidate := AccountRole(trimmed); candidate {
	case AccountRoleUser, AccountRoleAdmin:
		return candidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountRole, raw)
	}
}

// Account is a registered wallet owner.
type Account struct {
	OwnerID   OwnerID
	Email     string
	Role      AccountRole
	Frozen    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Wallet holds the current balances of one owner.
type Wallet struct {
	OwnerID          OwnerID
	AvailableBalance AmountCents
	LockedBalance    AmountCents
	Currency         Currency
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transaction is an immutable ledger row.
type Transaction struct {
	TransactionID TransactionID
	OwnerID       OwnerID
	Type          TransactionType
	Amount        SignedAmountCents
	BalanceBefore AmountCents
	BalanceAfter  AmountCents
	Status        TransactionStatus
	ReferenceID   ReferenceID
	Metadata      MetadataJSON
	CreatedAt     time.Time
}

// TransactionPage is one page of an owner's history, newest first.
type TransactionPage struct {
	Items []Transaction
	Total int64
	Page  int
	Limit int
}

// PageRequest selects a page of history.
type PageRequest struct {
	Page  int
	Limit int
}

// NewPageRequest validates paging parameters; zero values take the defaults.
func NewPageRequest(page int, limit int) (PageRequest, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if page < 1 || page > MaxPage {
		return PageRequest{}, fmt.Errorf("%w: page must be between 1 and %d", ErrInvalidPagination, MaxPage)
	}
	if limit < 1 || limit > MaxPageLimit {
		return PageRequest{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidPagination, MaxPageLimit)
	}
	return PageRequest{Page: page, Limit: limit}, nil
}

// Offset returns the number of rows skipped before the page.
func (request PageRequest) Offset() int {
	return (request.Page - 1) * request.Limit
}

// WithdrawalRequest is a user's request to move money out of the wallet.
type WithdrawalRequest struct {
	WithdrawalID WithdrawalID
	OwnerID      OwnerID
	Amount       PositiveAmountCents
	Status       WithdrawalStatus
	RequestedAt  time.Time
	ProcessedAt  time.Time
	ProcessedBy  AdminID
}

// WithdrawalStatusUpdate transitions a request only if it is still in From.
type WithdrawalStatusUpdate struct {
	WithdrawalID WithdrawalID
	From         WithdrawalStatus
	To           WithdrawalStatus
	ProcessedAt  time.Time
	ProcessedBy  AdminID
}

// WithdrawalFilter narrows withdrawal listings. Zero fields match everything.
type WithdrawalFilter struct {
	OwnerID     OwnerID
	Status      WithdrawalStatus
	OldestFirst bool
}

// PaymentRecord tracks one gateway order.
type PaymentRecord struct {
	PaymentRecordID string
	OwnerID         OwnerID
	OrderID         PaymentOrderID
	PaymentID       PaymentID
	Amount          PositiveAmountCents
	Currency        Currency
	Status          PaymentStatus
	Verified        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Settled reports whether the payment has already been credited.
func (record PaymentRecord) Settled() bool {
	return record.Status == PaymentStatusPaid && record.Verified
}
