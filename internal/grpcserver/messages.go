package grpcserver

// WalletRequest identifies an owner.
type WalletRequest struct {
	OwnerID string `json:"owner_id"`
}

// WalletResponse reports balances in minor units.
type WalletResponse struct {
	OwnerID               string `json:"owner_id"`
	AvailableBalanceMinor int64  `json:"available_balance_minor"`
	LockedBalanceMinor    int64  `json:"locked_balance_minor"`
	Currency              string `json:"currency"`
	UpdatedUnixUTC        int64  `json:"updated_unix_utc"`
}

type ListTransactionsRequest struct {
	OwnerID string `json:"owner_id"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
}

type TransactionMessage struct {
	TransactionID      string `json:"transaction_id"`
	Type               string `json:"type"`
	AmountMinor        int64  `json:"amount_minor"`
	BalanceBeforeMinor int64  `json:"balance_before_minor"`
	BalanceAfterMinor  int64  `json:"balance_after_minor"`
	Status             string `json:"status"`
	ReferenceID        string `json:"reference_id"`
	MetadataJSON       string `json:"metadata_json"`
	CreatedUnixUTC     int64  `json:"created_unix_utc"`
}

type ListTransactionsResponse struct {
	Items []TransactionMessage `json:"items"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// BalanceChangeRequest applies a signed amount to one wallet.
type BalanceChangeRequest struct {
	OwnerID      string `json:"owner_id"`
	Type         string `json:"type"`
	AmountMinor  int64  `json:"amount_minor"`
	ReferenceID  string `json:"reference_id"`
	MetadataJSON string `json:"metadata_json"`
}

type BalanceChangeResponse struct {
	BalanceAfterMinor int64 `json:"balance_after_minor"`
}

// ReconcileDepositRequest carries a captured payment confirmed out of band.
type ReconcileDepositRequest struct {
	OrderID     string `json:"order_id"`
	PaymentID   string `json:"payment_id"`
	AmountMinor int64  `json:"amount_minor"`
}

type ReconcileDepositResponse struct {
	Credited          bool   `json:"credited"`
	Detail            string `json:"detail"`
	OwnerID           string `json:"owner_id"`
	BalanceAfterMinor int64  `json:"balance_after_minor"`
}

type CreateWithdrawalRequest struct {
	OwnerID     string `json:"owner_id"`
	AmountMinor int64  `json:"amount_minor"`
}

type ProcessWithdrawalRequest struct {
	WithdrawalID string `json:"withdrawal_id"`
	AdminID      string `json:"admin_id"`
}

type WithdrawalMessage struct {
	WithdrawalID     string `json:"withdrawal_id"`
	OwnerID          string `json:"owner_id"`
	AmountMinor      int64  `json:"amount_minor"`
	Status           string `json:"status"`
	RequestedUnixUTC int64  `json:"requested_unix_utc"`
	ProcessedUnixUTC int64  `json:"processed_unix_utc,omitempty"`
	ProcessedBy      string `json:"processed_by,omitempty"`
}

// ListWithdrawalsRequest lists one owner's requests, or pending requests when OwnerID is empty.
type ListWithdrawalsRequest struct {
	OwnerID string `json:"owner_id"`
}

type ListWithdrawalsResponse struct {
	Items []WithdrawalMessage `json:"items"`
}
