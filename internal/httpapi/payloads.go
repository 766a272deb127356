package httpapi

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"github.com/shopspring/decimal"
)

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type adjustmentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type walletPayload struct {
	OwnerID               string `json:"owner_id"`
	AvailableBalance      string `json:"available_balance"`
	AvailableBalanceMinor int64  `json:"available_balance_minor"`
	LockedBalance         string `json:"locked_balance"`
	LockedBalanceMinor    int64  `json:"locked_balance_minor"`
	Currency              string `json:"currency"`
	UpdatedAt             string `json:"updated_at"`
}

type transactionPayload struct {
	TransactionID string          `json:"transaction_id"`
	Type          string          `json:"type"`
	Amount        string          `json:"amount"`
	AmountMinor   int64           `json:"amount_minor"`
	BalanceBefore string          `json:"balance_before"`
	BalanceAfter  string          `json:"balance_after"`
	Status        string          `json:"status"`
	ReferenceID   string          `json:"reference_id"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     string          `json:"created_at"`
}

type transactionPagePayload struct {
	Items []transactionPayload `json:"items"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

type withdrawalPayload struct {
	WithdrawalID string `json:"withdrawal_id"`
	OwnerID      string `json:"owner_id"`
	Amount       string `json:"amount"`
	AmountMinor  int64  `json:"amount_minor"`
	Status       string `json:"status"`
	RequestedAt  string `json:"requested_at"`
	ProcessedAt  string `json:"processed_at,omitempty"`
	ProcessedBy  string `json:"processed_by,omitempty"`
}

type accountPayload struct {
	OwnerID   string `json:"owner_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Frozen    bool   `json:"frozen"`
	CreatedAt string `json:"created_at"`
}

type orderPayload struct {
	OrderID     string `json:"order_id"`
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func newWalletPayload(wallet ledger.Wallet) walletPayload {
	return walletPayload{
		OwnerID:               wallet.OwnerID.String(),
		AvailableBalance:      ledger.FormatMajor(wallet.AvailableBalance.Int64()),
		AvailableBalanceMinor: wallet.AvailableBalance.Int64(),
		LockedBalance:         ledger.FormatMajor(wallet.LockedBalance.Int64()),
		LockedBalanceMinor:    wallet.LockedBalance.Int64(),
		Currency:              string(wallet.Currency),
		UpdatedAt:             formatTime(wallet.UpdatedAt),
	}
}

func newTransactionPayload(transaction ledger.Transaction) transactionPayload {
	return transactionPayload{
		TransactionID: transaction.TransactionID.String(),
		Type:          string(transaction.Type),
		Amount:        ledger.FormatMajor(transaction.Amount.Int64()),
		AmountMinor:   transaction.Amount.Int64(),
		BalanceBefore: ledger.FormatMajor(transaction.BalanceBefore.Int64()),
		BalanceAfter:  ledger.FormatMajor(transaction.BalanceAfter.Int64()),
		Status:        string(transaction.Status),
		ReferenceID:   transaction.ReferenceID.String(),
		Metadata:      json.RawMessage(transaction.Metadata.String()),
		CreatedAt:     formatTime(transaction.CreatedAt),
	}
}

func newTransactionPagePayload(page ledger.TransactionPage) transactionPagePayload {
	items := make([]transactionPayload, 0, len(page.Items))
	for _, transaction := range page.Items {
		items = append(items, newTransactionPayload(transaction))
	}
	return transactionPagePayload{Items: items, Total: page.Total, Page: page.Page, Limit: page.Limit}
}

func newWithdrawalPayload(request ledger.WithdrawalRequest) withdrawalPayload {
	return withdrawalPayload{
		WithdrawalID: request.WithdrawalID.String(),
		OwnerID:      request.OwnerID.String(),
		Amount:       ledger.FormatMajor(request.Amount.Int64()),
		AmountMinor:  request.Amount.Int64(),
		Status:       string(request.Status),
		RequestedAt:  formatTime(request.RequestedAt),
		ProcessedAt:  formatTime(request.ProcessedAt),
		ProcessedBy:  request.ProcessedBy.String(),
	}
}

func newWithdrawalPayloads(requests []ledger.WithdrawalRequest) []withdrawalPayload {
	payloads := make([]withdrawalPayload, 0, len(requests))
	for _, request := range requests {
		payloads = append(payloads, newWithdrawalPayload(request))
	}
	return payloads
}

func newAccountPayload(account ledger.Account) accountPayload {
	return accountPayload{
		OwnerID:   account.OwnerID.String(),
		Email:     account.Email,
		Role:      string(account.Role),
		Frozen:    account.Frozen,
		CreatedAt: formatTime(account.CreatedAt),
	}
}

func newOrderPayload(record ledger.PaymentRecord) orderPayload {
	return orderPayload{
		OrderID:     record.OrderID.String(),
		Amount:      ledger.FormatMajor(record.Amount.Int64()),
		AmountMinor: record.Amount.Int64(),
		Currency:    string(record.Currency),
		Status:      string(record.Status),
	}
}
