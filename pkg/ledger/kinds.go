package ledger

import "errors"

// ErrorKind classifies ledger errors for transports.
type ErrorKind string

const (
	KindNone                   ErrorKind = ""
	KindInsufficientBalance    ErrorKind = "insufficient_balance"
	KindAccountFrozen          ErrorKind = "account_frozen"
	KindBelowMinimum           ErrorKind = "below_minimum"
	KindAlreadyProcessed       ErrorKind = "already_processed"
	KindNotFound               ErrorKind = "not_found"
	KindInvalidSignature       ErrorKind = "invalid_signature"
	KindGatewayNotConfigured   ErrorKind = "gateway_not_configured"
	KindDisabled               ErrorKind = "disabled"
	KindInvalidInput           ErrorKind = "invalid_input"
	KindAtomicScopeUnsupported ErrorKind = "atomic_scope_unsupported"
	KindInternal               ErrorKind = "internal"
)

var errorKinds = []struct {
	target error
	kind   ErrorKind
}{
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrAccountFrozen, KindAccountFrozen},
	{ErrBelowMinimum, KindBelowMinimum},
	{ErrAlreadyProcessed, KindAlreadyProcessed},
	{ErrAccountNotFound, KindNotFound},
	{ErrWalletNotFound, KindNotFound},
	{ErrWithdrawalNotFound, KindNotFound},
	{ErrPaymentNotFound, KindNotFound},
	{ErrInvalidSignature, KindInvalidSignature},
	{ErrGatewayNotConfigured, KindGatewayNotConfigured},
	{ErrTestDepositsDisabled, KindDisabled},
	{ErrAtomicScopeUnsupported, KindAtomicScopeUnsupported},
	{ErrInvalidOwnerID, KindInvalidInput},
	{ErrInvalidAdminID, KindInvalidInput},
	{ErrInvalidWithdrawalID, KindInvalidInput},
	{ErrInvalidTransactionID, KindInvalidInput},
	{ErrInvalidReferenceID, KindInvalidInput},
	{ErrInvalidPaymentOrderID, KindInvalidInput},
	{ErrInvalidPaymentID, KindInvalidInput},
	{ErrInvalidAmountCents, KindInvalidInput},
	{ErrInvalidTransactionType, KindInvalidInput},
	{ErrInvalidAccountRole, KindInvalidInput},
	{ErrInvalidCurrency, KindInvalidInput},
	{ErrInvalidMetadataJSON, KindInvalidInput},
	{ErrInvalidPagination, KindInvalidInput},
	{ErrInvalidWebhookPayload, KindInvalidInput},
}

// KindOf returns the kind of err, KindNone for nil and KindInternal for anything unclassified.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.target) {
			return candidate.kind
		}
	}
	return KindInternal
}

// String returns the stable kind code.
func (kind ErrorKind) String() string {
	return string(kind)
}
