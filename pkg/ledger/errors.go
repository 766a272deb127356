package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger services and stores.
var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrAccountFrozen            = errors.New("account frozen")
	ErrBelowMinimum             = errors.New("amount below minimum")
	ErrAlreadyProcessed         = errors.New("withdrawal already processed")
	ErrAccountNotFound          = errors.New("account not found")
	ErrWalletNotFound           = errors.New("wallet not found")
	ErrWithdrawalNotFound       = errors.New("withdrawal request not found")
	ErrPaymentNotFound          = errors.New("payment record not found")
	ErrInvalidSignature         = errors.New("invalid signature")
	ErrGatewayNotConfigured     = errors.New("payment gateway not configured")
	ErrTestDepositsDisabled     = errors.New("test deposits disabled")
	ErrAtomicScopeUnsupported   = errors.New("atomic scope unsupported")
	ErrPaymentAlreadySettled    = errors.New("payment already settled")
	ErrWalletExists             = errors.New("wallet already exists")
	ErrPaymentExists            = errors.New("payment record already exists")
	ErrWithdrawalExists         = errors.New("withdrawal request already exists")
	ErrDuplicateTransaction     = errors.New("duplicate transaction")
	ErrInvalidOwnerID           = errors.New("invalid owner id")
	ErrInvalidAdminID           = errors.New("invalid admin id")
	ErrInvalidWithdrawalID      = errors.New("invalid withdrawal id")
	ErrInvalidTransactionID     = errors.New("invalid transaction id")
	ErrInvalidReferenceID       = errors.New("invalid reference id")
	ErrInvalidPaymentOrderID    = errors.New("invalid payment order id")
	ErrInvalidPaymentID         = errors.New("invalid payment id")
	ErrInvalidAmountCents       = errors.New("invalid amount cents")
	ErrInvalidTransactionType   = errors.New("invalid transaction type")
	ErrInvalidTransactionStatus = errors.New("invalid transaction status")
	ErrInvalidWithdrawalStatus  = errors.New("invalid withdrawal status")
	ErrInvalidPaymentStatus     = errors.New("invalid payment status")
	ErrInvalidAccountRole       = errors.New("invalid account role")
	ErrInvalidCurrency          = errors.New("invalid currency")
	ErrInvalidMetadataJSON      = errors.New("invalid metadata json")
	ErrInvalidPagination        = errors.New("invalid pagination")
	ErrInvalidWebhookPayload    = errors.New("invalid webhook payload")
	ErrInvalidServiceConfig     = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
