package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by ledger operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation       string
	OwnerID         OwnerID
	ActorID         AdminID
	TransactionType TransactionType
	Amount          SignedAmountCents
	BalanceAfter    AmountCents
	ReferenceID     ReferenceID
	WithdrawalID    WithdrawalID
	OrderID         PaymentOrderID
	Status          string
	Detail          string
	Error           error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithCurrency sets the currency assigned to newly created wallets.
func WithCurrency(currency Currency) ServiceOption {
	return func(service *Service) {
		if currency != "" {
			service.currency = currency
		}
	}
}

// WithNonAtomicFallback lets operations run step by step when the store reports
// ErrAtomicScopeUnsupported. Same-owner mutations are then serialized in process only, and a
// crash between the ledger append and the balance update leaves them out of sync.
func WithNonAtomicFallback() ServiceOption {
	return func(service *Service) {
		service.nonAtomicFallback = true
	}
}

// WithTransactionIDGenerator overrides the ULID generator used for transaction ids.
func WithTransactionIDGenerator(generate func() TransactionID) ServiceOption {
	return func(service *Service) {
		if generate != nil {
			service.newTransactionID = generate
		}
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
