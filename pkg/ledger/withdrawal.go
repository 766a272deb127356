package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DefaultMinimumWithdrawal is 100.00 in major units.
const DefaultMinimumWithdrawal = PositiveAmountCents(100 * minorUnitsPerMajorUnit)

// WithdrawalWorkflow moves withdrawal requests through pending, approved, and rejected.
type WithdrawalWorkflow struct {
	service *Service
	minimum PositiveAmountCents
	newID   func() WithdrawalID
}

// WithdrawalOption configures a WithdrawalWorkflow.
type WithdrawalOption func(*WithdrawalWorkflow)

// WithMinimumWithdrawal overrides DefaultMinimumWithdrawal.
func WithMinimumWithdrawal(minimum PositiveAmountCents) WithdrawalOption {
	return func(workflow *WithdrawalWorkflow) {
		if minimum > 0 {
			workflow.minimum = minimum
		}
	}
}

// WithWithdrawalIDGenerator overrides the UUID generator for request ids.
func WithWithdrawalIDGenerator(generate func() WithdrawalID) WithdrawalOption {
	return func(workflow *WithdrawalWorkflow) {
		if generate != nil {
			workflow.newID = generate
		}
	}
}

// NewWithdrawalWorkflow wires a WithdrawalWorkflow.
func NewWithdrawalWorkflow(service *Service, options ...WithdrawalOption) (*WithdrawalWorkflow, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: service dependency is nil", ErrInvalidServiceConfig)
	}
	workflow := &WithdrawalWorkflow{
		service: service,
		minimum: DefaultMinimumWithdrawal,
		newID: func() WithdrawalID {
			return WithdrawalID{value: uuid.NewString()}
		},
	}
	for _, option := range options {
		if option != nil {
			option(workflow)
		}
	}
	return workflow, nil
}

// Minimum returns the smallest amount a request may ask for.
func (workflow *WithdrawalWorkflow) Minimum() PositiveAmountCents {
	return workflow.minimum
}

// Create debits the amount and records a pending request in the same scope.
func (workflow *WithdrawalWorkflow) Create(ctx context.Context, ownerID OwnerID, amount PositiveAmountCents) (WithdrawalRequest, error) {
	service := workflow.service
	request := WithdrawalRequest{
		WithdrawalID: workflow.newID(),
		OwnerID:      ownerID,
		Amount:       amount,
		Status:       WithdrawalStatusPending,
		RequestedAt:  service.now(),
	}
	var transaction Transaction
	degraded, operationError := service.runInScope(ctx, func(ctx context.Context, current scope) error {
		account, err := current.store.GetAccount(ctx, ownerID)
		if err != nil {
			return err
		}
		if account.Frozen {
			return ErrAccountFrozen
		}
		if amount < workflow.minimum {
			return fmt.Errorf("%w: minimum withdrawal is %s", ErrBelowMinimum, FormatMajor(workflow.minimum.Int64()))
		}
		// Debit first: a failed debit must not leave a pending request, even without an atomic scope.
		applied, err := service.applyBalanceChange(ctx, current, BalanceChange{
			OwnerID:     ownerID,
			Type:        TransactionTypeWithdrawalRequest,
			Amount:      amount.Debit(),
			ReferenceID: NewReferenceID(request.WithdrawalID.String()),
		})
		if err != nil {
			return err
		}
		transaction = applied
		return current.store.CreateWithdrawal(ctx, request)
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationWithdrawalCreate,
		OwnerID:         ownerID,
		TransactionType: TransactionTypeWithdrawalRequest,
		Amount:          amount.Debit(),
		BalanceAfter:    transaction.BalanceAfter,
		ReferenceID:     NewReferenceID(request.WithdrawalID.String()),
		WithdrawalID:    request.WithdrawalID,
		Detail:          scopeDetail(degraded),
		Error:           operationError,
	})
	if operationError != nil {
		return WithdrawalRequest{}, operationError
	}
	return request, nil
}

// Approve marks a pending request approved. No money moves.
func (workflow *WithdrawalWorkflow) Approve(ctx context.Context, withdrawalID WithdrawalID, adminID AdminID) (WithdrawalRequest, error) {
	service := workflow.service
	var processed WithdrawalRequest
	degraded, operationError := service.runInScope(ctx, func(ctx context.Context, current scope) error {
		request, err := workflow.transition(ctx, current, withdrawalID, adminID, WithdrawalStatusApproved)
		processed = request
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:    operationWithdrawalApprove,
		OwnerID:      processed.OwnerID,
		ActorID:      adminID,
		WithdrawalID: withdrawalID,
		Detail:       scopeDetail(degraded),
		Error:        operationError,
	})
	if operationError != nil {
		return WithdrawalRequest{}, operationError
	}
	return processed, nil
}

// Reject marks a pending request rejected and refunds its amount.
func (workflow *WithdrawalWorkflow) Reject(ctx context.Context, withdrawalID WithdrawalID, adminID AdminID) (WithdrawalRequest, error) {
	service := workflow.service
	var processed WithdrawalRequest
	var transaction Transaction
	degraded, operationError := service.runInScope(ctx, func(ctx context.Context, current scope) error {
		request, err := workflow.transition(ctx, current, withdrawalID, adminID, WithdrawalStatusRejected)
		if err != nil {
			return err
		}
		processed = request
		applied, err := service.applyBalanceChange(ctx, current, BalanceChange{
			OwnerID:     request.OwnerID,
			Type:        TransactionTypeWithdrawalRefund,
			Amount:      request.Amount.Credit(),
			ReferenceID: NewReferenceID(withdrawalID.String()),
			Metadata:    NewMetadataFields(map[string]string{metadataKeyAdminID: adminID.String()}),
		})
		transaction = applied
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationWithdrawalReject,
		OwnerID:         processed.OwnerID,
		ActorID:         adminID,
		TransactionType: TransactionTypeWithdrawalRefund,
		Amount:          processed.Amount.Credit(),
		BalanceAfter:    transaction.BalanceAfter,
		ReferenceID:     NewReferenceID(withdrawalID.String()),
		WithdrawalID:    withdrawalID,
		Detail:          scopeDetail(degraded),
		Error:           operationError,
	})
	if operationError != nil {
		return WithdrawalRequest{}, operationError
	}
	return processed, nil
}

// transition moves a pending request to target, compare-and-set on the pending status.
func (workflow *WithdrawalWorkflow) transition(ctx context.Context, current scope, withdrawalID WithdrawalID, adminID AdminID, target WithdrawalStatus) (WithdrawalRequest, error) {
	if adminID.IsZero() {
		return WithdrawalRequest{}, fmt.Errorf("%w: empty value", ErrInvalidAdminID)
	}
	request, err := current.store.GetWithdrawalForUpdate(ctx, withdrawalID)
	if err != nil {
		return WithdrawalRequest{}, err
	}
	if request.Status != WithdrawalStatusPending {
		return WithdrawalRequest{}, ErrAlreadyProcessed
	}
	processedAt := workflow.service.now()
	if err := current.store.UpdateWithdrawalStatus(ctx, WithdrawalStatusUpdate{
		WithdrawalID: withdrawalID,
		From:         WithdrawalStatusPending,
		To:           target,
		ProcessedAt:  processedAt,
		ProcessedBy:  adminID,
	}); err != nil {
		return WithdrawalRequest{}, err
	}
	request.Status = target
	request.ProcessedAt = processedAt
	request.ProcessedBy = adminID
	return request, nil
}

// Get returns one request.
func (workflow *WithdrawalWorkflow) Get(ctx context.Context, withdrawalID WithdrawalID) (WithdrawalRequest, error) {
	return workflow.service.store.GetWithdrawal(ctx, withdrawalID)
}

// ListPending returns pending requests, oldest first.
func (workflow *WithdrawalWorkflow) ListPending(ctx context.Context) ([]WithdrawalRequest, error) {
	return workflow.list(ctx, WithdrawalFilter{Status: WithdrawalStatusPending, OldestFirst: true})
}

// ListAll returns every request, newest first.
func (workflow *WithdrawalWorkflow) ListAll(ctx context.Context) ([]WithdrawalRequest, error) {
	return workflow.list(ctx, WithdrawalFilter{})
}

// ListForOwner returns one owner's requests, newest first.
func (workflow *WithdrawalWorkflow) ListForOwner(ctx context.Context, ownerID OwnerID) ([]WithdrawalRequest, error) {
	if ownerID.IsZero() {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidOwnerID)
	}
	return workflow.list(ctx, WithdrawalFilter{OwnerID: ownerID})
}

func (workflow *WithdrawalWorkflow) list(ctx context.Context, filter WithdrawalFilter) ([]WithdrawalRequest, error) {
	requests, err := workflow.service.store.ListWithdrawals(ctx, filter)
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []WithdrawalRequest{}
	}
	return requests, nil
}
