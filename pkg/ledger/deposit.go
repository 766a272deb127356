package ledger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// OrderGateway creates orders at the external payment provider.
type OrderGateway interface {
	CreateOrder(ctx context.Context, request GatewayOrderRequest) (GatewayOrder, error)
}

// GatewayOrderRequest asks the gateway for a new order.
type GatewayOrderRequest struct {
	OwnerID  OwnerID
	Amount   PositiveAmountCents
	Currency Currency
	Receipt  string
}

// GatewayOrder is the gateway's answer to an order request.
type GatewayOrder struct {
	OrderID  PaymentOrderID
	Amount   PositiveAmountCents
	Currency Currency
}

// DepositConfirmation is a verified notice that the gateway captured a payment.
type DepositConfirmation struct {
	OrderID          PaymentOrderID
	PaymentID        PaymentID
	AmountMinorUnits int64
}

// DepositOutcome reports what a reconciliation did.
type DepositOutcome struct {
	Credited     bool
	Detail       string
	OwnerID      OwnerID
	BalanceAfter AmountCents
}

// DepositConfig configures a DepositReconciler.
type DepositConfig struct {
	WebhookSecret       string
	Gateway             OrderGateway
	TestDepositsEnabled bool
}

// DepositReconciler turns gateway confirmations and test deposits into credits.
type DepositReconciler struct {
	service             *Service
	webhookSecret       []byte
	gateway             OrderGateway
	testDepositsEnabled bool
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// minimumTestDeposit is one major unit.
const minimumTestDeposit = PositiveAmountCents(minorUnitsPerMajorUnit)

// NewDepositReconciler wires a DepositReconciler.
func NewDepositReconciler(service *Service, config DepositConfig) (*DepositReconciler, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: service dependency is nil", ErrInvalidServiceConfig)
	}
	return &DepositReconciler{
		service:             service,
		webhookSecret:       []byte(strings.TrimSpace(config.WebhookSecret)),
		gateway:             config.Gateway,
		testDepositsEnabled: config.TestDepositsEnabled,
	}, nil
}

// VerifySignature checks that signature is the hex HMAC-SHA256 of rawBody under the webhook secret.
func (reconciler *DepositReconciler) VerifySignature(rawBody []byte, signature string) error {
	if len(reconciler.webhookSecret) == 0 {
		return fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, reconciler.webhookSecret)
	mac.Write(rawBody)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// HandleWebhook authenticates a gateway notification and reconciles captured payments.
// Events other than payment.captured are acknowledged without effect.
func (reconciler *DepositReconciler) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (DepositOutcome, error) {
	if err := reconciler.VerifySignature(rawBody, signature); err != nil {
		reconciler.service.logOperation(ctx, OperationLog{Operation: operationDepositWebhook, Error: err})
		return DepositOutcome{}, err
	}
	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
		reconciler.service.logOperation(ctx, OperationLog{Operation: operationDepositWebhook, Error: wrapped})
		return DepositOutcome{}, wrapped
	}
	if envelope.Event != webhookEventPaymentCaptured {
		reconciler.service.logOperation(ctx, OperationLog{
			Operation: operationDepositWebhook,
			Status:    operationStatusSkipped,
			Detail:    detailIgnoredEvent,
		})
		return DepositOutcome{Detail: detailIgnoredEvent}, nil
	}
	entity := envelope.Payload.Payment.Entity
	orderID, orderErr := NewPaymentOrderID(entity.OrderID)
	paymentID, paymentErr := NewPaymentID(entity.ID)
	if orderErr != nil || paymentErr != nil {
		reconciler.service.logOperation(ctx, OperationLog{
			Operation: operationDepositWebhook,
			Status:    operationStatusSkipped,
			Detail:    detailIncompletePayload,
		})
		return DepositOutcome{Detail: detailIncompletePayload}, nil
	}
	return reconciler.ReconcileDeposit(ctx, DepositConfirmation{
		OrderID:          orderID,
		PaymentID:        paymentID,
		AmountMinorUnits: entity.Amount,
	})
}

// ReconcileDeposit credits the order's owner at most once per order.
func (reconciler *DepositReconciler) ReconcileDeposit(ctx context.Context, confirmation DepositConfirmation) (DepositOutcome, error) {
	service := reconciler.service
	var outcome DepositOutcome
	var transaction Transaction
	var payment PaymentRecord
	degraded, operationError := service.runInScope(ctx, func(ctx context.Context, current scope) error {
		outcome = DepositOutcome{}
		record, err := current.store.GetPaymentForUpdate(ctx, confirmation.OrderID)
		if errors.Is(err, ErrPaymentNotFound) {
			outcome.Detail = detailUnknownOrder
			return nil
		}
		if err != nil {
			return err
		}
		payment = record
		outcome.OwnerID = record.OwnerID
		if record.Settled() {
			outcome.Detail = detailAlreadySettled
			return nil
		}
		if err := current.store.MarkPaymentPaid(ctx, confirmation.OrderID, confirmation.PaymentID, service.now()); err != nil {
			if errors.Is(err, ErrPaymentAlreadySettled) {
				outcome.Detail = detailAlreadySettled
				return nil
			}
			return err
		}
		applied, err := service.applyBalanceChange(ctx, current, BalanceChange{
			OwnerID:     record.OwnerID,
			Type:        TransactionTypeDeposit,
			Amount:      record.Amount.Credit(),
			ReferenceID: NewReferenceID(confirmation.PaymentID.String()),
			Metadata:    NewMetadataFields(map[string]string{metadataKeyOrderID: confirmation.OrderID.String()}),
		})
		if err != nil {
			return err
		}
		transaction = applied
		outcome.Credited = true
		outcome.BalanceAfter = applied.BalanceAfter
		if confirmation.AmountMinorUnits != record.Amount.Int64() {
			outcome.Detail = detailAmountMismatch
		}
		return nil
	})
	entry := OperationLog{
		Operation:       operationReconcileDeposit,
		OwnerID:         payment.OwnerID,
		TransactionType: TransactionTypeDeposit,
		Amount:          payment.Amount.Credit(),
		BalanceAfter:    transaction.BalanceAfter,
		ReferenceID:     NewReferenceID(confirmation.PaymentID.String()),
		OrderID:         confirmation.OrderID,
		Detail:          joinDetails(outcome.Detail, scopeDetail(degraded)),
		Error:           operationError,
	}
	if operationError == nil && !outcome.Credited {
		entry.Status = operationStatusSkipped
	}
	service.logOperation(ctx, entry)
	if operationError != nil {
		return DepositOutcome{}, operationError
	}
	return outcome, nil
}

// CreditTestDeposit credits a deposit without a gateway. Only available when enabled.
func (reconciler *DepositReconciler) CreditTestDeposit(ctx context.Context, ownerID OwnerID, amount PositiveAmountCents) (Transaction, error) {
	service := reconciler.service
	referenceID := NewReferenceID(testDepositReferencePrefix + ulid.Make().String())
	var transaction Transaction
	var degraded bool
	operationError := reconciler.validateTestDeposit(amount)
	if operationError == nil {
		degraded, operationError = service.runInScope(ctx, func(ctx context.Context, current scope) error {
			applied, err := service.applyBalanceChange(ctx, current, BalanceChange{
				OwnerID:     ownerID,
				Type:        TransactionTypeDeposit,
				Amount:      amount.Credit(),
				ReferenceID: referenceID,
				Metadata:    NewMetadataFields(map[string]string{metadataKeySource: metadataSourceTest}),
			})
			transaction = applied
			return err
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation:       operationTestDeposit,
		OwnerID:         ownerID,
		TransactionType: TransactionTypeDeposit,
		Amount:          amount.Credit(),
		BalanceAfter:    transaction.BalanceAfter,
		ReferenceID:     referenceID,
		Detail:          scopeDetail(degraded),
		Error:           operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return transaction, nil
}

func (reconciler *DepositReconciler) validateTestDeposit(amount PositiveAmountCents) error {
	if !reconciler.testDepositsEnabled {
		return ErrTestDepositsDisabled
	}
	if amount < minimumTestDeposit {
		return fmt.Errorf("%w: test deposits start at %s", ErrBelowMinimum, FormatMajor(minimumTestDeposit.Int64()))
	}
	return nil
}

// CreateDepositOrder opens a gateway order and records it for later reconciliation.
func (reconciler *DepositReconciler) CreateDepositOrder(ctx context.Context, ownerID OwnerID, amount PositiveAmountCents) (PaymentRecord, error) {
	service := reconciler.service
	record, operationError := reconciler.createDepositOrder(ctx, ownerID, amount)
	service.logOperation(ctx, OperationLog{
		Operation:       operationCreateDepositOrder,
		OwnerID:         ownerID,
		TransactionType: TransactionTypeDeposit,
		Amount:          amount.Credit(),
		OrderID:         record.OrderID,
		Error:           operationError,
	})
	return record, operationError
}

func (reconciler *DepositReconciler) createDepositOrder(ctx context.Context, ownerID OwnerID, amount PositiveAmountCents) (PaymentRecord, error) {
	if reconciler.gateway == nil {
		return PaymentRecord{}, ErrGatewayNotConfigured
	}
	if ownerID.IsZero() {
		return PaymentRecord{}, fmt.Errorf("%w: empty value", ErrInvalidOwnerID)
	}
	if _, err := NewPositiveAmountCents(amount.Int64()); err != nil {
		return PaymentRecord{}, err
	}
	service := reconciler.service
	recordID := uuid.NewString()
	order, err := reconciler.gateway.CreateOrder(ctx, GatewayOrderRequest{
		OwnerID:  ownerID,
		Amount:   amount,
		Currency: service.currency,
		Receipt:  recordID,
	})
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("create gateway order: %w", err)
	}
	currency := order.Currency
	if currency == "" {
		currency = service.currency
	}
	now := service.now()
	record := PaymentRecord{
		PaymentRecordID: recordID,
		OwnerID:         ownerID,
		OrderID:         order.OrderID,
		Amount:          amount,
		Currency:        currency,
		Status:          PaymentStatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := service.store.CreatePayment(ctx, record); err != nil {
		return PaymentRecord{}, err
	}
	return record, nil
}

func joinDetails(details ...string) string {
	nonEmpty := make([]string, 0, len(details))
	for _, detail := range details {
		if detail != "" {
			nonEmpty = append(nonEmpty, detail)
		}
	}
	return strings.Join(nonEmpty, ",")
}
