// Package grpcserver exposes the wallet ledger to internal services over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var codeByKind = map[ledger.ErrorKind]codes.Code{
	ledger.KindInsufficientBalance:    codes.FailedPrecondition,
	ledger.KindAccountFrozen:          codes.PermissionDenied,
	ledger.KindBelowMinimum:           codes.FailedPrecondition,
	ledger.KindAlreadyProcessed:       codes.AlreadyExists,
	ledger.KindNotFound:               codes.NotFound,
	ledger.KindInvalidSignature:       codes.Unauthenticated,
	ledger.KindGatewayNotConfigured:   codes.Unavailable,
	ledger.KindDisabled:               codes.PermissionDenied,
	ledger.KindInvalidInput:           codes.InvalidArgument,
	ledger.KindAtomicScopeUnsupported: codes.Unavailable,
}

// WalletServer adapts the ledger to WalletServiceServer.
type WalletServer struct {
	service     *ledger.Service
	deposits    *ledger.DepositReconciler
	withdrawals *ledger.WithdrawalWorkflow
}

// NewWalletServer constructs a gRPC server for the ledger.
func NewWalletServer(service *ledger.Service, deposits *ledger.DepositReconciler, withdrawals *ledger.WithdrawalWorkflow) (*WalletServer, error) {
	if service == nil || deposits == nil || withdrawals == nil {
		return nil, errors.New("grpcserver: service, deposits, and withdrawals are required")
	}
	return &WalletServer{service: service, deposits: deposits, withdrawals: withdrawals}, nil
}

func (server *WalletServer) GetWallet(ctx context.Context, request *WalletRequest) (*WalletResponse, error) {
	ownerID, err := ledger.NewOwnerID(request.OwnerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	wallet, err := server.service.Wallet(ctx, ownerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &WalletResponse{
		OwnerID:               wallet.OwnerID.String(),
		AvailableBalanceMinor: wallet.AvailableBalance.Int64(),
		LockedBalanceMinor:    wallet.LockedBalance.Int64(),
		Currency:              string(wallet.Currency),
		UpdatedUnixUTC:        wallet.UpdatedAt.Unix(),
	}, nil
}

func (server *WalletServer) ListTransactions(ctx context.Context, request *ListTransactionsRequest) (*ListTransactionsResponse, error) {
	ownerID, err := ledger.NewOwnerID(request.OwnerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	pageRequest, err := ledger.NewPageRequest(request.Page, request.Limit)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	page, err := server.service.Transactions(ctx, ownerID, pageRequest)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	items := make([]TransactionMessage, 0, len(page.Items))
	for _, transaction := range page.Items {
		items = append(items, TransactionMessage{
			TransactionID:      transaction.TransactionID.String(),
			Type:               string(transaction.Type),
			AmountMinor:        transaction.Amount.Int64(),
			BalanceBeforeMinor: transaction.BalanceBefore.Int64(),
			BalanceAfterMinor:  transaction.BalanceAfter.Int64(),
			Status:             string(transaction.Status),
			ReferenceID:        transaction.ReferenceID.String(),
			MetadataJSON:       transaction.Metadata.String(),
			CreatedUnixUTC:     transaction.CreatedAt.Unix(),
		})
	}
	return &ListTransactionsResponse{Items: items, Total: page.Total, Page: page.Page, Limit: page.Limit}, nil
}

func (server *WalletServer) ApplyBalanceChange(ctx context.Context, request *BalanceChangeRequest) (*BalanceChangeResponse, error) {
	ownerID, err := ledger.NewOwnerID(request.OwnerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	transactionType, err := ledger.ParseTransactionType(request.Type)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	amount, err := ledger.NewSignedAmountCents(request.AmountMinor)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	metadata := ledger.MetadataJSON{}
	if request.MetadataJSON != "" {
		metadata, err = ledger.NewMetadataJSON(request.MetadataJSON)
		if err != nil {
			return nil, mapToGRPCError(err)
		}
	}
	balance, err := server.service.ApplyBalanceChange(ctx, ledger.BalanceChange{
		OwnerID:     ownerID,
		Type:        transactionType,
		Amount:      amount,
		ReferenceID: ledger.NewReferenceID(request.ReferenceID),
		Metadata:    metadata,
	})
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &BalanceChangeResponse{BalanceAfterMinor: balance.Int64()}, nil
}

func (server *WalletServer) ReconcileDeposit(ctx context.Context, request *ReconcileDepositRequest) (*ReconcileDepositResponse, error) {
	orderID, err := ledger.NewPaymentOrderID(request.OrderID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	paymentID, err := ledger.NewPaymentID(request.PaymentID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	outcome, err := server.deposits.ReconcileDeposit(ctx, ledger.DepositConfirmation{
		OrderID:          orderID,
		PaymentID:        paymentID,
		AmountMinorUnits: request.AmountMinor,
	})
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &ReconcileDepositResponse{
		Credited:          outcome.Credited,
		Detail:            outcome.Detail,
		OwnerID:           outcome.OwnerID.String(),
		BalanceAfterMinor: outcome.BalanceAfter.Int64(),
	}, nil
}

func (server *WalletServer) CreateWithdrawal(ctx context.Context, request *CreateWithdrawalRequest) (*WithdrawalMessage, error) {
	ownerID, err := ledger.NewOwnerID(request.OwnerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	amount, err := ledger.NewPositiveAmountCents(request.AmountMinor)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	created, err := server.withdrawals.Create(ctx, ownerID, amount)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return newWithdrawalMessage(created), nil
}

func (server *WalletServer) ApproveWithdrawal(ctx context.Context, request *ProcessWithdrawalRequest) (*WithdrawalMessage, error) {
	return server.processWithdrawal(ctx, request, server.withdrawals.Approve)
}

func (server *WalletServer) RejectWithdrawal(ctx context.Context, request *ProcessWithdrawalRequest) (*WithdrawalMessage, error) {
	return server.processWithdrawal(ctx, request, server.withdrawals.Reject)
}

func (server *WalletServer) processWithdrawal(ctx context.Context, request *ProcessWithdrawalRequest, process func(context.Context, ledger.WithdrawalID, ledger.AdminID) (ledger.WithdrawalRequest, error)) (*WithdrawalMessage, error) {
	withdrawalID, err := ledger.NewWithdrawalID(request.WithdrawalID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	adminID, err := ledger.NewAdminID(request.AdminID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	processed, err := process(ctx, withdrawalID, adminID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return newWithdrawalMessage(processed), nil
}

func (server *WalletServer) ListWithdrawals(ctx context.Context, request *ListWithdrawalsRequest) (*ListWithdrawalsResponse, error) {
	var (
		requests []ledger.WithdrawalRequest
		err      error
	)
	if request.OwnerID == "" {
		requests, err = server.withdrawals.ListPending(ctx)
	} else {
		ownerID, ownerErr := ledger.NewOwnerID(request.OwnerID)
		if ownerErr != nil {
			return nil, mapToGRPCError(ownerErr)
		}
		requests, err = server.withdrawals.ListForOwner(ctx, ownerID)
	}
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	items := make([]WithdrawalMessage, 0, len(requests))
	for _, withdrawal := range requests {
		items = append(items, *newWithdrawalMessage(withdrawal))
	}
	return &ListWithdrawalsResponse{Items: items}, nil
}

func newWithdrawalMessage(request ledger.WithdrawalRequest) *WithdrawalMessage {
	message := &WithdrawalMessage{
		WithdrawalID:     request.WithdrawalID.String(),
		OwnerID:          request.OwnerID.String(),
		AmountMinor:      request.Amount.Int64(),
		Status:           string(request.Status),
		RequestedUnixUTC: request.RequestedAt.Unix(),
		ProcessedBy:      request.ProcessedBy.String(),
	}
	if !request.ProcessedAt.IsZero() {
		message.ProcessedUnixUTC = request.ProcessedAt.Unix()
	}
	return message
}

// mapToGRPCError carries the ledger error kind as the status message.
func mapToGRPCError(source error) error {
	kind := ledger.KindOf(source)
	if code, ok := codeByKind[kind]; ok {
		return status.Error(code, kind.String())
	}
	return status.Error(codes.Internal, source.Error())
}

var _ WalletServiceServer = (*WalletServer)(nil)
