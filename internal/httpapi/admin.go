package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"github.com/gin-gonic/gin"
)

const adminIDContextKey = "admin_id"

// requireAdmin admits sessions carrying the admin role or belonging to an admin account.
func (handler *httpHandler) requireAdmin(ctx *gin.Context) {
	claims, ownerID, ok := sessionOwner(ctx)
	if !ok {
		ctx.Abort()
		return
	}
	admitted := hasRole(claims, adminRole)
	if !admitted {
		requestCtx, cancel := handler.requestContext(ctx)
		account, err := handler.service.Account(requestCtx, ownerID)
		cancel()
		if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
			handler.respondError(ctx, err)
			ctx.Abort()
			return
		}
		admitted = err == nil && account.Role == ledger.AccountRoleAdmin
	}
	if !admitted {
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(codeForbidden, "admin role required"))
		return
	}
	adminID, err := ledger.NewAdminID(ownerID.String())
	if err != nil {
		handler.respondError(ctx, err)
		ctx.Abort()
		return
	}
	ctx.Set(adminIDContextKey, adminID)
	ctx.Next()
}

func currentAdmin(ctx *gin.Context) ledger.AdminID {
	value, _ := ctx.Get(adminIDContextKey)
	adminID, _ := value.(ledger.AdminID)
	return adminID
}

func (handler *httpHandler) ownerFromPath(ctx *gin.Context) (ledger.OwnerID, bool) {
	ownerID, err := ledger.NewOwnerID(ctx.Param(ownerIDParam))
	if err != nil {
		handler.respondError(ctx, err)
		return ledger.OwnerID{}, false
	}
	return ownerID, true
}

func (handler *httpHandler) withdrawalFromPath(ctx *gin.Context) (ledger.WithdrawalID, bool) {
	withdrawalID, err := ledger.NewWithdrawalID(ctx.Param(withdrawalIDParam))
	if err != nil {
		handler.respondError(ctx, err)
		return ledger.WithdrawalID{}, false
	}
	return withdrawalID, true
}

func (handler *httpHandler) handleAdminAccounts(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	accounts, err := handler.service.Accounts(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	items := make([]accountPayload, 0, len(accounts))
	for _, account := range accounts {
		items = append(items, newAccountPayload(account))
	}
	ctx.JSON(http.StatusOK, gin.H{"items": items})
}

func (handler *httpHandler) handleAdminAccount(ctx *gin.Context) {
	ownerID, ok := handler.ownerFromPath(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	account, err := handler.service.Account(requestCtx, ownerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": newAccountPayload(account)})
}

func (handler *httpHandler) handleAdminFreeze(frozen bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ownerID, ok := handler.ownerFromPath(ctx)
		if !ok {
			return
		}
		requestCtx, cancel := handler.requestContext(ctx)
		defer cancel()
		account, err := handler.service.FreezeAccount(requestCtx, ownerID, currentAdmin(ctx), frozen)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"account": newAccountPayload(account)})
	}
}

func (handler *httpHandler) handleAdminWallet(ctx *gin.Context) {
	ownerID, ok := handler.ownerFromPath(ctx)
	if !ok {
		return
	}
	handler.respondWithWallet(ctx, ownerID)
}

func (handler *httpHandler) handleAdminTransactions(ctx *gin.Context) {
	ownerID, ok := handler.ownerFromPath(ctx)
	if !ok {
		return
	}
	handler.respondWithTransactions(ctx, ownerID)
}

func (handler *httpHandler) handleAdminAdjustment(ctx *gin.Context) {
	ownerID, ok := handler.ownerFromPath(ctx)
	if !ok {
		return
	}
	var request adjustmentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body with amount"))
		return
	}
	amount, err := ledger.SignedAmountFromDecimal(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.service.AdjustBalance(requestCtx, ledger.AdminAdjustment{
		OwnerID: ownerID,
		AdminID: currentAdmin(ctx),
		Amount:  amount,
		Reason:  request.Reason,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"owner_id":            ownerID.String(),
		"balance_after":       ledger.FormatMajor(balance.Int64()),
		"balance_after_minor": balance.Int64(),
	})
}

// handleAdminWithdrawals lists pending requests oldest first, or every request with ?status=all.
func (handler *httpHandler) handleAdminWithdrawals(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	var (
		requests []ledger.WithdrawalRequest
		err      error
	)
	switch ctx.DefaultQuery("status", string(ledger.WithdrawalStatusPending)) {
	case string(ledger.WithdrawalStatusPending):
		requests, err = handler.withdrawals.ListPending(requestCtx)
	case "all":
		requests, err = handler.withdrawals.ListAll(requestCtx)
	default:
		ctx.JSON(http.StatusBadRequest, errorResponse(ledger.KindInvalidInput.String(), "status must be pending or all"))
		return
	}
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": newWithdrawalPayloads(requests)})
}

func (handler *httpHandler) handleAdminApprove(ctx *gin.Context) {
	withdrawalID, ok := handler.withdrawalFromPath(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	request, err := handler.withdrawals.Approve(requestCtx, withdrawalID, currentAdmin(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"withdrawal": newWithdrawalPayload(request)})
}

func (handler *httpHandler) handleAdminReject(ctx *gin.Context) {
	withdrawalID, ok := handler.withdrawalFromPath(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	request, err := handler.withdrawals.Reject(requestCtx, withdrawalID, currentAdmin(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"withdrawal": newWithdrawalPayload(request)})
}
