package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

// sessionOwner resolves the signed-in owner or writes a 401.
func sessionOwner(ctx *gin.Context) (*sessionvalidator.Claims, ledger.OwnerID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "missing session"))
		return nil, ledger.OwnerID{}, false
	}
	ownerID, err := ledger.NewOwnerID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "session has no user id"))
		return nil, ledger.OwnerID{}, false
	}
	return claims, ownerID, true
}

func hasRole(claims *sessionvalidator.Claims, role string) bool {
	for _, candidate := range claims.GetUserRoles() {
		if candidate == role {
			return true
		}
	}
	return false
}

func bindAmount(ctx *gin.Context) (ledger.PositiveAmountCents, bool) {
	var request amountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected JSON body with amount"))
		return 0, false
	}
	amount, err := ledger.PositiveAmountFromDecimal(request.Amount)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(ledger.KindInvalidInput.String(), err.Error()))
		return 0, false
	}
	return amount, true
}

func pageRequestFromQuery(ctx *gin.Context) (ledger.PageRequest, error) {
	page, err := queryInt(ctx, "page")
	if err != nil {
		return ledger.PageRequest{}, err
	}
	limit, err := queryInt(ctx, "limit")
	if err != nil {
		return ledger.PageRequest{}, err
	}
	return ledger.NewPageRequest(page, limit)
}

func queryInt(ctx *gin.Context, name string) (int, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ledger.ErrInvalidPagination, name)
	}
	// An explicit value must be positive; only an absent one takes the default.
	if value < 1 {
		return 0, fmt.Errorf("%w: %s must be at least 1", ledger.ErrInvalidPagination, name)
	}
	return value, nil
}

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	claims, _, ok := sessionOwner(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":    claims.GetUserID(),
		"email":      claims.GetUserEmail(),
		"display":    claims.GetUserDisplayName(),
		"avatar_url": claims.GetUserAvatarURL(),
		"roles":      claims.GetUserRoles(),
		"expires":    claims.GetExpiresAt().Unix(),
	})
}

// handleBootstrap registers the signed-in user and opens the wallet.
func (handler *httpHandler) handleBootstrap(ctx *gin.Context) {
	claims, ownerID, ok := sessionOwner(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	role := ledger.AccountRoleUser
	if hasRole(claims, adminRole) {
		role = ledger.AccountRoleAdmin
	}
	account, err := handler.service.RegisterAccount(requestCtx, ownerID, claims.GetUserEmail(), role)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	wallet, err := handler.service.Wallet(requestCtx, ownerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account": newAccountPayload(account),
		"wallet":  newWalletPayload(wallet),
	})
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	_, ownerID, ok := sessionOwner(ctx)
	if !ok {
		return
	}
	handler.respondWithWallet(ctx, ownerID)
}

func (handler *httpHandler) respondWithWallet(ctx *gin.Context, ownerID ledger.OwnerID) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	wallet, err := handler.service.Wallet(requestCtx, ownerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": newWalletPayload(wallet)})
}

func (handler *httpHandler) handleTransactions(ctx *gin.Context) {
	_, ownerID, ok := sessionOwner(ctx)
	if !ok {
		return
	}
	handler.respondWithTransactions(ctx, ownerID)
}

func (handler *httpHandler) respondWithTransactions(ctx *gin.Context, ownerID ledger.OwnerID) {
	request, err := pageRequestFromQuery(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	page, err := handler.service.Transactions(requestCtx, ownerID, request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newTransactionPagePayload(page))
}

func (handler *httpHandler) handleTestDeposit(ctx *gin.Context) {
	_, ownerID, ok := sessionOwner(ctx)
	if !ok {
		return
	}
	amount, ok := bindAmount(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transaction, err := handler.deposits.CreditTestDeposit(requestCtx, ownerID, amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"transaction": newTransactionPayload(transaction)})
}

func (handler *httpHandler) handleCreateOrder(ctx *gin.Context) {
	_, ownerID, ok := sessionOwner(ctx)
	if !ok {
		return
	}
	amount, ok := bindAmount(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	record, err := handler.deposits.CreateDepositOrder(requestCtx, ownerID, amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"order": newOrderPayload(record)})
}

func (handler *httpHandler) handleCreateWithdrawal(ctx *gin.Context) {
	_, ownerID, ok := sessionOwner(ctx)
	if !ok {
		return
	}
	amount, ok := bindAmount(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	request, err := handler.withdrawals.Create(requestCtx, ownerID, amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"withdrawal": newWithdrawalPayload(request)})
}

func (handler *httpHandler) handleListWithdrawals(ctx *gin.Context) {
	_, ownerID, ok := sessionOwner(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	requests, err := handler.withdrawals.ListForOwner(requestCtx, ownerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": newWithdrawalPayloads(requests)})
}

// handlePaymentWebhook verifies and reconciles gateway notifications.
// Unknown orders and replays are acknowledged with 200 so the gateway stops retrying.
func (handler *httpHandler) handlePaymentWebhook(ctx *gin.Context) {
	rawBody, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBodyBytes))
	if err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "unreadable body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	outcome, err := handler.deposits.HandleWebhook(requestCtx, rawBody, ctx.GetHeader(signatureHeader))
	if err != nil {
		if ledger.KindOf(err) == ledger.KindInvalidSignature {
			handler.logger.Warn("payment webhook rejected", zap.Error(err))
		}
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"credited": outcome.Credited,
		"detail":   outcome.Detail,
	})
}
