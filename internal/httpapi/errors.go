package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/wallet/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeUnauthorized   = "unauthorized"
	codeForbidden      = "forbidden"
	codeInvalidPayload = "invalid_payload"
)

var statusByKind = map[ledger.ErrorKind]int{
	ledger.KindInsufficientBalance:    http.StatusUnprocessableEntity,
	ledger.KindAccountFrozen:          http.StatusForbidden,
	ledger.KindBelowMinimum:           http.StatusUnprocessableEntity,
	ledger.KindAlreadyProcessed:       http.StatusConflict,
	ledger.KindNotFound:               http.StatusNotFound,
	ledger.KindInvalidSignature:       http.StatusBadRequest,
	ledger.KindGatewayNotConfigured:   http.StatusServiceUnavailable,
	ledger.KindDisabled:               http.StatusForbidden,
	ledger.KindInvalidInput:           http.StatusBadRequest,
	ledger.KindAtomicScopeUnsupported: http.StatusServiceUnavailable,
	ledger.KindInternal:               http.StatusInternalServerError,
}

// statusForError maps a ledger error onto an HTTP status.
func statusForError(err error) int {
	if status, ok := statusByKind[ledger.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	kind := ledger.KindOf(err)
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.String("kind", kind.String()), zap.Error(err))
		ctx.JSON(status, errorResponse(kind.String(), http.StatusText(status)))
		return
	}
	ctx.JSON(status, errorResponse(kind.String(), err.Error()))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
