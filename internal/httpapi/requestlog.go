package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/wallet/internal/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// requestLogger tags every request with an id, echoes it back, and logs the start and end.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := requestid.Resolve(ctx.GetHeader(requestid.Header))
		ctx.Request = ctx.Request.WithContext(requestid.WithID(ctx.Request.Context(), id))
		ctx.Header(requestid.Header, id)

		started := time.Now()
		logger.Info("request_start",
			zap.String("request_id", id),
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
		)
		ctx.Next()
		logger.Info("request_end",
			zap.String("request_id", id),
			zap.String("method", ctx.Request.Method),
			zap.String("route", routeLabel(ctx)),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("duration", time.Since(started)),
		)
	}
}
