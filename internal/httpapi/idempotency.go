package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyKeyHeader    = "Idempotency-Key"
	idempotencyReplayHeader = "Idempotent-Replayed"
	idempotencyPrefix       = "idempotency:v1:"
	inProgressMarker        = "__in_progress__"
	idempotencyCacheTimeout = 2 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (writer *recordingWriter) Write(data []byte) (int, error) {
	writer.body.Write(data)
	return writer.ResponseWriter.Write(data)
}

func (writer *recordingWriter) WriteString(data string) (int, error) {
	writer.body.WriteString(data)
	return writer.ResponseWriter.WriteString(data)
}

// Idempotency replays the stored response for a repeated Idempotency-Key on unsafe
// requests. Keys are scoped to the signed-in user. Requests without the header pass through.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx *gin.Context) {
		switch ctx.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			ctx.Next()
			return
		}
		key := strings.TrimSpace(ctx.GetHeader(idempotencyKeyHeader))
		if key == "" {
			ctx.Next()
			return
		}
		scope := "anonymous"
		if claims := getClaims(ctx); claims != nil {
			scope = claims.GetUserID()
		}
		cacheKey := idempotencyPrefix + scope + ":" + key

		lookupCtx, cancel := context.WithTimeout(context.Background(), idempotencyCacheTimeout)
		defer cancel()

		cached, err := cache.Get(lookupCtx, cacheKey).Result()
		if err == nil {
			if cached == inProgressMarker {
				ctx.AbortWithStatusJSON(http.StatusConflict, errorResponse("duplicate_request", "duplicate request currently processing"))
				return
			}
			var stored storedResponse
			if err := json.Unmarshal([]byte(cached), &stored); err != nil {
				logger.Warn("failed to decode stored idempotent response", zap.String("key", key), zap.Error(err))
				ctx.AbortWithStatusJSON(http.StatusConflict, errorResponse("duplicate_request", "duplicate request"))
				return
			}
			ctx.Header(idempotencyReplayHeader, "true")
			ctx.Data(stored.Status, stored.ContentType, []byte(stored.Body))
			ctx.Abort()
			return
		}
		if !errors.Is(err, redis.Nil) {
			logger.Error("idempotency lookup failed", zap.String("key", key), zap.Error(err))
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse("idempotency_unavailable", "idempotency store failure"))
			return
		}
		reserved, err := cache.SetNX(lookupCtx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", zap.String("key", key), zap.Error(err))
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse("idempotency_unavailable", "idempotency reservation failure"))
			return
		}
		if !reserved {
			ctx.AbortWithStatusJSON(http.StatusConflict, errorResponse("duplicate_request", "duplicate request currently processing"))
			return
		}

		recorder := &recordingWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = recorder
		ctx.Next()

		persistCtx, persistCancel := context.WithTimeout(context.Background(), idempotencyCacheTimeout)
		defer persistCancel()

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			cache.Del(persistCtx, cacheKey)
			return
		}
		payload, err := json.Marshal(storedResponse{
			Status:      status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.String(),
		})
		if err != nil {
			logger.Error("failed to encode idempotent response", zap.String("key", key), zap.Error(err))
			cache.Del(persistCtx, cacheKey)
			return
		}
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Error("failed to persist idempotent response", zap.String("key", key), zap.Error(err))
			cache.Del(persistCtx, cacheKey)
		}
	}
}
