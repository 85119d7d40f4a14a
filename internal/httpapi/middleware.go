package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// HeaderRequestID carries the request correlation id.
	HeaderRequestID = "X-Request-ID"

	requestIDContextKey = "request_id"
	maxRequestIDLength  = 64
)

// RequestID assigns a correlation id to every request and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(context *gin.Context) {
		requestID := strings.TrimSpace(context.GetHeader(HeaderRequestID))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		context.Set(requestIDContextKey, requestID)
		context.Header(HeaderRequestID, requestID)
		context.Next()
	}
}

// RequestIDFromContext returns the id assigned by RequestID, or an empty string.
func RequestIDFromContext(context *gin.Context) string {
	return context.GetString(requestIDContextKey)
}

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
			zap.String("request_id", RequestIDFromContext(context)),
		)
	}
}

// Recovery turns a panic into a JSON failure so the client never sees internal details.
func Recovery(logger *zap.Logger, failureMessage string) gin.HandlerFunc {
	return gin.CustomRecovery(func(context *gin.Context, recovered any) {
		logger.Error("panic_recovered",
			zap.Any("panic", recovered),
			zap.String("path", context.Request.URL.Path),
			zap.String("request_id", RequestIDFromContext(context)),
		)
		context.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": failureMessage})
	})
}
