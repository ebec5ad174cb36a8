package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"legaladvisor/internal/auth"
	"legaladvisor/internal/logger"
	"legaladvisor/internal/metrics"
)

const (
	correlationHeader     = "X-Correlation-ID"
	correlationContextKey = "correlation_id"
)

// RequestLogger logs every request with its correlation id and records request metrics.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = logger.OrNop(log).Named("http")
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader(correlationHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		c.Set(correlationContextKey, correlationID)
		c.Header(correlationHeader, correlationID)

		c.Next()

		duration := time.Since(start)
		userID, _ := auth.UserIDFromContext(c)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("duration", duration),
			zap.String("remote_addr", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		reqLog := log.WithRequest(correlationID, userID)
		if status >= http.StatusInternalServerError {
			reqLog.Warn("request completed", fields...)
		} else {
			reqLog.Info("request completed", fields...)
		}
		metrics.RecordRequest(c.Request.Method, route, strconv.Itoa(status), duration.Seconds())
	}
}

// CORS allows the configured browser origins to call the API with credentials.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept-Language", "X-CSRF-Token", correlationHeader},
		ExposeHeaders:    []string{correlationHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           5 * time.Minute,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// rateLimit throttles an action per user. Redis errors let the request through.
func (h *Handler) rateLimit(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.Enabled() {
			c.Next()
			return
		}
		userID, _ := auth.UserIDFromContext(c)
		key := fmt.Sprintf("%s:%d", action, userID)
		decision, err := h.limiter.Allow(c.Request.Context(), key)
		if err != nil {
			h.log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please retry later"})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Next()
	}
}
