package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UserIDKey is the gin context key holding the authenticated caller.
const UserIDKey = "user_id"

// APIKeyAuth validates the API key against the list of valid keys.
func APIKeyAuth(validKeys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("Authorization")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}
		if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
			apiKey = apiKey[7:]
		}

		for _, validKey := range validKeys {
			if apiKey == validKey {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		c.Abort()
	}
}

// UserIdentity reads the caller identity installed by the upstream auth
// layer. Session issuance itself lives outside this service.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	}
}

// RequireUser aborts requests without a caller identity. Applied to write
// endpoints; reads stay open.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(UserIDKey); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CallerID returns the authenticated caller, or "".
func CallerID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// RateLimit implements token bucket rate limiting per client IP.
func RateLimit(requestsPerMinute int) gin.HandlerFunc {
	type clientLimiter struct {
		tokens     int
		lastRefill time.Time
	}

	limiters := make(map[string]*clientLimiter)
	var mu sync.Mutex

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		mu.Lock()
		limiter, exists := limiters[clientIP]
		if !exists {
			limiter = &clientLimiter{
				tokens:     requestsPerMinute,
				lastRefill: time.Now(),
			}
			limiters[clientIP] = limiter
		}

		now := time.Now()
		tokensToAdd := int(now.Sub(limiter.lastRefill).Minutes() * float64(requestsPerMinute))
		if tokensToAdd > 0 {
			limiter.tokens = min(limiter.tokens+tokensToAdd, requestsPerMinute)
			limiter.lastRefill = now
		}

		if limiter.tokens <= 0 {
			mu.Unlock()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}

		limiter.tokens--
		mu.Unlock()

		c.Next()
	}
}

// CORS middleware
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Logging middleware
func Logging() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logrus.WithFields(logrus.Fields{
			"method":    param.Method,
			"path":      param.Path,
			"status":    param.StatusCode,
			"latency":   param.Latency,
			"client_ip": param.ClientIP,
		}).Info("HTTP Request")

		return ""
	})
}
