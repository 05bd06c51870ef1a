// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file wires the rolling-hour rate limiter into the request path. Every
// endpoint is admitted under a request class (account requests, password
// resets, or the default class) counted per client IP; admission both records
// the request and rejects it when the hourly cap is exceeded.
//
// Notes:
//   - The client IP is the last entry of X-Forwarded-For when present, else
//     the socket peer. A client-supplied IP field is never trusted.
//   - Rejections keep the JSON envelope with the TooManyRequests wire code;
//     the HTTP status stays 200 because the limit is a business outcome, not
//     a transport failure.
package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/apperr"
	"github.com/tbourn/go-social-backend/internal/ratelimit"
)

// clientIPKey is the Gin context key caching the resolved client IP.
const clientIPKey = "clientIP"

// ClientIP resolves the caller's IP for rate limiting and logging.
//
// The last X-Forwarded-For entry is the address the nearest proxy saw, which
// is the only one it can vouch for; earlier entries are client-controlled.
func ClientIP(c *gin.Context) string {
	if v, ok := c.Get(clientIPKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	ip := ""
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		ip = strings.TrimSpace(parts[len(parts)-1])
	}
	if ip == "" {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		ip = host
	}
	c.Set(clientIPKey, ip)
	return ip
}

// RateLimit returns a middleware admitting requests under the given class.
//
// Admission records the request first, so rejected requests still count
// against the window. When the limiter is disabled the middleware is a
// pass-through.
func RateLimit(limiter *ratelimit.Limiter, class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := limiter.Admit(c.Request.Context(), class, ClientIP(c))
		if err == nil {
			c.Next()
			return
		}
		if err == apperr.ErrTooManyRequests {
			c.AbortWithStatusJSON(http.StatusOK, gin.H{
				"status":  apperr.CodeTooManyRequests,
				"message": apperr.ErrTooManyRequests.Message,
			})
			return
		}
		// Store failure: log via the request logger and fail the request
		// rather than silently admitting unbounded traffic.
		LoggerFrom(c).Error().Err(err).Msg("rate limiter store failure")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"status":  -1,
			"message": "internal error",
		})
	}
}
