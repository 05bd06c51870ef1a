// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the request body posture: every POST must declare a
// Content-Length, and no declared or actual body may exceed the configured
// ceiling. The declared length is checked before the body is read; an
// http.MaxBytesReader backstops clients that understate it.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodyLimit returns a middleware enforcing the request size posture.
//
// Behavior:
//   - POST without a Content-Length header → 411 Length Required
//   - Content-Length above maxBytes → 413 Request Entity Too Large, before
//     any body bytes are consumed
//   - The body reader is wrapped so an understated Content-Length still
//     cannot stream more than maxBytes
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.Request
		if r.Method == http.MethodPost {
			if r.ContentLength < 0 {
				c.AbortWithStatus(http.StatusLengthRequired)
				return
			}
			if r.ContentLength > maxBytes {
				c.AbortWithStatus(http.StatusRequestEntityTooLarge)
				return
			}
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(c.Writer, r.Body, maxBytes)
		}
		c.Next()
	}
}
