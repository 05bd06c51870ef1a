// Package handlers – transport error surface.
//
// This file holds the dispatcher-level fallbacks for unknown routes and
// wrong methods. They are deliberately plain: clients branch on the HTTP
// status for transport problems and on the envelope's status field for
// business ones. The body-size rejections (411, 413) live with the
// middleware that enforces them.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NotFound answers an unknown route.
func NotFound(c *gin.Context) {
	c.String(http.StatusNotFound, "not found")
}

// MethodNotAllowed answers a known route hit with the wrong method.
func MethodNotAllowed(c *gin.Context) {
	c.String(http.StatusMethodNotAllowed, "method not allowed")
}
