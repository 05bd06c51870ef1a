// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response utilities shared by all endpoints. The API
// speaks one envelope: {"status": int, "message": string}. Business failures
// are HTTP 200 with a non-zero status code from internal/apperr; only
// transport-level failures (unknown route, wrong method, oversized body,
// missing parameters, panics) surface as non-200 HTTP statuses.
//
// Example business failure:
//
//	HTTP/1.1 200 OK
//	{ "status": 202, "message": "already rated" }
//
// Example success for a status endpoint:
//
//	HTTP/1.1 200 OK
//	{ "status": 0, "message": "ok" }
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/apperr"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
)

// StatusResponse is the uniform JSON envelope.
type StatusResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// okStatus writes the success envelope for status-only endpoints.
func okStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{Status: apperr.CodeSuccess, Message: "ok"})
}

// okJSON writes a bare JSON value for getter endpoints.
func okJSON(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

// fail translates an error into the envelope. Typed failures keep HTTP 200
// with their wire code; anything untyped is an internal error, logged with
// the request-scoped logger and returned as a generic 500.
func fail(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		c.JSON(http.StatusOK, StatusResponse{Status: ae.Code, Message: ae.Message})
		return
	}
	lg := middleware.LoggerFrom(c)
	lg.Error().Err(err).Str("path", c.FullPath()).Msg("internal error")
	c.AbortWithStatusJSON(http.StatusInternalServerError,
		StatusResponse{Status: -1, Message: "internal error"})
}

// Fail is the exported variant of fail(). The router uses it for transport
// fallbacks that still want the JSON envelope.
func Fail(c *gin.Context, err error) { fail(c, err) }

// badRequest rejects a request whose declared parameter set is incomplete.
// Parameter presence is a transport concern, so this is a real HTTP 400.
func badRequest(c *gin.Context, name string) {
	c.AbortWithStatusJSON(http.StatusBadRequest,
		StatusResponse{Status: apperr.CodeInvalidParameter, Message: "missing parameter: '" + name + "'"})
}

// html writes a rendered page.
func html(c *gin.Context, body string) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}
