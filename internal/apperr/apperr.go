// Package apperr defines the wire-level error taxonomy shared by the service
// and HTTP layers. Every business failure maps to a stable integer status
// code carried inside the 200 JSON envelope; only transport-level failures
// (bad route, method, oversized body) surface as non-200 HTTP statuses.
//
// The codes are part of the public API contract and must never be renumbered.
package apperr

import "fmt"

// Stable wire status codes. Success is 0; everything else is a failure class.
const (
	CodeSuccess                  = 0
	CodeInvalidParameter         = 1
	CodeNotAuthorized            = 2
	CodeAccountBlocked           = 3
	CodeTooManyRequests          = 4
	CodeUserAlreadyExists        = 100
	CodeUsernameAlreadyRequested = 101
	CodeEmailAlreadyAssigned     = 102
	CodeInvalidRequestCode       = 103
	CodeUserNotFound             = 104
	CodeObjectNotFound           = 200
	CodeObjectLocked             = 201
	CodeAlreadyRated             = 202
	CodeTagExists                = 203
	CodeAlreadyRecommended       = 204
	CodeNotFriends               = 205
	CodeCommentTooLong           = 206
	CodePayloadTooLarge          = 207
)

// Error is a typed business failure with a stable wire code.
//
// Services return *Error (usually one of the package-level sentinels below);
// handlers unwrap it with errors.As and serialise {status, message}.
type Error struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// New builds an Error with the given code and message.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// InvalidParameter reports a syntactically invalid request parameter.
// The message format is fixed by the API contract.
func InvalidParameter(name string) *Error {
	return &Error{Code: CodeInvalidParameter, Message: fmt.Sprintf("Invalid parameter: '%s'", name)}
}

// Shared sentinel failures. These carry no per-call state, so handlers and
// tests may compare them with errors.Is.
var (
	ErrNotAuthorized            = New(CodeNotAuthorized, "not authorized")
	ErrAccountBlocked           = New(CodeAccountBlocked, "account is blocked")
	ErrTooManyRequests          = New(CodeTooManyRequests, "too many requests")
	ErrUserAlreadyExists        = New(CodeUserAlreadyExists, "user already exists")
	ErrUsernameAlreadyRequested = New(CodeUsernameAlreadyRequested, "username already requested")
	ErrEmailAlreadyAssigned     = New(CodeEmailAlreadyAssigned, "email already assigned")
	ErrInvalidRequestCode       = New(CodeInvalidRequestCode, "invalid request code")
	ErrUserNotFound             = New(CodeUserNotFound, "user not found")
	ErrObjectNotFound           = New(CodeObjectNotFound, "object not found")
	ErrObjectLocked             = New(CodeObjectLocked, "object is locked")
	ErrAlreadyRated             = New(CodeAlreadyRated, "already rated")
	ErrTagExists                = New(CodeTagExists, "tag already exists")
	ErrAlreadyRecommended       = New(CodeAlreadyRecommended, "already recommended")
	ErrNotFriends               = New(CodeNotFriends, "receiver is not a friend")
	ErrCommentTooLong           = New(CodeCommentTooLong, "comment too long")
	ErrPayloadTooLarge          = New(CodePayloadTooLarge, "payload too large")
)
