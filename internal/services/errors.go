// Package services implements the business operations behind the public API:
// account lifecycle, the signed-request gate, and all object curation actions.
// This file centralizes error translation so that storage and crypto failures
// surface as the stable wire taxonomy defined in internal/apperr.
//
// Services return *apperr.Error for every predictable failure; handlers
// serialise them into the {status, message} envelope. Anything else is an
// internal error and becomes a generic HTTP 500 at the edge.
package services

import (
	"errors"

	"github.com/tbourn/go-social-backend/internal/apperr"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/signature"
)

// ErrExpired is the replay failure: the signature itself is valid but the
// signed timestamp fell outside the freshness window. It shares the
// NotAuthorized wire code with a distinguishing message.
var ErrExpired = apperr.New(apperr.CodeNotAuthorized, "request expired")

// asUserLookup maps a storage miss on a user row to the wire taxonomy.
func asUserLookup(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.ErrUserNotFound
	}
	return err
}

// asObjectLookup maps a storage miss on an object row to the wire taxonomy.
func asObjectLookup(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.ErrObjectNotFound
	}
	return err
}

// asRequestLookup maps a missing or expired request code to the wire taxonomy.
func asRequestLookup(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.ErrInvalidRequestCode
	}
	return err
}

// asVerify maps signature verification failures. A bad signature and an
// unknown user are indistinguishable on the wire.
func asVerify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, signature.ErrExpired):
		return ErrExpired
	case errors.Is(err, signature.ErrBadSignature):
		return apperr.ErrNotAuthorized
	}
	return err
}
