// Package services – shared request authentication and credential material.
//
// Every authenticated operation starts from a RequestData descriptor carrying
// the caller's username, the signed timestamp, the signature, and the full
// signed parameter set. The authenticator resolves the user, verifies the
// signature against the stored password hash (which doubles as the signing
// secret) and applies the blocked check. Request codes and issued passwords
// are generated here from crypto/rand.
package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/apperr"
	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/signature"
)

// RequestData describes one signed request. Params holds every signed
// parameter (username and timestamp included, signature excluded), exactly as
// the client canonicalised them.
type RequestData struct {
	Username  string
	Timestamp string
	Signature string
	Params    map[string]string
}

// authenticator is embedded by the services so they share one signed-request
// gate. The now seam keeps the freshness window testable.
type authenticator struct {
	DB     *gorm.DB
	Expiry time.Duration
	now    func() time.Time
}

// authenticate resolves the caller and verifies the request signature.
// An unknown username reports NotAuthorized, not UserNotFound, so the
// endpoint does not leak account existence to unauthenticated probes.
func (a *authenticator) authenticate(ctx context.Context, rd RequestData) (*domain.User, error) {
	u, err := repo.GetUserByUsername(ctx, a.DB, foldUsername(rd.Username))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.ErrNotAuthorized
		}
		return nil, err
	}
	if err := asVerify(signature.Verify(u.PasswordHash, rd.Params, rd.Signature, a.now(), a.Expiry)); err != nil {
		return nil, err
	}
	if u.Blocked {
		return nil, apperr.ErrAccountBlocked
	}
	return u, nil
}

// passwordAlphabet is the pool issued passwords draw from. Every rune
// satisfies the password validator.
const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!?$%&=+~#*:;,.-"

// newRequestCode returns n URL-safe base64 characters from crypto/rand.
func newRequestCode(n int) (string, error) {
	raw := make([]byte, (n*6+7)/8+1)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:n], nil
}

// uniqueRequestCode regenerates until the code collides with neither pending
// request table.
func uniqueRequestCode(ctx context.Context, db *gorm.DB, n int) (string, error) {
	for {
		code, err := newRequestCode(n)
		if err != nil {
			return "", err
		}
		exists, err := repo.RequestCodeExists(ctx, db, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
}

// newPassword returns n random characters from the password alphabet.
func newPassword(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = passwordAlphabet[int(b)%len(passwordAlphabet)]
	}
	return string(out), nil
}

// newSalt returns a fresh 16-hex-char password salt.
func newSalt() (string, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// hashPassword derives the stored credential: hex(sha256(salt || password)).
// The result is also the secret for the signed-request protocol.
func hashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}
