// Package ratelimit counts requests per client IP over a rolling hour,
// separately for a small set of request classes, and admits or rejects new
// requests against per-class caps.
//
// The backing store is pluggable: MemoryStore for single-process deployments
// and RedisStore (sorted sets, one per class/IP pair) when the limit must
// hold across replicas.
package ratelimit

import (
	"context"
	"time"

	"github.com/tbourn/go-social-backend/internal/apperr"
)

// Window is the rolling interval over which requests are counted.
const Window = time.Hour

// Class partitions the counters so expensive endpoints get tighter caps.
type Class string

// Request classes.
const (
	AccountRequest Class = "account_request"
	PasswordReset  Class = "password_reset"
	DefaultRequest Class = "default"
)

// Store persists timestamped request records per (class, ip).
type Store interface {
	// Add appends one record observed at now.
	Add(ctx context.Context, class Class, ip string, now time.Time) error
	// CountSince returns the number of records at or after since.
	CountSince(ctx context.Context, class Class, ip string, since time.Time) (int, error)
}

// Caps holds the per-class hourly maxima.
type Caps struct {
	AccountRequests int
	PasswordResets  int
	Default         int
}

// Limiter admits requests against rolling-hour caps. When Enabled is false
// every call is a no-op, matching the LIMIT_REQUESTS master switch.
type Limiter struct {
	Store   Store
	Caps    Caps
	Enabled bool

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// New returns a Limiter over store with the given caps.
func New(store Store, caps Caps, enabled bool) *Limiter {
	return &Limiter{Store: store, Caps: caps, Enabled: enabled, now: time.Now}
}

func (l *Limiter) cap(class Class) int {
	switch class {
	case AccountRequest:
		return l.Caps.AccountRequests
	case PasswordReset:
		return l.Caps.PasswordResets
	default:
		return l.Caps.Default
	}
}

// Record appends one request record without enforcing a cap.
func (l *Limiter) Record(ctx context.Context, class Class, ip string) error {
	if !l.Enabled {
		return nil
	}
	return l.Store.Add(ctx, class, ip, l.now())
}

// Count returns the number of records for (class, ip) in the last hour.
func (l *Limiter) Count(ctx context.Context, class Class, ip string) (int, error) {
	if !l.Enabled {
		return 0, nil
	}
	now := l.now()
	return l.Store.CountSince(ctx, class, ip, now.Add(-Window))
}

// Admit records the request and fails with apperr.ErrTooManyRequests when the
// post-record count within the window exceeds the class cap.
func (l *Limiter) Admit(ctx context.Context, class Class, ip string) error {
	if !l.Enabled {
		return nil
	}
	now := l.now()
	if err := l.Store.Add(ctx, class, ip, now); err != nil {
		return err
	}
	n, err := l.Store.CountSince(ctx, class, ip, now.Add(-Window))
	if err != nil {
		return err
	}
	if n > l.cap(class) {
		return apperr.ErrTooManyRequests
	}
	return nil
}
