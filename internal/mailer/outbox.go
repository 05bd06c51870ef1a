package mailer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/repo"
)

// Outbox is the web tier's handle on the mail queue: Push persists a mail,
// Wake pokes the delivery worker over UDP so it does not wait out the next
// interval. A failed wake is logged and swallowed; the interval timer will
// pick the mail up anyway.
type Outbox struct {
	DB       *gorm.DB
	Lifetime time.Duration // how long undelivered mail stays eligible
	Addr     string        // worker UDP address, empty disables wakes
	Log      zerolog.Logger
}

// Push enqueues one mail and returns its id.
func (o *Outbox) Push(ctx context.Context, subject, body, receiver string) (string, error) {
	return repo.PushMail(ctx, o.DB, subject, body, receiver, o.Lifetime)
}

// Wake sends the ping datagram to the worker.
func (o *Outbox) Wake() {
	if o.Addr == "" {
		return
	}
	if err := Ping(o.Addr); err != nil {
		o.Log.Warn().Err(err).Str("addr", o.Addr).Msg("mailer wake failed")
	}
}
