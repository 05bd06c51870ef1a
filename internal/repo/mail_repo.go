// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the durable mail queue consumed by the mailer
// worker.
//
// Invariants:
//   - MarkMailSent is idempotent and monotonic: once sent, always sent.
//   - PendingMail never returns a row past its lifetime, so an expired but
//     unpurged row can never be delivered late.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// sqliteTime renders t the way the sqlite date functions expect it.
func sqliteTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// PushMail appends one outgoing message and returns its id. receiver is a
// mail address, or a "user:<username>" reference resolved at delivery time.
func PushMail(ctx context.Context, db *gorm.DB, subject, body, receiver string, lifetime time.Duration) (string, error) {
	m := &domain.Mail{
		ID:        uuid.NewString(),
		Subject:   subject,
		Body:      body,
		Receiver:  receiver,
		Lifetime:  int64(lifetime / time.Second),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return "", err
	}
	return m.ID, nil
}

// PendingMail returns up to limit unsent, unexpired rows ordered by
// (created_at, id) ascending.
func PendingMail(ctx context.Context, db *gorm.DB, limit int) ([]domain.Mail, error) {
	var out []domain.Mail
	err := db.WithContext(ctx).
		Where("sent = ?", false).
		Where("(julianday(?) - julianday(created_at)) * 86400 <= lifetime", sqliteTime(time.Now())).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkMailSent flips the sent flag. Calling it again, or on an already sent
// row, is a no-op.
func MarkMailSent(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Model(&domain.Mail{}).
		Where("id = ? AND sent = ?", id, false).
		UpdateColumn("sent", true).Error
}

// PurgeExpiredMail removes unsent rows whose lifetime has elapsed at now.
// Operator-invoked; delivery never races with it because PendingMail already
// excludes expired rows.
func PurgeExpiredMail(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("sent = ?", false).
		Where("(julianday(?) - julianday(created_at)) * 86400 > lifetime", sqliteTime(now)).
		Delete(&domain.Mail{})
	return res.RowsAffected, res.Error
}
