// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers stream messages, the per-user
// notification rows behind the activity feed.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateStreamMessage appends one notification row. receiverID may be empty
// for public mirror rows.
func CreateStreamMessage(ctx context.Context, db *gorm.DB, receiverID string, typ int, source, target string) error {
	m := &domain.StreamMessage{
		ID:         uuid.NewString(),
		ReceiverID: receiverID,
		Type:       typ,
		Source:     source,
		Target:     target,
		CreatedAt:  time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(m).Error
}

// ListStreamMessages returns up to limit messages for receiverID, newest
// first. When olderThan is non-zero only messages created strictly before it
// are returned, which gives clients a stable cursor.
func ListStreamMessages(ctx context.Context, db *gorm.DB, receiverID string, limit int, olderThan time.Time) ([]domain.StreamMessage, error) {
	q := db.WithContext(ctx).Where("receiver_id = ?", receiverID)
	if !olderThan.IsZero() {
		q = q.Where("created_at < ?", olderThan)
	}
	var out []domain.StreamMessage
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}
