// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (exported as ErrNotFound in db.go).
//   - On DB errors the raw gorm error is propagated; business rules live in
//     the service layer.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateUser inserts a new User row. ID, timestamps are filled in here;
// everything else comes from the caller.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(u).Error
}

// GetUserByUsername fetches a non-deleted user by its lowercase username.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID fetches a non-deleted user by primary key.
func GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UsernameTaken reports whether username exists at all, including
// soft-deleted rows: a deleted user keeps its username reserved.
func UsernameTaken(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Unscoped().Model(&domain.User{}).
		Where("username = ?", username).Count(&n).Error
	return n > 0, err
}

// EmailAssigned reports whether email belongs to a live (non-deleted) user.
func EmailAssigned(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).
		Where("email = ?", email).Count(&n).Error
	return n > 0, err
}

// UpdateUser persists the mutable profile columns of u.
func UpdateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return db.WithContext(ctx).Model(u).
		Select("email", "firstname", "lastname", "gender", "language", "protected", "avatar_file").
		Updates(u).Error
}

// UpdatePassword stores a new salted hash for the user.
func UpdatePassword(ctx context.Context, db *gorm.DB, userID, hash, salt string) error {
	return db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).
		Updates(map[string]any{"password_hash": hash, "password_salt": salt}).Error
}

// SoftDeleteUser marks the user deleted. The row, and with it the username
// reservation, is retained.
func SoftDeleteUser(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).Where("id = ?", userID).Delete(&domain.User{}).Error
}

// SearchUsers returns non-deleted, non-blocked users whose username contains
// query, ordered by username, bounded by limit.
func SearchUsers(ctx context.Context, db *gorm.DB, query string, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Where("username LIKE ? AND blocked = ?", "%"+query+"%", false).
		Order("username ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
