// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file handles the pending account and password-reset
// request tables. Expiry is evaluated in queries, so callers never see a
// stale request; consumed rows are hard-deleted.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateUserRequest inserts a pending account creation.
func CreateUserRequest(ctx context.Context, db *gorm.DB, code, username, email string) (*domain.UserRequest, error) {
	r := &domain.UserRequest{
		ID:        uuid.NewString(),
		Code:      code,
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetUserRequestByCode fetches a pending request younger than timeout.
func GetUserRequestByCode(ctx context.Context, db *gorm.DB, code string, timeout time.Duration) (*domain.UserRequest, error) {
	var r domain.UserRequest
	cutoff := time.Now().UTC().Add(-timeout)
	err := db.WithContext(ctx).
		Where("code = ? AND created_at > ?", code, cutoff).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ActiveUserRequestExists reports whether a non-expired request already holds
// the username.
func ActiveUserRequestExists(ctx context.Context, db *gorm.DB, username string, timeout time.Duration) (bool, error) {
	var n int64
	cutoff := time.Now().UTC().Add(-timeout)
	err := db.WithContext(ctx).Model(&domain.UserRequest{}).
		Where("username = ? AND created_at > ?", username, cutoff).
		Count(&n).Error
	return n > 0, err
}

// DeleteUserRequest removes a consumed (or abandoned) request row.
func DeleteUserRequest(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.UserRequest{}).Error
}

// CreatePasswordRequest inserts a pending password reset for userID.
func CreatePasswordRequest(ctx context.Context, db *gorm.DB, code, userID string) (*domain.PasswordRequest, error) {
	r := &domain.PasswordRequest{
		ID:        uuid.NewString(),
		Code:      code,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetPasswordRequestByCode fetches a pending reset younger than timeout.
func GetPasswordRequestByCode(ctx context.Context, db *gorm.DB, code string, timeout time.Duration) (*domain.PasswordRequest, error) {
	var r domain.PasswordRequest
	cutoff := time.Now().UTC().Add(-timeout)
	err := db.WithContext(ctx).
		Where("code = ? AND created_at > ?", code, cutoff).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeletePasswordRequest removes a consumed reset row.
func DeletePasswordRequest(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.PasswordRequest{}).Error
}

// RequestCodeExists reports whether code is already present in either request
// table. Used to regenerate until unique.
func RequestCodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&domain.UserRequest{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if err := db.WithContext(ctx).Model(&domain.PasswordRequest{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
