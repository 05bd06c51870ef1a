// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Object rows
// and the listing queries behind the browse endpoints.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// GetObject fetches an object by GUID.
func GetObject(ctx context.Context, db *gorm.DB, guid string) (*domain.Object, error) {
	var o domain.Object
	if err := db.WithContext(ctx).Where("guid = ?", guid).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// EnsureObject returns the object for guid, registering an empty record on
// first touch. Objects are opaque; the system learns about them when a user
// first tags, rates or otherwise curates them.
func EnsureObject(ctx context.Context, db *gorm.DB, guid, source string) (*domain.Object, error) {
	o := &domain.Object{GUID: guid, Source: source, CreatedAt: time.Now().UTC()}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(o).Error
	if err != nil {
		return nil, err
	}
	return GetObject(ctx, db, guid)
}

// ListObjects returns a page of objects, newest first.
func ListObjects(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Object, error) {
	var out []domain.Object
	err := db.WithContext(ctx).
		Order("created_at DESC, guid ASC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// ListObjectsByTag returns a page of objects carrying tag (stored lowercase),
// ordered by tagging recency.
func ListObjectsByTag(ctx context.Context, db *gorm.DB, tag string, offset, limit int) ([]domain.Object, error) {
	var out []domain.Object
	err := db.WithContext(ctx).
		Joins("JOIN tags ON tags.object_guid = objects.guid").
		Where("tags.tag = ?", tag).
		Group("objects.guid").
		Order("MAX(tags.created_at) DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// ListPopularObjects returns a page ordered by net score, favorites breaking
// ties.
func ListPopularObjects(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Object, error) {
	var out []domain.Object
	err := db.WithContext(ctx).
		Order("(up - down) DESC, favorites DESC, guid ASC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// ListRandomObjects returns up to limit objects in random order.
func ListRandomObjects(ctx context.Context, db *gorm.DB, limit int) ([]domain.Object, error) {
	var out []domain.Object
	err := db.WithContext(ctx).
		Order("RANDOM()").
		Limit(limit).
		Find(&out).Error
	return out, err
}
