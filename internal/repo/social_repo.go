// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers the curation tables: scores, favorites,
// friendships, tags, comments and recommendations.
//
// Uniqueness is enforced by composite unique indexes; inserts go through
// ON CONFLICT DO NOTHING and report via RowsAffected whether the row was
// actually created. That makes duplicate detection race-safe without
// SELECT-then-INSERT windows. Aggregate counters on objects are updated in
// the same transaction as the row they count.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// CreateScore inserts a vote for (userID, objectGUID) and bumps the matching
// counter. created is false when the pair already voted.
func CreateScore(ctx context.Context, db *gorm.DB, userID, objectGUID string, up bool) (created bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s := &domain.Score{
			ID:         uuid.NewString(),
			UserID:     userID,
			ObjectGUID: objectGUID,
			Up:         up,
			CreatedAt:  time.Now().UTC(),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(s)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		col := "down"
		if up {
			col = "up"
		}
		return tx.Model(&domain.Object{}).Where("guid = ?", objectGUID).
			UpdateColumn(col, gorm.Expr(col+" + 1")).Error
	})
	return created, err
}

// SetFavorite drives the favorite flag for (userID, objectGUID) to want,
// idempotently, keeping the object's favorites counter in step.
func SetFavorite(ctx context.Context, db *gorm.DB, userID, objectGUID string, want bool) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if want {
			f := &domain.Favorite{
				ID:         uuid.NewString(),
				UserID:     userID,
				ObjectGUID: objectGUID,
				CreatedAt:  time.Now().UTC(),
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(f)
			if res.Error != nil || res.RowsAffected == 0 {
				return res.Error
			}
			return tx.Model(&domain.Object{}).Where("guid = ?", objectGUID).
				UpdateColumn("favorites", gorm.Expr("favorites + 1")).Error
		}
		res := tx.Where("user_id = ? AND object_guid = ?", userID, objectGUID).
			Delete(&domain.Favorite{})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		return tx.Model(&domain.Object{}).Where("guid = ?", objectGUID).
			UpdateColumn("favorites", gorm.Expr("favorites - 1")).Error
	})
}

// ListFavoriteObjects returns a page of the user's favorite objects, most
// recently favored first.
func ListFavoriteObjects(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Object, error) {
	var out []domain.Object
	err := db.WithContext(ctx).
		Joins("JOIN favorites ON favorites.object_guid = objects.guid").
		Where("favorites.user_id = ?", userID).
		Order("favorites.created_at DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// SetFriendship drives the follower → followee edge to want, idempotently.
// It reports whether the call changed anything.
func SetFriendship(ctx context.Context, db *gorm.DB, followerID, followeeID string, want bool) (changed bool, err error) {
	if want {
		f := &domain.Friendship{
			ID:         uuid.NewString(),
			FollowerID: followerID,
			FolloweeID: followeeID,
			CreatedAt:  time.Now().UTC(),
		}
		res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f)
		return res.RowsAffected > 0, res.Error
	}
	res := db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&domain.Friendship{})
	return res.RowsAffected > 0, res.Error
}

// FriendshipExists reports whether follower follows followee.
func FriendshipExists(ctx context.Context, db *gorm.DB, followerID, followeeID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Friendship{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&n).Error
	return n > 0, err
}

// CreateTag inserts one (user, object, tag) triple; created is false when
// the triple already exists.
func CreateTag(ctx context.Context, db *gorm.DB, userID, objectGUID, tag string) (created bool, err error) {
	t := &domain.Tag{
		ID:         uuid.NewString(),
		UserID:     userID,
		ObjectGUID: objectGUID,
		Tag:        tag,
		CreatedAt:  time.Now().UTC(),
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(t)
	return res.RowsAffected > 0, res.Error
}

// ListObjectTags returns the distinct tags on an object, alphabetically.
func ListObjectTags(ctx context.Context, db *gorm.DB, objectGUID string) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).Model(&domain.Tag{}).
		Distinct("tag").
		Where("object_guid = ?", objectGUID).
		Order("tag ASC").
		Pluck("tag", &out).Error
	return out, err
}

// CreateComment inserts a comment and bumps the object's comment counter.
func CreateComment(ctx context.Context, db *gorm.DB, objectGUID, userID, username, text string) (*domain.Comment, error) {
	c := &domain.Comment{
		ID:         uuid.NewString(),
		ObjectGUID: objectGUID,
		UserID:     userID,
		Username:   username,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Object{}).Where("guid = ?", objectGUID).
			UpdateColumn("comments", gorm.Expr("comments + 1")).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments returns a page of comments on an object, oldest first.
func ListComments(ctx context.Context, db *gorm.DB, objectGUID string, offset, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("object_guid = ?", objectGUID).
		Order("created_at ASC, id ASC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// CreateRecommendation inserts one (sender, receiver, object) triple;
// created is false when it already exists.
func CreateRecommendation(ctx context.Context, db *gorm.DB, senderID, receiverID, objectGUID string) (created bool, err error) {
	r := &domain.Recommendation{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		ObjectGUID: objectGUID,
		CreatedAt:  time.Now().UTC(),
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(r)
	return res.RowsAffected > 0, res.Error
}

// ListReceivedRecommendations returns a page of objects recommended to the
// user, newest first.
func ListReceivedRecommendations(ctx context.Context, db *gorm.DB, receiverID string, offset, limit int) ([]domain.Object, error) {
	var out []domain.Object
	err := db.WithContext(ctx).
		Joins("JOIN recommendations ON recommendations.object_guid = objects.guid").
		Where("recommendations.receiver_id = ?", receiverID).
		Order("recommendations.created_at DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}
