// Package services – ObjectService
//
// This file implements the curation actions on shared objects: listings,
// details, tagging, voting, favoring, commenting and recommending. Objects
// are opaque GUID-identified records registered on first touch; a locked
// object rejects every mutating action.
package services

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/apperr"
	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
)

// ObjectDetails bundles an object with its distinct tag set.
type ObjectDetails struct {
	Object *domain.Object `json:"object"`
	Tags   []string       `json:"tags"`
}

// ObjectService owns curation actions on objects.
type ObjectService struct {
	authenticator

	CommentMaxLength    int
	OpenRecommendations bool
	DefaultPageSize     int
}

// NewObjectService constructs an ObjectService with production defaults.
func NewObjectService(db *gorm.DB, expiry time.Duration) *ObjectService {
	return &ObjectService{
		authenticator:    authenticator{DB: db, Expiry: expiry, now: time.Now},
		CommentMaxLength: 1024,
		DefaultPageSize:  20,
	}
}

// getUnlocked fetches an object for mutation, rejecting unknown and locked
// ones.
func (s *ObjectService) getUnlocked(ctx context.Context, guid string) (*domain.Object, error) {
	o, err := repo.GetObject(ctx, s.DB, guid)
	if err != nil {
		return nil, asObjectLookup(err)
	}
	if o.Locked {
		return nil, apperr.ErrObjectLocked
	}
	return o, nil
}

// List returns a page of objects, newest first.
func (s *ObjectService) List(ctx context.Context, rd RequestData, page, pageSize int) ([]domain.Object, error) {
	if _, err := s.authenticate(ctx, rd); err != nil {
		return nil, err
	}
	offset, limit := clampPage(page, pageSize, s.DefaultPageSize)
	return repo.ListObjects(ctx, s.DB, offset, limit)
}

// ListByTag returns a page of objects carrying the given tag, ordered by the
// most recent tagging.
func (s *ObjectService) ListByTag(ctx context.Context, rd RequestData, tag string, page, pageSize int) ([]domain.Object, error) {
	if _, err := s.authenticate(ctx, rd); err != nil {
		return nil, err
	}
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return nil, apperr.InvalidParameter("tag")
	}
	offset, limit := clampPage(page, pageSize, s.DefaultPageSize)
	return repo.ListObjectsByTag(ctx, s.DB, tag, offset, limit)
}

// ListPopular returns a page of objects ordered by vote balance.
func (s *ObjectService) ListPopular(ctx context.Context, rd RequestData, page, pageSize int) ([]domain.Object, error) {
	if _, err := s.authenticate(ctx, rd); err != nil {
		return nil, err
	}
	offset, limit := clampPage(page, pageSize, s.DefaultPageSize)
	return repo.ListPopularObjects(ctx, s.DB, offset, limit)
}

// ListRandom returns a random sample of objects.
func (s *ObjectService) ListRandom(ctx context.Context, rd RequestData, pageSize int) ([]domain.Object, error) {
	if _, err := s.authenticate(ctx, rd); err != nil {
		return nil, err
	}
	_, limit := clampPage(1, pageSize, s.DefaultPageSize)
	return repo.ListRandomObjects(ctx, s.DB, limit)
}

// Details returns one object with its tag set.
func (s *ObjectService) Details(ctx context.Context, rd RequestData, guid string) (*ObjectDetails, error) {
	if _, err := s.authenticate(ctx, rd); err != nil {
		return nil, err
	}
	o, err := repo.GetObject(ctx, s.DB, guid)
	if err != nil {
		return nil, asObjectLookup(err)
	}
	tags, err := repo.ListObjectTags(ctx, s.DB, o.GUID)
	if err != nil {
		return nil, err
	}
	return &ObjectDetails{Object: o, Tags: tags}, nil
}

// AddTags attaches tags to an object, registering the object on first touch.
// Tags are folded to lowercase; duplicates for the same caller are skipped,
// and the call fails with TagExists only when nothing new was added.
func (s *ObjectService) AddTags(ctx context.Context, rd RequestData, guid string, tags []string) error {
	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return err
	}
	if guid == "" {
		return apperr.InvalidParameter("guid")
	}
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || len(t) > 64 {
			return apperr.InvalidParameter("tags")
		}
		clean = append(clean, t)
	}
	if len(clean) == 0 {
		return apperr.InvalidParameter("tags")
	}

	o, err := repo.EnsureObject(ctx, s.DB, guid, rd.Username)
	if err != nil {
		return err
	}
	if o.Locked {
		return apperr.ErrObjectLocked
	}
	added := 0
	for _, t := range clean {
		created, err := repo.CreateTag(ctx, s.DB, u.ID, o.GUID, t)
		if err != nil {
			return err
		}
		if created {
			added++
		}
	}
	if added == 0 {
		return apperr.ErrTagExists
	}
	return nil
}

// Rate records the caller's single up/down vote on an object. A second vote
// from the same caller fails with AlreadyRated regardless of direction.
func (s *ObjectService) Rate(ctx context.Context, rd RequestData, guid string, up bool) error {
	tr := otel.Tracer("services/ObjectService")
	ctx, span := tr.Start(ctx, "Rate",
		trace.WithAttributes(attribute.String("object.guid", guid), attribute.Bool("vote.up", up)))
	defer span.End()

	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return err
	}
	o, err := s.getUnlocked(ctx, guid)
	if err != nil {
		return err
	}
	created, err := repo.CreateScore(ctx, s.DB, u.ID, o.GUID, up)
	if err != nil {
		return err
	}
	if !created {
		return apperr.ErrAlreadyRated
	}
	return nil
}

// Favor toggles the caller's favorite mark; the final state always equals the
// last call's flag.
func (s *ObjectService) Favor(ctx context.Context, rd RequestData, guid string, favor bool) error {
	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return err
	}
	o, err := s.getUnlocked(ctx, guid)
	if err != nil {
		return err
	}
	return repo.SetFavorite(ctx, s.DB, u.ID, o.GUID, favor)
}

// AddComment appends a comment and mirrors the event onto the public stream.
func (s *ObjectService) AddComment(ctx context.Context, rd RequestData, guid, text string) error {
	tr := otel.Tracer("services/ObjectService")
	ctx, span := tr.Start(ctx, "AddComment",
		trace.WithAttributes(attribute.String("object.guid", guid)))
	defer span.End()

	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.InvalidParameter("text")
	}
	if len(text) > s.CommentMaxLength {
		return apperr.ErrCommentTooLong
	}
	o, err := s.getUnlocked(ctx, guid)
	if err != nil {
		return err
	}
	if _, err := repo.CreateComment(ctx, s.DB, o.GUID, u.ID, u.Username, text); err != nil {
		return err
	}
	// Receiver-less mirror row; the public feed picks these up.
	return repo.CreateStreamMessage(ctx, s.DB, "", domain.StreamComment, u.Username, o.GUID)
}

// ListComments returns a page of an object's comments, oldest first.
func (s *ObjectService) ListComments(ctx context.Context, rd RequestData, guid string, page, pageSize int) ([]domain.Comment, error) {
	if _, err := s.authenticate(ctx, rd); err != nil {
		return nil, err
	}
	o, err := repo.GetObject(ctx, s.DB, guid)
	if err != nil {
		return nil, asObjectLookup(err)
	}
	offset, limit := clampPage(page, pageSize, s.DefaultPageSize)
	return repo.ListComments(ctx, s.DB, o.GUID, offset, limit)
}

// Recommend shares an object with the named receivers. Unless open
// recommendations are configured, each receiver must follow the caller.
// Receivers who already got this recommendation are skipped; the call fails
// with AlreadyRecommended only when every receiver was a duplicate. Each new
// recommendation emits a stream message to its receiver.
func (s *ObjectService) Recommend(ctx context.Context, rd RequestData, guid string, receivers []string) error {
	tr := otel.Tracer("services/ObjectService")
	ctx, span := tr.Start(ctx, "Recommend",
		trace.WithAttributes(attribute.String("object.guid", guid), attribute.Int("receivers", len(receivers))))
	defer span.End()

	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return err
	}
	if len(receivers) == 0 {
		return apperr.InvalidParameter("receivers")
	}
	o, err := s.getUnlocked(ctx, guid)
	if err != nil {
		return err
	}

	added := 0
	for _, name := range receivers {
		recv, err := repo.GetUserByUsername(ctx, s.DB, foldUsername(name))
		if err != nil {
			return asUserLookup(err)
		}
		if recv.ID == u.ID {
			return apperr.InvalidParameter("receivers")
		}
		if !s.OpenRecommendations {
			follows, err := repo.FriendshipExists(ctx, s.DB, recv.ID, u.ID)
			if err != nil {
				return err
			}
			if !follows {
				return apperr.ErrNotFriends
			}
		}
		created, err := repo.CreateRecommendation(ctx, s.DB, u.ID, recv.ID, o.GUID)
		if err != nil {
			return err
		}
		if !created {
			continue
		}
		added++
		if err := repo.CreateStreamMessage(ctx, s.DB, recv.ID, domain.StreamRecommendation, u.Username, o.GUID); err != nil {
			return err
		}
	}
	if added == 0 {
		return apperr.ErrAlreadyRecommended
	}
	return nil
}
