// Object HTTP handlers.
//
// This file exposes the curation endpoints on shared objects:
//   - POST /objects | /objects/tag | /objects/popular | /objects/random
//   - POST /object/details | /object/tags/add | /object/rate
//   - POST /object/favor | /object/comments/add | /object/comments
//   - POST /object/recommend
//
// All of them are signed; list-valued parameters (tags, receivers) arrive as
// JSON arrays and are canonicalised bracket-stripped for verification.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
)

// ObjectService defines the object operations consumed by HTTP handlers.
//
// Implementations must be safe for concurrent use and honor the provided
// context for cancellation.
type ObjectService interface {
	List(ctx context.Context, rd services.RequestData, page, pageSize int) ([]domain.Object, error)
	ListByTag(ctx context.Context, rd services.RequestData, tag string, page, pageSize int) ([]domain.Object, error)
	ListPopular(ctx context.Context, rd services.RequestData, page, pageSize int) ([]domain.Object, error)
	ListRandom(ctx context.Context, rd services.RequestData, pageSize int) ([]domain.Object, error)
	Details(ctx context.Context, rd services.RequestData, guid string) (*services.ObjectDetails, error)
	AddTags(ctx context.Context, rd services.RequestData, guid string, tags []string) error
	Rate(ctx context.Context, rd services.RequestData, guid string, up bool) error
	Favor(ctx context.Context, rd services.RequestData, guid string, favor bool) error
	AddComment(ctx context.Context, rd services.RequestData, guid, text string) error
	ListComments(ctx context.Context, rd services.RequestData, guid string, page, pageSize int) ([]domain.Comment, error)
	Recommend(ctx context.Context, rd services.RequestData, guid string, receivers []string) error
}

// ListObjects handles POST /objects.
func (h *Handlers) ListObjects(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	page, pageSize := paging(c)
	objects, err := h.objects.List(c.Request.Context(), rd, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, objects)
}

// ListObjectsByTag handles POST /objects/tag.
func (h *Handlers) ListObjectsByTag(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	tag, ok := requireParam(c, "tag")
	if !ok {
		return
	}
	page, pageSize := paging(c)
	objects, err := h.objects.ListByTag(c.Request.Context(), rd, tag, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, objects)
}

// PopularObjects handles POST /objects/popular.
func (h *Handlers) PopularObjects(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	page, pageSize := paging(c)
	objects, err := h.objects.ListPopular(c.Request.Context(), rd, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, objects)
}

// RandomObjects handles POST /objects/random.
func (h *Handlers) RandomObjects(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	_, pageSize := paging(c)
	objects, err := h.objects.ListRandom(c.Request.Context(), rd, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, objects)
}

// ObjectDetails handles POST /object/details.
func (h *Handlers) ObjectDetails(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	guid, ok := requireParam(c, "guid")
	if !ok {
		return
	}
	d, err := h.objects.Details(c.Request.Context(), rd, guid)
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, d)
}

// AddObjectTags handles POST /object/tags/add.
func (h *Handlers) AddObjectTags(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	guid, ok := requireParam(c, "guid")
	if !ok {
		return
	}
	raw, ok := requireParam(c, "tags")
	if !ok {
		return
	}
	tags, err := parseListParam("tags", raw)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.objects.AddTags(c.Request.Context(), rd, guid, tags); err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// RateObject handles POST /object/rate.
func (h *Handlers) RateObject(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	guid, ok := requireParam(c, "guid")
	if !ok {
		return
	}
	upRaw, ok := requireParam(c, "up")
	if !ok {
		return
	}
	up, err := parseBoolParam("up", upRaw)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.objects.Rate(c.Request.Context(), rd, guid, up); err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// FavorObject handles POST /object/favor.
func (h *Handlers) FavorObject(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	guid, ok := requireParam(c, "guid")
	if !ok {
		return
	}
	favorRaw, ok := requireParam(c, "favor")
	if !ok {
		return
	}
	favor, err := parseBoolParam("favor", favorRaw)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.objects.Favor(c.Request.Context(), rd, guid, favor); err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// AddComment handles POST /object/comments/add.
func (h *Handlers) AddComment(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	guid, ok := requireParam(c, "guid")
	if !ok {
		return
	}
	text, ok := requireParam(c, "text")
	if !ok {
		return
	}
	if err := h.objects.AddComment(c.Request.Context(), rd, guid, text); err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// ListComments handles POST /object/comments.
func (h *Handlers) ListComments(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	guid, ok := requireParam(c, "guid")
	if !ok {
		return
	}
	page, pageSize := paging(c)
	comments, err := h.objects.ListComments(c.Request.Context(), rd, guid, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, comments)
}

// RecommendObject handles POST /object/recommend.
func (h *Handlers) RecommendObject(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	guid, ok := requireParam(c, "guid")
	if !ok {
		return
	}
	raw, ok := requireParam(c, "receivers")
	if !ok {
		return
	}
	receivers, err := parseListParam("receivers", raw)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.objects.Recommend(c.Request.Context(), rd, guid, receivers); err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}
