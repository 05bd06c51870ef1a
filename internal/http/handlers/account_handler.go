// Account HTTP handlers.
//
// This file exposes the account lifecycle endpoints:
//   - POST /account/new               (request an account)
//   - GET  /account/activate          (consume the emailed code, HTML)
//   - POST /account/disable
//   - POST /account/password/update
//   - GET  /account/password/request
//   - GET  /account/password/reset    (consume the emailed code, HTML)
//   - POST /account/update
//   - POST /account/avatar/update     (multipart)
//   - POST /account/favorites|details|follow|search|recommendations|messages
//
// Handlers are transport-thin: they decode the declared parameter set, call
// the account service, and translate results into the JSON envelope (or an
// HTML page for the two emailed-code endpoints). Mail-emitting endpoints
// render the mail template, push it onto the durable queue and wake the
// mailer; a failed wake is swallowed because the interval drain will deliver
// anyway.
package handlers

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/template"
	"github.com/tbourn/go-social-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AccountService defines the account operations consumed by HTTP handlers.
//
// Implementations must be safe for concurrent use and honor the provided
// context for cancellation.
type AccountService interface {
	RequestAccount(ctx context.Context, username, email string) (*services.AccountRequest, error)
	ActivateUser(ctx context.Context, code string) (*services.Credentials, error)
	RequestPasswordReset(ctx context.Context, username, email string) (*services.AccountRequest, error)
	ResetPassword(ctx context.Context, code string) (*services.Credentials, error)
	ChangePassword(ctx context.Context, rd services.RequestData, oldPw, newPw string) error
	DisableUser(ctx context.Context, rd services.RequestData, email string) error
	UpdateUser(ctx context.Context, rd services.RequestData, p services.ProfileUpdate) error
	UpdateAvatar(ctx context.Context, rd services.RequestData, raw []byte) error
	GetUserDetails(ctx context.Context, rd services.RequestData, name string) (*domain.User, error)
	FindUser(ctx context.Context, rd services.RequestData, query string) ([]domain.User, error)
	Follow(ctx context.Context, rd services.RequestData, name string, follow bool) error
	ListFavorites(ctx context.Context, rd services.RequestData, page, pageSize int) ([]domain.Object, error)
	ListRecommendations(ctx context.Context, rd services.RequestData, page, pageSize int) ([]domain.Object, error)
	ListMessages(ctx context.Context, rd services.RequestData, limit int, olderThan time.Time) ([]domain.StreamMessage, error)
}

// Outbox enqueues outgoing mail and wakes the delivery worker.
type Outbox interface {
	// Push appends one mail to the durable queue and returns its id.
	Push(ctx context.Context, subject, body, receiver string) (string, error)
	// Wake nudges the mail worker; failures are absorbed by the caller
	// contract (the interval drain is the backstop).
	Wake()
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for accounts and objects. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	accounts  AccountService
	objects   ObjectService
	outbox    Outbox
	templates *template.Set
	baseURL   string
	lang      language.Tag
}

// New constructs a Handlers instance bound to the given collaborators.
// baseURL is the absolute prefix used inside emailed links.
func New(accounts AccountService, objects ObjectService, outbox Outbox, tpl *template.Set, baseURL string, lang language.Tag) *Handlers {
	return &Handlers{
		accounts:  accounts,
		objects:   objects,
		outbox:    outbox,
		templates: tpl,
		baseURL:   baseURL,
		lang:      lang,
	}
}

// sendMail renders a mail template and queues it, then wakes the worker.
func (h *Handlers) sendMail(ctx context.Context, name string, data any, receiver string) error {
	subject, body, err := h.templates.Mail(h.lang, name, data)
	if err != nil {
		return err
	}
	if _, err := h.outbox.Push(ctx, subject, body, receiver); err != nil {
		return err
	}
	h.outbox.Wake()
	return nil
}

// CreateAccount handles POST /account/new.
func (h *Handlers) CreateAccount(c *gin.Context) {
	username, ok := requireParam(c, "username")
	if !ok {
		return
	}
	email, ok := requireParam(c, "email")
	if !ok {
		return
	}
	req, err := h.accounts.RequestAccount(c.Request.Context(), username, email)
	if err != nil {
		fail(c, err)
		return
	}
	err = h.sendMail(c.Request.Context(), "account_request", gin.H{
		"Username": req.Username,
		"URL":      h.baseURL + "/account/activate?code=" + url.QueryEscape(req.Code),
	}, req.Email)
	if err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// ActivateAccount handles GET /account/activate. The outcome is a human-
// facing HTML page; the issued password goes out by mail, never in the page.
func (h *Handlers) ActivateAccount(c *gin.Context) {
	code, ok := requireParam(c, "code")
	if !ok {
		return
	}
	creds, err := h.accounts.ActivateUser(c.Request.Context(), code)
	if err != nil {
		page, rerr := h.templates.Page(h.lang, "activation_failure", nil)
		if rerr != nil {
			fail(c, rerr)
			return
		}
		html(c, page)
		return
	}
	err = h.sendMail(c.Request.Context(), "account_created", gin.H{
		"Username": creds.Username,
		"Password": creds.Password,
	}, creds.Email)
	if err != nil {
		fail(c, err)
		return
	}
	page, err := h.templates.Page(h.lang, "activation_success", gin.H{"Username": creds.Username})
	if err != nil {
		fail(c, err)
		return
	}
	html(c, page)
}

// RequestPasswordReset handles GET /account/password/request.
func (h *Handlers) RequestPasswordReset(c *gin.Context) {
	username, ok := requireParam(c, "username")
	if !ok {
		return
	}
	email, ok := requireParam(c, "email")
	if !ok {
		return
	}
	req, err := h.accounts.RequestPasswordReset(c.Request.Context(), username, email)
	if err != nil {
		fail(c, err)
		return
	}
	err = h.sendMail(c.Request.Context(), "password_request", gin.H{
		"Username": req.Username,
		"URL":      h.baseURL + "/account/password/reset?code=" + url.QueryEscape(req.Code),
	}, req.Email)
	if err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// ResetPassword handles GET /account/password/reset, mirroring activation:
// HTML outcome page, new password delivered by mail.
func (h *Handlers) ResetPassword(c *gin.Context) {
	code, ok := requireParam(c, "code")
	if !ok {
		return
	}
	creds, err := h.accounts.ResetPassword(c.Request.Context(), code)
	if err != nil {
		page, rerr := h.templates.Page(h.lang, "reset_failure", nil)
		if rerr != nil {
			fail(c, rerr)
			return
		}
		html(c, page)
		return
	}
	err = h.sendMail(c.Request.Context(), "password_reset", gin.H{
		"Username": creds.Username,
		"Password": creds.Password,
	}, creds.Email)
	if err != nil {
		fail(c, err)
		return
	}
	page, err := h.templates.Page(h.lang, "reset_success", gin.H{"Username": creds.Username})
	if err != nil {
		fail(c, err)
		return
	}
	html(c, page)
}

// UpdatePassword handles POST /account/password/update.
func (h *Handlers) UpdatePassword(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	oldPw, ok := requireParam(c, "old_password")
	if !ok {
		return
	}
	newPw, ok := requireParam(c, "new_password")
	if !ok {
		return
	}
	if err := h.accounts.ChangePassword(c.Request.Context(), rd, oldPw, newPw); err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// DisableAccount handles POST /account/disable.
func (h *Handlers) DisableAccount(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	email, ok := requireParam(c, "email")
	if !ok {
		return
	}
	if err := h.accounts.DisableUser(c.Request.Context(), rd, email); err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// UpdateAccount handles POST /account/update.
func (h *Handlers) UpdateAccount(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	email, ok := requireParam(c, "email")
	if !ok {
		return
	}
	firstname, ok := declaredParam(c, rd.Params, "firstname")
	if !ok {
		return
	}
	lastname, ok := declaredParam(c, rd.Params, "lastname")
	if !ok {
		return
	}
	gender, ok := declaredParam(c, rd.Params, "gender")
	if !ok {
		return
	}
	lang, ok := declaredParam(c, rd.Params, "language")
	if !ok {
		return
	}
	protectedRaw, ok := requireParam(c, "protected")
	if !ok {
		return
	}
	protected, err := parseBoolParam("protected", protectedRaw)
	if err != nil {
		fail(c, err)
		return
	}
	p := services.ProfileUpdate{
		Email:     email,
		Firstname: firstname,
		Lastname:  lastname,
		Gender:    gender,
		Language:  lang,
		Protected: protected,
	}
	if err := h.accounts.UpdateUser(c.Request.Context(), rd, p); err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// UpdateAvatar handles POST /account/avatar/update (multipart). The file part
// is named by the filename parameter; it is read fully before inspection.
func (h *Handlers) UpdateAvatar(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	if _, ok := requireParam(c, "filename"); !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.accounts.UpdateAvatar(c.Request.Context(), rd, raw); err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// AccountDetails handles POST /account/details.
func (h *Handlers) AccountDetails(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	name, ok := requireParam(c, "name")
	if !ok {
		return
	}
	u, err := h.accounts.GetUserDetails(c.Request.Context(), rd, name)
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, u)
}

// FollowAccount handles POST /account/follow.
func (h *Handlers) FollowAccount(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	name, ok := requireParam(c, "user")
	if !ok {
		return
	}
	followRaw, ok := requireParam(c, "follow")
	if !ok {
		return
	}
	follow, err := parseBoolParam("follow", followRaw)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.accounts.Follow(c.Request.Context(), rd, name, follow); err != nil {
		fail(c, err)
		return
	}
	okStatus(c)
}

// SearchAccounts handles POST /account/search.
func (h *Handlers) SearchAccounts(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	query, ok := requireParam(c, "query")
	if !ok {
		return
	}
	users, err := h.accounts.FindUser(c.Request.Context(), rd, query)
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, users)
}

// ListFavorites handles POST /account/favorites.
func (h *Handlers) ListFavorites(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	page, pageSize := paging(c)
	objects, err := h.accounts.ListFavorites(c.Request.Context(), rd, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, objects)
}

// ListRecommendations handles POST /account/recommendations.
func (h *Handlers) ListRecommendations(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	page, pageSize := paging(c)
	objects, err := h.accounts.ListRecommendations(c.Request.Context(), rd, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, objects)
}

// ListMessages handles POST /account/messages.
func (h *Handlers) ListMessages(c *gin.Context) {
	rd, ok := signedRequest(c)
	if !ok {
		return
	}
	limit := utils.AtoiDefault(c.PostForm("limit"), 0)
	msgs, err := h.accounts.ListMessages(c.Request.Context(), rd, limit, olderThan(c))
	if err != nil {
		fail(c, err)
		return
	}
	okJSON(c, msgs)
}
