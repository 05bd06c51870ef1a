// Package services – AccountService
//
// This file implements the account lifecycle: two-phase registration and
// password reset with emailed request codes, credential changes, profile and
// avatar updates, the follow toggle, search, and the per-user listings
// (favorites, received recommendations, activity stream).
//
// Registration and reset never send mail themselves; they return the material
// (code, issued password, receiver address) and the handler renders the mail
// template, pushes it to the queue and pings the mailer.
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
	"github.com/tbourn/go-social-backend/internal/avatar"
	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/validate"
)

// foldUsername lowercases a username; the folded form is the identity.
func foldUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// AccountRequest is the outcome of a successful registration request; the
// handler mails the code to Email.
type AccountRequest struct {
	Code     string
	Username string
	Email    string
}

// Credentials is the outcome of an activation or reset: the issued plaintext
// password, returned exactly once so the handler can mail it.
type Credentials struct {
	Username string
	Email    string
	Password string
}

// ProfileUpdate carries the mutable profile fields of /account/update.
type ProfileUpdate struct {
	Email     string
	Firstname string
	Lastname  string
	Gender    string
	Language  string
	Protected bool
}

// AccountService owns users, pending requests and the social graph around
// accounts.
type AccountService struct {
	authenticator

	CodeLength      int
	PasswordLength  int
	RequestTimeout  time.Duration // user requests
	ResetTimeout    time.Duration // password requests
	Languages       []string
	AvatarDir       string
	TmpDir          string // upload staging, same filesystem as AvatarDir
	AvatarLimits    avatar.Limits
	SearchLimit     int
	DefaultPageSize int
}

// NewAccountService constructs an AccountService with production defaults.
func NewAccountService(db *gorm.DB, expiry time.Duration) *AccountService {
	return &AccountService{
		authenticator:   authenticator{DB: db, Expiry: expiry, now: time.Now},
		CodeLength:      64,
		PasswordLength:  8,
		RequestTimeout:  24 * time.Hour,
		ResetTimeout:    4 * time.Hour,
		Languages:       []string{"en"},
		SearchLimit:     50,
		DefaultPageSize: 20,
	}
}

// RequestAccount validates the requested identity, checks it against existing
// users and pending requests, and persists a new activation request with a
// unique high-entropy code.
func (s *AccountService) RequestAccount(ctx context.Context, username, email string) (*AccountRequest, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "RequestAccount",
		trace.WithAttributes(attribute.String("account.username", username)))
	defer span.End()

	username = foldUsername(username)
	if !validate.Username(username) {
		return nil, apperr.InvalidParameter("username")
	}
	if !validate.Email(email) {
		return nil, apperr.InvalidParameter("email")
	}

	taken, err := repo.UsernameTaken(ctx, s.DB, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.ErrUserAlreadyExists
	}
	pending, err := repo.ActiveUserRequestExists(ctx, s.DB, username, s.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, apperr.ErrUsernameAlreadyRequested
	}
	assigned, err := repo.EmailAssigned(ctx, s.DB, email)
	if err != nil {
		return nil, err
	}
	if assigned {
		return nil, apperr.ErrEmailAlreadyAssigned
	}

	code, err := uniqueRequestCode(ctx, s.DB, s.CodeLength)
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreateUserRequest(ctx, s.DB, code, username, email); err != nil {
		return nil, err
	}
	return &AccountRequest{Code: code, Username: username, Email: email}, nil
}

// ActivateUser consumes a pending request and creates the account with a
// freshly issued password. Uniqueness is re-checked inside the transaction so
// a race between two activations (or an activation and a registration) leaves
// exactly one user.
func (s *AccountService) ActivateUser(ctx context.Context, code string) (*Credentials, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "ActivateUser")
	defer span.End()

	req, err := repo.GetUserRequestByCode(ctx, s.DB, code, s.RequestTimeout)
	if err != nil {
		return nil, asRequestLookup(err)
	}

	password, err := newPassword(s.PasswordLength)
	if err != nil {
		return nil, err
	}
	salt, err := newSalt()
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := repo.UsernameTaken(ctx, tx, req.Username)
		if err != nil {
			return err
		}
		if taken {
			return apperr.ErrUserAlreadyExists
		}
		assigned, err := repo.EmailAssigned(ctx, tx, req.Email)
		if err != nil {
			return err
		}
		if assigned {
			return apperr.ErrEmailAlreadyAssigned
		}
		u := &domain.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: hashPassword(salt, password),
			PasswordSalt: salt,
		}
		if err := repo.CreateUser(ctx, tx, u); err != nil {
			return err
		}
		return repo.DeleteUserRequest(ctx, tx, req.ID)
	})
	if err != nil {
		return nil, err
	}
	return &Credentials{Username: req.Username, Email: req.Email, Password: password}, nil
}

// RequestPasswordReset records a pending reset for the account matching both
// username and email. The pairing must match exactly; a mismatch reports
// UserNotFound without revealing which half was wrong.
func (s *AccountService) RequestPasswordReset(ctx context.Context, username, email string) (*AccountRequest, error) {
	username = foldUsername(username)
	u, err := repo.GetUserByUsername(ctx, s.DB, username)
	if err != nil {
		return nil, asUserLookup(err)
	}
	if !strings.EqualFold(u.Email, email) {
		return nil, apperr.ErrUserNotFound
	}
	if u.Blocked {
		return nil, apperr.ErrAccountBlocked
	}
	code, err := uniqueRequestCode(ctx, s.DB, s.CodeLength)
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreatePasswordRequest(ctx, s.DB, code, u.ID); err != nil {
		return nil, err
	}
	return &AccountRequest{Code: code, Username: u.Username, Email: u.Email}, nil
}

// ResetPassword consumes a pending reset and issues a new password.
func (s *AccountService) ResetPassword(ctx context.Context, code string) (*Credentials, error) {
	req, err := repo.GetPasswordRequestByCode(ctx, s.DB, code, s.ResetTimeout)
	if err != nil {
		return nil, asRequestLookup(err)
	}
	u, err := repo.GetUserByID(ctx, s.DB, req.UserID)
	if err != nil {
		return nil, asRequestLookup(err)
	}

	password, err := newPassword(s.PasswordLength)
	if err != nil {
		return nil, err
	}
	salt, err := newSalt()
	if err != nil {
		return nil, err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdatePassword(ctx, tx, u.ID, hashPassword(salt, password), salt); err != nil {
			return err
		}
		return repo.DeletePasswordRequest(ctx, tx, req.ID)
	})
	if err != nil {
		return nil, err
	}
	return &Credentials{Username: u.Username, Email: u.Email, Password: password}, nil
}

// ChangePassword verifies the old password on top of the request signature
// and stores a new salted hash. The new password must satisfy the password
// shape; the old one only has to match.
func (s *AccountService) ChangePassword(ctx context.Context, rd RequestData, oldPw, newPw string) error {
	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return err
	}
	if hashPassword(u.PasswordSalt, oldPw) != u.PasswordHash {
		return apperr.ErrNotAuthorized
	}
	if !validate.Password(newPw) {
		return apperr.InvalidParameter("new_password")
	}
	salt, err := newSalt()
	if err != nil {
		return err
	}
	return repo.UpdatePassword(ctx, s.DB, u.ID, hashPassword(salt, newPw), salt)
}

// DisableUser soft-deletes the account. The username remains reserved; the
// email is released for reuse. The email parameter must match the account as
// a confirmation step.
func (s *AccountService) DisableUser(ctx context.Context, rd RequestData, email string) error {
	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return err
	}
	if !strings.EqualFold(u.Email, email) {
		return apperr.InvalidParameter("email")
	}
	return repo.SoftDeleteUser(ctx, s.DB, u.ID)
}

// UpdateUser validates and stores the mutable profile fields.
func (s *AccountService) UpdateUser(ctx context.Context, rd RequestData, p ProfileUpdate) error {
	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return err
	}
	if !validate.Email(p.Email) {
		return apperr.InvalidParameter("email")
	}
	if !validate.Name(p.Firstname) {
		return apperr.InvalidParameter("firstname")
	}
	if !validate.Name(p.Lastname) {
		return apperr.InvalidParameter("lastname")
	}
	if p.Gender == "null" { // wire form of "not stated"
		p.Gender = ""
	}
	if !validate.Gender(p.Gender) {
		return apperr.InvalidParameter("gender")
	}
	if p.Language != "" && !validate.Language(p.Language, s.Languages) {
		return apperr.InvalidParameter("language")
	}
	if !strings.EqualFold(u.Email, p.Email) {
		assigned, err := repo.EmailAssigned(ctx, s.DB, p.Email)
		if err != nil {
			return err
		}
		if assigned {
			return apperr.ErrEmailAlreadyAssigned
		}
	}
	u.Email = p.Email
	u.Firstname = p.Firstname
	u.Lastname = p.Lastname
	u.Gender = p.Gender
	if p.Language != "" {
		u.Language = p.Language
	}
	u.Protected = p.Protected
	return repo.UpdateUser(ctx, s.DB, u)
}

// UpdateAvatar inspects the uploaded image against the configured ceilings
// and stores it under the avatar directory as <username>.<ext>.
func (s *AccountService) UpdateAvatar(ctx context.Context, rd RequestData, raw []byte) error {
	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return err
	}
	format, err := avatar.Inspect(raw, s.AvatarLimits)
	if err != nil {
		return err
	}
	file, err := avatar.Store(s.AvatarDir, s.TmpDir, u.Username, format, raw)
	if err != nil {
		return err
	}
	u.AvatarFile = file
	return repo.UpdateUser(ctx, s.DB, u)
}

// GetUserDetails returns another user's profile. A protected profile is
// visible only to itself and to its followers; everyone else gets
// UserNotFound so protection does not leak through error codes.
func (s *AccountService) GetUserDetails(ctx context.Context, rd RequestData, name string) (*domain.User, error) {
	caller, err := s.authenticate(ctx, rd)
	if err != nil {
		return nil, err
	}
	target, err := repo.GetUserByUsername(ctx, s.DB, foldUsername(name))
	if err != nil {
		return nil, asUserLookup(err)
	}
	if target.Protected && target.ID != caller.ID {
		follows, err := repo.FriendshipExists(ctx, s.DB, caller.ID, target.ID)
		if err != nil {
			return nil, err
		}
		if !follows {
			return nil, apperr.ErrUserNotFound
		}
	}
	return target, nil
}

// FindUser searches usernames and names. Protected users appear by username
// only; their profile fields are stripped from the result.
func (s *AccountService) FindUser(ctx context.Context, rd RequestData, query string) ([]domain.User, error) {
	if _, err := s.authenticate(ctx, rd); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.InvalidParameter("query")
	}
	users, err := repo.SearchUsers(ctx, s.DB, query, s.SearchLimit)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Protected {
			users[i].Email = ""
			users[i].Firstname = ""
			users[i].Lastname = ""
			users[i].Gender = ""
		}
	}
	return users, nil
}

// Follow toggles the directed follower edge from the caller to the named
// user. Following yourself is rejected. A new edge emits a follow stream
// message to the followee; unfollow and repeats are silent.
func (s *AccountService) Follow(ctx context.Context, rd RequestData, name string, follow bool) error {
	caller, err := s.authenticate(ctx, rd)
	if err != nil {
		return err
	}
	target, err := repo.GetUserByUsername(ctx, s.DB, foldUsername(name))
	if err != nil {
		return asUserLookup(err)
	}
	if target.ID == caller.ID {
		return apperr.InvalidParameter("user")
	}
	changed, err := repo.SetFriendship(ctx, s.DB, caller.ID, target.ID, follow)
	if err != nil {
		return err
	}
	if changed && follow {
		return repo.CreateStreamMessage(ctx, s.DB, target.ID, domain.StreamFollow, caller.Username, target.Username)
	}
	return nil
}

// ListFavorites returns a page of the caller's favorite objects.
func (s *AccountService) ListFavorites(ctx context.Context, rd RequestData, page, pageSize int) ([]domain.Object, error) {
	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return nil, err
	}
	offset, limit := clampPage(page, pageSize, s.DefaultPageSize)
	return repo.ListFavoriteObjects(ctx, s.DB, u.ID, offset, limit)
}

// ListRecommendations returns a page of objects recommended to the caller.
func (s *AccountService) ListRecommendations(ctx context.Context, rd RequestData, page, pageSize int) ([]domain.Object, error) {
	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return nil, err
	}
	offset, limit := clampPage(page, pageSize, s.DefaultPageSize)
	return repo.ListReceivedRecommendations(ctx, s.DB, u.ID, offset, limit)
}

// ListMessages returns the caller's activity stream, newest first, optionally
// continuing from an older_than cursor.
func (s *AccountService) ListMessages(ctx context.Context, rd RequestData, limit int, olderThan time.Time) ([]domain.StreamMessage, error) {
	u, err := s.authenticate(ctx, rd)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = s.DefaultPageSize
	}
	return repo.ListStreamMessages(ctx, s.DB, u.ID, limit, olderThan)
}

// clampPage converts 1-based (page, pageSize) into (offset, limit) with sane
// bounds.
func clampPage(page, pageSize, def int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = def
	}
	return (page - 1) * pageSize, pageSize
}
