package services

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/tbourn/go-social-backend/internal/apperr"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/signature"
)

func TestRequestAccountIssuesUniqueCode(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()

	req, err := s.RequestAccount(ctx, "Alice01", "alice@example.co")
	if err != nil {
		t.Fatalf("RequestAccount: %v", err)
	}
	if len(req.Code) != s.CodeLength {
		t.Fatalf("code length = %d, want %d", len(req.Code), s.CodeLength)
	}
	if req.Username != "alice01" {
		t.Fatalf("username not folded: %q", req.Username)
	}

	// Same username again while the request is pending.
	_, err = s.RequestAccount(ctx, "alice01", "other@example.co")
	if !errors.Is(err, apperr.ErrUsernameAlreadyRequested) {
		t.Fatalf("err = %v, want UsernameAlreadyRequested", err)
	}
}

func TestRequestAccountConflicts(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	seedAccount(t, db, "bob", "hunter2hunter2")

	cases := []struct {
		name     string
		username string
		email    string
		want     error
	}{
		{"existing user", "bob", "new@example.co", apperr.ErrUserAlreadyExists},
		{"assigned email", "carol", "bob@example.co", apperr.ErrEmailAlreadyAssigned},
		{"bad username", "x", "x@example.co", apperr.InvalidParameter("username")},
		{"bad email", "dave01", "not-an-email", apperr.InvalidParameter("email")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.RequestAccount(ctx, tc.username, tc.email)
			var ae *apperr.Error
			if !errors.As(err, &ae) {
				t.Fatalf("err = %v, want *apperr.Error", err)
			}
			want := tc.want.(*apperr.Error)
			if ae.Code != want.Code {
				t.Fatalf("code = %d, want %d", ae.Code, want.Code)
			}
		})
	}
}

func TestActivateUserConsumesRequestOnce(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()

	req, err := s.RequestAccount(ctx, "alice01", "alice@example.co")
	if err != nil {
		t.Fatalf("RequestAccount: %v", err)
	}

	creds, err := s.ActivateUser(ctx, req.Code)
	if err != nil {
		t.Fatalf("ActivateUser: %v", err)
	}
	if creds.Username != "alice01" || creds.Email != "alice@example.co" {
		t.Fatalf("creds = %+v", creds)
	}
	if len(creds.Password) != s.PasswordLength {
		t.Fatalf("password length = %d, want %d", len(creds.Password), s.PasswordLength)
	}

	u, err := repo.GetUserByUsername(ctx, db, "alice01")
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if u.PasswordHash != hashPassword(u.PasswordSalt, creds.Password) {
		t.Fatalf("stored hash does not match issued password")
	}

	// The request is gone; the same code must not work twice.
	if _, err := s.ActivateUser(ctx, req.Code); !errors.Is(err, apperr.ErrInvalidRequestCode) {
		t.Fatalf("second activation err = %v, want InvalidRequestCode", err)
	}
}

func TestActivateUserExpiredCode(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()

	req, err := s.RequestAccount(ctx, "alice01", "alice@example.co")
	if err != nil {
		t.Fatalf("RequestAccount: %v", err)
	}
	// Backdate the request past the timeout.
	cutoff := time.Now().UTC().Add(-s.RequestTimeout - time.Minute)
	if err := db.Exec("UPDATE user_requests SET created_at = ?", cutoff).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if _, err := s.ActivateUser(ctx, req.Code); !errors.Is(err, apperr.ErrInvalidRequestCode) {
		t.Fatalf("err = %v, want InvalidRequestCode", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	u := seedAccount(t, db, "bob", "hunter2hunter2")

	if _, err := s.RequestPasswordReset(ctx, "bob", "wrong@example.co"); !errors.Is(err, apperr.ErrUserNotFound) {
		t.Fatalf("mismatched email err = %v, want UserNotFound", err)
	}

	req, err := s.RequestPasswordReset(ctx, "bob", "bob@example.co")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}

	creds, err := s.ResetPassword(ctx, req.Code)
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	fresh, err := repo.GetUserByID(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if fresh.PasswordHash == u.PasswordHash {
		t.Fatalf("password hash unchanged after reset")
	}
	if fresh.PasswordHash != hashPassword(fresh.PasswordSalt, creds.Password) {
		t.Fatalf("stored hash does not match issued password")
	}

	if _, err := s.ResetPassword(ctx, req.Code); !errors.Is(err, apperr.ErrInvalidRequestCode) {
		t.Fatalf("reset code should be single-use, err = %v", err)
	}
}

func TestAuthenticateRejectsTamperAndReplay(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	seedAccount(t, db, "bob", "hunter2hunter2")
	carol := seedAccount(t, db, "carol", "correcthorse1")

	// Valid signed follow succeeds.
	u, _ := repo.GetUserByUsername(ctx, db, "bob")
	rd := signedRequest(u, fixedNow(), map[string]string{"user": "carol", "follow": "true"})
	if err := s.Follow(ctx, rd, "carol", true); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if ok, _ := repo.FriendshipExists(ctx, db, u.ID, carol.ID); !ok {
		t.Fatalf("friendship edge missing")
	}

	// Tampered parameter fails the signature.
	bad := signedRequest(u, fixedNow(), map[string]string{"user": "carol", "follow": "true"})
	bad.Params["follow"] = "false"
	var ae *apperr.Error
	if err := s.Follow(ctx, bad, "carol", false); !errors.As(err, &ae) || ae.Code != apperr.CodeNotAuthorized {
		t.Fatalf("tampered request err = %v, want NotAuthorized", err)
	}

	// Replay outside the window reports expiry, not a bad signature.
	old := fixedNow().Add(-2 * time.Minute)
	replay := signedRequest(u, old, map[string]string{"user": "carol", "follow": "true"})
	if err := s.Follow(ctx, replay, "carol", true); !errors.Is(err, ErrExpired) {
		t.Fatalf("replay err = %v, want ErrExpired", err)
	}
}

func TestAuthenticateBlockedAndUnknown(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	u := seedAccount(t, db, "bob", "hunter2hunter2")
	if err := db.Model(u).Update("blocked", true).Error; err != nil {
		t.Fatalf("block user: %v", err)
	}

	rd := signedRequest(u, fixedNow(), map[string]string{"query": "x"})
	if _, err := s.FindUser(ctx, rd, "x"); !errors.Is(err, apperr.ErrAccountBlocked) {
		t.Fatalf("blocked err = %v, want AccountBlocked", err)
	}

	ghost := *u
	ghost.Username = "nosuchuser"
	rd = signedRequest(&ghost, fixedNow(), map[string]string{"query": "x"})
	if _, err := s.FindUser(ctx, rd, "x"); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("unknown user err = %v, want NotAuthorized", err)
	}
}

func TestChangePasswordRequiresOldPassword(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	u := seedAccount(t, db, "bob", "hunter2hunter2")

	rd := signedRequest(u, fixedNow(), map[string]string{})
	if err := s.ChangePassword(ctx, rd, "wrongwrong1", "newpassword1"); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("wrong old password err = %v, want NotAuthorized", err)
	}
	if err := s.ChangePassword(ctx, rd, "hunter2hunter2", "short"); err == nil {
		t.Fatalf("invalid new password accepted")
	}
	if err := s.ChangePassword(ctx, rd, "hunter2hunter2", "newpassword1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	fresh, _ := repo.GetUserByUsername(ctx, db, "bob")
	if fresh.PasswordHash != hashPassword(fresh.PasswordSalt, "newpassword1") {
		t.Fatalf("new password not stored")
	}
	// The old secret no longer signs requests.
	stale := signedRequest(u, fixedNow(), map[string]string{"query": "x"})
	if _, err := s.FindUser(ctx, stale, "x"); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("old secret still accepted: %v", err)
	}
}

func TestProtectedDetailsVisibility(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	bob := seedAccount(t, db, "bob", "hunter2hunter2")
	carol := seedAccount(t, db, "carol", "correcthorse1")
	if err := db.Model(carol).Update("protected", true).Error; err != nil {
		t.Fatalf("protect carol: %v", err)
	}

	// A stranger sees UserNotFound.
	rd := signedRequest(bob, fixedNow(), map[string]string{"name": "carol"})
	if _, err := s.GetUserDetails(ctx, rd, "carol"); !errors.Is(err, apperr.ErrUserNotFound) {
		t.Fatalf("stranger err = %v, want UserNotFound", err)
	}

	// A follower sees the profile.
	if _, err := repo.SetFriendship(ctx, db, bob.ID, carol.ID, true); err != nil {
		t.Fatalf("follow: %v", err)
	}
	got, err := s.GetUserDetails(ctx, rd, "carol")
	if err != nil {
		t.Fatalf("follower GetUserDetails: %v", err)
	}
	if got.Username != "carol" {
		t.Fatalf("got %q", got.Username)
	}

	// Protected users in search carry the username only.
	rd = signedRequest(bob, fixedNow(), map[string]string{"query": "carol"})
	found, err := s.FindUser(ctx, rd, "carol")
	if err != nil {
		t.Fatalf("FindUser: %v", err)
	}
	if len(found) != 1 || found[0].Email != "" || found[0].Firstname != "" {
		t.Fatalf("protected fields leaked: %+v", found)
	}
}

func TestUpdateUserGenderWireNull(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	u := seedAccount(t, db, "bob", "hunter2hunter2")
	if err := db.Model(u).Update("gender", "m").Error; err != nil {
		t.Fatalf("seed gender: %v", err)
	}

	// Clients send the literal "null" for "not stated".
	p := ProfileUpdate{Email: u.Email, Gender: "null"}
	rd := signedRequest(u, fixedNow(), map[string]string{
		"email": p.Email, "firstname": "", "lastname": "", "gender": p.Gender, "language": "", "protected": "false",
	})
	if err := s.UpdateUser(ctx, rd, p); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	got, err := repo.GetUserByUsername(ctx, db, "bob")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Gender != "" {
		t.Fatalf("gender = %q, want cleared", got.Gender)
	}

	err = s.UpdateUser(ctx, rd, ProfileUpdate{Email: u.Email, Gender: "x"})
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeInvalidParameter {
		t.Fatalf("err = %v, want InvalidParameter", err)
	}
}

func TestDisableUserReservesUsername(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	u := seedAccount(t, db, "bob", "hunter2hunter2")

	rd := signedRequest(u, fixedNow(), map[string]string{"email": u.Email})
	if err := s.DisableUser(ctx, rd, "bob@example.co"); err != nil {
		t.Fatalf("DisableUser: %v", err)
	}

	if _, err := s.RequestAccount(ctx, "bob", "fresh@example.co"); !errors.Is(err, apperr.ErrUserAlreadyExists) {
		t.Fatalf("username not reserved after disable: %v", err)
	}
	// The email is released.
	if _, err := s.RequestAccount(ctx, "robert", "bob@example.co"); err != nil {
		t.Fatalf("email not released after disable: %v", err)
	}
}

func TestFollowSelfRejected(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	u := seedAccount(t, db, "bob", "hunter2hunter2")

	rd := signedRequest(u, fixedNow(), map[string]string{"user": "bob", "follow": "true"})
	var ae *apperr.Error
	if err := s.Follow(ctx, rd, "bob", true); !errors.As(err, &ae) || ae.Code != apperr.CodeInvalidParameter {
		t.Fatalf("self-follow err = %v, want InvalidParameter", err)
	}
}

func TestFollowEmitsStreamMessage(t *testing.T) {
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	bob := seedAccount(t, db, "bob", "hunter2hunter2")
	carol := seedAccount(t, db, "carol", "correcthorse1")

	rd := signedRequest(bob, fixedNow(), map[string]string{"user": "carol", "follow": "true"})
	if err := s.Follow(ctx, rd, "carol", true); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	// Repeat follow stays idempotent and emits nothing new.
	if err := s.Follow(ctx, rd, "carol", true); err != nil {
		t.Fatalf("repeat Follow: %v", err)
	}

	crd := signedRequest(carol, fixedNow(), map[string]string{
		"limit": "10", "older_than": strconv.FormatInt(fixedNow().Add(time.Hour).Unix(), 10),
	})
	msgs, err := s.ListMessages(ctx, crd, 10, fixedNow().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Source != "bob" {
		t.Fatalf("stream messages = %+v, want one follow from bob", msgs)
	}
}

func TestSignedRequestVectorMatchesClient(t *testing.T) {
	// The follow request of the end-to-end scenario, signed exactly as a
	// client library would.
	db := newTestDB(t)
	s := newAccountService(t, db)
	ctx := context.Background()
	bob := seedAccount(t, db, "bob", "hunter2hunter2")
	seedAccount(t, db, "carol", "correcthorse1")

	ts := strconv.FormatInt(fixedNow().Unix(), 10)
	params := map[string]string{
		"username": "bob", "timestamp": ts, "user": "carol", "follow": "true",
	}
	rd := RequestData{
		Username:  "bob",
		Timestamp: ts,
		Signature: signature.Sign(bob.PasswordHash, params),
		Params:    params,
	}
	if err := s.Follow(ctx, rd, "carol", true); err != nil {
		t.Fatalf("Follow with client-computed signature: %v", err)
	}
}
