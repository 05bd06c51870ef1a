package services

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/signature"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedAccount creates a user with a known password so tests can sign
// requests the way a real client would.
func seedAccount(t *testing.T, db *gorm.DB, username, password string) *domain.User {
	t.Helper()
	salt := "0123456789abcdef"
	u := &domain.User{
		Username:     username,
		Email:        username + "@example.co",
		PasswordHash: hashPassword(salt, password),
		PasswordSalt: salt,
		Language:     "en",
	}
	if err := repo.CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("seed account %s: %v", username, err)
	}
	return u
}

// signedRequest builds RequestData for extra signed params, stamped at now.
func signedRequest(u *domain.User, now time.Time, extra map[string]string) RequestData {
	params := map[string]string{
		"username":  u.Username,
		"timestamp": strconv.FormatInt(now.Unix(), 10),
	}
	for k, v := range extra {
		params[k] = v
	}
	return RequestData{
		Username:  u.Username,
		Timestamp: params["timestamp"],
		Signature: signature.Sign(u.PasswordHash, params),
		Params:    params,
	}
}

func fixedNow() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

func newAccountService(t *testing.T, db *gorm.DB) *AccountService {
	t.Helper()
	s := NewAccountService(db, 60*time.Second)
	s.now = fixedNow
	return s
}

func newObjectService(t *testing.T, db *gorm.DB) *ObjectService {
	t.Helper()
	s := NewObjectService(db, 60*time.Second)
	s.now = fixedNow
	return s
}
