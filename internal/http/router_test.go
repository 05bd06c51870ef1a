package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/ratelimit"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/signature"
	"github.com/tbourn/go-social-backend/internal/template"
)

// fakeOutbox records queued mail instead of touching the mail tables.
type fakeOutbox struct {
	mu     sync.Mutex
	pushed []string // receivers, in order
	wakes  int
}

func (f *fakeOutbox) Push(_ context.Context, _, _, receiver string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, receiver)
	return uuid.NewString(), nil
}

func (f *fakeOutbox) Wake() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wakes++
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// writeTemplates lays out the minimal english template tree the account
// endpoints render.
func writeTemplates(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	en := filepath.Join(dir, "en")
	if err := os.MkdirAll(en, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		"activation_success": "<p>welcome {{.Username}}</p>",
		"activation_failure": "<p>invalid code</p>",
		"reset_success":      "<p>password sent</p>",
		"reset_failure":      "<p>invalid code</p>",

		"account_request.subject":  "confirm your account",
		"account_request.body":     "{{.URL}}",
		"account_created.subject":  "your account",
		"account_created.body":     "{{.Username}} / {{.Password}}",
		"password_request.subject": "confirm password reset",
		"password_request.body":    "{{.URL}}",
		"password_reset.subject":   "your new password",
		"password_reset.body":      "{{.Password}}",
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(en, name), []byte(src), 0o644); err != nil {
			t.Fatalf("write template %s: %v", name, err)
		}
	}
	return dir
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		GinMode:               "test",
		BaseURL:               "http://social.test",
		TemplateDir:           writeTemplates(t),
		Languages:             []string{"en"},
		DefaultLanguage:       "en",
		RequestExpiry:         time.Minute,
		RequestCodeLength:     64,
		DefaultPasswordLength: 8,
		UserRequestTimeout:    24 * time.Hour,
		PasswordResetTimeout:  4 * time.Hour,
		CommentMaxLength:      1024,
		MaxRequestBytes:       2048,
		OTEL:                  config.OTELConfig{ServiceName: "router-test"},
	}
}

func newRouter(t *testing.T, caps ratelimit.Caps) (*gin.Engine, *gorm.DB, *fakeOutbox) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	cfg := testConfig(t)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), caps, true)
	outbox := &fakeOutbox{}
	r := gin.New()
	RegisterRoutes(r, db, limiter, outbox, template.New(cfg.TemplateDir), cfg)
	return r, db, outbox
}

func defaultCaps() ratelimit.Caps {
	return ratelimit.Caps{AccountRequests: 100, PasswordResets: 100, Default: 100}
}

// seedUser inserts an active account and returns its signing secret.
func seedUser(t *testing.T, db *gorm.DB, username string) (secret string) {
	t.Helper()
	salt := "00112233aabbccdd"
	sum := sha256.Sum256([]byte(salt + "hunter22"))
	hash := hex.EncodeToString(sum[:])
	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		PasswordSalt: salt,
		Language:     "en",
	}
	if err := db.WithContext(context.Background()).Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return hash
}

// signedForm builds a signed url-encoded body for user with extra params.
func signedForm(secret, username string, extra map[string]string) url.Values {
	params := map[string]string{
		"username":  username,
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}
	for k, v := range extra {
		if k == "tags" || k == "receivers" {
			params[k] = signature.CanonicalList(v)
		} else {
			params[k] = v
		}
	}
	sig := signature.Sign(secret, params)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	for k, v := range extra {
		form.Set(k, v) // raw JSON arrays go on the wire unstripped
	}
	form.Set("signature", sig)
	return form
}

func postForm(r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (status int, message string) {
	t.Helper()
	var env struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope from %q: %v", w.Body.String(), err)
	}
	return env.Status, env.Message
}

func TestTransportErrors(t *testing.T) {
	r, _, _ := newRouter(t, defaultCaps())

	t.Run("unknown route", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/object/rate", nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", w.Code)
		}
	})

	t.Run("post without content length", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/objects", strings.NewReader("page=1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.ContentLength = -1
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusLengthRequired {
			t.Fatalf("status = %d, want 411", w.Code)
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		big := url.Values{"username": {strings.Repeat("x", 4096)}}
		w := postForm(r, "/account/new", big)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("status = %d, want 413", w.Code)
		}
	})

	t.Run("missing declared parameter", func(t *testing.T) {
		w := postForm(r, "/account/new", url.Values{"username": {"walter"}})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		status, message := decodeEnvelope(t, w)
		if status != 1 || !strings.Contains(message, "email") {
			t.Fatalf("envelope = (%d, %q)", status, message)
		}
	})
}

func TestHealth(t *testing.T) {
	r, _, _ := newRouter(t, defaultCaps())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestAccountRequestQueuesMail(t *testing.T) {
	r, db, outbox := newRouter(t, defaultCaps())

	w := postForm(r, "/account/new", url.Values{
		"username": {"walter"},
		"email":    {"walter@example.com"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	if status, _ := decodeEnvelope(t, w); status != 0 {
		t.Fatalf("envelope status = %d, want 0", status)
	}

	outbox.mu.Lock()
	defer outbox.mu.Unlock()
	if len(outbox.pushed) != 1 || outbox.pushed[0] != "walter@example.com" {
		t.Fatalf("pushed = %v", outbox.pushed)
	}
	if outbox.wakes != 1 {
		t.Fatalf("wakes = %d, want 1", outbox.wakes)
	}

	var count int64
	if err := db.Model(&domain.UserRequest{}).Count(&count).Error; err != nil {
		t.Fatalf("count requests: %v", err)
	}
	if count != 1 {
		t.Fatalf("pending requests = %d, want 1", count)
	}
}

func TestSignedTagAndListFlow(t *testing.T) {
	r, db, _ := newRouter(t, defaultCaps())
	secret := seedUser(t, db, "walter")

	guid := uuid.NewString()
	w := postForm(r, "/object/tags/add", signedForm(secret, "walter", map[string]string{
		"guid": guid,
		"tags": `["News","sports"]`,
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if status, message := decodeEnvelope(t, w); status != 0 {
		t.Fatalf("envelope = (%d, %q)", status, message)
	}

	// The first touch registered the object; the tag listing finds it
	// case-insensitively.
	w = postForm(r, "/objects/tag", signedForm(secret, "walter", map[string]string{
		"tag": "NEWS",
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), guid) {
		t.Fatalf("listing %s does not contain %s", w.Body.String(), guid)
	}
}

func TestSignedRequestRejectsBadSignature(t *testing.T) {
	r, db, _ := newRouter(t, defaultCaps())
	seedUser(t, db, "walter")

	form := signedForm("wrong-secret", "walter", map[string]string{
		"guid": uuid.NewString(),
		"tags": `["news"]`,
	})
	w := postForm(r, "/object/tags/add", form)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if status, _ := decodeEnvelope(t, w); status != 2 {
		t.Fatalf("envelope status = %d, want 2", status)
	}
}

func TestAccountNewRateLimited(t *testing.T) {
	caps := defaultCaps()
	caps.AccountRequests = 1
	r, _, _ := newRouter(t, caps)

	first := postForm(r, "/account/new", url.Values{
		"username": {"walter"},
		"email":    {"walter@example.com"},
	})
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}

	second := postForm(r, "/account/new", url.Values{
		"username": {"skyler"},
		"email":    {"skyler@example.com"},
	})
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d, want 200 envelope", second.Code)
	}
	if status, _ := decodeEnvelope(t, second); status != 4 {
		t.Fatalf("envelope status = %d, want 4", status)
	}
}
