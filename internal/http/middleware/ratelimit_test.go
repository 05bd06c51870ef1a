package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-social-backend/internal/apperr"
	"github.com/tbourn/go-social-backend/internal/ratelimit"
)

func TestClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		fwd  string
		peer string
		want string
	}{
		{"socket peer", "", "203.0.113.9:12345", "203.0.113.9"},
		{"single forwarded", "198.51.100.7", "203.0.113.9:12345", "198.51.100.7"},
		{"last forwarded wins", "10.0.0.1, 198.51.100.7", "203.0.113.9:12345", "198.51.100.7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.peer
			if tc.fwd != "" {
				req.Header.Set("X-Forwarded-For", tc.fwd)
			}
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			if got := ClientIP(c); got != tc.want {
				t.Fatalf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientIPCached(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	if got := ClientIP(c); got != "203.0.113.9" {
		t.Fatalf("first ClientIP = %q", got)
	}
	// Mutating the header afterwards must not change the cached value.
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	if got := ClientIP(c); got != "203.0.113.9" {
		t.Fatalf("cached ClientIP = %q, want original", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Caps{
		AccountRequests: 2,
		PasswordResets:  2,
		Default:         2,
	}, true)

	r := gin.New()
	r.POST("/account/new", RateLimit(limiter, ratelimit.AccountRequest), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": 0, "message": "ok"})
	})

	do := func(ip string) (int, int) {
		req := httptest.NewRequest(http.MethodPost, "/account/new", nil)
		req.RemoteAddr = ip + ":4711"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		var body struct {
			Status int `json:"status"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		return w.Code, body.Status
	}

	for i := 0; i < 2; i++ {
		if code, status := do("203.0.113.9"); code != http.StatusOK || status != 0 {
			t.Fatalf("request %d: code=%d status=%d", i+1, code, status)
		}
	}
	// Cap exceeded: still HTTP 200 but with the TooManyRequests wire code.
	if code, status := do("203.0.113.9"); code != http.StatusOK || status != apperr.CodeTooManyRequests {
		t.Fatalf("over cap: code=%d status=%d, want 200/%d", code, status, apperr.CodeTooManyRequests)
	}
	// Another IP is unaffected.
	if code, status := do("198.51.100.7"); code != http.StatusOK || status != 0 {
		t.Fatalf("other ip: code=%d status=%d", code, status)
	}
}

func TestRateLimitDisabledPassThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Caps{Default: 1}, false)

	r := gin.New()
	r.POST("/x", RateLimit(limiter, ratelimit.DefaultRequest), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": 0})
	})
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.RemoteAddr = "203.0.113.9:4711"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d rejected with disabled limiter", i+1)
		}
	}
}
