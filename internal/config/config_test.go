package config

import (
	"reflect"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// t.Setenv isolates per test.
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")

	// App
	t.Setenv("BASE_URL", "https://social.example/") // trailing slash stripped
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("TMP_DIR", "/var/tmp/social")
	t.Setenv("LANGUAGES", " en , de ")
	t.Setenv("DEFAULT_LANGUAGE", "de")

	// Signed requests / issuance (invalid ints fall back to defaults)
	t.Setenv("REQUEST_EXPIRY", "90s")
	t.Setenv("REQUEST_CODE_LENGTH", "nope") // -> default 64
	t.Setenv("USER_REQUEST_TIMEOUT", "12h")
	t.Setenv("COMMENT_MAX_LENGTH", "2048")

	// Rate limiting
	t.Setenv("LIMIT_REQUESTS", "on")
	t.Setenv("ACCOUNT_REQUESTS_PER_HOUR", "7")
	t.Setenv("RATE_STORE", "Redis") // normalized to lowercase

	// Mailer
	t.Setenv("MAILER_PORT", "9025")
	t.Setenv("MAILER_ALLOWED_CLIENTS", "127.0.0.1, 10.0.0.5")
	t.Setenv("MAIL_LIFETIME", "48h")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")

	// OTEL
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8088" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.ReadTimeout != 2*time.Second || cfg.WriteTimeout != 3*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.ReadTimeout, cfg.WriteTimeout)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q, want normalized release", cfg.GinMode)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if !cfg.LogPretty {
		t.Errorf("LogPretty should parse 'yes' as true")
	}
	if cfg.BaseURL != "https://social.example" {
		t.Errorf("BaseURL = %q, want trailing slash stripped", cfg.BaseURL)
	}
	if cfg.TmpDir != "/var/tmp/social" {
		t.Errorf("TmpDir = %q", cfg.TmpDir)
	}
	if got, want := cfg.Languages, []string{"en", "de"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Languages = %v, want %v", got, want)
	}
	if cfg.DefaultLanguage != "de" {
		t.Errorf("DefaultLanguage = %q", cfg.DefaultLanguage)
	}
	if cfg.RequestExpiry != 90*time.Second {
		t.Errorf("RequestExpiry = %v", cfg.RequestExpiry)
	}
	if cfg.RequestCodeLength != 64 {
		t.Errorf("RequestCodeLength = %d, want default 64 on parse failure", cfg.RequestCodeLength)
	}
	if cfg.UserRequestTimeout != 12*time.Hour {
		t.Errorf("UserRequestTimeout = %v", cfg.UserRequestTimeout)
	}
	if cfg.CommentMaxLength != 2048 {
		t.Errorf("CommentMaxLength = %d", cfg.CommentMaxLength)
	}
	if !cfg.Rate.Enabled || cfg.Rate.AccountRequests != 7 {
		t.Errorf("Rate = %+v", cfg.Rate)
	}
	if cfg.Rate.Store != "redis" {
		t.Errorf("Rate.Store = %q, want lowercased", cfg.Rate.Store)
	}
	if cfg.Mailer.Port != 9025 {
		t.Errorf("Mailer.Port = %d", cfg.Mailer.Port)
	}
	if got, want := cfg.Mailer.AllowedClients, []string{"127.0.0.1", "10.0.0.5"}; !reflect.DeepEqual(got, want) {
		t.Errorf("AllowedClients = %v, want %v", got, want)
	}
	if cfg.Mailer.MailLifetime != 48*time.Hour {
		t.Errorf("MailLifetime = %v", cfg.Mailer.MailLifetime)
	}
	if got, want := cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("CORS origins = %v, want %v", got, want)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 0.25 {
		t.Errorf("OTEL = %+v", cfg.OTEL)
	}
	if cfg.MailerAddr() != "127.0.0.1:9025" {
		t.Errorf("MailerAddr = %q", cfg.MailerAddr())
	}
}

// --- Load validation failures ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"default language not listed", map[string]string{"LANGUAGES": "en", "DEFAULT_LANGUAGE": "fr"}},
		{"zero request expiry", map[string]string{"REQUEST_EXPIRY": "0s"}},
		{"short request code", map[string]string{"REQUEST_CODE_LENGTH": "8"}},
		{"short default password", map[string]string{"DEFAULT_PASSWORD_LENGTH": "4"}},
		{"bad rate store", map[string]string{"LIMIT_REQUESTS": "true", "RATE_STORE": "etcd"}},
		{"zero rate cap", map[string]string{"LIMIT_REQUESTS": "true", "REQUESTS_PER_HOUR": "0"}},
		{"bad mailer port", map[string]string{"MAILER_PORT": "70000"}},
		{"zero mail lifetime", map[string]string{"MAIL_LIFETIME": "0s"}},
		{"sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("Load() should fail for %s", tc.name)
			}
		})
	}
}

func TestLoad_RateCapsIgnoredWhenDisabled(t *testing.T) {
	t.Setenv("LIMIT_REQUESTS", "false")
	t.Setenv("REQUESTS_PER_HOUR", "0")
	if _, err := Load(); err != nil {
		t.Fatalf("caps should not be validated when limiting is off: %v", err)
	}
}
