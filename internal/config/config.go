// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, request signing, rate limiting, avatar
// ceilings, mailer coordinates, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-social-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AvatarConfig holds the acceptance ceilings for avatar uploads.
type AvatarConfig struct {
	Dir         string
	MaxFilesize int
	MaxWidth    int
	MaxHeight   int
	Formats     []string
}

// RateConfig holds the rolling-hour per-IP request caps.
type RateConfig struct {
	Enabled         bool   // LIMIT_REQUESTS master switch
	AccountRequests int    // per hour
	PasswordResets  int    // per hour
	Default         int    // per hour
	Store           string // memory|redis
	RedisAddr       string
}

// MailerConfig holds the mail worker coordinates shared by both binaries.
type MailerConfig struct {
	Host           string
	Port           int
	UDPTimeout     time.Duration
	CheckInterval  time.Duration
	AllowedClients []string
	SMTPAddr       string
	SMTPFrom       string
	MailLifetime   time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel  string
	LogPretty bool

	// App
	BaseURL         string // absolute URL the mails link back to
	DBPath          string
	TemplateDir     string
	TmpDir          string
	Languages       []string
	DefaultLanguage string

	// Signed requests / account issuance
	RequestExpiry         time.Duration // signature freshness window
	RequestCodeLength     int
	DefaultPasswordLength int
	UserRequestTimeout    time.Duration
	PasswordResetTimeout  time.Duration
	CommentMaxLength      int
	OpenRecommendations   bool // allow recommending to non-friends

	// Body ceiling for the whole API (1 MiB + 128 by default)
	MaxRequestBytes int64

	Avatar AvatarConfig
	Rate   RateConfig
	Mailer MailerConfig
	CORS   CORSConfig
	OTEL   OTELConfig
}

// MailerAddr returns the UDP control-plane address of the mailer.
func (c Config) MailerAddr() string {
	return c.Mailer.Host + ":" + strconv.Itoa(c.Mailer.Port)
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		BaseURL:         strings.TrimRight(getenv("BASE_URL", "http://localhost:8080"), "/"),
		DBPath:          getenv("DB_PATH", "app.db"),
		TemplateDir:     getenv("TEMPLATE_DIR", "templates"),
		TmpDir:          getenv("TMP_DIR", os.TempDir()),
		Languages:       splitCSV(getenv("LANGUAGES", "en")),
		DefaultLanguage: getenv("DEFAULT_LANGUAGE", "en"),

		// Signed requests / account issuance
		RequestExpiry:         getdur("REQUEST_EXPIRY", 60*time.Second),
		RequestCodeLength:     getint("REQUEST_CODE_LENGTH", 64),
		DefaultPasswordLength: getint("DEFAULT_PASSWORD_LENGTH", 8),
		UserRequestTimeout:    getdur("USER_REQUEST_TIMEOUT", 24*time.Hour),
		PasswordResetTimeout:  getdur("PASSWORD_RESET_TIMEOUT", 4*time.Hour),
		CommentMaxLength:      getint("COMMENT_MAX_LENGTH", 1024),
		OpenRecommendations:   getbool("OPEN_RECOMMENDATIONS", false),

		MaxRequestBytes: int64(getint("MAX_REQUEST_BYTES", 1<<20+128)),

		Avatar: AvatarConfig{
			Dir:         getenv("AVATAR_DIR", "avatars"),
			MaxFilesize: getint("AVATAR_MAX_FILESIZE", 512<<10),
			MaxWidth:    getint("AVATAR_MAX_WIDTH", 256),
			MaxHeight:   getint("AVATAR_MAX_HEIGHT", 256),
			Formats:     splitCSV(getenv("AVATAR_FORMATS", "jpeg")),
		},

		Rate: RateConfig{
			Enabled:         getbool("LIMIT_REQUESTS", true),
			AccountRequests: getint("ACCOUNT_REQUESTS_PER_HOUR", 15),
			PasswordResets:  getint("PASSWORD_RESETS_PER_HOUR", 5),
			Default:         getint("REQUESTS_PER_HOUR", 1800),
			Store:           strings.ToLower(getenv("RATE_STORE", "memory")),
			RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		},

		Mailer: MailerConfig{
			Host:           getenv("MAILER_HOST", "127.0.0.1"),
			Port:           getint("MAILER_PORT", 8025),
			UDPTimeout:     getdur("MAILER_UDP_TIMEOUT", 5*time.Second),
			CheckInterval:  getdur("MAIL_CHECK_INTERVAL", 60*time.Second),
			AllowedClients: splitCSV(getenv("MAILER_ALLOWED_CLIENTS", "127.0.0.1")),
			SMTPAddr:       getenv("SMTP_ADDR", "localhost:25"),
			SMTPFrom:       getenv("SMTP_FROM", "noreply@localhost"),
			MailLifetime:   getdur("MAIL_LIFETIME", 72*time.Hour),
		},

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-social-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.TemplateDir) == "" {
		return cfg, errors.New("TEMPLATE_DIR must not be empty")
	}
	if len(cfg.Languages) == 0 {
		return cfg, errors.New("LANGUAGES must list at least one language")
	}
	if !contains(cfg.Languages, cfg.DefaultLanguage) {
		return cfg, errors.New("DEFAULT_LANGUAGE must be one of LANGUAGES")
	}
	if cfg.RequestExpiry <= 0 {
		return cfg, errors.New("REQUEST_EXPIRY must be > 0")
	}
	if cfg.RequestCodeLength < 16 {
		return cfg, errors.New("REQUEST_CODE_LENGTH must be >= 16")
	}
	if cfg.DefaultPasswordLength < 8 {
		return cfg, errors.New("DEFAULT_PASSWORD_LENGTH must be >= 8")
	}
	if cfg.UserRequestTimeout <= 0 || cfg.PasswordResetTimeout <= 0 {
		return cfg, errors.New("request timeouts must be positive durations")
	}
	if cfg.CommentMaxLength <= 0 {
		return cfg, errors.New("COMMENT_MAX_LENGTH must be > 0")
	}
	if cfg.MaxRequestBytes <= 0 {
		return cfg, errors.New("MAX_REQUEST_BYTES must be > 0")
	}
	if cfg.Avatar.MaxFilesize <= 0 || cfg.Avatar.MaxWidth <= 0 || cfg.Avatar.MaxHeight <= 0 {
		return cfg, errors.New("avatar ceilings must be > 0")
	}
	if len(cfg.Avatar.Formats) == 0 {
		return cfg, errors.New("AVATAR_FORMATS must list at least one format")
	}
	if cfg.Rate.Enabled {
		if cfg.Rate.AccountRequests <= 0 || cfg.Rate.PasswordResets <= 0 || cfg.Rate.Default <= 0 {
			return cfg, errors.New("rate caps must be > 0 when LIMIT_REQUESTS is on")
		}
		switch cfg.Rate.Store {
		case "memory", "redis":
		default:
			return cfg, errors.New("RATE_STORE must be memory or redis")
		}
	}
	if cfg.Mailer.Port <= 0 || cfg.Mailer.Port > 65535 {
		return cfg, errors.New("MAILER_PORT must be a valid port")
	}
	if cfg.Mailer.UDPTimeout <= 0 || cfg.Mailer.CheckInterval <= 0 {
		return cfg, errors.New("mailer timings must be positive durations")
	}
	if cfg.Mailer.MailLifetime <= 0 {
		return cfg, errors.New("MAIL_LIFETIME must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- env helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}
