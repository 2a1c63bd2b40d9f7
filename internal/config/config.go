// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database and config-file paths, the
// counsellor mode, escalation tuning, sidecar endpoints, rate limiting, and
// observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-counsel-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SidecarConfig points at one auxiliary HTTP service (classifier, generator,
// chat app).
type SidecarConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// RetryConfig tunes the outbound delivery retry schedule.
type RetryConfig struct {
	MaxRetries int           // attempts per send, RETRY_MAX
	BaseDelay  time.Duration // first backoff delay, RETRY_BASE_DELAY
	MaxDelay   time.Duration // backoff cap, RETRY_MAX_DELAY
	Factor     float64       // backoff multiplier, RETRY_FACTOR
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for admin API routes

	// AdminToken guards the admin API. Clients present it as a bearer token
	// or in the X-API-Key header. An empty value locks the admin API: the
	// data behind it is health disclosures, so fail closed.
	AdminToken string // ADMIN_API_TOKEN

	// App
	DBPath        string // SQLite path
	RoutesPath    string // YAML route table; empty disables file routes
	QuestionsPath string // YAML question set; empty uses the built-in set
	Mode          string // none|single|multi
	DefaultRoute  string // route used when an event names none
	BotID         string // identity outbound messages are logged under

	// Language
	DefaultLanguage    string   // fallback conversation language
	SupportedLanguages []string // ISO 639-1 codes offered to users

	// Escalation
	EscalateThreshold float64 // classifier confidence threshold (0,1]

	// Delivery retry
	Retry RetryConfig

	// Sidecars
	Classifier SidecarConfig // intent classifier
	Generator  SidecarConfig // answer generator
	ChatApp    SidecarConfig // counsellor chat app (multi mode)

	// ChatAppAdminSecret is the super-admin secret for account provisioning.
	ChatAppAdminSecret string

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// EventTTL is how long processed webhook event ids are remembered.
	EventTTL time.Duration

	// Observability
	OTEL OTELConfig
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
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		AdminToken:  getenv("ADMIN_API_TOKEN", ""),

		// App
		DBPath:        getenv("DB_PATH", "app.db"),
		RoutesPath:    getenv("ROUTES_PATH", "config/routes.yaml"),
		QuestionsPath: getenv("QUESTIONS_PATH", ""),
		Mode:          strings.ToLower(getenv("MODE", "none")),
		DefaultRoute:  getenv("DEFAULT_ROUTE", "whatsapp"),
		BotID:         getenv("BOT_ID", "ai_bot"),

		// Language
		DefaultLanguage:    getenv("DEFAULT_LANGUAGE", "en"),
		SupportedLanguages: splitCSV(getenv("SUPPORTED_LANGUAGES", "en,fr")),

		// Escalation
		EscalateThreshold: getfloat("ESCALATE_THRESHOLD", 0.7),

		// Delivery retry
		Retry: RetryConfig{
			MaxRetries: getint("RETRY_MAX", 3),
			BaseDelay:  getdur("RETRY_BASE_DELAY", time.Second),
			MaxDelay:   getdur("RETRY_MAX_DELAY", 60*time.Second),
			Factor:     getfloat("RETRY_FACTOR", 2.0),
		},

		// Sidecars
		Classifier: SidecarConfig{
			URL:     getenv("CLASSIFIER_URL", ""),
			Timeout: getdur("CLASSIFIER_TIMEOUT", 10*time.Second),
		},
		Generator: SidecarConfig{
			URL:     getenv("GENERATOR_URL", ""),
			Token:   getenv("GENERATOR_TOKEN", ""),
			Timeout: getdur("GENERATOR_TIMEOUT", 30*time.Second),
		},
		ChatApp: SidecarConfig{
			URL:     getenv("CHAT_APP_URL", ""),
			Timeout: getdur("CHAT_APP_TIMEOUT", 15*time.Second),
		},
		ChatAppAdminSecret: getenv("CHAT_APP_ADMIN_SECRET", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Event dedupe
		EventTTL: getdur("EVENT_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-counsel-backend"),
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
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	switch cfg.Mode {
	case "none", "single", "multi":
	default:
		return cfg, errors.New("MODE must be one of: none, single, multi")
	}
	if cfg.Mode == "multi" && strings.TrimSpace(cfg.ChatApp.URL) == "" {
		return cfg, errors.New("CHAT_APP_URL is required when MODE=multi")
	}
	if strings.TrimSpace(cfg.DefaultLanguage) == "" {
		return cfg, errors.New("DEFAULT_LANGUAGE must not be empty")
	}
	if len(cfg.SupportedLanguages) == 0 {
		return cfg, errors.New("SUPPORTED_LANGUAGES must name at least one language")
	}
	if cfg.EscalateThreshold <= 0 || cfg.EscalateThreshold > 1 {
		return cfg, errors.New("ESCALATE_THRESHOLD must be in (0,1]")
	}
	if cfg.Retry.MaxRetries < 1 {
		return cfg, errors.New("RETRY_MAX must be >= 1")
	}
	if cfg.Retry.BaseDelay <= 0 || cfg.Retry.MaxDelay <= 0 || cfg.Retry.Factor < 1 {
		return cfg, errors.New("retry delays must be positive and RETRY_FACTOR >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.EventTTL <= 0 {
		return cfg, errors.New("EVENT_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

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
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
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

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
