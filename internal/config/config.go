// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, persistence, the business calendar, operator credentials, the live
// calendar stream, outbound notifications, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for scratch/distroless images
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "turnos-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the GORM dialect and its connection string.
type DBConfig struct {
	Driver string // sqlite|postgres|mysql
	Path   string // sqlite file path
	URL    string // DSN for postgres/mysql
}

// AuthConfig holds the single operator account and token settings.
type AuthConfig struct {
	Username     string
	Password     string // plain, hashed at startup when PasswordHash is empty
	PasswordHash string // bcrypt
	JWTSecret    string
	JWTTTL       time.Duration
}

// EventsConfig tunes the live calendar stream and its optional Redis relay.
type EventsConfig struct {
	Heartbeat    time.Duration
	BufferSize   int
	RedisURL     string
	RedisChannel string
}

// NotifyConfig configures the post-booking notification senders. Each sender
// is enabled only when its credentials/endpoints are present.
type NotifyConfig struct {
	Timeout time.Duration

	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWhatsAppFrom  string
	AdminWhatsAppTo     string
	WhatsAppCountryCode string
	TwilioBaseURL       string

	RabbitMQURL   string
	RabbitMQQueue string

	KafkaBrokers []string
	KafkaTopic   string
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

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DB       DBConfig
	Timezone string // IANA name of the business timezone

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// RejectPastBookings makes Book refuse hours that have already started.
	// Off by default: past hours only show as unavailable in the slot grid.
	RejectPastBookings bool

	Auth   AuthConfig
	Events EventsConfig
	Notify NotifyConfig

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
	origins := splitCSV(getenv("CORS_ALLOWED_ORIGINS", ""))
	if fe := strings.TrimSpace(os.Getenv("FRONTEND_URL")); fe != "" && len(origins) == 0 {
		origins = []string{fe}
	}

	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// App
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "turnos.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Timezone: getenv("BUSINESS_TIMEZONE", "America/Argentina/Buenos_Aires"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{AllowedOrigins: origins},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL:     getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		RejectPastBookings: getbool("REJECT_PAST_BOOKINGS", false),

		Auth: AuthConfig{
			Username:     getenv("ADMIN_USERNAME", "admin"),
			Password:     getenv("ADMIN_PASSWORD", ""),
			PasswordHash: getenv("ADMIN_PASSWORD_HASH", ""),
			JWTSecret:    getenv("JWT_SECRET", ""),
			JWTTTL:       getdur("JWT_TTL", 7*24*time.Hour),
		},

		Events: EventsConfig{
			Heartbeat:    getdur("SSE_HEARTBEAT", 25*time.Second),
			BufferSize:   getint("SSE_BUFFER", 16),
			RedisURL:     getenv("REDIS_URL", ""),
			RedisChannel: getenv("REDIS_CHANNEL", "turnos:calendar"),
		},

		Notify: NotifyConfig{
			Timeout:             getdur("NOTIFY_TIMEOUT", 10*time.Second),
			TwilioAccountSID:    getenv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:     getenv("TWILIO_AUTH_TOKEN", ""),
			TwilioWhatsAppFrom:  getenv("TWILIO_WHATSAPP_NUMBER", ""),
			AdminWhatsAppTo:     getenv("ADMIN_WHATSAPP_NUMBER", ""),
			WhatsAppCountryCode: getenv("WHATSAPP_COUNTRY_PREFIX", "549"),
			TwilioBaseURL:       getenv("TWILIO_API_BASE", "https://api.twilio.com"),
			RabbitMQURL:         getenv("RABBITMQ_URL", ""),
			RabbitMQQueue:       getenv("RABBITMQ_QUEUE", "appointments.booked"),
			KafkaBrokers:        splitCSV(getenv("KAFKA_BROKERS", "")),
			KafkaTopic:          getenv("KAFKA_TOPIC", "appointments.booked"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "turnos-backend"),
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
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
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
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres", "mysql":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=%s", cfg.DB.Driver)
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres, mysql")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return cfg, fmt.Errorf("BUSINESS_TIMEZONE: %w", err)
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
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if strings.TrimSpace(cfg.Auth.Username) == "" {
		return cfg, errors.New("ADMIN_USERNAME must not be empty")
	}
	if cfg.Auth.Password == "" && cfg.Auth.PasswordHash == "" {
		return cfg, errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH must be set")
	}
	if len(cfg.Auth.JWTSecret) < 16 {
		return cfg, errors.New("JWT_SECRET must be at least 16 characters")
	}
	if cfg.Auth.JWTTTL <= 0 {
		return cfg, errors.New("JWT_TTL must be > 0")
	}
	if cfg.Events.Heartbeat <= 0 {
		return cfg, errors.New("SSE_HEARTBEAT must be > 0")
	}
	if cfg.Events.BufferSize < 1 {
		return cfg, errors.New("SSE_BUFFER must be >= 1")
	}
	if cfg.Notify.Timeout <= 0 {
		return cfg, errors.New("NOTIFY_TIMEOUT must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// WhatsAppEnabled reports whether Twilio credentials are complete.
func (n NotifyConfig) WhatsAppEnabled() bool {
	return n.TwilioAccountSID != "" && n.TwilioAuthToken != "" && n.TwilioWhatsAppFrom != ""
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
