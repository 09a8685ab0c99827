// Package config loads application configuration from environment variables
// (optionally seeded from a .env file) with defaults and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must load on hosts without zoneinfo

	"github.com/joho/godotenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines HSTS and the operational API key.
type SecurityConfig struct {
	EnableHSTS     bool
	HSTSMaxAge     time.Duration
	InternalAPIKey string // guards /gmail/*, /calendar/*; empty disables
}

// OTELConfig defines OpenTelemetry settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// OwnerConfig identifies the single principal the assistant serves.
type OwnerConfig struct {
	Number           string // OWNER_WHATSAPP_NUMBER, as configured
	Email            string // OWNER_EMAIL, sent for the help_email intent
	AllowExtendedIDs bool   // ALLOW_EXTENDED_IDS
	CommandMode      bool   // COMMAND_MODE
}

// GatewayConfig configures the outbound messaging gateway.
type GatewayConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// GoogleConfig configures OAuth and the Gmail/Calendar clients.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string // empty means the provider defaults
	CalendarID   string
}

// CompletionConfig configures the chat-completions collaborator.
type CompletionConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// SchedulerConfig configures the background jobs.
type SchedulerConfig struct {
	Enabled         bool
	InboxPoll       time.Duration
	ReminderSweep   time.Duration
	GapRecommend    time.Duration
	ReminderOffsets []int // minutes before start
	JobTimeout      time.Duration
}

// BookingConfig configures appointment slot planning.
type BookingConfig struct {
	HorizonDays int
	OpenHour    int
	CloseHour   int
	SlotSource  string // calendar | completion
	ClinicPhone string
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
	ShutdownTimeout   time.Duration

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	// Storage
	DBPath string

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS           CORSConfig
	Security       SecurityConfig
	IdempotencyTTL time.Duration

	// Observability
	OTEL OTELConfig

	// Domain
	Owner      OwnerConfig
	Timezone   string
	Location   *time.Location
	Gateway    GatewayConfig
	Google     GoogleConfig
	Completion CompletionConfig
	Scheduler  SchedulerConfig
	Booking    BookingConfig

	// State
	DedupCapacity    int
	EventLogCapacity int
}

// LoadDotEnv reads .env style files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the environment, applies defaults,
// normalizes values and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 15*time.Second),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DBPath: getenv("DB_PATH", "agenda.db"),

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS:     getbool("ENABLE_HSTS", false),
			HSTSMaxAge:     getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			InternalAPIKey: getenv("INTERNAL_API_KEY", ""),
		},
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-agenda-agent"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},

		Owner: OwnerConfig{
			Number:           getenv("OWNER_WHATSAPP_NUMBER", ""),
			Email:            getenv("OWNER_EMAIL", ""),
			AllowExtendedIDs: getbool("ALLOW_EXTENDED_IDS", false),
			CommandMode:      getbool("COMMAND_MODE", true),
		},
		Timezone: getenv("TIMEZONE", "America/Monterrey"),
		Gateway: GatewayConfig{
			URL:     getenv("GATEWAY_URL", "http://localhost:3000"),
			APIKey:  getenv("GATEWAY_API_KEY", ""),
			Timeout: getdur("GATEWAY_TIMEOUT", 10*time.Second),
		},
		Google: GoogleConfig{
			ClientID:     getenv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getenv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:  getenv("GOOGLE_REDIRECT_URI", "http://localhost:8080/oauth/callback"),
			Scopes:       splitCSV(getenv("GOOGLE_SCOPES", "")),
			CalendarID:   getenv("GOOGLE_CALENDAR_ID", "primary"),
		},
		Completion: CompletionConfig{
			BaseURL: getenv("COMPLETION_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  getenv("COMPLETION_API_KEY", getenv("OPENAI_API_KEY", "")),
			Model:   getenv("COMPLETION_MODEL", "gpt-4o-mini"),
			Timeout: getdur("COMPLETION_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getbool("SCHEDULER_ENABLED", true),
			InboxPoll:     getdur("GMAIL_POLL_INTERVAL", 5*time.Minute),
			ReminderSweep: getdur("REMINDER_INTERVAL", time.Minute),
			GapRecommend:  getdur("GAP_INTERVAL", 60*time.Minute),
			JobTimeout:    getdur("JOB_TIMEOUT", 2*time.Minute),
		},
		Booking: BookingConfig{
			HorizonDays: getint("BOOKING_HORIZON_DAYS", 7),
			OpenHour:    getint("OFFICE_OPEN_HOUR", 8),
			CloseHour:   getint("OFFICE_CLOSE_HOUR", 18),
			SlotSource:  strings.ToLower(getenv("SLOT_SOURCE", "calendar")),
			ClinicPhone: getenv("CLINIC_PHONE", ""),
		},

		DedupCapacity:    getint("DEDUP_CAPACITY", 1000),
		EventLogCapacity: getint("EVENT_LOG_CAPACITY", 200),
	}

	offsets, err := parseMinutes(getenv("REMINDER_OFFSETS", "1440,60,10"))
	if err != nil {
		return cfg, err
	}
	cfg.Scheduler.ReminderOffsets = offsets

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.Gateway.URL = strings.TrimRight(cfg.Gateway.URL, "/")

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
	if cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
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
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	if strings.TrimSpace(cfg.Owner.Number) == "" {
		return cfg, errors.New("OWNER_WHATSAPP_NUMBER is required")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return cfg, errors.New("TIMEZONE must be a valid IANA zone name")
	}
	cfg.Location = loc
	if strings.TrimSpace(cfg.Gateway.URL) == "" {
		return cfg, errors.New("GATEWAY_URL must not be empty")
	}
	if cfg.Gateway.Timeout <= 0 || cfg.Completion.Timeout <= 0 {
		return cfg, errors.New("GATEWAY_TIMEOUT and COMPLETION_TIMEOUT must be > 0")
	}
	if cfg.Scheduler.InboxPoll < 0 || cfg.Scheduler.ReminderSweep < 0 || cfg.Scheduler.GapRecommend < 0 {
		return cfg, errors.New("scheduler intervals must be >= 0")
	}
	if cfg.Scheduler.JobTimeout <= 0 {
		return cfg, errors.New("JOB_TIMEOUT must be > 0")
	}
	if cfg.DedupCapacity < 1 || cfg.EventLogCapacity < 1 {
		return cfg, errors.New("DEDUP_CAPACITY and EVENT_LOG_CAPACITY must be >= 1")
	}
	if cfg.Booking.HorizonDays < 1 {
		return cfg, errors.New("BOOKING_HORIZON_DAYS must be >= 1")
	}
	if cfg.Booking.OpenHour < 0 || cfg.Booking.CloseHour > 24 || cfg.Booking.OpenHour >= cfg.Booking.CloseHour {
		return cfg, errors.New("OFFICE_OPEN_HOUR must be before OFFICE_CLOSE_HOUR within 0..24")
	}
	switch cfg.Booking.SlotSource {
	case "calendar", "completion":
	default:
		return cfg, errors.New("SLOT_SOURCE must be calendar or completion")
	}

	return cfg, nil
}

// GoogleConfigured reports whether OAuth client credentials are present.
func (c Config) GoogleConfigured() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// ---- helpers ----

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
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
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
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseMinutes reads REMINDER_OFFSETS: positive whole minutes, CSV.
func parseMinutes(s string) ([]int, error) {
	var out []int
	for _, p := range splitCSV(s) {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil, errors.New("REMINDER_OFFSETS must be a comma-separated list of positive minutes")
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, errors.New("REMINDER_OFFSETS must not be empty")
	}
	return out, nil
}
