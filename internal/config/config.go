// Package config loads application settings from the environment (optionally
// seeded from a .env file) with defaults and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DBConfig selects and addresses the durable store.
type DBConfig struct {
	Driver     string // STORE_DRIVER: postgres|sqlite
	URL        string // DATABASE_URL, takes precedence over the DB_* parts
	User       string
	Password   string
	Host       string
	Port       string
	Name       string
	SQLitePath string // SQLITE_PATH
}

// DSN returns the Postgres connection string.
func (d DBConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", d.User, d.Password, d.Host, d.Port, d.Name)
}

// AlertsConfig configures the background notification queue.
type AlertsConfig struct {
	RedisAddr   string // REDIS_ADDR; empty disables alerts
	Concurrency int
}

// Enabled reports whether an alerts backend is configured.
func (a AlertsConfig) Enabled() bool { return a.RedisAddr != "" }

// RealtimeConfig tunes the push channel and messaging.
type RealtimeConfig struct {
	TypingIdleWindow time.Duration
	MessageMaxRunes  int
	SendBuffer       int
	PingInterval     time.Duration
	PongWait         time.Duration
	MaxMessageBytes  int64
	InboundRPS       float64 // per-connection inbound event rate
	InboundBurst     int
}

// OTELConfig defines OpenTelemetry settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	LogLevel  string
	LogPretty bool

	JWTSecret            string
	PaymentWebhookSecret string
	CORSAllowedOrigins   []string

	DB       DBConfig
	Alerts   AlertsConfig
	Realtime RealtimeConfig
	OTEL     OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads .env (if present) and the environment, applies defaults,
// normalizes values and validates the result.
func Load() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Config{
		Port:            getenv("PORT", "8080"),
		ReadTimeout:     getdur("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getdur("WRITE_TIMEOUT", 20*time.Second),
		ShutdownTimeout: getdur("SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		JWTSecret:            getenv("JWT_SECRET", ""),
		PaymentWebhookSecret: getenv("PAYMENT_WEBHOOK_SECRET", ""),
		CORSAllowedOrigins:   splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),

		DB: DBConfig{
			Driver:     strings.ToLower(getenv("STORE_DRIVER", DriverPostgres)),
			URL:        getenv("DATABASE_URL", ""),
			User:       getenv("DB_USER", "postgres"),
			Password:   getenv("DB_PASSWORD", ""),
			Host:       getenv("DB_HOST", "localhost"),
			Port:       getenv("DB_PORT", "5432"),
			Name:       getenv("DB_NAME", "gigmarket"),
			SQLitePath: getenv("SQLITE_PATH", "gigmarket.db"),
		},

		Alerts: AlertsConfig{
			RedisAddr:   getenv("REDIS_ADDR", ""),
			Concurrency: getint("ALERTS_CONCURRENCY", 5),
		},

		Realtime: RealtimeConfig{
			TypingIdleWindow: getdur("TYPING_IDLE_WINDOW", 3*time.Second),
			MessageMaxRunes:  getint("MESSAGE_MAX_RUNES", 5000),
			SendBuffer:       getint("WS_SEND_BUFFER", 64),
			PingInterval:     getdur("WS_PING_INTERVAL", 30*time.Second),
			PongWait:         getdur("WS_PONG_WAIT", 60*time.Second),
			MaxMessageBytes:  int64(getint("WS_MAX_MESSAGE_BYTES", 64<<10)),
			InboundRPS:       getfloat("WS_INBOUND_RPS", 20),
			InboundBurst:     getint("WS_INBOUND_BURST", 40),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "gigmarket"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = DriverPostgres
	}

	return cfg, cfg.Validate()
}

// Validate checks invariants of an assembled Config.
func (cfg Config) Validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	switch cfg.DB.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if strings.TrimSpace(cfg.DB.SQLitePath) == "" {
			return errors.New("SQLITE_PATH must not be empty")
		}
	default:
		return errors.New("STORE_DRIVER must be one of: postgres, sqlite")
	}
	if cfg.Alerts.Concurrency < 1 {
		return errors.New("ALERTS_CONCURRENCY must be >= 1")
	}
	rt := cfg.Realtime
	if rt.TypingIdleWindow <= 0 {
		return errors.New("TYPING_IDLE_WINDOW must be > 0")
	}
	if rt.MessageMaxRunes < 1 {
		return errors.New("MESSAGE_MAX_RUNES must be >= 1")
	}
	if rt.SendBuffer < 1 {
		return errors.New("WS_SEND_BUFFER must be >= 1")
	}
	if rt.PingInterval <= 0 || rt.PongWait <= rt.PingInterval {
		return errors.New("WS_PONG_WAIT must exceed WS_PING_INTERVAL")
	}
	if rt.MaxMessageBytes <= 0 {
		return errors.New("WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if rt.InboundRPS <= 0 || rt.InboundBurst < 1 {
		return errors.New("WS_INBOUND_RPS must be > 0 and WS_INBOUND_BURST >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
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
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
