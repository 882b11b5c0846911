package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Brevo     BrevoConfig
	Zoom      ZoomConfig
	Notify    NotifyConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	OutboundTimeoutSec int    // per-call limit for Brevo and Zoom requests
	CORSAllowedOrigins string   // comma-separated, or "*" for all
	TrustedProxies     []string // proxies allowed to set X-Forwarded-For; empty trusts none
	LogLevel           string
}

// BrevoConfig holds CRM and transactional email settings.
type BrevoConfig struct {
	APIKey      string
	ListID      string
	BaseURL     string
	SenderName  string
	SenderEmail string
}

// ZoomConfig holds Server-to-Server OAuth credentials and the recurring meeting id.
type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	MeetingID    string
	APIURL       string
	OAuthURL     string
}

// Notify delivery modes.
const (
	NotifyInline = "inline" // in-process worker pool
	NotifyQueue  = "queue"  // Redis queue consumed by cmd/worker
)

// NotifyConfig controls how confirmation emails leave the request path.
type NotifyConfig struct {
	Mode      string
	Workers   int
	QueueSize int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL      string // takes precedence over Addr when set
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig holds the PostgreSQL DSN for email logs. Empty disables logging to the database.
type DatabaseConfig struct {
	URL      string
	MaxConns int
}

// RateLimitConfig bounds form submissions per client IP.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// OutboundTimeout returns the per-call provider timeout.
func (c ServerConfig) OutboundTimeout() time.Duration {
	return time.Duration(c.OutboundTimeoutSec) * time.Second
}

// Load reads configuration from environment, with optional .env file.
// Provider credentials are not checked here; the clients report what is missing on first use.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	mode := strings.ToLower(getEnv("NOTIFY_MODE", NotifyInline))
	if mode != NotifyQueue {
		mode = NotifyInline
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			OutboundTimeoutSec: getEnvInt("OUTBOUND_TIMEOUT_SEC", 15),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "https://erpsolwed.es,https://www.erpsolwed.es,http://localhost:4321"),
			TrustedProxies:     splitTrim(getEnv("TRUSTED_PROXIES", ""), ","),
			LogLevel:           getEnv("LOG_LEVEL", "info"),
		},
		Brevo: BrevoConfig{
			APIKey:      getEnv("BREVO_API_KEY", ""),
			ListID:      getEnv("BREVO_LIST_ID", ""),
			BaseURL:     getEnv("BREVO_BASE_URL", ""),
			SenderName:  getEnv("BREVO_SENDER_NAME", ""),
			SenderEmail: getEnv("BREVO_SENDER_EMAIL", ""),
		},
		Zoom: ZoomConfig{
			AccountID:    getEnv("ZOOM_ACCOUNT_ID", ""),
			ClientID:     getEnv("ZOOM_CLIENT_ID", ""),
			ClientSecret: getEnv("ZOOM_CLIENT_SECRET", ""),
			MeetingID:    getEnv("ZOOM_MEETING_ID", ""),
			APIURL:       getEnv("ZOOM_API_URL", ""),
			OAuthURL:     getEnv("ZOOM_OAUTH_URL", ""),
		},
		Notify: NotifyConfig{
			Mode:      mode,
			Workers:   getEnvInt("NOTIFY_WORKERS", 2),
			QueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 100),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt("DATABASE_MAX_CONNS", 4),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 5),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
