package configs

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	APIBase        string
	Port           string
	SessionSecret  string
	SessionTTL     time.Duration
	BreadcrumbTTL  time.Duration
	RedisURL       string
	PaystackPubKey string
	CorsOrigins    []string
	LogTimeZone    string

	ExamPageSize         int
	UpstreamTimeout      time.Duration
	RequestTimeout       time.Duration
	TokenRefreshWindow   time.Duration
	SuccessRedirectDelay time.Duration
	FailureRedirectDelay time.Duration
	AttemptSweepInterval time.Duration
	SessionCleanupEvery  time.Duration

	// empty DBHost keeps attempts and payment intents in memory
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("⚠️ .env file not found, using system ENV")
		} else {
			log.Println("✅ .env file loaded")
		}
	} else {
		log.Println("🚀 Running in Railway, using system ENV")
	}

	APIBase = strings.TrimRight(GetEnv("API_BASE", "http://localhost:8000/api"), "/")
	Port = GetEnv("PORT", "3000")
	SessionSecret = GetEnv("SESSION_SECRET")
	SessionTTL = GetEnvDuration("SESSION_TTL", 24*time.Hour)
	BreadcrumbTTL = GetEnvDuration("BREADCRUMB_TTL", time.Hour)
	RedisURL = GetEnv("REDIS_URL")
	PaystackPubKey = GetEnv("PAYSTACK_PUBLIC_KEY")
	CorsOrigins = splitList(GetEnv("CORS_ORIGINS", "http://localhost:5173"))
	LogTimeZone = GetEnv("LOG_TIMEZONE", "Local")

	ExamPageSize = GetEnvInt("EXAM_PAGE_SIZE", 10)
	UpstreamTimeout = GetEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second)
	RequestTimeout = GetEnvDuration("REQUEST_TIMEOUT", 20*time.Second)
	TokenRefreshWindow = GetEnvDuration("TOKEN_REFRESH_WINDOW", 2*time.Minute)
	SuccessRedirectDelay = GetEnvDuration("SUCCESS_REDIRECT_DELAY", 2*time.Second)
	FailureRedirectDelay = GetEnvDuration("FAILURE_REDIRECT_DELAY", 3*time.Second)
	AttemptSweepInterval = GetEnvDuration("ATTEMPT_SWEEP_INTERVAL", time.Minute)
	SessionCleanupEvery = GetEnvDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute)

	DBHost = GetEnv("DB_HOST")
	DBPort = GetEnv("DB_PORT", "5432")
	DBUser = GetEnv("DB_USER")
	DBPassword = GetEnv("DB_PASSWORD")
	DBName = GetEnv("DB_NAME")
	DBSSLMode = GetEnv("DB_SSLMODE", "require")

	if SessionSecret == "" {
		log.Println("❌ SESSION_SECRET is not set, tokens will be sealed with an ephemeral key")
	} else {
		log.Println("✅ SESSION_SECRET loaded.")
	}
	if PaystackPubKey == "" {
		log.Println("⚠️ PAYSTACK_PUBLIC_KEY is not set, inline popup checkout is disabled")
	}
}

// DatabaseDSN builds the postgres URL from the DB_* settings.
func DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=edumarket_bff&options=-c statement_timeout=3000",
		url.QueryEscape(DBUser),
		url.QueryEscape(DBPassword),
		DBHost,
		DBPort,
		DBName,
		DBSSLMode,
	)
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if (!exists || value == "") && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func GetEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("⚠️ invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func GetEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	log.Printf("⚠️ invalid %s=%q, using %s", key, v, def)
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
