package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（SupabaseのPostgres接続文字列）
	DatabaseURL string

	// Supabase
	SupabaseURL            string
	SupabaseServiceRoleKey string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceMonthly  string
	StripePriceYearly   string

	// Frontend
	FrontendURL string

	// Session
	SessionMaxAge    int
	RememberMeMaxAge int

	// Leads
	FreeMonthlyLeadLimit int

	// Rate Limit（req/min）
	RateLimitGeneral    int
	RateLimitLeadCreate int
	RateLimitLogin      int

	// Worker
	SnapshotInterval time.Duration
	CleanupInterval  time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// Cookie
	CookieSecure bool
	CookieDomain string
}

// MissingEnvError は必須環境変数が未設定の場合のエラー。
// Names には未設定の変数名がすべて含まれる。
type MissingEnvError struct {
	Names []string
}

// Error はerrorインターフェースを実装する。
func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("required environment variables are not set: %v", e.Names)
}

// requiredVars は起動に必須の環境変数と格納先の対応。
func requiredVars(cfg *Config) []struct {
	name string
	dst  *string
} {
	return []struct {
		name string
		dst  *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"SUPABASE_URL", &cfg.SupabaseURL},
		{"SUPABASE_SERVICE_ROLE_KEY", &cfg.SupabaseServiceRoleKey},
		{"STRIPE_SECRET_KEY", &cfg.StripeSecretKey},
		{"STRIPE_WEBHOOK_SECRET", &cfg.StripeWebhookSecret},
		{"STRIPE_PRICE_PROFESSIONAL_MONTHLY", &cfg.StripePriceMonthly},
		{"STRIPE_PRICE_PROFESSIONAL_YEARLY", &cfg.StripePriceYearly},
		{"FRONTEND_URL", &cfg.FrontendURL},
	}
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が1つでも未設定の場合は *MissingEnvError を返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	for _, v := range requiredVars(cfg) {
		*v.dst = os.Getenv(v.name)
		if *v.dst == "" {
			missing = append(missing, v.name)
		}
	}

	if len(missing) > 0 {
		return nil, &MissingEnvError{Names: missing}
	}

	cfg.FrontendURL = strings.TrimSuffix(cfg.FrontendURL, "/")

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RememberMeMaxAge = getEnvInt("REMEMBER_ME_MAX_AGE", 30*86400)
	cfg.FreeMonthlyLeadLimit = getEnvInt("FREE_MONTHLY_LEAD_LIMIT", 50)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLeadCreate = getEnvInt("RATE_LIMIT_LEAD_CREATE", 30)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.SnapshotInterval = getEnvDuration("SNAPSHOT_INTERVAL", 24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.FrontendURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
