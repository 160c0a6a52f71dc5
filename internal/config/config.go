package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// App holds credentials registered with one brokerage platform. A platform
// with an empty ClientID is treated as unavailable, not a startup failure.
type App struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

func (a App) Configured() bool {
	return a.ClientID != "" && a.ClientSecret != ""
}

type Config struct {
	ListenAddr         string
	StoreMode          string
	DatabaseURL        string
	SQLitePath         string
	TokenEncryptionKey string
	JWTSecret          string
	AdminUsername      string
	AdminPassword      string
	LogLevel           string

	BaseCallbackURL string
	Platforms       map[string]App

	// PlatformAPIBaseURL points every adapter and OAuth exchange at one
	// host instead of the real brokerage endpoints. Used for sandbox
	// environments; empty in production.
	PlatformAPIBaseURL string

	PlatformTimeout time.Duration
	SyncConcurrency int
	SyncWebhookURL  string
	WebhookTimeout  time.Duration

	TelegramBotToken string
	TelegramChatID   string
}

func Load() Config {
	base := getEnv("BASE_CALLBACK_URL", "http://localhost:18080")
	return Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":18080"),
		StoreMode:          getEnv("STORE_MODE", "postgres"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "tradesync.db"),
		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
		JWTSecret:          getEnv("JWT_SECRET", "change-this-secret"),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", "change-me"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		BaseCallbackURL: base,
		Platforms: map[string]App{
			"dhan":    loadApp("DHAN", base),
			"upstox":  loadApp("UPSTOX", base),
			"zerodha": loadApp("ZERODHA", base),
			"icici":   loadApp("ICICI", base),
		},

		PlatformAPIBaseURL: getEnv("PLATFORM_API_BASE_URL", ""),

		PlatformTimeout: getDuration("PLATFORM_HTTP_TIMEOUT", 10*time.Second),
		SyncConcurrency: getInt("SYNC_CONCURRENCY", 4),
		SyncWebhookURL:  getEnv("SYNC_WEBHOOK_URL", ""),
		WebhookTimeout:  getDuration("SYNC_WEBHOOK_TIMEOUT", 5*time.Second),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// App returns the registered application credentials for a platform id.
func (c Config) App(platformID string) App {
	return c.Platforms[strings.ToLower(platformID)]
}

func loadApp(prefix, base string) App {
	return App{
		ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
		ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
		RedirectURI:  getEnv(prefix+"_REDIRECT_URI", base+"/platforms/"+strings.ToLower(prefix)+"/callback"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
