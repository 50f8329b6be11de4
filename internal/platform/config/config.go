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

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of key as parsed by strconv.ParseBool,
// or fallback if unset, empty, or invalid.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of key (e.g. "30s", "5m"), or
// fallback if unset, empty, or invalid. "0" is valid and yields zero.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// Settings is the complete runtime configuration of the broker.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	// Session cookies.
	SecureKey     string
	CookieSecure  bool
	SessionMaxAge int

	// Shared secrets: bots authorize room management with BotAuth, the broker
	// authorizes itself to live servers with LiveServerAuth.
	BotAuth        string
	LiveServerAuth string

	// OAuth identity provider.
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Quick links served at /invite and /discord.
	BotInviteURL string
	SupportURL   string

	GatewayURL      string
	PublicDomain    string
	LiveServersFile string

	DirectoryBackend string
	SQLitePath       string
	RedisAddr        string
	RedisUsername    string
	RedisPassword    string

	RoomCacheTTL    time.Duration
	StatsCacheTTL   time.Duration
	UpstreamTimeout time.Duration
}

// ErrMissingSetting is wrapped by LoadSettings for every required key that
// is unset.
var ErrMissingSetting = errors.New("required setting is not set")

// LoadSettings reads Settings from the environment. Call Load first to pull
// in a .env file.
func LoadSettings() (Settings, error) {
	s := Settings{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		SecureKey:     GetEnv("SECURE_KEY", ""),
		CookieSecure:  GetEnvBool("COOKIE_SECURE", false),
		SessionMaxAge: GetEnvInt("SESSION_MAX_AGE", 86400*30),

		BotAuth:        GetEnv("BOT_AUTH", ""),
		LiveServerAuth: GetEnv("LIVE_SERVER_AUTH", ""),

		ClientID:     GetEnv("CLIENT_ID", ""),
		ClientSecret: GetEnv("CLIENT_SECRET", ""),
		RedirectURI:  GetEnv("REDIRECT_URI", ""),

		BotInviteURL: GetEnv("BOT_INVITE_URL", ""),
		SupportURL:   GetEnv("SUPPORT_URL", ""),

		GatewayURL:      strings.TrimRight(GetEnv("GATEWAY_URL", "http://localhost:8000"), "/"),
		PublicDomain:    GetEnv("PUBLIC_DOMAIN", "localhost:8080"),
		LiveServersFile: GetEnv("LIVE_SERVERS_FILE", "live_servers.yaml"),

		DirectoryBackend: strings.ToLower(GetEnv("DIRECTORY_BACKEND", "sqlite")),
		SQLitePath:       GetEnv("SQLITE_PATH", "rooms.db"),
		RedisAddr:        GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisUsername:    GetEnv("REDIS_USERNAME", ""),
		RedisPassword:    GetEnv("REDIS_PASSWORD", ""),

		RoomCacheTTL:    GetEnvDuration("ROOM_CACHE_TTL", 5*time.Second),
		StatsCacheTTL:   GetEnvDuration("STATS_CACHE_TTL", 10*time.Second),
		UpstreamTimeout: GetEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second),
	}

	var missing []error
	for key, v := range map[string]string{
		"SECURE_KEY":       s.SecureKey,
		"BOT_AUTH":         s.BotAuth,
		"LIVE_SERVER_AUTH": s.LiveServerAuth,
	} {
		if v == "" {
			missing = append(missing, fmt.Errorf("%s: %w", key, ErrMissingSetting))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return s, err
	}
	return s, nil
}
