package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"rhythm-tracker/internal/constants"
)

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string

	// OrphanThreshold is how many distinct players must submit an
	// unknown chart before it is promoted into the canonical set.
	OrphanThreshold int

	// LockRetries / LockBaseDelay tune the per-user import lock
	// acquisition loop (exponential backoff, bounded attempts).
	LockRetries   int
	LockBaseDelay time.Duration

	// ProfileBestN is the best-N count for profile rating averages.
	ProfileBestN int

	WebhookURL string

	// ProfileAPIURL is the remote profile service queried by API
	// import types for externally-reported classes (dan ranks etc.).
	ProfileAPIURL string
	ProfileAPIKey string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:          getEnv("DB_PATH", "tracker.db"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		OrphanThreshold: getEnvInt("ORPHAN_THRESHOLD", constants.DefaultOrphanThreshold),
		LockRetries:     getEnvInt("IMPORT_LOCK_RETRIES", constants.DefaultLockRetries),
		LockBaseDelay:   getEnvDuration("IMPORT_LOCK_BASE_DELAY", constants.DefaultLockBaseDelay),
		ProfileBestN:    getEnvInt("PROFILE_BEST_N", constants.ProfileBestN),
		WebhookURL:      getEnv("WEBHOOK_URL", ""),
		ProfileAPIURL:   getEnv("PROFILE_API_URL", ""),
		ProfileAPIKey:   getEnv("PROFILE_API_KEY", ""),
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("orphan_threshold", cfg.OrphanThreshold).
		Int("lock_retries", cfg.LockRetries).
		Dur("lock_base_delay", cfg.LockBaseDelay).
		Int("profile_best_n", cfg.ProfileBestN).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

var Module = fx.Provide(Load)
